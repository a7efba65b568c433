package main

import (
	"bufio"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
)

// serve is a throwaway echo server, just enough to prove the shared
// listener actually accepts connections distributed by the OS across
// every worker sharing it (spec.md §1's explicit non-goal: load
// balancing is the kernel's job, not this module's).
func serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Debug().Err(err).Msg("accept loop exiting")
			return
		}
		go handleConn(conn)
	}
}

func handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Fprintf(conn, "echo: %s\n", scanner.Text())
	}
}
