// Command wcluster is a minimal two-role demonstrator for the cluster
// package, in the spirit of the teacher's cmd/porkg/porkg.go: no flag or
// subcommand framework, just role detection and a fixed, illustrative
// wiring. It is not meant as a general-purpose CLI (spec.md §1 treats a
// CLI front-end as out of scope).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/brnsv/wcluster/cluster"
	"github.com/brnsv/wcluster/internal/clustermetrics"
	"github.com/brnsv/wcluster/internal/config"
	"github.com/brnsv/wcluster/internal/logging"
	"github.com/brnsv/wcluster/internal/spawn"
)

const demoAddr = "127.0.0.1:8080"
const demoWorkerCount = 2

func main() {
	rt, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wcluster: failed to load runtime config: %v\n", err)
		os.Exit(1)
	}

	isMaster, isWorker, workerID := cluster.DetectRole()

	if isWorker {
		runWorker(rt, workerID)
		return
	}

	if isMaster {
		runMaster(rt)
		return
	}
}

func runMaster(rt config.Runtime) {
	logger := logging.New(logging.RoleMaster, rt.DebugPattern)
	log.Logger = logger

	metrics := clustermetrics.New(nil)
	sup := cluster.NewSupervisor(metrics)

	go func() {
		for ev := range sup.Events() {
			logger.Info().Str("kind", ev.Kind.String()).Int("worker", ev.WorkerID).Msg("supervisor event")
		}
	}()

	for i := 0; i < demoWorkerCount; i++ {
		if _, err := sup.Fork(nil); err != nil {
			logger.Fatal().Err(err).Msg("fork failed")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	done := make(chan struct{})
	sup.Disconnect(func() { close(done) })
	<-done
}

func runWorker(rt config.Runtime, id *int) {
	logger := logging.New(logging.RoleWorker, rt.DebugPattern)
	log.Logger = logger

	channel, ok := spawn.Reenter()
	if !ok {
		logger.Fatal().Msg("worker role detected but no inherited channel found")
	}

	w := cluster.NewWorker(id, rt.ParentPID, channel)

	go func() {
		for ev := range w.Events() {
			logger.Info().Str("kind", ev.Kind.String()).Msg("worker event")
		}
	}()

	ln, err := w.Listen("tcp", demoAddr, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("listen failed")
	}
	go serve(ln)

	if err := w.Run(); err != nil {
		logger.Debug().Err(err).Msg("worker channel closed")
	}
}
