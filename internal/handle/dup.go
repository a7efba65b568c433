// Package handle duplicates an open file descriptor living in one
// process's table into another process's table, without the two
// processes sharing a connected Unix socket. This is the "worker's side"
// of spec.md §4.6/§9's listener handoff: the worker process pulls the
// supervisor's listening-socket fd number (received as ordinary message
// data, see internal/ipc.Message.Handle) into its own fd table.
//
// Grounded on github.com/porkg/porkg's internal/worker/linux.go, which
// uses the same primitive (github.com/oraoto/go-pidfd) in the opposite
// role: there, the root process holds a pidfd on a spawned worker and
// pulls a fd out of the worker's table. Here, a worker holds a pidfd on
// its supervisor (a process it can always open a pidfd on: same host,
// same user, PID known from the environment at fork time) and pulls a
// fd out of the supervisor's table.
package handle

import (
	"fmt"

	"github.com/oraoto/go-pidfd"
)

// Duplicator pulls a file descriptor that exists in a remote process's
// table into the caller's own table, returning the new local fd number.
type Duplicator interface {
	Dup(remoteFd int) (int, error)
	Close() error
}

// pidfdDuplicator is the real, Linux-only implementation.
type pidfdDuplicator struct {
	pfd pidfd.PidFd
}

// Open returns a Duplicator bound to pid, the process whose fd table
// future Dup calls will pull from.
func Open(pid int) (Duplicator, error) {
	pfd, err := pidfd.Open(pid, 0)
	if err != nil {
		return nil, fmt.Errorf("handle: failed to open pidfd for pid %d: %w", pid, err)
	}
	return &pidfdDuplicator{pfd: pfd}, nil
}

func (d *pidfdDuplicator) Dup(remoteFd int) (int, error) {
	fd, err := d.pfd.GetFd(remoteFd, 0)
	if err != nil {
		return 0, fmt.Errorf("handle: failed to duplicate remote fd %d: %w", remoteFd, err)
	}
	return fd, nil
}

func (d *pidfdDuplicator) Close() error {
	return d.pfd.Close()
}
