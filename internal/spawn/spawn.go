// Package spawn is the process-spawning primitive spec.md §1/§6 treats as
// an external collaborator: it forks a child running exec with
// execArgv+args, the given environment, and a duplex message+handle
// channel established via inherited pipe descriptors. Grounded on
// github.com/porkg/porkg's internal/worker/linux.go New/monitorExit/Close,
// with the teacher's PID/mount/user-namespace isolation (CLONE_NEWPID,
// CLONE_NEWNS, CLONE_NEWUSER and the uid/gid mappings that go with it)
// dropped: spec.md's worker is a cooperating peer sharing the
// supervisor's listening sockets, not a sandboxed job, and no part of
// spec.md calls for container-style isolation.
package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/brnsv/wcluster/internal/ipc"
)

// Config describes one child to spawn, the Go shape of spec.md §3's
// Settings plus per-call environment overrides.
type Config struct {
	Exec     string
	ExecArgv []string
	Args     []string
	Env      []string
	Silent   bool
}

// Process is a spawned child: its OS handle, its IPC channel, and its
// exit-state tracking.
type Process struct {
	cmd       *exec.Cmd
	channel   *ipc.Channel
	send      *os.File
	recv      *os.File
	exitState atomic.Pointer[os.ProcessState]
	exitErr   atomic.Pointer[error]
	died      chan struct{}
}

// Spawn forks and execs cfg, wiring a pipe pair into the child's extra
// file descriptors for the duplex message channel exactly as the
// teacher's socketPair()+cmd.ExtraFiles does.
func Spawn(cfg Config) (*Process, error) {
	recv, childSend, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("spawn: failed to create receive pipe: %w", err)
	}

	childRecv, send, err := os.Pipe()
	if err != nil {
		childSend.Close()
		recv.Close()
		return nil, fmt.Errorf("spawn: failed to create send pipe: %w", err)
	}

	args := append(append([]string{}, cfg.ExecArgv...), cfg.Args...)
	cmd := exec.Command(cfg.Exec, args...)
	cmd.Env = cfg.Env
	cmd.ExtraFiles = []*os.File{childRecv, childSend}

	if cfg.Silent {
		cmd.Stdin = nil
		cmd.Stdout = nil
		cmd.Stderr = nil
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		send.Close()
		recv.Close()
		childSend.Close()
		childRecv.Close()
		return nil, fmt.Errorf("spawn: failed to start %s: %w", cfg.Exec, err)
	}

	childSend.Close()
	childRecv.Close()

	p := &Process{
		cmd:     cmd,
		channel: ipc.Open(send, recv),
		send:    send,
		recv:    recv,
		died:    make(chan struct{}),
	}
	go p.monitorExit()

	log.Info().Int("pid", cmd.Process.Pid).Str("exec", cfg.Exec).Msg("spawn: started worker process")
	return p, nil
}

// Reenter is called at process start by a child produced by Spawn,
// before any application code runs, to recover its channel from the
// inherited file descriptors 3 and 4. It does not check that those
// descriptors are open: os.NewFile never returns nil for them, so the
// second result is always true.
func Reenter() (*ipc.Channel, bool) {
	recv := os.NewFile(3, "wcluster-recv")
	send := os.NewFile(4, "wcluster-send")
	if recv == nil || send == nil {
		return nil, false
	}
	return ipc.Open(send, recv), true
}

// Channel returns the spawned process's IPC channel.
func (p *Process) Channel() *ipc.Channel { return p.channel }

// Pid returns the spawned process's OS process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Died returns a channel closed once the process has exited.
func (p *Process) Died() <-chan struct{} { return p.died }

func (p *Process) monitorExit() {
	defer close(p.died)

	state, err := p.cmd.Process.Wait()
	p.exitErr.Store(&err)
	p.exitState.Store(state)

	if state == nil {
		return
	}
	if state.Success() {
		log.Info().Int("pid", p.cmd.Process.Pid).Msg("spawn: worker process exited normally")
	} else {
		log.Warn().Int("pid", p.cmd.Process.Pid).Str("status", state.String()).Msg("spawn: worker process exited")
	}
}

// ExitState returns the process's terminal state once it has exited;
// callers should select on Died() first.
func (p *Process) ExitState() (*os.ProcessState, error) {
	if err := p.exitErr.Load(); err != nil && *err != nil {
		return nil, *err
	}
	return p.exitState.Load(), nil
}

// Signal delivers sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Kill forcibly terminates the process.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// CloseChannel closes this process's side of the IPC pipe pair, the
// "close the channel" step of spec.md §4.7's destroy/disconnect
// procedures. It does not itself terminate the process.
func (p *Process) CloseChannel() error {
	errSend := p.send.Close()
	errRecv := p.recv.Close()
	if errSend != nil {
		return errSend
	}
	return errRecv
}
