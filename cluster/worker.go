package cluster

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/brnsv/wcluster/internal/handle"
	"github.com/brnsv/wcluster/internal/ipc"
	"github.com/brnsv/wcluster/internal/listener"
)

// Worker is the worker-role singleton: the process's own record, plus
// the local listener map spec.md §3 calls the "Worker-side listener
// entry", used only to enumerate listeners during graceful disconnect.
type Worker struct {
	mu        sync.Mutex
	isWorker  bool
	id        int
	idValid   bool
	parentPID int
	channel   *ipc.Channel
	dialog    *ipc.Dispatcher
	pending   *ipc.PendingTable

	state   State
	suicide bool

	listenersMu sync.Mutex
	listeners   map[string]net.Listener

	dup     handle.Duplicator
	dupOnce sync.Once
	dupErr  error

	events     *emitter
	exitOnce   sync.Once
	exitFunc   func(code int)
	closedCh   chan struct{}
	closedOnce sync.Once
}

// NewWorker wraps channel (the process's own end of the IPC pipe pair,
// typically from internal/spawn.Reenter) into a Worker. id is nil when
// the role marker failed to parse (spec.md §4.1: observable, not fatal).
// The process's role is captured once, via DetectRole, independently of
// id: every worker-only operation below asserts against it, so a process
// DetectRole identified as the master that mistakenly constructs and
// drives a Worker fails fast instead of silently sending queryServer
// requests to itself.
func NewWorker(id *int, parentPID int, channel *ipc.Channel) *Worker {
	_, isWorker, _ := DetectRole()
	w := &Worker{
		isWorker:  isWorker,
		parentPID: parentPID,
		channel:   channel,
		listeners: make(map[string]net.Listener),
		events:    newEmitter(),
		exitFunc:  os.Exit,
		closedCh:  make(chan struct{}),
	}
	if id != nil {
		w.id = *id
		w.idValid = true
	}
	w.pending = ipc.NewPendingTable(w.id)
	w.dialog = ipc.NewDispatcher(channel, w.pending, fmt.Sprintf("worker:%d", w.id), w.handleUserMessage)
	w.dialog.Handle(ipc.CmdDisconnect, func(req ipc.Message, respond ipc.RespondFunc) {
		respond(nil, nil)
		go w.Disconnect()
	})
	return w
}

// ID returns the worker's id and whether it was parsed successfully.
func (w *Worker) ID() (int, bool) {
	return w.id, w.idValid
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Suicide reports whether exit was initiated intentionally.
func (w *Worker) Suicide() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suicide
}

// Events returns the worker's own lifecycle event stream.
func (w *Worker) Events() <-chan Event {
	return w.events.Subscribe()
}

// Send delivers a non-internal message to the master.
func (w *Worker) Send(content interface{}) error {
	return w.dialog.SendUser(content)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) setSuicide(v bool) {
	w.mu.Lock()
	w.suicide = v
	w.mu.Unlock()
}

// Run announces the worker to the master and drains its channel until
// closed. It is meant to run for the lifetime of the process.
func (w *Worker) Run() error {
	MustBeWorker(w.isWorker)

	if err := w.dialog.SendNotify(ipc.CmdOnline, ipc.FieldContent, nil, nil); err != nil {
		w.onChannelClosed()
		return fmt.Errorf("cluster: failed to announce online: %w", err)
	}

	err := w.dialog.Run()
	w.onChannelClosed()
	return err
}

func (w *Worker) handleUserMessage(msg ipc.Message) {
	var payload interface{}
	_ = ipc.Decode(msg.Content, &payload)
	w.events.emit(Event{Kind: EventMessage, Message: payload})
}

// onChannelClosed implements spec.md §4.7's accidental-exit guard: if
// the channel to the master closed and suicide was never set, the
// worker exits 0 so it doesn't linger as an orphan.
func (w *Worker) onChannelClosed() {
	w.setState(StateDisconnected)
	w.events.emit(Event{Kind: EventDisconnect, Suicide: w.Suicide()})
	w.closedOnce.Do(func() { close(w.closedCh) })

	if !w.Suicide() {
		w.exit(0)
	}
}

func (w *Worker) exit(code int) {
	w.exitOnce.Do(func() {
		w.events.emit(Event{Kind: EventExit, ExitCode: code, Suicide: w.Suicide()})
		w.exitFunc(code)
	})
}

// duplicator lazily opens a pidfd on the supervisor, the mechanism
// internal/handle uses to pull a shared-listener fd out of the
// supervisor's table (SPEC_FULL.md §8).
func (w *Worker) duplicator() (handle.Duplicator, error) {
	w.dupOnce.Do(func() {
		w.dup, w.dupErr = handle.Open(w.parentPID)
	})
	return w.dup, w.dupErr
}

// Listen asks the supervisor for a shared listener matching network,
// address and backlog, implementing spec.md §4.6's listen interception.
// The first worker to ask for a given fingerprint causes the supervisor
// to bind a fresh kernel socket; every worker — including this one,
// called again with the same arguments — receives a handle onto the
// same socket.
func (w *Worker) Listen(network, address string, backlog int) (net.Listener, error) {
	MustBeWorker(w.isWorker)

	args := listener.Args{Network: network, Address: address, Backlog: backlog}

	fp, err := listener.Fingerprint(args)
	if err != nil {
		return nil, err
	}

	// A second Listen call with arguments that hash to a fingerprint
	// already held by this worker returns the existing listener instead
	// of asking the supervisor again: duplicating the handle a second
	// time would either leak the first *os.File/net.Listener pair when
	// overwritten below, or require closing it out from under any caller
	// still holding the first return value.
	w.listenersMu.Lock()
	if existing, ok := w.listeners[fp]; ok {
		w.listenersMu.Unlock()
		return existing, nil
	}
	w.listenersMu.Unlock()

	reply, err := w.dialog.SendRequest(ipc.CmdQueryServer, ipc.FieldArgs, args, nil)
	if err != nil {
		return nil, fmt.Errorf("cluster: queryServer failed: %w", err)
	}
	if reply.Handle == nil {
		var errBody struct {
			Error string `msgpack:"error"`
		}
		_ = ipc.Decode(reply.Content, &errBody)
		if errBody.Error != "" {
			return nil, fmt.Errorf("cluster: supervisor failed to bind %s: %s", address, errBody.Error)
		}
		return nil, fmt.Errorf("cluster: supervisor did not return a listener handle for %s", address)
	}

	dup, err := w.duplicator()
	if err != nil {
		return nil, fmt.Errorf("cluster: failed to open duplicator: %w", err)
	}

	localFd, err := dup.Dup(*reply.Handle)
	if err != nil {
		return nil, fmt.Errorf("cluster: failed to duplicate listener handle: %w", err)
	}

	file := os.NewFile(uintptr(localFd), fmt.Sprintf("shared-listener:%s", address))
	ln, err := net.FileListener(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("cluster: failed to wrap listener handle: %w", err)
	}

	w.listenersMu.Lock()
	w.listeners[fp] = ln
	w.listenersMu.Unlock()

	w.setState(StateListening)
	w.events.emit(Event{Kind: EventListening, Address: ln.Addr().String()})

	if err := w.dialog.SendNotify(ipc.CmdListening, ipc.FieldAddress, ln.Addr().String(), nil); err != nil {
		return ln, fmt.Errorf("cluster: failed to notify listening: %w", err)
	}

	return ln, nil
}

// Disconnect runs the worker-side graceful shutdown of spec.md §4.7:
// mark suicide, tell the master (waiting for its echo), close every
// local listener, then close the channel and exit 0.
func (w *Worker) Disconnect() {
	MustBeWorker(w.isWorker)

	w.setSuicide(true)

	if _, err := w.dialog.SendRequest(ipc.CmdSuicide, ipc.FieldContent, nil, nil); err != nil {
		// Channel already gone; fall through to exit below.
	}

	w.listenersMu.Lock()
	listeners := make([]net.Listener, 0, len(w.listeners))
	for _, ln := range w.listeners {
		listeners = append(listeners, ln)
	}
	w.listeners = make(map[string]net.Listener)
	w.listenersMu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(listeners))
	for _, ln := range listeners {
		ln := ln
		go func() {
			defer wg.Done()
			ln.Close()
		}()
	}
	wg.Wait()

	w.channel.Close()
	w.exit(0)
}

// Destroy runs the worker-side hard termination of spec.md §4.7: mark
// suicide, send a one-way-with-ack suicide message, and exit 0 on
// whichever comes first — its echo, or the channel reporting closed.
func (w *Worker) Destroy() {
	MustBeWorker(w.isWorker)

	w.setSuicide(true)

	ackDone := make(chan struct{})
	go func() {
		w.dialog.SendRequest(ipc.CmdSuicide, ipc.FieldContent, nil, nil)
		close(ackDone)
	}()

	go func() {
		select {
		case <-ackDone:
		case <-w.closedCh:
		}
		w.exit(0)
	}()
}
