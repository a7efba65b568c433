package cluster

import (
	"sync"

	"github.com/brnsv/wcluster/internal/ipc"
	"github.com/brnsv/wcluster/internal/spawn"
)

// WorkerHandle is the master's record for one live worker, spec.md §3's
// "Worker record": identity, process handle, state, suicide flag, and
// its event stream. It is held by the Supervisor that spawned it; other
// code only ever sees it through Supervisor.Workers() or a *WorkerHandle
// the Supervisor hands back from Fork. The handle's dispatcher callbacks
// are closures over the Supervisor, so the handle's event wiring does
// hold a reference back to it.
type WorkerHandle struct {
	mu sync.Mutex

	id      int
	process *spawn.Process
	dialog  *ipc.Dispatcher
	pending *ipc.PendingTable

	state   State
	suicide bool

	// killOnDisconnect is set only by Supervisor.Destroy: it tells
	// onChannelClosed to send the kill signal once the master's side
	// of the channel reports closed, distinguishing a hard destroy
	// from a graceful Disconnect (both set suicide=true up front, but
	// only destroy needs a follow-up signal).
	killOnDisconnect bool

	events *emitter
}

// ID returns the worker's supervisor-assigned id.
func (w *WorkerHandle) ID() int { return w.id }

// State returns the worker's current lifecycle state.
func (w *WorkerHandle) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Suicide reports whether the worker's exit/disconnect was initiated
// intentionally via Destroy or Disconnect.
func (w *WorkerHandle) Suicide() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suicide
}

// Events returns this worker's lifecycle event stream.
func (w *WorkerHandle) Events() <-chan Event {
	return w.events.Subscribe()
}

// Send delivers a non-internal message to the worker.
func (w *WorkerHandle) Send(content interface{}) error {
	return w.dialog.SendUser(content)
}

func (w *WorkerHandle) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *WorkerHandle) setSuicide(v bool) {
	w.mu.Lock()
	w.suicide = v
	w.mu.Unlock()
}

func (w *WorkerHandle) markKillOnDisconnect() {
	w.mu.Lock()
	w.killOnDisconnect = true
	w.mu.Unlock()
}

func (w *WorkerHandle) shouldKillOnDisconnect() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.killOnDisconnect
}
