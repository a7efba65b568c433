package cluster

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/brnsv/wcluster/internal/clustermetrics"
	"github.com/brnsv/wcluster/internal/ipc"
	"github.com/brnsv/wcluster/internal/listener"
	"github.com/brnsv/wcluster/internal/spawn"
)

// Supervisor is the master-role half of the protocol: it owns the
// workers map, the shared-listener registry, and the settings object
// spec.md §3 describes. One Supervisor value per process, constructed at
// startup and parameterized by its collaborators, per the "prefer a
// single object over module-level singletons" guidance of spec.md §9.
type Supervisor struct {
	mu          sync.Mutex
	isMaster    bool
	settingsSet bool
	settings    Settings
	nextID      int
	workers     map[int]*WorkerHandle
	registry    *listener.Registry
	events      *emitter
	metrics     *clustermetrics.Metrics
}

// NewSupervisor constructs an empty Supervisor. metrics may be nil. The
// process's role is captured once, at construction, via DetectRole: every
// master-only operation below asserts against it, so a process DetectRole
// identified as a worker that mistakenly constructs and drives a
// Supervisor fails fast instead of silently forking children of its own.
func NewSupervisor(metrics *clustermetrics.Metrics) *Supervisor {
	isMaster, _, _ := DetectRole()
	return &Supervisor{
		isMaster: isMaster,
		workers:  make(map[int]*WorkerHandle),
		registry: listener.NewRegistry(),
		events:   newEmitter(),
		metrics:  metrics,
	}
}

// Events returns the supervisor-wide lifecycle event stream (setup,
// fork, online, listening, disconnect, exit — spec.md §6).
func (s *Supervisor) Events() <-chan Event {
	return s.events.Subscribe()
}

// SetupMaster installs settings. It is idempotent: only the first call
// has any effect, matching spec.md §4.2 exactly.
func (s *Supervisor) SetupMaster(opts Settings) {
	MustBeMaster(s.isMaster)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settingsSet {
		return
	}

	merged := defaultSettings()
	if opts.Exec != "" {
		merged.Exec = opts.Exec
	}
	if opts.ExecArgv != nil {
		merged.ExecArgv = append([]string{}, opts.ExecArgv...)
	}
	if opts.Args != nil {
		merged.Args = append([]string{}, opts.Args...)
	}
	merged.Silent = opts.Silent

	s.settings = merged
	s.settingsSet = true

	go s.events.emit(Event{Kind: EventSetup})
}

// Settings returns the read-only settings snapshot captured at first
// SetupMaster (or the would-be defaults if it hasn't been called yet).
func (s *Supervisor) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.settingsSet {
		return defaultSettings()
	}
	return s.settings
}

// Workers returns a snapshot of the live workers map. A worker is
// present iff it is neither dead nor fully cleaned up (spec.md §3).
func (s *Supervisor) Workers() map[int]*WorkerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]*WorkerHandle, len(s.workers))
	for id, h := range s.workers {
		out[id] = h
	}
	return out
}

// Fork spawns a worker. It triggers SetupMaster with defaults if not yet
// called, matching spec.md §4.2's boundary behavior, allocates the next
// id, and spawns a child whose environment is this process's environment
// merged with the role marker and then with envOverrides (later keys
// win, spec.md §4.2).
func (s *Supervisor) Fork(envOverrides map[string]string) (*WorkerHandle, error) {
	MustBeMaster(s.isMaster)

	s.mu.Lock()
	if !s.settingsSet {
		s.mu.Unlock()
		s.SetupMaster(Settings{})
		s.mu.Lock()
	}
	settings := s.settings
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	env := mergeEnv(os.Environ(), map[string]string{
		uniqueIDEnv:  fmt.Sprintf("%d", id),
		parentPIDEnv: fmt.Sprintf("%d", os.Getpid()),
	})
	env = mergeEnv(env, envOverrides)

	proc, err := spawn.Spawn(spawn.Config{
		Exec:     settings.Exec,
		ExecArgv: settings.ExecArgv,
		Args:     settings.Args,
		Env:      env,
		Silent:   settings.Silent,
	})
	if err != nil {
		return nil, fmt.Errorf("cluster: fork failed: %w", err)
	}

	h := &WorkerHandle{
		id:      id,
		process: proc,
		pending: ipc.NewPendingTable(id),
		events:  newEmitter(),
	}
	h.dialog = ipc.NewDispatcher(proc.Channel(), h.pending, fmt.Sprintf("worker:%d", id), func(msg ipc.Message) {
		s.handleUserMessage(h, msg)
	})
	s.registerHandlers(h)

	s.mu.Lock()
	s.workers[id] = h
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ForksTotal.Inc()
		s.metrics.WorkersLive.Set(float64(len(s.Workers())))
	}

	go func() {
		if err := h.dialog.Run(); err != nil {
			log.Debug().Int("worker", id).Err(err).Msg("cluster: worker channel closed")
		}
		s.onChannelClosed(h)
	}()
	go func() {
		<-proc.Died()
		s.onProcessExit(h)
	}()

	// Emitted asynchronously, not synchronously within Fork (spec.md §4.2).
	go s.events.emit(Event{Kind: EventFork, WorkerID: id})

	return h, nil
}

func (s *Supervisor) handleUserMessage(h *WorkerHandle, msg ipc.Message) {
	var payload interface{}
	_ = ipc.Decode(msg.Content, &payload)
	ev := Event{Kind: EventMessage, WorkerID: h.id, Message: payload}
	h.events.emit(ev)
	s.events.emit(ev)
}

func (s *Supervisor) registerHandlers(h *WorkerHandle) {
	h.dialog.Handle(ipc.CmdOnline, func(req ipc.Message, respond ipc.RespondFunc) {
		h.setState(StateOnline)
		ev := Event{Kind: EventOnline, WorkerID: h.id}
		h.events.emit(ev)
		s.events.emit(ev)
		respond(nil, nil)
	})

	h.dialog.Handle(ipc.CmdQueryServer, func(req ipc.Message, respond ipc.RespondFunc) {
		var args listener.Args
		if err := ipc.Decode(req.Args, &args); err != nil {
			respond(map[string]string{"error": err.Error()}, nil)
			return
		}

		entry, created, err := s.registry.Acquire(args)
		if err != nil {
			respond(map[string]string{"error": err.Error()}, nil)
			return
		}
		if created && s.metrics != nil {
			s.metrics.ListenerBinds.Inc()
		}

		fd := entry.Fd()
		respond(nil, &fd)
	})

	h.dialog.Handle(ipc.CmdListening, func(req ipc.Message, respond ipc.RespondFunc) {
		var addr string
		_ = ipc.Decode(req.Address, &addr)
		h.setState(StateListening)
		ev := Event{Kind: EventListening, WorkerID: h.id, Address: addr}
		h.events.emit(ev)
		s.events.emit(ev)
		respond(nil, nil)
	})

	h.dialog.Handle(ipc.CmdSuicide, func(req ipc.Message, respond ipc.RespondFunc) {
		h.setSuicide(true)
		respond(nil, nil)
	})
}

// DisconnectWorker asks one worker to shut down gracefully: sets suicide
// and sends the disconnect notification (spec.md §4.7's master-side
// invocation). No echo is required at the master; the worker's own
// disconnect procedure runs asynchronously and eventually closes the
// channel.
func (s *Supervisor) DisconnectWorker(h *WorkerHandle) error {
	MustBeMaster(s.isMaster)

	h.setSuicide(true)
	return h.dialog.SendNotify(ipc.CmdDisconnect, ipc.FieldContent, nil, nil)
}

// Destroy hard-terminates one worker: sets suicide, closes the master's
// side of the channel, and — once that closure is observed — sends the
// kill signal (spec.md §4.7's master-side destroy).
func (s *Supervisor) Destroy(h *WorkerHandle) {
	MustBeMaster(s.isMaster)

	h.setSuicide(true)
	h.markKillOnDisconnect()
	if err := h.process.CloseChannel(); err != nil {
		// Channel already gone (process already dead): kill immediately.
		h.process.Kill()
	}
	if s.metrics != nil {
		s.metrics.DestroysTotal.Inc()
	}
}

func (s *Supervisor) onChannelClosed(h *WorkerHandle) {
	ev := Event{Kind: EventDisconnect, WorkerID: h.id, Suicide: h.Suicide()}
	h.events.emit(ev)
	s.events.emit(ev)

	s.prepareExit(h, StateDisconnected)

	if h.shouldKillOnDisconnect() {
		h.process.Signal(syscall.SIGTERM)
	}
}

func (s *Supervisor) onProcessExit(h *WorkerHandle) {
	state, _ := h.process.ExitState()

	code := 0
	sig := ""
	if state != nil {
		if state.Exited() {
			code = state.ExitCode()
		} else if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sig = ws.Signal().String()
		}
	}

	ev := Event{Kind: EventExit, WorkerID: h.id, ExitCode: code, Signal: sig, Suicide: h.Suicide()}
	h.events.emit(ev)
	s.events.emit(ev)

	s.prepareExit(h, StateDead)
}

// prepareExit sets state and removes the worker from the workers map.
// Safe to call twice: map deletion of an absent key is a no-op, which is
// all spec.md §4.7 requires here (Go's zero-value bool already makes the
// "coerce suicide to false if never set" note moot).
func (s *Supervisor) prepareExit(h *WorkerHandle, newState State) {
	h.setState(newState)

	s.mu.Lock()
	delete(s.workers, h.id)
	n := len(s.workers)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.WorkersLive.Set(float64(n))
		if newState == StateDisconnected {
			s.metrics.DisconnectsTotal.Inc()
		}
	}
}

// Disconnect gracefully shuts down every live worker, then releases the
// shared-listener registry and invokes cb exactly once (spec.md §4.7).
// With zero workers it fires immediately.
func (s *Supervisor) Disconnect(cb func()) {
	MustBeMaster(s.isMaster)

	handles := make([]*WorkerHandle, 0, len(s.Workers()))
	for _, h := range s.Workers() {
		handles = append(handles, h)
	}

	if len(handles) == 0 {
		s.registry.Release()
		if cb != nil {
			cb()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(handles))
	for _, h := range handles {
		h := h
		go func() {
			defer wg.Done()
			s.DisconnectWorker(h)
			<-h.process.Died()
		}()
	}

	go func() {
		wg.Wait()
		s.registry.Release()
		if cb != nil {
			cb()
		}
	}()
}

// mergeEnv appends overrides onto base, later keys winning because
// os.Environ-style KEY=VALUE lookups take the last match (spec.md §4.2).
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := append([]string{}, base...)
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}
