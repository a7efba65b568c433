package listener

import (
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Entry is a single shared-listener registry row: the fingerprint's one
// kernel socket, owned by the master for the supervisor's lifetime
// (spec.md §3).
type Entry struct {
	Args     Args
	Listener net.Listener
	File     *os.File // kept open so its fd number stays valid for handle.Duplicator.Dup
	Addr     net.Addr
}

// Fd returns the raw file descriptor number of the bound socket in the
// master's own process table, the value placed on the wire in
// internal/ipc.Message.Handle for a worker to duplicate.
func (e *Entry) Fd() int {
	return int(e.File.Fd())
}

// Registry deduplicates bind requests by fingerprint. The first request
// for a fingerprint triggers the real bind; every request for the same
// fingerprint — including ones arriving while the first bind is still in
// flight — resolves to the same Entry. This closes the race spec.md §9
// flags as a latent bug in the reference: concurrent same-key requests
// are queued and flushed together once the bind completes, rather than
// answered immediately with a not-yet-listening handle.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	waiters map[string][]chan result
}

type result struct {
	entry *Entry
	err   error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		waiters: make(map[string][]chan result),
	}
}

// Acquire returns the Entry for args, binding a new kernel socket only if
// no entry (and no in-flight bind) exists yet for its fingerprint. The
// returned bool is true only for the caller that actually performed the
// bind.
func (r *Registry) Acquire(args Args) (*Entry, bool, error) {
	fp, err := Fingerprint(args)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	if e, ok := r.entries[fp]; ok {
		r.mu.Unlock()
		return e, false, nil
	}

	if _, binding := r.waiters[fp]; binding {
		ch := make(chan result, 1)
		r.waiters[fp] = append(r.waiters[fp], ch)
		r.mu.Unlock()
		res := <-ch
		return res.entry, false, res.err
	}

	// We are the first requester: mark the fingerprint as binding so
	// concurrent Acquire calls queue behind us instead of racing ahead
	// of a not-yet-listening socket.
	r.waiters[fp] = nil
	r.mu.Unlock()

	entry, err := bind(args)

	r.mu.Lock()
	waiters := r.waiters[fp]
	delete(r.waiters, fp)
	if err == nil {
		r.entries[fp] = entry
	}
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- result{entry: entry, err: err}
	}

	return entry, err == nil, err
}

// Release closes and drops every entry, for supervisor.disconnect
// (spec.md §4.7).
func (r *Registry) Release() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.Listener.Close()
		e.File.Close()
	}
}

// Len reports the number of bound fingerprints, for tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func bind(args Args) (*Entry, error) {
	network := args.Network
	if network == "" {
		network = "tcp"
	}

	domain := unix.AF_INET
	typ := unix.SOCK_STREAM
	fd, err := unix.Socket(domain, typ, 0)
	if err != nil {
		return nil, fmt.Errorf("listener: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: SO_REUSEPORT: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: SO_REUSEADDR: %w", err)
	}

	sa, err := parseSockaddr(args.Address)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: bind %s: %w", args.Address, err)
	}

	backlog := args.Backlog
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: listen %s: %w", args.Address, err)
	}

	file := os.NewFile(uintptr(fd), fmt.Sprintf("shared-listener:%s", args.Address))
	ln, err := net.FileListener(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("listener: wrap fd: %w", err)
	}

	return &Entry{
		Args:     args,
		Listener: ln,
		File:     file,
		Addr:     ln.Addr(),
	}, nil
}

func parseSockaddr(address string) (unix.Sockaddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listener: invalid address %q: %w", address, err)
	}

	var ip [4]byte
	if tcpAddr.IP != nil {
		v4 := tcpAddr.IP.To4()
		if v4 == nil {
			return nil, fmt.Errorf("listener: only IPv4 is supported, got %q", tcpAddr.IP)
		}
		copy(ip[:], v4)
	}

	return &unix.SockaddrInet4{Port: tcpAddr.Port, Addr: ip}, nil
}
