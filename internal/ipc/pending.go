package ipc

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Reply is what a continuation receives when its echo arrives: the
// handler's content payload and, if present, a duplicated OS handle.
type Reply struct {
	Content RawValue
	Handle  *int
}

// PendingTable tracks outstanding requests for one side of one worker's
// channel, keyed by the "<workerId>:<seq>" token spec.md fixes. Entries
// are removed exactly once, on echo receipt — never on timeout, since the
// core defines none (spec.md §5).
type PendingTable struct {
	workerID int
	seq      uint64

	mu      sync.Mutex
	pending map[string]chan Reply
}

// NewPendingTable builds a table that mints tokens under workerID.
func NewPendingTable(workerID int) *PendingTable {
	return &PendingTable{
		workerID: workerID,
		pending:  make(map[string]chan Reply),
	}
}

// NextToken allocates a request token and registers a one-shot channel
// for its reply. The caller must eventually receive from the returned
// channel (it is never closed without a value; Cancel should be used if
// the caller gives up, e.g. on channel teardown).
func (t *PendingTable) NextToken() (string, <-chan Reply) {
	n := atomic.AddUint64(&t.seq, 1)
	token := fmt.Sprintf("%d:%d", t.workerID, n)

	ch := make(chan Reply, 1)
	t.mu.Lock()
	t.pending[token] = ch
	t.mu.Unlock()

	return token, ch
}

// Resolve delivers a reply to the continuation registered under token.
// It reports whether a continuation was found; an unmatched token (an
// echo with no matching request, or a duplicate echo) is dropped per
// spec.md §3's invariant that every token is used by exactly one reply.
func (t *PendingTable) Resolve(token string, reply Reply) bool {
	t.mu.Lock()
	ch, ok := t.pending[token]
	if ok {
		delete(t.pending, token)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	ch <- reply
	return true
}

// Cancel drops a pending token without invoking its continuation, for
// callers that abandon a request (e.g. the channel is being torn down).
func (t *PendingTable) Cancel(token string) {
	t.mu.Lock()
	delete(t.pending, token)
	t.mu.Unlock()
}

// Len reports the number of outstanding requests, for tests and
// diagnostics.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
