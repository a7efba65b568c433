package listener

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcquireDedupesByFingerprint(t *testing.T) {
	r := NewRegistry()
	defer r.Release()

	args := Args{Network: "tcp", Address: "127.0.0.1:0"}

	e1, created1, err := r.Acquire(args)
	require.NoError(t, err)
	require.True(t, created1)

	e2, created2, err := r.Acquire(args)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Same(t, e1, e2)

	assert.Equal(t, 1, r.Len())
}

func TestRegistryAcquireDistinguishesBacklog(t *testing.T) {
	r := NewRegistry()
	defer r.Release()

	e1, _, err := r.Acquire(Args{Network: "tcp", Address: "127.0.0.1:0", Backlog: 16})
	require.NoError(t, err)
	e2, _, err := r.Acquire(Args{Network: "tcp", Address: "127.0.0.1:0", Backlog: 32})
	require.NoError(t, err)

	assert.NotSame(t, e1, e2)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryAcquireConcurrentQueuesBehindInFlightBind(t *testing.T) {
	r := NewRegistry()
	defer r.Release()

	args := Args{Network: "tcp", Address: "127.0.0.1:0"}

	const n = 8
	var wg sync.WaitGroup
	entries := make([]*Entry, n)
	created := make([]bool, n)
	errs := make([]error, n)

	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			entries[i], created[i], errs[i] = r.Acquire(args)
		}()
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, entries[i])
		assert.Same(t, entries[0], entries[i])
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReleaseClosesEntries(t *testing.T) {
	r := NewRegistry()
	e, _, err := r.Acquire(Args{Network: "tcp", Address: "127.0.0.1:0"})
	require.NoError(t, err)

	r.Release()
	assert.Equal(t, 0, r.Len())

	// The entry's listener is closed, so Accept fails at once.
	_, err = e.Listener.Accept()
	assert.Error(t, err)
}
