package handle

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestOpenRejectsNonexistentPid(t *testing.T) {
	// pid 0 is never a valid target for pidfd_open; this should fail
	// whether the failure is EINVAL (no such process) or the syscall
	// being unavailable on this kernel, either way proving Open
	// surfaces the failure instead of silently returning a dud
	// Duplicator.
	_, err := Open(0)
	assert.Error(t, err)
}

// fakeDuplicator stands in for a real pidfd-backed Duplicator in tests:
// pidfd_getfd requires a second real process, but the contract Dup must
// satisfy — the returned fd refers to the same open file description as
// remoteFd, not merely the same file — can be exercised within a single
// process via plain unix.Dup, which gives the identical guarantee.
type fakeDuplicator struct{}

func (fakeDuplicator) Dup(remoteFd int) (int, error) {
	return unix.Dup(remoteFd)
}

func (fakeDuplicator) Close() error { return nil }

func TestFakeDuplicatorSharesOpenFileDescription(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var d Duplicator = fakeDuplicator{}
	defer d.Close()

	dupFd, err := d.Dup(int(w.Fd()))
	require.NoError(t, err)
	defer unix.Close(dupFd)

	msg := []byte("hello")
	n, err := unix.Write(dupFd, msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	buf := make([]byte, len(msg))
	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	require.Equal(t, msg, buf)
}
