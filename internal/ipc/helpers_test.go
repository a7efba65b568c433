package ipc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// osPipe wraps os.Pipe for tests, registering both ends for cleanup.
func osPipe(t *testing.T) (r *os.File, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	return r, w
}
