package ipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipePair returns two Channels wired back to back over os.Pipe, the
// same harness a spawned worker's channel is built from minus the
// actual subprocess.
func pipePair(t *testing.T) (a, b *Channel) {
	t.Helper()

	ar, bw := osPipe(t)
	br, aw := osPipe(t)

	a = Open(aw, ar)
	b = Open(bw, br)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	a, b := pipePair(t)

	require.NoError(t, a.Send(Message{Cmd: "hello", RequestEcho: "1:1"}))

	msg, err := b.Recv()
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Cmd)
	require.Equal(t, "1:1", msg.RequestEcho)
}

func TestChannelRecvReturnsEOFAfterClose(t *testing.T) {
	a, b := pipePair(t)

	require.NoError(t, a.Close())

	done := make(chan error, 1)
	go func() {
		_, err := b.Recv()
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not observe peer close")
	}
}

func TestChannelHandleFieldRoundTrip(t *testing.T) {
	a, b := pipePair(t)

	h := 7
	require.NoError(t, a.Send(Message{Cmd: "queryServer", Handle: &h}))

	msg, err := b.Recv()
	require.NoError(t, err)
	require.NotNil(t, msg.Handle)
	require.Equal(t, 7, *msg.Handle)
}
