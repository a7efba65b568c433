package ipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newDispatcherPair(t *testing.T) (a, b *Dispatcher) {
	t.Helper()
	ca, cb := pipePair(t)

	aUser := make(chan Message, 8)
	bUser := make(chan Message, 8)

	a = NewDispatcher(ca, NewPendingTable(0), "a", func(m Message) { aUser <- m })
	b = NewDispatcher(cb, NewPendingTable(1), "b", func(m Message) { bUser <- m })

	go a.Run()
	go b.Run()

	return a, b
}

func TestDispatcherRequestReplyRoundTrip(t *testing.T) {
	a, b := newDispatcherPair(t)

	type pong struct {
		N int `msgpack:"n"`
	}

	b.Handle("ping", func(req Message, respond RespondFunc) {
		respond(pong{N: 42}, nil)
	})

	reply, err := a.SendRequest("ping", FieldContent, nil, nil)
	require.NoError(t, err)

	var p pong
	require.NoError(t, Decode(reply.Content, &p))
	require.Equal(t, 42, p.N)
}

func TestDispatcherUnknownCommandGetsEmptyEcho(t *testing.T) {
	a, _ := newDispatcherPair(t)

	reply, err := a.SendRequest("nonexistent", FieldContent, nil, nil)
	require.NoError(t, err)
	require.Empty(t, reply.Content)
	require.Nil(t, reply.Handle)
}

func TestDispatcherNonInternalGoesToUserCallback(t *testing.T) {
	received := make(chan Message, 1)

	ca, cb := pipePair(t)
	d1 := NewDispatcher(ca, NewPendingTable(0), "x", nil)
	d2 := NewDispatcher(cb, NewPendingTable(1), "y", func(m Message) { received <- m })
	go d1.Run()
	go d2.Run()

	require.NoError(t, d1.SendUser("hello"))

	select {
	case msg := <-received:
		var s string
		require.NoError(t, Decode(msg.Content, &s))
		require.Equal(t, "hello", s)
	case <-time.After(2 * time.Second):
		t.Fatal("user message not delivered")
	}
}
