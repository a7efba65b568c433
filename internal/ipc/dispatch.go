package ipc

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Handler processes one inbound internal message and replies through
// respond. respond must be called at most once; calling it with a nil
// content and nil handle still sends an empty echo if the inbound
// message carried a RequestEcho, which is what keeps requesters from
// hanging on an unknown command (spec.md §4.3).
type Handler func(req Message, respond RespondFunc)

// RespondFunc sends a reply to the message a Handler is currently
// processing.
type RespondFunc func(content interface{}, handle *int) error

// Dispatcher runs the internal-message protocol over one Channel: it
// multiplexes inbound internal messages to registered Handlers, resolves
// the reply side of outstanding requests, and forwards anything
// non-internal to a user callback untouched.
type Dispatcher struct {
	channel  *Channel
	pending  *PendingTable
	handlers map[string]Handler
	onUser   func(Message)
	label    string
}

// NewDispatcher builds a Dispatcher. label appears in log lines (e.g.
// "master" or "worker:3") matching the "<pid>,<Master|Worker>" debug
// prefix convention of spec.md §6.
func NewDispatcher(channel *Channel, pending *PendingTable, label string, onUser func(Message)) *Dispatcher {
	return &Dispatcher{
		channel:  channel,
		pending:  pending,
		handlers: make(map[string]Handler),
		onUser:   onUser,
		label:    label,
	}
}

// Handle registers the handler for a bare (unprefixed) command.
func (d *Dispatcher) Handle(cmd string, h Handler) {
	d.handlers[cmd] = h
}

// Run drains the channel until it closes, dispatching every message.
// It is meant to run in its own goroutine, the process's single dispatch
// loop for this peer (spec.md §5).
func (d *Dispatcher) Run() error {
	for {
		msg, err := d.channel.Recv()
		if err != nil {
			return err
		}
		d.dispatch(msg)
	}
}

func (d *Dispatcher) dispatch(msg Message) {
	if !IsInternal(msg.Cmd) {
		if d.onUser != nil {
			d.onUser(msg)
		}
		return
	}

	if msg.QueryEcho != "" {
		resolved := d.pending.Resolve(msg.QueryEcho, Reply{Content: msg.Content, Handle: msg.Handle})
		if !resolved {
			log.Debug().Str("peer", d.label).Str("token", msg.QueryEcho).Msg("ipc: dropped unsolicited echo")
		}
	}

	bare := Bare(msg.Cmd)
	h, ok := d.handlers[bare]

	respond := func(content interface{}, handle *int) error {
		if msg.RequestEcho == "" {
			return nil
		}
		raw, err := Encode(content)
		if err != nil {
			return fmt.Errorf("ipc: failed to encode reply to %q: %w", bare, err)
		}
		return d.channel.Send(Message{
			Cmd:      Internalize(bare),
			QueryEcho: msg.RequestEcho,
			Content:  raw,
			Handle:   handle,
		})
	}

	if !ok {
		if err := respond(nil, nil); err != nil {
			log.Debug().Str("peer", d.label).Str("cmd", bare).Err(err).Msg("ipc: failed to send empty echo")
		}
		return
	}

	h(msg, respond)
}

// Field selects which Message field an outbound request's payload is
// encoded into, since the reserved fields are distinguished by name
// rather than by position (spec.md §6).
type Field int

const (
	FieldContent Field = iota
	FieldArgs
	FieldAddress
)

// SendRequest sends an internal message carrying a fresh request token
// and blocks for its echo. The pending table passed to NewDispatcher's
// owner must be the same one used to resolve incoming echoes.
func (d *Dispatcher) SendRequest(cmd string, field Field, payload interface{}, handle *int) (Reply, error) {
	token, replyCh := d.pending.NextToken()

	raw, err := Encode(payload)
	if err != nil {
		d.pending.Cancel(token)
		return Reply{}, fmt.Errorf("ipc: failed to encode request %q: %w", cmd, err)
	}

	msg := Message{Cmd: Internalize(cmd), RequestEcho: token, Handle: handle}
	switch field {
	case FieldAddress:
		msg.Address = raw
	case FieldArgs:
		msg.Args = raw
	default:
		msg.Content = raw
	}

	if err := d.channel.Send(msg); err != nil {
		d.pending.Cancel(token)
		return Reply{}, err
	}

	reply := <-replyCh
	return reply, nil
}

// SendNotify sends a one-way internal message with no request token.
func (d *Dispatcher) SendNotify(cmd string, field Field, payload interface{}, handle *int) error {
	raw, err := Encode(payload)
	if err != nil {
		return fmt.Errorf("ipc: failed to encode notification %q: %w", cmd, err)
	}
	msg := Message{Cmd: Internalize(cmd), Handle: handle}
	switch field {
	case FieldAddress:
		msg.Address = raw
	case FieldArgs:
		msg.Args = raw
	default:
		msg.Content = raw
	}
	return d.channel.Send(msg)
}

// SendUser sends a non-internal message, surfaced on the peer as a
// "message" event.
func (d *Dispatcher) SendUser(content interface{}) error {
	raw, err := Encode(content)
	if err != nil {
		return fmt.Errorf("ipc: failed to encode user message: %w", err)
	}
	return d.channel.Send(Message{Cmd: "message", Content: raw})
}
