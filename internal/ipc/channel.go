package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Channel is a framed, bidirectional Message stream over a pair of byte
// streams (typically the two ends of a pipe created at process spawn).
// Framing is a 4-byte big-endian length prefix followed by a
// msgpack-encoded Message, the same length-prefix-plus-payload shape as
// the teacher's internal/worker/proto package, generalized from a
// multi-type tag table to a single envelope type.
type Channel struct {
	order  binary.ByteOrder
	writer io.Writer
	reader chan readResult
	closer []io.Closer
}

type readResult struct {
	msg Message
	err error
}

// Open starts the background read loop and returns a ready Channel.
// Writer and reader may be the same *os.File (a bidirectional pipe) or
// distinct ends of two pipes, matching the spawn primitive's choice. If
// writer/reader implement io.Closer, Close will close them.
func Open(writer io.Writer, reader io.Reader) *Channel {
	c := &Channel{
		order:  binary.BigEndian,
		writer: writer,
		reader: make(chan readResult),
	}
	if wc, ok := writer.(io.Closer); ok {
		c.closer = append(c.closer, wc)
	}
	if rc, ok := reader.(io.Closer); ok {
		c.closer = append(c.closer, rc)
	}
	go c.recvLoop(reader)
	return c
}

// Send writes one message to the peer.
func (c *Channel) Send(msg Message) error {
	buf, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: failed to marshal message: %w", err)
	}

	if len(buf) > math.MaxUint32 {
		return fmt.Errorf("ipc: message too large: %d bytes", len(buf))
	}

	header := make([]byte, 4)
	c.order.PutUint32(header, uint32(len(buf)))

	if err := c.writeAll(header); err != nil {
		return err
	}
	return c.writeAll(buf)
}

// Recv blocks for the next message from the peer. It returns io.EOF
// (wrapped) once the peer's side of the channel has closed.
func (c *Channel) Recv() (Message, error) {
	r, ok := <-c.reader
	if !ok {
		return Message{}, io.EOF
	}
	return r.msg, r.err
}

// Close closes the underlying byte streams, if they support it.
func (c *Channel) Close() error {
	var firstErr error
	for _, cl := range c.closer {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Channel) writeAll(data []byte) error {
	for len(data) != 0 {
		n, err := c.writer.Write(data)
		if err != nil {
			return fmt.Errorf("ipc: failed to write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("ipc: write stalled: stream closed")
		}
		data = data[n:]
	}
	return nil
}

func (c *Channel) recvLoop(reader io.Reader) {
	defer close(c.reader)

	header := make([]byte, 4)
	for {
		if err := recvAll(reader, header); err != nil {
			c.reader <- readResult{err: err}
			return
		}

		l := c.order.Uint32(header)
		log.Trace().Uint32("length", l).Msg("ipc: reading frame")

		body := make([]byte, l)
		if err := recvAll(reader, body); err != nil {
			c.reader <- readResult{err: err}
			return
		}

		var msg Message
		if err := msgpack.Unmarshal(body, &msg); err != nil {
			c.reader <- readResult{err: fmt.Errorf("ipc: failed to unmarshal message: %w", err)}
			return
		}
		c.reader <- readResult{msg: msg}
	}
}

func recvAll(reader io.Reader, data []byte) error {
	for len(data) != 0 {
		n, err := reader.Read(data)
		if err != nil {
			return fmt.Errorf("ipc: failed to read: %w", err)
		}
		data = data[n:]
	}
	return nil
}
