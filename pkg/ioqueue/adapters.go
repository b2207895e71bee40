package ioqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/raskyld/fibre"
)

// Reader is the source bound to a read ID.
//
// PollRead MUST NOT block. It returns ok == false when no byte is
// available yet, and `n == 0` with ok == true at the end of the stream.
type Reader interface {
	PollRead(p []byte) (n int, ok bool, err error)
}

// Writer is the sink bound to a write ID.
//
// PollWrite MUST NOT block, it returns the number of bytes it accepted,
// 0 meaning the sink is full for now. Close is called when the queue is
// closed.
type Writer interface {
	PollWrite(p []byte) (n int, err error)
	Close() error
}

type ioReader struct {
	r io.Reader
}

// FromReader adapts an `io.Reader`. Reads that return no byte and no
// error count as pending. The queue runs `r.Read` on its own goroutine,
// `r` should not block for long.
func FromReader(r io.Reader) Reader {
	return ioReader{r: r}
}

func (ior ioReader) PollRead(p []byte) (int, bool, error) {
	n, err := ior.r.Read(p)
	switch {
	case n > 0:
		return n, true, nil
	case errors.Is(err, io.EOF):
		return 0, true, nil
	case err != nil:
		return 0, false, err
	default:
		return 0, false, nil
	}
}

type ioWriter struct {
	w io.Writer
}

// FromWriter adapts an `io.Writer`. Close closes `w` if it is an
// `io.Closer`.
func FromWriter(w io.Writer) Writer {
	return ioWriter{w: w}
}

func (iow ioWriter) PollWrite(p []byte) (int, error) {
	return iow.w.Write(p)
}

func (iow ioWriter) Close() error {
	if c, ok := iow.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ChannelReader serves reads from a byte channel.
type ChannelReader struct {
	cursor *fibre.Cursor
}

// NewChannelReader binds `cursor`, which MUST be a cursor of a byte
// channel. Reads consume the cursor.
func NewChannelReader(cursor *fibre.Cursor) (*ChannelReader, error) {
	if cursor.Kind() != fibre.KindByte {
		return nil, fmt.Errorf("%w: got %s", ErrNotByteChannel, cursor.Kind())
	}
	return &ChannelReader{cursor: cursor}, nil
}

func (cr *ChannelReader) PollRead(p []byte) (int, bool, error) {
	view, ok := cr.cursor.ReadAvailable(len(p))
	if !ok {
		return 0, false, nil
	}
	data, err := fibre.ViewAs[byte](view)
	if err != nil {
		return 0, false, err
	}
	return copy(p, data), true, nil
}

// Read implements `io.Reader`, waiting for data. It is meant for code
// outside the queue that consumes the same channel.
func (cr *ChannelReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	view, err := cr.cursor.Read(context.Background(), 1)
	if err != nil {
		return 0, err
	}
	if view.IsEmpty() {
		return 0, io.EOF
	}
	n := copy(p, view.Values().(fibre.Bytes))
	if rest, ok := cr.cursor.ReadAvailable(len(p) - n); ok && !rest.IsEmpty() {
		n += copy(p[n:], rest.Values().(fibre.Bytes))
	}
	return n, nil
}

// ChannelWriter appends the bytes written by the guest to a byte
// channel.
type ChannelWriter struct {
	ch *fibre.Channel
}

// NewChannelWriter binds `ch`, which MUST be a byte channel. Closing the
// writer closes the channel.
func NewChannelWriter(ch *fibre.Channel) (*ChannelWriter, error) {
	if ch.Kind() != fibre.KindByte {
		return nil, fmt.Errorf("%w: got %s", ErrNotByteChannel, ch.Kind())
	}
	return &ChannelWriter{ch: ch}, nil
}

func (cw *ChannelWriter) PollWrite(p []byte) (int, error) {
	if err := cw.ch.Append(fibre.Bytes(slices.Clone(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Write implements `io.Writer`.
func (cw *ChannelWriter) Write(p []byte) (int, error) {
	return cw.PollWrite(p)
}

func (cw *ChannelWriter) Close() error {
	cw.ch.Close()
	return nil
}

var (
	_ Reader    = (*ChannelReader)(nil)
	_ io.Reader = (*ChannelReader)(nil)
	_ Writer    = (*ChannelWriter)(nil)
	_ io.Writer = (*ChannelWriter)(nil)
)
