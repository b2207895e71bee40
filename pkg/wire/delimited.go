package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds the size of a frame `ReadDelimited` accepts.
const MaxFrameSize = 64 << 20

// WriteDelimited writes `s` to `w` prefixed by its size as a varint.
func WriteDelimited(w io.Writer, s *Stream) error {
	msg, err := s.Marshal()
	if err != nil {
		return err
	}
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLargeFrame, len(msg))
	}

	varintBuf := protowire.AppendVarint(nil, uint64(len(msg)))
	buf := make([]byte, len(varintBuf)+len(msg))
	copy(buf, varintBuf)
	copy(buf[len(varintBuf):], msg)
	_, err = w.Write(buf)
	return err
}

// ReadDelimited reads one frame written by `WriteDelimited`.
//
// It returns `io.EOF` only when `r` ends on a frame boundary, a frame cut
// short yields `io.ErrUnexpectedEOF`.
func ReadDelimited(r *bufio.Reader) (*Stream, error) {
	// Peek only fails short when the stream ends, the prefix may still
	// be whole.
	prefix, err := r.Peek(binary.MaxVarintLen64)
	if len(prefix) == 0 {
		return nil, err
	}
	size, n := protowire.ConsumeVarint(prefix)
	if n < 0 {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
	}
	if _, err := r.Discard(n); err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLargeFrame, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	s := &Stream{}
	if err := s.Unmarshal(buf); err != nil {
		return nil, err
	}
	return s, nil
}
