package ioqueue

import (
	"encoding/binary"
	"fmt"
	"io"
)

// OpKind is the discriminator of a submission.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
)

func (kind OpKind) String() string {
	switch kind {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("op(%d)", uint8(kind))
	}
}

// Request is a submission frame:
//
//	io_id: u64 | userdata: u64 | kind: u8 | size: u64 | payload (writes only)
//
// Integers are little-endian. For reads, `Size` is the number of bytes
// to read; for writes, it is the length of `Payload`.
type Request struct {
	ID       ID
	Userdata uint64
	Op       OpKind
	Size     uint64
	Payload  []byte
}

// AppendFrame appends the encoding of the request to `b`.
func (req Request) AppendFrame(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(req.ID))
	b = binary.LittleEndian.AppendUint64(b, req.Userdata)
	b = append(b, byte(req.Op))
	if req.Op == OpWrite {
		b = binary.LittleEndian.AppendUint64(b, uint64(len(req.Payload)))
		return append(b, req.Payload...)
	}
	return binary.LittleEndian.AppendUint64(b, req.Size)
}

// WriteRequest writes `req` to the submission stream of a queue.
func WriteRequest(w io.Writer, req Request) error {
	_, err := w.Write(req.AppendFrame(nil))
	return err
}

// CompletionKind is the discriminator of a completion.
type CompletionKind uint8

const (
	ReadComplete CompletionKind = iota
	ReadFailed
	WriteComplete
	WriteFailed
)

func (kind CompletionKind) String() string {
	switch kind {
	case ReadComplete:
		return "read_complete"
	case ReadFailed:
		return "read_failed"
	case WriteComplete:
		return "write_complete"
	case WriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("completion(%d)", uint8(kind))
	}
}

func (kind CompletionKind) Failed() bool {
	return kind == ReadFailed || kind == WriteFailed
}

// Completion is a completion frame:
//
//	userdata: u64 | kind: u8 | size: u64 + payload (ReadComplete)
//	                         | error_code: u64 (ReadFailed, WriteFailed)
type Completion struct {
	Userdata uint64
	Kind     CompletionKind
	Payload  []byte
	Code     ErrorCode
}

// AppendFrame appends the encoding of the completion to `b`.
func (c Completion) AppendFrame(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, c.Userdata)
	b = append(b, byte(c.Kind))
	switch c.Kind {
	case ReadComplete:
		b = binary.LittleEndian.AppendUint64(b, uint64(len(c.Payload)))
		b = append(b, c.Payload...)
	case ReadFailed, WriteFailed:
		b = binary.LittleEndian.AppendUint64(b, uint64(c.Code))
	}
	return b
}

// ReadCompletion reads one completion from the completion stream of a
// queue, blocking until it is whole.
func ReadCompletion(r io.Reader) (Completion, error) {
	var (
		c   Completion
		hdr [9]byte
		u64 [8]byte
	)
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return c, err
	}
	c.Userdata = binary.LittleEndian.Uint64(hdr[:8])
	c.Kind = CompletionKind(hdr[8])

	switch c.Kind {
	case ReadComplete:
		if _, err := io.ReadFull(r, u64[:]); err != nil {
			return c, unexpected(err)
		}
		c.Payload = make([]byte, binary.LittleEndian.Uint64(u64[:]))
		if _, err := io.ReadFull(r, c.Payload); err != nil {
			return c, unexpected(err)
		}
	case ReadFailed, WriteFailed:
		if _, err := io.ReadFull(r, u64[:]); err != nil {
			return c, unexpected(err)
		}
		c.Code = ErrorCode(binary.LittleEndian.Uint64(u64[:]))
	case WriteComplete:
	default:
		return c, fmt.Errorf("%w: %d", ErrInvalidDiscriminator, hdr[8])
	}
	return c, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
