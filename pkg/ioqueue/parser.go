package ioqueue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

type parseProgress uint8

const (
	parseID parseProgress = iota
	parseUserdata
	parseDiscriminator
	parseSize
	parsePayload
	parseComplete
)

func (p parseProgress) String() string {
	switch p {
	case parseID:
		return "id"
	case parseUserdata:
		return "userdata"
	case parseDiscriminator:
		return "discriminator"
	case parseSize:
		return "size"
	case parsePayload:
		return "payload"
	default:
		return "complete"
	}
}

// parser decodes submission frames from a non-blocking stream. It only
// ever reads the bytes of the field it is decoding, so it never consumes
// the next frame, and it keeps its progress across calls.
type parser struct {
	progress   parseProgress
	buf        [8]byte
	buflen     int
	req        Request
	remaining  uint64
	discard    bool
	maxPayload uint64
}

// parseError is a frame the parser could not decode. The parser is
// reset, `Userdata` and `Op` are those decoded so far.
type parseError struct {
	progress parseProgress
	Userdata uint64
	Op       OpKind
	Code     ErrorCode
	Err      error
}

func (err *parseError) Error() string {
	return fmt.Sprintf("ioqueue: could not parse %s of submission %d: %s", err.progress, err.Userdata, err.Err)
}

func (err *parseError) Unwrap() error {
	return err.Err
}

// hasFailedOp tells whether enough of the frame was read to report the
// failure to the guest.
func (err *parseError) hasFailedOp() bool {
	return err.progress > parseUserdata
}

func pending(err error) bool {
	return errors.Is(err, errWouldBlock) || errors.Is(err, io.EOF)
}

func (p *parser) reset() {
	maxPayload := p.maxPayload
	*p = parser{maxPayload: maxPayload}
}

func (p *parser) fail(code ErrorCode, err error) *parseError {
	perr := &parseError{
		progress: p.progress,
		Userdata: p.req.Userdata,
		Op:       p.req.Op,
		Code:     code,
		Err:      err,
	}
	p.reset()
	return perr
}

func (p *parser) readU64(r io.Reader) (uint64, bool, error) {
	n, err := r.Read(p.buf[p.buflen:])
	p.buflen += max(n, 0)
	if p.buflen == len(p.buf) {
		p.buflen = 0
		return binary.LittleEndian.Uint64(p.buf[:]), true, nil
	}
	if err != nil && !pending(err) {
		return 0, false, err
	}
	return 0, false, nil
}

func (p *parser) readU8(r io.Reader) (uint8, bool, error) {
	var b [1]byte
	n, err := r.Read(b[:])
	if n == 1 {
		return b[0], true, nil
	}
	if err != nil && !pending(err) {
		return 0, false, err
	}
	return 0, false, nil
}

// payloadLimit is the largest payload accepted, zero `maxPayload` only
// bounds it by what a slice can hold.
func (p *parser) payloadLimit() uint64 {
	if p.maxPayload == 0 {
		return math.MaxInt
	}
	return min(p.maxPayload, math.MaxInt)
}

// parse makes as much progress as `r` allows. It returns true with the
// request once a frame is whole, false when `r` has no more bytes for
// now. Errors are `*parseError`.
func (p *parser) parse(r io.Reader) (Request, bool, error) {
	for {
		switch p.progress {
		case parseID:
			v, ok, err := p.readU64(r)
			if err != nil {
				return Request{}, false, p.fail(CodeFromError(err), err)
			}
			if !ok {
				return Request{}, false, nil
			}
			p.req.ID = ID(v)
			p.progress = parseUserdata

		case parseUserdata:
			v, ok, err := p.readU64(r)
			if err != nil {
				return Request{}, false, p.fail(CodeFromError(err), err)
			}
			if !ok {
				return Request{}, false, nil
			}
			p.req.Userdata = v
			p.progress = parseDiscriminator

		case parseDiscriminator:
			v, ok, err := p.readU8(r)
			if err != nil {
				return Request{}, false, p.fail(CodeFromError(err), err)
			}
			if !ok {
				return Request{}, false, nil
			}
			if v > uint8(OpWrite) {
				return Request{}, false, p.fail(
					CodeInvalidDiscriminator,
					fmt.Errorf("%w: %d", ErrInvalidDiscriminator, v),
				)
			}
			p.req.Op = OpKind(v)
			p.progress = parseSize

		case parseSize:
			v, ok, err := p.readU64(r)
			if err != nil {
				return Request{}, false, p.fail(CodeFromError(err), err)
			}
			if !ok {
				return Request{}, false, nil
			}
			p.req.Size = v
			if p.req.Op == OpRead {
				p.progress = parseComplete
				continue
			}
			p.remaining = v
			if v > p.payloadLimit() {
				p.discard = true
			} else {
				// The payload grows as bytes arrive, the size is only
				// trusted once they did.
				p.req.Payload = make([]byte, 0, min(v, BufferSize))
			}
			p.progress = parsePayload

		case parsePayload:
			if p.remaining == 0 {
				if p.discard {
					return Request{}, false, p.fail(
						CodeInvalidInput,
						fmt.Errorf("payload of %d bytes exceeds %d bytes", p.req.Size, p.payloadLimit()),
					)
				}
				p.progress = parseComplete
				continue
			}

			var (
				n   int
				err error
			)
			if p.discard {
				var scratch [4096]byte
				n, err = r.Read(scratch[:min(p.remaining, uint64(len(scratch)))])
			} else {
				start := len(p.req.Payload)
				p.req.Payload = slices.Grow(p.req.Payload, int(min(p.remaining, BufferSize)))
				n, err = r.Read(p.req.Payload[start : start+int(min(p.remaining, BufferSize))])
				p.req.Payload = p.req.Payload[:start+max(n, 0)]
			}
			p.remaining -= uint64(max(n, 0))
			if err != nil && !pending(err) {
				return Request{}, false, p.fail(CodeFromError(err), err)
			}
			if n <= 0 {
				return Request{}, false, nil
			}

		case parseComplete:
			req := p.req
			p.reset()
			return req, true, nil
		}
	}
}
