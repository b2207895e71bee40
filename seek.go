package fibre

import (
	"fmt"
	"io"
)

type seekPhase uint8

const (
	seekIdle seekPhase = iota
	seekPending
	seekComplete
)

type seekState struct {
	phase  seekPhase
	offset SeekOffset
}

type seekOrigin uint8

const (
	originStart seekOrigin = iota
	originEnd
	originCurrent
)

// SeekOffset is a cursor position relative to the start, the end or the
// current position of the cursor.
type SeekOffset struct {
	origin seekOrigin
	n      int64
}

func FromStart(n uint64) SeekOffset {
	return SeekOffset{origin: originStart, n: int64(min(n, uint64(1<<63-1)))}
}

func FromEnd(n int64) SeekOffset {
	return SeekOffset{origin: originEnd, n: n}
}

func FromCurrent(n int64) SeekOffset {
	return SeekOffset{origin: originCurrent, n: n}
}

func (off SeekOffset) String() string {
	switch off.origin {
	case originEnd:
		return fmt.Sprintf("end%+d", off.n)
	case originCurrent:
		return fmt.Sprintf("current%+d", off.n)
	default:
		return fmt.Sprintf("start+%d", off.n)
	}
}

// resolve computes the target position, clamped to `[0, length]`.
func (off SeekOffset) resolve(pos, length int64) int64 {
	var target int64
	switch off.origin {
	case originEnd:
		target = length + off.n
	case originCurrent:
		target = pos + off.n
	default:
		target = off.n
	}
	return min(max(target, 0), length)
}

// StartSeek records `off` as the target of the next `Complete`.
//
// Only one seek may be in flight per cursor, a second call before
// `Complete` returns `ErrAlreadySeeking`.
func (c *Cursor) StartSeek(off SeekOffset) error {
	c.seekLk.Lock()
	defer c.seekLk.Unlock()
	if c.seek.phase == seekPending {
		return ErrAlreadySeeking
	}
	c.seek = seekState{phase: seekPending, offset: off}
	return nil
}

// Complete applies the pending seek, if any, and returns the position of
// the cursor. Without a pending seek it only reports the position.
func (c *Cursor) Complete() (int64, error) {
	c.seekLk.Lock()
	defer c.seekLk.Unlock()
	if c.seek.phase != seekPending {
		return c.pos.Load(), nil
	}

	c.core.lk.RLock()
	length := int64(c.core.buf.Len())
	var target int64
	for {
		cur := c.pos.Load()
		target = c.seek.offset.resolve(cur, length)
		if c.pos.CompareAndSwap(cur, target) {
			break
		}
	}
	c.core.lk.RUnlock()

	c.seek.phase = seekComplete
	return target, nil
}

// Seek implements `io.Seeker` in elements rather than bytes.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	var off SeekOffset
	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return c.pos.Load(), fmt.Errorf("%w: negative position %d", ErrInvalidSeek, offset)
		}
		off = FromStart(uint64(offset))
	case io.SeekCurrent:
		off = FromCurrent(offset)
	case io.SeekEnd:
		off = FromEnd(offset)
	default:
		return c.pos.Load(), fmt.Errorf("%w: %d", ErrInvalidSeek, whence)
	}

	if err := c.StartSeek(off); err != nil {
		return c.pos.Load(), err
	}
	return c.Complete()
}

var _ io.Seeker = (*Cursor)(nil)
