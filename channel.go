package fibre

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
)

// core is the state shared by every handle onto one channel: the buffer,
// the closed flag and the waker slots of all live cursors.
type core struct {
	id uuid.UUID
	fb *Fabric

	lk     sync.RWMutex
	buf    *Buffer
	closed atomic.Bool

	wakersLk sync.Mutex
	wakers   []weak.Pointer[wakerSlot]
}

// wakerSlot is the wake point of one cursor. Every goroutine waiting on
// the cursor selects on the same channel, and waking closes it, so one
// wake releases all of them. Waking a slot nobody waits on is a no-op.
type wakerSlot struct {
	lk sync.Mutex
	ch chan struct{}
}

func newWakerSlot() *wakerSlot {
	return &wakerSlot{}
}

// wait installs a wake token, unless one is already pending, and
// returns it. It MUST be called before checking for progress.
func (slot *wakerSlot) wait() <-chan struct{} {
	slot.lk.Lock()
	defer slot.lk.Unlock()
	if slot.ch == nil {
		slot.ch = make(chan struct{})
	}
	return slot.ch
}

func (slot *wakerSlot) wake() {
	slot.lk.Lock()
	defer slot.lk.Unlock()
	if slot.ch != nil {
		close(slot.ch)
		slot.ch = nil
	}
}

func (c *core) register(slot *wakerSlot) {
	c.wakersLk.Lock()
	c.wakers = append(c.wakers, weak.Make(slot))
	c.wakersLk.Unlock()
}

func (c *core) deregister(slot *wakerSlot) {
	c.wakersLk.Lock()
	c.wakers = slices.DeleteFunc(c.wakers, func(wp weak.Pointer[wakerSlot]) bool {
		v := wp.Value()
		return v == nil || v == slot
	})
	c.wakersLk.Unlock()
}

// broadcast wakes every live slot and forgets the ones whose cursor has
// been garbage collected.
func (c *core) broadcast() {
	c.wakersLk.Lock()
	defer c.wakersLk.Unlock()
	c.wakers = slices.DeleteFunc(c.wakers, func(wp weak.Pointer[wakerSlot]) bool {
		slot := wp.Value()
		if slot == nil {
			return true
		}
		slot.wake()
		return false
	})
}

// Cursor is a read-only handle onto a `Channel`, with its own position.
//
// Cursors created from the same channel share its buffer and closed flag,
// so reads on one cursor never consume data for another. A Cursor is safe
// for concurrent use: concurrent reads on the same cursor split the data
// between callers, and every one of them is woken by an append or a close.
type Cursor struct {
	core *core
	pos  atomic.Int64
	slot *wakerSlot

	seekLk sync.Mutex
	seek   seekState
}

// Channel is the writing handle of a channel. It can do everything a
// `Cursor` does, plus `Append` and `Close`.
type Channel struct {
	Cursor
}

func (fb *Fabric) newChannel(buf *Buffer) *Channel {
	c := &core{
		id:  uuid.New(),
		fb:  fb,
		buf: buf,
	}
	fb.msink.IncrCounterWithLabels(
		MetricChannelCount, 1,
		withLabels(fb.labels, LabelKind.M(buf.Kind().String())),
	)
	return newHandle(c, 0)
}

func newHandle(c *core, pos int64) *Channel {
	ch := &Channel{}
	ch.core = c
	ch.pos.Store(pos)
	ch.slot = newWakerSlot()
	c.register(ch.slot)
	return ch
}

// ID identifies the shared channel; every cursor of a channel reports the
// same ID.
func (c *Cursor) ID() uuid.UUID {
	return c.core.id
}

func (c *Cursor) Kind() Kind {
	return c.core.buf.Kind()
}

// Len is the total number of elements appended so far.
func (c *Cursor) Len() int {
	c.core.lk.RLock()
	defer c.core.lk.RUnlock()
	return c.core.buf.Len()
}

// Position of the next element this cursor will read.
func (c *Cursor) Position() int {
	return int(c.pos.Load())
}

func (c *Cursor) Closed() bool {
	return c.core.closed.Load()
}

// SameChannel tells whether both cursors read the same underlying data,
// that is whether they report the same `ID`.
func (c *Cursor) SameChannel(other *Cursor) bool {
	return other != nil && c.ID() == other.ID()
}

// NewCursor registers a new reader on the channel, starting at the
// current position of `c`.
func (c *Cursor) NewCursor() *Cursor {
	return &c.handle().Cursor
}

func (c *Cursor) handle() *Channel {
	return newHandle(c.core, c.pos.Load())
}

// Release the waker slot of the cursor. The cursor MUST NOT be used
// afterwards. Cursors that are simply dropped get cleaned up on the next
// broadcast.
func (c *Cursor) Release() {
	c.core.deregister(c.slot)
}

// Read waits until `n` elements are available past the cursor position,
// then returns them and advances the position by `n`.
//
// If the channel gets closed first, the remaining elements are returned,
// possibly none at all, which is how readers detect the end of a channel.
// A cancelled `ctx` aborts the wait without moving the cursor.
func (c *Cursor) Read(ctx context.Context, n int) (View, error) {
	for {
		woken := c.slot.wait()
		if view, ok := c.poll(n, false); ok {
			return view, nil
		}

		select {
		case <-ctx.Done():
			return View{}, ctx.Err()
		case <-woken:
		}
	}
}

// TryRead is `Read` without the wait: ok is false when `Read` would have
// suspended.
func (c *Cursor) TryRead(n int) (view View, ok bool) {
	return c.poll(n, false)
}

// ReadAvailable returns up to `limit` elements without waiting for more.
//
// ok is false only when nothing is available and the channel is still
// open. On a closed and drained channel it returns an empty view.
func (c *Cursor) ReadAvailable(limit int) (view View, ok bool) {
	return c.poll(limit, true)
}

func (c *Cursor) poll(n int, partial bool) (View, bool) {
	want := int64(max(n, 0))

	c.core.lk.RLock()
	defer c.core.lk.RUnlock()
	length := int64(c.core.buf.Len())
	// Appends and close both take the write lock, so what we read here
	// is consistent with `length`.
	closed := c.core.closed.Load()

	for {
		start := c.pos.Load()
		end := min(start+want, length)
		got := end - start
		if got < want && !closed && !(partial && got > 0) {
			return View{}, false
		}
		if c.pos.CompareAndSwap(start, end) {
			return View{
				values: c.core.buf.Slice(int(start), int(end)),
				offset: int(start),
			}, true
		}
	}
}

// Append adds `vs` at the end of the channel and wakes every reader.
//
// It fails with `ErrClosed` once the channel is closed, and with a
// `*TypeMismatchError` when the kind of `vs` is not the channel's.
func (ch *Channel) Append(vs Values) error {
	c := ch.core
	err := ch.appendLocked(vs)
	if err != nil {
		c.fb.msink.IncrCounterWithLabels(
			MetricChannelAppendErrorCount, 1,
			withLabels(c.fb.labels, LabelError.M(errorLabel(err))),
		)
		return err
	}

	c.fb.msink.IncrCounterWithLabels(MetricChannelAppendCount, 1, c.fb.labels)
	c.fb.msink.IncrCounterWithLabels(MetricChannelAppendElements, float32(vs.Len()), c.fb.labels)
	c.broadcast()
	return nil
}

func (ch *Channel) appendLocked(vs Values) error {
	c := ch.core
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	return c.buf.Append(vs)
}

// Close marks the channel as complete and wakes every reader. Closing
// twice is a no-op.
func (ch *Channel) Close() {
	c := ch.core
	c.lk.Lock()
	wasClosed := c.closed.Swap(true)
	c.lk.Unlock()
	if wasClosed {
		return
	}

	c.fb.logger.Debug("channel closed", LabelChannelID.L(c.id), LabelKind.L(c.buf.Kind()))
	c.fb.msink.IncrCounterWithLabels(MetricChannelCloseCount, 1, c.fb.labels)
	c.broadcast()
}

// Reader returns the channel as a read-only `Cursor` sharing the
// writer's position.
func (ch *Channel) Reader() *Cursor {
	return &ch.Cursor
}

func (c *Cursor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.core.id.String()),
		slog.String("kind", c.Kind().String()),
		slog.Int("pos", c.Position()),
		slog.Bool("closed", c.Closed()),
	)
}

func errorLabel(err error) string {
	if errors.Is(err, ErrClosed) {
		return "closed"
	}
	return "type_mismatch"
}

// View is a snapshot of consecutive channel elements returned by a read.
//
// The buffer is append-only, so a view never changes and holds no lock.
type View struct {
	values Values
	offset int
}

// Values of the view, nil for the zero View.
func (v View) Values() Values {
	return v.values
}

func (v View) Len() int {
	if v.values == nil {
		return 0
	}
	return v.values.Len()
}

func (v View) IsEmpty() bool {
	return v.Len() == 0
}

// Offset is the channel position of the first element of the view.
func (v View) Offset() int {
	return v.offset
}

func (v View) Kind() Kind {
	if v.values == nil {
		return KindNull
	}
	return v.values.Kind()
}

// ViewAs returns the elements of `v` as a `[]T`, see `As`.
func ViewAs[T Native](v View) ([]T, error) {
	if v.values == nil {
		return nil, &TypeMismatchError{Expected: KindOf[T](), Got: KindNull}
	}
	return As[T](v.values)
}
