package fibre

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func readInts(t *testing.T, c *Cursor, n int) []int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	view, err := c.Read(ctx, n)
	require.NoError(t, err)
	if view.IsEmpty() {
		return []int64{}
	}
	ints, err := ViewAs[int64](view)
	require.NoError(t, err)
	return ints
}

func TestChannel_ChunkedReads(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)

	require.NoError(t, ch.Append(Integers{1, 3, 3, 7}))
	require.NoError(t, ch.Append(Integers{4, 5, 6, 7}))
	ch.Close()

	reader := ch.NewCursor()
	require.Equal(t, []int64{1, 3}, readInts(t, reader, 2))
	require.Equal(t, []int64{3, 7}, readInts(t, reader, 2))
	require.Equal(t, []int64{4, 5}, readInts(t, reader, 2))
	require.Equal(t, []int64{6, 7}, readInts(t, reader, 2))
	require.Empty(t, readInts(t, reader, 2), "a drained and closed channel reads as empty")
	require.Equal(t, 8, reader.Position())
}

func TestChannel_TypeMismatch(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindString)
	require.NoError(t, ch.Append(Strings{"a", "b"}))

	err := ch.Append(Floats{1.0, 2.0})
	require.Equal(t, &TypeMismatchError{Expected: KindString, Got: KindFloat}, err)
	require.EqualError(t, err, `channel: type mismatch: expected "strings", got "floats"`)
	require.Equal(t, 2, ch.Len())

	view, err := ch.Read(context.Background(), 2)
	require.NoError(t, err)
	strs, err := ViewAs[string](view)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, strs)

	_, err = ViewAs[int64](view)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestChannel_MultiCursor(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	require.NoError(t, ch.Append(Integers{10, 20, 30, 40, 50, 60}))
	ch.Close()

	a := ch.NewCursor()
	b := ch.NewCursor()
	require.True(t, a.SameChannel(b))
	require.Equal(t, a.ID(), b.ID())

	require.Equal(t, []int64{10, 20, 30}, readInts(t, a, 3))
	require.Equal(t, []int64{10, 20, 30, 40, 50, 60}, readInts(t, b, 6))
	require.Equal(t, []int64{40, 50, 60}, readInts(t, a, 6))

	other := fb.NewChannel(KindInteger)
	require.False(t, a.SameChannel(other.Reader()))
}

func TestChannel_CursorInheritsPosition(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannelOf(Integers{1, 2, 3, 4})
	ch.Close()

	parent := ch.NewCursor()
	require.Equal(t, []int64{1}, readInts(t, parent, 1))

	child := parent.NewCursor()
	require.Equal(t, 1, child.Position())
	require.Equal(t, []int64{2, 3, 4}, readInts(t, child, 10))
	require.Equal(t, 1, parent.Position(), "reading on a child does not move its parent")
}

func TestChannel_WakeOnClose(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	require.NoError(t, ch.Append(Integers{1, 2}))

	reader := ch.NewCursor()
	result := make(chan []int64, 1)
	go func() {
		view, err := reader.Read(context.Background(), 10)
		if err != nil {
			close(result)
			return
		}
		ints, _ := ViewAs[int64](view)
		result <- ints
	}()

	require.Never(t, func() bool { return len(result) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"reader must wait while the channel is open")
	require.Equal(t, 0, reader.Position(), "a waiting read does not move the cursor")

	ch.Close()
	select {
	case got := <-result:
		require.Equal(t, []int64{1, 2}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("reader was not woken up by close")
	}
}

func TestChannel_WakeOnAppend(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindByte)
	reader := ch.NewCursor()

	result := make(chan View, 1)
	go func() {
		view, _ := reader.Read(context.Background(), 3)
		result <- view
	}()

	require.NoError(t, ch.Append(Bytes("a")))
	require.Never(t, func() bool { return len(result) > 0 }, 30*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, ch.Append(Bytes("bcd")))
	view := <-result
	require.Equal(t, Bytes("abc"), view.Values())
	require.Equal(t, 0, view.Offset())
}

func TestChannel_ReadCancelled(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	require.NoError(t, ch.Append(Integers{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Read(ctx, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, ch.Position())

	require.NoError(t, ch.Append(Integers{2}))
	require.Equal(t, []int64{1, 2}, readInts(t, ch.Reader(), 2))
}

func TestChannel_Close(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	require.NoError(t, ch.Append(Integers{1, 2, 3}))

	ch.Close()
	ch.Close()
	require.True(t, ch.Closed())
	require.True(t, ch.NewCursor().Closed(), "cursors share the closed flag")

	require.ErrorIs(t, ch.Append(Integers{4}), ErrClosed)
	require.Equal(t, 3, ch.Len())
}

func TestChannel_TryRead(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	reader := ch.NewCursor()

	_, ok := reader.TryRead(1)
	require.False(t, ok)
	_, ok = reader.ReadAvailable(4)
	require.False(t, ok)

	require.NoError(t, ch.Append(Integers{1, 2}))
	_, ok = reader.TryRead(3)
	require.False(t, ok)

	view, ok := reader.ReadAvailable(4)
	require.True(t, ok)
	require.Equal(t, Integers{1, 2}, view.Values())

	ch.Close()
	view, ok = reader.ReadAvailable(4)
	require.True(t, ok)
	require.True(t, view.IsEmpty())

	view, ok = reader.TryRead(1)
	require.True(t, ok)
	require.True(t, view.IsEmpty())
}

// Every cursor that reads the same number of elements from the start
// observes the same sequence, whatever the interleaving with the writer.
func TestChannel_ConcurrentCursors(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)

	const (
		readers = 8
		total   = 1000
	)
	cursors := make([]*Cursor, readers)
	for i := range cursors {
		cursors[i] = ch.NewCursor()
	}

	results := make([][]int64, readers)
	var wg sync.WaitGroup
	for i, c := range cursors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunk := i + 1
			for {
				view, err := c.Read(context.Background(), chunk)
				if err != nil || view.IsEmpty() {
					return
				}
				ints, _ := ViewAs[int64](view)
				results[i] = append(results[i], ints...)
			}
		}()
	}

	for i := 0; i < total; i += 10 {
		batch := make(Integers, 10)
		for j := range batch {
			batch[j] = int64(i + j)
		}
		require.NoError(t, ch.Append(batch))
	}
	ch.Close()
	wg.Wait()

	for i := range results {
		require.Len(t, results[i], total)
		require.Equal(t, results[0], results[i])
	}
}

func TestChannel_Release(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	c := ch.NewCursor()

	ch.core.wakersLk.Lock()
	before := len(ch.core.wakers)
	ch.core.wakersLk.Unlock()

	c.Release()

	ch.core.wakersLk.Lock()
	after := len(ch.core.wakers)
	ch.core.wakersLk.Unlock()
	require.Equal(t, before-1, after)

	require.NoError(t, ch.Append(Integers{1}), "broadcast must not fail once a cursor is gone")
}

func waiting(c *Cursor) bool {
	c.slot.lk.Lock()
	defer c.slot.lk.Unlock()
	return c.slot.ch != nil
}

func TestChannel_SharedCursorWakesAll(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	cur := ch.Reader()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]View, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cur.Read(ctx, 1)
		}()
	}

	require.Eventually(t, func() bool { return waiting(cur) }, 5*time.Second, time.Millisecond)
	require.NoError(t, ch.Append(Integers{1, 2}))
	wg.Wait()

	var got []int64
	for i := range results {
		require.NoError(t, errs[i])
		ints, err := ViewAs[int64](results[i])
		require.NoError(t, err)
		got = append(got, ints...)
	}
	require.ElementsMatch(t, []int64{1, 2}, got, "both readers get one element each")
	require.Equal(t, 2, cur.Position())
}

func TestChannel_SharedCursorWakesAllOnClose(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindInteger)
	require.NoError(t, ch.Append(Integers{7}))
	cur := ch.NewCursor()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const readers = 3
	var wg sync.WaitGroup
	lens := make([]int, readers)
	errs := make([]error, readers)
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var view View
			view, errs[i] = cur.Read(ctx, 5)
			lens[i] = view.Len()
		}()
	}

	require.Eventually(t, func() bool { return waiting(cur) }, 5*time.Second, time.Millisecond)
	ch.Close()
	wg.Wait()

	total := 0
	for i := range readers {
		require.NoError(t, errs[i], "every waiter resumes on close")
		total += lens[i]
	}
	require.Equal(t, 1, total, "the remaining element goes to exactly one reader")
}

func TestChannel_Identity(t *testing.T) {
	fb, _ := testFabric(t)
	ch := fb.NewChannel(KindString)
	other := fb.NewChannel(KindString)

	require.NotEqual(t, uuid.Nil, ch.ID())
	require.NotEqual(t, ch.ID(), other.ID())

	derived := ch.NewCursor().NewCursor()
	require.Equal(t, ch.ID(), derived.ID(), "every cursor reports the channel ID")
	require.True(t, derived.SameChannel(ch.Reader()))
	require.False(t, derived.SameChannel(other.Reader()))
	require.False(t, derived.SameChannel(nil))

	require.Equal(t, ch.ID().String(), derived.LogValue().Group()[0].Value.String())
}
