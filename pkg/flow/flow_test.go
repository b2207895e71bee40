package flow

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/fibre"
	"github.com/stretchr/testify/require"
)

func testFabric(t *testing.T) *fibre.Fabric {
	t.Helper()
	fb, err := fibre.Create(fibre.WithName(t.Name()), fibre.WithMetricSink(&metrics.BlackholeSink{}))
	require.NoError(t, err)
	return fb
}

func TestFlow_KindChecked(t *testing.T) {
	fb := testFabric(t)
	_, err := NewSender[string](fb.NewChannel(fibre.KindInteger), 4)
	require.ErrorIs(t, err, fibre.ErrTypeMismatch)
	_, err = NewReceiver[bool](fb.NewChannel(fibre.KindFloat).Reader(), 4)
	require.ErrorIs(t, err, fibre.ErrTypeMismatch)
}

func TestFlow_SendRecv(t *testing.T) {
	fb := testFabric(t)
	ch := fb.NewChannel(fibre.KindInteger)

	snd, err := NewSender[int64](ch, 8)
	require.NoError(t, err)
	rcv, err := NewReceiver[int64](ch.Reader(), 3)
	require.NoError(t, err)
	defer rcv.Close()

	const total = 100
	go func() {
		for i := range int64(total) {
			if err := snd.Send(context.Background(), i); err != nil {
				return
			}
		}
		snd.Close()
	}()

	var got []int64
	for v, err := range rcv.All(t.Context()) {
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Len(t, got, total)
	for i, v := range got {
		require.Equal(t, int64(i), v, "elements keep their order")
	}

	_, err = rcv.Recv(t.Context())
	require.ErrorIs(t, err, io.EOF)
	require.True(t, ch.Closed(), "closing the sender closes the channel")
	require.Equal(t, 0, ch.Position(), "the receiver reads through its own cursor")
}

func TestFlow_SenderFlushOnClose(t *testing.T) {
	fb := testFabric(t)
	ch := fb.NewChannel(fibre.KindString)
	snd, err := NewSender[string](ch, 16)
	require.NoError(t, err)

	for _, s := range []string{"kumquat", "salak", "rambutan"} {
		require.NoError(t, snd.Send(t.Context(), s))
	}
	require.NoError(t, snd.Close())
	require.NoError(t, snd.Close())

	view, err := ch.Read(t.Context(), 3)
	require.NoError(t, err)
	require.Equal(t, fibre.Strings{"kumquat", "salak", "rambutan"}, view.Values())

	require.ErrorIs(t, snd.Send(t.Context(), "late"), ErrFlowClosed)
}

func TestFlow_SenderConcurrent(t *testing.T) {
	fb := testFabric(t)
	ch := fb.NewChannel(fibre.KindInteger)
	snd, err := NewSender[int64](ch, 4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				if err := snd.Send(context.Background(), int64(g*50+i)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, snd.Close())
	require.Equal(t, 400, ch.Len())
}

func TestFlow_SenderFailure(t *testing.T) {
	fb := testFabric(t)
	ch := fb.NewChannel(fibre.KindByte)
	snd, err := NewSender[byte](ch, 1)
	require.NoError(t, err)

	// Someone else closing the channel makes the next append fail.
	ch.Close()
	require.NoError(t, snd.Send(t.Context(), 'x'))
	require.Eventually(t, func() bool {
		return errors.Is(snd.Send(t.Context(), 'y'), fibre.ErrClosed)
	}, 5*time.Second, time.Millisecond)
	require.ErrorIs(t, snd.Close(), fibre.ErrClosed)
}

func TestFlow_SendCancelled(t *testing.T) {
	fb := testFabric(t)
	ch := fb.NewChannel(fibre.KindBoolean)
	snd, err := NewSender[bool](ch, 0)
	require.NoError(t, err)
	defer snd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = snd.Send(ctx, true)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestFlow_ReceiverClose(t *testing.T) {
	fb := testFabric(t)
	ch := fb.NewChannel(fibre.KindFloat)
	rcv, err := NewReceiver[float64](ch.Reader(), 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rcv.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "nothing was appended")

	require.NoError(t, rcv.Close())
	_, err = rcv.Recv(t.Context())
	require.ErrorIs(t, err, ErrFlowClosed)

	require.NoError(t, ch.Append(fibre.Floats{1}), "the channel outlives the receiver")
}
