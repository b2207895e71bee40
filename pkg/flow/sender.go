package flow

import (
	"context"
	"sync"

	"github.com/raskyld/fibre"
)

// Sender is a thread-safe and typed channel writer.
//
// Elements are appended in the order `Send` accepted them. Closing the
// sender flushes what is buffered, then closes the channel.
type Sender[T fibre.Native] struct {
	ch    *fibre.Channel
	batch int

	writeCh    chan T
	closeCh    chan struct{}
	mainLoopWg sync.WaitGroup

	// handle Close sync.
	writer  sync.WaitGroup
	err     error
	failure error
	lk      sync.Mutex
}

// NewSender writes to `ch`, which MUST be of the kind of `T`. Up to
// `bufferSize` elements are buffered, and appended at once when they
// are available together.
func NewSender[T fibre.Native](ch *fibre.Channel, bufferSize uint) (*Sender[T], error) {
	if err := checkKind[T](ch.Kind()); err != nil {
		return nil, err
	}

	w := &Sender[T]{
		ch:    ch,
		batch: int(max(bufferSize, 1)),

		writeCh: make(chan T, bufferSize),
		closeCh: make(chan struct{}),
	}

	w.mainLoopWg.Add(1)
	go w.run()

	return w, nil
}

func (w *Sender[T]) Send(ctx context.Context, msg T) error {
	w.lk.Lock()
	if w.err != nil {
		w.lk.Unlock()
		return w.err
	}
	w.writer.Add(1)
	defer w.writer.Done()
	w.lk.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.closeCh:
		return w.err
	case w.writeCh <- msg:
	}

	return nil
}

// Close flushes the buffered elements and closes the channel. It returns
// the append error that stopped the sender, if any.
func (w *Sender[T]) Close() error {
	w.closeWith(ErrFlowClosed)
	w.mainLoopWg.Wait()

	w.lk.Lock()
	defer w.lk.Unlock()
	return w.failure
}

func (w *Sender[T]) closeWith(cause error) {
	w.lk.Lock()
	defer w.lk.Unlock()
	if w.err != nil {
		return
	}
	w.err = cause
	close(w.closeCh)
	w.writer.Wait()
	close(w.writeCh)
}

func (w *Sender[T]) run() {
	defer w.mainLoopWg.Done()
	defer w.ch.Close()

	batch := make([]T, 0, w.batch)
	for {
		msg, ok := <-w.writeCh
		if !ok {
			return
		}

		batch = append(batch[:0], msg)
	drain:
		for len(batch) < w.batch {
			select {
			case msg, ok := <-w.writeCh:
				if !ok {
					break drain
				}
				batch = append(batch, msg)
			default:
				break drain
			}
		}

		// Appends copy the elements, the batch can be reused.
		err := w.ch.Append(fibre.ValuesOf(batch))
		if err != nil {
			w.lk.Lock()
			w.failure = err
			w.lk.Unlock()
			w.closeWith(err)
			return
		}
	}
}
