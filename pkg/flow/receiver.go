package flow

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"

	"github.com/raskyld/fibre"
)

// Receiver is a thread-safe and typed channel reader.
//
// It consumes its own cursor, other cursors of the channel are not
// affected.
type Receiver[T fibre.Native] struct {
	cursor *fibre.Cursor
	chunk  int

	readCh     chan T
	closeCh    chan struct{}
	cancel     context.CancelFunc
	mainLoopWg sync.WaitGroup

	// handle Close sync.
	err error
	lk  sync.Mutex
}

// NewReceiver reads through a new cursor derived from `cursor`, which
// MUST be of the kind of `T`. Up to `bufferSize` elements are read ahead.
func NewReceiver[T fibre.Native](cursor *fibre.Cursor, bufferSize uint) (*Receiver[T], error) {
	if err := checkKind[T](cursor.Kind()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Receiver[T]{
		cursor: cursor.NewCursor(),
		chunk:  int(max(bufferSize, 1)),

		readCh:  make(chan T, bufferSize),
		closeCh: make(chan struct{}),
		cancel:  cancel,
	}

	r.mainLoopWg.Add(1)
	go r.run(ctx)

	return r, nil
}

// Recv returns the next element. Once the channel is closed and drained
// it returns `io.EOF`, and `ErrFlowClosed` after `Close`.
func (r *Receiver[T]) Recv(ctx context.Context) (result T, err error) {
	select {
	case <-ctx.Done():
		return result, ctx.Err()
	case elem, ok := <-r.readCh:
		if !ok {
			r.lk.Lock()
			defer r.lk.Unlock()
			return result, r.err
		}
		return elem, nil
	}
}

// All iterates over the remaining elements. It stops at the end of the
// channel, or after yielding the first error.
func (r *Receiver[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			elem, err := r.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(elem, err) || err != nil {
				return
			}
		}
	}
}

func (r *Receiver[T]) Close() error {
	r.closeWith(ErrFlowClosed, true)
	return nil
}

func (r *Receiver[T]) closeWith(cause error, mustWait bool) {
	r.lk.Lock()
	if r.err != nil {
		r.lk.Unlock()
		return
	}
	r.err = cause
	close(r.closeCh)
	r.cancel()
	r.lk.Unlock()
	if mustWait {
		r.mainLoopWg.Wait()
	}
	close(r.readCh)
	r.cursor.Release()
}

func (r *Receiver[T]) run(ctx context.Context) {
	defer r.mainLoopWg.Done()
	for {
		view, err := r.cursor.Read(ctx, 1)
		if err != nil {
			r.closeWith(err, false)
			return
		}
		if view.IsEmpty() {
			r.closeWith(io.EOF, false)
			return
		}

		elems, err := fibre.ViewAs[T](view)
		if err != nil {
			r.closeWith(err, false)
			return
		}
		if r.chunk > 1 {
			if more, ok := r.cursor.ReadAvailable(r.chunk - 1); ok && !more.IsEmpty() {
				rest, err := fibre.ViewAs[T](more)
				if err != nil {
					r.closeWith(err, false)
					return
				}
				elems = append(elems[:len(elems):len(elems)], rest...)
			}
		}

		for _, elem := range elems {
			select {
			case <-r.closeCh:
				return
			case r.readCh <- elem:
			}
		}
	}
}
