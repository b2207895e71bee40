// Package ioqueue lets code that cannot call the channel API directly,
// such as a sandboxed guest, drive reads and writes through a pair of
// pipes.
//
// The guest writes submission frames to `Queue.SubmissionFile` and reads
// completion frames from `Queue.CompletionFile`, see `Request` and
// `Completion` for the frame layouts. Each submission names the `ID` of
// a `Reader` or a `Writer` registered beforehand.
//
// The queue is a single-threaded reactor: `Update` moves every operation
// forward, then waits on the pipes. Shutdown is signalled by the guest
// closing its end of either pipe.
package ioqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/raskyld/fibre"
	"golang.org/x/sys/unix"
)

type slot struct {
	done bool
	op   operation
}

// Queue is an I/O event queue. All its methods but `Register*` MUST be
// called from a single goroutine.
type Queue struct {
	logger  *slog.Logger
	msink   metrics.MetricSink
	mlabels []metrics.Label
	tick    time.Duration

	sub    pipeEnd
	comp   pipeEnd
	wakeRx pipeEnd
	wakeTx pipeEnd

	subClient  *os.File
	compClient *os.File

	slots   []*slot
	parser  parser
	partial *completionWriter

	regLk   sync.Mutex
	readers map[ID]Reader
	writers map[ID]Writer

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a queue and its pipes.
func New(opts ...Option) (*Queue, error) {
	cfg := config{
		capacity:   defaultCapacity,
		tick:       defaultTick,
		maxPayload: defaultMaxPayload,
	}
	for _, opt := range opts {
		err := opt(&cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	var sub, comp, wake [2]int
	opened := make([]int, 0, 6)
	cleanup := func() {
		for _, fd := range opened {
			unix.Close(fd)
		}
	}
	for _, p := range []*[2]int{&sub, &comp, &wake} {
		if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %w", ErrCreate, err)
		}
		opened = append(opened, p[0], p[1])
	}

	// The guest ends are regular blocking files.
	for _, fd := range []int{sub[1], comp[0]} {
		if err := unix.SetNonblock(fd, false); err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %w", ErrCreate, err)
		}
	}

	q := &Queue{
		mlabels:    cfg.metricLabels,
		msink:      cfg.metricSink,
		tick:       cfg.tick,
		sub:        pipeEnd(sub[0]),
		comp:       pipeEnd(comp[1]),
		wakeRx:     pipeEnd(wake[0]),
		wakeTx:     pipeEnd(wake[1]),
		subClient:  os.NewFile(uintptr(sub[1]), "ioqueue-submission"),
		compClient: os.NewFile(uintptr(comp[0]), "ioqueue-completion"),
		slots:      make([]*slot, cfg.capacity),
		parser:     parser{maxPayload: cfg.maxPayload},
		readers:    make(map[ID]Reader),
		writers:    make(map[ID]Writer),
	}

	// Logging implementations.
	if cfg.logHandler != nil {
		q.logger = slog.New(cfg.logHandler)
	} else {
		q.logger = slog.Default()
	}

	// Metrics implementations.
	if q.msink == nil {
		q.msink = metrics.Default()
	}

	return q, nil
}

// SubmissionFile is the end of the submission pipe the guest writes
// to. The caller owns it and closes it to shut the queue down.
func (q *Queue) SubmissionFile() *os.File {
	return q.subClient
}

// CompletionFile is the end of the completion pipe the guest reads
// from. The caller owns it.
func (q *Queue) CompletionFile() *os.File {
	return q.compClient
}

// RegisterReader binds `r` to `id`, replacing any previous binding.
func (q *Queue) RegisterReader(id ID, r Reader) {
	q.regLk.Lock()
	defer q.regLk.Unlock()
	q.readers[id] = r
}

// RegisterWriter binds `w` to `id`, replacing any previous binding.
// Registered writers are closed by `Close`.
func (q *Queue) RegisterWriter(id ID, w Writer) {
	q.regLk.Lock()
	defer q.regLk.Unlock()
	q.writers[id] = w
}

// Update runs one iteration of the reactor: it moves every in-flight
// operation forward, waits for the pipes (for at most the tick when there
// is work, forever otherwise), accepts new submissions and writes
// completions.
//
// It returns false once the guest closed its end of a pipe.
func (q *Queue) Update() (bool, error) {
	if q.closed.Load() {
		return false, ErrClosed
	}

	hasPending, hasCompleted := q.step()
	hasFree := slices.Contains(q.slots, nil)

	var subEvents, compEvents int16
	if hasFree {
		subEvents = unix.POLLIN
	}
	if hasCompleted || q.partial != nil {
		compEvents = unix.POLLOUT
	}
	timeout := -1
	if hasPending || hasCompleted || q.partial != nil {
		timeout = int(q.tick / time.Millisecond)
	}

	// Negative descriptors are ignored by poll(2), a full queue does not
	// listen to the submission pipe at all.
	subFd := int32(q.sub)
	if !hasFree {
		subFd = -1
	}
	fds := []unix.PollFd{
		{Fd: subFd, Events: subEvents},
		{Fd: int32(q.comp), Events: compEvents},
		{Fd: int32(q.wakeRx), Events: unix.POLLIN},
	}
	if err := poll(fds, timeout); err != nil {
		q.logger.Error("could not poll the queue pipes", fibre.LabelError.L(err))
		return false, fmt.Errorf("%w: %w", ErrPoll, err)
	}

	if fds[2].Revents&unix.POLLIN != 0 {
		q.drainWake()
	}

	alive := true
	subReady := fds[0].Revents
	if subReady&(unix.POLLIN|unix.POLLHUP) != 0 {
		exhausted, err := q.acceptSubmissions()
		if err != nil {
			return false, err
		}
		if exhausted && subReady&unix.POLLHUP != 0 {
			q.logger.Debug("submission pipe closed by the guest")
			alive = false
		}
	}

	compReady := fds[1].Revents
	if compReady&(unix.POLLERR|unix.POLLHUP) != 0 {
		q.logger.Debug("completion pipe closed by the guest")
		return false, nil
	}
	if compReady&unix.POLLOUT != 0 {
		err := q.writeCompletions()
		if errors.Is(err, unix.EPIPE) {
			q.logger.Debug("completion pipe closed by the guest")
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}

	return alive, nil
}

// step gives one transfer attempt to every operation still running.
func (q *Queue) step() (hasPending, hasCompleted bool) {
	inflight := 0
	for _, s := range q.slots {
		if s == nil {
			continue
		}
		inflight++
		if !s.done {
			s.done = s.op.update()
		}
		hasCompleted = hasCompleted || s.done
		hasPending = hasPending || !s.done
	}
	q.msink.SetGaugeWithLabels(MetricInflight, float32(inflight), q.mlabels)
	return hasPending, hasCompleted
}

// acceptSubmissions parses frames into free slots. `exhausted` is true
// when it stopped because the pipe had no more bytes.
func (q *Queue) acceptSubmissions() (exhausted bool, err error) {
	for {
		i := slices.Index(q.slots, nil)
		if i < 0 {
			return false, nil
		}

		req, ok, err := q.parser.parse(q.sub)
		if err != nil {
			var perr *parseError
			if !errors.As(err, &perr) || !perr.hasFailedOp() {
				q.logger.Error("could not read the submission pipe", fibre.LabelError.L(err))
				return false, err
			}
			q.msink.IncrCounterWithLabels(
				MetricParseErrorCount, 1,
				q.labels(LabelCode.M(perr.Code.String())),
			)
			q.logger.Warn(
				"invalid submission",
				LabelUserdata.L(perr.Userdata),
				LabelCode.L(perr.Code),
				fibre.LabelError.L(err),
			)
			q.slots[i] = &slot{op: failedOp(perr.Op, perr.Userdata, perr.Code)}
			continue
		}
		if !ok {
			return true, nil
		}

		q.slots[i] = &slot{op: q.newOp(req)}
	}
}

func (q *Queue) newOp(req Request) operation {
	q.regLk.Lock()
	defer q.regLk.Unlock()

	q.msink.IncrCounterWithLabels(MetricSubmissionCount, 1, q.labels(LabelOp.M(req.Op.String())))
	attrs := []any{LabelIoID.L(req.ID), LabelUserdata.L(req.Userdata), LabelOp.L(req.Op)}

	switch req.Op {
	case OpRead:
		if r, ok := q.readers[req.ID]; ok {
			q.logger.Debug("read submitted", append(attrs, slog.Uint64("size", req.Size))...)
			return newReadOp(req.Userdata, req.Size, r)
		}
	case OpWrite:
		if w, ok := q.writers[req.ID]; ok {
			q.logger.Debug("write submitted", append(attrs, slog.Int("size", len(req.Payload)))...)
			return newWriteOp(req.Userdata, req.Payload, w)
		}
	}

	q.logger.Warn("submission for an unregistered id", attrs...)
	return failedOp(req.Op, req.Userdata, CodeInvalidIoID)
}

func failedOp(op OpKind, userdata uint64, code ErrorCode) operation {
	if op == OpWrite {
		return failedWrite(userdata, code)
	}
	return failedRead(userdata, code)
}

// writeCompletions writes the completions of done operations, in slot
// order, until the pipe is full.
func (q *Queue) writeCompletions() error {
	if q.partial != nil {
		if err := q.partial.writeTo(q.comp); err != nil {
			return err
		}
		if !q.partial.completed() {
			return nil
		}
		q.completed(q.partial.Completion)
		q.partial = nil
	}

	for i, s := range q.slots {
		if s == nil || !s.done {
			continue
		}
		q.slots[i] = nil
		cw := newCompletionWriter(s.op.completion())
		if err := cw.writeTo(q.comp); err != nil {
			return err
		}
		if !cw.completed() {
			q.partial = cw
			return nil
		}
		q.completed(cw.Completion)
	}
	return nil
}

func (q *Queue) completed(c Completion) {
	q.msink.IncrCounterWithLabels(
		MetricCompletionCount, 1,
		q.labels(LabelCompletion.M(c.Kind.String())),
	)
	if c.Kind.Failed() {
		q.msink.IncrCounterWithLabels(
			MetricOperationErrorCount, 1,
			q.labels(LabelCode.M(c.Code.String())),
		)
		q.logger.Warn(
			"operation failed",
			LabelUserdata.L(c.Userdata),
			LabelCompletion.L(c.Kind),
			LabelCode.L(c.Code),
		)
		return
	}
	q.logger.Debug(
		"completion written",
		LabelUserdata.L(c.Userdata),
		LabelCompletion.L(c.Kind),
		slog.Int("size", len(c.Payload)),
	)
}

// Run calls `Update` until the guest shuts the queue down or `ctx` is
// done. It returns nil on shutdown and the context error on
// cancellation.
func (q *Queue) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, q.interrupt)
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		alive, err := q.Update()
		if err != nil {
			return err
		}
		if !alive {
			return nil
		}
	}
}

// interrupt wakes a blocked `Update`.
func (q *Queue) interrupt() {
	// A full wake pipe already guarantees a wake up.
	_, _ = q.wakeTx.Write([]byte{0})
}

func (q *Queue) drainWake() {
	var buf [64]byte
	for {
		n, err := q.wakeRx.Read(buf[:])
		if err != nil || n == 0 {
			return
		}
	}
}

// Close closes every registered writer, then the pipe ends owned by the
// queue. It MUST NOT be called while `Update` or `Run` is running.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.closed.Store(true)

		q.regLk.Lock()
		writers := q.writers
		q.writers = make(map[ID]Writer)
		q.regLk.Unlock()

		var merr *multierror.Error
		for _, id := range slices.Sorted(maps.Keys(writers)) {
			if err := writers[id].Close(); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("writer %s: %w", id, err))
			}
		}
		for _, fd := range []pipeEnd{q.sub, q.comp, q.wakeRx, q.wakeTx} {
			unix.Close(int(fd))
		}
		q.closeErr = merr.ErrorOrNil()
	})
	return q.closeErr
}

func poll(fds []unix.PollFd, timeout int) error {
	for {
		_, err := unix.Poll(fds, timeout)
		if err != unix.EINTR {
			return err
		}
	}
}
