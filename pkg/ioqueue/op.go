package ioqueue

// BufferSize is the largest transfer an operation attempts per update.
const BufferSize = 4096

type operation interface {
	// update makes one transfer attempt and reports whether the
	// operation is done.
	update() bool
	completion() Completion
}

type readOp struct {
	userdata  uint64
	requested uint64
	buf       []byte
	eof       bool
	reader    Reader
	failure   *ErrorCode
}

func newReadOp(userdata, size uint64, r Reader) *readOp {
	return &readOp{
		userdata:  userdata,
		requested: size,
		buf:       make([]byte, 0, min(size, BufferSize)),
		reader:    r,
	}
}

func failedRead(userdata uint64, code ErrorCode) *readOp {
	return &readOp{userdata: userdata, failure: &code}
}

func (op *readOp) done() bool {
	return op.failure != nil || op.eof || uint64(len(op.buf)) == op.requested
}

func (op *readOp) update() bool {
	if op.done() {
		return true
	}

	start := len(op.buf)
	chunk := int(min(op.requested-uint64(start), BufferSize))
	op.buf = append(op.buf, make([]byte, chunk)...)
	n, ok, err := op.reader.PollRead(op.buf[start : start+chunk])
	n = min(max(n, 0), chunk)
	op.buf = op.buf[:start+n]
	switch {
	case err != nil:
		code := CodeFromError(err)
		op.failure = &code
	case ok && n == 0:
		op.eof = true
	}
	return op.done()
}

func (op *readOp) completion() Completion {
	if op.failure != nil {
		return Completion{Userdata: op.userdata, Kind: ReadFailed, Code: *op.failure}
	}
	// Short reads at EOF only carry the bytes actually read.
	return Completion{Userdata: op.userdata, Kind: ReadComplete, Payload: op.buf}
}

type writeOp struct {
	userdata uint64
	buf      []byte
	written  int
	writer   Writer
	failure  *ErrorCode
}

func newWriteOp(userdata uint64, payload []byte, w Writer) *writeOp {
	return &writeOp{userdata: userdata, buf: payload, writer: w}
}

func failedWrite(userdata uint64, code ErrorCode) *writeOp {
	return &writeOp{userdata: userdata, failure: &code}
}

func (op *writeOp) done() bool {
	return op.failure != nil || op.written == len(op.buf)
}

func (op *writeOp) update() bool {
	if op.done() {
		return true
	}

	end := min(op.written+BufferSize, len(op.buf))
	n, err := op.writer.PollWrite(op.buf[op.written:end])
	op.written += min(max(n, 0), end-op.written)
	if err != nil {
		code := CodeFromError(err)
		op.failure = &code
	}
	return op.done()
}

func (op *writeOp) completion() Completion {
	if op.failure != nil {
		return Completion{Userdata: op.userdata, Kind: WriteFailed, Code: *op.failure}
	}
	return Completion{Userdata: op.userdata, Kind: WriteComplete}
}
