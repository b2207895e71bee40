package ioqueue

import (
	"encoding/binary"
	"io"
)

type writeProgress uint8

const (
	writeUserdata writeProgress = iota
	writeDiscriminator
	writeSize
	writePayload
	writeErrorCode
	writeCompleted
)

// completionWriter writes one completion to a non-blocking stream,
// resuming where it stopped when the stream was full.
type completionWriter struct {
	Completion
	progress writeProgress
	written  int
}

func newCompletionWriter(c Completion) *completionWriter {
	return &completionWriter{Completion: c}
}

func (cw *completionWriter) completed() bool {
	return cw.progress == writeCompleted
}

// writeField writes what is left of `field`, it returns true once the
// field is out.
func (cw *completionWriter) writeField(w io.Writer, field []byte) (bool, error) {
	n, err := w.Write(field[cw.written:])
	cw.written += max(n, 0)
	if cw.written == len(field) {
		cw.written = 0
		return true, nil
	}
	if err != nil && !pending(err) && err != io.ErrShortWrite {
		return false, err
	}
	return false, nil
}

// writeTo writes as much of the completion as `w` accepts. A nil error
// with `completed() == false` means `w` is full.
func (cw *completionWriter) writeTo(w io.Writer) error {
	var u64 [8]byte
	for !cw.completed() {
		var (
			done bool
			err  error
		)
		switch cw.progress {
		case writeUserdata:
			binary.LittleEndian.PutUint64(u64[:], cw.Userdata)
			done, err = cw.writeField(w, u64[:])
			if done {
				cw.progress = writeDiscriminator
			}

		case writeDiscriminator:
			done, err = cw.writeField(w, []byte{byte(cw.Kind)})
			if done {
				switch cw.Kind {
				case ReadComplete:
					cw.progress = writeSize
				case ReadFailed, WriteFailed:
					cw.progress = writeErrorCode
				default:
					cw.progress = writeCompleted
				}
			}

		case writeSize:
			binary.LittleEndian.PutUint64(u64[:], uint64(len(cw.Payload)))
			done, err = cw.writeField(w, u64[:])
			if done {
				cw.progress = writePayload
			}

		case writePayload:
			if len(cw.Payload) == 0 {
				cw.progress = writeCompleted
				continue
			}
			done, err = cw.writeField(w, cw.Payload)
			if done {
				cw.progress = writeCompleted
			}

		case writeErrorCode:
			binary.LittleEndian.PutUint64(u64[:], uint64(cw.Code))
			done, err = cw.writeField(w, u64[:])
			if done {
				cw.progress = writeCompleted
			}
		}

		if err != nil {
			return err
		}
		if !done && !cw.completed() {
			return nil
		}
	}
	return nil
}
