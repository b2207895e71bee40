package ioqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/raskyld/fibre"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidCfg           = errors.New("ioqueue: invalid options")
	ErrCreate               = errors.New("ioqueue: could not create the queue pipes")
	ErrPoll                 = errors.New("ioqueue: could not poll the queue pipes")
	ErrClosed               = errors.New("ioqueue: queue is closed")
	ErrInvalidDiscriminator = errors.New("ioqueue: invalid discriminator")
	ErrNotByteChannel       = errors.New("ioqueue: only byte channels can be bound")

	errWouldBlock = errors.New("ioqueue: would block")
)

// ErrorCode is the numeric error reported to the guest in failed
// completions.
type ErrorCode uint64

const (
	CodeUnknown ErrorCode = iota
	CodeInvalidIoID
	CodeInvalidDiscriminator
)

const (
	CodeWouldBlock ErrorCode = iota + 100
	CodeNotFound
	CodePermissionDenied
	CodeConnectionRefused
	CodeConnectionReset
	CodeConnectionAborted
	CodeNotConnected
	CodeAddrInUse
	CodeAddrNotAvailable
	CodeBrokenPipe
	CodeAlreadyExists
	CodeInvalidInput
	CodeInvalidData
	CodeTimedOut
	CodeWriteZero
	CodeInterrupted
	CodeUnsupported
	CodeUnexpectedEOF
	CodeOutOfMemory
	CodeOther
)

var codeNames = map[ErrorCode]string{
	CodeUnknown:              "unknown",
	CodeInvalidIoID:          "invalid_io_id",
	CodeInvalidDiscriminator: "invalid_discriminator",
	CodeWouldBlock:           "would_block",
	CodeNotFound:             "not_found",
	CodePermissionDenied:     "permission_denied",
	CodeConnectionRefused:    "connection_refused",
	CodeConnectionReset:      "connection_reset",
	CodeConnectionAborted:    "connection_aborted",
	CodeNotConnected:         "not_connected",
	CodeAddrInUse:            "addr_in_use",
	CodeAddrNotAvailable:     "addr_not_available",
	CodeBrokenPipe:           "broken_pipe",
	CodeAlreadyExists:        "already_exists",
	CodeInvalidInput:         "invalid_input",
	CodeInvalidData:          "invalid_data",
	CodeTimedOut:             "timed_out",
	CodeWriteZero:            "write_zero",
	CodeInterrupted:          "interrupted",
	CodeUnsupported:          "unsupported",
	CodeUnexpectedEOF:        "unexpected_eof",
	CodeOutOfMemory:          "out_of_memory",
	CodeOther:                "other",
}

func (code ErrorCode) String() string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint64(code))
}

var errnoCodes = map[unix.Errno]ErrorCode{
	unix.EAGAIN:        CodeWouldBlock,
	unix.ENOENT:        CodeNotFound,
	unix.EACCES:        CodePermissionDenied,
	unix.EPERM:         CodePermissionDenied,
	unix.ECONNREFUSED:  CodeConnectionRefused,
	unix.ECONNRESET:    CodeConnectionReset,
	unix.ECONNABORTED:  CodeConnectionAborted,
	unix.ENOTCONN:      CodeNotConnected,
	unix.EADDRINUSE:    CodeAddrInUse,
	unix.EADDRNOTAVAIL: CodeAddrNotAvailable,
	unix.EPIPE:         CodeBrokenPipe,
	unix.EEXIST:        CodeAlreadyExists,
	unix.EINVAL:        CodeInvalidInput,
	unix.ETIMEDOUT:     CodeTimedOut,
	unix.EINTR:         CodeInterrupted,
	unix.ENOSYS:        CodeUnsupported,
	unix.ENOTSUP:       CodeUnsupported,
	unix.ENOMEM:        CodeOutOfMemory,
}

// CodeFromError maps a Go error to the code sent to the guest.
func CodeFromError(err error) ErrorCode {
	var errno unix.Errno
	switch {
	case err == nil:
		return CodeUnknown
	case errors.As(err, &errno):
		if code, ok := errnoCodes[errno]; ok {
			return code
		}
		return CodeOther
	case errors.Is(err, errWouldBlock):
		return CodeWouldBlock
	case errors.Is(err, ErrInvalidDiscriminator):
		return CodeInvalidDiscriminator
	case errors.Is(err, os.ErrNotExist):
		return CodeNotFound
	case errors.Is(err, os.ErrPermission):
		return CodePermissionDenied
	case errors.Is(err, os.ErrExist):
		return CodeAlreadyExists
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return CodeTimedOut
	case errors.Is(err, io.ErrUnexpectedEOF):
		return CodeUnexpectedEOF
	case errors.Is(err, io.ErrShortWrite):
		return CodeWriteZero
	case errors.Is(err, io.ErrClosedPipe), errors.Is(err, os.ErrClosed), errors.Is(err, fibre.ErrClosed):
		return CodeBrokenPipe
	case errors.Is(err, errors.ErrUnsupported):
		return CodeUnsupported
	case errors.Is(err, fibre.ErrTypeMismatch):
		return CodeInvalidData
	default:
		return CodeOther
	}
}
