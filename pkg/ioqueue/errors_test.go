package ioqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/raskyld/fibre"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestErrors_CodeFromError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{unix.EPIPE, CodeBrokenPipe},
		{fmt.Errorf("write: %w", unix.ECONNRESET), CodeConnectionReset},
		{unix.EXDEV, CodeOther},
		{errWouldBlock, CodeWouldBlock},
		{&os.PathError{Op: "open", Path: "/nope", Err: unix.ENOENT}, CodeNotFound},
		{os.ErrPermission, CodePermissionDenied},
		{context.DeadlineExceeded, CodeTimedOut},
		{io.ErrUnexpectedEOF, CodeUnexpectedEOF},
		{io.ErrShortWrite, CodeWriteZero},
		{io.ErrClosedPipe, CodeBrokenPipe},
		{fibre.ErrClosed, CodeBrokenPipe},
		{&fibre.TypeMismatchError{Expected: fibre.KindByte, Got: fibre.KindString}, CodeInvalidData},
		{fmt.Errorf("%w: 9", ErrInvalidDiscriminator), CodeInvalidDiscriminator},
		{errors.ErrUnsupported, CodeUnsupported},
		{errors.New("boom"), CodeOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CodeFromError(tc.err), "%v", tc.err)
	}
}

func TestErrors_CodeString(t *testing.T) {
	require.Equal(t, "invalid_io_id", CodeInvalidIoID.String())
	require.Equal(t, "broken_pipe", CodeBrokenPipe.String())
	require.Equal(t, "code(55)", ErrorCode(55).String())

	// Codes are part of the guest ABI.
	require.Equal(t, ErrorCode(1), CodeInvalidIoID)
	require.Equal(t, ErrorCode(2), CodeInvalidDiscriminator)
	require.Equal(t, ErrorCode(100), CodeWouldBlock)
	require.Equal(t, ErrorCode(119), CodeOther)
}

func TestID_Generate(t *testing.T) {
	seen := make(map[ID]struct{})
	for range 100 {
		w, r := GenerateWriteID(), GenerateReadID()
		require.Equal(t, ID(1), w%2, "write ids are odd")
		require.Equal(t, ID(0), r%2, "read ids are even")
		require.NotZero(t, r)

		for _, id := range []ID{w, r} {
			_, dup := seen[id]
			require.False(t, dup, "id %s generated twice", id)
			seen[id] = struct{}{}
		}
	}
}
