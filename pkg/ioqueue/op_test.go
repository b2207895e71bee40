package ioqueue

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/raskyld/fibre"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) PollWrite(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) PollRead(p []byte) (int, bool, error) {
	args := m.Called(p)
	n := args.Int(0)
	if data, ok := args.Get(3).([]byte); ok {
		copy(p, data)
	}
	return n, args.Bool(1), args.Error(2)
}

func TestOp_ReadChunks(t *testing.T) {
	data := strings.Repeat("x", 2*BufferSize+10)
	op := newReadOp(9, uint64(len(data)), FromReader(strings.NewReader(data)))

	require.False(t, op.update())
	require.Len(t, op.buf, BufferSize)
	require.False(t, op.update())
	require.True(t, op.update())

	c := op.completion()
	require.Equal(t, ReadComplete, c.Kind)
	require.Equal(t, uint64(9), c.Userdata)
	require.Equal(t, data, string(c.Payload))
}

func TestOp_ReadShortAtEOF(t *testing.T) {
	op := newReadOp(1, 10, FromReader(strings.NewReader("abc")))
	require.False(t, op.update())
	require.True(t, op.update())
	require.Equal(t, Completion{Userdata: 1, Kind: ReadComplete, Payload: []byte("abc")}, op.completion())
}

func TestOp_ReadPending(t *testing.T) {
	r := &mockReader{}
	r.On("PollRead", mock.Anything).Return(0, false, nil, nil).Once()
	r.On("PollRead", mock.Anything).Return(2, true, nil, []byte("hi")).Once()
	op := newReadOp(3, 2, r)

	require.False(t, op.update())
	require.Empty(t, op.buf, "a pending read keeps nothing")
	require.True(t, op.update())
	require.Equal(t, []byte("hi"), op.completion().Payload)
	r.AssertExpectations(t)
}

func TestOp_ReadFailed(t *testing.T) {
	r := &mockReader{}
	r.On("PollRead", mock.Anything).Return(0, false, os.ErrPermission, nil).Once()
	op := newReadOp(4, 8, r)

	require.True(t, op.update())
	require.True(t, op.update(), "a failed op stays done")
	require.Equal(t, Completion{Userdata: 4, Kind: ReadFailed, Code: CodePermissionDenied}, op.completion())
	r.AssertExpectations(t)
}

func TestOp_WritePartial(t *testing.T) {
	w := &mockWriter{}
	w.On("PollWrite", []byte("hello")).Return(2, nil).Once()
	w.On("PollWrite", []byte("llo")).Return(0, nil).Once()
	w.On("PollWrite", []byte("llo")).Return(3, nil).Once()
	op := newWriteOp(8, []byte("hello"), w)

	require.False(t, op.update())
	require.False(t, op.update())
	require.True(t, op.update())
	require.Equal(t, Completion{Userdata: 8, Kind: WriteComplete}, op.completion())
	w.AssertExpectations(t)
}

func TestOp_WriteFailed(t *testing.T) {
	w := &mockWriter{}
	w.On("PollWrite", mock.Anything).Return(1, fibre.ErrClosed).Once()
	op := newWriteOp(8, []byte("hello"), w)

	require.True(t, op.update())
	require.Equal(t, 1, op.written)
	require.Equal(t, Completion{Userdata: 8, Kind: WriteFailed, Code: CodeBrokenPipe}, op.completion())
	w.AssertExpectations(t)
}

func TestOp_ChannelAdapters(t *testing.T) {
	fb, err := fibre.Create(fibre.WithName("ioqueue-test"))
	require.NoError(t, err)

	_, err = NewChannelReader(fb.NewChannel(fibre.KindString).Reader())
	require.ErrorIs(t, err, ErrNotByteChannel)
	_, err = NewChannelWriter(fb.NewChannel(fibre.KindInteger))
	require.ErrorIs(t, err, ErrNotByteChannel)

	ch := fb.NewChannel(fibre.KindByte)
	w, err := NewChannelWriter(ch)
	require.NoError(t, err)
	r, err := NewChannelReader(ch.NewCursor())
	require.NoError(t, err)

	var buf [4]byte
	_, ok, err := r.PollRead(buf[:])
	require.NoError(t, err)
	require.False(t, ok, "nothing to read yet")

	payload := []byte("fibre")
	n, err := w.PollWrite(payload)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	payload[0] = 'F'

	n, ok, err = r.PollRead(buf[:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fibr", string(buf[:n]), "written bytes are copied")

	require.NoError(t, w.Close())
	n, ok, err = r.PollRead(buf[:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "e", string(buf[:n]))

	n, ok, err = r.PollRead(buf[:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, n, "end of stream")

	var out bytes.Buffer
	tail, err := NewChannelReader(ch.NewCursor())
	require.NoError(t, err)
	_, err = out.ReadFrom(tail)
	require.NoError(t, err)
	require.Equal(t, "fibre", out.String())
}
