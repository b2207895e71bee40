package wire

import "errors"

var (
	ErrMalformed     = errors.New("wire: malformed message")
	ErrTooLargeFrame = errors.New("wire: frame is too large")
)
