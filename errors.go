package fibre

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCfg  = errors.New("fabric: invalid options")
	ErrUnknownKind = errors.New("fabric: unknown element kind")

	ErrTypeMismatch   = errors.New("channel: type mismatch")
	ErrClosed         = errors.New("channel: is closed")
	ErrAlreadySeeking = errors.New("channel: a seek is already in progress")
	ErrInvalidSeek    = errors.New("channel: invalid seek")

	ErrNonExistingChannel = errors.New("set: channel does not exist")

	ErrSpecValidation         = errors.New("spec: validation failed")
	ErrRequiredChannelMissing = errors.New("spec: required channel missing")
	ErrMismatchedChannelType  = errors.New("spec: mismatched channel type")
	ErrUnexpectedChannel      = errors.New("spec: unexpected channel")
	ErrInvalidSpecDocument    = errors.New("spec: invalid document")
)

// TypeMismatchError is returned when values of one kind are appended to,
// or read as, another kind.
type TypeMismatchError struct {
	Expected Kind
	Got      Kind
}

func (err *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %q, got %q", ErrTypeMismatch, err.Expected, err.Got)
}

func (err *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// ChannelError attaches the name of the channel an operation on a
// `WriterSet` or `ReaderSet` failed on.
type ChannelError struct {
	Channel string
	Err     error
}

func (err *ChannelError) Error() string {
	return fmt.Sprintf("channel %q: %s", err.Channel, err.Err)
}

func (err *ChannelError) Unwrap() error {
	return err.Err
}

// SpecErrorKind tells which rule of a spec a `ChannelSet` violates.
type SpecErrorKind uint8

const (
	RequiredMissing SpecErrorKind = iota
	Mismatched
	Unexpected
)

func (kind SpecErrorKind) String() string {
	switch kind {
	case RequiredMissing:
		return "required channel missing"
	case Mismatched:
		return "mismatched channel type"
	case Unexpected:
		return "unexpected channel"
	default:
		return "unknown"
	}
}

// SpecError is a single violation found by `Validate`.
//
// `Expected` and `Got` are only meaningful for `Mismatched`.
type SpecError struct {
	Kind     SpecErrorKind
	Channel  string
	Expected Kind
	Got      Kind
}

func (err *SpecError) Error() string {
	switch err.Kind {
	case Mismatched:
		return fmt.Sprintf(
			"channel %q has unexpected type: expected %q, got %q",
			err.Channel, err.Expected, err.Got,
		)
	case Unexpected:
		return fmt.Sprintf("channel %q was not expected by spec", err.Channel)
	default:
		return fmt.Sprintf("failed to find required channel %q", err.Channel)
	}
}

func (err *SpecError) Unwrap() error {
	switch err.Kind {
	case Mismatched:
		return ErrMismatchedChannelType
	case Unexpected:
		return ErrUnexpectedChannel
	default:
		return ErrRequiredChannelMissing
	}
}

func (err *SpecError) Is(target error) bool {
	return target == ErrSpecValidation
}
