// Package flow offers buffered and strongly typed handles over fibre
// channels, for producers and consumers that deal with one element at a
// time.
//
// A [Sender] batches the elements it is given into channel appends, a
// [Receiver] reads the channel in chunks ahead of its caller. Both run a
// goroutine until they are closed.
package flow

import (
	"errors"
	"fmt"

	"github.com/raskyld/fibre"
)

var (
	ErrFlowClosed = errors.New("flow: closed")
)

func checkKind[T fibre.Native](k fibre.Kind) error {
	if want := fibre.KindOf[T](); k != want {
		return fmt.Errorf("flow: %w", &fibre.TypeMismatchError{Expected: k, Got: want})
	}
	return nil
}
