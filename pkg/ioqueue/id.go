package ioqueue

import (
	"strconv"
	"sync/atomic"
)

// ID names a reader or a writer registered on a `Queue`, guests put it in
// the first field of their submissions.
type ID uint64

var (
	nextWriteID atomic.Uint64
	nextReadID  atomic.Uint64
)

func init() {
	nextWriteID.Store(1)
	nextReadID.Store(2)
}

// GenerateWriteID returns a process-unique odd ID.
func GenerateWriteID() ID {
	return ID(nextWriteID.Add(2) - 2)
}

// GenerateReadID returns a process-unique even ID.
func GenerateReadID() ID {
	return ID(nextReadID.Add(2) - 2)
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
