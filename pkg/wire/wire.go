// Package wire holds the representation of channels used when they cross
// a process boundary, and its binary encoding.
//
// The encoding is compatible with the following protobuf messages:
//
//	message Strings  { repeated string values = 1; }
//	message Integers { repeated int64  values = 1; }
//	message Floats   { repeated double values = 1; }
//	message Booleans { repeated bool   values = 1; }
//	message Bytes    { bytes values = 1; }
//
//	message Channel {
//	  oneof value {
//	    Strings strings = 1;
//	    Integers integers = 2;
//	    Floats floats = 3;
//	    Booleans booleans = 4;
//	    Bytes bytes = 5;
//	  }
//	}
//
//	message Stream { map<string, Channel> channels = 1; }
//
// A `Channel` without value is a channel of the null kind.
package wire

// Stream is a named collection of channels.
type Stream struct {
	Channels map[string]*Channel
}

// Channel is the content of one channel. A nil `Value` stands for the
// null kind.
type Channel struct {
	Value Value
}

// Value is one of `*Strings`, `*Integers`, `*Floats`, `*Booleans` or
// `*Bytes`.
type Value interface {
	isValue()
}

type (
	Strings struct {
		Values []string
	}
	Integers struct {
		Values []int64
	}
	Floats struct {
		Values []float64
	}
	Booleans struct {
		Values []bool
	}
	Bytes struct {
		Values []byte
	}
)

func (*Strings) isValue()  {}
func (*Integers) isValue() {}
func (*Floats) isValue()   {}
func (*Booleans) isValue() {}
func (*Bytes) isValue()    {}

// Len is the number of elements of the channel.
func (ch *Channel) Len() int {
	if ch == nil {
		return 0
	}
	switch v := ch.Value.(type) {
	case *Strings:
		return len(v.Values)
	case *Integers:
		return len(v.Values)
	case *Floats:
		return len(v.Values)
	case *Booleans:
		return len(v.Values)
	case *Bytes:
		return len(v.Values)
	default:
		return 0
	}
}
