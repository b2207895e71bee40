package fibre

import (
	"slices"

	"github.com/raskyld/fibre/pkg/wire"
)

// ValuesFromWire converts a wire channel to `Values`. Elements are copied
// and keep their order; a nil channel or value is `Null`.
func ValuesFromWire(ch *wire.Channel) Values {
	if ch == nil {
		return Null{}
	}
	switch v := ch.Value.(type) {
	case *wire.Strings:
		return Strings(slices.Clone(v.Values))
	case *wire.Integers:
		return Integers(slices.Clone(v.Values))
	case *wire.Floats:
		return Floats(slices.Clone(v.Values))
	case *wire.Booleans:
		return Booleans(slices.Clone(v.Values))
	case *wire.Bytes:
		return Bytes(slices.Clone(v.Values))
	default:
		return Null{}
	}
}

// ValuesToWire converts `vs` to its wire form, copying the elements.
func ValuesToWire(vs Values) *wire.Channel {
	switch v := vs.(type) {
	case Strings:
		return &wire.Channel{Value: &wire.Strings{Values: slices.Clone([]string(v))}}
	case Integers:
		return &wire.Channel{Value: &wire.Integers{Values: slices.Clone([]int64(v))}}
	case Floats:
		return &wire.Channel{Value: &wire.Floats{Values: slices.Clone([]float64(v))}}
	case Booleans:
		return &wire.Channel{Value: &wire.Booleans{Values: slices.Clone([]bool(v))}}
	case Bytes:
		return &wire.Channel{Value: &wire.Bytes{Values: slices.Clone([]byte(v))}}
	default:
		return &wire.Channel{}
	}
}

// Snapshot returns everything appended to the channel so far, in wire
// form. The cursor position is left untouched.
func (c *Cursor) Snapshot() *wire.Channel {
	c.core.lk.RLock()
	vs := c.core.buf.Slice(0, c.core.buf.Len())
	c.core.lk.RUnlock()
	return ValuesToWire(vs)
}
