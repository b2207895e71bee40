package wire

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldStreamChannels protowire.Number = 1

	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2

	fieldStrings  protowire.Number = 1
	fieldIntegers protowire.Number = 2
	fieldFloats   protowire.Number = 3
	fieldBooleans protowire.Number = 4
	fieldBytes    protowire.Number = 5

	fieldValues protowire.Number = 1
)

// Marshal encodes the stream. Map entries are written in lexical order of
// their names so the output is deterministic.
func (s *Stream) Marshal() ([]byte, error) {
	return s.AppendMarshal(nil), nil
}

// AppendMarshal appends the encoding of the stream to `b`.
func (s *Stream) AppendMarshal(b []byte) []byte {
	if s == nil {
		return b
	}
	for _, name := range slices.Sorted(maps.Keys(s.Channels)) {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, fieldEntryValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, s.Channels[name].AppendMarshal(nil))

		b = protowire.AppendTag(b, fieldStreamChannels, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// Unmarshal replaces the content of the stream with the decoding of `b`.
func (s *Stream) Unmarshal(b []byte) error {
	s.Channels = make(map[string]*Channel)
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldStreamChannels || typ != protowire.BytesType {
			return skipField(num, typ, b)
		}
		entry, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		name, ch, err := unmarshalEntry(entry)
		if err != nil {
			return 0, err
		}
		s.Channels[name] = ch
		return n, nil
	})
}

func unmarshalEntry(b []byte) (string, *Channel, error) {
	var (
		name string
		ch   = &Channel{}
	)
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldEntryKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			name = v
			return n, nil
		case num == fieldEntryValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			ch = &Channel{}
			return n, ch.Unmarshal(v)
		default:
			return skipField(num, typ, b)
		}
	})
	return name, ch, err
}

// Marshal encodes the channel.
func (ch *Channel) Marshal() ([]byte, error) {
	return ch.AppendMarshal(nil), nil
}

// AppendMarshal appends the encoding of the channel to `b`.
func (ch *Channel) AppendMarshal(b []byte) []byte {
	if ch == nil || ch.Value == nil {
		return b
	}

	var (
		num  protowire.Number
		body []byte
	)
	switch v := ch.Value.(type) {
	case *Strings:
		num = fieldStrings
		for _, s := range v.Values {
			body = protowire.AppendTag(body, fieldValues, protowire.BytesType)
			body = protowire.AppendString(body, s)
		}
	case *Integers:
		num = fieldIntegers
		if len(v.Values) > 0 {
			var packed []byte
			for _, i := range v.Values {
				packed = protowire.AppendVarint(packed, uint64(i))
			}
			body = appendPacked(body, packed)
		}
	case *Floats:
		num = fieldFloats
		if len(v.Values) > 0 {
			packed := make([]byte, 0, 8*len(v.Values))
			for _, f := range v.Values {
				packed = protowire.AppendFixed64(packed, math.Float64bits(f))
			}
			body = appendPacked(body, packed)
		}
	case *Booleans:
		num = fieldBooleans
		if len(v.Values) > 0 {
			packed := make([]byte, 0, len(v.Values))
			for _, t := range v.Values {
				packed = protowire.AppendVarint(packed, protowire.EncodeBool(t))
			}
			body = appendPacked(body, packed)
		}
	case *Bytes:
		num = fieldBytes
		if len(v.Values) > 0 {
			body = protowire.AppendTag(body, fieldValues, protowire.BytesType)
			body = protowire.AppendBytes(body, v.Values)
		}
	default:
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendPacked(b, packed []byte) []byte {
	b = protowire.AppendTag(b, fieldValues, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// Unmarshal replaces the content of the channel with the decoding of `b`.
// Both packed and unpacked repeated scalars are accepted.
func (ch *Channel) Unmarshal(b []byte) error {
	ch.Value = nil
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType || num < fieldStrings || num > fieldBytes {
			return skipField(num, typ, b)
		}
		body, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		var (
			v   Value
			err error
		)
		switch num {
		case fieldStrings:
			v, err = unmarshalStrings(body)
		case fieldIntegers:
			v, err = unmarshalIntegers(body)
		case fieldFloats:
			v, err = unmarshalFloats(body)
		case fieldBooleans:
			v, err = unmarshalBooleans(body)
		case fieldBytes:
			v, err = unmarshalBytes(body)
		}
		if err != nil {
			return 0, err
		}
		// Last arm of a oneof wins.
		ch.Value = v
		return n, nil
	})
}

func unmarshalStrings(b []byte) (Value, error) {
	out := &Strings{Values: []string{}}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldValues || typ != protowire.BytesType {
			return skipField(num, typ, b)
		}
		s, n := protowire.ConsumeString(b)
		if n >= 0 {
			out.Values = append(out.Values, s)
		}
		return n, nil
	})
	return out, err
}

func unmarshalIntegers(b []byte) (Value, error) {
	out := &Integers{Values: []int64{}}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldValues {
			return skipField(num, typ, b)
		}
		return consumeScalars(typ, protowire.VarintType, b, func(b []byte) int {
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				out.Values = append(out.Values, int64(v))
			}
			return n
		})
	})
	return out, err
}

func unmarshalFloats(b []byte) (Value, error) {
	out := &Floats{Values: []float64{}}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldValues {
			return skipField(num, typ, b)
		}
		return consumeScalars(typ, protowire.Fixed64Type, b, func(b []byte) int {
			v, n := protowire.ConsumeFixed64(b)
			if n >= 0 {
				out.Values = append(out.Values, math.Float64frombits(v))
			}
			return n
		})
	})
	return out, err
}

func unmarshalBooleans(b []byte) (Value, error) {
	out := &Booleans{Values: []bool{}}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldValues {
			return skipField(num, typ, b)
		}
		return consumeScalars(typ, protowire.VarintType, b, func(b []byte) int {
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				out.Values = append(out.Values, protowire.DecodeBool(v))
			}
			return n
		})
	})
	return out, err
}

func unmarshalBytes(b []byte) (Value, error) {
	out := &Bytes{Values: []byte{}}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldValues || typ != protowire.BytesType {
			return skipField(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n >= 0 {
			out.Values = append(out.Values[:0], v...)
		}
		return n, nil
	})
	return out, err
}

// consumeScalars decodes either one unpacked scalar of type `want`, or a
// packed run of them.
func consumeScalars(typ, want protowire.Type, b []byte, one func([]byte) int) (int, error) {
	switch typ {
	case want:
		return one(b), nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		for len(packed) > 0 {
			m := one(packed)
			if m < 0 {
				return 0, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(m))
			}
			packed = packed[m:]
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unexpected wire type %d for packed field", ErrMalformed, typ)
	}
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return protowire.ConsumeFieldValue(num, typ, b), nil
}

// consumeFields walks the fields of a message. `fn` receives the bytes
// following the tag and returns how many of them the field value used, or
// a negative protowire error code.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
