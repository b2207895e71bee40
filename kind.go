package fibre

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/exp/constraints"
)

// Kind is the element type of a `Channel`. It is fixed when the channel
// is created and never changes afterwards.
type Kind uint8

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindByte
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "strings"
	case KindInteger:
		return "integers"
	case KindFloat:
		return "floats"
	case KindBoolean:
		return "booleans"
	case KindByte:
		return "bytes"
	case KindNull:
		return "null"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

// ParseKind accepts both the singular and the plural spelling of a kind,
// plus the short forms used in function manifests (`int`, `bool`).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "strings":
		return KindString, nil
	case "int", "integer", "integers":
		return KindInteger, nil
	case "float", "floats":
		return KindFloat, nil
	case "bool", "boolean", "booleans":
		return KindBoolean, nil
	case "byte", "bytes":
		return KindByte, nil
	case "null", "none":
		return KindNull, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Values is a homogeneous slice of channel elements. The concrete type
// carries the `Kind`, which is how appends get type-checked.
//
// The set of implementations is closed: `Strings`, `Integers`, `Floats`,
// `Booleans`, `Bytes` and `Null`.
type Values interface {
	Kind() Kind
	Len() int
	values()
}

type (
	Strings  []string
	Integers []int64
	Floats   []float64
	Booleans []bool
	Bytes    []byte
	// Null is the only value of the null kind, it holds no element.
	Null struct{}
)

func (Strings) Kind() Kind  { return KindString }
func (Integers) Kind() Kind { return KindInteger }
func (Floats) Kind() Kind   { return KindFloat }
func (Booleans) Kind() Kind { return KindBoolean }
func (Bytes) Kind() Kind    { return KindByte }
func (Null) Kind() Kind     { return KindNull }

func (v Strings) Len() int  { return len(v) }
func (v Integers) Len() int { return len(v) }
func (v Floats) Len() int   { return len(v) }
func (v Booleans) Len() int { return len(v) }
func (v Bytes) Len() int    { return len(v) }
func (Null) Len() int       { return 0 }

func (Strings) values()  {}
func (Integers) values() {}
func (Floats) values()   {}
func (Booleans) values() {}
func (Bytes) values()    {}
func (Null) values()     {}

// IntegersOf widens any Go integer slice to `Integers`.
func IntegersOf[T constraints.Integer](vs ...T) Integers {
	out := make(Integers, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}

// FloatsOf widens any Go float slice to `Floats`.
func FloatsOf[T constraints.Float](vs ...T) Floats {
	out := make(Floats, len(vs))
	for i, v := range vs {
		out[i] = float64(v)
	}
	return out
}

// Native lists the Go element types a view can be converted to.
type Native interface {
	string | int64 | float64 | bool | byte
}

// As returns the elements of `vs` as a `[]T`.
//
// It fails with a `*TypeMismatchError` if `T` is not the native type of
// the kind of `vs`. The returned slice aliases `vs`, callers MUST NOT
// modify it.
func As[T Native](vs Values) ([]T, error) {
	var (
		out any
		ok  bool
	)
	switch v := vs.(type) {
	case Strings:
		out, ok = any([]string(v)).([]T)
	case Integers:
		out, ok = any([]int64(v)).([]T)
	case Floats:
		out, ok = any([]float64(v)).([]T)
	case Booleans:
		out, ok = any([]bool(v)).([]T)
	case Bytes:
		out, ok = any([]byte(v)).([]T)
	}
	if !ok {
		got := KindNull
		if vs != nil {
			got = vs.Kind()
		}
		return nil, &TypeMismatchError{Expected: KindOf[T](), Got: got}
	}
	return out.([]T), nil
}

// KindOf returns the kind whose native element type is `T`.
func KindOf[T Native]() Kind {
	var zero T
	switch any(zero).(type) {
	case string:
		return KindString
	case int64:
		return KindInteger
	case float64:
		return KindFloat
	case bool:
		return KindBoolean
	default:
		return KindByte
	}
}

// ValuesOf wraps `vs` in the `Values` of kind `KindOf[T]`. The slice is
// not copied.
func ValuesOf[T Native](vs []T) Values {
	switch v := any(vs).(type) {
	case []string:
		return Strings(v)
	case []int64:
		return Integers(v)
	case []float64:
		return Floats(v)
	case []bool:
		return Booleans(v)
	case []byte:
		return Bytes(v)
	}
	return Null{}
}

// emptyValues returns an empty, non-nil `Values` of kind `k`.
func emptyValues(k Kind) Values {
	switch k {
	case KindString:
		return Strings{}
	case KindInteger:
		return Integers{}
	case KindFloat:
		return Floats{}
	case KindBoolean:
		return Booleans{}
	case KindByte:
		return Bytes{}
	default:
		return Null{}
	}
}
