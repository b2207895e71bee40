package fibre

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind_Parse(t *testing.T) {
	cases := map[string]Kind{
		"string":   KindString,
		"Strings":  KindString,
		"int":      KindInteger,
		"integers": KindInteger,
		"float":    KindFloat,
		"bool":     KindBoolean,
		"booleans": KindBoolean,
		" bytes ":  KindByte,
		"null":     KindNull,
		"none":     KindNull,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseKind("complex")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestKind_As(t *testing.T) {
	ints, err := As[int64](Integers{1, 2})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, ints)

	_, err = As[string](Integers{1, 2})
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, KindString, mismatch.Expected)
	require.Equal(t, KindInteger, mismatch.Got)
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = As[byte](Null{})
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, KindNull, mismatch.Got)
}

func TestKind_Conversions(t *testing.T) {
	require.Equal(t, Integers{1, -2, 3}, IntegersOf[int8](1, -2, 3))
	require.Equal(t, Integers{7}, IntegersOf[uint16](7))
	require.Equal(t, Floats{0.5, 2}, FloatsOf[float32](0.5, 2))
	require.Equal(t, KindNull, Null{}.Kind())
	require.Equal(t, 0, Null{}.Len())

	require.Equal(t, Strings{"a"}, ValuesOf([]string{"a"}))
	require.Equal(t, Bytes("ab"), ValuesOf([]byte("ab")))
	require.Equal(t, KindBoolean, ValuesOf([]bool{true}).Kind())
	require.Equal(t, KindFloat, KindOf[float64]())
	require.Equal(t, KindByte, KindOf[byte]())
}
