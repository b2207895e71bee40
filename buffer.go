package fibre

// Buffer is an append-only sequence of elements of a single `Kind`.
//
// Buffer is not safe for concurrent use, `Channel` guards it with a
// read-write lock. Elements are never modified once appended, which means
// a slice handed out by `Slice` stays valid after further appends.
type Buffer struct {
	kind Kind
	data Values
}

// NewBuffer returns an empty buffer of kind `k`.
func NewBuffer(k Kind) *Buffer {
	return &Buffer{kind: k, data: emptyValues(k)}
}

// BufferOf returns a buffer holding a copy of `vs`, its kind is the kind
// of `vs`.
func BufferOf(vs Values) *Buffer {
	if vs == nil {
		vs = Null{}
	}
	buf := NewBuffer(vs.Kind())
	// Cannot fail, kinds match by construction.
	_ = buf.Append(vs)
	return buf
}

func (b *Buffer) Kind() Kind {
	return b.kind
}

func (b *Buffer) Len() int {
	return b.data.Len()
}

// Append adds `vs` at the end of the buffer. On a kind mismatch, it
// returns a `*TypeMismatchError` and the buffer is left untouched.
func (b *Buffer) Append(vs Values) error {
	if vs == nil {
		return &TypeMismatchError{Expected: b.kind, Got: KindNull}
	}
	if vs.Kind() != b.kind {
		return &TypeMismatchError{Expected: b.kind, Got: vs.Kind()}
	}

	switch cur := b.data.(type) {
	case Strings:
		b.data = append(cur, vs.(Strings)...)
	case Integers:
		b.data = append(cur, vs.(Integers)...)
	case Floats:
		b.data = append(cur, vs.(Floats)...)
	case Booleans:
		b.data = append(cur, vs.(Booleans)...)
	case Bytes:
		b.data = append(cur, vs.(Bytes)...)
	case Null:
		// nothing to store.
	}
	return nil
}

// Slice returns the elements in `[start, end)`. Bounds are clamped to
// the current length. The result aliases the buffer storage and has
// its capacity capped so appending to it never writes into the buffer.
func (b *Buffer) Slice(start, end int) Values {
	n := b.Len()
	end = min(max(end, 0), n)
	start = min(max(start, 0), end)

	switch cur := b.data.(type) {
	case Strings:
		return cur[start:end:end]
	case Integers:
		return cur[start:end:end]
	case Floats:
		return cur[start:end:end]
	case Booleans:
		return cur[start:end:end]
	case Bytes:
		return cur[start:end:end]
	default:
		return Null{}
	}
}

// SliceAs is `Slice` followed by `As`.
func SliceAs[T Native](b *Buffer, start, end int) ([]T, error) {
	return As[T](b.Slice(start, end))
}
