package fibre

import (
	"context"
	"iter"
	"maps"
	"slices"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/hashicorp/go-multierror"
	"github.com/raskyld/fibre/pkg/wire"
)

// Set is implemented by both `WriterSet` and `ReaderSet`.
type Set interface {
	Has(name string) bool
	Len() int
	Names() []string
	Cursor(name string) (*Cursor, bool)

	entries() channelMap
}

var (
	_ Set = (*WriterSet)(nil)
	_ Set = (*ReaderSet)(nil)
)

// channelMap is the representation shared by writer and reader sets.
// The tree is immutable, so building a set returns a new map and sets
// never alias each other's entries.
type channelMap struct {
	tree *iradix.Tree
}

func newChannelMap() channelMap {
	return channelMap{tree: iradix.New()}
}

func (m channelMap) insert(name string, ch *Channel) channelMap {
	tree, _, _ := m.tree.Insert([]byte(name), ch)
	return channelMap{tree: tree}
}

func (m channelMap) get(name string) (*Channel, bool) {
	if m.tree == nil {
		return nil, false
	}
	v, ok := m.tree.Get([]byte(name))
	if !ok {
		return nil, false
	}
	return v.(*Channel), true
}

func (m channelMap) entries() channelMap {
	return m
}

func (m channelMap) walk(prefix string) iter.Seq2[string, *Channel] {
	return func(yield func(string, *Channel) bool) {
		if m.tree == nil {
			return
		}
		m.tree.Root().WalkPrefix([]byte(prefix), func(k []byte, v interface{}) bool {
			return !yield(string(k), v.(*Channel))
		})
	}
}

// Has reports whether the set holds a channel called `name`.
func (m channelMap) Has(name string) bool {
	_, ok := m.get(name)
	return ok
}

func (m channelMap) Len() int {
	if m.tree == nil {
		return 0
	}
	return m.tree.Len()
}

// Names of the channels, in lexical order.
func (m channelMap) Names() []string {
	names := make([]string, 0, m.Len())
	for name := range m.walk("") {
		names = append(names, name)
	}
	return names
}

// Cursor returns the read handle of the channel called `name`.
func (m channelMap) Cursor(name string) (*Cursor, bool) {
	ch, ok := m.get(name)
	if !ok {
		return nil, false
	}
	return &ch.Cursor, true
}

// All iterates over the channels in lexical order of their names.
func (m channelMap) All() iter.Seq2[string, *Cursor] {
	return m.WithPrefix("")
}

// WithPrefix iterates, in lexical order, over the channels whose name
// starts with `prefix`.
func (m channelMap) WithPrefix(prefix string) iter.Seq2[string, *Cursor] {
	return func(yield func(string, *Cursor) bool) {
		for name, ch := range m.walk(prefix) {
			if !yield(name, &ch.Cursor) {
				return
			}
		}
	}
}

// ReadChannel is `Cursor.Read` on the channel called `name`.
func (m channelMap) ReadChannel(ctx context.Context, name string, n int) (View, error) {
	ch, ok := m.get(name)
	if !ok {
		return View{}, &ChannelError{Channel: name, Err: ErrNonExistingChannel}
	}
	view, err := ch.Read(ctx, n)
	if err != nil {
		return View{}, &ChannelError{Channel: name, Err: err}
	}
	return view, nil
}

// Validate checks the set against `required` and `optional` specs.
//
// All the violations are reported at once, as a `*multierror.Error` of
// `*SpecError`. Required channels are checked first, then optional ones,
// then unexpected channels, each group in lexical order.
func (m channelMap) Validate(required, optional ChannelSpecs) error {
	return validateSet(m, required, optional)
}

func validateSet(m channelMap, required, optional ChannelSpecs) error {
	var merr *multierror.Error
	check := func(name string, spec ChannelSpec, mandatory bool) {
		ch, ok := m.get(name)
		switch {
		case !ok && mandatory:
			merr = multierror.Append(merr, &SpecError{Kind: RequiredMissing, Channel: name})
		case ok && ch.Kind() != spec.Kind:
			merr = multierror.Append(merr, &SpecError{
				Kind:     Mismatched,
				Channel:  name,
				Expected: spec.Kind,
				Got:      ch.Kind(),
			})
		}
	}

	for _, name := range slices.Sorted(maps.Keys(required)) {
		check(name, required[name], true)
	}
	for _, name := range slices.Sorted(maps.Keys(optional)) {
		if _, dup := required[name]; dup {
			continue
		}
		check(name, optional[name], false)
	}
	for name := range m.walk("") {
		_, isRequired := required[name]
		_, isOptional := optional[name]
		if !isRequired && !isOptional {
			merr = multierror.Append(merr, &SpecError{Kind: Unexpected, Channel: name})
		}
	}

	err := merr.ErrorOrNil()
	if fb := m.fabric(); fb != nil {
		if err != nil {
			fb.msink.IncrCounterWithLabels(MetricSetValidationErrorCount, float32(merr.Len()), fb.labels)
			fb.logger.Debug("channel set does not match its spec", LabelError.L(err))
		} else {
			fb.msink.IncrCounterWithLabels(MetricSetValidationSuccessCount, 1, fb.labels)
		}
	}
	return err
}

// fabric of the first channel, nil for an empty set.
func (m channelMap) fabric() *Fabric {
	for _, ch := range m.walk("") {
		return ch.core.fb
	}
	return nil
}

// SameChannels reports whether both sets hold the same names bound to the
// same underlying channels, regardless of cursor positions.
func (m channelMap) SameChannels(other Set) bool {
	o := other.entries()
	if m.Len() != o.Len() {
		return false
	}
	for name, ch := range m.walk("") {
		och, ok := o.get(name)
		if !ok || !ch.SameChannel(&och.Cursor) {
			return false
		}
	}
	return true
}

// ToWire takes a snapshot of every channel, from the start, without
// moving any cursor.
func (m channelMap) ToWire() *wire.Stream {
	stream := &wire.Stream{Channels: make(map[string]*wire.Channel, m.Len())}
	for name, ch := range m.walk("") {
		stream.Channels[name] = ch.Snapshot()
	}
	return stream
}

// Reader derives a `ReaderSet` holding a new cursor onto every channel,
// each starting at the position of the source entry.
func (m channelMap) Reader() *ReaderSet {
	out := newChannelMap()
	for name, ch := range m.walk("") {
		out = out.insert(name, ch.handle())
	}
	return &ReaderSet{channelMap: out}
}

// MergeSide tells which operand of a merge an entry comes from.
type MergeSide uint8

const (
	Left MergeSide = iota
	Right
)

// MergeEntry is what `MergeWith` hands to its selection function.
type MergeEntry struct {
	Side   MergeSide
	Name   string
	Cursor *Cursor
}

// Merge returns the union of both sets, entries of `other` win on name
// collisions. Every entry of the result is a new cursor onto the shared
// channel.
func (m channelMap) Merge(other Set) *ReaderSet {
	return m.MergeWith(other, func(e MergeEntry) (string, bool) {
		return e.Name, true
	})
}

// MergeWith calls `f` on every entry of the receiver, then on every entry
// of `other`. `f` returns the name to store the entry under, and false to
// leave it out. A later entry stored under the same name replaces the
// earlier one.
func (m channelMap) MergeWith(other Set, f func(MergeEntry) (string, bool)) *ReaderSet {
	out := newChannelMap()
	visit := func(side MergeSide, src channelMap) {
		for name, ch := range src.walk("") {
			target, keep := f(MergeEntry{Side: side, Name: name, Cursor: &ch.Cursor})
			if keep {
				out = out.insert(target, ch.handle())
			}
		}
	}
	visit(Left, m)
	visit(Right, other.entries())
	return &ReaderSet{channelMap: out}
}

// WriterSet is a named collection of channels with write capability.
// Build one with `NewWriterSet` or `WriterSetFromWire`.
type WriterSet struct {
	channelMap
}

// Channel returns the writing handle of the channel called `name`.
func (set *WriterSet) Channel(name string) (*Channel, bool) {
	return set.get(name)
}

// AppendChannel appends `vs` to the channel called `name`. Errors are
// `*ChannelError` wrapping `ErrNonExistingChannel`, `ErrClosed` or a
// `*TypeMismatchError`.
func (set *WriterSet) AppendChannel(name string, vs Values) error {
	ch, ok := set.get(name)
	if !ok {
		return &ChannelError{Channel: name, Err: ErrNonExistingChannel}
	}
	if err := ch.Append(vs); err != nil {
		return &ChannelError{Channel: name, Err: err}
	}
	return nil
}

// CloseChannel closes the channel called `name`.
func (set *WriterSet) CloseChannel(name string) error {
	ch, ok := set.get(name)
	if !ok {
		return &ChannelError{Channel: name, Err: ErrNonExistingChannel}
	}
	ch.Close()
	return nil
}

// CloseAll closes every channel of the set.
func (set *WriterSet) CloseAll() {
	for _, ch := range set.walk("") {
		ch.Close()
	}
}

// ReaderSet is a named collection of cursors. It can only read.
type ReaderSet struct {
	channelMap
}

// Channel returns the cursor of the channel called `name`.
func (set *ReaderSet) Channel(name string) (*Cursor, bool) {
	return set.Cursor(name)
}
