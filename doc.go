// *Fibre* conveys typed data between the producers and the consumers of a
// function execution, using append-only `Channel`s.
//
// A `Channel` holds elements of a single `Kind` (strings, integers, floats,
// booleans, bytes or null). Any number of `Cursor`s can read it, each at
// its own position, so reading on one cursor never consumes the data of
// another. A read asking for more elements than available waits until a
// writer appends more or closes the channel.
//
// ## How it works
//
// A producer builds a `WriterSet` from the `ChannelSpecs` of a function,
// appends to the named channels and closes them when done:
//
//	set := fibre.NewWriterSet(fibre.ChannelSpecs{
//		"numbers": {Kind: fibre.KindInteger},
//	})
//	_ = set.AppendChannel("numbers", fibre.Integers{1, 3, 3, 7})
//	_ = set.CloseChannel("numbers")
//
// Consumers derive a `ReaderSet`, holding new cursors onto the same
// buffers, and read chunks until the channel is drained:
//
//	readers := set.Reader()
//	for {
//		view, err := readers.ReadChannel(ctx, "numbers", 2)
//		if err != nil || view.IsEmpty() {
//			break
//		}
//	}
//
// Function composition merges reader sets with `Merge` and `MergeWith`,
// and `Validate` checks a set against the `SetSpec` of the next function,
// reporting every violation at once.
//
// Guests that cannot call this API directly go through the pipes of an
// I/O event queue, see package `github.com/raskyld/fibre/pkg/ioqueue`.
//
// ## Design Principles
//
// ### In-process
//
// A `Fabric` never crosses a process boundary. Channels only reach the
// wire, see package `github.com/raskyld/fibre/pkg/wire`, as snapshots
// taken by `ToWire`.
//
// ### No data loss
//
// Buffers are never trimmed: back-pressure is applied by waiting readers,
// not by dropping elements. Long-lived channels with slow readers grow.
//
// ### Observable
//
// Every `Fabric` logs with `slog` and emits go-metrics, configure them
// with `WithLog` and `WithMetricSink`.
package fibre
