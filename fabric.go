package fibre

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/fibre/pkg/wire"
)

const defaultFabricName = "fibre"

// Fabric owns the telemetry shared by the channels it creates.
//
// A Fabric holds no channel itself: channels and sets are plain values
// created from it and freed when the last handle is dropped. Distinct
// fabrics never share channels, which is how independent function
// executions are kept apart.
type Fabric struct {
	name   string
	logger *slog.Logger
	msink  metrics.MetricSink
	labels []metrics.Label
}

// Create a new `Fabric`.
func Create(opts ...Option) (*Fabric, error) {
	cfg := config{name: defaultFabricName}
	for _, opt := range opts {
		err := opt(&cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	fb := &Fabric{
		name:   cfg.name,
		msink:  cfg.metricSink,
		labels: withLabels(cfg.metricLabels, LabelFabric.M(cfg.name)),
	}

	// Logging implementations.
	if cfg.logHandler != nil {
		fb.logger = slog.New(cfg.logHandler)
	} else {
		fb.logger = slog.Default()
	}
	fb.logger = fb.logger.With(LabelFabric.L(cfg.name))

	// Metrics implementations.
	if fb.msink == nil {
		fb.msink = metrics.Default()
	}

	return fb, nil
}

var defaultFabric = sync.OnceValue(func() *Fabric {
	// Cannot fail without options.
	fb, _ := Create()
	return fb
})

// Default returns the process-wide `Fabric` used by the package-level
// constructors.
func Default() *Fabric {
	return defaultFabric()
}

func (fb *Fabric) Name() string {
	return fb.name
}

// NewChannel creates an empty, open channel of kind `k`.
func (fb *Fabric) NewChannel(k Kind) *Channel {
	return fb.newChannel(NewBuffer(k))
}

// NewChannelOf creates an open channel pre-populated with `vs`.
func (fb *Fabric) NewChannelOf(vs Values) *Channel {
	return fb.newChannel(BufferOf(vs))
}

// NewWriterSet creates a `WriterSet` with one empty channel per entry of
// `specs`, using the kind declared by each `ChannelSpec`.
func (fb *Fabric) NewWriterSet(specs ChannelSpecs) *WriterSet {
	set := newChannelMap()
	for name, spec := range specs {
		set = set.insert(name, fb.NewChannel(spec.Kind))
	}
	return &WriterSet{channelMap: set}
}

// WriterSetFromWire creates a `WriterSet` whose channels are
// pre-populated from the wire stream. Channels stay open.
func (fb *Fabric) WriterSetFromWire(stream *wire.Stream) *WriterSet {
	set := newChannelMap()
	if stream != nil {
		for name, ch := range stream.Channels {
			set = set.insert(name, fb.NewChannelOf(ValuesFromWire(ch)))
		}
	}
	return &WriterSet{channelMap: set}
}

// NewChannel creates a channel on the `Default` fabric.
func NewChannel(k Kind) *Channel {
	return Default().NewChannel(k)
}

// NewChannelOf creates a pre-populated channel on the `Default` fabric.
func NewChannelOf(vs Values) *Channel {
	return Default().NewChannelOf(vs)
}

// NewWriterSet creates a `WriterSet` on the `Default` fabric.
func NewWriterSet(specs ChannelSpecs) *WriterSet {
	return Default().NewWriterSet(specs)
}

// WriterSetFromWire creates a `WriterSet` on the `Default` fabric.
func WriterSetFromWire(stream *wire.Stream) *WriterSet {
	return Default().WriterSetFromWire(stream)
}
