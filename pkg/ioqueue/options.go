package ioqueue

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"
)

const (
	defaultCapacity   = 64
	defaultTick       = 60 * time.Millisecond
	defaultMaxPayload = 16 << 20
)

type config struct {
	capacity     int
	tick         time.Duration
	maxPayload   uint64
	logHandler   slog.Handler
	metricSink   metrics.MetricSink
	metricLabels []metrics.Label
}

// Option to pass to `New`
type Option func(*config) error

// WithCapacity sets how many operations can be in flight at once.
func WithCapacity(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("capacity must be positive, got %d", n)
		}
		c.capacity = n
		return nil
	}
}

// WithTick sets how long `Update` waits for the pipes while operations
// are in flight.
func WithTick(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("tick must be positive, got %s", d)
		}
		c.tick = d
		return nil
	}
}

// WithMaxPayload bounds the payload of write submissions, larger ones
// fail with `CodeInvalidInput`. Zero means no limit.
func WithMaxPayload(n uint64) Option {
	return func(c *config) error {
		c.maxPayload = n
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the `Queue`.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.metricSink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the Queue.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = append([]metrics.Label(nil), labels...)
		return nil
	}
}
