package fibre

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

type config struct {
	name         string
	logHandler   slog.Handler
	metricSink   metrics.MetricSink
	metricLabels []metrics.Label
}

// Option to pass to `Create`
type Option func(*config) error

// WithName names the `Fabric`, the name is attached to every log line
// and metric it emits.
func WithName(name string) Option {
	return func(c *config) error {
		if name != "" {
			c.name = name
		}
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
// your `Fabric`.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.metricSink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the Fabric.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = append([]metrics.Label(nil), labels...)
		return nil
	}
}
