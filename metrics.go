package fibre

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricChannelAppendCount counts successful appends.
	MetricChannelAppendCount        = []string{"fibre", "channel", "append", "count"}
	MetricChannelAppendElements     = []string{"fibre", "channel", "append", "elements"}
	MetricChannelAppendErrorCount   = []string{"fibre", "channel", "append", "error", "count"}
	MetricChannelCloseCount         = []string{"fibre", "channel", "close", "count"}
	MetricChannelCount              = []string{"fibre", "channel", "created", "count"}
	MetricSetValidationErrorCount   = []string{"fibre", "set", "validation", "error", "count"}
	MetricSetValidationSuccessCount = []string{"fibre", "set", "validation", "success", "count"}
)

type TelemetryLabel string

var (
	LabelError     TelemetryLabel = "error"
	LabelFabric    TelemetryLabel = "fabric"
	LabelChannel   TelemetryLabel = "channel"
	LabelChannelID TelemetryLabel = "channel_id"
	LabelKind      TelemetryLabel = "kind"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

// withLabels returns a fresh slice so callers can keep appending to the
// static labels of a `Fabric` without aliasing them.
func withLabels(static []metrics.Label, labels ...metrics.Label) []metrics.Label {
	out := make([]metrics.Label, 0, len(static)+len(labels))
	out = append(out, static...)
	return append(out, labels...)
}
