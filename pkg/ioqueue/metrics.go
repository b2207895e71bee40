package ioqueue

import (
	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/fibre"
)

var (
	MetricSubmissionCount     = []string{"fibre", "ioqueue", "submission", "count"}
	MetricCompletionCount     = []string{"fibre", "ioqueue", "completion", "count"}
	MetricOperationErrorCount = []string{"fibre", "ioqueue", "operation", "error", "count"}
	MetricParseErrorCount     = []string{"fibre", "ioqueue", "parse", "error", "count"}
	MetricInflight            = []string{"fibre", "ioqueue", "inflight"}
)

var (
	LabelIoID       fibre.TelemetryLabel = "io_id"
	LabelUserdata   fibre.TelemetryLabel = "userdata"
	LabelOp         fibre.TelemetryLabel = "op"
	LabelCompletion fibre.TelemetryLabel = "completion"
	LabelCode       fibre.TelemetryLabel = "code"
)

func (q *Queue) labels(labels ...metrics.Label) []metrics.Label {
	out := make([]metrics.Label, 0, len(q.mlabels)+len(labels))
	out = append(out, q.mlabels...)
	return append(out, labels...)
}
