package core

import "context"

// Metric names emitted by the dispatcher. The observer prefixes them with
// its service prefix.
const (
	MetricWorkerSuccess  = "worker.success"
	MetricWorkerFailure  = "worker.failure"
	MetricWorkerDuration = "worker.duration_ms"
	MetricDeadLetter     = "deferred.dead_letter"
)

// DiscardMetrics drops every measurement. The runtime falls back to it when
// the host does not register a recorder.
type DiscardMetrics struct{}

func (DiscardMetrics) IncCounter(context.Context, string, int64, map[string]string) {}

func (DiscardMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// TaskTags labels a measurement with the task kind and dispatch mode. Empty
// values are left out.
func TaskTags(kind TaskKind, mode string) map[string]string {
	tags := map[string]string{}
	if kind != "" {
		tags["kind"] = string(kind)
	}
	if mode != "" {
		tags["mode"] = mode
	}
	return tags
}

// copyTags gives every recorder call its own map so recorders may keep it.
func copyTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = DiscardMetrics{}
