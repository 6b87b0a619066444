package core

import "context"

const (
	metricPrefix         = "broker."
	metricSuffixTotal    = ".total"
	metricSuffixDuration = ".duration_ms"
)

// NopMetricsRecorder drops every observation.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// OperationMetricNames returns the counter and duration histogram names
// recorded for a client operation.
func OperationMetricNames(operation string) (total string, duration string) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	return metricPrefix + operation + metricSuffixTotal, metricPrefix + operation + metricSuffixDuration
}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
