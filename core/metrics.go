package core

import (
	"context"
	"strings"
)

const metricNamespace = "payments"

// CounterName and HistogramName build the canonical metric names emitted for
// an operation, e.g. "payments.reconcile.total".
func CounterName(operation string) string {
	return metricNamespace + "." + strings.TrimSpace(operation) + ".total"
}

func HistogramName(operation string) string {
	return metricNamespace + "." + strings.TrimSpace(operation) + ".duration_ms"
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
