package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Observer fans a single operation observation out to structured logs and
// metrics. A zero Observer is safe to use and records nothing.
type Observer struct {
	Logger  Logger
	Metrics MetricsRecorder
}

func (o Observer) ObserveOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"reference", "order_id", "outcome", "task_kind"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	o.recordCounter(ctx, CounterName(operation), 1, tags)
	o.recordHistogram(ctx, HistogramName(operation), float64(time.Since(startedAt).Milliseconds()), tags)

	if err != nil {
		o.logWithLevel(ctx, "error", operation+" failed", contextFields)
		return
	}
	o.logWithLevel(ctx, "info", operation+" succeeded", contextFields)
}

func (o Observer) LogInfo(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "info", message, fields)
}

func (o Observer) LogError(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "error", message, fields)
}

func (o Observer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if o.Logger == nil {
		return
	}
	logger := o.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o Observer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o Observer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
