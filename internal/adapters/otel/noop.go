package otel

import "context"

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordEnrollment(ctx context.Context, experiment, variant string) {}

func (e *NoOpExporter) RecordGoal(ctx context.Context, goal string) {}

func (e *NoOpExporter) RecordMerge(ctx context.Context, action string) {}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
