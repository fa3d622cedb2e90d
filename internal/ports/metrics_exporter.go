package ports

import "context"

// MetricsExporter exports assignment and conversion counters to an external
// observability system.
type MetricsExporter interface {
	// RecordEnrollment counts a newly created enrollment.
	RecordEnrollment(ctx context.Context, experiment, variant string)
	// RecordGoal counts a newly created goal record.
	RecordGoal(ctx context.Context, goal string)
	// RecordMerge counts an identity reconciliation that changed the session subject.
	RecordMerge(ctx context.Context, action string)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}
