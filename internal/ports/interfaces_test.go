package ports_test

import (
	"testing"

	"github.com/emiliopalmerini/splango/internal/adapters/memory"
	"github.com/emiliopalmerini/splango/internal/adapters/otel"
	"github.com/emiliopalmerini/splango/internal/adapters/turso"
	"github.com/emiliopalmerini/splango/internal/ports"
)

// Compile-time interface conformance checks.
// These verify that concrete adapters properly implement their port interfaces.

func TestSubjectRepositoryConformance(t *testing.T) {
	var _ ports.SubjectRepository = (*turso.SubjectRepository)(nil)
	var _ ports.SubjectRepository = (*memory.SubjectRepository)(nil)
}

func TestExperimentRepositoryConformance(t *testing.T) {
	var _ ports.ExperimentRepository = (*turso.ExperimentRepository)(nil)
	var _ ports.ExperimentRepository = (*memory.ExperimentRepository)(nil)
}

func TestEnrollmentRepositoryConformance(t *testing.T) {
	var _ ports.EnrollmentRepository = (*turso.EnrollmentRepository)(nil)
	var _ ports.EnrollmentRepository = (*memory.EnrollmentRepository)(nil)
}

func TestGoalRepositoryConformance(t *testing.T) {
	var _ ports.GoalRepository = (*turso.GoalRepository)(nil)
	var _ ports.GoalRepository = (*memory.GoalRepository)(nil)
}

func TestGoalRecordRepositoryConformance(t *testing.T) {
	var _ ports.GoalRecordRepository = (*turso.GoalRecordRepository)(nil)
	var _ ports.GoalRecordRepository = (*memory.GoalRecordRepository)(nil)
}

func TestReportRepositoryConformance(t *testing.T) {
	var _ ports.ReportRepository = (*turso.ReportRepository)(nil)
	var _ ports.ReportRepository = (*memory.ReportRepository)(nil)
}

func TestMetricsExporterConformance(t *testing.T) {
	var _ ports.MetricsExporter = (*otel.Exporter)(nil)
	var _ ports.MetricsExporter = (*otel.NoOpExporter)(nil)
}
