package turso

import (
	"database/sql"

	"github.com/emiliopalmerini/splango/internal/ports"
)

// NewRepositories creates all turso repository implementations from a database connection.
func NewRepositories(db *sql.DB) *ports.Repositories {
	return &ports.Repositories{
		Subjects:    NewSubjectRepository(db),
		Experiments: NewExperimentRepository(db),
		Enrollments: NewEnrollmentRepository(db),
		Goals:       NewGoalRepository(db),
		GoalRecords: NewGoalRecordRepository(db),
		Reports:     NewReportRepository(db),
	}
}
