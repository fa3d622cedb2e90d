package ports

import (
	"context"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type EnrollmentRepository interface {
	// GetOrCreate inserts enrollment unless the (subject, experiment) pair is already
	// enrolled, and returns the stored row. The first write wins.
	GetOrCreate(ctx context.Context, enrollment *domain.Enrollment) (*domain.Enrollment, bool, error)
	Get(ctx context.Context, subjectID, experiment string) (*domain.Enrollment, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*domain.Enrollment, error)
	CountByVariant(ctx context.Context, experiment, variant string) (int64, error)
	// CountByVariantWithGoal counts distinct subjects enrolled as variant that also
	// hold a record for goal.
	CountByVariantWithGoal(ctx context.Context, experiment, variant, goal string) (int64, error)
}
