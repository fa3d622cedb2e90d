package ports

import (
	"context"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type GoalRepository interface {
	GetOrCreate(ctx context.Context, name string) (*domain.Goal, error)
	GetByName(ctx context.Context, name string) (*domain.Goal, error)
	List(ctx context.Context) ([]*domain.Goal, error)
}

type GoalRecordRepository interface {
	// GetOrCreate inserts record unless the (subject, goal) pair already has one, and
	// returns the stored row.
	GetOrCreate(ctx context.Context, record *domain.GoalRecord) (*domain.GoalRecord, bool, error)
	Get(ctx context.Context, subjectID, goal string) (*domain.GoalRecord, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*domain.GoalRecord, error)
	// BackfillExtra sets extra only if the record has none yet. It reports whether
	// the row changed.
	BackfillExtra(ctx context.Context, id, extra string) (bool, error)
}
