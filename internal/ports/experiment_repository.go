package ports

import (
	"context"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type ExperimentRepository interface {
	// Declare creates the experiment unless one with the same name exists, and returns
	// the stored experiment along with whether it was created.
	Declare(ctx context.Context, experiment *domain.Experiment) (*domain.Experiment, bool, error)
	GetByName(ctx context.Context, name string) (*domain.Experiment, error)
	List(ctx context.Context) ([]*domain.Experiment, error)
	SetEnrollable(ctx context.Context, name string, enrollable bool) error
}
