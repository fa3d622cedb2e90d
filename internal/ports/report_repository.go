package ports

import (
	"context"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type ReportRepository interface {
	Create(ctx context.Context, report *domain.ExperimentReport) error
	GetByID(ctx context.Context, id string) (*domain.ExperimentReport, error)
	ListByExperiment(ctx context.Context, experiment string) ([]*domain.ExperimentReport, error)
}
