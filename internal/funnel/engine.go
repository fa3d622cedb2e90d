// Package funnel computes per-variant conversion funnels.
//
// Counts are read without a snapshot: each step query sees whatever the store has
// committed at that moment, so enrollments and goals written while a report runs may
// or may not be included.
package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/ports"
)

const defaultConcurrency = 4

type Engine struct {
	experiments ports.ExperimentRepository
	enrollments ports.EnrollmentRepository
	goals       ports.GoalRepository
	reports     ports.ReportRepository
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

func NewEngine(repos *ports.Repositories, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		experiments: repos.Experiments,
		enrollments: repos.Enrollments,
		goals:       repos.Goals,
		reports:     repos.Reports,
		logger:      logger,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
}

// Generate builds the funnel for the named experiment over goals, in order.
func (e *Engine) Generate(ctx context.Context, experiment string, goals []string) (*domain.FunnelReport, error) {
	exp, err := e.experiments.GetByName(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment %s: %w", experiment, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExperiment, experiment)
	}
	return e.GenerateForExperiment(ctx, exp, goals)
}

// GenerateForExperiment builds the funnel for exp. Goals that were never recorded yield
// zeroed steps and one warning per distinct name.
func (e *Engine) GenerateForExperiment(ctx context.Context, exp *domain.Experiment, goals []string) (*domain.FunnelReport, error) {
	variants := exp.Variants

	counts, err := e.countVariants(ctx, variants, func(ctx context.Context, variant string) (int64, error) {
		return e.enrollments.CountByVariant(ctx, exp.Name, variant)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count enrollments for %s: %w", exp.Name, err)
	}

	report := &domain.FunnelReport{
		Experiment: exp.Name,
		Variants:   append([]string(nil), variants...),
		Steps:      make([]domain.FunnelStep, 0, len(goals)+1),
	}
	report.Steps = append(report.Steps, domain.BaselineStep(variants, counts))

	warned := make(map[string]bool)
	for _, goal := range goals {
		prev := report.Steps[len(report.Steps)-1]

		g, err := e.goals.GetByName(ctx, goal)
		if err != nil {
			return nil, fmt.Errorf("failed to get goal %s: %w", goal, err)
		}
		if g == nil {
			if !warned[goal] {
				warned[goal] = true
				e.logger.Warn("funnel step skipped", "experiment", exp.Name, "goal", goal, "error", domain.ErrUnknownGoal)
			}
			report.Steps = append(report.Steps, domain.UnknownGoalStep(prev, goal))
			continue
		}

		counts, err := e.countVariants(ctx, variants, func(ctx context.Context, variant string) (int64, error) {
			return e.enrollments.CountByVariantWithGoal(ctx, exp.Name, variant, goal)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count goal %s for %s: %w", goal, exp.Name, err)
		}
		report.Steps = append(report.Steps, domain.NextStep(prev, goal, counts))
	}

	return report, nil
}

func (e *Engine) countVariants(ctx context.Context, variants []string, count func(context.Context, string) (int64, error)) ([]int64, error) {
	counts := make([]int64, len(variants))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, v := range variants {
		g.Go(func() error {
			n, err := count(ctx, v)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Save stores a named funnel definition for later regeneration.
func (e *Engine) Save(ctx context.Context, experiment, title string, goals []string) (*domain.ExperimentReport, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > domain.TitleLength {
		return nil, fmt.Errorf("report title must be 1-%d characters", domain.TitleLength)
	}
	funnel := domain.SplitFunnel(domain.JoinFunnel(goals))
	if len(funnel) == 0 {
		return nil, fmt.Errorf("report %q has no goals", title)
	}

	exp, err := e.experiments.GetByName(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment %s: %w", experiment, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExperiment, experiment)
	}

	report := &domain.ExperimentReport{
		ID:         uuid.New().String(),
		Experiment: exp.Name,
		Title:      title,
		Funnel:     funnel,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}
	return report, nil
}

// GenerateSaved regenerates a stored report definition. It returns (nil, nil, nil)
// when no report has that id.
func (e *Engine) GenerateSaved(ctx context.Context, reportID string) (*domain.ExperimentReport, *domain.FunnelReport, error) {
	saved, err := e.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get report %s: %w", reportID, err)
	}
	if saved == nil {
		return nil, nil, nil
	}

	funnel, err := e.Generate(ctx, saved.Experiment, saved.Funnel)
	if err != nil {
		return nil, nil, err
	}
	return saved, funnel, nil
}
