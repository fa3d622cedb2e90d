// Package enrollment assigns subjects to experiment variants.
package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/ports"
)

// Picker chooses one of the experiment's variants for a new enrollment.
type Picker func(variants []string) string

// UniformPicker picks a variant uniformly at random.
func UniformPicker(variants []string) string {
	return variants[rand.IntN(len(variants))]
}

type Engine struct {
	experiments ports.ExperimentRepository
	enrollments ports.EnrollmentRepository
	metrics     ports.MetricsExporter
	logger      *slog.Logger
	pick        Picker
	now         func() time.Time
}

type Option func(*Engine)

// WithPicker replaces the uniform random choice.
func WithPicker(p Picker) Option {
	return func(e *Engine) { e.pick = p }
}

func NewEngine(repos *ports.Repositories, metrics ports.MetricsExporter, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		experiments: repos.Experiments,
		enrollments: repos.Enrollments,
		metrics:     metrics,
		logger:      logger,
		pick:        UniformPicker,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetVariant returns the subject's variant for experiment. When enroll is false it only
// looks up an existing enrollment. When enroll is true it enrolls the subject at random
// on first access; the first assignment is kept forever after.
//
// An unknown experiment is logged and reported as ok=false, never as an error.
func (e *Engine) GetVariant(ctx context.Context, experiment, subjectID string, enroll bool) (string, bool, error) {
	exp, err := e.experiments.GetByName(ctx, experiment)
	if err != nil {
		return "", false, fmt.Errorf("failed to get experiment %s: %w", experiment, err)
	}
	if exp == nil {
		e.logger.Warn("unknown experiment", "experiment", experiment)
		return "", false, nil
	}

	if !enroll {
		existing, err := e.enrollments.Get(ctx, subjectID, experiment)
		if err != nil {
			return "", false, fmt.Errorf("failed to get enrollment: %w", err)
		}
		if existing == nil {
			return "", false, nil
		}
		return existing.Variant, true, nil
	}

	if !exp.Enrollable {
		return "", false, fmt.Errorf("%w: %s", domain.ErrNotEnrollable, experiment)
	}

	existing, err := e.enrollments.Get(ctx, subjectID, experiment)
	if err != nil {
		return "", false, fmt.Errorf("failed to get enrollment: %w", err)
	}
	if existing != nil {
		return existing.Variant, true, nil
	}

	got, err := e.create(ctx, exp, subjectID, e.pick(exp.Variants))
	if err != nil {
		return "", false, err
	}
	return got.Variant, true, nil
}

// EnrollExplicit enrolls the subject in the given variant unless it is already enrolled,
// in which case the existing enrollment is returned unchanged.
func (e *Engine) EnrollExplicit(ctx context.Context, experiment, subjectID, variant string) (*domain.Enrollment, error) {
	exp, err := e.experiments.GetByName(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment %s: %w", experiment, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExperiment, experiment)
	}
	if !exp.Enrollable {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotEnrollable, experiment)
	}
	if !exp.HasVariant(variant) {
		return nil, fmt.Errorf("%w: %q is not a variant of %s", domain.ErrUnknownVariant, variant, experiment)
	}
	return e.create(ctx, exp, subjectID, variant)
}

func (e *Engine) create(ctx context.Context, exp *domain.Experiment, subjectID, variant string) (*domain.Enrollment, error) {
	got, created, err := e.enrollments.GetOrCreate(ctx, &domain.Enrollment{
		ID:         uuid.New().String(),
		SubjectID:  subjectID,
		Experiment: exp.Name,
		Variant:    variant,
		CreatedAt:  e.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enroll subject %s in %s: %w", subjectID, exp.Name, err)
	}
	if created {
		e.logger.Debug("enrolled subject", "experiment", exp.Name, "variant", got.Variant, "subject_id", subjectID)
		e.metrics.RecordEnrollment(ctx, exp.Name, got.Variant)
	}
	return got, nil
}
