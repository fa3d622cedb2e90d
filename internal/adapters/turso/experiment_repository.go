package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/util"
)

type ExperimentRepository struct {
	db *sql.DB
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

const experimentColumns = `name, variants, is_enrollable, created_at`

func (r *ExperimentRepository) Declare(ctx context.Context, experiment *domain.Experiment) (*domain.Experiment, bool, error) {
	if err := experiment.Validate(); err != nil {
		return nil, false, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO experiments (name, variants, is_enrollable, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`,
		experiment.Name,
		domain.JoinVariants(experiment.Variants),
		util.BoolToInt64(experiment.Enrollable),
		formatTime(experiment.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to declare experiment: %w", err)
	}
	n, _ := res.RowsAffected()

	stored, err := r.GetByName(ctx, experiment.Name)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("failed to read back experiment %q", experiment.Name)
	}
	return stored, n == 1, nil
}

func (r *ExperimentRepository) GetByName(ctx context.Context, name string) (*domain.Experiment, error) {
	return WithRetry(ctx, readRetries, func() (*domain.Experiment, error) {
		row := r.db.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)
		exp, err := scanExperiment(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get experiment by name: %w", err)
		}
		return exp, nil
	})
}

func (r *ExperimentRepository) List(ctx context.Context) ([]*domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*domain.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, exp)
	}
	return experiments, rows.Err()
}

func (r *ExperimentRepository) SetEnrollable(ctx context.Context, name string, enrollable bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE experiments SET is_enrollable = ? WHERE name = ?`, util.BoolToInt64(enrollable), name)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownExperiment, name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(s scanner) (*domain.Experiment, error) {
	var (
		exp        domain.Experiment
		variants   string
		enrollable int64
		createdAt  string
	)
	if err := s.Scan(&exp.Name, &variants, &enrollable, &createdAt); err != nil {
		return nil, err
	}
	exp.Variants = domain.SplitVariants(variants)
	exp.Enrollable = enrollable == 1
	exp.CreatedAt = parseTime(createdAt)
	return &exp, nil
}
