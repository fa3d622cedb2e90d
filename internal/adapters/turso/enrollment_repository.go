package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type EnrollmentRepository struct {
	db *sql.DB
}

func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, subject_id, experiment_name, variant, created_at`

// GetOrCreate relies on UNIQUE(subject_id, experiment_name): the loser of a race
// inserts nothing and reads back the winner's row.
func (r *EnrollmentRepository) GetOrCreate(ctx context.Context, enrollment *domain.Enrollment) (*domain.Enrollment, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, subject_id, experiment_name, variant, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, experiment_name) DO NOTHING
	`,
		enrollment.ID,
		enrollment.SubjectID,
		enrollment.Experiment,
		enrollment.Variant,
		formatTime(enrollment.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create enrollment: %w", err)
	}
	n, _ := res.RowsAffected()

	stored, err := r.Get(ctx, enrollment.SubjectID, enrollment.Experiment)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("failed to read back enrollment for subject %s in %q", enrollment.SubjectID, enrollment.Experiment)
	}
	return stored, n == 1, nil
}

func (r *EnrollmentRepository) Get(ctx context.Context, subjectID, experiment string) (*domain.Enrollment, error) {
	return WithRetry(ctx, readRetries, func() (*domain.Enrollment, error) {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+enrollmentColumns+` FROM enrollments WHERE subject_id = ? AND experiment_name = ?`,
			subjectID, experiment)
		e, err := scanEnrollment(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get enrollment: %w", err)
		}
		return e, nil
	})
}

func (r *EnrollmentRepository) ListBySubject(ctx context.Context, subjectID string) ([]*domain.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE subject_id = ? ORDER BY created_at, experiment_name`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func (r *EnrollmentRepository) CountByVariant(ctx context.Context, experiment, variant string) (int64, error) {
	return WithRetry(ctx, readRetries, func() (int64, error) {
		var n int64
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM enrollments WHERE experiment_name = ? AND variant = ?`,
			experiment, variant).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("failed to count enrollments: %w", err)
		}
		return n, nil
	})
}

func (r *EnrollmentRepository) CountByVariantWithGoal(ctx context.Context, experiment, variant, goal string) (int64, error) {
	return WithRetry(ctx, readRetries, func() (int64, error) {
		var n int64
		err := r.db.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT e.subject_id)
			FROM enrollments e
			JOIN goal_records g ON g.subject_id = e.subject_id
			WHERE e.experiment_name = ? AND e.variant = ? AND g.goal_name = ?
		`, experiment, variant, goal).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("failed to count converted enrollments: %w", err)
		}
		return n, nil
	})
}

func scanEnrollment(s scanner) (*domain.Enrollment, error) {
	var (
		e         domain.Enrollment
		createdAt string
	)
	if err := s.Scan(&e.ID, &e.SubjectID, &e.Experiment, &e.Variant, &createdAt); err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}
