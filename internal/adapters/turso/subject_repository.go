package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/util"
)

type SubjectRepository struct {
	db *sql.DB
}

func NewSubjectRepository(db *sql.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) Create(ctx context.Context, subject *domain.Subject) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (id, identity, created_at) VALUES (?, ?, ?)`,
		subject.ID, util.NullStringPtr(subject.Identity), formatTime(subject.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create subject: %w", domain.ErrIdentityTaken)
		}
		return fmt.Errorf("failed to create subject: %w", err)
	}
	return nil
}

func (r *SubjectRepository) GetByID(ctx context.Context, id string) (*domain.Subject, error) {
	return r.getOne(ctx, `SELECT id, identity, created_at FROM subjects WHERE id = ?`, id)
}

func (r *SubjectRepository) GetByIdentity(ctx context.Context, identity string) (*domain.Subject, error) {
	return r.getOne(ctx, `SELECT id, identity, created_at FROM subjects WHERE identity = ?`, identity)
}

func (r *SubjectRepository) getOne(ctx context.Context, query string, arg string) (*domain.Subject, error) {
	return WithRetry(ctx, readRetries, func() (*domain.Subject, error) {
		var (
			s         domain.Subject
			identity  sql.NullString
			createdAt string
		)
		err := r.db.QueryRowContext(ctx, query, arg).Scan(&s.ID, &identity, &createdAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get subject: %w", err)
		}
		s.Identity = util.NullStringToPtr(identity)
		s.CreatedAt = parseTime(createdAt)
		return &s, nil
	})
}

func (r *SubjectRepository) Promote(ctx context.Context, id, identity string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET identity = ? WHERE id = ? AND identity IS NULL`, identity, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdentityTaken
		}
		return fmt.Errorf("failed to promote subject: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to promote subject: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing changed: either the subject is gone or it already carries an identity.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("failed to promote subject %s: not found", id)
	}
	if current.Identity != nil && *current.Identity == identity {
		return nil
	}
	return domain.ErrIdentityTaken
}

func (r *SubjectRepository) Merge(ctx context.Context, from, into string) error {
	if from == into {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// UPDATE OR IGNORE skips rows that would collide with the destination's own
	// enrollment or goal record; the leftovers are deleted with the source subject.
	stmts := []string{
		`UPDATE OR IGNORE enrollments SET subject_id = ? WHERE subject_id = ?`,
		`UPDATE OR IGNORE goal_records SET subject_id = ? WHERE subject_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, into, from); err != nil {
			return fmt.Errorf("failed to merge subject %s into %s: %w", from, into, err)
		}
	}

	cleanup := []string{
		`DELETE FROM enrollments WHERE subject_id = ?`,
		`DELETE FROM goal_records WHERE subject_id = ?`,
		`DELETE FROM subjects WHERE id = ?`,
	}
	for _, stmt := range cleanup {
		if _, err := tx.ExecContext(ctx, stmt, from); err != nil {
			return fmt.Errorf("failed to discard merged subject %s: %w", from, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}
