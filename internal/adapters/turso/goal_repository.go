package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/util"
)

type GoalRepository struct {
	db *sql.DB
}

func NewGoalRepository(db *sql.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

func (r *GoalRepository) GetOrCreate(ctx context.Context, name string) (*domain.Goal, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO goals (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	goal, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, fmt.Errorf("failed to read back goal %q", name)
	}
	return goal, nil
}

func (r *GoalRepository) GetByName(ctx context.Context, name string) (*domain.Goal, error) {
	return WithRetry(ctx, readRetries, func() (*domain.Goal, error) {
		var (
			g         domain.Goal
			createdAt string
		)
		err := r.db.QueryRowContext(ctx, `SELECT name, created_at FROM goals WHERE name = ?`, name).Scan(&g.Name, &createdAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get goal: %w", err)
		}
		g.CreatedAt = parseTime(createdAt)
		return &g, nil
	})
}

func (r *GoalRepository) List(ctx context.Context) ([]*domain.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, created_at FROM goals ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*domain.Goal
	for rows.Next() {
		var (
			g         domain.Goal
			createdAt string
		)
		if err := rows.Scan(&g.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		g.CreatedAt = parseTime(createdAt)
		goals = append(goals, &g)
	}
	return goals, rows.Err()
}

type GoalRecordRepository struct {
	db *sql.DB
}

func NewGoalRecordRepository(db *sql.DB) *GoalRecordRepository {
	return &GoalRecordRepository{db: db}
}

const goalRecordColumns = `id, subject_id, goal_name, referrer, remote_addr, path, extra, created_at`

// GetOrCreate uses the request info only when the row is created.
func (r *GoalRecordRepository) GetOrCreate(ctx context.Context, record *domain.GoalRecord) (*domain.GoalRecord, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO goal_records (id, subject_id, goal_name, referrer, remote_addr, path, extra, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, goal_name) DO NOTHING
	`,
		record.ID,
		record.SubjectID,
		record.Goal,
		record.Referrer,
		util.NullString(record.RemoteAddr),
		record.Path,
		util.NullStringPtr(record.Extra),
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create goal record: %w", err)
	}
	n, _ := res.RowsAffected()

	stored, err := r.Get(ctx, record.SubjectID, record.Goal)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("failed to read back goal record for subject %s and goal %q", record.SubjectID, record.Goal)
	}
	return stored, n == 1, nil
}

func (r *GoalRecordRepository) Get(ctx context.Context, subjectID, goal string) (*domain.GoalRecord, error) {
	return WithRetry(ctx, readRetries, func() (*domain.GoalRecord, error) {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+goalRecordColumns+` FROM goal_records WHERE subject_id = ? AND goal_name = ?`, subjectID, goal)
		rec, err := scanGoalRecord(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get goal record: %w", err)
		}
		return rec, nil
	})
}

func (r *GoalRecordRepository) ListBySubject(ctx context.Context, subjectID string) ([]*domain.GoalRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goalRecordColumns+` FROM goal_records WHERE subject_id = ? ORDER BY created_at, goal_name`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goal records: %w", err)
	}
	defer rows.Close()

	var records []*domain.GoalRecord
	for rows.Next() {
		rec, err := scanGoalRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *GoalRecordRepository) BackfillExtra(ctx context.Context, id, extra string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goal_records SET extra = ? WHERE id = ? AND (extra IS NULL OR extra = '')`, extra, id)
	if err != nil {
		return false, fmt.Errorf("failed to backfill goal record extra: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to backfill goal record extra: %w", err)
	}
	return n == 1, nil
}

func scanGoalRecord(s scanner) (*domain.GoalRecord, error) {
	var (
		rec                             domain.GoalRecord
		referrer, remoteAddr, path, ext sql.NullString
		createdAt                       string
	)
	if err := s.Scan(&rec.ID, &rec.SubjectID, &rec.Goal, &referrer, &remoteAddr, &path, &ext, &createdAt); err != nil {
		return nil, err
	}
	rec.Referrer = referrer.String
	rec.RemoteAddr = remoteAddr.String
	rec.Path = path.String
	rec.Extra = util.NullStringToPtr(ext)
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}
