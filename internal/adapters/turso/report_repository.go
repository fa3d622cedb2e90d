package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, experiment_name, title, funnel, created_at`

func (r *ReportRepository) Create(ctx context.Context, report *domain.ExperimentReport) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO experiment_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?)`,
		report.ID,
		report.Experiment,
		report.Title,
		domain.JoinFunnel(report.Funnel),
		formatTime(report.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.ExperimentReport, error) {
	return WithRetry(ctx, readRetries, func() (*domain.ExperimentReport, error) {
		row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM experiment_reports WHERE id = ?`, id)
		rep, err := scanReport(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get report: %w", err)
		}
		return rep, nil
	})
}

func (r *ReportRepository) ListByExperiment(ctx context.Context, experiment string) ([]*domain.ExperimentReport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM experiment_reports WHERE experiment_name = ? ORDER BY created_at, id`, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.ExperimentReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func scanReport(s scanner) (*domain.ExperimentReport, error) {
	var (
		rep       domain.ExperimentReport
		funnel    string
		createdAt string
	)
	if err := s.Scan(&rep.ID, &rep.Experiment, &rep.Title, &funnel, &createdAt); err != nil {
		return nil, err
	}
	rep.Funnel = domain.SplitFunnel(funnel)
	rep.CreatedAt = parseTime(createdAt)
	return &rep, nil
}
