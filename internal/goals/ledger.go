// Package goals records the conversion goals subjects reach.
package goals

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/ports"
	"github.com/emiliopalmerini/splango/internal/util"
)

type Ledger struct {
	goals   ports.GoalRepository
	records ports.GoalRecordRepository
	metrics ports.MetricsExporter
	logger  *slog.Logger
	now     func() time.Time
}

func NewLedger(repos *ports.Repositories, metrics ports.MetricsExporter, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		goals:   repos.Goals,
		records: repos.GoalRecords,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Record notes that subjectID reached goal. Only the first call per (subject, goal)
// stores info. A later call may set extra once, if the stored record has none.
func (l *Ledger) Record(ctx context.Context, subjectID, goal string, info domain.RequestInfo, extra string) (*domain.GoalRecord, error) {
	if goal == "" || len(goal) > domain.NameLength {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidGoal, goal)
	}
	if _, err := l.goals.GetOrCreate(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to get goal %s: %w", goal, err)
	}

	extra = util.Truncate(extra, domain.ExtraLength)
	record := &domain.GoalRecord{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Goal:      goal,
		RequestInfo: domain.RequestInfo{
			Referrer:   util.Truncate(info.Referrer, domain.ReferrerLength),
			RemoteAddr: info.RemoteAddr,
			Path:       util.Truncate(info.Path, domain.PathLength),
		},
		CreatedAt: l.now().UTC(),
	}
	if extra != "" {
		record.Extra = &extra
	}

	got, created, err := l.records.GetOrCreate(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to record goal %s: %w", goal, err)
	}
	if created {
		l.logger.Debug("recorded goal", "goal", goal, "subject_id", subjectID)
		l.metrics.RecordGoal(ctx, goal)
		return got, nil
	}

	if extra == "" || got.HasExtra() {
		return got, nil
	}
	changed, err := l.records.BackfillExtra(ctx, got.ID, extra)
	if err != nil {
		return nil, fmt.Errorf("failed to backfill goal record %s: %w", got.ID, err)
	}
	if !changed {
		// Lost a race with another backfill; return what is stored.
		return l.records.Get(ctx, subjectID, goal)
	}
	got.Extra = &extra
	return got, nil
}

// ExtractRequestInfo captures the referrer, client address and path of r, truncated to
// the stored widths. The port is dropped from the client address.
func ExtractRequestInfo(r *http.Request) domain.RequestInfo {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	path := ""
	if r.URL != nil {
		path = r.URL.Path
	}
	return domain.RequestInfo{
		Referrer:   util.Truncate(r.Referer(), domain.ReferrerLength),
		RemoteAddr: addr,
		Path:       util.Truncate(path, domain.PathLength),
	}
}
