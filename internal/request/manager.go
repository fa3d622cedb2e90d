// Package request ties the experiment services to a single request: it resolves the
// session's subject on first use, queues mutations, and applies them when the request
// finishes.
package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/enrollment"
	"github.com/emiliopalmerini/splango/internal/goals"
	"github.com/emiliopalmerini/splango/internal/identity"
	"github.com/emiliopalmerini/splango/internal/queue"
)

// Services are the long-lived collaborators shared by every request.
type Services struct {
	Resolver *identity.Resolver
	Enroller *enrollment.Engine
	Ledger   *goals.Ledger
	Logger   *slog.Logger
}

type Manager struct {
	svc   Services
	sess  identity.Session
	prior string
	info  domain.RequestInfo
	queue queue.Queue

	mu       sync.Mutex
	subject  *domain.Subject
	current  string
	finished bool
}

// NewManager starts a request for sess. identity is the identity known at the start of
// the request, empty for anonymous visitors. info is captured for queued goals.
func NewManager(svc Services, sess identity.Session, identity string, info domain.RequestInfo) *Manager {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	return &Manager{
		svc:     svc,
		sess:    sess,
		prior:   identity,
		current: identity,
		info:    info,
	}
}

// Subject resolves the session's subject, creating one on first use.
func (m *Manager) Subject(ctx context.Context) (*domain.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subject != nil {
		return m.subject, nil
	}
	subject, err := m.svc.Resolver.Resolve(ctx, m.sess, m.prior)
	if err != nil {
		return nil, err
	}
	m.subject = subject
	return subject, nil
}

// GetVariant returns the subject's variant. With enroll set, a first visit enrolls
// the subject immediately so the page can render the assigned variant.
func (m *Manager) GetVariant(ctx context.Context, experiment string, enroll bool) (string, bool, error) {
	subject, err := m.Subject(ctx)
	if err != nil {
		return "", false, err
	}
	variant, ok, err := m.svc.Enroller.GetVariant(ctx, experiment, subject.ID, enroll)
	if err != nil {
		return "", false, err
	}
	if ok {
		m.svc.Logger.Debug("got variant", "experiment", experiment, "variant", variant, "subject_id", subject.ID)
	}
	return variant, ok, nil
}

// Enroll queues an explicit enrollment.
func (m *Manager) Enroll(experiment, variant string) {
	m.queue.Push(queue.Enroll{Experiment: experiment, Variant: variant})
}

// LogGoal queues a goal record carrying this request's info.
func (m *Manager) LogGoal(goal, extra string) {
	m.queue.Push(queue.RecordGoal{Goal: goal, Info: m.info, Extra: extra})
}

// SetIdentity records the identity observed by the end of the request, e.g. after a
// login handler ran. An empty identity means the visitor is anonymous or logged out.
func (m *Manager) SetIdentity(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = identity
}

// Pending returns the number of queued commands.
func (m *Manager) Pending() int {
	return m.queue.Len()
}

// Finish applies queued commands, then reconciles the session with the final identity.
// Both steps run even if the first fails; their errors are joined.
func (m *Manager) Finish(ctx context.Context) error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return nil
	}
	current := m.current
	m.mu.Unlock()

	n, flushErr := m.queue.Flush(ctx, m)
	if n > 0 {
		m.svc.Logger.Debug("applied queued commands", "count", n)
	}

	subject, reconcileErr := m.svc.Resolver.Reconcile(ctx, m.sess, m.prior, current)
	if reconcileErr != nil {
		reconcileErr = fmt.Errorf("failed to reconcile identity: %w", reconcileErr)
	}

	m.mu.Lock()
	if subject != nil {
		m.subject = subject
	}
	m.finished = flushErr == nil && reconcileErr == nil
	m.mu.Unlock()

	return errors.Join(flushErr, reconcileErr)
}

// ApplyEnroll implements queue.Applier. An unknown experiment is logged and skipped.
func (m *Manager) ApplyEnroll(ctx context.Context, cmd queue.Enroll) error {
	subject, err := m.Subject(ctx)
	if err != nil {
		return err
	}
	_, err = m.svc.Enroller.EnrollExplicit(ctx, cmd.Experiment, subject.ID, cmd.Variant)
	if errors.Is(err, domain.ErrUnknownExperiment) {
		m.svc.Logger.Warn("skipping enrollment in unknown experiment", "experiment", cmd.Experiment)
		return nil
	}
	return err
}

// ApplyRecordGoal implements queue.Applier.
func (m *Manager) ApplyRecordGoal(ctx context.Context, cmd queue.RecordGoal) error {
	subject, err := m.Subject(ctx)
	if err != nil {
		return err
	}
	rec, err := m.svc.Ledger.Record(ctx, subject.ID, cmd.Goal, cmd.Info, cmd.Extra)
	if err != nil {
		return err
	}
	m.svc.Logger.Info("goal recorded", "goal", cmd.Goal, "record_id", rec.ID, "subject_id", subject.ID)
	return nil
}
