// Package identity binds sessions to subjects and reconciles a session's subject with
// the identity observed at the end of a request.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/ports"
)

// Session is the per-visitor state carrying the bound subject id.
type Session interface {
	SubjectID() string
	BindSubject(id string)
}

type Resolver struct {
	subjects ports.SubjectRepository
	metrics  ports.MetricsExporter
	logger   *slog.Logger
	now      func() time.Time
}

func NewResolver(subjects ports.SubjectRepository, metrics ports.MetricsExporter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		subjects: subjects,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve returns the subject bound to sess. A bound id whose subject no longer exists
// is treated as unbound. An unbound session is bound to the subject registered to
// identity when there is one, otherwise to a fresh anonymous subject.
func (r *Resolver) Resolve(ctx context.Context, sess Session, identity string) (*domain.Subject, error) {
	if id := sess.SubjectID(); id != "" {
		subject, err := r.subjects.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get subject %s: %w", id, err)
		}
		if subject != nil {
			return subject, nil
		}
		r.logger.Debug("session bound to missing subject", "subject_id", id)
	}

	if identity != "" {
		subject, err := r.subjects.GetByIdentity(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("failed to get subject for identity: %w", err)
		}
		if subject != nil {
			sess.BindSubject(subject.ID)
			return subject, nil
		}
	}

	subject, err := r.create(ctx, nil)
	if err != nil {
		return nil, err
	}
	sess.BindSubject(subject.ID)
	return subject, nil
}

// Reconcile compares the identity seen at the start of a request with the one seen at
// its end and promotes, merges or rebinds the session's subject accordingly. It returns
// the subject the session is bound to afterwards, or nil when the session has no live
// subject.
func (r *Resolver) Reconcile(ctx context.Context, sess Session, prior, current string) (*domain.Subject, error) {
	id := sess.SubjectID()
	if id == "" {
		return nil, nil
	}

	subject, err := r.subjects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subject %s: %w", id, err)
	}
	if subject == nil {
		return nil, nil
	}
	if current == "" {
		return subject, nil
	}

	registered, err := r.subjects.GetByIdentity(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("failed to get subject for identity: %w", err)
	}

	plan := domain.PlanMerge(subject.Principal(), current, registered)
	if plan.Action == domain.MergeNone {
		return subject, nil
	}

	r.logger.Info("reconciling identity",
		"action", plan.Action.String(),
		"from", plan.From,
		"into", plan.Into,
		"identity_changed", prior != current,
	)

	result, err := r.apply(ctx, sess, plan)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordMerge(ctx, plan.Action.String())
	return result, nil
}

func (r *Resolver) apply(ctx context.Context, sess Session, plan domain.MergeResult) (*domain.Subject, error) {
	switch plan.Action {
	case domain.MergePromote:
		err := r.subjects.Promote(ctx, plan.From, plan.Identity)
		if err == nil {
			return r.subjects.GetByID(ctx, plan.From)
		}
		if !errors.Is(err, domain.ErrIdentityTaken) {
			return nil, fmt.Errorf("failed to promote subject %s: %w", plan.From, err)
		}
		// Another request registered the identity first.
		winner, err := r.subjects.GetByIdentity(ctx, plan.Identity)
		if err != nil {
			return nil, fmt.Errorf("failed to get subject for identity: %w", err)
		}
		if winner == nil {
			return nil, fmt.Errorf("failed to promote subject %s: %w", plan.From, domain.ErrIdentityTaken)
		}
		return r.merge(ctx, sess, plan.From, winner)

	case domain.MergeInto:
		into, err := r.subjects.GetByID(ctx, plan.Into)
		if err != nil {
			return nil, fmt.Errorf("failed to get subject %s: %w", plan.Into, err)
		}
		return r.merge(ctx, sess, plan.From, into)

	case domain.MergeRebind:
		into, err := r.subjects.GetByID(ctx, plan.Into)
		if err != nil {
			return nil, fmt.Errorf("failed to get subject %s: %w", plan.Into, err)
		}
		if into == nil {
			return nil, fmt.Errorf("failed to rebind session: subject %s vanished", plan.Into)
		}
		sess.BindSubject(into.ID)
		return into, nil

	case domain.MergeFresh:
		identity := plan.Identity
		subject, err := r.create(ctx, &identity)
		if errors.Is(err, domain.ErrIdentityTaken) {
			winner, gerr := r.subjects.GetByIdentity(ctx, identity)
			if gerr != nil {
				return nil, fmt.Errorf("failed to get subject for identity: %w", gerr)
			}
			if winner == nil {
				return nil, err
			}
			subject, err = winner, nil
		}
		if err != nil {
			return nil, err
		}
		sess.BindSubject(subject.ID)
		return subject, nil
	}
	return nil, fmt.Errorf("unexpected merge action %s", plan.Action)
}

func (r *Resolver) merge(ctx context.Context, sess Session, from string, into *domain.Subject) (*domain.Subject, error) {
	if into == nil {
		return nil, fmt.Errorf("failed to merge subject %s: destination vanished", from)
	}
	if err := r.subjects.Merge(ctx, from, into.ID); err != nil {
		return nil, fmt.Errorf("failed to merge subject %s into %s: %w", from, into.ID, err)
	}
	sess.BindSubject(into.ID)
	return into, nil
}

func (r *Resolver) create(ctx context.Context, identity *string) (*domain.Subject, error) {
	subject := &domain.Subject{
		ID:        uuid.New().String(),
		Identity:  identity,
		CreatedAt: r.now().UTC(),
	}
	if err := r.subjects.Create(ctx, subject); err != nil {
		return nil, fmt.Errorf("failed to create subject: %w", err)
	}
	return subject, nil
}

// MapSession is a Session kept in memory, used by the CLI and tests.
type MapSession struct {
	ID string
}

func (s *MapSession) SubjectID() string      { return s.ID }
func (s *MapSession) BindSubject(id string) { s.ID = id }
