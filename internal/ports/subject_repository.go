package ports

import (
	"context"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type SubjectRepository interface {
	Create(ctx context.Context, subject *domain.Subject) error
	GetByID(ctx context.Context, id string) (*domain.Subject, error)
	GetByIdentity(ctx context.Context, identity string) (*domain.Subject, error)
	// Promote registers an anonymous subject to identity. It returns
	// domain.ErrIdentityTaken when another subject already holds identity.
	Promote(ctx context.Context, id, identity string) error
	// Merge reassigns from's enrollments and goal records to into, keeping into's rows
	// on conflict, then deletes from. Merging a subject that no longer exists is a no-op.
	Merge(ctx context.Context, from, into string) error
}
