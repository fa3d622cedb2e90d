package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/emiliopalmerini/splango/internal/adapters/memory"
	"github.com/emiliopalmerini/splango/internal/adapters/otel"
	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/identity"
	"github.com/emiliopalmerini/splango/internal/ports"
)

type countingMetrics struct {
	otel.NoOpExporter
	merges []string
}

func (m *countingMetrics) RecordMerge(_ context.Context, action string) {
	m.merges = append(m.merges, action)
}

func setup(t *testing.T) (*identity.Resolver, *ports.Repositories, *countingMetrics) {
	t.Helper()
	repos := memory.NewRepositories()
	metrics := &countingMetrics{}
	return identity.NewResolver(repos.Subjects, metrics, nil), repos, metrics
}

func TestResolve_CreatesAndReuses(t *testing.T) {
	r, _, _ := setup(t)
	ctx := context.Background()
	sess := &identity.MapSession{}

	first, err := r.Resolve(ctx, sess, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if sess.ID != first.ID || first.Identity != nil {
		t.Fatalf("expected session bound to new anonymous subject, got %+v (session %q)", first, sess.ID)
	}

	second, err := r.Resolve(ctx, sess, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same subject, got %s and %s", first.ID, second.ID)
	}
}

func TestResolve_StaleBindingAndRegisteredIdentity(t *testing.T) {
	r, repos, _ := setup(t)
	ctx := context.Background()

	alice := "alice"
	if err := repos.Subjects.Create(ctx, &domain.Subject{ID: "registered", Identity: &alice, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sess := &identity.MapSession{ID: "deleted-long-ago"}
	got, err := r.Resolve(ctx, sess, "alice")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.ID != "registered" || sess.ID != "registered" {
		t.Errorf("expected session bound to registered subject, got %s (session %s)", got.ID, sess.ID)
	}
}

func TestReconcile_NoSubjectIsNoOp(t *testing.T) {
	r, _, metrics := setup(t)
	ctx := context.Background()

	got, err := r.Reconcile(ctx, &identity.MapSession{}, "", "alice")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
	got, err = r.Reconcile(ctx, &identity.MapSession{ID: "stale"}, "", "alice")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for stale id, got (%v, %v)", got, err)
	}
	if len(metrics.merges) != 0 {
		t.Errorf("expected no merges recorded, got %v", metrics.merges)
	}
}

func TestReconcile_AbsentIdentityKeepsSubject(t *testing.T) {
	r, _, _ := setup(t)
	ctx := context.Background()
	sess := &identity.MapSession{}

	anon, _ := r.Resolve(ctx, sess, "")
	got, err := r.Reconcile(ctx, sess, "", "")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got.ID != anon.ID || got.Identity != nil {
		t.Errorf("expected unchanged anonymous subject, got %+v", got)
	}
}

func TestReconcile_Promote(t *testing.T) {
	r, repos, metrics := setup(t)
	ctx := context.Background()
	sess := &identity.MapSession{}

	anon, _ := r.Resolve(ctx, sess, "")
	got, err := r.Reconcile(ctx, sess, "", "alice")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got.ID != anon.ID || got.Identity == nil || *got.Identity != "alice" {
		t.Fatalf("expected promoted subject, got %+v", got)
	}

	registered, _ := repos.Subjects.GetByIdentity(ctx, "alice")
	if registered == nil || registered.ID != anon.ID {
		t.Errorf("expected alice registered to %s, got %+v", anon.ID, registered)
	}
	if len(metrics.merges) != 1 || metrics.merges[0] != "promote" {
		t.Errorf("expected one promote, got %v", metrics.merges)
	}

	// A second reconcile with the same identity changes nothing.
	if _, err := r.Reconcile(ctx, sess, "alice", "alice"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(metrics.merges) != 1 {
		t.Errorf("expected no further merges, got %v", metrics.merges)
	}
}

func TestReconcile_MergeIntoRegistered(t *testing.T) {
	r, repos, metrics := setup(t)
	ctx := context.Background()

	alice := "alice"
	if err := repos.Subjects.Create(ctx, &domain.Subject{ID: "s1", Identity: &alice, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repos.Subjects.Create(ctx, &domain.Subject{ID: "s2", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, name := range []string{"E1", "E2"} {
		if _, _, err := repos.Experiments.Declare(ctx, &domain.Experiment{Name: name, Variants: []string{"A", "B"}, Enrollable: true}); err != nil {
			t.Fatalf("Declare failed: %v", err)
		}
	}
	for _, e := range []*domain.Enrollment{
		{ID: "1", SubjectID: "s1", Experiment: "E1", Variant: "A"},
		{ID: "2", SubjectID: "s2", Experiment: "E1", Variant: "B"},
		{ID: "3", SubjectID: "s2", Experiment: "E2", Variant: "A"},
	} {
		if _, _, err := repos.Enrollments.GetOrCreate(ctx, e); err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
	}

	sess := &identity.MapSession{ID: "s2"}
	got, err := r.Reconcile(ctx, sess, "", "alice")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got.ID != "s1" || sess.ID != "s1" {
		t.Fatalf("expected session rebound to s1, got %s (session %s)", got.ID, sess.ID)
	}

	list, _ := repos.Enrollments.ListBySubject(ctx, "s1")
	variants := make(map[string]string)
	for _, e := range list {
		variants[e.Experiment] = e.Variant
	}
	if len(list) != 2 || variants["E1"] != "A" || variants["E2"] != "A" {
		t.Errorf("expected s1 to hold E1=A and E2=A, got %v", variants)
	}
	if gone, _ := repos.Subjects.GetByID(ctx, "s2"); gone != nil {
		t.Errorf("expected s2 deleted, got %+v", gone)
	}
	if len(metrics.merges) != 1 || metrics.merges[0] != "merge" {
		t.Errorf("expected one merge, got %v", metrics.merges)
	}
}

func TestReconcile_SwitchIdentity(t *testing.T) {
	r, repos, _ := setup(t)
	ctx := context.Background()

	alice, bob := "alice", "bob"
	if err := repos.Subjects.Create(ctx, &domain.Subject{ID: "a", Identity: &alice}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// bob has no subject yet: the session moves to a fresh one registered to bob.
	sess := &identity.MapSession{ID: "a"}
	got, err := r.Reconcile(ctx, sess, "alice", "bob")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got.ID == "a" || got.Identity == nil || *got.Identity != "bob" {
		t.Fatalf("expected fresh subject for bob, got %+v", got)
	}
	if still, _ := repos.Subjects.GetByID(ctx, "a"); still == nil {
		t.Error("expected alice's subject to survive")
	}
	bobID := got.ID

	// Switching back rebinds to alice without merging bob's history.
	got, err = r.Reconcile(ctx, sess, "bob", alice)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got.ID != "a" || sess.ID != "a" {
		t.Errorf("expected rebind to a, got %s", got.ID)
	}
	if still, _ := repos.Subjects.GetByID(ctx, bobID); still == nil || still.Identity == nil || *still.Identity != bob {
		t.Errorf("expected bob's subject to survive, got %+v", still)
	}
}
