package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/emiliopalmerini/splango/internal/adapters/memory"
	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/ports"
)

func setup(t *testing.T) *ports.Repositories {
	t.Helper()
	repos := memory.NewRepositories()
	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		if err := repos.Subjects.Create(ctx, &domain.Subject{ID: id, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("Create(%s) failed: %v", id, err)
		}
	}
	_, _, err := repos.Experiments.Declare(ctx, &domain.Experiment{
		Name: "E1", Variants: []string{"A", "B"}, Enrollable: true, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	return repos
}

func TestStoresAreIsolated(t *testing.T) {
	a := memory.NewRepositories()
	b := memory.NewRepositories()
	ctx := context.Background()

	if err := a.Subjects.Create(ctx, &domain.Subject{ID: "s1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := b.Subjects.GetByID(ctx, "s1")
	if err != nil || got != nil {
		t.Fatalf("expected second store to be empty, got (%v, %v)", got, err)
	}
}

func TestEnrollmentGetOrCreate_FirstWriteWins(t *testing.T) {
	repos := setup(t)
	ctx := context.Background()

	first, created, err := repos.Enrollments.GetOrCreate(ctx, &domain.Enrollment{ID: "e1", SubjectID: "s1", Experiment: "E1", Variant: "A"})
	if err != nil || !created {
		t.Fatalf("first GetOrCreate: created=%v err=%v", created, err)
	}
	second, created, err := repos.Enrollments.GetOrCreate(ctx, &domain.Enrollment{ID: "e2", SubjectID: "s1", Experiment: "E1", Variant: "B"})
	if err != nil || created {
		t.Fatalf("second GetOrCreate: created=%v err=%v", created, err)
	}
	if second.ID != first.ID || second.Variant != "A" {
		t.Errorf("expected existing enrollment, got %+v", second)
	}
}

func TestEnrollmentGetOrCreate_Concurrent(t *testing.T) {
	repos := setup(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		seen    = make(map[string]bool)
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			variant := []string{"A", "B"}[i%2]
			e, ok, err := repos.Enrollments.GetOrCreate(ctx, &domain.Enrollment{
				ID: fmt.Sprintf("e%d", i), SubjectID: "s1", Experiment: "E1", Variant: variant,
			})
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			seen[e.Variant] = true
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("expected exactly one creation, got %d", created)
	}
	if len(seen) != 1 {
		t.Errorf("expected all callers to observe one variant, got %v", seen)
	}
}

func TestEnrollmentGetOrCreate_UnknownExperiment(t *testing.T) {
	repos := setup(t)

	_, _, err := repos.Enrollments.GetOrCreate(context.Background(), &domain.Enrollment{ID: "e1", SubjectID: "s1", Experiment: "nope", Variant: "A"})
	if !errors.Is(err, domain.ErrUnknownExperiment) {
		t.Fatalf("expected ErrUnknownExperiment, got %v", err)
	}
}

func TestGoalRecords_BackfillOnce(t *testing.T) {
	repos := setup(t)
	ctx := context.Background()

	if _, err := repos.Goals.GetOrCreate(ctx, "signup"); err != nil {
		t.Fatalf("GetOrCreate goal failed: %v", err)
	}
	rec, created, err := repos.GoalRecords.GetOrCreate(ctx, &domain.GoalRecord{ID: "r1", SubjectID: "s1", Goal: "signup"})
	if err != nil || !created {
		t.Fatalf("GetOrCreate record: created=%v err=%v", created, err)
	}

	ok, err := repos.GoalRecords.BackfillExtra(ctx, rec.ID, "x")
	if err != nil || !ok {
		t.Fatalf("first backfill: ok=%v err=%v", ok, err)
	}
	ok, err = repos.GoalRecords.BackfillExtra(ctx, rec.ID, "y")
	if err != nil || ok {
		t.Fatalf("second backfill: ok=%v err=%v", ok, err)
	}

	got, err := repos.GoalRecords.Get(ctx, "s1", "signup")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Extra == nil || *got.Extra != "x" {
		t.Errorf("expected extra x, got %v", got.Extra)
	}
}

func TestSubjects_MergeKeepsDestination(t *testing.T) {
	repos := setup(t)
	ctx := context.Background()

	if _, err := repos.Goals.GetOrCreate(ctx, "signup"); err != nil {
		t.Fatalf("GetOrCreate goal failed: %v", err)
	}
	mustEnroll := func(id, subject, variant string) {
		if _, _, err := repos.Enrollments.GetOrCreate(ctx, &domain.Enrollment{ID: id, SubjectID: subject, Experiment: "E1", Variant: variant}); err != nil {
			t.Fatalf("enroll %s failed: %v", id, err)
		}
	}
	mustEnroll("e1", "s1", "A")
	mustEnroll("e2", "s2", "B")
	if _, _, err := repos.GoalRecords.GetOrCreate(ctx, &domain.GoalRecord{ID: "r1", SubjectID: "s1", Goal: "signup"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := repos.Subjects.Merge(ctx, "s1", "s2"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := repos.Subjects.Merge(ctx, "s1", "s2"); err != nil {
		t.Fatalf("repeated Merge failed: %v", err)
	}

	e, _ := repos.Enrollments.Get(ctx, "s2", "E1")
	if e == nil || e.Variant != "B" {
		t.Errorf("expected destination enrollment B to survive, got %+v", e)
	}
	rec, _ := repos.GoalRecords.Get(ctx, "s2", "signup")
	if rec == nil || rec.ID != "r1" {
		t.Errorf("expected goal record moved to s2, got %+v", rec)
	}
	gone, _ := repos.Subjects.GetByID(ctx, "s1")
	if gone != nil {
		t.Errorf("expected source subject deleted, got %+v", gone)
	}
	left, _ := repos.Enrollments.ListBySubject(ctx, "s1")
	if len(left) != 0 {
		t.Errorf("expected no enrollments left on s1, got %d", len(left))
	}
}

func TestSubjects_PromoteIdentityTaken(t *testing.T) {
	repos := setup(t)
	ctx := context.Background()

	if err := repos.Subjects.Promote(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if err := repos.Subjects.Promote(ctx, "s2", "alice"); !errors.Is(err, domain.ErrIdentityTaken) {
		t.Fatalf("expected ErrIdentityTaken, got %v", err)
	}
}

func TestCountByVariantWithGoal(t *testing.T) {
	repos := setup(t)
	ctx := context.Background()

	if _, err := repos.Goals.GetOrCreate(ctx, "signup"); err != nil {
		t.Fatalf("GetOrCreate goal failed: %v", err)
	}
	for _, e := range []*domain.Enrollment{
		{ID: "e1", SubjectID: "s1", Experiment: "E1", Variant: "A"},
		{ID: "e2", SubjectID: "s2", Experiment: "E1", Variant: "A"},
	} {
		if _, _, err := repos.Enrollments.GetOrCreate(ctx, e); err != nil {
			t.Fatalf("enroll failed: %v", err)
		}
	}
	if _, _, err := repos.GoalRecords.GetOrCreate(ctx, &domain.GoalRecord{ID: "r1", SubjectID: "s2", Goal: "signup"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	total, _ := repos.Enrollments.CountByVariant(ctx, "E1", "A")
	converted, _ := repos.Enrollments.CountByVariantWithGoal(ctx, "E1", "A", "signup")
	if total != 2 || converted != 1 {
		t.Errorf("expected 2/1, got %d/%d", total, converted)
	}
}
