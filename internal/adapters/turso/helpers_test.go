package turso_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emiliopalmerini/splango/internal/adapters/turso"
	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/migrate"
	"github.com/emiliopalmerini/splango/internal/ports"
)

// testDB opens a fresh file-backed database with all migrations applied.
func testDB(t *testing.T) *turso.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "splango.db")
	db, err := turso.Open(turso.Config{URL: dsn})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	ctx := context.Background()
	if err := migrate.RunAll(ctx, db.DB); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRepos(t *testing.T) *ports.Repositories {
	t.Helper()
	return turso.NewRepositories(testDB(t).DB)
}

func seedSubject(t *testing.T, repos *ports.Repositories, id string) {
	t.Helper()
	err := repos.Subjects.Create(context.Background(), &domain.Subject{ID: id, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("failed to seed subject %s: %v", id, err)
	}
}

func seedExperiment(t *testing.T, repos *ports.Repositories, name string, variants ...string) {
	t.Helper()
	_, _, err := repos.Experiments.Declare(context.Background(), &domain.Experiment{
		Name:       name,
		Variants:   variants,
		Enrollable: true,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed experiment %s: %v", name, err)
	}
}

func enroll(t *testing.T, repos *ports.Repositories, subjectID, experiment, variant string) *domain.Enrollment {
	t.Helper()
	e, _, err := repos.Enrollments.GetOrCreate(context.Background(), &domain.Enrollment{
		ID:         subjectID + "-" + experiment,
		SubjectID:  subjectID,
		Experiment: experiment,
		Variant:    variant,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to enroll %s: %v", subjectID, err)
	}
	return e
}

func recordGoal(t *testing.T, repos *ports.Repositories, subjectID, goal string) *domain.GoalRecord {
	t.Helper()
	ctx := context.Background()
	if _, err := repos.Goals.GetOrCreate(ctx, goal); err != nil {
		t.Fatalf("failed to create goal %s: %v", goal, err)
	}
	rec, _, err := repos.GoalRecords.GetOrCreate(ctx, &domain.GoalRecord{
		ID:        subjectID + "-" + goal,
		SubjectID: subjectID,
		Goal:      goal,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to record goal %s for %s: %v", goal, subjectID, err)
	}
	return rec
}
