package enrollment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/emiliopalmerini/splango/internal/adapters/memory"
	"github.com/emiliopalmerini/splango/internal/adapters/otel"
	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/enrollment"
	"github.com/emiliopalmerini/splango/internal/ports"
)

func setup(t *testing.T, enrollable bool, opts ...enrollment.Option) (*enrollment.Engine, *ports.Repositories) {
	t.Helper()
	repos := memory.NewRepositories()
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if err := repos.Subjects.Create(ctx, &domain.Subject{ID: id, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	_, _, err := repos.Experiments.Declare(ctx, &domain.Experiment{
		Name: "E1", Variants: []string{"A", "B"}, Enrollable: enrollable, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	return enrollment.NewEngine(repos, otel.NewNoOpExporter(), nil, opts...), repos
}

func TestGetVariant_UnknownExperiment(t *testing.T) {
	e, _ := setup(t, true)

	for _, enroll := range []bool{false, true} {
		v, ok, err := e.GetVariant(context.Background(), "nope", "s1", enroll)
		if err != nil || ok || v != "" {
			t.Errorf("enroll=%v: expected absent without error, got (%q, %v, %v)", enroll, v, ok, err)
		}
	}
}

func TestGetVariant_LookupDoesNotEnroll(t *testing.T) {
	e, repos := setup(t, true)
	ctx := context.Background()

	_, ok, err := e.GetVariant(ctx, "E1", "s1", false)
	if err != nil || ok {
		t.Fatalf("expected absent, got ok=%v err=%v", ok, err)
	}
	if got, _ := repos.Enrollments.Get(ctx, "s1", "E1"); got != nil {
		t.Errorf("expected no enrollment, got %+v", got)
	}
}

func TestGetVariant_Sticky(t *testing.T) {
	calls := 0
	picker := func(variants []string) string {
		calls++
		return variants[calls%len(variants)]
	}
	e, _ := setup(t, true, enrollment.WithPicker(picker))
	ctx := context.Background()

	first, ok, err := e.GetVariant(ctx, "E1", "s1", true)
	if err != nil || !ok {
		t.Fatalf("GetVariant failed: ok=%v err=%v", ok, err)
	}
	for i := 0; i < 5; i++ {
		v, ok, err := e.GetVariant(ctx, "E1", "s1", i%2 == 0)
		if err != nil || !ok || v != first {
			t.Fatalf("call %d: expected %q, got (%q, %v, %v)", i, first, v, ok, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected picker called once, got %d", calls)
	}
}

func TestGetVariant_NotEnrollable(t *testing.T) {
	e, repos := setup(t, false)
	ctx := context.Background()

	_, _, err := e.GetVariant(ctx, "E1", "s1", true)
	if !errors.Is(err, domain.ErrNotEnrollable) {
		t.Fatalf("expected ErrNotEnrollable, got %v", err)
	}
	if got, _ := repos.Enrollments.Get(ctx, "s1", "E1"); got != nil {
		t.Errorf("expected no enrollment, got %+v", got)
	}

	// Lookups still work on a closed experiment.
	if _, ok, err := e.GetVariant(ctx, "E1", "s1", false); err != nil || ok {
		t.Errorf("expected absent lookup, got ok=%v err=%v", ok, err)
	}
}

func TestGetVariant_ConcurrentFirstEnrollment(t *testing.T) {
	var mu sync.Mutex
	n := 0
	picker := func(variants []string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return variants[n%len(variants)]
	}
	e, repos := setup(t, true, enrollment.WithPicker(picker))
	ctx := context.Background()

	results := make([]string, 20)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := e.GetVariant(ctx, "E1", "s1", true)
			if err != nil {
				t.Errorf("GetVariant failed: %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	stored, _ := repos.Enrollments.Get(ctx, "s1", "E1")
	for i, v := range results {
		if v != stored.Variant {
			t.Errorf("caller %d saw %q, stored %q", i, v, stored.Variant)
		}
	}
}

func TestGetVariant_UniformPickerUsesDeclaredVariants(t *testing.T) {
	e, _ := setup(t, true)
	ctx := context.Background()

	for _, s := range []string{"s1", "s2"} {
		v, ok, err := e.GetVariant(ctx, "E1", s, true)
		if err != nil || !ok {
			t.Fatalf("GetVariant failed: ok=%v err=%v", ok, err)
		}
		if v != "A" && v != "B" {
			t.Errorf("unexpected variant %q", v)
		}
	}
}

func TestEnrollExplicit(t *testing.T) {
	tests := []struct {
		name       string
		enrollable bool
		experiment string
		variant    string
		wantErr    error
	}{
		{"enrolls", true, "E1", "B", nil},
		{"unknown experiment", true, "nope", "A", domain.ErrUnknownExperiment},
		{"unknown variant", true, "E1", "C", domain.ErrUnknownVariant},
		{"closed", false, "E1", "A", domain.ErrNotEnrollable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, repos := setup(t, tt.enrollable)
			ctx := context.Background()

			got, err := e.EnrollExplicit(ctx, tt.experiment, "s1", tt.variant)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if stored, _ := repos.Enrollments.Get(ctx, "s1", tt.experiment); stored != nil {
					t.Errorf("expected no enrollment, got %+v", stored)
				}
				return
			}
			if err != nil {
				t.Fatalf("EnrollExplicit failed: %v", err)
			}
			if got.Variant != tt.variant {
				t.Errorf("expected %s, got %s", tt.variant, got.Variant)
			}
		})
	}
}

func TestEnrollExplicit_KeepsFirstAssignment(t *testing.T) {
	e, _ := setup(t, true)
	ctx := context.Background()

	if _, err := e.EnrollExplicit(ctx, "E1", "s1", "A"); err != nil {
		t.Fatalf("EnrollExplicit failed: %v", err)
	}
	got, err := e.EnrollExplicit(ctx, "E1", "s1", "B")
	if err != nil {
		t.Fatalf("EnrollExplicit failed: %v", err)
	}
	if got.Variant != "A" {
		t.Errorf("expected sticky variant A, got %s", got.Variant)
	}
}

func ExampleUniformPicker() {
	fmt.Println(enrollment.UniformPicker([]string{"only"}))
	// Output: only
}
