package goals_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emiliopalmerini/splango/internal/adapters/memory"
	"github.com/emiliopalmerini/splango/internal/adapters/otel"
	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/goals"
	"github.com/emiliopalmerini/splango/internal/ports"
)

func setup(t *testing.T) (*goals.Ledger, *ports.Repositories) {
	t.Helper()
	repos := memory.NewRepositories()
	if err := repos.Subjects.Create(context.Background(), &domain.Subject{ID: "s1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return goals.NewLedger(repos, otel.NewNoOpExporter(), nil), repos
}

func TestRecord_CreatesGoalLazily(t *testing.T) {
	l, repos := setup(t)
	ctx := context.Background()

	rec, err := l.Record(ctx, "s1", "signup", domain.RequestInfo{Referrer: "r", RemoteAddr: "1.2.3.4", Path: "/join"}, "")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec.ID == "" || rec.Extra != nil || rec.Path != "/join" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if g, _ := repos.Goals.GetByName(ctx, "signup"); g == nil {
		t.Error("expected goal to be created")
	}
}

func TestRecord_IdempotentWithBackfillOnce(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	first, err := l.Record(ctx, "s1", "signup", domain.RequestInfo{Path: "/first"}, "")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	second, err := l.Record(ctx, "s1", "signup", domain.RequestInfo{Path: "/second"}, "x")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same record, got %s and %s", first.ID, second.ID)
	}
	if second.Path != "/first" {
		t.Errorf("expected first-touch path, got %s", second.Path)
	}
	if second.Extra == nil || *second.Extra != "x" {
		t.Fatalf("expected extra backfilled to x, got %v", second.Extra)
	}

	third, err := l.Record(ctx, "s1", "signup", domain.RequestInfo{}, "y")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if third.Extra == nil || *third.Extra != "x" {
		t.Errorf("expected extra to stay x, got %v", third.Extra)
	}
}

func TestRecord_InvalidGoal(t *testing.T) {
	l, _ := setup(t)

	for _, name := range []string{"", strings.Repeat("g", domain.NameLength+1)} {
		if _, err := l.Record(context.Background(), "s1", name, domain.RequestInfo{}, ""); !errors.Is(err, domain.ErrInvalidGoal) {
			t.Errorf("name %q: expected ErrInvalidGoal, got %v", name, err)
		}
	}
}

func TestRecord_TruncatesFields(t *testing.T) {
	l, _ := setup(t)

	long := strings.Repeat("x", 300)
	rec, err := l.Record(context.Background(), "s1", "signup", domain.RequestInfo{Referrer: long, Path: long}, long)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(rec.Referrer) != domain.ReferrerLength || len(rec.Path) != domain.PathLength || len(*rec.Extra) != domain.ExtraLength {
		t.Errorf("expected truncated fields, got %d/%d/%d", len(rec.Referrer), len(rec.Path), len(*rec.Extra))
	}
}

func TestExtractRequestInfo(t *testing.T) {
	tests := []struct {
		name     string
		referrer string
		remote   string
		target   string
		want     domain.RequestInfo
	}{
		{
			name:   "missing referrer",
			remote: "10.0.0.1:5555",
			target: "/pricing?plan=pro",
			want:   domain.RequestInfo{RemoteAddr: "10.0.0.1", Path: "/pricing"},
		},
		{
			name:     "ipv6 with referrer",
			referrer: "https://example.com/",
			remote:   "[::1]:8080",
			target:   "/",
			want:     domain.RequestInfo{Referrer: "https://example.com/", RemoteAddr: "::1", Path: "/"},
		},
		{
			name:   "address without port",
			remote: "192.168.1.9",
			target: "/a",
			want:   domain.RequestInfo{RemoteAddr: "192.168.1.9", Path: "/a"},
		},
		{
			name:     "long fields truncated",
			referrer: "https://example.com/" + strings.Repeat("r", 300),
			remote:   "1.1.1.1:1",
			target:   "/" + strings.Repeat("p", 300),
			want: domain.RequestInfo{
				Referrer:   ("https://example.com/" + strings.Repeat("r", 300))[:domain.ReferrerLength],
				RemoteAddr: "1.1.1.1",
				Path:       ("/" + strings.Repeat("p", 300))[:domain.PathLength],
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.RemoteAddr = tt.remote
			if tt.referrer != "" {
				req.Header.Set("Referer", tt.referrer)
			}
			if got := goals.ExtractRequestInfo(req); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
