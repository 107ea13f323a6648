package stores

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bindforge/bindforge/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testResult() *engine.Result {
	return &engine.Result{
		Model: &engine.BindingModel{
			Prefix: "unit_",
			Resources: []engine.ResourceBinding{
				{Name: "Index", Lifetime: engine.LifetimeOwned, Root: true},
				{Name: "Unit", Lifetime: engine.LifetimeOwned},
			},
		},
		Diagnostics: engine.Diagnostics{
			{Entry: "resource Unit view bytes", Kind: engine.KindPolicyViolation, Severity: engine.SeverityInfo, Message: "borrowed", Reference: "borrowed-view"},
		},
	}
}

// newTestRun builds a completed run started at the given offset from a fixed time.
func newTestRun(t *testing.T, planPath string, offset time.Duration, status RunStatus) *Run {
	t.Helper()

	run := NewRun(planPath, "symbols.json", Fingerprint([]byte(planPath)))
	run.StartedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(offset)

	var err error
	switch status {
	case RunStatusSucceeded:
		err = run.Complete(status, testResult(), nil)
	case RunStatusRejected:
		diags := engine.Diagnostics{
			{Entry: "Unit.save", Kind: engine.KindUnknownSymbol, Severity: engine.SeverityError, Message: "no such function"},
			{Entry: "Unit", Kind: engine.KindMissingErrorRule, Severity: engine.SeverityError, Message: "no rule"},
		}
		err = run.Complete(status, nil, engine.NewRejectedError(diags))
	default:
		err = run.Complete(status, nil, errors.New("symbol table unreadable"))
	}
	if err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}
	run.CompletedAt = run.StartedAt.Add(250 * time.Millisecond)
	return run
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "nested", "history.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for an empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "run_diagnostics"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running again is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

func TestOpen_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	run := newTestRun(t, "plan.cue", 0, RunStatusSucceeded)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetRun(ctx, run.ID); err != nil {
		t.Errorf("Expected run to persist, got %v", err)
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := newTestRun(t, "plans/unit.cue", 0, RunStatusSucceeded)
	run.PlanName = "unit"
	run.Strict = true

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if got.PlanName != "unit" || got.PlanPath != "plans/unit.cue" || got.SymbolsPath != "symbols.json" {
		t.Errorf("Unexpected run paths: %+v", got)
	}
	if got.Status != RunStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", got.Status)
	}
	if !got.Strict {
		t.Error("Expected strict to round-trip")
	}
	if got.ResourceCount != 2 || got.DiagnosticCount != 1 {
		t.Errorf("Expected 2 resources and 1 diagnostic, got %d and %d", got.ResourceCount, got.DiagnosticCount)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("Expected started_at %v, got %v", run.StartedAt, got.StartedAt)
	}
	if got.Duration() != 250*time.Millisecond {
		t.Errorf("Expected duration 250ms, got %v", got.Duration())
	}
	if got.Error != nil {
		t.Errorf("Expected no error, got %q", *got.Error)
	}

	model, err := got.DecodeModel()
	if err != nil {
		t.Fatalf("failed to decode model: %v", err)
	}
	if model == nil || len(model.Resources) != 2 || model.Resources[0].Name != "Index" {
		t.Errorf("Unexpected model: %+v", model)
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if err := store.DeleteRun(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound on second delete, got %v", err)
	}
}

func TestCreateRun_InvalidStatus(t *testing.T) {
	store := setupTestStore(t)

	run := NewRun("plan.cue", "symbols.json", "fp")
	if err := store.CreateRun(context.Background(), run); err == nil {
		t.Error("Expected error for a run without status")
	}
}

func TestRejectedRun_Diagnostics(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := newTestRun(t, "plan.cue", 0, RunStatusRejected)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != nil {
		t.Error("Expected no model for a rejected run")
	}
	if got.Error == nil {
		t.Error("Expected the rejection error to be stored")
	}

	decoded, err := got.DecodeDiagnostics()
	if err != nil {
		t.Fatal(err)
	}
	rows, err := store.ListRunDiagnostics(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || len(rows) != 2 {
		t.Fatalf("Expected 2 diagnostics, got %d decoded and %d rows", len(decoded), len(rows))
	}
	for i := range rows {
		if rows[i] != decoded[i] {
			t.Errorf("Diagnostic %d: expected %+v, got %+v", i, decoded[i], rows[i])
		}
	}
	if rows[0].Kind != engine.KindUnknownSymbol {
		t.Errorf("Expected diagnostics in reported order, got %s first", rows[0].Kind)
	}
}

func TestListRuns_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	runs := []*Run{
		newTestRun(t, "a.cue", 0, RunStatusSucceeded),
		newTestRun(t, "a.cue", time.Second, RunStatusRejected),
		newTestRun(t, "b.cue", 2*time.Second, RunStatusFailed),
	}
	for _, run := range runs {
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{"all newest first", RunFilter{}, []string{runs[2].ID, runs[1].ID, runs[0].ID}},
		{"by plan", RunFilter{PlanPath: "a.cue"}, []string{runs[1].ID, runs[0].ID}},
		{"by status", RunFilter{Status: RunStatusFailed}, []string{runs[2].ID}},
		{"by kind", RunFilter{Kind: engine.KindMissingErrorRule}, []string{runs[1].ID}},
		{"limit", RunFilter{Limit: 1}, []string{runs[2].ID}},
		{"offset", RunFilter{Limit: 1, Offset: 2}, []string{runs[0].ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("failed to list runs: %v", err)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestFindRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := newTestRun(t, "plan.cue", 0, RunStatusSucceeded)
	first.ID = "aaaa1111-0000-0000-0000-000000000000"
	second := newTestRun(t, "plan.cue", time.Second, RunStatusSucceeded)
	second.ID = "aaaa2222-0000-0000-0000-000000000000"
	for _, run := range []*Run{first, second} {
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	if got, err := store.FindRun(ctx, "aaaa1"); err != nil || got.ID != first.ID {
		t.Errorf("Expected %s, got %v (%v)", first.ID, got, err)
	}
	if got, err := store.FindRun(ctx, second.ID); err != nil || got.ID != second.ID {
		t.Errorf("Expected exact match %s, got %v (%v)", second.ID, got, err)
	}
	if _, err := store.FindRun(ctx, "aaaa"); err == nil || errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected an ambiguity error, got %v", err)
	}
	if _, err := store.FindRun(ctx, "ffff"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if _, err := store.FindRun(ctx, "aaaa_"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected _ to match literally, got %v", err)
	}
}

func TestLatestRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	older := newTestRun(t, "plan.cue", 0, RunStatusRejected)
	newer := newTestRun(t, "plan.cue", time.Minute, RunStatusSucceeded)
	other := newTestRun(t, "other.cue", time.Hour, RunStatusSucceeded)
	for _, run := range []*Run{older, newer, other} {
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.LatestRun(ctx, older.Fingerprint)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != newer.ID {
		t.Errorf("Expected %s, got %s", newer.ID, got.ID)
	}

	if _, err := store.LatestRun(ctx, "unknown"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		run := newTestRun(t, fmt.Sprintf("plan-%d.cue", i), time.Duration(i)*time.Second, RunStatusRejected)
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID)
	}

	deleted, err := store.PruneRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted runs, got %d", deleted)
	}

	remaining, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 || remaining[0].ID != ids[4] || remaining[1].ID != ids[3] {
		t.Errorf("Expected the two newest runs to remain, got %d", len(remaining))
	}

	// Diagnostics of pruned runs go with them
	diags, err := store.ListRunDiagnostics(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 0 {
		t.Errorf("Expected cascaded delete, got %d diagnostics", len(diags))
	}

	if _, err := store.PruneRuns(ctx, -1); err == nil {
		t.Error("Expected error for negative keep")
	}
}

func TestCountDiagnosticsByKind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, status := range []RunStatus{RunStatusRejected, RunStatusRejected, RunStatusSucceeded} {
		if err := store.CreateRun(ctx, newTestRun(t, "plan.cue", time.Duration(i)*time.Second, status)); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := store.CountDiagnosticsByKind(ctx)
	if err != nil {
		t.Fatal(err)
	}

	want := []KindCount{
		{Kind: engine.KindMissingErrorRule, Count: 2},
		{Kind: engine.KindUnknownSymbol, Count: 2},
		{Kind: engine.KindPolicyViolation, Count: 1},
	}
	if len(counts) != len(want) {
		t.Fatalf("Expected %v, got %v", want, counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("Position %d: expected %+v, got %+v", i, want[i], counts[i])
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("ab"), []byte("c"))
	b := Fingerprint([]byte("a"), []byte("bc"))
	if a == b {
		t.Error("Expected part boundaries to change the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("Expected a 64 character hex digest, got %d", len(a))
	}
	if a != Fingerprint([]byte("ab"), []byte("c")) {
		t.Error("Expected fingerprint to be deterministic")
	}

	dir := t.TempDir()
	if _, err := FingerprintFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestExportRun(t *testing.T) {
	run := newTestRun(t, "plan.cue", 0, RunStatusSucceeded)

	data, err := ExportRun(run)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{`"status": "succeeded"`, `"kind": "PolicyViolation"`, `"name": "Index"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected export to contain %s", want)
		}
	}
}
