package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bindforge/bindforge/pkg/engine"
)

// RunStatus represents the outcome of a generation run
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusRejected  RunStatus = "rejected"
	RunStatusFailed    RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusSucceeded, RunStatusRejected, RunStatusFailed:
		return true
	}
	return false
}

// Run is one recorded generation.
type Run struct {
	ID          string    `json:"id"`
	PlanName    string    `json:"plan_name,omitempty"`
	PlanPath    string    `json:"plan_path"`
	SymbolsPath string    `json:"symbols_path"`
	Fingerprint string    `json:"fingerprint"`
	Status      RunStatus `json:"status"`
	Strict      bool      `json:"strict"`

	ResourceCount   int `json:"resource_count"`
	DiagnosticCount int `json:"diagnostic_count"`

	Diagnostics string  `json:"diagnostics"`     // JSON array
	Model       *string `json:"model,omitempty"` // JSON blob, set on success
	Error       *string `json:"error,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRun starts a run record for the given inputs.
func NewRun(planPath, symbolsPath, fingerprint string) *Run {
	return &Run{
		ID:          uuid.New().String(),
		PlanPath:    planPath,
		SymbolsPath: symbolsPath,
		Fingerprint: fingerprint,
		Diagnostics: "[]",
		StartedAt:   time.Now(),
	}
}

// Complete fills the outcome of the run from a Generate result and error.
func (r *Run) Complete(status RunStatus, result *engine.Result, genErr error) error {
	r.Status = status
	r.CompletedAt = time.Now()

	var diags engine.Diagnostics
	if result != nil {
		diags = result.Diagnostics
		if result.Model != nil {
			data, err := json.Marshal(result.Model)
			if err != nil {
				return fmt.Errorf("failed to encode model: %w", err)
			}
			model := string(data)
			r.Model = &model
			r.ResourceCount = len(result.Model.Resources)
		}
	}
	if genErr != nil {
		if rejected, ok := engine.DiagnosticsOf(genErr); ok {
			diags = rejected
		}
		msg := genErr.Error()
		r.Error = &msg
	}

	if diags == nil {
		diags = engine.Diagnostics{}
	}
	data, err := json.Marshal(diags)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	r.Diagnostics = string(data)
	r.DiagnosticCount = len(diags)
	return nil
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// DecodeDiagnostics parses the stored diagnostics.
func (r *Run) DecodeDiagnostics() (engine.Diagnostics, error) {
	var diags engine.Diagnostics
	if err := json.Unmarshal([]byte(r.Diagnostics), &diags); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics of run %s: %w", r.ID, err)
	}
	return diags, nil
}

// DecodeModel parses the stored model. It returns nil for runs without one.
func (r *Run) DecodeModel() (*engine.BindingModel, error) {
	if r.Model == nil {
		return nil, nil
	}
	var model engine.BindingModel
	if err := json.Unmarshal([]byte(*r.Model), &model); err != nil {
		return nil, fmt.Errorf("failed to decode model of run %s: %w", r.ID, err)
	}
	return &model, nil
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	PlanPath string
	Status   RunStatus

	// Kind keeps runs that reported at least one diagnostic of this kind.
	Kind engine.DiagnosticKind

	Limit  int
	Offset int
}

// KindCount is the number of diagnostics of one kind across stored runs.
type KindCount struct {
	Kind  engine.DiagnosticKind `json:"kind"`
	Count int                   `json:"count"`
}

// Store defines the interface for the generation history
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FindRun(ctx context.Context, idPrefix string) (*Run, error)
	LatestRun(ctx context.Context, fingerprint string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Diagnostic queries
	ListRunDiagnostics(ctx context.Context, runID string) (engine.Diagnostics, error)
	CountDiagnosticsByKind(ctx context.Context) ([]KindCount, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
