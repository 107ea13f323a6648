package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bindforge/bindforge/pkg/engine"
	"github.com/bindforge/bindforge/pkg/telemetry"
)

// PlanConfig is a strategy plan file as decoded from CUE, YAML, JSON or Starlark.
type PlanConfig struct {
	// Name identifies the plan in generation history. Defaults to the file name.
	Name string `json:"name,omitempty"`

	// Symbols is the symbol table path, relative to the plan file.
	Symbols string `json:"symbols,omitempty"`

	// NamingHook is a Starlark script path, relative to the plan file, defining
	// derive_name(function, resource, prefix).
	NamingHook string `json:"namingHook,omitempty"`

	engine.StrategyPlan
}

// ToStrategyPlan returns the engine form of the plan.
func (pc *PlanConfig) ToStrategyPlan() *engine.StrategyPlan {
	plan := pc.StrategyPlan
	return &plan
}

// ParsedPlan is the result of loading one plan source.
type ParsedPlan struct {
	// Plan is nil when Errors is non-empty.
	Plan *PlanConfig `json:"plan,omitempty"`

	// SourceFiles are the files that were read.
	SourceFiles []string `json:"source_files"`

	// Dir is the directory relative paths in the plan resolve against.
	Dir string `json:"dir"`

	// Format is the detected source format (cue, yaml, json, star).
	Format string `json:"format"`

	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists schema and decode errors with source positions where known.
	Errors []ValidationError `json:"errors,omitempty"`
}

// SymbolsPath resolves the plan's symbol table path.
func (pp *ParsedPlan) SymbolsPath() string {
	if pp.Plan == nil || pp.Plan.Symbols == "" {
		return ""
	}
	return resolvePath(pp.Dir, pp.Plan.Symbols)
}

// NamingHookPath resolves the plan's naming hook path.
func (pp *ParsedPlan) NamingHookPath() string {
	if pp.Plan == nil || pp.Plan.NamingHook == "" {
		return ""
	}
	return resolvePath(pp.Dir, pp.Plan.NamingHook)
}

// Err returns an input error summarizing Errors, or nil.
func (pp *ParsedPlan) Err() error {
	if len(pp.Errors) == 0 {
		return nil
	}
	e := engine.NewInputError(pp.Errors[0].String(), nil).WithCode(engine.ErrCodeSchema)
	e.WithDetail("errors", len(pp.Errors))
	return e
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "resources.0.name").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

func (ve ValidationError) String() string {
	switch {
	case ve.File != "" && ve.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", ve.File, ve.Line, ve.Column, ve.Message)
	case ve.Path != "":
		return ve.Path + ": " + ve.Message
	default:
		return ve.Message
	}
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

// ToolConfig is the bindforge.yaml tool configuration.
type ToolConfig struct {
	Logging  LoggingSettings  `yaml:"logging" json:"logging"`
	History  HistorySettings  `yaml:"history" json:"history"`
	Policy   PolicySettings   `yaml:"policy" json:"policy"`
	Generate GenerateSettings `yaml:"generate" json:"generate"`
	Naming   NamingSettings   `yaml:"naming" json:"naming"`
	Metrics  MetricsSettings  `yaml:"metrics" json:"metrics"`
	Tracing  TracingSettings  `yaml:"tracing" json:"tracing"`
}

// LoggingSettings configures the CLI logger.
type LoggingSettings struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output" json:"output,omitempty"`
}

// HistorySettings configures the generation history database.
type HistorySettings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
}

// PolicySettings configures lint policies.
type PolicySettings struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Paths   []string `yaml:"paths" json:"paths,omitempty"`

	// Strict makes error-severity policy violations fatal.
	Strict bool `yaml:"strict" json:"strict"`
}

// GenerateSettings holds defaults for bindforge generate.
type GenerateSettings struct {
	AllowWarnings bool   `yaml:"allowWarnings" json:"allowWarnings"`
	Format        string `yaml:"format" json:"format" validate:"omitempty,oneof=json yaml"`
	Out           string `yaml:"out" json:"out,omitempty"`
}

// NamingSettings configures the Starlark naming hook.
type NamingSettings struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// MetricsSettings configures generation metrics.
type MetricsSettings struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TextfilePath receives metrics in Prometheus text format after each run.
	TextfilePath string `yaml:"textfilePath" json:"textfilePath,omitempty"`
}

// TracingSettings configures stage spans.
type TracingSettings struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter" validate:"omitempty,oneof=stdout otlp none"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate" validate:"gte=0,lte=1"`
}

// DefaultToolConfig returns the configuration used when no bindforge.yaml exists.
func DefaultToolConfig() *ToolConfig {
	return &ToolConfig{
		Logging: LoggingSettings{Level: "info", Format: "console", Output: "stderr"},
		History: HistorySettings{Enabled: true, Path: ".bindforge/history.db"},
		Policy:  PolicySettings{Enabled: true},
		Generate: GenerateSettings{
			Format: "json",
		},
		Naming:  NamingSettings{Timeout: 5 * time.Second},
		Metrics: MetricsSettings{},
		Tracing: TracingSettings{Exporter: "stdout", SamplingRate: 1.0},
	}
}

// Telemetry converts the tool configuration into a telemetry configuration.
func (tc *ToolConfig) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if tc.Logging.Level != "" {
		cfg.Logging.Level = tc.Logging.Level
	}
	if tc.Logging.Format != "" {
		cfg.Logging.Format = tc.Logging.Format
	}
	if tc.Logging.Output != "" {
		cfg.Logging.Output = tc.Logging.Output
	}
	cfg.Metrics.Enabled = tc.Metrics.Enabled
	cfg.Metrics.TextfilePath = tc.Metrics.TextfilePath
	cfg.Tracing.Enabled = tc.Tracing.Enabled
	if tc.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = tc.Tracing.Exporter
	}
	cfg.Tracing.Endpoint = tc.Tracing.Endpoint
	cfg.Tracing.SamplingRate = tc.Tracing.SamplingRate
	return cfg
}
