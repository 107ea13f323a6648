package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Plan source formats.
const (
	FormatCUE      = "cue"
	FormatYAML     = "yaml"
	FormatJSON     = "json"
	FormatStarlark = "star"
)

// PlanLoader reads strategy plans and validates them against the #Plan schema.
// A PlanLoader is not safe for concurrent use.
type PlanLoader struct {
	schemas   *SchemaRegistry
	evaluator *StarlarkEvaluator
	validator *validator.Validate
}

// NewPlanLoader creates a new plan loader.
func NewPlanLoader() *PlanLoader {
	return &PlanLoader{
		schemas:   NewSchemaRegistry(),
		evaluator: NewStarlarkEvaluator(30 * time.Second),
		validator: validator.New(),
	}
}

// Load reads a plan from a file or a directory holding a CUE package. Schema errors are
// returned in ParsedPlan.Errors; the error return is reserved for unreadable sources.
func (pl *PlanLoader) Load(ctx context.Context, path string) (*ParsedPlan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat plan %s: %w", path, err)
	}

	if info.IsDir() {
		val, files, errs := pl.loadDirectory(path)
		pp := &ParsedPlan{SourceFiles: files, Dir: path, Format: FormatCUE, ParsedAt: time.Now()}
		if len(errs) > 0 {
			pp.Errors = errs
			return pp, nil
		}
		return pl.finish(pp, val, filepath.Base(path)), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	pp, err := pl.LoadBytes(ctx, content, path, DetectFormat(path))
	if err != nil {
		return nil, err
	}
	pp.Dir = filepath.Dir(path)
	return pp, nil
}

// DetectFormat maps a file extension to a plan format, defaulting to CUE.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".star", ".bzl":
		return FormatStarlark
	default:
		return FormatCUE
	}
}

// LoadBytes decodes a plan held in memory. filename is used for positions and the default
// plan name.
func (pl *PlanLoader) LoadBytes(ctx context.Context, content []byte, filename, format string) (*ParsedPlan, error) {
	pp := &ParsedPlan{
		SourceFiles: []string{filename},
		Format:      format,
		ParsedAt:    time.Now(),
	}
	cctx := pl.schemas.Context()

	var val cue.Value
	switch format {
	case FormatCUE, FormatJSON:
		// JSON is valid CUE, so both keep source positions
		val = cctx.CompileBytes(content, cue.Filename(filename))
		if err := val.Err(); err != nil {
			pp.Errors = pl.convertCUEErrors(err)
			return pp, nil
		}
	case FormatYAML:
		var data interface{}
		dec := yaml.NewDecoder(bytes.NewReader(content))
		if err := dec.Decode(&data); err != nil {
			pp.Errors = []ValidationError{yamlError(filename, err)}
			return pp, nil
		}
		val = cctx.Encode(data)
	case FormatStarlark:
		data, err := pl.evaluatePlanScript(ctx, filename, string(content))
		if err != nil {
			pp.Errors = []ValidationError{{File: filename, Message: err.Error(), Severity: "error"}}
			return pp, nil
		}
		val = cctx.Encode(data)
	default:
		return nil, fmt.Errorf("unsupported plan format %q", format)
	}

	if err := val.Err(); err != nil {
		pp.Errors = pl.convertCUEErrors(err)
		return pp, nil
	}
	return pl.finish(pp, val, defaultPlanName(filename)), nil
}

// ParseInline parses inline CUE content.
func (pl *PlanLoader) ParseInline(ctx context.Context, content string) (*ParsedPlan, error) {
	return pl.LoadBytes(ctx, []byte(content), "inline", FormatCUE)
}

// evaluatePlanScript runs a Starlark plan script; its global "plan" holds the plan.
func (pl *PlanLoader) evaluatePlanScript(ctx context.Context, filename, script string) (interface{}, error) {
	result, err := pl.evaluator.Evaluate(ctx, filename, script, nil)
	if err != nil {
		return nil, err
	}
	plan, ok := result.Output["plan"]
	if !ok {
		return nil, fmt.Errorf("script does not define a global named plan")
	}
	return plan, nil
}

// finish unifies val with the plan schema and decodes it.
func (pl *PlanLoader) finish(pp *ParsedPlan, val cue.Value, name string) *ParsedPlan {
	unified, err := pl.schemas.Unify(SchemaPlan, val)
	if err != nil {
		pp.Errors = append(pp.Errors, pl.convertCUEErrors(err)...)
		return pp
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		pp.Errors = append(pp.Errors, pl.convertCUEErrors(err)...)
		return pp
	}

	var plan PlanConfig
	if err := json.Unmarshal(data, &plan); err != nil {
		pp.Errors = append(pp.Errors, ValidationError{
			File:     firstFile(pp.SourceFiles),
			Message:  fmt.Sprintf("failed to decode plan: %v", err),
			Severity: "error",
		})
		return pp
	}
	if err := pl.validator.Struct(plan); err != nil {
		pp.Errors = append(pp.Errors, ValidationError{
			File:     firstFile(pp.SourceFiles),
			Message:  fmt.Sprintf("validation failed: %v", err),
			Severity: "error",
		})
		return pp
	}

	if plan.Name == "" {
		plan.Name = name
	}
	pp.Plan = &plan
	return pp
}

// loadDirectory loads a directory as a CUE package.
func (pl *PlanLoader) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, pl.convertCUEErrors(inst.Err)
	}

	val := pl.schemas.Context().BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, pl.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (pl *PlanLoader) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// yamlError extracts the line number yaml.v3 embeds in its messages.
func yamlError(filename string, err error) ValidationError {
	ve := ValidationError{File: filename, Message: err.Error(), Severity: "error"}
	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		ve.Line = line
	}
	return ve
}

func defaultPlanName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstFile(files []string) string {
	if len(files) == 0 {
		return ""
	}
	return files[0]
}

// LoadToolConfig reads bindforge.yaml. A missing file yields the defaults.
func LoadToolConfig(path string) (*ToolConfig, error) {
	cfg := DefaultToolConfig()

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if raw != nil {
		sr := NewSchemaRegistry()
		if err := sr.ValidateAgainstSchema(context.Background(), SchemaToolConfig, raw); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config %s validation failed: %w", path, err)
	}
	return cfg, nil
}

// WriteToolConfig writes cfg as YAML.
func WriteToolConfig(path string, cfg *ToolConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
