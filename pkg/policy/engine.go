package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/bindforge/bindforge/pkg/engine"
)

// Engine evaluates Rego policies against generated binding models. It implements
// engine.Linter and is safe for concurrent use.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
	strict          bool
	onViolation     func(PolicyViolation)
}

var _ engine.Linter = (*Engine)(nil)

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrict makes error-severity violations fatal when linting.
func WithStrict(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// WithoutBuiltins starts the engine with user policies only.
func WithoutBuiltins() Option {
	return func(e *Engine) { e.builtinPolicies = nil }
}

// WithViolationHook registers a function called for every violation found by Lint.
func WithViolationHook(fn func(PolicyViolation)) Option {
	return func(e *Engine) { e.onViolation = fn }
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           inmem.New(),
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Strict reports whether error violations are fatal.
func (e *Engine) Strict() bool {
	return e.strict
}

// SetParameters replaces the document policies read as data.params.
func (e *Engine) SetParameters(ctx context.Context, params map[string]interface{}) error {
	if err := storage.WriteOne(ctx, e.store, storage.AddOp, storage.MustParsePath("/params"), params); err != nil {
		return fmt.Errorf("failed to write policy parameters: %w", err)
	}
	return nil
}

// Evaluate evaluates every enabled policy against each resource and callback of model.
func (e *Engine) Evaluate(ctx context.Context, model *engine.BindingModel, pctx *PolicyContext) (*PolicyResult, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	if pctx == nil {
		pctx = &PolicyContext{Strict: e.strict}
	}
	if pctx.Timestamp.IsZero() {
		pctx.Timestamp = startTime
	}

	inputs := buildInputs(model, pctx)

	var allViolations []PolicyViolation
	var warnings []string
	evaluatedPolicies := make([]string, 0, len(e.policies))

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		evaluatedPolicies = append(evaluatedPolicies, name)

		for _, input := range inputs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			violations, err := e.evaluatePolicy(ctx, cp, input)
			if err != nil {
				e.logger.Error().Err(err).
					Str("policy", name).
					Str("subject", inputName(input)).
					Msg("Policy evaluation failed")
				warnings = append(warnings, fmt.Sprintf("Policy %s evaluation failed: %v", name, err))
				break
			}
			allViolations = append(allViolations, violations...)
		}
	}

	allowed := true
	for i := range allViolations {
		if allViolations[i].Severity == SeverityError {
			allowed = false
			break
		}
	}

	duration := time.Since(startTime)
	e.logger.Debug().
		Int("inputs", len(inputs)).
		Int("violations", len(allViolations)).
		Dur("duration", duration).
		Msg("Model policy evaluation completed")

	return &PolicyResult{
		Allowed:           allowed,
		Violations:        allViolations,
		Warnings:          warnings,
		EvaluatedAt:       time.Now(),
		EvaluatedPolicies: evaluatedPolicies,
		Duration:          duration,
	}, nil
}

// Lint evaluates model and reports violations as PolicyViolation diagnostics. In strict
// mode severities carry over unchanged; otherwise errors become warnings and
// warnings become info.
func (e *Engine) Lint(ctx context.Context, model *engine.BindingModel) (engine.Diagnostics, error) {
	result, err := e.Evaluate(ctx, model, &PolicyContext{Strict: e.strict})
	if err != nil {
		return nil, err
	}
	if len(result.Warnings) > 0 {
		return nil, fmt.Errorf("%d policies failed to evaluate: %s", len(result.Warnings), result.Warnings[0])
	}

	diags := make(engine.Diagnostics, 0, len(result.Violations))
	for _, v := range result.Violations {
		if e.onViolation != nil {
			e.onViolation(v)
		}
		diags = append(diags, engine.Diagnostic{
			Entry:     v.Subject,
			Kind:      engine.KindPolicyViolation,
			Severity:  e.diagnosticSeverity(v.Severity),
			Message:   fmt.Sprintf("%s: %s", v.Policy, v.Message),
			Reference: v.Policy,
		})
	}
	return diags, nil
}

func (e *Engine) diagnosticSeverity(s Severity) engine.Severity {
	switch {
	case s == SeverityError && e.strict:
		return engine.SeverityError
	case s == SeverityError, s == SeverityWarning && e.strict:
		return engine.SeverityWarning
	default:
		return engine.SeverityInfo
	}
}

func buildInputs(model *engine.BindingModel, pctx *PolicyContext) []*PolicyInput {
	summary := &ModelSummary{Prefix: model.Prefix}
	for i := range model.Resources {
		summary.Resources = append(summary.Resources, model.Resources[i].Name)
	}
	for i := range model.Callbacks {
		summary.Callbacks = append(summary.Callbacks, model.Callbacks[i].Name)
	}
	if model.Graph != nil {
		summary.Disposal = model.Graph.DisposalNames()
	}

	inputs := make([]*PolicyInput, 0, len(model.Resources)+len(model.Callbacks))
	for i := range model.Resources {
		inputs = append(inputs, &PolicyInput{
			Kind:     InputResource,
			Resource: &model.Resources[i],
			Model:    summary,
			Context:  pctx,
		})
	}
	for i := range model.Callbacks {
		inputs = append(inputs, &PolicyInput{
			Kind:     InputCallback,
			Callback: &model.Callbacks[i],
			Model:    summary,
			Context:  pctx,
		})
	}
	return inputs
}

func inputName(input *PolicyInput) string {
	switch {
	case input.Resource != nil:
		return input.Resource.Name
	case input.Callback != nil:
		return input.Callback.Name
	default:
		return ""
	}
}

// LoadPolicies loads policy files and directories, replacing user policies of the same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies)
}

// AddPolicies compiles and installs policies. Nothing is installed if any fails to compile.
func (e *Engine) AddPolicies(ctx context.Context, policies []Policy) error {
	compiled, err := e.compileAll(ctx, policies)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}

	e.logger.Info().
		Int("count", len(compiled)).
		Msg("Policies loaded successfully")

	return nil
}

// ReplacePolicies swaps all user policies for policies. Built-ins are kept. The current
// set stays in place if any policy fails to compile.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	compiled, err := e.compileAll(ctx, policies)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}
	return nil
}

func (e *Engine) compileAll(ctx context.Context, policies []Policy) ([]*compiledPolicy, error) {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for i := range policies {
		cp, err := e.compilePolicy(ctx, &policies[i])
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return nil, fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled = append(compiled, cp)
	}
	return compiled, nil
}

// evaluatePolicy evaluates a single compiled policy against one input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *PolicyInput) ([]PolicyViolation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []PolicyViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		// deny is a set, which arrives as a slice
		if denySet, ok := result.Expressions[0].Value.([]interface{}); ok {
			for _, d := range denySet {
				violations = append(violations, e.createViolation(cp.policy, d, input))
			}
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Subject < violations[j].Subject
	})
	return violations, nil
}

// packageQuery returns the query for the deny set of a module.
func packageQuery(module *ast.Module) string {
	return module.Package.Path.String() + ".deny"
}

// createViolation creates a PolicyViolation from one deny entry.
func (e *Engine) createViolation(policy *Policy, result interface{}, input *PolicyInput) PolicyViolation {
	violation := PolicyViolation{
		Policy:   policy.Name,
		Severity: policy.Severity,
		Resource: inputName(input),
	}
	violation.Subject = input.Kind + " " + violation.Resource

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if subject, ok := v["subject"].(string); ok {
			violation.Subject = subject
		}
		if sev, ok := v["severity"].(string); ok {
			switch Severity(sev) {
			case SeverityInfo, SeverityWarning, SeverityError:
				violation.Severity = Severity(sev)
			}
		}
		if rem, ok := v["remediation"].(string); ok {
			violation.Remediation = rem
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compilePolicy parses a policy and prepares its deny query.
func (e *Engine) compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query(packageQuery(module)),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("query", packageQuery(module)).
		Msg("Policy compiled successfully")

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		cp, err := e.compilePolicy(ctx, &e.builtinPolicies[i])
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", e.builtinPolicies[i].Name, err)
		}
		e.policies[cp.policy.Name] = cp
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies ordered by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// ReloadPolicies replaces user policies with the ones found under paths.
func (e *Engine) ReloadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.ReplacePolicies(ctx, policies)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}
