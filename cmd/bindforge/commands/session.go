package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bindforge/bindforge/pkg/config"
	"github.com/bindforge/bindforge/pkg/engine"
	"github.com/bindforge/bindforge/pkg/policy"
	"github.com/bindforge/bindforge/pkg/stores"
	"github.com/bindforge/bindforge/pkg/symbols"
	"github.com/bindforge/bindforge/pkg/telemetry"
)

// sessionOptions are command-line overrides of bindforge.yaml.
type sessionOptions struct {
	strict        bool
	noHistory     bool
	noPolicies    bool
	metricsFile   string
	metricsListen string
}

// session holds everything one command invocation shares across generation runs.
type session struct {
	cfg      *config.ToolConfig
	tel      *telemetry.Telemetry
	loader   *config.PlanLoader
	policies *policy.Engine
	store    *stores.SQLiteStore

	// runID is the run the policy violation hook reports against.
	runID string
}

func openSession(ctx context.Context, version string, opts sessionOptions) (*session, error) {
	cfg, err := config.LoadToolConfig(configPath)
	if err != nil {
		return nil, err
	}

	if opts.strict {
		cfg.Policy.Strict = true
	}
	if opts.noPolicies {
		cfg.Policy.Enabled = false
	}
	if opts.noHistory {
		cfg.History.Enabled = false
	}
	if opts.metricsFile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = opts.metricsFile
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	telCfg := cfg.Telemetry(version)
	if opts.metricsListen != "" {
		telCfg.Metrics.Enabled = true
		telCfg.Metrics.ListenAddress = opts.metricsListen
	} else {
		telCfg.Metrics.ListenAddress = ""
	}

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	s := &session{
		cfg:    cfg,
		tel:    tel,
		loader: config.NewPlanLoader(),
	}

	if cfg.Policy.Enabled {
		eng, err := policy.NewEngine(tel.Logger.Zerolog(),
			policy.WithStrict(cfg.Policy.Strict),
			policy.WithViolationHook(s.onViolation),
		)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		if len(cfg.Policy.Paths) > 0 {
			if err := eng.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
				_ = s.Close(ctx)
				return nil, err
			}
		}
		s.policies = eng
	}

	if cfg.History.Enabled {
		store, err := stores.Open(ctx, cfg.History.Path)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		s.store = store
	}

	return s, nil
}

func (s *session) onViolation(v policy.PolicyViolation) {
	s.tel.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
	_ = s.tel.Events.PublishPolicyViolation(s.runID, v.Resource, v.Policy, v.Message)
}

// Close releases the history store and flushes telemetry.
func (s *session) Close(ctx context.Context) error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	errs = append(errs, s.tel.Shutdown(shutdownCtx))
	return errors.Join(errs...)
}

// generation is one pass through the pipeline.
type generation struct {
	runID       string
	planPath    string
	planName    string
	symbolsPath string
	fingerprint string
	inputs      []string

	started time.Time
	plan    *config.ParsedPlan
	result  *engine.Result
	status  string
	err     error
}

// Diagnostics returns the diagnostics of the run whether it succeeded or not.
func (g *generation) Diagnostics() engine.Diagnostics {
	if diags, ok := engine.DiagnosticsOf(g.err); ok {
		return diags
	}
	if g.result != nil {
		return g.result.Diagnostics
	}
	return nil
}

// generate loads the inputs, runs the pipeline and records the outcome.
func (s *session) generate(ctx context.Context, planPath, symbolsPath string, allowWarnings bool) *generation {
	g := &generation{
		runID:    uuid.New().String(),
		planPath: planPath,
		started:  time.Now(),
	}
	s.runID = g.runID

	ctx = telemetry.WithGenerationContext(s.tel.WithContext(ctx), g.runID, planPath)
	g.result, g.err = s.run(ctx, g, symbolsPath, allowWarnings)
	g.status = telemetry.EndGenerationContext(ctx, g.result, g.err)

	log.Debug().
		Str("run_id", g.runID).
		Str("plan", planPath).
		Str("status", g.status).
		Msg("Generation finished")

	s.record(ctx, g)
	return g
}

func (s *session) run(ctx context.Context, g *generation, symbolsPath string, allowWarnings bool) (*engine.Result, error) {
	pp, err := s.loadPlan(ctx, g.planPath)
	if err != nil {
		return nil, err
	}
	g.plan = pp
	g.planName = pp.Plan.Name

	g.symbolsPath = symbolsPath
	if g.symbolsPath == "" {
		g.symbolsPath = pp.SymbolsPath()
	}
	g.inputs = append([]string{}, pp.SourceFiles...)
	g.inputs = append(g.inputs, g.symbolsPath)

	table, err := loadSymbols(g.symbolsPath)
	if err != nil {
		return nil, err
	}

	opts := engine.Options{AllowWarnings: allowWarnings}
	if hook := pp.NamingHookPath(); hook != "" {
		g.inputs = append(g.inputs, hook)
		namer, err := config.LoadStarlarkNamer(hook, s.cfg.Naming.Timeout)
		if err != nil {
			return nil, engine.NewHookError("failed to load naming hook", err).WithCode(engine.ErrCodeNamingHook)
		}
		opts.Namer = namer
	}
	if s.policies != nil {
		opts.Linter = s.policies
	}

	if fp, err := stores.FingerprintFiles(g.inputs...); err == nil {
		g.fingerprint = fp
	}

	return engine.Generate(ctx, pp.Plan.ToStrategyPlan(), table, s.tel.EngineOptions(opts))
}

func (s *session) loadPlan(ctx context.Context, path string) (*config.ParsedPlan, error) {
	pp, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, engine.NewInputError("failed to load plan", err).WithCode(engine.ErrCodeDecode)
	}
	if err := pp.Err(); err != nil {
		for _, ve := range pp.Errors {
			log.Error().Str("plan", path).Msg(ve.String())
		}
		return nil, err
	}
	return pp, nil
}

func loadSymbols(path string) (*symbols.Table, error) {
	if path == "" {
		return nil, engine.NewInputError("plan does not name a symbol table; set symbols in the plan or pass --symbols", nil)
	}
	table, err := symbols.Load(path)
	if err != nil {
		return nil, engine.NewInputError("failed to load symbol table", err).WithCode(engine.ErrCodeDecode)
	}
	return table, nil
}

func (s *session) record(ctx context.Context, g *generation) {
	if s.store == nil {
		return
	}

	run := stores.NewRun(absPath(g.planPath), absPath(g.symbolsPath), g.fingerprint)
	run.ID = g.runID
	run.StartedAt = g.started
	run.PlanName = g.planName
	run.Strict = s.cfg.Policy.Strict
	if err := run.Complete(stores.RunStatus(g.status), g.result, g.err); err != nil {
		log.Warn().Err(err).Msg("Failed to prepare history record")
		s.tel.Metrics.RecordHistory("error")
		return
	}
	if err := s.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Msg("Failed to record generation history")
		s.tel.Metrics.RecordHistory("error")
		return
	}
	s.tel.Metrics.RecordHistory(g.status)
}

func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
