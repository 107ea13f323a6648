package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bindforge/bindforge/pkg/symbols"
)

// Pipeline stage names, used for spans, metrics and errors.
const (
	StageValidate  = "validate"
	StageGraph     = "graph"
	StageResources = "resources"
	StageRules     = "rules"
	StageViews     = "views"
	StageCallbacks = "callbacks"
	StageLint      = "lint"
)

// Linter inspects a resolved model and reports additional diagnostics.
type Linter interface {
	Lint(ctx context.Context, model *BindingModel) (Diagnostics, error)
}

// Observer receives pipeline measurements.
type Observer interface {
	StageCompleted(stage string, d time.Duration, failed bool)
	DiagnosticReported(kind, severity string)
}

// Options configures a generation run. The zero value is usable.
type Options struct {
	Logger zerolog.Logger

	// Namer overrides method name derivation.
	Namer MethodNamer

	// AllowWarnings makes warning diagnostics non-fatal.
	AllowWarnings bool

	// Linter runs after the model is assembled.
	Linter Linter

	// Tracer defaults to the global OpenTelemetry tracer.
	Tracer trace.Tracer

	Observer Observer
}

// Result is a successful generation run.
type Result struct {
	Model *BindingModel

	// Diagnostics holds the non-fatal diagnostics of the run.
	Diagnostics Diagnostics
}

// Generate runs the full pipeline. It returns either a complete model or an error; a run
// with fatal diagnostics fails with an EngineError of class rejected carrying all of them.
func Generate(ctx context.Context, plan *StrategyPlan, table *symbols.Table, opts Options) (*Result, error) {
	g := &generator{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "engine").Logger(),
		tracer: opts.Tracer,
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer("github.com/bindforge/bindforge/pkg/engine")
	}

	ctx, span := g.tracer.Start(ctx, "engine.generate", trace.WithAttributes(
		attribute.Int("plan.resources", len(plan.Resources)),
		attribute.Int("plan.callbacks", len(plan.Callbacks)),
	))
	defer span.End()

	res, err := g.run(ctx, plan, table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}

type generator struct {
	opts   Options
	logger zerolog.Logger
	tracer trace.Tracer
	diags  Diagnostics
}

func (g *generator) run(ctx context.Context, plan *StrategyPlan, table *symbols.Table) (*Result, error) {
	var vp *ValidatedPlan
	if err := g.stage(ctx, StageValidate, func(ctx context.Context) error {
		var diags Diagnostics
		vp, diags = Validate(ctx, plan, table, g.opts)
		g.report(diags)
		return g.rejectIfFatal()
	}); err != nil {
		return nil, err
	}

	var graph *OwnershipGraph
	if err := g.stage(ctx, StageGraph, func(ctx context.Context) error {
		var diags Diagnostics
		graph, diags = BuildOwnershipGraph(vp)
		g.report(diags)
		return g.rejectIfFatal()
	}); err != nil {
		return nil, err
	}

	model, err := g.bind(ctx, vp, graph)
	if err != nil {
		return nil, err
	}

	if g.opts.Linter != nil {
		if err := g.stage(ctx, StageLint, func(ctx context.Context) error {
			diags, err := g.opts.Linter.Lint(ctx, model)
			if err != nil {
				return NewHookError("lint failed", err).WithStage(StageLint).WithCode(ErrCodePolicy)
			}
			g.report(diags)
			return g.rejectIfFatal()
		}); err != nil {
			return nil, err
		}
	}

	g.logger.Info().
		Int("resources", len(model.Resources)).
		Int("callbacks", len(model.Callbacks)).
		Int("enums", len(model.Enums)).
		Int("diagnostics", len(g.diags)).
		Strs("disposal_order", graph.DisposalNames()).
		Msg("Binding model generated")

	return &Result{Model: model, Diagnostics: g.diags}, nil
}

// bind runs the four binder stages concurrently. They share only read-only inputs and
// write to disjoint slices, so results are assembled afterwards in plan order.
func (g *generator) bind(ctx context.Context, vp *ValidatedPlan, graph *OwnershipGraph) (*BindingModel, error) {
	plan := vp.Plan
	resources := make([]ResourceBinding, len(plan.Resources))
	views := make([][]ViewBinding, len(plan.Resources))
	callbacks := make([]CallbackAdapterBinding, len(plan.Callbacks))
	var rules []ErrorRuleBinding

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.stage(egctx, StageResources, func(ctx context.Context) error {
			for i := range plan.Resources {
				if err := ctx.Err(); err != nil {
					return NewCanceledError(StageResources, err)
				}
				resources[i] = BindResource(vp, graph, i)
			}
			return nil
		})
	})
	eg.Go(func() error {
		return g.stage(egctx, StageRules, func(context.Context) error {
			rules = ResolveErrorRules(vp)
			return nil
		})
	})
	eg.Go(func() error {
		return g.stage(egctx, StageViews, func(ctx context.Context) error {
			for i := range plan.Resources {
				if err := ctx.Err(); err != nil {
					return NewCanceledError(StageViews, err)
				}
				views[i] = make([]ViewBinding, len(plan.Resources[i].Views))
				for j := range plan.Resources[i].Views {
					views[i][j] = BindView(vp, i, j)
				}
			}
			return nil
		})
	})
	eg.Go(func() error {
		return g.stage(egctx, StageCallbacks, func(context.Context) error {
			for i := range plan.Callbacks {
				callbacks[i] = BindCallback(vp, i)
			}
			return nil
		})
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i := range resources {
		if len(views[i]) > 0 {
			resources[i].Views = views[i]
		}
	}

	return &BindingModel{
		Prefix:     plan.Prefix,
		Resources:  resources,
		Enums:      BindEnums(vp),
		Callbacks:  callbacks,
		ErrorRules: rules,
		Graph:      graph,
	}, nil
}

// stage wraps one pipeline stage in a span and reports its duration.
func (g *generator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := g.tracer.Start(ctx, "engine."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if g.opts.Observer != nil {
		g.opts.Observer.StageCompleted(name, elapsed, err != nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Debug().Str("stage", name).Dur("elapsed", elapsed).Err(err).Msg("Stage failed")
		return err
	}
	g.logger.Debug().Str("stage", name).Dur("elapsed", elapsed).Msg("Stage completed")
	return nil
}

// report records diagnostics; it is only called from sequential stages.
func (g *generator) report(diags Diagnostics) {
	for _, d := range diags {
		if g.opts.Observer != nil {
			g.opts.Observer.DiagnosticReported(string(d.Kind), string(d.Severity))
		}
		g.logger.Debug().
			Str("kind", string(d.Kind)).
			Str("severity", string(d.Severity)).
			Str("entry", d.Entry).
			Msg(d.Message)
	}
	g.diags.Append(diags)
}

func (g *generator) rejectIfFatal() error {
	if g.diags.HasFatal(g.opts.AllowWarnings) {
		return NewRejectedError(g.diags)
	}
	return nil
}

// BindEnums resolves every enum plan in plan order.
func BindEnums(vp *ValidatedPlan) []EnumBinding {
	out := make([]EnumBinding, 0, len(vp.Plan.Enums))
	for i := range vp.Plan.Enums {
		e := &vp.Plan.Enums[i]
		eb := EnumBinding{Name: e.Name, CType: e.NativeName(), ExposeAs: e.ExposeAs}
		if nt, ok := vp.Table.Type(eb.CType); ok {
			eb.Values = append(eb.Values, nt.Values...)
		}
		out = append(out, eb)
	}
	return out
}
