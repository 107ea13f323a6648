package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bindforge/bindforge/pkg/engine"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// EngineOptions fills the engine's logging, tracing and observer hooks.
func (t *Telemetry) EngineOptions(opts engine.Options) engine.Options {
	opts.Logger = t.Logger.Zerolog()
	opts.Tracer = t.Tracer.Tracer()
	if t.Metrics.Enabled() {
		opts.Observer = t.Metrics
	}
	return opts
}

// Shutdown flushes events and spans and writes the metrics textfile.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Events.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Metrics.WriteTextfile(); err != nil {
		errs = append(errs, err)
	}
	if err := t.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Flush forces all pending spans to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// InstrumentedContext carries a span, a logger and a timer for one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := tel.Logger.WithField("operation", operation)

	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

type generationKey struct{}

type generationState struct {
	runID string
	plan  string
	span  trace.Span
	start time.Time
}

// WithGenerationContext starts the span, logger fields and started event of a
// generation run.
func WithGenerationContext(ctx context.Context, runID, plan string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartGenerationSpan(ctx, runID, plan)
	logger := tel.Logger.WithRunID(runID).WithField("plan", plan)
	spanCtx = logger.WithContext(spanCtx)

	_ = tel.Events.PublishGenerationStarted(runID, plan)

	return context.WithValue(spanCtx, generationKey{}, &generationState{
		runID: runID,
		plan:  plan,
		span:  span,
		start: time.Now(),
	})
}

// EndGenerationContext completes a generation run started with WithGenerationContext.
// The outcome is derived from result and err.
func EndGenerationContext(ctx context.Context, result *engine.Result, err error) string {
	status := StatusSucceeded
	switch {
	case engine.IsRejected(err):
		status = StatusRejected
	case err != nil:
		status = StatusFailed
	}

	tel := FromTelemetryContext(ctx)
	state, ok := ctx.Value(generationKey{}).(*generationState)
	if tel == nil || !ok {
		return status
	}

	duration := time.Since(state.start)
	state.span.SetAttributes(AttrRunStatus.String(status))
	if err != nil {
		RecordError(state.span, err)
	} else {
		RecordSuccess(state.span)
	}
	state.span.End()

	tel.Metrics.RecordGeneration(status, duration)

	switch status {
	case StatusSucceeded:
		var resources int
		if result != nil && result.Model != nil {
			tel.Metrics.RecordModel(result.Model)
			resources = len(result.Model.Resources)
		}
		_ = tel.Events.PublishGenerationCompleted(state.runID, state.plan, resources, duration)
	case StatusRejected:
		diags, _ := engine.DiagnosticsOf(err)
		_ = tel.Events.PublishGenerationRejected(state.runID, state.plan, len(diags))
	default:
		_ = tel.Events.PublishGenerationFailed(state.runID, state.plan, err.Error())
	}
	return status
}
