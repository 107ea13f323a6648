// Package telemetry wires structured logging, tracing, metrics and lifecycle events
// for bindforge.
//
// Logging uses zerolog, tracing uses OpenTelemetry with a stdout or OTLP/gRPC exporter,
// and metrics use a private Prometheus registry. Metrics implements engine.Observer, so
// pipeline stages and diagnostics are counted as the engine reports them.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//	cfg.Metrics.Enabled = true
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/bindforge.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//	ctx = telemetry.WithGenerationContext(ctx, runID, plan.Name)
//	result, err := engine.Generate(ctx, plan, table, tel.EngineOptions(engine.Options{}))
//	status := telemetry.EndGenerationContext(ctx, result, err)
//
// # Metrics
//
//	bindforge_generations_total{status}
//	bindforge_generation_duration_seconds{status}
//	bindforge_stage_duration_seconds{stage}
//	bindforge_stage_failures_total{stage}
//	bindforge_diagnostics_total{kind,severity}
//	bindforge_policy_violations_total{policy,severity}
//	bindforge_model_resources, bindforge_model_methods, bindforge_model_views
//	bindforge_model_callback_adapters
//	bindforge_history_records_total{status}
//
// A one-shot run writes the registry to MetricsConfig.TextfilePath on Shutdown.
// Watch mode serves it over HTTP with StartMetricsServer.
//
// # Events
//
// EventPublisher delivers generation.started, generation.completed,
// generation.rejected, generation.failed, policy.violation and plan.changed events to
// subscribers in publish order.
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// # Graceful Shutdown
//
// Shutdown delivers buffered events, exports pending spans, writes the metrics
// textfile and closes a file-backed log output.
package telemetry
