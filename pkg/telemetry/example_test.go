package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/bindforge/bindforge/pkg/telemetry"
)

// Example_eventPublishing demonstrates synchronous event delivery.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Async = false

	events, _ := telemetry.NewEventPublisher(cfg.Events)
	defer events.Shutdown(context.Background())

	events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("%s: %s\n", event.Type, event.Message)
	}, nil)

	events.PublishGenerationStarted("run-1", "libclang")
	events.PublishGenerationCompleted("run-1", "libclang", 3, 20*time.Millisecond)
	// Output:
	// generation.started: Generation run-1 started for plan libclang
	// generation.completed: Generation run-1 bound 3 resources
}

// Example_metricsCollection demonstrates recording pipeline measurements.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	metrics, _ := telemetry.NewMetrics(cfg.Metrics)

	metrics.StageCompleted("validate", 2*time.Millisecond, false)
	metrics.DiagnosticReported("UnknownSymbol", "error")
	metrics.RecordGeneration(telemetry.StatusRejected, 3*time.Millisecond)

	fmt.Println("Metrics recorded:", metrics.Enabled())
	// Output: Metrics recorded: true
}
