package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/millrun/millrun/pkg/engine"
	"github.com/millrun/millrun/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_engineWiring demonstrates wiring telemetry into the engine.
func Example_engineWiring() {
	cfg := telemetry.DefaultConfig()

	// Shutdown delivers buffered events before returning
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe("printer", func(_ context.Context, ev engine.Event) error {
		fmt.Printf("%s %s\n", ev.Type, ev.StageID)
		return nil
	}, nil)

	ctx := context.Background()
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	opts := append(tel.EngineOptions(), engine.WithClock(func() time.Time { return now }))

	eng, err := engine.New(ctx, nil, opts...)
	if err != nil {
		panic(err)
	}

	_ = eng.Ingest(ctx, &engine.Batch{
		Equipment: []*engine.Equipment{{ID: "saw-1", Type: "saw"}},
		Orders:    []*engine.Order{{ID: "ord-1", DueDate: now.Add(8 * time.Hour)}},
		Plans: []*engine.ProductionPlan{{
			ID: "plan-1", OrderID: "ord-1",
			Stages: []*engine.ProductionStage{{ID: "saw", EquipmentType: "saw", Duration: time.Hour}},
		}},
	})
	_, _ = eng.ScheduleEligibleStages(ctx)

	// Output: stage_scheduled saw
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe with level filter (only warnings and errors)
	tel.Events.Subscribe("alerts", func(_ context.Context, ev engine.Event) error {
		fmt.Printf("Important event: %s\n", ev.Type)
		return nil
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	ctx := context.Background()
	_ = tel.Events.Publish(ctx, &engine.Event{Type: engine.EventTypeStageScheduled, Level: telemetry.EventLevelInfo})
	_ = tel.Events.Publish(ctx, &engine.Event{Type: engine.EventTypeStageBlocked, Level: telemetry.EventLevelWarning})
	_ = tel.Events.Publish(ctx, &engine.Event{Type: engine.EventTypeQualityFailed, Level: telemetry.EventLevelError})

	// Output:
	// Important event: stage_blocked
	// Important event: quality_failed
}

// Example_instrumentedOperation demonstrates using the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start instrumented operation
	ic := telemetry.StartOperation(ctx, "ingest_file",
		attribute.String("file.path", "/var/lib/millrun/orders.yaml"),
	)
	defer ic.End(nil)

	ic.Logger.Info("Loading batch")

	fmt.Println("Operation instrumentation complete")
	// Output: Operation instrumentation complete
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()

	// Customize for your environment
	cfg.ServiceVersion = "1.2.3"

	// Configure OTLP exporter
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1 // 10% sampling

	// Configure events
	cfg.Events.BufferSize = 10000

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}

// Example_errorRecording demonstrates error recording with proper classification.
func Example_errorRecording() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a span
	ctx, span := tel.Tracer.Start(ctx, "reserve_material")
	defer span.End()

	err := engine.NewDeferredError("insufficient steel", nil).WithCode(engine.ErrCodeInsufficientMaterial)

	// Record error on span with class and code attributes
	telemetry.RecordError(span, err)

	// Record error metric with classification
	tel.Metrics.RecordError("schedule", string(engine.ErrorClassDeferred), engine.ErrCodeInsufficientMaterial)

	telemetry.FromContext(ctx).WithError(err).Warn("Reservation deferred")

	fmt.Println("Error recording complete")
	// Output: Error recording complete
}
