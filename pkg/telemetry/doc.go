// Package telemetry provides observability instrumentation for millrun.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event fan-out into a unified system
// that plugs into the scheduling engine.
//
// # Usage
//
// Initialize telemetry at application startup and hand it to the engine:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	eng, err := engine.New(ctx, store, tel.EngineOptions()...)
//
// EngineOptions wires the component logger, the tracer, the Prometheus
// recorder and the event publisher into the engine.
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("ingest")
//	logger = logger.WithOrderID("ord-1001").WithStageID("cut")
//	logger.Info("Stage started")
//	logger.WithError(err).Error("Stage failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Every engine operation runs in its own span named "engine.<operation>".
// Supported exporters are otlp (gRPC), stdout and none.
//
// # Metrics
//
// Metrics implements engine.MetricsRecorder. Exposed series include:
//
//   - millrun_scheduling_passes_total, millrun_scheduling_pass_duration_seconds
//   - millrun_stages_scheduled_total, millrun_stages_at_risk_total
//   - millrun_stages_blocked_total{reason}
//   - millrun_stage_transitions_total{status}
//   - millrun_quality_results_total{result}
//   - millrun_errors_by_class_total{operation,class}, millrun_errors_by_code_total{code}
//   - millrun_events_dropped_total
//   - gauges refreshed by ObserveSnapshot: millrun_stages{status},
//     millrun_orders{status}, millrun_equipment{type,status},
//     millrun_material_available{material_id}
//
// # Events
//
// EventPublisher implements engine.EventPublisher. Subscribers are called in
// registration order and, in async mode, from a single delivery goroutine so
// each subscriber observes events in the order the engine emitted them.
//
//	tel.Events.Subscribe("audit", func(ctx context.Context, ev engine.Event) error {
//	    return store.AppendEvent(ctx, &ev)
//	}, nil)
package telemetry
