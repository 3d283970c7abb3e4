package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/millrun/millrun/pkg/config"
	"github.com/millrun/millrun/pkg/engine"
	"github.com/millrun/millrun/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler continuously",
		Long: `Run scheduling passes on a fixed interval until interrupted.

Before every pass the engine reloads state from the database, so progress
recorded with 'millrun stage' and other commands is picked up. The server
also:
  - exposes Prometheus metrics (telemetry.metrics.listen_address)
  - publishes events to NATS JetStream when nats.enabled is set
  - records events in the store's event log when store.event_log is set
  - watches the --config file and applies scheduler changes without a restart`,
		Example: `  # Run with a config file
  millrun serve --config /etc/millrun/millrun.yaml

  # Schedule every 15 seconds
  millrun serve --interval 15s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, func(rt *runtime) error {
				if interval <= 0 {
					interval = rt.cfg.Scheduler.Interval
				}
				return serve(ctx, rt, interval)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "scheduling interval (default scheduler.interval)")

	return cmd
}

func serve(ctx context.Context, rt *runtime, interval time.Duration) error {
	logger := rt.tel.Logger.NewComponentLogger("server").Zerolog()

	metricsErr := make(chan error, 1)
	go func() {
		metricsErr <- rt.tel.Metrics.Serve(ctx)
	}()

	if configPath != "" {
		w := config.NewWatcher(configPath, logger)
		err := w.Watch(ctx, func(f *config.File) error {
			return rt.eng.Reconfigure(f.EngineConfig())
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Configuration reload disabled")
		} else {
			defer w.Close()
		}
	}

	logger.Info().
		Dur("interval", interval).
		Str("metrics", rt.cfg.Telemetry.Metrics.ListenAddress).
		Bool("nats", rt.dispatcher != nil).
		Msg("Scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runPass(ctx, rt, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Scheduler stopped")
			return nil
		case err := <-metricsErr:
			if err != nil {
				return err
			}
		case <-ticker.C:
			runPass(ctx, rt, logger)
		}
	}
}

// runPass reloads state, schedules and refreshes the state gauges. Failures
// are logged; the next tick tries again.
func runPass(ctx context.Context, rt *runtime, logger zerolog.Logger) {
	ic := telemetry.StartOperation(rt.tel.WithContext(ctx), "scheduling_pass")

	err := rt.eng.Reload(ic.Ctx)
	if err == nil {
		var res *engine.PassResult
		res, err = rt.eng.ScheduleEligibleStages(ic.Ctx)
		if err == nil && (len(res.Scheduled) > 0 || len(res.Blocked) > 0) {
			logger.Info().
				Int("scheduled", len(res.Scheduled)).
				Int("blocked", len(res.Blocked)).
				Int("at_risk", len(res.AtRisk())).
				Dur("duration", res.Duration).
				Msg("Scheduling pass complete")
		}
	}
	ic.End(err)

	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Scheduling pass failed")
	}

	rt.tel.Metrics.ObserveSnapshot(rt.eng.Snapshot())
}
