package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/millrun/millrun/pkg/config"
	"github.com/millrun/millrun/pkg/dispatch"
	"github.com/millrun/millrun/pkg/engine"
	"github.com/millrun/millrun/pkg/stores"
	"github.com/millrun/millrun/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

// runtime bundles everything an engine-backed command needs.
type runtime struct {
	cfg        *config.File
	store      stores.Store
	tel        *telemetry.Telemetry
	eng        *engine.Engine
	dispatcher *dispatch.NATSDispatcher
	logger     zerolog.Logger
}

// loadConfig reads the --config file, or the defaults when none is given,
// and applies --db.
func loadConfig() (*config.File, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}
	return cfg, nil
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context, cfg config.StoreConfig) (stores.Store, error) {
	var store stores.Store
	switch cfg.Driver {
	case "memory":
		store = stores.NewMemoryStore()
	default:
		s, err := stores.NewSQLiteStore(stores.Config{
			Path:         cfg.Path,
			MaxOpenConns: cfg.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		store = s
	}

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return store, nil
}

// openRuntime wires config, store, telemetry, dispatch and the engine.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		store:  store,
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("cli").Zerolog(),
	}

	if cfg.Store.EventLog {
		tel.Events.Subscribe("event-log", func(ctx context.Context, ev engine.Event) error {
			return store.AppendEvent(ctx, &ev)
		}, nil)
	}

	if cfg.NATS.Enabled {
		d, err := dispatch.Connect(ctx, cfg.NATS, rt.logger)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.dispatcher = d
		tel.Events.Subscribe("nats", d.Dispatch, nil)
	}

	opts := append(tel.EngineOptions(), engine.WithConfig(cfg.EngineConfig()))
	eng, err := engine.New(ctx, store, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	rt.eng = eng

	return rt, nil
}

// Close drains pending events into their sinks before closing them.
func (r *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := r.tel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if r.dispatcher != nil {
		if err := r.dispatcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

// withRuntime runs fn against a fresh runtime and closes it afterwards.
func withRuntime(ctx context.Context, fn func(rt *runtime) error) (err error) {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Shutdown incomplete")
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(rt)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
