// Package config loads millrun's YAML configuration file.
//
// # Overview
//
// A configuration file has four sections:
//
//	scheduler:
//	  consumption_policy: consume   # or release
//	  at_risk_slack: 30m
//	  conflict_retries: 1
//	  interval: 1m
//	store:
//	  driver: sqlite                # or memory
//	  path: /var/lib/millrun/millrun.db
//	  event_log: true
//	telemetry:
//	  logging:
//	    level: info
//	  metrics:
//	    listen_address: ":9090"
//	nats:
//	  enabled: true
//	  url: nats://127.0.0.1:4222
//	  stream: PRODUCTION
//	  subject_prefix: production.events
//
// Every field is optional; omitted fields keep the values from Default.
// Unknown fields are rejected so that typos do not silently fall back to
// defaults.
//
// # Validation
//
// Parse and Load validate the decoded document with go-playground/validator.
// Failures are reported as ValidationErrors whose paths use the YAML field
// names, e.g. "scheduler.consumption_policy: must be one of [consume release]".
// NewValidator builds the same kind of validator for packages that check
// their own YAML documents.
//
// # Reloading
//
// Watcher follows the file with fsnotify and hands every valid revision to a
// callback. Only the scheduler section is meant to take effect at runtime;
// the server applies it with engine.Reconfigure.
//
//	w := config.NewWatcher(path, logger)
//	err := w.Watch(ctx, func(f *config.File) error {
//	    return eng.Reconfigure(f.EngineConfig())
//	})
package config
