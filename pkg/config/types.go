package config

import (
	"time"

	"github.com/millrun/millrun/pkg/telemetry"
)

// File is the top-level millrun configuration document.
type File struct {
	// Scheduler holds the scheduling policy. It can be reloaded at runtime.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Store selects and configures the persistence backend.
	Store StoreConfig `yaml:"store"`

	// Telemetry configures logging, tracing, metrics and event fan-out.
	Telemetry telemetry.Config `yaml:"telemetry" validate:"-"`

	// NATS configures event dispatch to JetStream.
	NATS NATSConfig `yaml:"nats"`
}

// SchedulerConfig is the YAML form of the engine's scheduling policy.
type SchedulerConfig struct {
	// ConsumptionPolicy decides what completion does with a stage's
	// reservation: consume (decrement stock) or release (return the hold).
	ConsumptionPolicy string `yaml:"consumption_policy" validate:"required,oneof=consume release"`

	// AtRiskSlack widens the at-risk window.
	AtRiskSlack time.Duration `yaml:"at_risk_slack" validate:"gte=0"`

	// ConflictRetries is how many calendar conflicts a pass tolerates per stage.
	ConflictRetries int `yaml:"conflict_retries" validate:"gte=0,lte=10"`

	// Interval is the period of the scheduling loop run by `millrun serve`.
	Interval time.Duration `yaml:"interval" validate:"gte=1s"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is sqlite or memory.
	Driver string `yaml:"driver" validate:"required,oneof=sqlite memory"`

	// Path is the SQLite database file.
	Path string `yaml:"path" validate:"required_if=Driver sqlite"`

	// MaxOpenConns caps the SQLite connection pool. Zero uses the store default.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// EventLog appends every published event to the store's event log.
	EventLog bool `yaml:"event_log"`
}

// NATSConfig configures the JetStream event dispatcher.
type NATSConfig struct {
	// Enabled turns dispatch on.
	Enabled bool `yaml:"enabled"`

	// URL is the NATS server URL, e.g. nats://127.0.0.1:4222.
	URL string `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`

	// Stream is the JetStream stream that captures production events.
	Stream string `yaml:"stream" validate:"required_if=Enabled true,omitempty,excludesall=.*>"`

	// SubjectPrefix prefixes every event subject: <prefix>.<event type>.
	SubjectPrefix string `yaml:"subject_prefix" validate:"required_if=Enabled true"`

	// ConnectTimeout bounds the initial connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gte=0"`

	// PublishTimeout bounds each acknowledged publish.
	PublishTimeout time.Duration `yaml:"publish_timeout" validate:"gte=0"`
}

// ValidationError represents a configuration or document validation error.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Path is the field path to the error (e.g., "scheduler.consumption_policy").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}
