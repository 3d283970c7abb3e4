package engine

import (
	"context"
	"time"
)

// Repository persists the engine's snapshot.
// Save must be atomic: either the whole snapshot is written or nothing is.
type Repository interface {
	// Load reads the last saved snapshot. An empty store yields an empty snapshot.
	Load(ctx context.Context) (*Snapshot, error)

	// Save writes the snapshot and advances snapshot.Revision. If the stored
	// revision no longer matches snapshot.Revision, Save writes nothing and
	// returns an error satisfying IsStaleSnapshot.
	Save(ctx context.Context, snapshot *Snapshot) error
}

// EventPublisher delivers domain events to subscribers.
// Publish must not block the caller on slow subscribers.
type EventPublisher interface {
	// Publish sends an event.
	Publish(ctx context.Context, event *Event) error
}

// MetricsRecorder receives engine measurements.
type MetricsRecorder interface {
	// RecordPass records one scheduling pass.
	RecordPass(duration time.Duration, scheduled, blocked, atRisk int)

	// RecordStageTransition records a stage entering a status.
	RecordStageTransition(status string)

	// RecordBlocked records a stage deferral by reason.
	RecordBlocked(reason string)

	// RecordQualityResult records an inspection outcome.
	RecordQualityResult(result string)

	// RecordError records a failed engine operation.
	RecordError(operation, class, code string)
}

// Clock supplies the current time.
type Clock func() time.Time

type nopMetrics struct{}

func (nopMetrics) RecordPass(time.Duration, int, int, int) {}
func (nopMetrics) RecordStageTransition(string)            {}
func (nopMetrics) RecordBlocked(string)                    {}
func (nopMetrics) RecordQualityResult(string)              {}
func (nopMetrics) RecordError(string, string, string)      {}
