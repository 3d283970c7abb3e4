package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/millrun/millrun/pkg/engine"
)

// MemoryStore implements the Store interface in process memory.
// Snapshots are deep-copied on the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	snap   *engine.Snapshot
	events []*EventRecord
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: engine.NewSnapshot()}
}

// Init is a no-op for the memory store.
func (s *MemoryStore) Init(context.Context) error { return nil }

// Migrate is a no-op for the memory store.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Load returns a copy of the last saved snapshot.
func (s *MemoryStore) Load(context.Context) (*engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	return s.snap.Clone(), nil
}

// Save replaces the stored snapshot with a copy of snap. A snapshot older
// than the stored one is refused.
func (s *MemoryStore) Save(_ context.Context, snap *engine.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if snap.Revision != s.snap.Revision {
		return engine.NewStaleSnapshotError(snap.Revision)
	}
	snap.Revision++
	s.snap = snap.Clone()
	return nil
}

// AppendEvent appends an event to the log.
func (s *MemoryStore) AppendEvent(_ context.Context, event *engine.Event) error {
	rec := &EventRecord{
		EventID:     event.ID,
		Type:        string(event.Type),
		Level:       event.Level,
		OrderID:     event.OrderID,
		PlanID:      event.PlanID,
		StageID:     event.StageID,
		EquipmentID: event.EquipmentID,
		Message:     event.Message,
		Timestamp:   event.Timestamp,
	}
	if len(event.Data) > 0 {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		rec.Details = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, e := range s.events {
		if e.EventID == rec.EventID {
			return fmt.Errorf("event %s already recorded", rec.EventID)
		}
	}
	rec.ID = int64(len(s.events) + 1)
	s.events = append(s.events, rec)
	return nil
}

// GetEvents returns matching events newest first.
func (s *MemoryStore) GetEvents(_ context.Context, filter EventFilter, limit, offset int) ([]*EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*EventRecord{}
	skipped := 0
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !filter.matches(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		rc := *e
		out = append(out, &rc)
	}
	return out, nil
}

// HealthCheck reports whether the store is open.
func (s *MemoryStore) HealthCheck(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
