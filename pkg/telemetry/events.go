package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/millrun/millrun/pkg/engine"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles a committed engine event.
type EventSubscriber func(ctx context.Context, event engine.Event) error

// EventFilter determines if an event should be processed.
type EventFilter func(event engine.Event) bool

// EventPublisher fans engine events out to subscribers. In async mode events
// are buffered and delivered by a single goroutine, so every subscriber sees
// events in publish order. It implements engine.EventPublisher.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan engine.Event
	subscribers []subscriberEntry
	filters     []EventFilter
	logger      *Logger
	metrics     *Metrics
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	name       string
	subscriber EventSubscriber
	filter     EventFilter
}

var _ engine.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher creates a new event publisher with the given configuration.
// logger and metrics may be nil.
func NewEventPublisher(cfg EventsConfig, logger *Logger, metrics *Metrics) (*EventPublisher, error) {
	if logger == nil {
		logger = NopLogger()
	}
	if !cfg.Enabled {
		return &EventPublisher{config: cfg, logger: logger, metrics: metrics}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		logger:      logger.NewComponentLogger("events"),
		metrics:     metrics,
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.buffer = make(chan engine.Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish hands an event to the subscribers. It never blocks on a slow
// subscriber: when the buffer is full the event is dropped and counted.
func (ep *EventPublisher) Publish(ctx context.Context, event *engine.Event) error {
	if !ep.config.Enabled || event == nil {
		return nil
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(*event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}

		select {
		case ep.buffer <- *event:
			return nil
		default:
			if ep.metrics != nil {
				ep.metrics.RecordEventDropped()
			}
			return fmt.Errorf("event buffer full, event %s dropped", event.ID)
		}
	}

	// Synchronous publishing
	ep.deliverEvent(ctx, *event)
	return nil
}

// Subscribe adds a named event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(name string, subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		name:       name,
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]engine.Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Drain whatever else is already waiting, up to one batch
		fill:
			for len(batch) < ep.config.MaxBatchSize {
				select {
				case next := <-ep.buffer:
					batch = append(batch, next)
				default:
					break fill
				}
			}

			ep.flushBatch(batch)
			batch = batch[:0]

		case <-ep.ctx.Done():
			// Deliver remaining events before shutting down
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					ep.flushBatch(batch)
					return
				}
			}
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []engine.Event) {
	for _, event := range events {
		ep.deliverEvent(context.Background(), event)
	}
}

// deliverEvent delivers an event to all subscribers in registration order.
func (ep *EventPublisher) deliverEvent(ctx context.Context, event engine.Event) {
	ep.mu.RLock()
	subs := append([]subscriberEntry(nil), ep.subscribers...)
	ep.mu.RUnlock()

	for _, entry := range subs {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		if err := entry.subscriber(ctx, event); err != nil {
			ep.logger.zlog.Error().
				Err(err).
				Str("subscriber", entry.name).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Msg("Event subscriber failed")
		}
	}
}

// Shutdown stops accepting events and waits until buffered events have been delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event engine.Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...engine.EventType) EventFilter {
	typeSet := make(map[engine.EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event engine.Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByOrderID creates a filter that only allows events for a specific order.
func FilterByOrderID(orderID string) EventFilter {
	return func(event engine.Event) bool {
		return event.OrderID == orderID
	}
}

// FilterByEquipmentID creates a filter that only allows events for a specific equipment unit.
func FilterByEquipmentID(equipmentID string) EventFilter {
	return func(event engine.Event) bool {
		return event.EquipmentID == equipmentID
	}
}
