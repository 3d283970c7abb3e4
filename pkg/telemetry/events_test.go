package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/millrun/millrun/pkg/engine"
)

type collector struct {
	mu     sync.Mutex
	events []engine.Event
}

func (c *collector) subscribe(_ context.Context, ev engine.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.ID)
	}
	return out
}

func testEvent(id string, typ engine.EventType) *engine.Event {
	return &engine.Event{ID: id, Type: typ, Level: typ.Severity(), OrderID: "ord-1", Timestamp: time.Now()}
}

func TestEventPublisherAsyncPreservesOrder(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 256, MaxBatchSize: 8, EnableAsync: true}, nil, nil)
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	c := &collector{}
	ep.Subscribe("collector", c.subscribe, nil)

	ctx := context.Background()
	want := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("e%03d", i)
		want = append(want, id)
		if err := ep.Publish(ctx, testEvent(id, engine.EventTypeStageScheduled)); err != nil {
			t.Fatalf("publish %s failed: %v", id, err)
		}
	}

	// Shutdown drains the buffer
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	got := c.ids()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if err := ep.Publish(ctx, testEvent("late", engine.EventTypeStageScheduled)); err == nil {
		t.Error("expected publish after shutdown to fail")
	}
}

func TestEventPublisherDropsWhenFull(t *testing.T) {
	metrics, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 1, MaxBatchSize: 1, EnableAsync: true}, nil, metrics)
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	// Block the delivery goroutine so the buffer fills up
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	ep.Subscribe("slow", func(context.Context, engine.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, nil)

	ctx := context.Background()
	if err := ep.Publish(ctx, testEvent("first", engine.EventTypeStageScheduled)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	<-started

	if err := ep.Publish(ctx, testEvent("second", engine.EventTypeStageScheduled)); err != nil {
		t.Fatalf("publish into free buffer slot failed: %v", err)
	}
	if err := ep.Publish(ctx, testEvent("third", engine.EventTypeStageScheduled)); err == nil {
		t.Error("expected publish into full buffer to fail")
	}
	if got := testutil.ToFloat64(metrics.eventsDropped); got != 1 {
		t.Errorf("expected 1 dropped event, got %v", got)
	}

	close(release)
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestEventPublisherFilters(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16}, nil, nil)
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	defer ep.Shutdown(context.Background())

	all := &collector{}
	warnings := &collector{}
	failures := &collector{}
	ep.Subscribe("all", all.subscribe, nil)
	ep.Subscribe("warnings", warnings.subscribe, FilterByLevel(EventLevelWarning))
	ep.Subscribe("failures", failures.subscribe, FilterByType(engine.EventTypeQualityFailed))

	// Global filter drops events for other orders
	ep.AddFilter(FilterByOrderID("ord-1"))

	ctx := context.Background()
	other := testEvent("other", engine.EventTypeStageBlocked)
	other.OrderID = "ord-2"
	for _, ev := range []*engine.Event{
		testEvent("sched", engine.EventTypeStageScheduled),
		testEvent("blocked", engine.EventTypeStageBlocked),
		testEvent("qc", engine.EventTypeQualityFailed),
		other,
	} {
		if err := ep.Publish(ctx, ev); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	tests := []struct {
		name string
		c    *collector
		want []string
	}{
		{"all", all, []string{"sched", "blocked", "qc"}},
		{"warnings", warnings, []string{"blocked", "qc"}},
		{"failures", failures, []string{"qc"}},
	}
	for _, tt := range tests {
		got := tt.c.ids()
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestEventPublisherSubscriberErrorDoesNotStopDelivery(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16}, nil, nil)
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	c := &collector{}
	ep.Subscribe("broken", func(context.Context, engine.Event) error {
		return errors.New("sink unavailable")
	}, nil)
	ep.Subscribe("collector", c.subscribe, nil)

	if err := ep.Publish(context.Background(), testEvent("e1", engine.EventTypeStageCompleted)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got := c.ids(); len(got) != 1 {
		t.Errorf("expected later subscriber to receive the event, got %v", got)
	}
}

func TestEventPublisherDisabled(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false}, nil, nil)
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	c := &collector{}
	ep.Subscribe("collector", c.subscribe, nil)
	if err := ep.Publish(context.Background(), testEvent("e1", engine.EventTypeStageCompleted)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(c.ids()) != 0 {
		t.Error("disabled publisher must not deliver")
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestEventPublisherWithEngine(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 64, MaxBatchSize: 16, EnableAsync: true}, nil, nil)
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var mu sync.Mutex
	var types []engine.EventType
	ep.Subscribe("types", func(_ context.Context, ev engine.Event) error {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, ev.Type)
		return nil
	}, nil)

	ctx := context.Background()
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	eng, err := engine.New(ctx, nil, engine.WithEventPublisher(ep), engine.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	err = eng.Ingest(ctx, &engine.Batch{
		Equipment: []*engine.Equipment{{ID: "saw-1", Type: "saw"}},
		Orders:    []*engine.Order{{ID: "ord-1", DueDate: now.Add(8 * time.Hour)}},
		Plans: []*engine.ProductionPlan{{
			ID: "plan-1", OrderID: "ord-1",
			Stages: []*engine.ProductionStage{{ID: "saw", EquipmentType: "saw", Duration: time.Hour}},
		}},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if _, err := eng.ScheduleEligibleStages(ctx); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if err := eng.MarkStarted(ctx, "saw"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := eng.MarkCompleted(ctx, "saw"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	want := []engine.EventType{
		engine.EventTypeStageScheduled,
		engine.EventTypeStageCompleted,
		engine.EventTypeOrderCompleted,
	}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, types)
	}
}
