package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/millrun/millrun/pkg/engine"
	"github.com/millrun/millrun/pkg/stores"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func writeBatch(t *testing.T, dir string) string {
	t.Helper()
	due := time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)
	doc := fmt.Sprintf(`
materials:
  - id: steel
    on_hand: 10
equipment:
  - id: laser-1
    type: laser
orders:
  - id: ord-1
    due_date: %s
plans:
  - id: plan-1
    order_id: ord-1
    stages:
      - id: cut
        equipment_type: laser
        duration: 1h
        requirements:
          - material_id: steel
            quantity: 4
`, due)
	path := filepath.Join(dir, "batch.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write batch: %v", err)
	}
	return path
}

func openTestStore(t *testing.T, path string) *stores.SQLiteStore {
	t.Helper()
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLifecycleThroughCLI(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "millrun.db")
	batch := writeBatch(t, dir)

	steps := [][]string{
		{"migrate", "--db", db},
		{"ingest", batch, "--db", db},
		{"schedule", "--db", db},
		{"stage", "start", "cut", "--db", db},
		{"stage", "complete", "cut", "--db", db},
		{"material", "receive", "steel", "2.5", "--db", db},
	}
	for _, args := range steps {
		if err := runCLI(t, args...); err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
	}

	store := openTestStore(t, db)
	ctx := context.Background()

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	_, idx, ok := snap.Stage("cut")
	if !ok {
		t.Fatal("stage cut missing")
	}
	if st := snap.Plans["plan-1"].Stages[idx]; st.Status != engine.StageStatusCompleted {
		t.Errorf("expected completed stage, got %s", st.Status)
	}
	if got := snap.Orders["ord-1"].Status; got != engine.OrderStatusCompleted {
		t.Errorf("expected completed order, got %s", got)
	}
	// 10 - 4 consumed + 2.5 received
	if got := snap.Materials["steel"].OnHand.String(); got != "8.5" {
		t.Errorf("expected 8.5 steel on hand, got %s", got)
	}

	// Each command drains its events into the log before exiting
	records, err := store.GetEvents(ctx, stores.EventFilter{OrderID: "ord-1"}, 10, 0)
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	types := make(map[string]bool)
	for _, r := range records {
		types[r.Type] = true
	}
	for _, want := range []engine.EventType{
		engine.EventTypeStageScheduled,
		engine.EventTypeStageCompleted,
		engine.EventTypeOrderCompleted,
	} {
		if !types[string(want)] {
			t.Errorf("expected %s in event log, got %v", want, types)
		}
	}
}

func TestCLIErrors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "millrun.db")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown order", []string{"cancel", "order", "ord-404", "--db", db}},
		{"start unscheduled", []string{"stage", "start", "nope", "--db", db}},
		{"bad quantity", []string{"material", "receive", "steel", "lots", "--db", db}},
		{"bad quality result", []string{"stage", "quality", "cut", "--result", "meh", "--inspector", "qa", "--db", db}},
		{"missing batch", []string{"ingest", filepath.Join(dir, "missing.yaml"), "--db", db}},
		{"missing config", []string{"status", "--config", filepath.Join(dir, "missing.yaml")}},
		{"unknown plan graph", []string{"status", "--dot", "plan-404", "--db", db}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runCLI(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfigDBOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "millrun.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  driver: memory\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	configPath, dbPath = cfgPath, filepath.Join(dir, "override.db")
	t.Cleanup(func() { configPath, dbPath = "", "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != dbPath {
		t.Errorf("expected --db to select sqlite at %s, got %+v", dbPath, cfg.Store)
	}
}
