package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay is how long the watcher waits for writes to settle.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	path    string
	logger  zerolog.Logger
	delay   time.Duration
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   filepath.Clean(path),
		logger: logger.With().Str("component", "config_watcher").Logger(),
		delay:  DefaultReloadDelay,
		done:   make(chan struct{}),
	}
}

// SetDelay overrides the debounce delay. It must be called before Watch.
func (w *Watcher) SetDelay(d time.Duration) {
	w.delay = d
}

// Watch starts watching and calls reloadFn with each successfully parsed
// revision of the file. Invalid revisions are logged and skipped; the
// previous configuration stays in effect.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file by rename are still observed.
func (w *Watcher) Watch(ctx context.Context, reloadFn func(*File) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw

	go w.processEvents(ctx, reloadFn)

	w.logger.Info().Str("path", w.path).Msg("Started watching configuration")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, reloadFn func(*File) error) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration file changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.delay, func() {
				if err := w.triggerReload(reloadFn); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload configuration")
				}
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) triggerReload(reloadFn func(*File) error) error {
	w.logger.Info().Str("path", w.path).Msg("Reloading configuration...")

	f, err := Load(w.path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	if err := reloadFn(f); err != nil {
		return fmt.Errorf("failed to apply reloaded configuration: %w", err)
	}

	w.logger.Info().
		Str("consumption_policy", f.Scheduler.ConsumptionPolicy).
		Dur("at_risk_slack", f.Scheduler.AtRiskSlack).
		Msg("Configuration reloaded successfully")
	return nil
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}
