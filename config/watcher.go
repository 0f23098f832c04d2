package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/routeflow/routeflow/pkg/logger"
)

const debounceInterval = 500 * time.Millisecond

// Watch follows the configuration file at path and invokes onChange with
// every version that parses and validates.  Invalid versions are logged and
// skipped, leaving the previous configuration in effect.  Watch blocks until
// ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// editors and config management tools that replace the file atomically
// (write to temp, rename over) are still observed.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce bursts of events from a single save.
			if debounce == nil {
				debounce = time.AfterFunc(debounceInterval, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(debounceInterval)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("Config watcher error: %s", err)
		case <-fire:
			debounce = nil
			cfg, err := Load(abs)
			if err != nil {
				logger.Errorf("Ignoring invalid config %s: %s", abs, err)
				continue
			}
			onChange(cfg)
		}
	}
}
