package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the file at path whenever it changes and hands every
// configuration that validates to onChange. Invalid edits are logged and
// ignored; the previous configuration stays in effect.
//
// The parent directory is watched rather than the file so that editors which
// save by rename keep being followed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	slog.Info("watching configuration for changes", "path", abs)

	reload := time.NewTimer(debounce)
	reload.Stop()
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("config file event", "path", event.Name, "op", event.Op.String())
			reload.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config watcher error", "error", err)

		case <-reload.C:
			cfg, err := Load(abs)
			if err != nil {
				slog.Warn("config reload rejected, keeping previous configuration",
					"path", abs,
					"error", err,
				)
				continue
			}
			slog.Info("configuration reloaded", "path", abs)
			onChange(cfg)
		}
	}
}
