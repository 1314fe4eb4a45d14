package frames

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// Event kinds reported by Watch.
const (
	EventWritten = "written"
	EventRemoved = "removed"
)

// EventCallback is called for frame changes. kind is EventWritten or EventRemoved.
type EventCallback func(kind string, name string)

// Watch starts an fsnotify watcher on dir and reports frame changes until
// ctx is cancelled. Bursts of create/write events for the same file are
// coalesced and reported once, delay after the last event.
func Watch(ctx context.Context, dir string, delay time.Duration, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	logger.Info("watcher: started", slog.String("dir", dir))

	pending := make(map[string]func(func()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !IsImage(name) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				debounced, ok := pending[name]
				if !ok {
					debounced = debounce.New(delay)
					pending[name] = debounced
				}
				debounced(func() {
					if ctx.Err() != nil {
						return
					}
					logger.Debug("watcher: frame written", slog.String("name", name))
					cb(EventWritten, name)
				})

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if debounced, ok := pending[name]; ok {
					debounced(func() {})
					delete(pending, name)
				}
				logger.Debug("watcher: frame removed", slog.String("name", name))
				cb(EventRemoved, name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
