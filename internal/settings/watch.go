// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long the file must stay quiet before a reload.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch reloads the settings whenever the file changes on disk, until ctx
// is done. Editors often write a file in several steps, so changes are
// debounced. onReload, if set, is called after each successful reload.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, onReload func(Values)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: atomic saves replace the file, which would drop
	// a watch on the file itself.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	tick := debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var pending time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				pending = time.Now()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Warn("settings watcher error")

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < debounce {
				continue
			}
			pending = time.Time{}
			if err := s.Reload(); err != nil {
				s.log.WithError(err).Warn("settings reload failed, keeping previous values")
				continue
			}
			s.log.WithField("path", s.path).Debug("settings reloaded")
			if onReload != nil {
				onReload(s.Values())
			}
		}
	}
}
