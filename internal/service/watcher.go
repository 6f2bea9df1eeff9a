package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch drops the cached journal whenever the working file changes on disk,
// so edits made outside the process are picked up. It blocks until ctx is
// done.
func (s *JourneyService) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Error("failed to close watcher", "error", err)
		}
	}()

	target := filepath.Clean(s.catalog.ActivePath())
	// Saves replace the file by rename, so the directory is watched.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	s.logger.Info("watching working journal", "path", target)

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&relevant == 0 {
				continue
			}
			s.mu.Lock()
			s.invalidate()
			s.mu.Unlock()
			s.logger.Debug("working journal changed on disk", "op", ev.Op.String())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}
