package taskstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the tasks directory and keeps the
// in-memory map and search index in line with external file edits until ctx
// is cancelled. Change events are emitted through the store's OnChange
// callback. Rename events trigger a short debounced reconciliation pass,
// since fsnotify reports only the old path.
func (s *Store) Watch(ctx context.Context, root string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			s.reconcile(logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			// Skip our own atomic-write temp files.
			if strings.HasPrefix(filepath.Base(rel), ".taskpilot-tmp-") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				id, created, reloadErr := s.ReloadFile(rel)
				if reloadErr != nil {
					logger.Warn("watcher: reload failed", slog.String("path", rel), slog.String("error", reloadErr.Error()))
					continue
				}
				kind := "updated"
				if created {
					kind = "created"
				}
				logger.Debug("watcher: reloaded", slog.String("id", id), slog.String("op", kind))
				s.emit(kind, id)

			case ev.Op&fsnotify.Remove != 0:
				if id := s.RemoveFile(rel); id != "" {
					logger.Debug("watcher: removed", slog.String("id", id))
				}

			case ev.Op&fsnotify.Rename != 0:
				// The new path arrives as a separate Create event. Drop the
				// old entry now and reconcile shortly after for stragglers.
				if id := s.RemoveFile(rel); id != "" {
					logger.Debug("watcher: rename old removed", slog.String("id", id))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile compares the on-disk file set against the cache: entries whose
// files vanished are dropped, files not yet cached are loaded.
func (s *Store) reconcile(logger *slog.Logger) {
	metas, err := s.files.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}

	s.mu.RLock()
	stale := make([]string, 0)
	for path := range s.pathToID {
		if _, ok := disk[path]; !ok {
			stale = append(stale, path)
		}
	}
	s.mu.RUnlock()

	for _, path := range stale {
		if id := s.RemoveFile(path); id != "" {
			logger.Debug("reconcile: removed stale", slog.String("id", id))
		}
	}

	for _, m := range metas {
		s.mu.RLock()
		_, known := s.pathToID[m.Path]
		s.mu.RUnlock()
		if known {
			continue
		}
		id, _, reloadErr := s.ReloadFile(m.Path)
		if reloadErr != nil {
			logger.Warn("reconcile: reload failed", slog.String("path", m.Path), slog.String("error", reloadErr.Error()))
			continue
		}
		logger.Debug("reconcile: loaded", slog.String("id", id))
		s.emit("created", id)
	}
}
