package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/multicare-dataset/website/internal/dataset"
)

// SyncCallback is called after a watcher-driven sync that changed the store.
type SyncCallback func(report *SyncReport)

const watchDebounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the dataset root and resyncs the store
// until ctx is cancelled. Bursts of events on table files are coalesced into
// one Sync pass; cb (if non-nil) receives every report that changed the store.
func Watch(ctx context.Context, db CaseIndex, src dataset.Source, root string, years dataset.YearRange, logger *slog.Logger, cb SyncCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			fire = timer.C
		} else {
			timer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			report, err := Sync(ctx, db, src, years, logger)
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			if !report.Changed() {
				continue
			}
			logger.Info("watcher: synced",
				slog.Int("imported", len(report.Imported)),
				slog.Int("removed", len(report.Removed)),
				slog.Int("rows", report.Rows))
			if cb != nil {
				cb(report)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if _, known := dataset.Classify(filepath.Base(ev.Name)); !known {
				continue
			}
			logger.Debug("watcher: event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
