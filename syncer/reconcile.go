package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/noelzubin/notes_browser/store"
	"github.com/noelzubin/notes_browser/watcher"
)

// Reconcile compares the store with the notes directory and applies an
// event for every note created, changed or removed since it was loaded.
// It returns the number of events applied.
func (c *Controller) Reconcile(ctx context.Context) (int, error) {
	paths, err := store.ListNotes(c.store.Root(), c.opts.Extensions, c.opts.Recursive)
	if err != nil {
		return 0, fmt.Errorf("failed to list notes: %w", err)
	}
	deleted, modified, created := store.CompareFileInfos(c.store.FileInfos(), store.Stat(c.store.Root(), paths))

	var events []watcher.Event
	for _, fi := range deleted {
		events = append(events, watcher.Event{Kind: watcher.Deleted, Path: fi.Path})
	}
	for _, fi := range modified {
		events = append(events, watcher.Event{Kind: watcher.Modified, Path: fi.Path})
	}
	for _, fi := range created {
		events = append(events, watcher.Event{Kind: watcher.Added, Path: fi.Path})
	}

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := c.Apply(ev); err != nil {
			return i, err
		}
	}

	slog.Info("reconcile_done",
		slog.Int("deleted", len(deleted)),
		slog.Int("modified", len(modified)),
		slog.Int("created", len(created)))
	return len(events), nil
}
