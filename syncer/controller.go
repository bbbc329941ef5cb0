// Package syncer keeps the document store and the search index in step
// with the notes directory.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/noelzubin/notes_browser/document"
	"github.com/noelzubin/notes_browser/search"
	"github.com/noelzubin/notes_browser/store"
	"github.com/noelzubin/notes_browser/watcher"
)

// Policy decides what happens to a tracked note whose new version does
// not parse.
type Policy string

const (
	// PolicyEvict removes the note until a version that parses is saved.
	PolicyEvict Policy = "evict"
	// PolicyKeep keeps the last good version and marks it stale.
	PolicyKeep Policy = "keep"
)

func (p Policy) Valid() bool {
	return p == PolicyEvict || p == PolicyKeep
}

type Options struct {
	Extensions     []string
	Recursive      bool
	OnParseFailure Policy
}

// ChangeKind is what happened to a note after an event was applied.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeUpdated
	ChangeRemoved
	ChangeStale
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	case ChangeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Change describes a note that entered, changed in, or left the store.
type Change struct {
	Kind     ChangeKind
	Path     string
	Title    string // Current title, the removed one for ChangeRemoved.
	OldTitle string // Title before an update.
	Err      error  // Parse error of a stale note.
}

// TitleChanged reports whether an update renamed the note.
func (c Change) TitleChanged() bool {
	return c.Kind == ChangeUpdated && c.Title != c.OldTitle
}

// Controller applies note events to the store and the index. Events are
// applied one at a time, but readers of the store and the index share no
// lock with it. The index is always written first: between the two writes
// a search may return a path the store does not hold yet, or no longer
// returns a note the store still lists. Callers resolving hits through
// the store skip paths it does not know. Change callbacks run after both
// writes.
type Controller struct {
	store *store.Store
	index search.Index
	opts  Options

	mu       sync.Mutex
	onChange func(Change)
}

func New(st *store.Store, index search.Index, opts Options) *Controller {
	if !opts.OnParseFailure.Valid() {
		opts.OnParseFailure = PolicyEvict
	}
	return &Controller{store: st, index: index, opts: opts}
}

// OnChange sets the function called after every change. It runs while
// the controller is locked and must not call back into it.
func (c *Controller) OnChange(fn func(Change)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Bootstrap loads every note under the store root and rebuilds the index
// from them, which makes the index ready.
func (c *Controller) Bootstrap(ctx context.Context) error {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	paths, err := store.ListNotes(c.store.Root(), c.opts.Extensions, c.opts.Recursive)
	if err != nil {
		return fmt.Errorf("failed to list notes: %w", err)
	}
	loaded, err := c.store.LoadAll(ctx, paths)
	if err != nil {
		return err
	}
	if err := c.index.Rebuild(lo.Values(loaded)); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	slog.Info("bootstrap_done",
		slog.Int("notes", len(loaded)),
		slog.Int("skipped", len(paths)-len(loaded)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Apply applies one event. Unreadable or unparsable notes are logged and
// do not fail; an error means the index could not be updated.
func (c *Controller) Apply(ev watcher.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.opts.Extensions) > 0 && !store.HasExtension(ev.Path, c.opts.Extensions) {
		return nil
	}

	switch ev.Kind {
	case watcher.Added, watcher.Modified:
		// Either kind may arrive twice or out of order; whether the path is
		// tracked decides what happens.
		return c.upsert(ev.Path)
	case watcher.Deleted:
		return c.remove(ev.Path)
	default:
		slog.Warn("event_dropped", slog.String("path", ev.Path), slog.String("reason", "unknown kind"))
		return nil
	}
}

// Run applies events until ctx is done or events is closed. It stops at
// the first index error.
func (c *Controller) Run(ctx context.Context, events <-chan watcher.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.Apply(ev); err != nil {
				slog.Error("sync_failed", slog.String("event", ev.String()), slog.String("error", err.Error()))
				return err
			}
		}
	}
}

func (c *Controller) upsert(path string) error {
	prev, tracked := c.store.Get(path)

	raw, modTime, err := store.ReadNote(c.store.Root(), path)
	if err != nil {
		slog.Warn("event_dropped", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}

	doc, err := c.store.Parse(path, raw, modTime)
	if err != nil {
		logRejected(path, err)
		if !tracked {
			return nil
		}
		if c.opts.OnParseFailure == PolicyKeep {
			c.store.MarkStale(path, err)
			c.notify(Change{Kind: ChangeStale, Path: path, Title: prev.Title, Err: err})
			return nil
		}
		return c.remove(path)
	}

	if err := c.index.UpdateDocument(path, doc); err != nil {
		return err
	}
	c.store.Put(doc)

	if !tracked {
		slog.Info("note_added", slog.String("path", path))
		c.notify(Change{Kind: ChangeAdded, Path: path, Title: doc.Title})
		return nil
	}
	slog.Info("note_updated", slog.String("path", path))
	c.notify(Change{Kind: ChangeUpdated, Path: path, Title: doc.Title, OldTitle: prev.Title})
	return nil
}

func (c *Controller) remove(path string) error {
	if _, ok := c.store.Get(path); !ok {
		return nil
	}
	if err := c.index.DeleteDocument(path); err != nil {
		return err
	}
	doc, _ := c.store.Remove(path)

	slog.Info("note_removed", slog.String("path", path))
	c.notify(Change{Kind: ChangeRemoved, Path: path, Title: doc.Title})
	return nil
}

func (c *Controller) notify(change Change) {
	if c.onChange != nil {
		c.onChange(change)
	}
}

func logRejected(path string, err error) {
	var se *document.StructuralError
	if errors.As(err, &se) {
		slog.Warn("note_rejected",
			slog.String("path", path),
			slog.Int("line", se.Line),
			slog.String("reason", se.Kind.String()))
		return
	}
	slog.Error("note_parse_failed", slog.String("path", path), slog.String("error", err.Error()))
}
