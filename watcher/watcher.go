// Package watcher reports notes being added, modified and deleted under a
// notes directory.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/noelzubin/notes_browser/store"
)

// EventKind is the kind of change to a note.
type EventKind int

const (
	Added EventKind = iota + 1
	Modified
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a change to the note at Path, relative to the notes directory
// and slash separated.
type Event struct {
	Kind EventKind
	Path string
}

func (e Event) String() string {
	return e.Kind.String() + " " + e.Path
}

type Options struct {
	Extensions []string // Only files with these extensions are reported.
	Recursive  bool     // Also watch subdirectories, including new ones.
}

// Watcher turns fsnotify events into Events. Renames are reported as
// Deleted for the old name, permission changes are ignored.
type Watcher struct {
	root   string
	opts   Options
	fs     *fsnotify.Watcher
	events chan Event
	errors chan error
}

func New(root string, opts Options) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root:   absRoot,
		opts:   opts,
		fs:     fsw,
		events: make(chan Event, 64),
		errors: make(chan error, 8),
	}
	if err := w.addDir(absRoot, nil); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("add directories to watcher: %w", err)
	}
	return w, nil
}

// Events returns the channel of note events. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors. It is closed when Run returns.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run forwards events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.errors)
	defer close(w.events)
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, event); err != nil {
				return err
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) error {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if isDir {
		if event.Op&fsnotify.Create != 0 && w.opts.Recursive && !hidden(filepath.Base(event.Name)) {
			// Notes written before the watch was added are reported as Added.
			var found []string
			if err := w.addDir(event.Name, &found); err != nil {
				slog.Warn("watch_dir_failed", slog.String("path", event.Name), slog.String("error", err.Error()))
			}
			for _, path := range found {
				if err := w.emit(ctx, Event{Kind: Added, Path: path}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	path, ok := w.notePath(event.Name)
	if !ok {
		return nil
	}

	var kind EventKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = Added
	case event.Op&fsnotify.Write != 0:
		kind = Modified
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		kind = Deleted
	default:
		return nil
	}
	return w.emit(ctx, Event{Kind: kind, Path: path})
}

func (w *Watcher) emit(ctx context.Context, ev Event) error {
	select {
	case w.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notePath returns name relative to the root if it is a note this watcher
// reports.
func (w *Watcher) notePath(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	if !store.HasExtension(rel, w.opts.Extensions) {
		return "", false
	}
	if !w.opts.Recursive && filepath.Dir(rel) != "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addDir watches dir, and with Recursive its subdirectories. Notes seen on
// the way are appended to found when it is not nil.
func (w *Watcher) addDir(dir string, found *[]string) error {
	if !w.opts.Recursive {
		return w.fs.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if found != nil {
				if rel, ok := w.notePath(path); ok {
					*found = append(*found, rel)
				}
			}
			return nil
		}
		if path != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
