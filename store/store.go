// Package store keeps the parsed notes of a notes directory in memory.
package store

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/noelzubin/notes_browser/document"
)

// Store maps note paths to their parsed Document. Documents are replaced
// wholesale, never edited in place.
type Store struct {
	root     string
	parser   document.Parser
	renderer document.Renderer

	mu    sync.RWMutex
	docs  map[string]*document.Document
	stale map[string]error // paths whose file no longer parses, last good Document kept
}

// New returns an empty store for the notes under root.
func New(root string, parser document.Parser, renderer document.Renderer) *Store {
	return &Store{
		root:     root,
		parser:   parser,
		renderer: renderer,
		docs:     make(map[string]*document.Document),
		stale:    make(map[string]error),
	}
}

// Root returns the notes directory.
func (s *Store) Root() string {
	return s.root
}

// Parse builds the complete Document for path without storing it: parsed,
// stamped with modTime and rendered.
func (s *Store) Parse(path, raw string, modTime time.Time) (*document.Document, error) {
	doc, err := s.parser.Parse(raw, path)
	if err != nil {
		return nil, err
	}
	doc.ModTime = modTime
	if s.renderer == nil {
		return doc, nil
	}
	return doc.Render(s.renderer)
}

// Put stores doc under its path, replacing any previous version.
func (s *Store) Put(doc *document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Path] = doc
	delete(s.stale, doc.Path)
}

// Upsert parses raw and replaces the Document for path. On error the
// previous Document, if any, stays in place.
func (s *Store) Upsert(path, raw string, modTime time.Time) (*document.Document, error) {
	doc, err := s.Parse(path, raw, modTime)
	if err != nil {
		return nil, err
	}
	s.Put(doc)
	return doc, nil
}

// Remove deletes path and returns the Document it held.
func (s *Store) Remove(path string) (*document.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	delete(s.docs, path)
	delete(s.stale, path)
	return doc, ok
}

// Get returns the Document for path.
func (s *Store) Get(path string) (*document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	return doc, ok
}

// Len returns the number of stored Documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// MarkStale flags path as no longer matching its file. It returns false
// if path is not stored.
func (s *Store) MarkStale(path string, reason error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return false
	}
	s.stale[path] = reason
	return true
}

// Stale reports whether path is stale and why.
func (s *Store) Stale(path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reason, ok := s.stale[path]
	return ok, reason
}

// Snapshot returns all Documents ordered by path.
func (s *Store) Snapshot() []*document.Document {
	s.mu.RLock()
	docs := lo.Values(s.docs)
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

// Sorted returns all Documents ordered by title, byte-wise and case
// sensitive, with ties broken by path.
func (s *Store) Sorted() []*document.Document {
	docs := s.Snapshot()
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Title < docs[j].Title })
	return docs
}

// FileInfos returns the path and modification time of every Document.
func (s *Store) FileInfos() []FileInfo {
	return lo.Map(s.Snapshot(), func(doc *document.Document, _ int) FileInfo {
		return FileInfo{Path: doc.Path, ModTime: doc.ModTime}
	})
}

// LoadAll reads and parses every path and replaces the store contents with
// the result. Notes that cannot be read or parsed are logged and left
// out; only cancellation of ctx fails the load.
func (s *Store) LoadAll(ctx context.Context, paths []string) (map[string]*document.Document, error) {
	var (
		mu     sync.Mutex
		loaded = make(map[string]*document.Document, len(paths))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, modTime, err := ReadNote(s.root, path)
			if err != nil {
				slog.Warn("note_read_failed", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			doc, err := s.Parse(path, raw, modTime)
			if err != nil {
				logParseFailure(path, err)
				return nil
			}
			mu.Lock()
			loaded[path] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.docs = make(map[string]*document.Document, len(loaded))
	for path, doc := range loaded {
		s.docs[path] = doc
	}
	s.stale = make(map[string]error)
	s.mu.Unlock()

	return loaded, nil
}

func logParseFailure(path string, err error) {
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
