package search

import (
	"context"
	"errors"
	"time"

	"github.com/noelzubin/notes_browser/document"
)

// Hit is one index entry matched by a query.
type Hit struct {
	Path      string    // Note the entry belongs to.
	Section   string    // Title of the section the entry was made from.
	Content   string    // Section body, empty for title entries.
	TitleOnly bool      // Entry only carries the section title.
	ModTime   time.Time // Modification time of the note.
	Score     float64
}

// Result is a Hit prepared for display.
type Result struct {
	SnippetHTML string
	Path        string
	Section     string
	Score       float64
	TitleOnly   bool
	Excerpt     Excerpt // Plain text form of the snippet.
}

type SearchResult struct {
	Err  error
	Hits []Result
}

// ErrIndexInconsistent reports use of the index out of order, such as an
// update before the first rebuild or any call after Close.
var ErrIndexInconsistent = errors.New("search index inconsistent")

// The Index indexes the sections of all notes and searches them. Every
// change to a note goes through UpdateDocument or DeleteDocument, which
// replace all of the note's entries at once.
type Index interface {
	// Rebuild drops every entry and indexes docs.
	Rebuild(docs []*document.Document) error
	// UpdateDocument replaces the entries of path with those of doc.
	UpdateDocument(path string, doc *document.Document) error
	// DeleteDocument removes the entries of path.
	DeleteDocument(path string) error
	// Search blocks until the index is ready or ctx is done.
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	// Ready is closed after the first Rebuild.
	Ready() <-chan struct{}
	// Generation is incremented by every write.
	Generation() uint64
	Close() error
}
