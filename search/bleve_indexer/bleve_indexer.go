package bleve_indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveSearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/gofrs/flock"
	"github.com/samber/lo"

	"github.com/noelzubin/notes_browser/document"
	"github.com/noelzubin/notes_browser/search"
)

// Options configure a bleveIndexer.
type Options struct {
	Path          string  // Directory of an on-disk index, empty keeps it in memory.
	TitleWeight   float64 // Boost of title matches.
	ContentWeight float64 // Boost of content matches.
}

// bleveIndexer is the implementation of the search.Index interface which
// uses a bleve index. Every section of a note is stored as two entries, one
// holding only the section title and one holding its content.
type bleveIndexer struct {
	opts Options

	mu     sync.RWMutex
	index  bleve.Index
	lock   *flock.Flock
	closed bool

	ready      chan struct{}
	readyOnce  sync.Once
	generation atomic.Uint64
}

var _ search.Index = (*bleveIndexer)(nil)

// DefaultIndexPath returns where an on-disk index is kept unless
// configured otherwise.
func DefaultIndexPath() string {
	dir, _ := os.UserCacheDir()
	return filepath.Join(dir, "notes_browser", "index.bleve")
}

// NewBleveIndexer returns an empty index. It is not ready for queries or
// updates until the first Rebuild.
func NewBleveIndexer(opts Options) (*bleveIndexer, error) {
	if opts.TitleWeight <= 0 {
		opts.TitleWeight = 3
	}
	if opts.ContentWeight <= 0 {
		opts.ContentWeight = 1
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	b := &bleveIndexer{opts: opts, ready: make(chan struct{})}
	if opts.Path == "" {
		b.index, err = bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
		return b, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", opts.Path, err)
	}
	b.lock = flock.New(opts.Path + ".lock")
	locked, err := b.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock index %s: %w", opts.Path, err)
	}
	if !locked {
		return nil, fmt.Errorf("index %s is in use by another process", opts.Path)
	}

	b.index, err = openIndex(opts.Path, indexMapping)
	if err != nil {
		_ = b.lock.Unlock()
		return nil, err
	}
	return b, nil
}

// mappingVersionKey marks an on-disk index with the version of the mapping
// it was created with. Indexes of another version are recreated.
var mappingVersionKey = []byte("notes_browser.mapping_version")

const mappingVersion = "2"

// openIndex opens the index at path, or creates it if it does not exist,
// cannot be opened or was made with another mapping. Its contents are
// replaced by the first Rebuild anyway.
func openIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	index, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		return createIndex(path, indexMapping)
	case err != nil:
		slog.Warn("index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
	default:
		version, verr := index.GetInternal(mappingVersionKey)
		if verr == nil && string(version) == mappingVersion {
			return index, nil
		}
		slog.Info("index_mapping_changed", slog.String("path", path), slog.String("version", string(version)))
		_ = index.Close()
	}
	if rmErr := os.RemoveAll(path); rmErr != nil {
		return nil, fmt.Errorf("failed to clear index %s: %w", path, rmErr)
	}
	return createIndex(path, indexMapping)
}

func createIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	index, err := bleve.New(path, indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index %s: %w", path, err)
	}
	if err := index.SetInternal(mappingVersionKey, []byte(mappingVersion)); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to mark index %s: %w", path, err)
	}
	return index, nil
}

func (b *bleveIndexer) Ready() <-chan struct{} {
	return b.ready
}

func (b *bleveIndexer) Generation() uint64 {
	return b.generation.Load()
}

func (b *bleveIndexer) isReady() bool {
	select {
	case <-b.ready:
		return true
	default:
		return false
	}
}

// Rebuild drops every entry and indexes docs. The first call makes the
// index ready.
func (b *bleveIndexer) Rebuild(docs []*document.Document) error {
	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("rebuild of closed index: %w", search.ErrIndexInconsistent)
	}

	ids, err := b.searchIDs(bleve.NewMatchAllQuery())
	if err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	for _, doc := range docs {
		if err := addEntries(batch, doc.Path, doc); err != nil {
			return err
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	b.generation.Add(1)
	b.readyOnce.Do(func() { close(b.ready) })

	slog.Info("index_rebuilt",
		slog.Int("notes", len(docs)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// UpdateDocument replaces every entry of path by the entries of doc in a
// single batch.
func (b *bleveIndexer) UpdateDocument(path string, doc *document.Document) error {
	return b.replace(path, doc)
}

// DeleteDocument removes every entry of path. Deleting a path without
// entries is not an error.
func (b *bleveIndexer) DeleteDocument(path string) error {
	return b.replace(path, nil)
}

func (b *bleveIndexer) replace(path string, doc *document.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("update of %s on closed index: %w", path, search.ErrIndexInconsistent)
	}
	if !b.isReady() {
		return fmt.Errorf("update of %s before first rebuild: %w", path, search.ErrIndexInconsistent)
	}

	pathQuery := bleve.NewTermQuery(path)
	pathQuery.SetField(fieldPath)
	ids, err := b.searchIDs(pathQuery)
	if err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if doc != nil {
		if err := addEntries(batch, path, doc); err != nil {
			return err
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	b.generation.Add(1)
	return nil
}

// Search searches the index for the given query, best matches first and
// ties most recently modified first. It waits for the index to be ready.
func (b *bleveIndexer) Search(ctx context.Context, text string, limit int) ([]search.Hit, error) {
	select {
	case <-b.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("search on closed index: %w", search.ErrIndexInconsistent)
	}

	q, err := b.compile(text)
	if err != nil || q == nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldPath, fieldSection, fieldContent, fieldModified, fieldKind}
	req.SortBy([]string{"-_score", "-" + fieldModified})

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return lo.Map(result.Hits, func(hit *bleveSearch.DocumentMatch, _ int) search.Hit {
		return toHit(hit)
	}), nil
}

// Count returns the number of entries in the index.
func (b *bleveIndexer) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("count on closed index: %w", search.ErrIndexInconsistent)
	}
	return b.index.DocCount()
}

func (b *bleveIndexer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	err := b.index.Close()
	if b.lock != nil {
		if unlockErr := b.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}

// compile turns every word of text into a query matching it in the title
// or the content, and requires all words to match. It returns nil when no
// word is long enough to search for.
func (b *bleveIndexer) compile(text string) (query.Query, error) {
	analyzer := b.index.Mapping().AnalyzerNamed(QueryAnalyzerName)
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer %s missing: %w", QueryAnalyzerName, search.ErrIndexInconsistent)
	}

	var words []query.Query
	for _, word := range strings.Fields(text) {
		tokens := analyzer.Analyze([]byte(word))
		if len(tokens) == 0 {
			continue
		}
		grams := lo.Uniq(lo.Map(tokens, func(t *analysis.Token, _ int) string { return string(t.Term) }))
		words = append(words, bleve.NewDisjunctionQuery(
			fieldQuery(fieldTitle, grams, b.opts.TitleWeight),
			fieldQuery(fieldContent, grams, b.opts.ContentWeight),
		))
	}

	switch len(words) {
	case 0:
		return nil, nil
	case 1:
		return words[0], nil
	default:
		return bleve.NewConjunctionQuery(words...), nil
	}
}

func fieldQuery(field string, grams []string, boost float64) query.Query {
	terms := lo.Map(grams, func(gram string, _ int) query.Query {
		q := bleve.NewTermQuery(gram)
		q.SetField(field)
		q.SetBoost(boost)
		return q
	})
	if len(terms) == 1 {
		return terms[0]
	}
	return bleve.NewConjunctionQuery(terms...)
}

// searchIDs returns the IDs of all entries matching q.
func (b *bleveIndexer) searchIDs(q query.Query) ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to look up entries: %w", err)
	}
	return lo.Map(result.Hits, func(hit *bleveSearch.DocumentMatch, _ int) string { return hit.ID }), nil
}

// addEntries adds the title and content entry of every section of doc.
func addEntries(batch *bleve.Batch, path string, doc *document.Document) error {
	modified := float64(doc.ModTime.UnixMilli())
	for i, section := range doc.Sections {
		titleEntry := map[string]interface{}{
			fieldTitle:    section.Title,
			fieldSection:  section.Title,
			fieldPath:     path,
			fieldModified: modified,
			fieldKind:     kindTitle,
		}
		if err := batch.Index(entryID(path, i, kindTitle), titleEntry); err != nil {
			return fmt.Errorf("failed to index %s: %w", path, err)
		}

		contentEntry := map[string]interface{}{
			fieldContent:  section.Content,
			fieldSection:  section.Title,
			fieldPath:     path,
			fieldModified: modified,
			fieldKind:     kindContent,
		}
		if err := batch.Index(entryID(path, i, kindContent), contentEntry); err != nil {
			return fmt.Errorf("failed to index %s: %w", path, err)
		}
	}
	return nil
}

func entryID(path string, section int, kind string) string {
	return fmt.Sprintf("%s#%d/%s", path, section, kind)
}

func toHit(hit *bleveSearch.DocumentMatch) search.Hit {
	field := func(name string) string {
		s, _ := hit.Fields[name].(string)
		return s
	}
	h := search.Hit{
		Path:      field(fieldPath),
		Section:   field(fieldSection),
		Content:   field(fieldContent),
		TitleOnly: field(fieldKind) == kindTitle,
		Score:     hit.Score,
	}
	if ms, ok := hit.Fields[fieldModified].(float64); ok {
		h.ModTime = time.UnixMilli(int64(ms))
	}
	return h
}
