package search

import (
	"context"
	"html"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
)

type Options struct {
	MinQueryLength int // Shorter queries return no results.
	MaxResults     int
	ContentExcerpt int // Excerpt length for content hits, in runes.
	TitleExcerpt   int // Excerpt length for title hits, in runes.
	CacheSize      int // Cached queries, 0 disables the cache.
}

func DefaultOptions() Options {
	return Options{
		MinQueryLength: 2,
		MaxResults:     10,
		ContentExcerpt: 60,
		TitleExcerpt:   80,
		CacheSize:      128,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinQueryLength <= 0 {
		o.MinQueryLength = d.MinQueryLength
	}
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	if o.ContentExcerpt <= 0 {
		o.ContentExcerpt = d.ContentExcerpt
	}
	if o.TitleExcerpt <= 0 {
		o.TitleExcerpt = d.TitleExcerpt
	}
	if o.CacheSize < 0 {
		o.CacheSize = 0
	}
	return o
}

var lineBreaks = strings.NewReplacer("\r\n", "<br>", "\r", "<br>", "\n", "<br>")

type cacheEntry struct {
	generation uint64
	results    []Result
}

// Engine turns user queries into highlighted results.
type Engine struct {
	index Index
	opts  Options
	cache *lru.Cache[string, cacheEntry]
}

func NewEngine(index Index, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	e := &Engine{index: index, opts: opts}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, cacheEntry](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	return e, nil
}

func (e *Engine) Options() Options {
	return e.opts
}

// Search returns at most MaxResults results for query, best first. Queries
// shorter than MinQueryLength after trimming return nothing without
// touching the index.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < e.opts.MinQueryLength {
		return nil, nil
	}

	// Read before searching so a write racing the search invalidates the entry.
	gen := e.index.Generation()
	if e.cache != nil {
		if entry, ok := e.cache.Get(query); ok && entry.generation == gen {
			return append([]Result(nil), entry.results...), nil
		}
	}

	hits, err := e.index.Search(ctx, query, e.opts.MaxResults)
	if err != nil {
		return nil, err
	}
	results := lo.Map(hits, func(h Hit, _ int) Result { return e.format(h, query) })

	if e.cache != nil {
		e.cache.Add(query, cacheEntry{generation: gen, results: results})
	}
	return append([]Result(nil), results...), nil
}

func (e *Engine) format(h Hit, query string) Result {
	r := Result{
		Path:      h.Path,
		Section:   h.Section,
		Score:     h.Score,
		TitleOnly: h.TitleOnly,
	}
	if h.TitleOnly {
		r.Excerpt = Highlight(h.Section, query, e.opts.TitleExcerpt)
		r.SnippetHTML = "<h4>" + r.Excerpt.HTML() + "</h4>"
		return r
	}
	r.Excerpt = Highlight(h.Content, query, e.opts.ContentExcerpt)
	r.SnippetHTML = "<b>" + html.EscapeString(h.Section) + "</b><br>" +
		lineBreaks.Replace(r.Excerpt.HTML())
	return r
}
