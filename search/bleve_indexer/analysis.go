package bleve_indexer

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// Shortest and longest n-grams stored for every word.
	minGram = 2
	maxGram = 8

	wordTokenizerName   = "note_words"
	gramFilterName      = "note_grams"
	queryGramFilterName = "note_query_grams"

	IndexAnalyzerName = "note_index"
	QueryAnalyzerName = "note_query"

	// wordPattern keeps runs of ideographs together as one word, where the
	// unicode tokenizer would split them into single runes.
	wordPattern = `[\p{L}\p{M}\p{N}_]+`
)

// Stored field names.
const (
	fieldTitle    = "title"
	fieldContent  = "content"
	fieldSection  = "section"
	fieldPath     = "path"
	fieldModified = "modified"
	fieldKind     = "kind"
)

// Entry kinds.
const (
	kindTitle   = "title"
	kindContent = "content"
)

func init() {
	registry.RegisterTokenFilter(queryGramFilterName, queryGramFilterConstructor)
}

// createIndexMapping indexes title and content as n-grams of their
// lowercased words, so that a query for part of a word finds it.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomTokenizer(wordTokenizerName, map[string]interface{}{
		"type":   regexp.Name,
		"regexp": wordPattern,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add word tokenizer: %w", err)
	}

	err = indexMapping.AddCustomTokenFilter(gramFilterName, map[string]interface{}{
		"type": ngram.Name,
		"min":  float64(minGram),
		"max":  float64(maxGram),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add ngram filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(IndexAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     wordTokenizerName,
		"token_filters": []string{lowercase.Name, gramFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add index analyzer: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(QueryAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     wordTokenizerName,
		"token_filters": []string{lowercase.Name, queryGramFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add query analyzer: %w", err)
	}

	text := func(store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = IndexAnalyzerName
		fm.Store = store
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		return fm
	}
	keywordField := func() *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.Analyzer = keyword.Name
		fm.IncludeInAll = false
		return fm
	}

	section := bleve.NewTextFieldMapping()
	section.Index = false
	section.IncludeInAll = false

	modified := bleve.NewNumericFieldMapping()
	modified.IncludeInAll = false

	note := bleve.NewDocumentStaticMapping()
	note.AddFieldMappingsAt(fieldTitle, text(true))
	note.AddFieldMappingsAt(fieldContent, text(true))
	note.AddFieldMappingsAt(fieldSection, section)
	note.AddFieldMappingsAt(fieldPath, keywordField())
	note.AddFieldMappingsAt(fieldKind, keywordField())
	note.AddFieldMappingsAt(fieldModified, modified)

	indexMapping.DefaultMapping = note
	indexMapping.DefaultAnalyzer = IndexAnalyzerName
	return indexMapping, nil
}

// queryGramFilterConstructor builds the filter that turns a query word into
// the terms it must match. Words up to maxGram runes are indexed whole as
// one of their own n-grams, longer ones are split into their maxGram-grams.
// Words shorter than minGram never appear in the index and are dropped.
func queryGramFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	size := maxGram
	if v, ok := config["max"].(float64); ok && v >= minGram {
		size = int(v)
	}
	return &queryGramFilter{max: size}, nil
}

type queryGramFilter struct {
	max int
}

// Filter implements analysis.TokenFilter.
func (f *queryGramFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		runes := []rune(string(token.Term))
		switch {
		case len(runes) < minGram:
		case len(runes) <= f.max:
			result = append(result, token)
		default:
			for i := 0; i+f.max <= len(runes); i++ {
				result = append(result, &analysis.Token{
					Term:     []byte(string(runes[i : i+f.max])),
					Start:    token.Start,
					End:      token.End,
					Position: token.Position,
					Type:     token.Type,
				})
			}
		}
	}
	return result
}
