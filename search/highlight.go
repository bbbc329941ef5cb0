package search

import (
	"html"
	"strings"
	"unicode"
)

const (
	Ellipsis = "..."

	highlightOpen  = `<span style="color: rgb(0,0,0); background-color: rgba(255,231,146,220);">`
	highlightClose = `</span>`
)

// Excerpt is a piece of text split around a highlighted match. Match is
// empty when the keyword was not found, Before then holds the whole text.
type Excerpt struct {
	Before string
	Match  string
	After  string
}

func (e Excerpt) String() string {
	return e.Before + e.Match + e.After
}

// Found reports whether the excerpt has a highlighted match.
func (e Excerpt) Found() bool {
	return e.Match != ""
}

// HTML returns the escaped excerpt with the match wrapped in a span.
func (e Excerpt) HTML() string {
	if !e.Found() {
		return html.EscapeString(e.Before)
	}
	return html.EscapeString(e.Before) + highlightOpen + html.EscapeString(e.Match) + highlightClose + html.EscapeString(e.After)
}

// Highlight locates the first case-insensitive occurrence of keyword in
// text and cuts the text around it to at most maxLen runes plus ellipses.
// The context on each side is (maxLen - len(keyword)) / 2. Text without
// the keyword comes back whole and unmarked.
func Highlight(text, keyword string, maxLen int) Excerpt {
	kw := lowerRunes(strings.TrimSpace(keyword))
	rs := []rune(text)
	begin := indexRunes(lowerRunes(text), kw)
	if len(kw) == 0 || begin < 0 {
		return Excerpt{Before: text}
	}
	end := begin + len(kw)

	context := (maxLen - len(kw)) / 2
	if context < 0 {
		context = 0
	}

	before := string(rs[:begin])
	if begin > context {
		before = Ellipsis + string(rs[begin-context:begin])
	}
	after := string(rs[end:])
	if len(rs)-end > context {
		after = string(rs[end:end+context]) + Ellipsis
	}
	return Excerpt{Before: before, Match: string(rs[begin:end]), After: after}
}

// lowerRunes lowercases rune by rune so indexes stay aligned with the
// original text.
func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
