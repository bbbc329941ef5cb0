package main

import (
	"regexp"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/noelzubin/notes_browser/document"
	"github.com/noelzubin/notes_browser/search"
	"github.com/noelzubin/notes_browser/store"
)

var (
	matchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	staleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	whitespace = regexp.MustCompile(`\s{2,}|\t+`)
	newlines   = strings.NewReplacer("\r\n", " ↵ ", "\r", " ↵ ", "\n", " ↵ ")
)

// Note implements list.Item interface
type Note struct {
	path    string
	title   string
	content string
}

func (n Note) Title() string       { return n.title }
func (n Note) Description() string { return n.content }
func (n Note) FilterValue() string { return "" }

// Formats the content of a note for a single list line:
// removes newlines and collapses whitespace.
func formatContent(content string) string {
	s := stripansi.Strip(content)
	s = newlines.Replace(s)
	return whitespace.ReplaceAllString(s, " ")
}

// listingItems lists every note by title.
func listingItems(st *store.Store) []list.Item {
	return lo.Map(st.Sorted(), func(doc *document.Document, _ int) list.Item {
		title := doc.Title
		if stale, _ := st.Stale(doc.Path); stale {
			title += staleStyle.Render(" (stale)")
		}
		return Note{path: doc.Path, title: title, content: doc.Path}
	})
}

// resultItems lists search results with the match emphasised.
func resultItems(results []search.Result) []list.Item {
	return lo.Map(results, func(r search.Result, _ int) list.Item {
		ex := r.Excerpt
		excerpt := formatContent(ex.String())
		if ex.Found() {
			excerpt = formatContent(ex.Before) + matchStyle.Render(formatContent(ex.Match)) + formatContent(ex.After)
		}
		if r.TitleOnly {
			return Note{path: r.Path, title: r.Path, content: "§ " + excerpt}
		}
		return Note{path: r.Path, title: r.Path + " › " + formatContent(r.Section), content: excerpt}
	})
}
