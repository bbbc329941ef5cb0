// Package document holds the parsed form of a note and the parser that
// builds it from markdown.
//
// A note is one level-1 heading (the title) followed by any number of
// level-2 headings (sections). Everything else in the file belongs to the
// section above it.
package document

import "time"

// Document is a parsed note. Values returned by Parse are never modified
// afterwards; a changed file produces a new Document.
type Document struct {
	Title    string    // Text of the level-1 heading.
	Sections []Section // In the order they appear in the file.
	ModTime  time.Time // Last observed modification time of the file.
	Path     string    // Identity of the note, relative to the notes root.
}

// Section is the part of a note between a level-2 heading and the next
// heading of level 1 or 2.
type Section struct {
	Title   string // Text of the level-2 heading.
	Content string // Markdown body, verbatim including its line endings.
	HTML    string // Content rendered by a Renderer, empty until Render.
}

// SectionTitles returns the section titles in document order.
func (d *Document) SectionTitles() []string {
	titles := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		titles[i] = s.Title
	}
	return titles
}

// Section returns the section at position i.
func (d *Document) Section(i int) (Section, bool) {
	if i < 0 || i >= len(d.Sections) {
		return Section{}, false
	}
	return d.Sections[i], true
}

// Render returns a copy of d with every section's HTML produced from its
// Content. d itself is left untouched.
func (d *Document) Render(r Renderer) (*Document, error) {
	out := *d
	out.Sections = make([]Section, len(d.Sections))
	for i, s := range d.Sections {
		html, err := r.Render(s.Title, s.Content)
		if err != nil {
			return nil, err
		}
		s.HTML = html
		out.Sections[i] = s
	}
	return &out, nil
}
