package document

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Block patterns, matched against a single line without its newline.
var (
	atxHeadingPattern = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*$`)
	setextPattern     = regexp.MustCompile(`^ {0,3}(=+|-+)[ \t]*$`)
	fencePattern      = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})(.*)$")
	rulePattern       = regexp.MustCompile(`^ {0,3}(?:(?:\*[ \t]*){3,}|(?:-[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	quotePattern      = regexp.MustCompile(`^ {0,3}>`)
	listItemPattern   = regexp.MustCompile(`^ {0,3}(?:[*+-]|\d{1,9}[.)])(?:[ \t]|$)`)

	htmlRawPattern   = regexp.MustCompile(`(?i)^ {0,3}<(script|pre|style|textarea)(?:[ \t>]|$)`)
	htmlBlockPattern = regexp.MustCompile(`(?i)^ {0,3}</?(?:address|article|aside|base|basefont|blockquote|body|caption|center|col|colgroup|dd|details|dialog|dir|div|dl|dt|fieldset|figcaption|figure|footer|form|frame|frameset|h[1-6]|head|header|hr|html|iframe|legend|li|link|main|menu|menuitem|nav|noframes|ol|optgroup|option|p|param|search|section|summary|table|tbody|td|tfoot|th|thead|title|tr|track|ul)(?:[ \t>]|/>|$)`)
	htmlTagPattern   = regexp.MustCompile(`^ {0,3}(?:<[A-Za-z][A-Za-z0-9-]*(?:[ \t]+[A-Za-z_:][\w.:-]*(?:[ \t]*=[ \t]*(?:[^\s"'=<>]+|'[^']*'|"[^"]*"))?)*[ \t]*/?>|</[A-Za-z][A-Za-z0-9-]*[ \t]*>)[ \t]*$`)
)

type blockKind int

const (
	blankBlock blockKind = iota
	headingBlock
	fenceBlock
	htmlBlock
	ruleBlock
	quoteBlock
	listBlock
	paragraphBlock
)

// ruleOrder is the order blocks are tried at each position. Headings come
// before every generic rule and paragraph, which accepts any non-blank
// line, comes last.
var ruleOrder = []blockKind{blankBlock, headingBlock, fenceBlock, htmlBlock, ruleBlock, quoteBlock, listBlock, paragraphBlock}

type block struct {
	kind  blockKind
	level int    // heading level, headingBlock only
	text  string // heading text, headingBlock only
	src   string // source consumed by the block, newlines included
	line  int
}

// scanner splits text into blocks. Each block consumes whole lines and the
// scanner never looks at consumed lines again.
type scanner struct {
	lines []string // with line ending, except possibly the last
	pos   int
}

// newScanner splits text after every \n, \r\n or lone \r. The line endings
// stay in the block sources so section bodies keep the file's bytes.
func newScanner(text string) *scanner {
	var lines []string
	for text != "" {
		i := strings.IndexAny(text, "\r\n")
		if i < 0 {
			lines = append(lines, text)
			break
		}
		end := i + 1
		if text[i] == '\r' && end < len(text) && text[end] == '\n' {
			end++
		}
		lines = append(lines, text[:end])
		text = text[end:]
	}
	return &scanner{lines: lines}
}

func (s *scanner) done() bool {
	return s.pos >= len(s.lines)
}

func (s *scanner) line(i int) string {
	return strings.TrimRight(s.lines[i], "\r\n")
}

func (s *scanner) next() (block, error) {
	for _, kind := range ruleOrder {
		b, n := s.match(kind)
		if n == 0 {
			continue
		}
		b.kind = kind
		b.line = s.pos + 1
		b.src = strings.Join(s.lines[s.pos:s.pos+n], "")
		s.pos += n
		return b, nil
	}
	return block{}, fmt.Errorf("line %d: %w: %q", s.pos+1, ErrNoBlockRule, s.line(s.pos))
}

// match reports how many lines starting at s.pos form a block of kind, 0
// if the kind does not start here.
func (s *scanner) match(kind blockKind) (block, int) {
	l := s.line(s.pos)
	switch kind {
	case blankBlock:
		i := s.pos
		for i < len(s.lines) && isBlank(s.line(i)) {
			i++
		}
		return block{}, i - s.pos

	case headingBlock:
		if m := atxHeadingPattern.FindStringSubmatch(l); m != nil {
			return block{level: len(m[1]), text: strings.TrimSpace(m[2])}, 1
		}
		if s.setextAt(s.pos) {
			level := 2
			if strings.Contains(s.line(s.pos+1), "=") {
				level = 1
			}
			return block{level: level, text: strings.TrimSpace(l)}, 2
		}
		return block{}, 0

	case fenceBlock:
		m := fencePattern.FindStringSubmatch(l)
		if m == nil || (m[1][0] == '`' && strings.Contains(m[2], "`")) {
			return block{}, 0
		}
		i := s.pos + 1
		for i < len(s.lines) {
			closed := isFenceClose(s.line(i), m[1][0], len(m[1]))
			i++
			if closed {
				break
			}
		}
		return block{}, i - s.pos

	case htmlBlock:
		closer, ok := htmlStart(l)
		if !ok && !htmlTagPattern.MatchString(l) {
			return block{}, 0
		}
		i := s.pos
		if closer == "" {
			for i < len(s.lines) && !isBlank(s.line(i)) {
				i++
			}
			return block{}, i - s.pos
		}
		for i < len(s.lines) {
			closed := strings.Contains(strings.ToLower(s.line(i)), closer)
			i++
			if closed {
				break
			}
		}
		return block{}, i - s.pos

	case ruleBlock:
		if rulePattern.MatchString(l) {
			return block{}, 1
		}
		return block{}, 0

	case quoteBlock:
		if !quotePattern.MatchString(l) {
			return block{}, 0
		}
		i := s.pos + 1
		for i < len(s.lines) && !isBlank(s.line(i)) && !interrupts(s.line(i)) {
			i++
		}
		return block{}, i - s.pos

	case listBlock:
		if !listItemPattern.MatchString(l) {
			return block{}, 0
		}
		return block{}, s.listEnd(s.pos+1) - s.pos

	case paragraphBlock:
		if isBlank(l) {
			return block{}, 0
		}
		i := s.pos + 1
		for i < len(s.lines) {
			next := s.line(i)
			if isBlank(next) || interrupts(next) || quotePattern.MatchString(next) || s.setextAt(i) {
				break
			}
			i++
		}
		return block{}, i - s.pos
	}
	return block{}, 0
}

// listEnd returns the index of the first line after the list that
// continues at line i. Indented lines always belong to the list, so they
// are never read as headings.
func (s *scanner) listEnd(i int) int {
	for i < len(s.lines) {
		l := s.line(i)
		switch {
		case isBlank(l):
			j := i
			for j < len(s.lines) && isBlank(s.line(j)) {
				j++
			}
			if j == len(s.lines) || !(isIndented(s.line(j)) || listItemPattern.MatchString(s.line(j))) {
				return i
			}
			i = j
		case isIndented(l), listItemPattern.MatchString(l):
			i++
		case interrupts(l), quotePattern.MatchString(l):
			return i
		default:
			i++
		}
	}
	return i
}

// setextAt reports whether lines i and i+1 form a setext heading.
func (s *scanner) setextAt(i int) bool {
	if i+1 >= len(s.lines) {
		return false
	}
	l := s.line(i)
	if isBlank(l) || isIndented4(l) || interrupts(l) || quotePattern.MatchString(l) || listItemPattern.MatchString(l) {
		return false
	}
	return setextPattern.MatchString(s.line(i + 1))
}

// interrupts reports whether l starts a block that ends a paragraph.
func interrupts(l string) bool {
	if _, ok := htmlStart(l); ok {
		return true
	}
	return atxHeadingPattern.MatchString(l) || fencePattern.MatchString(l) || rulePattern.MatchString(l)
}

// htmlStart reports whether l opens an HTML block and returns the lowercase
// marker that closes it. An empty marker means the block ends before the
// next blank line. A block whose marker never shows up runs to the end.
func htmlStart(l string) (string, bool) {
	t := strings.TrimLeft(l, " ")
	if len(l)-len(t) > 3 || !strings.HasPrefix(t, "<") {
		return "", false
	}
	if m := htmlRawPattern.FindStringSubmatch(l); m != nil {
		return "</" + strings.ToLower(m[1]) + ">", true
	}
	switch {
	case strings.HasPrefix(t, "<!--"):
		return "-->", true
	case strings.HasPrefix(t, "<?"):
		return "?>", true
	case strings.HasPrefix(t, "<![CDATA["):
		return "]]>", true
	case len(t) > 2 && t[1] == '!' && isASCIILetter(t[2]):
		return ">", true
	}
	return "", htmlBlockPattern.MatchString(l)
}

func isASCIILetter(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isFenceClose(l string, c byte, size int) bool {
	t := strings.TrimLeft(l, " ")
	if len(l)-len(t) > 3 {
		return false
	}
	n := 0
	for n < len(t) && t[n] == c {
		n++
	}
	return n >= size && strings.TrimSpace(t[n:]) == ""
}

func isBlank(l string) bool {
	return strings.TrimSpace(l) == ""
}

func isIndented(l string) bool {
	return strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t")
}

func isIndented4(l string) bool {
	return strings.HasPrefix(l, "    ") || strings.HasPrefix(l, "\t")
}

// Parser turns note text into a Document. The zero value rejects notes
// without a level-1 heading.
type Parser struct {
	// FallbackTitle names a note without a level-1 heading after its file
	// name minus the extension, instead of rejecting it.
	FallbackTitle bool
}

// Parse parses raw with the default Parser.
func Parse(raw, path string) (*Document, error) {
	return Parser{}.Parse(raw, path)
}

// Parse builds the Document for raw. path is only used for error messages
// and the fallback title. Any *StructuralError rejects the whole note.
func (p Parser) Parse(raw, path string) (*Document, error) {
	st := &parseState{path: path, fallback: p.FallbackTitle}
	sc := newScanner(strings.TrimPrefix(raw, "\ufeff"))
	for !sc.done() {
		b, err := sc.next()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := st.add(b); err != nil {
			return nil, err
		}
	}
	return st.finish()
}

// parseState is the accumulation target of one Parse call.
type parseState struct {
	path     string
	fallback bool

	hasTitle bool
	title    string
	sections []Section
	bodies   []*strings.Builder
}

func (st *parseState) add(b block) error {
	switch b.kind {
	case headingBlock:
		switch b.level {
		case 1:
			if st.hasTitle {
				return st.fail(DuplicateTitle, b)
			}
			st.title, st.hasTitle = b.text, true
			return nil
		case 2:
			if !st.hasTitle {
				if !st.fallback {
					return st.fail(ContentBeforeTitle, b)
				}
				st.title, st.hasTitle = fallbackTitle(st.path), true
			}
			st.sections = append(st.sections, Section{Title: b.text})
			st.bodies = append(st.bodies, &strings.Builder{})
			return nil
		default:
			return st.addContent(b)
		}
	case blankBlock:
		if len(st.bodies) > 0 {
			st.bodies[len(st.bodies)-1].WriteString(b.src)
		}
		return nil
	case fenceBlock, htmlBlock, ruleBlock, quoteBlock, listBlock, paragraphBlock:
		return st.addContent(b)
	default:
		return fmt.Errorf("%s: line %d: %w: block kind %d", st.path, b.line, ErrNoBlockRule, b.kind)
	}
}

func (st *parseState) addContent(b block) error {
	if !st.hasTitle {
		return st.fail(ContentBeforeTitle, b)
	}
	if len(st.bodies) == 0 {
		return st.fail(ContentBeforeFirstSection, b)
	}
	st.bodies[len(st.bodies)-1].WriteString(b.src)
	return nil
}

func (st *parseState) fail(kind ErrorKind, b block) error {
	return &StructuralError{Kind: kind, Path: st.path, Line: b.line}
}

func (st *parseState) finish() (*Document, error) {
	if !st.hasTitle {
		if !st.fallback {
			return nil, &StructuralError{Kind: MissingTitle, Path: st.path}
		}
		st.title = fallbackTitle(st.path)
	}
	sections := make([]Section, len(st.sections))
	for i, s := range st.sections {
		s.Content = trimBody(st.bodies[i].String())
		sections[i] = s
	}
	return &Document{Title: st.title, Sections: sections, Path: st.path}, nil
}

func fallbackTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// trimBody drops blank lines around a section body. Indentation of the
// first content line is kept.
func trimBody(s string) string {
	for _, l := range newScanner(s).lines {
		if !isBlank(l) {
			break
		}
		s = s[len(l):]
	}
	return strings.TrimRight(s, " \t\r\n")
}
