package document

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
)

//go:embed style.css
var defaultStylesheet string

// Renderer turns a section into HTML. Implementations must be pure: the
// same input always gives the same output.
type Renderer interface {
	Render(title, content string) (string, error)
}

// HTMLRenderer renders sections with goldmark and prefixes every result
// with a fixed <style> block.
type HTMLRenderer struct {
	md     goldmark.Markdown
	prefix string
}

// NewHTMLRenderer returns a renderer using css as the stylesheet. An empty
// css selects the built-in one.
func NewHTMLRenderer(css string) *HTMLRenderer {
	if css == "" {
		css = defaultStylesheet
	}
	return &HTMLRenderer{
		md:     goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID())),
		prefix: fmt.Sprintf("<style type=\"text/css\">%s</style>", css),
	}
}

// NewHTMLRendererFromFile reads the stylesheet at path. An empty path
// selects the built-in stylesheet.
func NewHTMLRendererFromFile(path string) (*HTMLRenderer, error) {
	if path == "" {
		return NewHTMLRenderer(""), nil
	}
	css, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stylesheet: %w", err)
	}
	return NewHTMLRenderer(string(css)), nil
}

// Render renders the section heading together with its body so the
// heading gets an id to scroll to.
func (r *HTMLRenderer) Render(title, content string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(r.prefix)
	src := "## " + title + "\n\n" + content
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render section %q: %w", title, err)
	}
	return buf.String(), nil
}
