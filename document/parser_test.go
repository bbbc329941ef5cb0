package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TitleAndSections(t *testing.T) {
	doc, err := Parse("# Intro\n## First\nHello\n## Second\nWorld", "a.md")
	require.NoError(t, err)

	assert.Equal(t, "Intro", doc.Title)
	assert.Equal(t, "a.md", doc.Path)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, Section{Title: "First", Content: "Hello"}, doc.Sections[0])
	assert.Equal(t, Section{Title: "Second", Content: "World"}, doc.Sections[1])
}

func TestParse_ContentBeforeTitle(t *testing.T) {
	_, err := Parse("Hello\n# Intro", "a.md")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentBeforeTitle))

	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "a.md", se.Path)
	assert.Equal(t, 1, se.Line)
}

func TestParse_DuplicateTitle(t *testing.T) {
	_, err := Parse("# One\n## S\ntext\n# Two\n", "dup.md")

	assert.ErrorIs(t, err, ErrDuplicateTitle)
	assert.Contains(t, err.Error(), "dup.md:4")
}

func TestParse_ContentBeforeFirstSection(t *testing.T) {
	_, err := Parse("# Title\nstray paragraph\n## S\n", "a.md")

	assert.ErrorIs(t, err, ErrContentBeforeFirstSection)
	assert.False(t, errors.Is(err, ErrContentBeforeTitle))
}

func TestParse_SectionBeforeTitleWithoutFallback(t *testing.T) {
	_, err := Parse("## Orphan\ntext\n", "notes.md")

	assert.ErrorIs(t, err, ErrContentBeforeTitle)
}

func TestParse_MissingTitle(t *testing.T) {
	_, err := Parse("\n\n", "empty.md")

	assert.ErrorIs(t, err, ErrMissingTitle)
	assert.True(t, IsStructural(err))
}

func TestParse_FallbackTitle(t *testing.T) {
	p := Parser{FallbackTitle: true}

	t.Run("section without title", func(t *testing.T) {
		doc, err := p.Parse("## Orphan\ntext\n", "dir/journal.md")
		require.NoError(t, err)
		assert.Equal(t, "journal", doc.Title)
		assert.Equal(t, []string{"Orphan"}, doc.SectionTitles())
	})

	t.Run("empty note", func(t *testing.T) {
		doc, err := p.Parse("", "blank.md")
		require.NoError(t, err)
		assert.Equal(t, "blank", doc.Title)
		assert.Empty(t, doc.Sections)
	})

	t.Run("later title is a duplicate", func(t *testing.T) {
		_, err := p.Parse("## A\nx\n# Late\n", "late.md")
		assert.ErrorIs(t, err, ErrDuplicateTitle)
	})

	t.Run("content before anything is still rejected", func(t *testing.T) {
		_, err := p.Parse("text\n## A\n", "x.md")
		assert.ErrorIs(t, err, ErrContentBeforeTitle)
	})
}

func TestParse_Deterministic(t *testing.T) {
	inputs := []string{
		"# Intro\n## First\nHello\n## Second\nWorld",
		"# T\n\n## A\n- one\n- two\n\n```go\n# x\n```\n## B\n> quote\n",
		"Title\n=====\n\nSub\n---\nbody\n",
	}
	for _, in := range inputs {
		a, errA := Parse(in, "n.md")
		b, errB := Parse(in, "n.md")
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, a, b)
	}
}

func TestParse_SectionOrderFollowsSource(t *testing.T) {
	// Given: a note with section titles out of alphabetical order
	titles := []string{"zeta", "alpha", "mu", "beta", "omega"}
	var sb strings.Builder
	sb.WriteString("# Order\n")
	for i, title := range titles {
		sb.WriteString("## " + title + "\n")
		sb.WriteString(strings.Repeat("line\n", i))
	}

	// When: parsing
	doc, err := Parse(sb.String(), "order.md")

	// Then: sections keep source order
	require.NoError(t, err)
	assert.Equal(t, titles, doc.SectionTitles())
}

func TestParse_FencedCodeIsOpaque(t *testing.T) {
	in := "# T\n## Code\n```sh\n# not a title\n## not a section\n```\n## Next\nx\n"

	doc, err := Parse(in, "a.md")

	require.NoError(t, err)
	assert.Equal(t, []string{"Code", "Next"}, doc.SectionTitles())
	assert.Equal(t, "```sh\n# not a title\n## not a section\n```", doc.Sections[0].Content)
}

func TestParse_UnclosedFenceRunsToEnd(t *testing.T) {
	doc, err := Parse("# T\n## S\n~~~\n# inside\n## inside\n", "a.md")

	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "~~~\n# inside\n## inside", doc.Sections[0].Content)
}

func TestParse_ListItemsAreAtomic(t *testing.T) {
	in := "# T\n## List\n- item\n  ## indented, not a section\n- two\n\n  continued\n## Next\nbody\n"

	doc, err := Parse(in, "a.md")

	require.NoError(t, err)
	assert.Equal(t, []string{"List", "Next"}, doc.SectionTitles())
	assert.Equal(t, "- item\n  ## indented, not a section\n- two\n\n  continued", doc.Sections[0].Content)
	assert.Equal(t, "body", doc.Sections[1].Content)
}

func TestParse_SetextHeadings(t *testing.T) {
	in := "Intro\n=====\n\nFirst\n-----\nHello\n\nSecond\n---\nWorld\n"

	doc, err := Parse(in, "a.md")

	require.NoError(t, err)
	assert.Equal(t, "Intro", doc.Title)
	assert.Equal(t, []string{"First", "Second"}, doc.SectionTitles())
	assert.Equal(t, "Hello", doc.Sections[0].Content)
}

func TestParse_DeeperHeadingsAreContent(t *testing.T) {
	in := "# T\n## S\n### Detail\ntext\n#### More\n"

	doc, err := Parse(in, "a.md")

	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "### Detail\ntext\n#### More", doc.Sections[0].Content)
}

func TestParse_DeeperHeadingBeforeFirstSection(t *testing.T) {
	_, err := Parse("# T\n### Detail\n## S\n", "a.md")

	assert.ErrorIs(t, err, ErrContentBeforeFirstSection)
}

func TestParse_BlankLinesAreNotContent(t *testing.T) {
	in := "\n\n# T\n\n\n## S\n\n\ntext\n\nmore\n\n\n"

	doc, err := Parse(in, "a.md")

	require.NoError(t, err)
	assert.Equal(t, "text\n\nmore", doc.Sections[0].Content)
}

func TestParse_EmptySection(t *testing.T) {
	doc, err := Parse("# T\n## Empty\n## Full\nx", "a.md")

	require.NoError(t, err)
	assert.Equal(t, "", doc.Sections[0].Content)
	assert.Equal(t, "x", doc.Sections[1].Content)
}

func TestParse_HeadingSyntax(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		title string
	}{
		{"closing hashes", "# Title ##", "Title"},
		{"hash inside text", "# C# notes", "C# notes"},
		{"leading spaces", "   # Spaced", "Spaced"},
		{"trailing spaces", "# Trailing   ", "Trailing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.line+"\n## S\n", "a.md")
			require.NoError(t, err)
			assert.Equal(t, tt.title, doc.Title)
		})
	}
}

func TestParse_HashWithoutSpaceIsText(t *testing.T) {
	_, err := Parse("#hashtag\n# T\n", "a.md")

	assert.ErrorIs(t, err, ErrContentBeforeTitle)
}

func TestParse_WindowsLineEndings(t *testing.T) {
	doc, err := Parse("\ufeff# Intro\r\n## First\r\nHello\r\n\r\nWorld\r\n## Second\r\n", "a.md")

	require.NoError(t, err)
	assert.Equal(t, "Intro", doc.Title)
	assert.Equal(t, []string{"First", "Second"}, doc.SectionTitles())
	assert.Equal(t, "Hello\r\n\r\nWorld", doc.Sections[0].Content)
}

func TestParse_OldMacLineEndings(t *testing.T) {
	doc, err := Parse("# Intro\r## First\r\rHello\rWorld\r", "a.md")

	require.NoError(t, err)
	assert.Equal(t, []string{"First"}, doc.SectionTitles())
	assert.Equal(t, "Hello\rWorld", doc.Sections[0].Content)
}

func TestParse_HTMLCommentIsOpaque(t *testing.T) {
	doc, err := Parse("# T\n## S\n<!--\n# old title\n## old section\n-->\nafter\n", "p.md")

	require.NoError(t, err)
	assert.Equal(t, "T", doc.Title)
	assert.Equal(t, []string{"S"}, doc.SectionTitles())
	assert.Equal(t, "<!--\n# old title\n## old section\n-->\nafter", doc.Sections[0].Content)
}

func TestParse_HTMLBlocks(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		content string
	}{
		{
			name:    "comment on one line",
			body:    "<!-- # hidden -->\ntext\n",
			content: "<!-- # hidden -->\ntext",
		},
		{
			name:    "comment interrupts paragraph",
			body:    "text\n<!--\n# hidden\n-->\n",
			content: "text\n<!--\n# hidden\n-->",
		},
		{
			name:    "raw block until closing tag",
			body:    "<pre>\n# hidden\n\n## hidden\n</PRE>\n",
			content: "<pre>\n# hidden\n\n## hidden\n</PRE>",
		},
		{
			name:    "block tag until blank line",
			body:    "<div>\n# hidden\n</div>\n",
			content: "<div>\n# hidden\n</div>",
		},
		{
			name:    "lone tag until blank line",
			body:    "<custom-note class=\"x\">\n## hidden\n",
			content: "<custom-note class=\"x\">\n## hidden",
		},
		{
			name:    "unclosed comment runs to end",
			body:    "<!--\n# hidden\n## hidden\n",
			content: "<!--\n# hidden\n## hidden",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse("# T\n## S\n"+tt.body, "a.md")

			require.NoError(t, err)
			assert.Equal(t, []string{"S"}, doc.SectionTitles())
			assert.Equal(t, tt.content, doc.Sections[0].Content)
		})
	}
}

func TestParse_HTMLBlockEndsAtBlankLine(t *testing.T) {
	doc, err := Parse("# T\n## S\n<div>\nx\n\n## Next\ny\n", "a.md")

	require.NoError(t, err)
	assert.Equal(t, []string{"S", "Next"}, doc.SectionTitles())
	assert.Equal(t, "<div>\nx", doc.Sections[0].Content)
}

func TestParse_InlineTagIsParagraph(t *testing.T) {
	doc, err := Parse("# T\n## S\n<b>bold</b> text\n## Next\n", "a.md")

	require.NoError(t, err)
	assert.Equal(t, []string{"S", "Next"}, doc.SectionTitles())
	assert.Equal(t, "<b>bold</b> text", doc.Sections[0].Content)
}

func TestParse_QuoteAndRule(t *testing.T) {
	in := "# T\n## S\n> quoted\n> # not a title\n\n***\nafter\n"

	doc, err := Parse(in, "a.md")

	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "> quoted\n> # not a title\n\n***\nafter", doc.Sections[0].Content)
}

func TestParse_ParagraphEndsAtHeading(t *testing.T) {
	doc, err := Parse("# T\n## A\nline one\nline two\n## B\n", "a.md")

	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", doc.Sections[0].Content)
	assert.Equal(t, []string{"A", "B"}, doc.SectionTitles())
}

func TestParse_NoStateBetweenCalls(t *testing.T) {
	p := Parser{}

	_, err := p.Parse("# First\n## S\n", "one.md")
	require.NoError(t, err)

	// A second title in another note is not a duplicate of the first one.
	doc, err := p.Parse("# Second\n## S\n", "two.md")
	require.NoError(t, err)
	assert.Equal(t, "Second", doc.Title)
}

func TestDocument_Section(t *testing.T) {
	doc, err := Parse("# T\n## A\nx\n## B\ny\n", "a.md")
	require.NoError(t, err)

	s, ok := doc.Section(1)
	assert.True(t, ok)
	assert.Equal(t, "B", s.Title)

	_, ok = doc.Section(2)
	assert.False(t, ok)
	_, ok = doc.Section(-1)
	assert.False(t, ok)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "second level 1 heading", DuplicateTitle.String())
	assert.Equal(t, "unknown structural error", ErrorKind(99).String())
}
