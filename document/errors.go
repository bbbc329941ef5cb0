package document

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a note was rejected.
type ErrorKind int

const (
	// DuplicateTitle is a second level-1 heading.
	DuplicateTitle ErrorKind = iota + 1
	// ContentBeforeTitle is content (or a section) before the level-1 heading.
	ContentBeforeTitle
	// ContentBeforeFirstSection is content between the title and the first section.
	ContentBeforeFirstSection
	// MissingTitle is a note without any level-1 heading.
	MissingTitle
)

func (k ErrorKind) String() string {
	switch k {
	case DuplicateTitle:
		return "second level 1 heading"
	case ContentBeforeTitle:
		return "content without level 1 heading"
	case ContentBeforeFirstSection:
		return "content under level 1 heading"
	case MissingTitle:
		return "no level 1 heading"
	default:
		return "unknown structural error"
	}
}

// StructuralError is returned by Parse for a malformed note. The whole
// note is rejected, nothing of it is kept.
type StructuralError struct {
	Kind ErrorKind
	Path string
	Line int // 1-based line of the offending block, 0 when not applicable.
}

func (e *StructuralError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Kind)
}

// Is reports whether target is a StructuralError of the same kind, so
// errors.Is(err, ErrDuplicateTitle) works regardless of path and line.
func (e *StructuralError) Is(target error) bool {
	t, ok := target.(*StructuralError)
	return ok && t.Kind == e.Kind
}

var (
	ErrDuplicateTitle            = &StructuralError{Kind: DuplicateTitle}
	ErrContentBeforeTitle        = &StructuralError{Kind: ContentBeforeTitle}
	ErrContentBeforeFirstSection = &StructuralError{Kind: ContentBeforeFirstSection}
	ErrMissingTitle              = &StructuralError{Kind: MissingTitle}
)

// ErrNoBlockRule means the block scanner found text no rule accepts. It is
// a bug in the scanner, not in the note.
var ErrNoBlockRule = errors.New("no block rule matches")

// IsStructural reports whether err rejects a note for its structure.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
