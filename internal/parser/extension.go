package parser

import (
	"github.com/felo/mailparts/internal/mimetree"
)

// Extension handles one family of MIME types. Parse reports whether it
// handled the part; a handler that declines may have pushed error parts but
// nothing else. Extensions are shared by concurrent parses and must keep no per-parse
// state.
type Extension interface {
	Parse(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool
}

// ExtensionFunc adapts a function to the Extension interface.
type ExtensionFunc func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool

func (f ExtensionFunc) Parse(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
	return f(pc, part, id, out)
}

// ExtensionFlags describe how an extension's output is displayed.
type ExtensionFlags uint

const (
	// FlagInline means parts are shown inline unless the disposition says
	// otherwise.
	FlagInline ExtensionFlags = 1 << iota
	// FlagInlineDisposition means parts are shown inline whatever the
	// disposition says.
	FlagInlineDisposition
)

// Flagged is implemented by extensions with display flags.
type Flagged interface {
	Flags() ExtensionFlags
}

// InlineVetoer is implemented by extensions that refuse to show some parts
// inline, for example because they are too large.
type InlineVetoer interface {
	AllowInline(part *mimetree.Part) bool
}

func flagsOf(ext Extension) ExtensionFlags {
	if f, ok := ext.(Flagged); ok {
		return f.Flags()
	}
	return 0
}

// IsInline reports whether part is shown inline when handled by the first
// of extensions.
func IsInline(part *mimetree.Part, extensions []Extension) bool {
	if len(extensions) == 0 {
		return false
	}

	ext := extensions[0]
	if v, ok := ext.(InlineVetoer); ok && !v.AllowInline(part) {
		return false
	}

	flags := flagsOf(ext)
	if flags&FlagInlineDisposition != 0 {
		return true
	}

	switch part.Disposition() {
	case "inline":
		return true
	case "":
		return flags&FlagInline != 0
	default:
		return false
	}
}
