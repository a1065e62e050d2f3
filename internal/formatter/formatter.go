// Package formatter renders parsed part lists as HTML.
package formatter

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"

	"github.com/felo/mailparts/internal/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Mode selects how a part list is written.
type Mode int

const (
	// ModeNormal renders everything that is not hidden.
	ModeNormal Mode = iota
	// ModePrinting additionally skips parts that are not printable.
	ModePrinting
	// ModeSource writes the raw message.
	ModeSource
)

func (m Mode) String() string {
	switch m {
	case ModePrinting:
		return "printing"
	case ModeSource:
		return "source"
	}
	return "normal"
}

// ParseMode maps a query string value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return ModeNormal, nil
	case "print", "printing":
		return ModePrinting, nil
	case "source", "raw":
		return ModeSource, nil
	}
	return ModeNormal, fmt.Errorf("unknown mode %q", s)
}

var ErrNoRenderer = errors.New("no renderer for part")

// Options configure a Formatter.
type Options struct {
	Logger *slog.Logger

	// Charset, when set, overrides the charset declared by text parts.
	Charset string
	// DefaultCharset is used for text without a declared charset that can
	// not be detected either.
	DefaultCharset string

	// MarkCitations wraps quoted lines of plain text.
	MarkCitations bool

	// PartURL returns the address images and attachments link to. Without
	// it images are left as cid: references and attachments are not
	// linked.
	PartURL func(pl *parser.PartList, id parser.PartID) string
}

type renderFunc func(f *Formatter, rc *renderContext, p *parser.Part) error

type renderContext struct {
	ctx  context.Context
	w    io.Writer
	pl   *parser.PartList
	mode Mode
}

// Formatter writes part lists. It holds no per-call state and is safe for
// concurrent use.
type Formatter struct {
	opts      Options
	logger    *slog.Logger
	policy    *bluemonday.Policy
	markdown  goldmark.Markdown
	renderers map[string]renderFunc
}

// New creates a Formatter with the built-in renderers.
func New(opts Options) *Formatter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultCharset == "" {
		opts.DefaultCharset = "iso-8859-1"
	}

	f := &Formatter{
		opts:     opts,
		logger:   logger,
		policy:   newPolicy(),
		markdown: newMarkdown(),
	}
	f.renderers = map[string]renderFunc{
		parser.MimeHeaders:      renderHeaders,
		parser.MimeSecureButton: renderSecureButton,
		parser.MimeError:        renderError,
		parser.MimeSource:       renderSource,
		parser.MimeRFC822End:    renderRFC822End,
		"message/rfc822":        renderRFC822,
		"message/global":        renderRFC822,
		"message/news":          renderRFC822,
		"text/plain":            renderTextPlain,
		"text/html":             renderTextHTML,
		"text/markdown":         renderMarkdown,
		"text/x-markdown":       renderMarkdown,
		"text/enriched":         renderEnriched,
		"text/richtext":         renderEnriched,
		"text/*":                renderTextPlain,
		"message/*":             renderTextPlain,
		"image/*":               renderImage,
	}
	return f
}

func (f *Formatter) lookup(mimeType string) renderFunc {
	mimeType = strings.ToLower(mimeType)
	if fn, ok := f.renderers[mimeType]; ok {
		return fn
	}
	if major, _, ok := strings.Cut(mimeType, "/"); ok {
		return f.renderers[major+"/*"]
	}
	return nil
}

const (
	htmlHeader = "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<meta name=\"generator\" content=\"mailparts\">\n</head>\n<body>\n"
	htmlFooter = "</body></html>"
)

// Format writes the whole part list as an HTML document. Hidden parts are
// skipped unless an attachment shown inline carries them, and in printing
// mode so are parts that are not printable. A part
// no renderer accepts is written as source; for the root part that is the
// whole message and nothing more is written.
func (f *Formatter) Format(ctx context.Context, w io.Writer, pl *parser.PartList, mode Mode) error {
	if _, err := io.WriteString(w, htmlHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Carriers of attachments shown inline are written after the
	// attachment, even though they are hidden.
	expanded := map[parser.PartID]bool{}

	parts := pl.Parts()
	for i := 0; i < len(parts); i++ {
		if ctx.Err() != nil {
			break
		}
		p := parts[i]

		if p.IsHidden && !p.IsError && !expanded[p.ID] {
			if p.ID.IsEmbeddedStart() {
				i = rfc822End(parts, i)
			}
			continue
		}

		if mode == ModePrinting && !p.IsPrintable {
			continue
		}

		ok := false
		if mode != ModeSource {
			var err error
			ok, err = f.FormatAs(ctx, w, pl, p, p.MimeType, mode)
			if err != nil {
				return err
			}
		}
		if ok {
			if info := p.Attachment; info != nil && info.Shown && info.PartIDWithAttachment != "" {
				expanded[info.PartIDWithAttachment] = true
			}
			continue
		}

		// Headers are never shown as source.
		if p.ID.HasSuffix(".headers") {
			continue
		}

		if _, err := f.FormatAs(ctx, w, pl, p, parser.MimeSource, mode); err != nil {
			return err
		}
		if p.ID == parser.RootID {
			break
		}
		if p.ID.IsEmbeddedStart() {
			i = rfc822End(parts, i)
		}
	}

	if _, err := io.WriteString(w, htmlFooter); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}
	return nil
}

// rfc822End returns the index of the end marker matching the embedded
// message started at parts[start], or the last index when it is missing.
func rfc822End(parts []*parser.Part, start int) int {
	end := parts[start].ID.Child("end")
	for i := start + 1; i < len(parts); i++ {
		if parts[i].ID == end {
			return i
		}
	}
	return len(parts) - 1
}

// FormatAs renders a single part as mimeType. It reports false when no
// renderer exists for the type.
func (f *Formatter) FormatAs(ctx context.Context, w io.Writer, pl *parser.PartList, p *parser.Part, mimeType string, mode Mode) (bool, error) {
	rc := &renderContext{ctx: ctx, w: w, pl: pl, mode: mode}

	var fn renderFunc
	switch {
	case p.IsAttachment && mimeType == p.MimeType:
		fn = renderAttachment
	case p.ID == parser.RootID && mimeType != parser.MimeSource:
		// The root only frames the parts following it.
		return true, nil
	default:
		fn = f.lookup(mimeType)
	}
	if fn == nil {
		return false, nil
	}

	if err := fn(f, rc, p); err != nil {
		if errors.Is(err, ErrNoRenderer) {
			return false, nil
		}
		return false, fmt.Errorf("failed to render %s: %w", p.ID, err)
	}
	return true, nil
}

// FormatPart renders the part with the given id as a fragment.
func (f *Formatter) FormatPart(ctx context.Context, w io.Writer, pl *parser.PartList, id parser.PartID, mode Mode) error {
	p, ok := pl.Find(id)
	if !ok {
		return fmt.Errorf("part %s: %w", id, parser.ErrPartNotFound)
	}

	mimeType := p.MimeType
	if mode == ModeSource {
		mimeType = parser.MimeSource
	}
	ok, err := f.FormatAs(ctx, w, pl, p, mimeType, mode)
	if err != nil {
		return err
	}
	if !ok {
		_, err = f.FormatAs(ctx, w, pl, p, parser.MimeSource, mode)
	}
	return err
}

func write(w io.Writer, parts ...string) error {
	for _, s := range parts {
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func attr(s string) string {
	return html.EscapeString(s)
}
