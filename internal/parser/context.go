package parser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/mimetree"
)

// Context is the state of one parse, handed to every extension call.
type Context struct {
	ctx    context.Context
	parser *Parser
	list   *PartList
	logger *slog.Logger
}

// Context returns the parse's context.Context.
func (pc *Context) Context() context.Context {
	return pc.ctx
}

// Err is non-nil once the parse has been cancelled.
func (pc *Context) Err() error {
	return pc.ctx.Err()
}

// Parser returns the engine running the parse.
func (pc *Context) Parser() *Parser {
	return pc.parser
}

// PartList returns the list being built. Its parts are only added once the
// walk completes.
func (pc *Context) PartList() *PartList {
	return pc.list
}

func (pc *Context) Logger() *slog.Logger {
	return pc.logger
}

// PGP returns the configured OpenPGP provider, or nil.
func (pc *Context) PGP() crypto.PGPContext {
	return pc.parser.opts.PGP
}

// SMIME returns the configured S/MIME provider, or nil.
func (pc *Context) SMIME() crypto.SMIMEContext {
	return pc.parser.opts.SMIME
}

// PreferPlain reports whether text/plain wins over richer alternatives.
func (pc *Context) PreferPlain() bool {
	return pc.parser.opts.PreferPlain
}

// Handlers returns the extensions registered for mimeType, without the
// fallback bucket.
func (pc *Context) Handlers(mimeType string) []Extension {
	return pc.parser.registry.LookupSpecific(mimeType)
}

// ParsePart dispatches part by its own media type.
func (pc *Context) ParsePart(part *mimetree.Part, id PartID, out *Queue) bool {
	return pc.ParsePartAs(part, id, part.MediaType(), out)
}

// ParsePartAs dispatches part as mimeType. Handlers are tried in order until
// one accepts. When nothing at all is registered for the type the part is
// wrapped as an attachment. Once the parse is cancelled no handler is
// invoked and the part counts as handled, so callers do not fall back.
func (pc *Context) ParsePartAs(part *mimetree.Part, id PartID, mimeType string, out *Queue) bool {
	if pc.Err() != nil {
		return true
	}

	exts := pc.parser.registry.Lookup(mimeType)
	if len(exts) == 0 {
		pc.WrapAsAttachment(part, id, WrapFlagNone, out)
		return true
	}

	for _, ext := range exts {
		if pc.Err() != nil {
			return true
		}
		if ext.Parse(pc, part, id, out) {
			return true
		}
	}

	return false
}

// Error pushes a synthetic error part carrying the formatted message.
func (pc *Context) Error(out *Queue, format string, args ...any) *Part {
	msg := fmt.Sprintf(format, args...)
	n := pc.parser.lastError.Add(1)

	source := mimetree.NewText(MimeError, map[string]string{"charset": "utf-8"}, []byte(msg))
	p := NewPart(source, PartID(fmt.Sprintf("%s%d", errorPrefix, n)), MimeError)
	p.IsPrintable = false
	p.IsError = true
	p.Text = msg

	pc.logger.Debug("error part", "id", p.ID, "message", msg)
	pc.parser.observer.ErrorPart()

	out.Push(p)
	return p
}

// SetProtectedSubject records the subject found in encrypted protected
// headers and stores it in the folder when the folder supports it.
func (pc *Context) SetProtectedSubject(subject string) {
	pc.list.setSubject(subject)

	updater, ok := pc.list.folder.(SubjectUpdater)
	if !ok || pc.list.uid == "" {
		return
	}
	if err := updater.UpdateSubject(pc.ctx, pc.list.uid, subject); err != nil {
		pc.logger.Warn("failed to update protected subject", "uid", pc.list.uid, "error", err)
	}
}
