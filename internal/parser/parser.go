// Package parser turns a MIME tree into a flat, ordered list of display
// parts by dispatching every node to the extensions registered for its
// type.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felo/mailparts/internal/attachment"
	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/google/uuid"
)

var (
	ErrNilMessage   = errors.New("parser: nil message")
	ErrTokenInUse   = errors.New("parser: token already in use by another parse")
	ErrPartNotFound = errors.New("parser: part not found")
)

// Options configure a Parser.
type Options struct {
	Logger *slog.Logger

	// TrustStore is asked whether Autocrypt keys are already known.
	TrustStore crypto.TrustStore
	PGP        crypto.PGPContext
	SMIME      crypto.SMIMEContext

	// Loader materializes attachments after the parse. Without one,
	// attachments load on first access.
	Loader *attachment.Loader

	Observer Observer

	// PreferPlain shows text/plain alternatives instead of richer ones.
	PreferPlain bool

	// Debug dumps every finished part list to DebugOutput (stdout when nil).
	Debug       bool
	DebugOutput io.Writer
}

// ParseOptions describe one message to parse.
type ParseOptions struct {
	Folder Folder
	UID    string

	// Token identifies the parse for PartListFor. A random one is used
	// when empty.
	Token string

	// AsSource parses the message for the raw source view.
	AsSource bool
}

// Result is delivered by ParseAsync.
type Result struct {
	PartList *PartList
	Err      error
}

// Parser runs parses against a frozen registry. It is safe for concurrent
// use.
type Parser struct {
	registry *Registry
	opts     Options
	logger   *slog.Logger
	observer Observer

	lastError atomic.Int64

	mu      sync.Mutex
	ongoing map[string]*PartList
}

// New creates a parser. The registry is frozen.
func New(reg *Registry, opts Options) *Parser {
	reg.Freeze()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Parser{
		registry: reg,
		opts:     opts,
		logger:   logger,
		observer: observer,
		ongoing:  make(map[string]*PartList),
	}
}

// Registry returns the parser's extension registry.
func (p *Parser) Registry() *Registry {
	return p.registry
}

// PartListFor returns the list of the in-flight parse running under token.
func (p *Parser) PartListFor(token string) (*PartList, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.ongoing[token]
	return pl, ok
}

func (p *Parser) track(token string, pl *PartList) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ongoing[token]; ok {
		return ErrTokenInUse
	}
	p.ongoing[token] = pl
	return nil
}

func (p *Parser) untrack(token string) {
	p.mu.Lock()
	delete(p.ongoing, token)
	p.mu.Unlock()
}

// Parse converts msg into a part list. Content problems never fail the
// parse; they show up as error parts. A cancelled ctx stops the walk and the
// parts produced so far are returned.
func (p *Parser) Parse(ctx context.Context, msg *mimetree.Part, opts ParseOptions) (*PartList, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	token := opts.Token
	if token == "" {
		token = uuid.NewString()
	}

	started := time.Now()
	pl := newPartList(msg, opts.Folder, opts.UID, token)

	if err := p.track(token, pl); err != nil {
		return nil, err
	}
	defer p.untrack(token)

	pc := &Context{
		ctx:    ctx,
		parser: p,
		list:   pl,
		logger: p.logger.With("token", token),
	}

	p.extractAutocryptKeys(pc, msg)

	rootType := MimeMessage
	if opts.AsSource {
		rootType = MimeSource
	}
	handlers := p.registry.LookupExact(rootType)
	if len(handlers) == 0 && !opts.AsSource {
		handlers = p.registry.LookupExact("message/*")
	}
	if len(handlers) == 0 {
		panic(fmt.Sprintf("parser: no extension registered for %s", rootType))
	}

	// The root part goes in first, before any handler runs.
	pl.add(NewPart(msg, RootID, ""))

	var queue Queue
	for _, ext := range handlers {
		if pc.Err() != nil {
			break
		}
		if ext.Parse(pc, msg, RootID, &queue) {
			break
		}
	}

	for _, part := range moveSecurityBeforeHeaders(queue.Parts(), pc.logger) {
		pl.add(part)
	}
	pl.freeze()

	cancelled := ctx.Err() != nil
	p.observer.ParseFinished(time.Since(started), pl.Len(), cancelled)

	if p.opts.Debug {
		p.dump(pl)
	}

	return pl, nil
}

// ParseAsync runs Parse on its own goroutine. The channel receives exactly
// one Result and is then closed.
func (p *Parser) ParseAsync(ctx context.Context, msg *mimetree.Part, opts ParseOptions) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		pl, err := p.Parse(ctx, msg, opts)
		ch <- Result{PartList: pl, Err: err}
	}()
	return ch
}

func (p *Parser) dump(pl *PartList) {
	w := p.opts.DebugOutput
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w, "Parser finished with PartList:")
	if err := pl.Dump(w); err != nil {
		p.logger.Warn("failed to dump part list", "error", err)
	}
}
