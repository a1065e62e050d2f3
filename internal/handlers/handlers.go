// Package handlers serves indexed messages over HTTP: JSON for metadata and
// part lists, HTML rendered by the formatter, and raw part content.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/felo/mailparts/internal/config"
	"github.com/felo/mailparts/internal/db"
	"github.com/felo/mailparts/internal/formatter"
	"github.com/felo/mailparts/internal/indexer"
	"github.com/felo/mailparts/internal/metrics"
	"github.com/felo/mailparts/internal/parser"
	"github.com/felo/mailparts/internal/scanner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	DB      *db.DB
	Config  *config.Config
	Scanner *scanner.Scanner
	// Parser renders messages on request. It should carry an attachment
	// loader so attachment downloads do not block on decoding.
	Parser   *parser.Parser
	Indexer  *indexer.Indexer
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db        *db.DB
	cfg       *config.Config
	scanner   *scanner.Scanner
	parser    *parser.Parser
	indexer   *indexer.Indexer
	formatter *formatter.Formatter
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	folder    *db.Folder

	// Parsed messages by row id
	cache *lru.Cache[int64, *parser.PartList]

	scan *ScanProgress
}

// New creates a new Handlers instance
func New(deps Deps) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	cache, err := lru.New[int64, *parser.PartList](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	h := &Handlers{
		db:       deps.DB,
		cfg:      cfg,
		scanner:  deps.Scanner,
		parser:   deps.Parser,
		indexer:  deps.Indexer,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		logger:   logger,
		folder:   db.NewFolder(deps.DB, filepath.Base(cfg.EmailsPath)),
		cache:    cache,
		scan:     &ScanProgress{},
	}
	h.formatter = formatter.New(formatter.Options{
		Logger:        logger,
		MarkCitations: true,
		PartURL:       rawPartURL,
	})
	return h, nil
}

// rawPartURL addresses the decoded content of a part, used for inline
// images and attachment links.
func rawPartURL(pl *parser.PartList, id parser.PartID) string {
	return "/messages/" + pl.MessageUID() + "/raw/" + id.String()
}

// Routes builds the router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}", h.GetMessage)
		r.Get("/messages/{id}/dump", h.DumpMessage)
		r.Get("/search", h.Search)
		r.Get("/stats", h.Stats)
		r.Get("/keys", h.ListKeys)
		r.Post("/scan", h.Scan)
		r.Get("/scan", h.ScanStatus)
		r.Get("/scan/progress", h.ScanProgressSSE)
	})

	r.Get("/messages/{id}", h.RenderMessage)
	r.Get("/messages/{id}/parts/{part}", h.RenderPart)
	r.Get("/messages/{id}/raw/{part}", h.RawPart)

	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// partList returns the parsed message with the given row id, parsing it on
// a cache miss.
func (h *Handlers) partList(ctx context.Context, id int64) (*db.Message, *parser.PartList, error) {
	m, err := h.db.GetMessage(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if pl, ok := h.cache.Get(id); ok {
		if h.metrics != nil {
			h.metrics.CacheHit()
		}
		return m, pl, nil
	}
	if h.metrics != nil {
		h.metrics.CacheMiss()
	}

	if _, err := h.db.ResolvePath(m.FilePath); err != nil {
		return nil, nil, err
	}
	msg, err := h.scanner.Message(m.FilePath, m.Position)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load message %d: %w", id, err)
	}

	pl, err := h.parser.Parse(ctx, msg, parser.ParseOptions{Folder: h.folder, UID: m.UID()})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse message %d: %w", id, err)
	}

	// A cancelled request leaves a truncated list that must not be reused.
	if ctx.Err() == nil {
		h.cache.Add(id, pl)
	}
	return m, pl, nil
}

// messageID reads the {id} route parameter.
func messageID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err to a status code and writes it as JSON.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, parser.ErrPartNotFound):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrPathTraversal):
		status = http.StatusForbidden
	case errors.Is(err, strconv.ErrSyntax), errors.Is(err, strconv.ErrRange):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}
