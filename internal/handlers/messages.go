package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/db"
	"github.com/felo/mailparts/internal/formatter"
	"github.com/felo/mailparts/internal/parser"
	"github.com/go-chi/chi/v5"
)

const defaultLimit = 50

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = defaultLimit
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type listResponse struct {
	Total    int           `json:"total"`
	Messages []*db.Message `json:"messages"`
}

// ListMessages lists indexed messages, newest first
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	total, err := h.db.CountMessages(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	messages, err := h.db.ListMessages(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*db.Message{}
	}

	h.writeJSON(w, http.StatusOK, listResponse{Total: total, Messages: messages})
}

type messageResponse struct {
	Message          *db.Message           `json:"message"`
	Parts            []*parser.Part        `json:"parts"`
	Security         crypto.Flags          `json:"security"`
	ProtectedSubject string                `json:"protected_subject,omitempty"`
	AutocryptKeys    []crypto.AutocryptKey `json:"autocrypt_keys,omitempty"`
}

// GetMessage returns the metadata and the live part list of a message
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	m, pl, err := h.partList(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{
		Message:          m,
		Parts:            pl.Parts(),
		Security:         pl.ValidityFlags(),
		ProtectedSubject: pl.ProtectedSubject(),
		AutocryptKeys:    pl.AutocryptKeys(),
	})
}

// DumpMessage writes the debug dump of the part list as plain text
func (h *Handlers) DumpMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_, pl, err := h.partList(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := pl.Dump(w); err != nil {
		h.logger.Warn("failed to write dump", "id", id, "error", err)
	}
}

// RenderMessage writes the message as an HTML document. The mode query
// parameter selects normal, printing or source output.
func (h *Handlers) RenderMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mode, err := formatter.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	_, pl, err := h.partList(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Render into a buffer so a failure can still become an error response
	var buf bytes.Buffer
	if err := h.formatter.Format(r.Context(), &buf, pl, mode); err != nil {
		h.writeError(w, r, err)
		return
	}

	setHTMLHeaders(w)
	w.Write(buf.Bytes())
}

// RenderPart writes a single part as an HTML fragment
func (h *Handlers) RenderPart(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mode, err := formatter.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	_, pl, err := h.partList(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	partID := parser.PartID(chi.URLParam(r, "part"))
	if err := h.formatter.FormatPart(r.Context(), &buf, pl, partID, mode); err != nil {
		h.writeError(w, r, err)
		return
	}

	setHTMLHeaders(w)
	w.Write(buf.Bytes())
}

// setHTMLHeaders keeps rendered mail from loading remote content or
// running scripts, whatever got past the sanitizer.
func setHTMLHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self' data:; style-src 'unsafe-inline'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
