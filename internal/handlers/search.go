package handlers

import (
	"net/http"
	"strconv"

	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/db"
)

type searchResponse struct {
	Query   string             `json:"query"`
	Results []*db.SearchResult `json:"results"`
}

// Search handles search requests
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)

	filter := db.SearchFilter{
		Query:    q.Get("q"),
		Sender:   q.Get("sender"),
		DateFrom: q.Get("from"),
		DateTo:   q.Get("to"),
		Limit:    limit,
		Offset:   offset,
	}
	filter.HasAttachments, _ = strconv.ParseBool(q.Get("attachments"))
	if signed, _ := strconv.ParseBool(q.Get("signed")); signed {
		filter.Security |= crypto.FlagSigned
	}
	if encrypted, _ := strconv.ParseBool(q.Get("encrypted")); encrypted {
		filter.Security |= crypto.FlagEncrypted
	}

	results, err := h.db.Search(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*db.SearchResult{}
	}

	h.writeJSON(w, http.StatusOK, searchResponse{Query: filter.Query, Results: results})
}

// Stats reports index statistics
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// ListKeys lists the locally known public keys
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.db.ListKeys(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*db.KnownKey{}
	}
	h.writeJSON(w, http.StatusOK, keys)
}
