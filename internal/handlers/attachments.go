package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/felo/mailparts/internal/parser"
	"github.com/go-chi/chi/v5"
)

// sanitizeFilename removes dangerous characters from attachment filenames
func sanitizeFilename(filename string) string {
	// Remove path separators
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if filename == "." || filename == "/" {
		filename = ""
	}

	// Remove any control characters and quotes
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1 // Remove character
		}
		return r
	}, filename)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	// Fallback if empty
	if cleaned == "" {
		cleaned = "download.bin"
	}

	return cleaned
}

// RawPart serves the decoded content of a part. Attachments come from
// their loader handle; images are served inline for the rendered view and
// everything else as a download.
func (h *Handlers) RawPart(w http.ResponseWriter, r *http.Request) {
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

	partID := parser.PartID(chi.URLParam(r, "part"))
	p, ok := pl.Find(partID)
	if !ok || p.Source == nil {
		h.writeError(w, r, fmt.Errorf("part %s: %w", partID, parser.ErrPartNotFound))
		return
	}

	var data []byte
	mimeType := p.MimeType
	filename := p.Source.Filename()
	if info := p.Attachment; info != nil && info.Handle != nil {
		data, err = info.Handle.Data(r.Context())
		mimeType = info.GuessedMimeType
		filename = info.Filename
	} else {
		data, err = p.Source.TransferDecoded()
	}
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		h.writeError(w, r, err)
		return
	}

	disposition := "attachment"
	if strings.HasPrefix(mimeType, "image/") && mimeType != "image/svg+xml" {
		disposition = "inline"
	}

	// Set headers for download using proper encoding
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType(disposition, map[string]string{
			"filename": sanitizeFilename(filename),
		}))
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	w.Write(data)
}
