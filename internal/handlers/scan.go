package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felo/mailparts/internal/indexer"
)

// ScanProgress holds the state of the current or last scan
type ScanProgress struct {
	mu          sync.RWMutex
	isScanning  bool
	current     int
	total       int
	currentFile string
	result      *indexer.IndexResult
	err         error
	startedAt   time.Time
	lastUpdate  time.Time
	clients     []chan ProgressEvent
}

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	Type string `json:"type"` // "progress", "complete", "error"
	Data any    `json:"data"`
}

// ScanState is the snapshot reported by ScanStatus and sent to SSE clients.
type ScanState struct {
	Scanning   bool                 `json:"scanning"`
	Current    int                  `json:"current"`
	Total      int                  `json:"total"`
	File       string               `json:"file,omitempty"`
	StartedAt  time.Time            `json:"started_at,omitzero"`
	LastUpdate time.Time            `json:"last_update,omitzero"`
	Result     *indexer.IndexResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// start marks a scan as running. It reports false when one already is.
func (sp *ScanProgress) start() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.isScanning {
		return false
	}

	now := time.Now()
	sp.isScanning = true
	sp.current, sp.total, sp.currentFile = 0, 0, ""
	sp.result, sp.err = nil, nil
	sp.startedAt, sp.lastUpdate = now, now
	return true
}

func (sp *ScanProgress) update(current, total int, file string) {
	sp.mu.Lock()
	sp.current, sp.total, sp.currentFile = current, total, file
	sp.lastUpdate = time.Now()
	sp.mu.Unlock()

	sp.broadcast(ProgressEvent{Type: "progress", Data: sp.State()})
}

func (sp *ScanProgress) finish(result *indexer.IndexResult, err error) {
	sp.mu.Lock()
	sp.isScanning = false
	sp.result, sp.err = result, err
	sp.lastUpdate = time.Now()
	sp.mu.Unlock()

	if err != nil {
		sp.broadcast(ProgressEvent{Type: "error", Data: map[string]string{"error": err.Error()}})
		return
	}
	sp.broadcast(ProgressEvent{Type: "complete", Data: result})
}

// State returns a snapshot of the progress.
func (sp *ScanProgress) State() ScanState {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	s := ScanState{
		Scanning:   sp.isScanning,
		Current:    sp.current,
		Total:      sp.total,
		File:       sp.currentFile,
		StartedAt:  sp.startedAt,
		LastUpdate: sp.lastUpdate,
		Result:     sp.result,
	}
	if sp.err != nil {
		s.Error = sp.err.Error()
	}
	return s
}

func (sp *ScanProgress) subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 10)
	sp.mu.Lock()
	sp.clients = append(sp.clients, ch)
	sp.mu.Unlock()
	return ch
}

func (sp *ScanProgress) unsubscribe(ch chan ProgressEvent) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, c := range sp.clients {
		if c == ch {
			sp.clients = append(sp.clients[:i], sp.clients[i+1:]...)
			return
		}
	}
}

// broadcast sends an event to all connected clients
func (sp *ScanProgress) broadcast(event ProgressEvent) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	for _, client := range sp.clients {
		select {
		case client <- event:
		default:
			// Client channel full, skip
		}
	}
}

// Scan starts re-indexing the messages root in the background
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "indexing is not available"})
		return
	}
	if !h.scan.start() {
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "scan already in progress"})
		return
	}

	// The scan outlives the request
	go func() {
		result, err := h.indexer.IndexWithProgress(context.Background(), h.scan.update)
		if err != nil {
			h.logger.Error("scan failed", "error", err)
		} else {
			h.logger.Info("scan finished",
				"files", result.TotalFiles,
				"new", result.NewIndexed,
				"skipped", result.Skipped,
				"failed", result.Failed)
		}
		h.scan.finish(result, err)
	}()

	h.writeJSON(w, http.StatusAccepted, h.scan.State())
}

// ScanStatus reports the current or last scan
func (h *Handlers) ScanStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scan.State())
}

// ScanProgressSSE handles Server-Sent Events for scan progress
func (h *Handlers) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	ch := h.scan.subscribe()
	defer h.scan.unsubscribe(ch)

	state := h.scan.State()
	h.sendSSE(w, flusher, "progress", state)
	if !state.Scanning {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			h.sendSSE(w, flusher, event.Type, event.Data)

			// Close connection after complete or error
			if event.Type == "complete" || event.Type == "error" {
				return
			}
		}
	}
}

// sendSSE sends an SSE message to the client
func (h *Handlers) sendSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
