// Package attachment materializes attachment content outside of the parse
// that discovered it.
package attachment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by a handle cancelled before it was loaded.
var ErrCancelled = errors.New("attachment load cancelled")

// LoadFunc produces the decoded attachment bytes.
type LoadFunc func() ([]byte, error)

// Handle is the loadable result of one attachment. It is loaded at most once,
// either by a Loader worker or on first use.
type Handle struct {
	ID       string
	Filename string
	MimeType string

	load      LoadFunc
	once      sync.Once
	done      chan struct{}
	data      []byte
	err       error
	cancelled atomic.Bool
	scheduled atomic.Bool
}

// NewHandle creates an unloaded handle.
func NewHandle(id, filename, mimeType string, load LoadFunc) *Handle {
	return &Handle{
		ID:       id,
		Filename: filename,
		MimeType: mimeType,
		load:     load,
		done:     make(chan struct{}),
	}
}

func (h *Handle) run() {
	h.once.Do(func() {
		defer close(h.done)

		if h.cancelled.Load() {
			h.err = ErrCancelled
			return
		}
		h.data, h.err = h.load()
	})
}

// Cancel stops a pending load. A handle that already loaded keeps its data.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	h.run()
}

// Done is closed once the handle is loaded or cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Loaded reports whether loading has finished.
func (h *Handle) Loaded() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Scheduled reports whether the handle was handed to a Loader.
func (h *Handle) Scheduled() bool {
	return h.scheduled.Load()
}

// Wait blocks until the handle is loaded or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Data returns the decoded content, loading it now if no worker got to it
// yet.
func (h *Handle) Data(ctx context.Context) ([]byte, error) {
	if !h.Loaded() {
		go h.run()
	}
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return h.data, nil
}
