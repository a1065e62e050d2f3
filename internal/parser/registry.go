package parser

import (
	"sort"
	"strings"
)

// FallbackKey is the registry key consulted when neither an exact nor a
// wildcard key matches.
const FallbackKey = "*"

// Registry maps mime types to ordered extension lists. It is populated at
// startup and frozen before the first parse; lookups need no locking.
type Registry struct {
	handlers map[string][]Extension
	frozen   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]Extension)}
}

// Register appends ext to the list for key, which is an exact
// "type/subtype", a "type/*" pattern or FallbackKey. Registering after
// Freeze panics.
func (r *Registry) Register(key string, ext Extension) {
	if r.frozen {
		panic("parser: register on frozen registry: " + key)
	}
	key = strings.ToLower(strings.TrimSpace(key))
	r.handlers[key] = append(r.handlers[key], ext)
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Lookup returns the handlers for mimeType: the exact entry, else the
// "type/*" entry, else the fallback bucket. The result may be empty and
// must not be modified.
func (r *Registry) Lookup(mimeType string) []Extension {
	if exts := r.LookupSpecific(mimeType); len(exts) > 0 {
		return exts
	}
	return r.LookupFallback(mimeType)
}

// LookupSpecific is Lookup without the fallback bucket.
func (r *Registry) LookupSpecific(mimeType string) []Extension {
	mimeType = strings.ToLower(mimeType)

	if exts := r.handlers[mimeType]; len(exts) > 0 {
		return exts
	}

	if major, _, ok := strings.Cut(mimeType, "/"); ok {
		if exts := r.handlers[major+"/*"]; len(exts) > 0 {
			return exts
		}
	}

	return nil
}

// LookupExact returns only the handlers registered under exactly key.
func (r *Registry) LookupExact(key string) []Extension {
	return r.handlers[strings.ToLower(key)]
}

// LookupFallback returns the global fallback bucket. The mime type is not
// consulted; it is accepted so callers can treat every lookup alike.
func (r *Registry) LookupFallback(_ string) []Extension {
	return r.handlers[FallbackKey]
}

// Keys lists the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
