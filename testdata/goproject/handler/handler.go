package handler

import "example.com/fixture/store"

// Handler serves lookups from a Store.
type Handler struct {
	store *store.Store
}

// New returns a Handler backed by s.
func New(s *store.Store) *Handler {
	return &Handler{store: s}
}

// Lookup returns the value stored under key or a fallback.
func (h *Handler) Lookup(key, fallback string) string {
	v, err := h.store.Get(key)
	if err != nil {
		return fallback
	}
	return v
}
