package store

import (
	"context"

	"github.com/nimburion/bookstore/pkg/repository/document"
)

// Handle is an opened collection together with the backend resources behind it.
type Handle struct {
	Collection document.Collection
	Backend    string
	close      func() error
}

// Ping verifies the backend is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	if p, ok := h.Collection.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return ctx.Err()
}

// Close releases the backend. It is safe to call more than once.
func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	closeFn := h.close
	h.close = nil
	return closeFn()
}
