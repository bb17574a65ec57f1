// Package handler exposes the order intake HTTP surface.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// OrderPlacer is the slice of the order service the HTTP layer needs.
type OrderPlacer interface {
	Submit(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
}

// Handler translates HTTP requests into order service calls and maps
// results and errors back to the wire format.
type Handler struct {
	orders OrderPlacer
}

// New constructs a Handler.
func New(orders OrderPlacer) *Handler {
	return &Handler{orders: orders}
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /order", h.CreateOrder)
}
