// Package handler exposes the order engine over HTTP.
package handler

import (
	"net/http"

	"github.com/xenking/sales-order-api/internal/domain/order"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the order endpoints.
type Handler struct {
	orders *order.Service
	scale  int32
}

// New constructs a Handler delegating to the order service. Amounts are
// rendered with the scale the service rounds to.
func New(orders *order.Service) *Handler {
	return &Handler{
		orders: orders,
		scale:  orders.Scale(),
	}
}

// Routes returns the order API mux. Paths are absolute, so mount it at
// "/api/v1/".
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/v1/orders", h.ListOrders)
	mux.HandleFunc("GET /api/v1/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/v1/orders/{id}/cancel", h.CancelOrder)
	return mux
}
