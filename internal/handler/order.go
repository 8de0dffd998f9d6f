package handler

import (
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/sales-order-api/internal/domain/order"
)

// CreateOrder handles POST /api/v1/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, &order.ValidationError{Field: "body", Reason: "unreadable or too large"})
		return
	}
	req, err := decodeCreateRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	v, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+strconv.FormatInt(v.Order.ID, 10))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeView(e, v) })
}

// GetOrder handles GET /api/v1/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeView(e, v) })
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeView(e, v) })
}

// ListOrders handles GET /api/v1/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := parseListParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.orders.List(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodePage(e, page) })
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &order.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func parseListParams(q url.Values) (order.ListParams, error) {
	p := order.ListParams{
		SortBy:        q.Get("sortBy"),
		SortDirection: q.Get("sortDirection"),
	}

	dates := []struct {
		name string
		dst  **order.Date
	}{
		{"creationDateFrom", &p.CreationDateFrom},
		{"creationDateTo", &p.CreationDateTo},
		{"cancellationDateFrom", &p.CancellationDateFrom},
		{"cancellationDateTo", &p.CancellationDateTo},
	}
	for _, d := range dates {
		raw := q.Get(d.name)
		if raw == "" {
			continue
		}
		date, err := order.ParseDate(raw)
		if err != nil {
			return order.ListParams{}, &order.ValidationError{Field: d.name, Reason: "must be a date in YYYY-MM-DD format"}
		}
		*d.dst = &date
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"page", &p.Page},
		{"size", &p.Size},
	}
	for _, n := range ints {
		raw := q.Get(n.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return order.ListParams{}, &order.ValidationError{Field: n.name, Reason: "must be an integer"}
		}
		*n.dst = v
	}

	return p, nil
}
