package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sales-order-api/internal/domain/order"
	"github.com/xenking/sales-order-api/pkg/httpmiddleware"
)

// writeError maps domain errors to HTTP statuses. Anything unrecognized is
// an infrastructure failure: it is logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr  *order.ValidationError
		nfErr *order.NotFoundError
		cErr  *order.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &nfErr):
		httpmiddleware.WriteError(w, http.StatusNotFound, nfErr.Error())
	case errors.As(err, &cErr):
		httpmiddleware.WriteError(w, http.StatusConflict, cErr.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
