// Package handlers exposes the signature services as a JSON API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/diewo77/go-esign/httpx"
	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/policy"
	"github.com/diewo77/go-esign/internal/services"
	"github.com/diewo77/go-esign/validation"
	"github.com/go-chi/chi/v5"
)

// writeError maps service and gateway errors to HTTP answers. Unexpected
// errors are logged and hidden behind a 500.
func writeError(w http.ResponseWriter, log logging.Logger, err error) {
	var (
		verr   *validation.Error
		lp     *services.LaunchPendingError
		apiErr *esign.APIError
	)
	switch {
	case errors.As(err, &verr):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", verr.Violations)
	case errors.Is(err, policy.ErrUnauthorized):
		httpx.JSONError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrLaunchPending),
		errors.Is(err, services.ErrConcurrentSend),
		errors.Is(err, services.ErrTemplateInUse),
		errors.Is(err, services.ErrNoDocument):
		httpx.JSONError(w, http.StatusConflict, err.Error(), nil)
	case errors.As(err, &lp):
		httpx.JSONError(w, http.StatusBadGateway, "signature_launch_failed", map[string]any{
			"transaction_uuid": lp.TransactionUUID,
			"cause":            lp.Err.Error(),
			"retry":            "POST /api/orders/" + strconv.FormatUint(uint64(lp.OrderID), 10) + "/signature/launch",
		})
	case errors.Is(err, esign.ErrAuth):
		httpx.JSONError(w, http.StatusBadGateway, "signature_api_auth_failed", "check the signature api token in settings")
	case errors.As(err, &apiErr):
		httpx.JSONError(w, http.StatusBadGateway, "signature_api_error", map[string]any{
			"status":  apiErr.StatusCode,
			"message": apiErr.Message,
		})
	case errors.Is(err, esign.ErrTransient):
		httpx.JSONError(w, http.StatusServiceUnavailable, "signature_api_unavailable", "retry later")
	case errors.Is(err, esign.ErrNotConfigured):
		httpx.JSONError(w, http.StatusServiceUnavailable, "signature_api_not_configured", nil)
	default:
		log.Error("request failed", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func idParam(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
