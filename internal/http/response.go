package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_storefront/internal/httpclient"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/shop"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		loggerFrom(r.Context()).Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps client-side and backend errors to a local HTTP answer.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *httpclient.APIError
	switch {
	case errors.Is(err, shop.ErrEmptyCart):
		respondError(w, r, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.Is(err, shop.ErrMissingAddress),
		errors.Is(err, shop.ErrUnknownVariant),
		errors.Is(err, shop.ErrInvalidQuantity):
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, httpclient.ErrNetwork):
		respondError(w, r, http.StatusBadGateway, "upstream_unavailable", session.UserMessage(err))
	case errors.Is(err, httpclient.ErrUnauthorized):
		respondError(w, r, http.StatusUnauthorized, "unauthorized", session.UserMessage(err))
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		status := apiErr.Status
		if status < 400 {
			// a {"success": false} envelope
			status = http.StatusUnprocessableEntity
		}
		respondError(w, r, status, "rejected", session.UserMessage(err))
	case errors.Is(err, httpclient.ErrMalformedResponse), errors.As(err, &apiErr):
		respondError(w, r, http.StatusBadGateway, "bad_upstream_response", session.UserMessage(err))
	default:
		loggerFrom(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
