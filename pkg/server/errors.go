package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/routing"
)

// Error types reported in the "type" field of error responses.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeBudget         = "budget_exceeded"
	errTypeNotFound       = "not_found"
	errTypeConflict       = "conflict"
	errTypeUnavailable    = "no_provider_available"
	errTypeInternal       = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed API call.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// classify maps service errors to an HTTP status and error type.
func classify(err error) (int, string) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, errTypeInvalidRequest
	case errors.Is(err, providers.ErrProxyConfig):
		return http.StatusBadRequest, errTypeInvalidRequest
	case errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusPaymentRequired, errTypeBudget
	case errors.Is(err, proxy.ErrProviderNotFound), errors.Is(err, routing.ErrRuleNotFound):
		return http.StatusNotFound, errTypeNotFound
	case errors.Is(err, routing.ErrLastCatchAll):
		return http.StatusConflict, errTypeConflict
	case errors.Is(err, proxy.ErrNoProviderAvailable):
		return http.StatusServiceUnavailable, errTypeUnavailable
	default:
		return http.StatusInternalServerError, errTypeInternal
	}
}

// writeError writes err with the status classify assigns to it. Internal
// errors are not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, typ := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "An internal error occurred. Please try again later."
	}
	writeErrorMessage(w, status, typ, msg)
}

func writeErrorMessage(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: msg, Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
