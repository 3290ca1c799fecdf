package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mnbf9rca/family-foqos-sub001/internal/contracts"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, contracts.SuccessResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	writeJSON(w, statusCode, contracts.ErrorResponse{
		Status: "error",
		Error:  contracts.ErrorPayload{Code: code, Message: message, RequestID: requestID},
	})
}

func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrStaleSequence):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrRetriesExhausted):
		return http.StatusServiceUnavailable, "retries_exhausted"
	case errors.Is(err, domain.ErrCorruptRecord):
		return http.StatusInternalServerError, "corrupt_record"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "dependency_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
