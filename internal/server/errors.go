package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/joseph-ayodele/catalog-extractor/internal/async"
	"github.com/joseph-ayodele/catalog-extractor/internal/batch"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/jobs"
)

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, batch.ErrTooManyRows), errors.Is(err, batch.ErrSourceConflict):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrAttemptInFlight), errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, async.ErrQueueClosed):
		return http.StatusServiceUnavailable
	}
	switch common.ErrorCode(err) {
	case common.CodeConfig:
		return http.StatusBadRequest
	case common.CodeNotFound:
		return http.StatusNotFound
	case common.CodeState:
		return http.StatusConflict
	case common.CodeBatch, common.CodeSource:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "invalid_request_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusConflict:
		return "conflict_error"
	default:
		return "api_error"
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errorType(code),
		},
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"message": err.Error(),
		"type":    errorType(status),
	}
	if code := common.ErrorCode(err); code != "" {
		body["code"] = code
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
