// Package respond writes JSON bodies and apperror-shaped failures.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/rs/zerolog/log"
)

const serverErrorMessage = "Server error"

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// Error writes err as {"error": message}. Errors that are not an
// *apperror.AppError become a 500 without their text.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	appErr, ok := apperror.From(err)
	if !ok {
		log.Error().Err(err).Str("request_id", requestID).Str("path", r.URL.Path).Msg("Unhandled error")
		JSON(w, http.StatusInternalServerError, apperror.ErrorResponse{Error: serverErrorMessage})
		return
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().Err(appErr).Str("request_id", requestID).Str("path", r.URL.Path).Msg("Request failed")
		JSON(w, status, apperror.ErrorResponse{Error: serverErrorMessage})
		return
	}
	log.Debug().Err(appErr).Str("request_id", requestID).Int("status", status).Msg("Request rejected")
	JSON(w, status, appErr.ToResponse())
}
