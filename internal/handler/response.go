package handler

import (
	"encoding/json"
	"net/http"

	"invoice-api/internal/middleware"
	"invoice-api/pkg/errors"
	"invoice-api/pkg/logger"
)

// DataResponse is the success envelope of the JSON API
type DataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

func writeData(w http.ResponseWriter, data interface{}, logger *logger.Logger) {
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: data}, logger)
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	requestID := middleware.RequestIDFromContext(r.Context())
	log := logger.WithError(appErr).WithField("request_id", requestID)
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request error")
	} else {
		log.Debug("Request error")
	}

	if err := errors.WriteJSON(w, appErr, requestID); err != nil {
		logger.WithError(err).Error("Failed to write error response")
	}
}
