package rest

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Timestamp time.Time              `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto the envelope. AppErrors carry their own
// status and code; anything else is an opaque 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		logger.Error("unhandled error", zap.Error(err))
		appErr = errors.NewInternalError("an unexpected error occurred")
	}

	if appErr.StatusCode >= 500 {
		logger.Error("request failed", zap.String("code", appErr.Code), zap.Error(err))
	}

	writeJSON(w, appErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			Retryable: appErr.Retryable,
			Timestamp: time.Now().UTC(),
		},
	})
}

// writeValidationError reports request-shape failures without leaking
// validator internals.
func writeValidationError(w http.ResponseWriter, logger *zap.Logger, field string) {
	appErr := errors.NewValidationError("INVALID_REQUEST", "request validation failed").
		WithDetails(map[string]interface{}{"field": field})
	writeError(w, logger, appErr)
}
