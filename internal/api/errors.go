package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MJE43/roulette-tracker-go/internal/autospin"
	"github.com/MJE43/roulette-tracker-go/internal/engine"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying cause
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final APIError
func (eb *ErrorBuilder) Build() APIError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return APIError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError maps core errors to HTTP statuses and writes the response.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	var apiErr APIError
	if errors.As(err, &apiErr) {
		eh.write(w, r, statusFor(apiErr.Type), apiErr)
		return
	}

	errType, status, message := ErrTypeInternal, http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, engine.ErrEntropyUnavailable):
		errType, status, message = ErrTypeRNGUnavailable, http.StatusServiceUnavailable, "Random source unavailable"
	case errors.Is(err, autospin.ErrAlreadyRunning):
		errType, status, message = ErrTypeConflict, http.StatusConflict, "Autospin already running"
	case errors.Is(err, autospin.ErrNotRunning):
		errType, status, message = ErrTypeConflict, http.StatusConflict, "No autospin running"
	case errors.Is(err, context.DeadlineExceeded):
		errType, status, message = ErrTypeTimeout, http.StatusGatewayTimeout, "Request timed out"
	}

	apiErr = NewError(errType, message).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		WithCause(err).
		Build()
	eh.write(w, r, status, apiErr)
}

// HandleValidationError rejects bad input with 422.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	apiErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.write(w, r, http.StatusUnprocessableEntity, apiErr)
}

func statusFor(errType string) int {
	switch errType {
	case ErrTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrTypeConflict:
		return http.StatusConflict
	case ErrTypeRNGUnavailable:
		return http.StatusServiceUnavailable
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (eh *ErrorHandler) write(w http.ResponseWriter, r *http.Request, status int, apiErr APIError) {
	category := GetErrorCategory(apiErr.Type)
	fields := []zap.Field{
		zap.String("type", apiErr.Type),
		zap.String("category", string(category)),
		zap.Int("status", status),
		zap.String("request_id", apiErr.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Any("context", apiErr.Context),
	}
	if category == CategoryValidation || status < 500 {
		eh.logger.Warn(apiErr.Message, fields...)
	} else {
		eh.logger.Error(apiErr.Message, fields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Roulette-Version", Version)
	w.Header().Set("X-Error-Type", apiErr.Type)
	w.Header().Set("X-Error-Category", string(category))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		eh.logger.Error("encode error response", zap.Error(err))
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Error("panic recovered",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.Any("panic", rvr),
					zap.Stack("stack"))

				apiErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()
				eh.write(w, r, http.StatusInternalServerError, apiErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
