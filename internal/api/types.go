package api

import (
	"github.com/MJE43/roulette-tracker-go/internal/session"
	"github.com/MJE43/roulette-tracker-go/internal/stats"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

// APIError represents a structured error response with context
type APIError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types
const (
	// Input validation errors
	ErrTypeValidation = "validation_error"

	// Spin-related errors
	ErrTypeRNGUnavailable = "rng_unavailable"
	ErrTypeConflict       = "conflict"

	// System errors
	ErrTypeTimeout  = "timeout"
	ErrTypeInternal = "internal_error"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategorySpin       ErrorCategory = "spin"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation:
		return CategoryValidation
	case ErrTypeRNGUnavailable, ErrTypeConflict:
		return CategorySpin
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains build version information
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// VariantRequest switches the wheel.
type VariantRequest struct {
	Variant string `json:"variant"`
	Clear   bool   `json:"clear"`
}

// AutospinRequest starts a run. Zero values fall back to configured defaults.
type AutospinRequest struct {
	Count      *int   `json:"count,omitempty"`
	IntervalMs *int64 `json:"interval_ms,omitempty"`
}

// NumbersResponse lists hot or cold labels.
type NumbersResponse struct {
	Variant wheel.Variant `json:"variant"`
	N       int           `json:"n"`
	Numbers []string      `json:"numbers"`
}

// PredictResponse reports the hottest number once enough spins exist.
type PredictResponse struct {
	Ready    bool              `json:"ready"`
	Required int               `json:"required,omitempty"`
	Have     int               `json:"have"`
	Result   *stats.Prediction `json:"prediction,omitempty"`
}

// HistoryResponse lists the most recent spins, newest first.
type HistoryResponse struct {
	Variant wheel.Variant `json:"variant"`
	Total   int           `json:"total"`
	History []wheel.Slot  `json:"history"`
}

// ColorsResponse is the colour breakdown of the retained history.
type ColorsResponse struct {
	Total  int               `json:"total"`
	Colors stats.ColorCounts `json:"colors"`
}

// StateResponse is the full session snapshot.
type StateResponse struct {
	session.State
	TotalSpins int `json:"total_spins"`
}
