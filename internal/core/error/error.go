package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// ToolboxErrorMessage describes failures talking to the toolbox service.
	ToolboxErrorMessage = "toolbox request failed"
	// ModelErrorMessage describes failures of the model-inference service.
	ModelErrorMessage = "model inference failed"
	// TimeoutMessage is returned when an upstream call exceeded its deadline.
	TimeoutMessage = "upstream call timed out"
	// ConfigErrorMessage describes an invalid configuration.
	ConfigErrorMessage = "invalid configuration"
)

var (
	// ErrSessionNotFound is returned by session repositories for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStageOutputInvalid marks structured model output that failed validation.
	ErrStageOutputInvalid = errors.New("stage output failed validation")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Config wraps a configuration problem. Configuration errors are fatal at startup.
func Config(err error) *AppError {
	if err == nil {
		return nil
	}
	return New(err, http.StatusInternalServerError, ConfigErrorMessage)
}

// WrapToolbox maps a toolbox transport error to an AppError.
func WrapToolbox(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(err, http.StatusGatewayTimeout, TimeoutMessage)
	}
	return New(err, http.StatusBadGateway, ToolboxErrorMessage)
}

// WrapModel maps a model-inference error to an AppError.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(err, http.StatusGatewayTimeout, TimeoutMessage)
	}
	return New(err, http.StatusBadGateway, ModelErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	if errors.Is(err, ErrSessionNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe message carried by err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
