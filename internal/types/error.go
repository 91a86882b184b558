package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitBreakerTripped is returned when the emergency kill-switch blocks every automatic purchase
var ErrCircuitBreakerTripped = errors.New("auto-gift circuit breaker is tripped")

// ErrProtectionUnavailable is returned when the counter store fails and the guard fails closed
var ErrProtectionUnavailable = errors.New("auto-gift protection store unavailable")

// ErrInvalidTransition is returned when an execution cannot move to the requested status
var ErrInvalidTransition = errors.New("execution is not in a state that allows this change")

// CustomError carries an HTTP status and an error type tag up to the error handler
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// ValidationError reports a malformed rule, settings patch or event
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NotFoundError reports a record that does not exist or is not owned by the caller
type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// RemoteCallError wraps any failure talking to a remote function, whatever the root cause
type RemoteCallError struct {
	Function   string `json:"function"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *RemoteCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote call %s failed (%d): %s", e.Function, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote call %s failed: %s", e.Function, e.Message)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// RateLimitExceeded reports an exhausted monthly execution allowance
type RateLimitExceeded struct {
	UserID  string    `json:"-"`
	Cap     int       `json:"cap"`
	Used    int       `json:"used"`
	ResetAt time.Time `json:"resetAt"`
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("monthly auto-gift limit reached (%d/%d), resets at %s",
		e.Used, e.Cap, e.ResetAt.UTC().Format(time.RFC3339))
}
