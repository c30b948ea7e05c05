package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced report, workflow, vehicle or
	// override request does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not valid for the
	// current state of the entity
	ErrInvalidState = errors.New("invalid state")

	// ErrIntegration is returned when a vendor adapter call failed or timed out
	ErrIntegration = errors.New("vendor integration error")

	// ErrConfiguration is returned when a vehicle has no usable vendor or
	// device configuration for the attempted operation
	ErrConfiguration = errors.New("configuration error")
)

// Kind classifies a domain error
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindInvalidState  Kind = "invalid_state"
	KindIntegration   Kind = "integration"
	KindConfiguration Kind = "configuration"
)

// Error is a structured domain error. Integration errors carry the vendor
// name and, when available, the HTTP status code from the vendor response.
type Error struct {
	Kind       Kind
	Message    string
	Vendor     string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Vendor != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s error from %s: %s: %v", e.Kind, e.Vendor, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error from %s: %s", e.Kind, e.Vendor, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps the error kind onto the package sentinel errors so callers can use
// errors.Is against ErrNotFound and friends
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindInvalidState:
		return target == ErrInvalidState
	case KindIntegration:
		return target == ErrIntegration
	case KindConfiguration:
		return target == ErrConfiguration
	}
	return false
}

// NotFound creates a not-found error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidState creates an invalid-state error
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Integration creates a vendor integration error
func Integration(vendor, message string, err error) *Error {
	return &Error{Kind: KindIntegration, Message: message, Vendor: vendor, Err: err}
}

// IntegrationStatus creates a vendor integration error carrying the HTTP
// status code of the failed vendor response
func IntegrationStatus(vendor, message string, statusCode int) *Error {
	return &Error{Kind: KindIntegration, Message: message, Vendor: vendor, StatusCode: statusCode}
}

// Configuration creates a configuration error
func Configuration(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState reports whether err is an invalid-state error
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsIntegration reports whether err is a vendor integration error
func IsIntegration(err error) bool {
	return errors.Is(err, ErrIntegration)
}
