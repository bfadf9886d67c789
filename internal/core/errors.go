package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrValidation marks malformed or incomplete requests
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced entity that does not exist
	ErrNotFound = errors.New("not found")

	// ErrProvider marks an upstream LLM or image provider failure
	ErrProvider = errors.New("provider error")

	// ErrDuplicateExhausted marks a run where every proposed theme duplicated an existing title
	ErrDuplicateExhausted = errors.New("no unique theme found")

	// ErrTimeout marks a run that exceeded its wall-clock budget
	ErrTimeout = errors.New("generation timed out")

	// ErrPersistence marks a storage failure
	ErrPersistence = errors.New("persistence error")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ProviderError carries the upstream status and raw body of a failed provider call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s provider error", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the upstream signalled a rate limit or server fault.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// DuplicateExhaustedError reports that no unique theme survived the allowed attempts.
type DuplicateExhaustedError struct {
	Attempts int
	Rejected []string
}

func (e *DuplicateExhaustedError) Error() string {
	return fmt.Sprintf("no unique theme after %d attempt(s); rejected %d candidate(s)", e.Attempts, len(e.Rejected))
}

func (e *DuplicateExhaustedError) Is(target error) bool { return target == ErrDuplicateExhausted }

// TimeoutError reports that the run budget was exceeded.
type TimeoutError struct {
	Budget time.Duration
	Step   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation exceeded %s budget during %s", e.Budget, e.Step)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorType returns a short machine-readable name for err.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateExhausted):
		return "duplicate_exhausted"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch ErrorType(err) {
	case "validation_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "duplicate_exhausted":
		return http.StatusConflict
	case "timeout":
		return http.StatusGatewayTimeout
	case "provider_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
