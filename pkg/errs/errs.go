// Package errs classifies automation failures into the categories the
// runner and evaluators act on: configuration errors fail fast and are
// never retried, transient errors are retried by the owning component,
// critical errors abort an entire run, and misconfigured-service errors
// never halt a run but are logged at elevated severity.
package errs

import (
	"errors"
	"fmt"
)

// Category is the failure class attached to an automation error.
type Category string

const (
	CategoryConfig        Category = "configuration"
	CategoryTransient     Category = "transient"
	CategoryCritical      Category = "critical"
	CategoryMisconfigured Category = "misconfigured_service"
)

// Error wraps an underlying error with its failure category.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config marks err as a configuration error.
func Config(err error) error {
	if err == nil {
		return nil
	}

	return &Error{Category: CategoryConfig, Err: err}
}

// Configf builds a configuration error from a format string.
func Configf(format string, args ...any) error {
	return Config(fmt.Errorf(format, args...))
}

// Transient marks err as retryable by the owning component's policy.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &Error{Category: CategoryTransient, Err: err}
}

// Critical marks err as aborting the entire run.
func Critical(err error) error {
	if err == nil {
		return nil
	}

	return &Error{Category: CategoryCritical, Err: err}
}

// Criticalf builds a critical error from a format string.
func Criticalf(format string, args ...any) error {
	return Critical(fmt.Errorf(format, args...))
}

// Misconfigured marks err as a misconfigured external service: the run
// continues, but the failure is logged at Error level.
func Misconfigured(err error) error {
	if err == nil {
		return nil
	}

	return &Error{Category: CategoryMisconfigured, Err: err}
}

// CategoryOf returns the category of err, defaulting to transient for
// unclassified errors.
func CategoryOf(err error) Category {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Category
	}

	return CategoryTransient
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return CategoryOf(err) == CategoryConfig
}

// IsCritical reports whether err aborts the entire run.
func IsCritical(err error) bool {
	return CategoryOf(err) == CategoryCritical
}

// IsMisconfigured reports whether err is a misconfigured-service error.
func IsMisconfigured(err error) bool {
	return CategoryOf(err) == CategoryMisconfigured
}
