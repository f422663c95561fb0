package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration handling.
var (
	// ErrInvalid is matched by every ValidationError.
	ErrInvalid = errors.New("invalid configuration")

	// ErrUnavailable indicates the configuration source disappeared.
	ErrUnavailable = errors.New("configuration unavailable")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s is missing or out of range", e.Field)
}

// Is makes errors.Is(err, ErrInvalid) true for validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}
