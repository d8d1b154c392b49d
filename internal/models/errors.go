package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared by the repository drivers, the workflow controller and the API.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrPolicy           = errors.New("operation not allowed")
	ErrEmptySelection   = errors.New("nothing selected")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEmailDelivery    = errors.New("email delivery failed")
	ErrConflict         = errors.New("already exists")
)

// ValidationError lists the input fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PolicyError is returned when a business rule forbids an operation.
func PolicyError(reason string) error {
	return fmt.Errorf("%w: %s", ErrPolicy, reason)
}
