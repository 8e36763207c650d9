// Package errs holds the error taxonomy shared by the wiki and user registry domains.
package errs

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrValidation marks empty or malformed user input. Callers can correct it.
	ErrValidation = eris.New("validation failed")

	// ErrInvalidName marks a page creation request with a bad name, title or content.
	ErrInvalidName = eris.New("invalid page name")

	// ErrDuplicateName is returned when a page with the same name already exists.
	ErrDuplicateName = eris.New("page name already taken")

	// ErrNotFound is returned when a page, edit or identity does not exist.
	ErrNotFound = eris.New("not found")

	// ErrNotAllowed is returned when the acting identity lacks the required privilege.
	ErrNotAllowed = eris.New("not allowed")

	// ErrNoPages is returned when a random pick is requested from an empty store.
	ErrNoPages = eris.New("no wiki pages available")

	// ErrStoreUnavailable wraps failures of the underlying persistence layer.
	ErrStoreUnavailable = eris.New("store unavailable")

	// ErrEditConflict is returned when an edit precondition on the page revision fails.
	ErrEditConflict = eris.New("page was edited concurrently")

	// ErrInconsistent reports a partially applied write that left the store inconsistent.
	ErrInconsistent = eris.New("data integrity error")
)

// ValidationError describes which input field was rejected and why.
type ValidationError struct {
	Field   string
	Message string
	kind    error
}

// NewValidationError builds a ValidationError matching ErrValidation.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, kind: ErrValidation}
}

// NewInvalidNameError builds a ValidationError matching both ErrInvalidName and ErrValidation.
func NewInvalidNameError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, kind: ErrInvalidName}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets eris.Is and errors.Is match the sentinel this error belongs to.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == e.kind
}

// StoreFailure wraps a persistence error so it matches ErrStoreUnavailable.
func StoreFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(ErrStoreUnavailable, "%s: %v", message, err)
}
