package storage

import "fmt"

// ValidationError reports a malformed entity on a write or a structurally
// invalid id on a traversal. The caller must correct and resubmit; nothing is
// retried here.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func validationErrorf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
