package rbac

import (
	"errors"
	"fmt"
)

// AccessDeniedError is the one typed error every denial raises. Callers must
// be able to tell "denied" (this error) apart from "not found" (absent value)
// and from "empty result" (scope filtered everything).
type AccessDeniedError struct {
	PrincipalID string
	Operation   string
	Reason      string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: principal %q may not %s: %s", e.PrincipalID, e.Operation, e.Reason)
}

// IsAccessDenied reports whether err is an access denial.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
