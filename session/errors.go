package session

import "fmt"

// FatalAuthError means the organization role could not be assumed. The
// whole run aborts: without it no member accounts are reachable.
type FatalAuthError struct {
	Role string
	Err  error
}

func (e *FatalAuthError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("failed to acquire base credentials: %v", e.Err)
	}
	return fmt.Sprintf("failed to assume organization role %s: %v", e.Role, e.Err)
}

func (e *FatalAuthError) Unwrap() error { return e.Err }

// AccountAuthError means the runner role was unassumable for one
// account. The account is skipped; the run continues.
type AccountAuthError struct {
	AccountID string
	Role      string
	Err       error
}

func (e *AccountAuthError) Error() string {
	return fmt.Sprintf("failed to assume runner role %s in account %s: %v", e.Role, e.AccountID, e.Err)
}

func (e *AccountAuthError) Unwrap() error { return e.Err }
