// Package errs defines the error taxonomy shared by the assessment,
// rating and ledger services. Handlers map these sentinels onto HTTP
// status codes; services wrap them with context via fmt.Errorf("…: %w").
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation: malformed input (unknown option tag, bad amount).
	// Rejected before any persistence.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound: missing test, question, attempt, user or ledger entry.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict: re-submitting a completed attempt or
	// re-transitioning a settled ledger entry.
	ErrStateConflict = errors.New("state conflict")

	// ErrInsufficientFunds: a debit would drive the balance negative.
	// Surfaced before any entry is posted.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDataIntegrity: persisted state violates an invariant the code
	// relies on (e.g. a user without a rating profile). Logged, and the
	// triggering operation degrades instead of failing the request.
	ErrDataIntegrity = errors.New("data integrity violation")
)

// Validationf wraps ErrValidation with a reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with the missing thing's identity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrStateConflict with a reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrStateConflict}, args...)...)
}
