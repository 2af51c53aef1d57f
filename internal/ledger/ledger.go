// Package ledger owns monetary state: immutable signed entries with a
// status lifecycle, and the cached per-user balance that must always equal
// the sum of successful entry amounts. Nothing else writes users.balance.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/testonline/testonline-core/internal/errs"
)

type Type string

const (
	TypeDeposit        Type = "deposit"
	TypeTestPurchase   Type = "test_purchase"
	TypeCoursePurchase Type = "course_purchase"
	TypeWithdrawal     Type = "withdrawal"
	TypeRefund         Type = "refund"
	TypeBonus          Type = "bonus"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal statuses admit no further transitions; successful is terminal
// too, except that successful→successful is tolerated as a no-op so
// retried webhooks do not surface spurious conflicts.
func (s Status) Terminal() bool {
	return s == StatusSuccessful || s == StatusFailed || s == StatusCancelled
}

func parseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeDeposit, TypeTestPurchase, TypeCoursePurchase, TypeWithdrawal, TypeRefund, TypeBonus:
		return t, nil
	default:
		return "", errs.Validationf("unknown ledger entry type %q", s)
	}
}

func parseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusSuccessful, StatusFailed, StatusCancelled:
		return st, nil
	default:
		return "", errs.Validationf("unknown ledger entry status %q", s)
	}
}

// Entry is an immutable record of a signed monetary movement. Only the
// status (and settled_at) may change after creation, exactly once.
type Entry struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Type           Type            `json:"type"`
	Status         Status          `json:"status"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      int64           `json:"created_at"`
	SettledAt      *int64          `json:"settled_at,omitempty"`
}
