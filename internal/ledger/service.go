package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/testonline/testonline-core/internal/db"
	"github.com/testonline/testonline-core/internal/errs"
)

type Service struct {
	db     *sql.DB
	driver db.Driver
}

func NewService(sqldb *sql.DB, driver db.Driver) *Service {
	return &Service{db: sqldb, driver: driver}
}

// forUpdate returns the row-lock suffix for the active driver. The sqlite
// driver serialises writers at the connection level, so no suffix there.
func (s *Service) forUpdate() string {
	if s.driver == db.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

type PostInput struct {
	UserID         string
	Amount         decimal.Decimal
	Type           Type
	Status         Status // pending (default) or successful
	IdempotencyKey string
	Description    string
}

// PostEntry creates a ledger entry. Entries created already-successful
// settle (mutate the cached balance) in the same transaction. If an
// idempotency key is supplied and an entry with that key exists, the
// existing entry is returned and nothing is written.
func (s *Service) PostEntry(ctx context.Context, in PostInput) (Entry, error) {
	if _, err := parseType(string(in.Type)); err != nil {
		return Entry{}, err
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.Status != StatusPending && in.Status != StatusSuccessful {
		return Entry{}, errs.Validationf("entries are created pending or successful, not %q", in.Status)
	}
	if in.Amount.IsZero() {
		return Entry{}, errs.Validationf("ledger entry amount must be non-zero")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback()

	if in.IdempotencyKey != "" {
		prior, err := s.findByKey(ctx, tx, in.IdempotencyKey)
		if err == nil {
			return prior, tx.Commit()
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return Entry{}, err
		}
	}

	e := Entry{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Amount:         in.Amount,
		Type:           in.Type,
		Status:         in.Status,
		IdempotencyKey: in.IdempotencyKey,
		Description:    in.Description,
		CreatedAt:      time.Now().Unix(),
	}

	if e.Status == StatusSuccessful {
		// Settling in the creation transaction: lock the balance row,
		// refuse overdrafts, apply the amount once.
		if _, err := s.applyToBalance(ctx, tx, e.UserID, e.Amount); err != nil {
			return Entry{}, err
		}
		now := time.Now().Unix()
		e.SettledAt = &now
	} else {
		// The user must exist even for pending entries.
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=$1`, e.UserID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Entry{}, errs.NotFoundf("user %s", e.UserID)
			}
			return Entry{}, err
		}
	}

	var key any
	if e.IdempotencyKey != "" {
		key = e.IdempotencyKey
	}
	var settled any
	if e.SettledAt != nil {
		settled = *e.SettledAt
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_entries (id,user_id,amount,entry_type,status,idempotency_key,description,created_at,settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.UserID, e.Amount, string(e.Type), string(e.Status), key, e.Description, e.CreatedAt, settled); err != nil {
		// A concurrent post with the same key can slip past the lookup
		// above and lose this INSERT to the unique index. Drop our write
		// and return the winner's entry, keeping the retry contract.
		if e.IdempotencyKey != "" && isUniqueViolation(err) {
			_ = tx.Rollback()
			return s.FindByKey(ctx, e.IdempotencyKey)
		}
		return Entry{}, err
	}
	return e, tx.Commit()
}

// isUniqueViolation matches the duplicate-key errors of both drivers:
// "UNIQUE constraint failed" (sqlite) and "duplicate key value violates
// unique constraint" (postgres, SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// Transition moves an entry to newStatus and returns the user's balance
// afterwards. The balance mutates if and only if the entry moves into
// successful from a non-successful status, and that happens at most once:
// successful→successful is a no-op, and any other transition out of a
// terminal status is a conflict.
func (s *Service) Transition(ctx context.Context, entryID string, newStatus Status) (decimal.Decimal, error) {
	if _, err := parseStatus(string(newStatus)); err != nil {
		return decimal.Zero, err
	}
	if newStatus == StatusPending {
		return decimal.Zero, errs.Conflictf("entry %s: cannot transition back to pending", entryID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT user_id,amount,status FROM ledger_entries WHERE id=$1`+s.forUpdate(), entryID)
	var userID string
	var amount decimal.Decimal
	var cur string
	if err := row.Scan(&userID, &amount, &cur); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, errs.NotFoundf("ledger entry %s", entryID)
		}
		return decimal.Zero, err
	}
	current := Status(cur)

	if current == StatusSuccessful && newStatus == StatusSuccessful {
		// Retried settlement: report the balance unchanged.
		balance, err := s.currentBalance(ctx, tx, userID)
		if err != nil {
			return decimal.Zero, err
		}
		return balance, tx.Commit()
	}
	if current.Terminal() {
		return decimal.Zero, errs.Conflictf("entry %s already %s", entryID, current)
	}

	balance, err := s.currentBalance(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if newStatus == StatusSuccessful {
		balance, err = s.applyToBalance(ctx, tx, userID, amount)
		if err != nil {
			return decimal.Zero, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE ledger_entries SET status=$1, settled_at=$2 WHERE id=$3`,
			string(newStatus), time.Now().Unix(), entryID); err != nil {
			return decimal.Zero, err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE ledger_entries SET status=$1 WHERE id=$2`,
			string(newStatus), entryID); err != nil {
			return decimal.Zero, err
		}
	}
	return balance, tx.Commit()
}

// applyToBalance performs the locked read-modify-write on users.balance
// and returns the new balance. Debits that would drive the balance
// negative are refused here as the last line of defence; callers are
// expected to have checked affordability already.
func (s *Service) applyToBalance(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	row := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id=$1`+s.forUpdate(), userID)
	var balance decimal.Decimal
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, errs.NotFoundf("user %s", userID)
		}
		return decimal.Zero, err
	}
	next := balance.Add(amount)
	if amount.IsNegative() && next.IsNegative() {
		return decimal.Zero, errs.ErrInsufficientFunds
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET balance=$1 WHERE id=$2`, next, userID); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

func (s *Service) currentBalance(ctx context.Context, tx *sql.Tx, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id=$1`, userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, errs.NotFoundf("user %s", userID)
		}
		return decimal.Zero, err
	}
	return balance, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Service) findByKey(ctx context.Context, q queryRower, key string) (Entry, error) {
	row := q.QueryRowContext(ctx, `SELECT id,user_id,amount,entry_type,status,idempotency_key,description,created_at,settled_at
		FROM ledger_entries WHERE idempotency_key=$1`, key)
	return scanEntry(row)
}

// FindByKey returns the entry carrying the given idempotency key.
func (s *Service) FindByKey(ctx context.Context, key string) (Entry, error) {
	return s.findByKey(ctx, s.db, key)
}

func (s *Service) GetEntry(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,user_id,amount,entry_type,status,idempotency_key,description,created_at,settled_at
		FROM ledger_entries WHERE id=$1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, errs.ErrNotFound) {
		return Entry{}, errs.NotFoundf("ledger entry %s", id)
	}
	return e, err
}

// ListEntries returns a user's entries, newest first.
func (s *Service) ListEntries(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,user_id,amount,entry_type,status,idempotency_key,description,created_at,settled_at
		FROM ledger_entries WHERE user_id=$1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumSuccessful recomputes the balance invariant from the entries table.
// Used by tests and reconciliation; it must always equal users.balance.
func (s *Service) SumSuccessful(ctx context.Context, userID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT amount FROM ledger_entries WHERE user_id=$1 AND status=$2`,
		userID, string(StatusSuccessful))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()
	sum := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(amount)
	}
	return sum, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row *sql.Row) (Entry, error) {
	e, err := scanEntryFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, errs.NotFoundf("ledger entry")
	}
	return e, err
}

func scanEntryRows(rows *sql.Rows) (Entry, error) {
	return scanEntryFrom(rows)
}

func scanEntryFrom(r rowScanner) (Entry, error) {
	var e Entry
	var typ, status string
	var key sql.NullString
	var settled sql.NullInt64
	if err := r.Scan(&e.ID, &e.UserID, &e.Amount, &typ, &status, &key, &e.Description, &e.CreatedAt, &settled); err != nil {
		return Entry{}, err
	}
	e.Type = Type(typ)
	e.Status = Status(status)
	e.IdempotencyKey = key.String
	if settled.Valid {
		v := settled.Int64
		e.SettledAt = &v
	}
	return e, nil
}
