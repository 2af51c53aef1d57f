// Package identity owns user rows as the rest of the core consumes them:
// balance snapshots, active/blocked flags and registration dates. The
// cached balance column is written only by the ledger package.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/testonline/testonline-core/internal/errs"
)

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	FullName     string          `json:"full_name"`
	Balance      decimal.Decimal `json:"balance"`
	IsActive     bool            `json:"is_active"`
	IsBlocked    bool            `json:"is_blocked"`
	RegisteredAt int64           `json:"registered_at"`
}

// CanTakePaidTests reports whether the user may start paid attempts and
// participate in ranking.
func (u User) CanTakePaidTests() bool { return u.IsActive && !u.IsBlocked }

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Register creates the user and their zeroed rating profile in one
// transaction. A profile therefore exists for every user from the moment
// of registration; scoring treats its absence as a data-integrity fault.
func (s *Store) Register(ctx context.Context, email, fullName, password string) (User, error) {
	if email == "" || password == "" {
		return User{}, errs.Validationf("email and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		Balance:      decimal.Zero,
		IsActive:     true,
		RegisteredAt: time.Now().Unix(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO users (id,email,full_name,password_hash,balance,is_active,is_blocked,registered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Email, u.FullName, string(hash), u.Balance, u.IsActive, u.IsBlocked, u.RegisteredAt); err != nil {
		return User{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO rating_profiles (user_id,updated_at) VALUES ($1,$2)`,
		u.ID, u.RegisteredAt); err != nil {
		return User{}, err
	}
	return u, tx.Commit()
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,email,full_name,balance,is_active,is_blocked,registered_at
		FROM users WHERE id=$1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Balance, &u.IsActive, &u.IsBlocked, &u.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, errs.NotFoundf("user %s", id)
		}
		return User{}, err
	}
	return u, nil
}

// Authenticate checks the password against the stored bcrypt hash and
// returns the user on success.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,email,full_name,password_hash,balance,is_active,is_blocked,registered_at
		FROM users WHERE email=$1`, email)
	var u User
	var hash string
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &hash, &u.Balance, &u.IsActive, &u.IsBlocked, &u.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, errs.NotFoundf("user %s", email)
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, errs.Validationf("invalid credentials")
	}
	return u, nil
}

// SetBlocked flips the blocked flag (admin tooling). Blocked users keep
// their data but drop out of ranking on the next recompute.
func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_blocked=$1, is_active=$2 WHERE id=$3`,
		blocked, !blocked, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFoundf("user %s", id)
	}
	return nil
}
