package identity

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testonline/testonline-core/internal/db"
	"github.com/testonline/testonline-core/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewStore(dbh)
}

func TestRegisterCreatesRatingProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.Register(ctx, "ali@example.com", "Ali Valiyev", "s3cret")
	require.NoError(t, err)
	assert.True(t, u.Balance.IsZero())
	assert.True(t, u.IsActive)
	assert.False(t, u.IsBlocked)
	assert.True(t, u.CanTakePaidTests())

	var n int
	err = store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rating_profiles WHERE user_id=$1`, u.ID).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "profile exists from the moment of registration")
}

func TestRegisterValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Register(ctx, "", "x", "pw")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = store.Register(ctx, "a@example.com", "x", "")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = store.Register(ctx, "dup@example.com", "x", "pw")
	require.NoError(t, err)
	_, err = store.Register(ctx, "dup@example.com", "y", "pw")
	assert.Error(t, err, "emails are unique")
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.Register(ctx, "ali@example.com", "Ali", "s3cret")
	require.NoError(t, err)

	got, err := store.Authenticate(ctx, "ali@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = store.Authenticate(ctx, "ali@example.com", "wrong")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = store.Authenticate(ctx, "ghost@example.com", "s3cret")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSetBlocked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.Register(ctx, "ali@example.com", "Ali", "s3cret")
	require.NoError(t, err)

	require.NoError(t, store.SetBlocked(ctx, u.ID, true))
	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBlocked)
	assert.False(t, got.CanTakePaidTests())

	require.NoError(t, store.SetBlocked(ctx, u.ID, false))
	got, err = store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.CanTakePaidTests())

	assert.ErrorIs(t, store.SetBlocked(ctx, "ghost", true), errs.ErrNotFound)
}
