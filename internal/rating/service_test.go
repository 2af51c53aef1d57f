package rating

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testonline/testonline-core/internal/db"
	"github.com/testonline/testonline-core/internal/errs"
	"github.com/testonline/testonline-core/internal/identity"
)

var testLevels = MustParseLevels("1:0,2:100,3:250")

func newTestService(t *testing.T) (*Service, *Recalculator, *identity.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewService(dbh, db.DriverSQLite, testLevels), NewRecalculator(dbh), identity.NewStore(dbh)
}

func registerUser(t *testing.T, users *identity.Store, email string) identity.User {
	t.Helper()
	u, err := users.Register(context.Background(), email, "Test User", "hunter22")
	require.NoError(t, err)
	return u
}

func TestApplyScoreBucketsAndLevels(t *testing.T) {
	svc, _, users := newTestService(t)
	u := registerUser(t, users, "a@example.com")
	ctx := context.Background()

	p, err := svc.ApplyScore(ctx, u.ID, "math", 60)
	require.NoError(t, err)
	assert.Equal(t, 60, p.MathScore)
	assert.Equal(t, 60, p.TotalScore)
	assert.Equal(t, 1, p.Level)

	p, err = svc.ApplyScore(ctx, u.ID, "physics", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, p.PhysicsScore)
	assert.Equal(t, 110, p.TotalScore)
	assert.Equal(t, 2, p.Level, "crossing 100 reaches level 2")

	// Unknown subjects count toward the total only.
	p, err = svc.ApplyScore(ctx, u.ID, "chemistry", 140)
	require.NoError(t, err)
	assert.Equal(t, 60, p.MathScore)
	assert.Equal(t, 50, p.PhysicsScore)
	assert.Equal(t, 0, p.EnglishScore)
	assert.Equal(t, 250, p.TotalScore)
	assert.Equal(t, 3, p.Level)
}

func TestApplyScoreZeroKeepsProfileButBumpsNothing(t *testing.T) {
	svc, _, users := newTestService(t)
	u := registerUser(t, users, "a@example.com")

	p, err := svc.ApplyScore(context.Background(), u.ID, "english", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalScore)
	assert.Equal(t, 1, p.Level)
}

func TestApplyScoreErrors(t *testing.T) {
	svc, _, users := newTestService(t)
	u := registerUser(t, users, "a@example.com")
	ctx := context.Background()

	_, err := svc.ApplyScore(ctx, u.ID, "math", -5)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.ApplyScore(ctx, "ghost", "math", 5)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func TestGetProfileProgressFields(t *testing.T) {
	svc, _, users := newTestService(t)
	u := registerUser(t, users, "a@example.com")
	ctx := context.Background()

	_, err := svc.ApplyScore(ctx, u.ID, "math", 130)
	require.NoError(t, err)

	p, err := svc.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 30, p.CurrentLevelPoints)
	require.NotNil(t, p.PointsToNextLevel)
	assert.Equal(t, 250, *p.PointsToNextLevel, "threshold of level 3, not the distance to it")
	assert.Nil(t, p.Rank, "rank is unset until the first recompute")

	_, err = svc.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRecomputeRanksDenseTies(t *testing.T) {
	svc, recalc, users := newTestService(t)
	ctx := context.Background()

	totals := []int{300, 300, 250, 250}
	ids := make([]string, len(totals))
	for i, total := range totals {
		u := registerUser(t, users, fmt.Sprintf("u%d@example.com", i))
		ids[i] = u.ID
		_, err := svc.ApplyScore(ctx, u.ID, "math", total)
		require.NoError(t, err)
	}

	n, err := recalc.RecomputeRanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	wantRanks := map[string]int{ids[0]: 1, ids[1]: 1, ids[2]: 3, ids[3]: 3}
	for id, want := range wantRanks {
		p, err := svc.GetProfile(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p.Rank)
		assert.Equal(t, want, *p.Rank, "user %s", id)
	}

	// Nothing changed: second run writes zero rows.
	n, err = recalc.RecomputeRanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecomputeRanksExcludesBlockedUsers(t *testing.T) {
	svc, recalc, users := newTestService(t)
	ctx := context.Background()

	a := registerUser(t, users, "a@example.com")
	b := registerUser(t, users, "b@example.com")
	_, err := svc.ApplyScore(ctx, a.ID, "math", 200)
	require.NoError(t, err)
	_, err = svc.ApplyScore(ctx, b.ID, "math", 100)
	require.NoError(t, err)

	_, err = recalc.RecomputeRanks(ctx)
	require.NoError(t, err)

	require.NoError(t, users.SetBlocked(ctx, a.ID, true))
	_, err = recalc.RecomputeRanks(ctx)
	require.NoError(t, err)

	pa, err := svc.GetProfile(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, pa.Rank, "blocked users lose their rank")

	pb, err := svc.GetProfile(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, pb.Rank)
	assert.Equal(t, 1, *pb.Rank)

	board, err := svc.Leaderboard(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, b.ID, board[0].UserID)
}
