package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testonline/testonline-core/internal/db"
	"github.com/testonline/testonline-core/internal/errs"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewSQLStore(dbh)
}

func TestParseOption(t *testing.T) {
	o, err := ParseOption(" c ")
	require.NoError(t, err)
	assert.Equal(t, OptionC, o)

	_, err = ParseOption("E")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = ParseOption("")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestQuestionCountFollowsAddAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	test, err := store.PutTest(ctx, Test{Title: "Algebra basics", Subject: "math"})
	require.NoError(t, err)

	q1, err := store.AddQuestion(ctx, Question{
		TestID: test.ID, Points: 1, Prompt: "2+2?",
		OptionA: "4", OptionB: "5", OptionC: "6", OptionD: "7", Correct: OptionA,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, q1.Position, "position auto-assigned")

	q2, err := store.AddQuestion(ctx, Question{
		TestID: test.ID, Points: 2, Prompt: "3*3?",
		OptionA: "6", OptionB: "9", OptionC: "12", OptionD: "3", Correct: OptionB,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, q2.Position)

	got, err := store.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.QuestionCount)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, 3, got.TotalPossible())

	require.NoError(t, store.DeleteQuestion(ctx, q1.ID))
	got, err = store.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.QuestionCount)
	assert.Len(t, got.Questions, 1)
}

func TestAddQuestionValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	test, err := store.PutTest(ctx, Test{Title: "t", Subject: "math"})
	require.NoError(t, err)

	_, err = store.AddQuestion(ctx, Question{TestID: test.ID, Points: 0, Correct: OptionA})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = store.AddQuestion(ctx, Question{TestID: test.ID, Points: 1, Correct: "X"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = store.AddQuestion(ctx, Question{TestID: "missing", Points: 1, Correct: OptionA})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteQuestionMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteQuestion(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRecountQuestionsFixesDrift(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	test, err := store.PutTest(ctx, Test{Title: "t", Subject: "physics"})
	require.NoError(t, err)
	_, err = store.AddQuestion(ctx, Question{
		TestID: test.ID, Points: 1, Prompt: "q",
		OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Correct: OptionD,
	})
	require.NoError(t, err)

	// Simulate counter drift.
	_, err = store.db.ExecContext(ctx, `UPDATE tests SET question_count=7 WHERE id=$1`, test.ID)
	require.NoError(t, err)

	n, err := store.RecountQuestions(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.QuestionCount)

	_, err = store.RecountQuestions(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPutTestUpsertAndPaidFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	test, err := store.PutTest(ctx, Test{Title: "t", Subject: "english"})
	require.NoError(t, err)
	assert.False(t, test.IsPaid())
	assert.Equal(t, "active", test.Status)

	test.Price = decimal.RequireFromString("15000")
	updated, err := store.PutTest(ctx, test)
	require.NoError(t, err)
	assert.True(t, updated.IsPaid())

	got, err := store.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("15000")))

	_, err = store.GetTest(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
