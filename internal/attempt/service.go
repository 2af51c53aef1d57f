package attempt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/testonline/testonline-core/internal/catalog"
	"github.com/testonline/testonline-core/internal/errs"
	"github.com/testonline/testonline-core/internal/identity"
	"github.com/testonline/testonline-core/internal/ledger"
	"github.com/testonline/testonline-core/internal/rating"
)

// Catalog is the slice of the catalog store the orchestrator needs.
type Catalog interface {
	GetTest(ctx context.Context, id string) (catalog.Test, error)
}

// Ledger posts purchases and answers prior-purchase lookups.
type Ledger interface {
	PostEntry(ctx context.Context, in ledger.PostInput) (ledger.Entry, error)
	FindByKey(ctx context.Context, key string) (ledger.Entry, error)
}

// Rater applies earned points to the user's rating profile.
type Rater interface {
	ApplyScore(ctx context.Context, userID, subject string, points int) (rating.Profile, error)
}

// Users resolves the caller's account snapshot.
type Users interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

type Service struct {
	db      *sql.DB
	catalog Catalog
	ledger  Ledger
	rater   Rater
	users   Users
}

func NewService(sqldb *sql.DB, cat Catalog, led Ledger, rater Rater, users Users) *Service {
	return &Service{db: sqldb, catalog: cat, ledger: led, rater: rater, users: users}
}

// purchaseKey is the idempotency key for a (test, user) purchase. A second
// start of the same paid test finds the earlier successful entry by this
// key and does not charge again.
func purchaseKey(testID, userID string) string {
	return fmt.Sprintf("test:%s:user:%s", testID, userID)
}

// Start opens an in_progress attempt. For a paid test without a prior
// successful purchase it verifies the user may buy, checks affordability,
// and posts an immediately-successful debit before the attempt row exists,
// so an unpaid attempt can never be started.
func (s *Service) Start(ctx context.Context, userID, testID string) (Attempt, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Attempt{}, err
	}
	test, err := s.catalog.GetTest(ctx, testID)
	if err != nil {
		return Attempt{}, err
	}
	if test.Status != "active" {
		return Attempt{}, errs.Conflictf("test %s is %s", testID, test.Status)
	}

	if test.IsPaid() {
		key := purchaseKey(testID, userID)
		prior, err := s.ledger.FindByKey(ctx, key)
		switch {
		case err == nil && prior.Status == ledger.StatusSuccessful:
			// Already bought; nothing to charge.
		case err == nil:
			return Attempt{}, errs.Conflictf("purchase of test %s is %s", testID, prior.Status)
		case errors.Is(err, errs.ErrNotFound):
			if !user.CanTakePaidTests() {
				return Attempt{}, errs.Conflictf("user %s may not start paid tests", userID)
			}
			if user.Balance.LessThan(test.Price) {
				return Attempt{}, fmt.Errorf("%w: test %s costs %s, balance %s",
					errs.ErrInsufficientFunds, testID, test.Price, user.Balance)
			}
			if _, err := s.ledger.PostEntry(ctx, ledger.PostInput{
				UserID:         userID,
				Amount:         test.Price.Neg(),
				Type:           ledger.TypeTestPurchase,
				Status:         ledger.StatusSuccessful,
				IdempotencyKey: key,
				Description:    "purchase: " + test.Title,
			}); err != nil {
				return Attempt{}, err
			}
		default:
			return Attempt{}, err
		}
	}

	a := Attempt{
		ID:        uuid.NewString(),
		TestID:    testID,
		UserID:    userID,
		Status:    StatusInProgress,
		StartedAt: time.Now().Unix(),
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO attempts (id,test_id,user_id,status,started_at)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.TestID, a.UserID, string(a.Status), a.StartedAt); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// Submit grades the attempt against the answer key and completes it.
// Answers map question id to the selected option tag; questions without an
// answer are recorded as skipped, and answers keyed by questions that do
// not belong to the test are ignored. The completed attempt and all answer
// records commit in one transaction; the rating update runs after commit
// and its failure never undoes the attempt.
func (s *Service) Submit(ctx context.Context, userID, attemptID string, answers map[string]string) (Result, error) {
	a, err := s.getOwned(ctx, userID, attemptID)
	if err != nil {
		return Result{}, err
	}
	if a.Status != StatusInProgress {
		return Result{}, errs.Conflictf("attempt %s already %s", attemptID, a.Status)
	}

	test, err := s.catalog.GetTest(ctx, a.TestID)
	if err != nil {
		return Result{}, err
	}

	records := make([]AnswerRecord, 0, len(test.Questions))
	score := 0
	for _, q := range test.Questions {
		rec := AnswerRecord{AttemptID: a.ID, QuestionID: q.ID}
		if raw, ok := answers[q.ID]; ok {
			sel, err := catalog.ParseOption(raw)
			if err != nil {
				return Result{}, err
			}
			rec.Selected = &sel
			if sel == q.Correct {
				rec.Correct = true
				rec.Points = q.Points
				score += q.Points
			}
		}
		records = append(records, rec)
	}

	total := test.TotalPossible()
	now := time.Now().Unix()
	duration := now - a.StartedAt

	a.Status = StatusCompleted
	a.Score = score
	a.TotalPossible = total
	a.Percentage = percentage(score, total)
	a.FinishedAt = &now
	a.DurationSec = &duration

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE attempts
		SET status=$1, score=$2, total_possible=$3, percentage=$4, finished_at=$5, duration_sec=$6
		WHERE id=$7 AND status=$8`,
		string(a.Status), a.Score, a.TotalPossible, a.Percentage, now, duration, a.ID, string(StatusInProgress))
	if err != nil {
		return Result{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with another submit of the same attempt.
		return Result{}, errs.Conflictf("attempt %s already scored", attemptID)
	}
	for _, rec := range records {
		var sel any
		if rec.Selected != nil {
			sel = string(*rec.Selected)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO answers (attempt_id,question_id,selected,correct,points)
			VALUES ($1,$2,$3,$4,$5)`,
			rec.AttemptID, rec.QuestionID, sel, rec.Correct, rec.Points); err != nil {
			return Result{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}

	out := Result{Attempt: a, Answers: records}
	if _, err := s.rater.ApplyScore(ctx, userID, test.Subject, score); err != nil {
		log.Printf("rating update for attempt %s (user %s) failed: %v", a.ID, userID, err)
		out.RatingPending = true
	}
	return out, nil
}

// percentage is score over total as a percent, rounded to two decimals.
// A test with no questions scores 0.0, not NaN.
func percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*100*100) / 100
}

// Get returns an attempt the user owns, with its answer records when
// completed.
func (s *Service) Get(ctx context.Context, userID, attemptID string) (Result, error) {
	a, err := s.getOwned(ctx, userID, attemptID)
	if err != nil {
		return Result{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT attempt_id,question_id,selected,correct,points
		FROM answers WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()
	out := Result{Attempt: a}
	for rows.Next() {
		var rec AnswerRecord
		var sel sql.NullString
		if err := rows.Scan(&rec.AttemptID, &rec.QuestionID, &sel, &rec.Correct, &rec.Points); err != nil {
			return Result{}, err
		}
		if sel.Valid {
			o := catalog.Option(sel.String)
			rec.Selected = &o
		}
		out.Answers = append(out.Answers, rec)
	}
	return out, rows.Err()
}

// History lists the user's attempts, newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]Attempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,test_id,user_id,status,score,total_possible,percentage,started_at,finished_at,duration_sec
		FROM attempts WHERE user_id=$1 ORDER BY started_at DESC, id LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Service) getOwned(ctx context.Context, userID, attemptID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,test_id,user_id,status,score,total_possible,percentage,started_at,finished_at,duration_sec
		FROM attempts WHERE id=$1 AND user_id=$2`, attemptID, userID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errs.NotFoundf("attempt %s", attemptID)
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var a Attempt
	var status string
	var finished, duration sql.NullInt64
	if err := r.Scan(&a.ID, &a.TestID, &a.UserID, &status, &a.Score, &a.TotalPossible,
		&a.Percentage, &a.StartedAt, &finished, &duration); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	if finished.Valid {
		v := finished.Int64
		a.FinishedAt = &v
	}
	if duration.Valid {
		v := duration.Int64
		a.DurationSec = &v
	}
	return a, nil
}
