package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/testonline/testonline-core/internal/errs"
)

// Store is the read/maintenance surface the scoring engine and admin
// tooling consume. Attempt scoring only ever calls GetTest.
type Store interface {
	PutTest(ctx context.Context, t Test) (Test, error)
	GetTest(ctx context.Context, id string) (Test, error)
	AddQuestion(ctx context.Context, q Question) (Question, error)
	DeleteQuestion(ctx context.Context, questionID string) error
	RecountQuestions(ctx context.Context, testID string) (int, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutTest(ctx context.Context, t Test) (Test, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	if t.Status == "" {
		t.Status = "active"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tests (id,title,subject,price,time_limit_sec,status,question_count,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, subject=EXCLUDED.subject,
			price=EXCLUDED.price, time_limit_sec=EXCLUDED.time_limit_sec, status=EXCLUDED.status`,
		t.ID, t.Title, t.Subject, t.Price, t.TimeLimitSec, t.Status, t.CreatedAt)
	return t, err
}

// GetTest loads a test with its questions, answer keys included. This is
// the grading-side view; the key is stripped at the JSON layer.
func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,subject,price,time_limit_sec,status,question_count,created_at
		FROM tests WHERE id=$1`, id)
	var t Test
	if err := row.Scan(&t.ID, &t.Title, &t.Subject, &t.Price, &t.TimeLimitSec, &t.Status, &t.QuestionCount, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, errs.NotFoundf("test %s", id)
		}
		return Test{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id,test_id,position,points,prompt,option_a,option_b,option_c,option_d,correct_option
		FROM questions WHERE test_id=$1 ORDER BY position, id`, id)
	if err != nil {
		return Test{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var q Question
		var correct string
		if err := rows.Scan(&q.ID, &q.TestID, &q.Position, &q.Points, &q.Prompt,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &correct); err != nil {
			return Test{}, err
		}
		q.Correct = Option(correct)
		t.Questions = append(t.Questions, q)
	}
	return t, rows.Err()
}

// AddQuestion inserts the question and bumps the owning test's
// question_count inside one transaction. The increment/decrement pair is
// the authoritative counter path; RecountQuestions exists as a periodic
// consistency check, not a second writer.
func (s *SQLStore) AddQuestion(ctx context.Context, q Question) (Question, error) {
	if q.Points <= 0 {
		return Question{}, errs.Validationf("question points must be positive, got %d", q.Points)
	}
	if _, err := ParseOption(string(q.Correct)); err != nil {
		return Question{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, err
	}
	defer tx.Rollback()

	if q.Position == 0 {
		var maxPos sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM questions WHERE test_id=$1`, q.TestID).Scan(&maxPos); err != nil {
			return Question{}, err
		}
		q.Position = int(maxPos.Int64) + 1
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,test_id,position,points,prompt,option_a,option_b,option_c,option_d,correct_option)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		q.ID, q.TestID, q.Position, q.Points, q.Prompt, q.OptionA, q.OptionB, q.OptionC, q.OptionD, string(q.Correct)); err != nil {
		return Question{}, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tests SET question_count = question_count + 1 WHERE id=$1`, q.TestID)
	if err != nil {
		return Question{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Question{}, errs.NotFoundf("test %s", q.TestID)
	}
	return q, tx.Commit()
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, questionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var testID string
	if err := tx.QueryRowContext(ctx, `SELECT test_id FROM questions WHERE id=$1`, questionID).Scan(&testID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFoundf("question %s", questionID)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, questionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tests SET question_count = question_count - 1 WHERE id=$1`, testID); err != nil {
		return err
	}
	return tx.Commit()
}

// RecountQuestions rewrites question_count from the actual row count and
// returns it. Run periodically as a drift check on the counter.
func (s *SQLStore) RecountQuestions(ctx context.Context, testID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE test_id=$1`, testID).Scan(&n); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tests SET question_count=$1 WHERE id=$2`, n, testID)
	if err != nil {
		return 0, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, errs.NotFoundf("test %s", testID)
	}
	return n, tx.Commit()
}
