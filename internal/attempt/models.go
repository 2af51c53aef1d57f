// Package attempt orchestrates a test attempt end to end: purchase on
// start for paid tests, grading against the answer key on submit, and the
// hand-off of earned points to the rating ledger.
package attempt

import "github.com/testonline/testonline-core/internal/catalog"

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Attempt struct {
	ID            string   `json:"id"`
	TestID        string   `json:"test_id"`
	UserID        string   `json:"user_id"`
	Status        Status   `json:"status"`
	Score         int      `json:"score"`
	TotalPossible int      `json:"total_possible"`
	Percentage    float64  `json:"percentage"`
	StartedAt     int64    `json:"started_at"`
	FinishedAt    *int64   `json:"finished_at,omitempty"`
	DurationSec   *int64   `json:"duration_sec,omitempty"`
}

// AnswerRecord is the per-question grading outcome persisted with the
// attempt. Skipped questions still get a record, with Selected nil and
// Correct false, so the row count always equals the question count.
type AnswerRecord struct {
	AttemptID  string          `json:"attempt_id"`
	QuestionID string          `json:"question_id"`
	Selected   *catalog.Option `json:"selected"`
	Correct    bool            `json:"correct"`
	Points     int             `json:"points"`
}

// Result is what a completed submit returns: the graded attempt, its
// per-question breakdown, and whether the rating update is still owed
// (it failed after the attempt committed and will be logged, not retried
// inside the request).
type Result struct {
	Attempt       Attempt        `json:"attempt"`
	Answers       []AnswerRecord `json:"answers"`
	RatingPending bool           `json:"rating_pending,omitempty"`
}
