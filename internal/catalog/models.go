package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/testonline/testonline-core/internal/errs"
)

// Option is one of the four answer tags a question offers.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// ParseOption validates an incoming option tag. Tags are case-insensitive
// on the wire but stored upper-case.
func ParseOption(s string) (Option, error) {
	switch o := Option(strings.ToUpper(strings.TrimSpace(s))); o {
	case OptionA, OptionB, OptionC, OptionD:
		return o, nil
	default:
		return "", errs.Validationf("unknown option tag %q", s)
	}
}

type Question struct {
	ID       string `json:"id"`
	TestID   string `json:"test_id"`
	Position int    `json:"position"`
	Points   int    `json:"points"`
	Prompt   string `json:"prompt"`
	OptionA  string `json:"option_a"`
	OptionB  string `json:"option_b"`
	OptionC  string `json:"option_c"`
	OptionD  string `json:"option_d"`
	Correct  Option `json:"-"` // never serialized to students
}

type Test struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Subject       string          `json:"subject"`
	Price         decimal.Decimal `json:"price"`
	TimeLimitSec  int             `json:"time_limit_sec"`
	Status        string          `json:"status"`
	QuestionCount int             `json:"question_count"`
	CreatedAt     int64           `json:"created_at"`
	Questions     []Question      `json:"questions,omitempty"`
}

// IsPaid reports whether starting this test requires a purchase.
func (t Test) IsPaid() bool { return t.Price.IsPositive() }

// TotalPossible is the sum of points over all loaded questions.
func (t Test) TotalPossible() int {
	total := 0
	for _, q := range t.Questions {
		total += q.Points
	}
	return total
}
