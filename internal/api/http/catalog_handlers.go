package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/testonline/testonline-core/internal/catalog"
)

func PutTestHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID           string          `json:"id"`
			Title        string          `json:"title"`
			Subject      string          `json:"subject"`
			Price        decimal.Decimal `json:"price"`
			TimeLimitSec int             `json:"time_limit_sec"`
			Status       string          `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.Title == "" || req.Subject == "" {
			http.Error(w, "title and subject required", 400)
			return
		}
		t := catalog.Test{
			ID: req.ID, Title: req.Title, Subject: req.Subject,
			Price: req.Price, TimeLimitSec: req.TimeLimitSec, Status: req.Status,
		}
		created, err := store.PutTest(r.Context(), t)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// GetTestHandler returns the student view: questions without the answer
// key (Correct is json:"-" on the model).
func GetTestHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.GetTest(r.Context(), chi.URLParam(r, "testID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func AddQuestionHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Position int    `json:"position"`
			Points   int    `json:"points"`
			Prompt   string `json:"prompt"`
			OptionA  string `json:"option_a"`
			OptionB  string `json:"option_b"`
			OptionC  string `json:"option_c"`
			OptionD  string `json:"option_d"`
			Correct  string `json:"correct"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		q := catalog.Question{
			TestID: chi.URLParam(r, "testID"), Position: req.Position, Points: req.Points,
			Prompt: req.Prompt, OptionA: req.OptionA, OptionB: req.OptionB,
			OptionC: req.OptionC, OptionD: req.OptionD, Correct: catalog.Option(req.Correct),
		}
		q, err := store.AddQuestion(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

func DeleteQuestionHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RecountQuestionsHandler reconciles a test's question counter with the
// actual row count.
func RecountQuestionsHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := store.RecountQuestions(r.Context(), chi.URLParam(r, "testID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"question_count": n})
	}
}
