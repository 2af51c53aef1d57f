package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/testonline/testonline-core/internal/auth"
	"github.com/testonline/testonline-core/internal/ledger"
)

// PostEntryHandler is the admin/webhook entry point for deposits, bonuses
// and manual adjustments. Purchases go through the attempt orchestrator,
// not here.
func PostEntryHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID         string          `json:"user_id"`
			Amount         decimal.Decimal `json:"amount"`
			Type           string          `json:"type"`
			Status         string          `json:"status"`
			IdempotencyKey string          `json:"idempotency_key"`
			Description    string          `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id required", 400)
			return
		}
		e, err := svc.PostEntry(r.Context(), ledger.PostInput{
			UserID:         req.UserID,
			Amount:         req.Amount,
			Type:           ledger.Type(req.Type),
			Status:         ledger.Status(req.Status),
			IdempotencyKey: req.IdempotencyKey,
			Description:    req.Description,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func TransitionEntryHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "entryID")
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		balance, err := svc.Transition(r.Context(), id, ledger.Status(req.Status))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entry_id": id, "status": req.Status, "balance": balance})
	}
}

func GetEntryHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.GetEntry(r.Context(), chi.URLParam(r, "entryID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// EntryHistoryHandler lists the authenticated user's own entries.
func EntryHistoryHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListEntries(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []ledger.Entry{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
