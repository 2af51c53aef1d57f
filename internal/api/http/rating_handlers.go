package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/testonline/testonline-core/internal/rating"
)

func GetRatingHandler(svc *rating.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetProfile(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func LeaderboardHandler(svc *rating.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		list, err := svc.Leaderboard(r.Context(), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []rating.Profile{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// RecomputeRanksHandler triggers a rerank on demand (admin only); the
// scheduled loop covers the steady state.
func RecomputeRanksHandler(rec *rating.Recalculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := rec.RecomputeRanks(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": n})
	}
}
