package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/testonline/testonline-core/internal/auth"
	"github.com/testonline/testonline-core/internal/errs"
	"github.com/testonline/testonline-core/internal/identity"
)

func RegisterHandler(users *identity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			FullName string `json:"full_name"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		u, err := users.Register(r.Context(), req.Email, req.FullName, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func LoginHandler(users *identity.Store, tokens *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		u, err := users.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			// Wrong email and wrong password look identical to the caller.
			if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			writeError(w, err)
			return
		}
		tok, err := tokens.IssueJWT(u.ID, auth.RoleStudent)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": tok})
	}
}
