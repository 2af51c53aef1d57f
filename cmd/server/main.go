package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/testonline/testonline-core/internal/api/http"
	"github.com/testonline/testonline-core/internal/attempt"
	"github.com/testonline/testonline-core/internal/auth"
	"github.com/testonline/testonline-core/internal/catalog"
	"github.com/testonline/testonline-core/internal/config"
	"github.com/testonline/testonline-core/internal/db"
	"github.com/testonline/testonline-core/internal/identity"
	"github.com/testonline/testonline-core/internal/ledger"
	"github.com/testonline/testonline-core/internal/rating"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	levels, err := rating.ParseLevels(cfg.LevelThresholds)
	if err != nil {
		log.Fatalf("LEVEL_THRESHOLDS: %v", err)
	}

	// --- Services ---
	users := identity.NewStore(dbh)
	tests := catalog.NewSQLStore(dbh)
	ledgerSvc := ledger.NewService(dbh, db.Driver(cfg.DBDriver))
	ratingSvc := rating.NewService(dbh, db.Driver(cfg.DBDriver), levels)
	recalc := rating.NewRecalculator(dbh)
	attempts := attempt.NewService(dbh, tests, ledgerSvc, ratingSvc, users)
	tokens := auth.NewService(cfg.AuthHMACSecret, cfg.TokenTTL)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/register", api.RegisterHandler(users))
	r.Post("/auth/login", api.LoginHandler(users, tokens))

	// Protected API (JWT → claims in context)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(tokens))

		// Student flow
		pr.Get("/tests/{testID}", api.GetTestHandler(tests))
		pr.Post("/attempts/start", api.StartAttemptHandler(attempts))
		pr.Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(attempts))
		pr.Get("/attempts/{attemptID}", api.GetAttemptHandler(attempts))
		pr.Get("/attempts", api.AttemptHistoryHandler(attempts))

		pr.Get("/ratings", api.LeaderboardHandler(ratingSvc))
		pr.Get("/ratings/{userID}", api.GetRatingHandler(ratingSvc))

		pr.Get("/ledger/entries", api.EntryHistoryHandler(ledgerSvc))

		// Admin-only maintenance surface
		pr.Group(func(ar chi.Router) {
			ar.Use(auth.RequireRole(auth.RoleAdmin))

			ar.Post("/tests", api.PutTestHandler(tests))
			ar.Post("/tests/{testID}/questions", api.AddQuestionHandler(tests))
			ar.Delete("/questions/{questionID}", api.DeleteQuestionHandler(tests))
			ar.Post("/tests/{testID}/recount", api.RecountQuestionsHandler(tests))

			ar.Post("/ledger/entries", api.PostEntryHandler(ledgerSvc))
			ar.Get("/ledger/entries/{entryID}", api.GetEntryHandler(ledgerSvc))
			ar.Post("/ledger/entries/{entryID}/transition", api.TransitionEntryHandler(ledgerSvc))

			ar.Post("/ratings/recompute", api.RecomputeRanksHandler(recalc))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	if cfg.RankInterval > 0 {
		go recalc.RunLoop(context.Background(), cfg.RankInterval)
		log.Printf("rank recompute loop every %s", cfg.RankInterval)
	}

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
