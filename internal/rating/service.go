package rating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/testonline/testonline-core/internal/db"
	"github.com/testonline/testonline-core/internal/errs"
)

type Service struct {
	db     *sql.DB
	driver db.Driver
	levels Levels
}

func NewService(sqldb *sql.DB, driver db.Driver, levels Levels) *Service {
	return &Service{db: sqldb, driver: driver, levels: levels}
}

func (s *Service) forUpdate() string {
	if s.driver == db.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// ApplyScore adds points earned on a completed attempt to the user's
// profile: into the bucket the test's subject maps to (or total-only for
// unmapped subjects), then recomputes total and level in the same
// transaction. Scores only accumulate; negative deltas are rejected.
// A missing profile row means registration's invariant was broken and is
// surfaced as ErrDataIntegrity for the caller to log and degrade on.
func (s *Service) ApplyScore(ctx context.Context, userID, subjectName string, points int) (Profile, error) {
	if points < 0 {
		return Profile{}, errs.Validationf("score delta must be non-negative, got %d", points)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Profile{}, err
	}
	defer tx.Rollback()

	p, err := scanProfile(tx.QueryRowContext(ctx, `SELECT user_id,math_score,physics_score,english_score,total_score,level,rank,updated_at
		FROM rating_profiles WHERE user_id=$1`+s.forUpdate(), userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, fmt.Errorf("%w: user %s has no rating profile", errs.ErrDataIntegrity, userID)
		}
		return Profile{}, err
	}

	if subject, ok := ParseSubject(subjectName); ok {
		switch subject {
		case SubjectMath:
			p.MathScore += points
		case SubjectPhysics:
			p.PhysicsScore += points
		case SubjectEnglish:
			p.EnglishScore += points
		}
	}
	p.TotalScore += points
	p.Level = s.levels.LevelFor(p.TotalScore)
	p.UpdatedAt = time.Now().Unix()

	if _, err := tx.ExecContext(ctx, `UPDATE rating_profiles
		SET math_score=$1, physics_score=$2, english_score=$3, total_score=$4, level=$5, updated_at=$6
		WHERE user_id=$7`,
		p.MathScore, p.PhysicsScore, p.EnglishScore, p.TotalScore, p.Level, p.UpdatedAt, p.UserID); err != nil {
		return Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return Profile{}, err
	}
	p.fillProgress(s.levels)
	return p, nil
}

// GetProfile returns the profile with its derived progress figures.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT user_id,math_score,physics_score,english_score,total_score,level,rank,updated_at
		FROM rating_profiles WHERE user_id=$1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, errs.NotFoundf("rating profile for user %s", userID)
		}
		return Profile{}, err
	}
	p.fillProgress(s.levels)
	return p, nil
}

// Leaderboard lists ranked profiles in rank order. Profiles without a rank
// (never recomputed, or excluded as blocked/inactive) do not appear.
func (s *Service) Leaderboard(ctx context.Context, limit, offset int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id,math_score,physics_score,english_score,total_score,level,rank,updated_at
		FROM rating_profiles WHERE rank IS NOT NULL ORDER BY rank, user_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		p.fillProgress(s.levels)
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(r rowScanner) (Profile, error) {
	var p Profile
	var rank sql.NullInt64
	if err := r.Scan(&p.UserID, &p.MathScore, &p.PhysicsScore, &p.EnglishScore,
		&p.TotalScore, &p.Level, &rank, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	if rank.Valid {
		v := int(rank.Int64)
		p.Rank = &v
	}
	return p, nil
}
