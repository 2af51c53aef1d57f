// Package rating owns the per-user rating profile: per-subject score
// buckets, the derived total and level, and the dense rank recomputed by
// the recalculator. Scores only ever grow; rank is read-only between
// recomputes.
package rating

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/testonline/testonline-core/internal/errs"
)

// Subject identifies a per-subject score bucket on the profile.
type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectPhysics Subject = "physics"
	SubjectEnglish Subject = "english"
)

// ParseSubject maps a test's subject name onto a profile bucket. Unknown
// subjects are not an error: their points count toward the total only, so
// the second return reports whether a bucket exists.
func ParseSubject(s string) (Subject, bool) {
	switch sub := Subject(strings.ToLower(strings.TrimSpace(s))); sub {
	case SubjectMath, SubjectPhysics, SubjectEnglish:
		return sub, true
	default:
		return "", false
	}
}

// Level pairs a level number with the minimum total score that reaches it.
type Level struct {
	Level    int
	MinScore int
}

// Levels is an immutable, ascending threshold table. Built once at startup
// from config and shared by the service and its tests.
type Levels struct {
	table []Level
}

// ParseLevels parses the "level:minScore,level:minScore,…" config form,
// e.g. "1:0,2:100,3:250". Levels must start at 1 and increase by one, and
// thresholds must be strictly increasing with the first at 0.
func ParseLevels(raw string) (Levels, error) {
	parts := strings.Split(raw, ",")
	table := make([]Level, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lv, min, ok := strings.Cut(p, ":")
		if !ok {
			return Levels{}, errs.Validationf("level threshold %q: want level:minScore", p)
		}
		level, err := strconv.Atoi(strings.TrimSpace(lv))
		if err != nil {
			return Levels{}, errs.Validationf("level threshold %q: bad level: %v", p, err)
		}
		score, err := strconv.Atoi(strings.TrimSpace(min))
		if err != nil {
			return Levels{}, errs.Validationf("level threshold %q: bad min score: %v", p, err)
		}
		table = append(table, Level{Level: level, MinScore: score})
	}
	if len(table) == 0 {
		return Levels{}, errs.Validationf("level threshold table is empty")
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Level < table[j].Level })
	for i, l := range table {
		if l.Level != i+1 {
			return Levels{}, errs.Validationf("level numbers must run 1..%d without gaps, got %d at position %d", len(table), l.Level, i+1)
		}
		if i == 0 {
			if l.MinScore != 0 {
				return Levels{}, errs.Validationf("level 1 must start at score 0, got %d", l.MinScore)
			}
			continue
		}
		if l.MinScore <= table[i-1].MinScore {
			return Levels{}, errs.Validationf("level %d threshold %d must exceed level %d threshold %d",
				l.Level, l.MinScore, table[i-1].Level, table[i-1].MinScore)
		}
	}
	return Levels{table: table}, nil
}

// MustParseLevels is for tests and hard-coded defaults.
func MustParseLevels(raw string) Levels {
	l, err := ParseLevels(raw)
	if err != nil {
		panic(fmt.Sprintf("rating: bad level table: %v", err))
	}
	return l
}

// LevelFor returns the highest level whose threshold the total reaches.
func (l Levels) LevelFor(total int) int {
	level := l.table[0].Level
	for _, t := range l.table {
		if total >= t.MinScore {
			level = t.Level
		}
	}
	return level
}

// Max is the top level of the table.
func (l Levels) Max() int { return l.table[len(l.table)-1].Level }

// thresholdOf returns the min score of the given level.
func (l Levels) thresholdOf(level int) int { return l.table[level-1].MinScore }

// Profile is a user's rating snapshot plus the level-progress figures
// derived from the threshold table.
type Profile struct {
	UserID       string `json:"user_id"`
	MathScore    int    `json:"math_score"`
	PhysicsScore int    `json:"physics_score"`
	EnglishScore int    `json:"english_score"`
	TotalScore   int    `json:"total_score"`
	Level        int    `json:"level"`
	Rank         *int   `json:"rank,omitempty"` // nil until the first recompute
	UpdatedAt    int64  `json:"updated_at"`

	// Derived, filled by the service on read. PointsToNextLevel is the
	// absolute threshold of the next level, not the remaining distance.
	CurrentLevelPoints int      `json:"current_level_points"`
	PointsToNextLevel  *int     `json:"points_to_next_level,omitempty"` // nil at max level
	LevelProgress      *float64 `json:"level_progress,omitempty"`       // 0..100, nil at max level
}

// fillProgress computes the derived level-progress fields from the table.
func (p *Profile) fillProgress(levels Levels) {
	base := levels.thresholdOf(p.Level)
	p.CurrentLevelPoints = p.TotalScore - base
	if p.Level >= levels.Max() {
		p.PointsToNextLevel = nil
		p.LevelProgress = nil
		return
	}
	next := levels.thresholdOf(p.Level + 1)
	p.PointsToNextLevel = &next
	span := next - base
	progress := float64(p.CurrentLevelPoints) / float64(span) * 100
	p.LevelProgress = &progress
}
