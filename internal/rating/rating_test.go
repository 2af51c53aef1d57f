package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testonline/testonline-core/internal/errs"
)

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels("1:0, 2:100, 3:250")
	require.NoError(t, err)
	assert.Equal(t, 3, levels.Max())
	assert.Equal(t, 1, levels.LevelFor(0))
	assert.Equal(t, 1, levels.LevelFor(99))
	assert.Equal(t, 2, levels.LevelFor(100))
	assert.Equal(t, 3, levels.LevelFor(250))
	assert.Equal(t, 3, levels.LevelFor(100000))
}

func TestParseLevelsRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"empty":                "",
		"missing colon":        "1-0,2-100",
		"bad level":            "x:0",
		"bad score":            "1:zero",
		"gap in levels":        "1:0,3:100",
		"not starting at 1":    "2:0,3:100",
		"first not zero":       "1:50,2:100",
		"non-increasing score": "1:0,2:100,3:100",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLevels(raw)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestParseSubject(t *testing.T) {
	s, ok := ParseSubject(" Math ")
	assert.True(t, ok)
	assert.Equal(t, SubjectMath, s)

	_, ok = ParseSubject("chemistry")
	assert.False(t, ok)
}

func TestProfileProgress(t *testing.T) {
	levels := MustParseLevels("1:0,2:100,3:250")

	p := Profile{TotalScore: 130, Level: 2}
	p.fillProgress(levels)
	assert.Equal(t, 30, p.CurrentLevelPoints)
	// The next-level field carries the absolute threshold, not the
	// remaining distance.
	require.NotNil(t, p.PointsToNextLevel)
	assert.Equal(t, 250, *p.PointsToNextLevel)
	require.NotNil(t, p.LevelProgress)
	assert.InDelta(t, 20.0, *p.LevelProgress, 0.001)

	// Max level has no "next".
	p = Profile{TotalScore: 400, Level: 3}
	p.fillProgress(levels)
	assert.Equal(t, 150, p.CurrentLevelPoints)
	assert.Nil(t, p.PointsToNextLevel)
	assert.Nil(t, p.LevelProgress)
}
