package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfile(t *testing.T) *UserProfile {
	t.Helper()
	p, err := NewProfile(NewProfileParams{
		ID:  "user-1",
		Now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func TestXPToNextLevel_StrictlyIncreasing(t *testing.T) {
	for level := Level(1); level < 100; level++ {
		assert.Greater(t, XPToNextLevel(level+1), XPToNextLevel(level))
	}
}

func TestXPToNextLevel_Values(t *testing.T) {
	assert.Equal(t, XP(150), XPToNextLevel(1))
	assert.Equal(t, XP(300), XPToNextLevel(2))
	assert.Equal(t, XP(450), XPToNextLevel(3))
	assert.Equal(t, XP(1500), XPToNextLevel(10))
}

func TestApplyXPGain_Simple(t *testing.T) {
	p := newTestProfile(t)

	result, err := ApplyXPGain(p, 100)
	assert.NoError(t, err)
	assert.Equal(t, 0, result.LevelsGained)
	assert.Equal(t, Level(1), p.Level)
	assert.Equal(t, XP(100), p.XP)
	assert.Equal(t, XP(100), p.TotalXP)
}

func TestApplyXPGain_SingleLevelUp(t *testing.T) {
	p := newTestProfile(t)

	result, err := ApplyXPGain(p, 200)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.LevelsGained)
	assert.Equal(t, Level(2), p.Level)
	assert.Equal(t, XP(50), p.XP)
	assert.Equal(t, XP(200), p.TotalXP)
}

func TestApplyXPGain_MultiLevelOverflow(t *testing.T) {
	p := newTestProfile(t)

	// 150 + 300 + 450 = 900 crosses three levels, leaving 100 into level 4.
	result, err := ApplyXPGain(p, 1000)
	assert.NoError(t, err)
	assert.Equal(t, 3, result.LevelsGained)
	assert.Equal(t, Level(4), p.Level)
	assert.Equal(t, XP(100), p.XP)
	assert.Equal(t, XP(1000), p.TotalXP)
}

func TestApplyXPGain_ExactThreshold(t *testing.T) {
	p := newTestProfile(t)

	result, err := ApplyXPGain(p, 150)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.LevelsGained)
	assert.Equal(t, Level(2), p.Level)
	assert.Equal(t, XP(0), p.XP)
}

func TestApplyXPGain_NegativeRejected(t *testing.T) {
	p := newTestProfile(t)

	_, err := ApplyXPGain(p, -10)
	assert.ErrorIs(t, err, ErrInvalidXP)
	assert.Equal(t, XP(0), p.XP)
	assert.Equal(t, XP(0), p.TotalXP)
}

func TestApplyXPGain_AccountingLaw(t *testing.T) {
	p := newTestProfile(t)

	gains := []XP{30, 200, 75, 1000, 5, 450}
	var sum XP
	for _, g := range gains {
		_, err := ApplyXPGain(p, g)
		require.NoError(t, err)
		sum += g

		// Invariant: xp always below the current level threshold.
		assert.GreaterOrEqual(t, p.XP, XP(0))
		assert.Less(t, p.XP, XPToNextLevel(p.Level))
	}
	assert.Equal(t, sum, p.TotalXP)
}
