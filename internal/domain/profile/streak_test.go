package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpdateStreak_FirstActivity(t *testing.T) {
	p := newTestProfile(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	update := UpdateStreak(p, now)
	assert.Equal(t, StreakStarted, update.Event)
	assert.Equal(t, 1, update.StreakDays)
	assert.Equal(t, 1, p.StreakDays)
	assert.Equal(t, 1, p.BestStreakDays)
	assert.Equal(t, now, p.LastActivityAt)
}

func TestUpdateStreak_SameDay(t *testing.T) {
	p := newTestProfile(t)
	p.StreakDays = 3
	p.LastActivityAt = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	update := UpdateStreak(p, now)
	assert.Equal(t, StreakSameDay, update.Event)
	assert.Equal(t, 3, p.StreakDays)
	assert.Equal(t, now, p.LastActivityAt)
}

func TestUpdateStreak_SameDayJustAfterMidnight(t *testing.T) {
	p := newTestProfile(t)
	p.StreakDays = 3
	p.LastActivityAt = time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)

	// A new calendar day but only two minutes elapsed: the streak does
	// not advance until a full 24h has passed.
	now := time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)
	update := UpdateStreak(p, now)
	assert.Equal(t, StreakSameDay, update.Event)
	assert.Equal(t, 3, p.StreakDays)
	assert.Equal(t, now, p.LastActivityAt)
}

func TestUpdateStreak_ContinuedAfter26Hours(t *testing.T) {
	p := newTestProfile(t)
	p.StreakDays = 6
	p.LastActivityAt = time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)

	// 26 hours crosses two UTC midnights but is one whole elapsed day,
	// so the streak grows by exactly one.
	now := p.LastActivityAt.Add(26 * time.Hour)
	update := UpdateStreak(p, now)
	assert.Equal(t, StreakContinued, update.Event)
	assert.Equal(t, 7, p.StreakDays)
	assert.Equal(t, 7, p.BestStreakDays)
}

func TestUpdateStreak_BrokenAfterSkippedDay(t *testing.T) {
	p := newTestProfile(t)
	p.StreakDays = 12
	p.BestStreakDays = 12
	p.LastActivityAt = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	now := p.LastActivityAt.Add(50 * time.Hour)
	update := UpdateStreak(p, now)
	assert.Equal(t, StreakBroken, update.Event)
	assert.Equal(t, 1, update.StreakDays)
	assert.Equal(t, 12, update.PreviousStreak)
	// The current day's activity is day one of the new streak.
	assert.Equal(t, 1, p.StreakDays)
	assert.Equal(t, 12, p.BestStreakDays)
}

func TestUpdateStreak_ClockSkewTreatedAsSameDay(t *testing.T) {
	p := newTestProfile(t)
	p.StreakDays = 5
	p.LastActivityAt = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	now := p.LastActivityAt.Add(-2 * time.Hour)
	update := UpdateStreak(p, now)
	assert.Equal(t, StreakSameDay, update.Event)
	assert.Equal(t, 5, p.StreakDays)
}

func TestUpdateStreak_BestStreakTracksMaximum(t *testing.T) {
	p := newTestProfile(t)
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		UpdateStreak(p, day.AddDate(0, 0, i))
	}
	assert.Equal(t, 5, p.BestStreakDays)

	// Break the streak, best stays.
	UpdateStreak(p, day.AddDate(0, 0, 10))
	assert.Equal(t, 1, p.StreakDays)
	assert.Equal(t, 5, p.BestStreakDays)
}
