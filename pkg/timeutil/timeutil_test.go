package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysBetween(t *testing.T) {
	base := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	// 26 hours elapsed is exactly one whole day, even though the
	// interval crosses two UTC midnights.
	assert.Equal(t, 1, DaysBetween(base, base.Add(26*time.Hour)))

	// Under 24 hours is zero days.
	assert.Equal(t, 0, DaysBetween(base, base.Add(10*time.Minute)))

	// Crossing midnight does not make a day: 23:59 Monday -> 00:01
	// Tuesday is only 2 minutes elapsed.
	mon := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)
	tue := time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(mon, tue))

	// Reversed order floors toward negative infinity.
	assert.Equal(t, -1, DaysBetween(tue, mon))
	assert.Equal(t, -2, DaysBetween(base.Add(26*time.Hour), base))

	// Exactly 24 hours reversed is exactly -1.
	assert.Equal(t, -1, DaysBetween(base.Add(24*time.Hour), base))

	// 50 hours elapsed is two whole days.
	assert.Equal(t, 2, DaysBetween(base, base.Add(50*time.Hour)))
}

func TestDaysBetweenIgnoresLocalZone(t *testing.T) {
	// The same instants expressed in a non-UTC zone must give the same
	// answer: only elapsed time matters.
	almaty := time.FixedZone("UTC+5", 5*60*60)
	a := time.Date(2026, 3, 10, 2, 0, 0, 0, almaty) // 2026-03-09 21:00 UTC
	b := time.Date(2026, 3, 11, 4, 0, 0, 0, almaty) // 26h later

	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, 1, DaysBetween(a.UTC(), b.UTC()))
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 1, 1, 23, 59, 59, 0, time.UTC)
	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, b.Add(time.Second)))
}

func TestStartOfWeek(t *testing.T) {
	// 2026-03-11 is a Wednesday; week starts Monday 2026-03-09.
	wed := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), StartOfWeek(wed))

	// Sunday belongs to the week starting the previous Monday.
	sun := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), StartOfWeek(sun))
}

func TestNextMidnight(t *testing.T) {
	tm := time.Date(2026, 3, 10, 18, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), NextMidnight(tm))
}
