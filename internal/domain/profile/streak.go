package profile

import (
	"time"

	"github.com/t4g-hub/t4g-learn-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// StreakEvent - исход обновления серии дней активности.
type StreakEvent string

const (
	// StreakSameDay - повторная активность в тот же день, серия без изменений.
	StreakSameDay StreakEvent = "same-day"

	// StreakContinued - активность на следующий день, серия продолжена.
	StreakContinued StreakEvent = "continued"

	// StreakBroken - пропуск дня, серия начата заново с одного дня.
	StreakBroken StreakEvent = "broken"

	// StreakStarted - первая активность профиля.
	StreakStarted StreakEvent = "started"
)

// StreakUpdate - результат обновления серии.
type StreakUpdate struct {
	// StreakDays - серия после обновления.
	StreakDays int

	// Event - что произошло с серией.
	Event StreakEvent

	// PreviousStreak заполняется при обрыве - длина потерянной серии
	// для уведомления пользователя.
	PreviousStreak int
}

// UpdateStreak пересчитывает серию по целым прошедшим суткам:
// floor((now - LastActivityAt) / 24h). 0 - тот же день, 1 - серия
// продолжается (ровно на один день, не больше), больше 1 - серия
// обрывается и начинается заново с единицы (сегодняшняя активность
// сама считается первым днём новой серии).
// LastActivityAt сдвигается на now безусловно.
func UpdateStreak(p *UserProfile, now time.Time) StreakUpdate {
	defer func() {
		p.LastActivityAt = now
		if p.StreakDays > p.BestStreakDays {
			p.BestStreakDays = p.StreakDays
		}
	}()

	if p.LastActivityAt.IsZero() {
		p.StreakDays = 1
		return StreakUpdate{StreakDays: 1, Event: StreakStarted}
	}

	// Отрицательная разница возможна при переводе часов - трактуем как тот же день.
	switch daysDiff := timeutil.DaysBetween(p.LastActivityAt, now); {
	case daysDiff <= 0:
		return StreakUpdate{StreakDays: p.StreakDays, Event: StreakSameDay}
	case daysDiff == 1:
		p.StreakDays++
		return StreakUpdate{StreakDays: p.StreakDays, Event: StreakContinued}
	default:
		previous := p.StreakDays
		p.StreakDays = 1
		return StreakUpdate{StreakDays: 1, Event: StreakBroken, PreviousStreak: previous}
	}
}
