package profile

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// XPToNextLevel возвращает порог XP для перехода с уровня level на следующий.
// Кривая строго возрастает по уровню и детерминирована.
func XPToNextLevel(level Level) XP {
	if level < 1 {
		level = 1
	}
	return XP(math.Floor(100 * float64(level) * 1.5))
}

// XPGainResult описывает эффект начисления XP.
type XPGainResult struct {
	// LevelsGained - количество пройденных уровней за одно начисление.
	LevelsGained int

	// NewLevel - уровень после начисления.
	NewLevel Level

	// NewXP - XP внутри нового уровня.
	NewXP XP
}

// ApplyXPGain начисляет amount XP профилю, перенося избыток на следующие
// уровни циклом: одно крупное начисление может пройти несколько уровней.
// Отрицательные начисления отклоняются до любой мутации.
func ApplyXPGain(p *UserProfile, amount XP) (XPGainResult, error) {
	if amount < 0 {
		return XPGainResult{}, ErrInvalidXP
	}

	p.XP = p.XP.Add(amount)
	p.TotalXP = p.TotalXP.Add(amount)

	levelsGained := 0
	for p.XP >= XPToNextLevel(p.Level) {
		p.XP -= XPToNextLevel(p.Level)
		p.Level++
		levelsGained++
	}

	return XPGainResult{
		LevelsGained: levelsGained,
		NewLevel:     p.Level,
		NewXP:        p.XP,
	}, nil
}
