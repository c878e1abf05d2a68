package profile

import "errors"

// ══════════════════════════════════════════════════════════════════════════════
// REWARD MULTIPLIERS
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty представляет сложность учебного материала.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// IsValid проверяет, что сложность известна политике.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert, "":
		return true
	}
	return false
}

// ErrUnknownDifficulty - неизвестная сложность в метаданных действия.
var ErrUnknownDifficulty = errors.New("profile: unknown difficulty")

// ActionMetadata - контекст действия, влияющий на размер награды.
// Пустые поля трактуются как нейтральные (множитель 1.0).
type ActionMetadata struct {
	// Difficulty - сложность материала, пустая строка означает beginner.
	Difficulty Difficulty

	// StreakDays - текущая серия дней активности на момент расчёта.
	StreakDays int

	// EarlyAdopter - ранний пользователь платформы.
	EarlyAdopter bool

	// Premium - активная премиум-подписка.
	Premium bool

	// ModuleID заполняется для действий завершения модуля.
	ModuleID ModuleID

	// PathID заполняется для действий завершения пути.
	PathID PathID

	// Score - результат квиза или модуля (0-100), если применимо.
	Score int
}

// Validate проверяет структурную корректность метаданных.
func (m ActionMetadata) Validate() error {
	if !m.Difficulty.IsValid() {
		return ErrUnknownDifficulty
	}
	if m.StreakDays < 0 {
		return errors.New("profile: negative streak days")
	}
	if m.Score < 0 || m.Score > 100 {
		return ErrInvalidScore
	}
	return nil
}

// ComputeMultiplier вычисляет суммарный множитель награды.
// Множители комбинируются умножением в фиксированном порядке:
// сложность, серия, ранний пользователь, премиум. Ярусы серии
// взаимоисключающие - применяется только наивысший подходящий.
// Округление выполняет калькулятор один раз в конце, не здесь.
func ComputeMultiplier(m ActionMetadata) float64 {
	multiplier := difficultyMultiplier(m.Difficulty)
	multiplier *= streakMultiplier(m.StreakDays)
	if m.EarlyAdopter {
		multiplier *= 3.0
	}
	if m.Premium {
		multiplier *= 1.5
	}
	return multiplier
}

func difficultyMultiplier(d Difficulty) float64 {
	switch d {
	case DifficultyIntermediate:
		return 1.3
	case DifficultyAdvanced:
		return 1.7
	case DifficultyExpert:
		return 2.2
	default:
		return 1.0
	}
}

func streakMultiplier(days int) float64 {
	switch {
	case days >= 7:
		return 1.25
	case days >= 1:
		return 1.1
	default:
		return 1.0
	}
}
