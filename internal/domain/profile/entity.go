// Package profile содержит доменную модель прогресса пользователя T4G Learn Hub.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// XP представляет очки опыта пользователя.
type XP int

// IsValid проверяет, что XP неотрицательный.
func (x XP) IsValid() bool {
	return x >= 0
}

// Add складывает XP.
func (x XP) Add(delta XP) XP {
	return x + delta
}

// Level представляет уровень пользователя (всегда >= 1).
type Level int

// IsValid проверяет, что уровень положительный.
func (l Level) IsValid() bool {
	return l >= 1
}

// Tokens представляет количество T4G в неделимых единицах.
type Tokens int64

// IsValid проверяет, что количество неотрицательное.
func (t Tokens) IsValid() bool {
	return t >= 0
}

// Add складывает токены.
func (t Tokens) Add(delta Tokens) Tokens {
	return t + delta
}

// ModuleID идентифицирует учебный модуль в каталоге контента.
type ModuleID string

// IsValid проверяет корректность идентификатора.
func (m ModuleID) IsValid() bool { return m != "" }

// String возвращает строковое представление.
func (m ModuleID) String() string { return string(m) }

// PathID идентифицирует учебный путь (упорядоченную группу модулей).
type PathID string

// IsValid проверяет корректность идентификатора.
func (p PathID) IsValid() bool { return p != "" }

// String возвращает строковое представление.
func (p PathID) String() string { return string(p) }

// AchievementID идентифицирует достижение в каталоге.
type AchievementID string

// IsValid проверяет корректность идентификатора.
func (a AchievementID) IsValid() bool { return a != "" }

// String возвращает строковое представление.
func (a AchievementID) String() string { return string(a) }

// BadgeID идентифицирует значок пользователя.
type BadgeID string

// IsValid проверяет корректность идентификатора.
func (b BadgeID) IsValid() bool { return b != "" }

// ══════════════════════════════════════════════════════════════════════════════
// MODULE COMPLETION
// ══════════════════════════════════════════════════════════════════════════════

// ModuleCompletion фиксирует однократное завершение модуля.
// Запись неизменяема: модуль переходит только из "не завершён" в "завершён".
type ModuleCompletion struct {
	// ModuleID - идентификатор модуля.
	ModuleID ModuleID

	// Score - результат (0-100).
	Score int

	// CompletedAt - время завершения.
	CompletedAt time.Time
}

// NewModuleCompletion создаёт запись о завершении модуля с валидацией.
func NewModuleCompletion(moduleID ModuleID, score int, completedAt time.Time) (ModuleCompletion, error) {
	if !moduleID.IsValid() {
		return ModuleCompletion{}, ErrInvalidModuleID
	}
	if score < 0 || score > 100 {
		return ModuleCompletion{}, ErrInvalidScore
	}
	return ModuleCompletion{
		ModuleID:    moduleID,
		Score:       score,
		CompletedAt: completedAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidModuleID - невалидный идентификатор модуля.
	ErrInvalidModuleID = errors.New("profile: invalid module id")

	// ErrInvalidScore - результат вне диапазона 0-100.
	ErrInvalidScore = errors.New("profile: score must be between 0 and 100")

	// ErrInvalidXP - невалидное значение XP.
	ErrInvalidXP = errors.New("profile: xp must be non-negative")

	// ErrInvalidTokens - невалидное количество токенов.
	ErrInvalidTokens = errors.New("profile: token amount must be non-negative")

	// ErrModuleAlreadyCompleted - модуль уже завершён этим пользователем.
	ErrModuleAlreadyCompleted = errors.New("profile: module already completed")

	// ErrPathAlreadyCompleted - путь уже завершён этим пользователем.
	ErrPathAlreadyCompleted = errors.New("profile: path already completed")

	// ErrAchievementAlreadyUnlocked - достижение уже разблокировано.
	ErrAchievementAlreadyUnlocked = errors.New("profile: achievement already unlocked")

	// ErrDuplicateBadge - значок уже выдан.
	ErrDuplicateBadge = errors.New("profile: duplicate badge")

	// ErrProfileNotFound - профиль не найден. Совместим с errors.Is
	// по shared.ErrNotFound.
	ErrProfileNotFound = fmt.Errorf("profile: %w", shared.ErrNotFound)
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// UserProfile - центральная сущность движка: состояние прогресса одного
// пользователя. Владелец - ProfileStore; все мутации идут только через
// операции движка. Инварианты:
//
//   - 0 <= XP < XPToNextLevel(Level) после любой мутации;
//   - TotalXP и TokenLifetimeEarned монотонно не убывают;
//   - модуль, достижение и значок встречаются не более одного раза.
type UserProfile struct {
	// ID - стабильный идентификатор, генерируется один раз, неизменяем.
	ID string

	// Level - текущий уровень (>= 1).
	Level Level

	// XP - очки опыта внутри текущего уровня.
	XP XP

	// TotalXP - накопленный XP за всё время, не сбрасывается при левел-апе.
	TotalXP XP

	// TokenBalance - доступный баланс T4G.
	TokenBalance Tokens

	// TokenLifetimeEarned - заработано T4G за всё время.
	TokenLifetimeEarned Tokens

	// StreakDays - текущая серия дней активности.
	StreakDays int

	// BestStreakDays - лучшая серия дней активности.
	BestStreakDays int

	// LastActivityAt - время последней учитываемой активности.
	LastActivityAt time.Time

	// CompletedModules - завершённые модули (ключ - ModuleID, уникален).
	CompletedModules map[ModuleID]ModuleCompletion

	// CompletedPaths - завершённые пути.
	CompletedPaths map[PathID]bool

	// UnlockedAchievements - разблокированные достижения в порядке получения.
	UnlockedAchievements []AchievementID

	// Badges - значки в порядке выдачи, только добавление, без дубликатов.
	Badges []BadgeID

	// PendingTransactions - транзакции, ещё не подтверждённые удалённым леджером.
	PendingTransactions []*RewardTransaction

	// EarlyAdopter - флаг раннего пользователя (участвует в множителе наград).
	EarlyAdopter bool

	// Premium - флаг премиум-подписки (участвует в множителе наград).
	Premium bool

	// CreatedAt - время создания профиля.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewProfileParams содержит параметры создания нового профиля.
type NewProfileParams struct {
	ID           string
	EarlyAdopter bool
	Premium      bool
	Now          time.Time
}

// NewProfile создаёт профиль в нулевом состоянии.
// Профиль создаётся при первом действии пользователя и никогда не удаляется
// движком; пользовательский сброс пересоздаёт его заново через эту фабрику.
func NewProfile(params NewProfileParams) (*UserProfile, error) {
	if params.ID == "" {
		return nil, errors.New("profile: id is required")
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &UserProfile{
		ID:                   params.ID,
		Level:                1,
		XP:                   0,
		TotalXP:              0,
		TokenBalance:         0,
		TokenLifetimeEarned:  0,
		StreakDays:           0,
		BestStreakDays:       0,
		LastActivityAt:       time.Time{},
		CompletedModules:     make(map[ModuleID]ModuleCompletion),
		CompletedPaths:       make(map[PathID]bool),
		UnlockedAchievements: nil,
		Badges:               nil,
		PendingTransactions:  nil,
		EarlyAdopter:         params.EarlyAdopter,
		Premium:              params.Premium,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// HasCompletedModule проверяет, завершён ли модуль.
func (p *UserProfile) HasCompletedModule(id ModuleID) bool {
	_, ok := p.CompletedModules[id]
	return ok
}

// RecordModuleCompletion фиксирует завершение модуля.
// Повторное завершение уже завершённого модуля - ошибка домена
// (вызывающий код трактует её как no-op).
func (p *UserProfile) RecordModuleCompletion(completion ModuleCompletion) error {
	if p.HasCompletedModule(completion.ModuleID) {
		return ErrModuleAlreadyCompleted
	}
	p.CompletedModules[completion.ModuleID] = completion
	p.UpdatedAt = completion.CompletedAt
	return nil
}

// HasCompletedPath проверяет, завершён ли путь.
func (p *UserProfile) HasCompletedPath(id PathID) bool {
	return p.CompletedPaths[id]
}

// RecordPathCompletion фиксирует завершение пути. Идемпотентность
// гарантирует вызывающий код через HasCompletedPath.
func (p *UserProfile) RecordPathCompletion(id PathID, now time.Time) error {
	if p.CompletedPaths[id] {
		return ErrPathAlreadyCompleted
	}
	p.CompletedPaths[id] = true
	p.UpdatedAt = now
	return nil
}

// HasAchievement проверяет, разблокировано ли достижение.
func (p *UserProfile) HasAchievement(id AchievementID) bool {
	for _, a := range p.UnlockedAchievements {
		if a == id {
			return true
		}
	}
	return false
}

// UnlockAchievement добавляет достижение, сохраняя порядок получения.
func (p *UserProfile) UnlockAchievement(id AchievementID, now time.Time) error {
	if p.HasAchievement(id) {
		return ErrAchievementAlreadyUnlocked
	}
	p.UnlockedAchievements = append(p.UnlockedAchievements, id)
	p.UpdatedAt = now
	return nil
}

// AwardBadge добавляет значок в конец последовательности.
func (p *UserProfile) AwardBadge(id BadgeID, now time.Time) error {
	for _, b := range p.Badges {
		if b == id {
			return ErrDuplicateBadge
		}
	}
	p.Badges = append(p.Badges, id)
	p.UpdatedAt = now
	return nil
}

// CreditTokens увеличивает баланс и пожизненный счётчик на amount.
// Отрицательные суммы отклоняются: TokenLifetimeEarned монотонен.
func (p *UserProfile) CreditTokens(amount Tokens, now time.Time) error {
	if amount < 0 {
		return ErrInvalidTokens
	}
	p.TokenBalance = p.TokenBalance.Add(amount)
	p.TokenLifetimeEarned = p.TokenLifetimeEarned.Add(amount)
	p.UpdatedAt = now
	return nil
}

// CorrectBalance заменяет баланс каноническим значением сервера.
// Сервер авторитетен при сверке; XP, уровни и достижения при этом
// никогда не перезаписываются. Пожизненный счётчик только растёт.
func (p *UserProfile) CorrectBalance(serverBalance Tokens, now time.Time) {
	if serverBalance > p.TokenBalance {
		p.TokenLifetimeEarned = p.TokenLifetimeEarned.Add(serverBalance - p.TokenBalance)
	}
	p.TokenBalance = serverBalance
	p.UpdatedAt = now
}

// EnqueueTransaction добавляет транзакцию в очередь ожидания подтверждения.
func (p *UserProfile) EnqueueTransaction(tx *RewardTransaction) {
	p.PendingTransactions = append(p.PendingTransactions, tx)
}

// RemoveTransaction убирает подтверждённую транзакцию из очереди.
func (p *UserProfile) RemoveTransaction(id string) bool {
	for i, tx := range p.PendingTransactions {
		if tx.ID == id {
			p.PendingTransactions = append(p.PendingTransactions[:i], p.PendingTransactions[i+1:]...)
			return true
		}
	}
	return false
}

// PendingTransaction возвращает ожидающую транзакцию по идентификатору.
func (p *UserProfile) PendingTransaction(id string) (*RewardTransaction, bool) {
	for _, tx := range p.PendingTransactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return nil, false
}

// ModulesCompletedIn возвращает число завершённых модулей из заданного набора.
func (p *UserProfile) ModulesCompletedIn(moduleIDs []ModuleID) int {
	count := 0
	for _, id := range moduleIDs {
		if p.HasCompletedModule(id) {
			count++
		}
	}
	return count
}

// String возвращает строковое представление профиля для логирования.
func (p *UserProfile) String() string {
	return fmt.Sprintf(
		"UserProfile{ID: %s, Level: %d, XP: %d/%d total, Tokens: %d, Streak: %d}",
		p.ID, p.Level, p.XP, p.TotalXP, p.TokenBalance, p.StreakDays,
	)
}

// Clone создаёт глубокую копию профиля. Снимки, отдаваемые наружу,
// никогда не делят память с состоянием движка.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}

	clone := *p

	clone.CompletedModules = make(map[ModuleID]ModuleCompletion, len(p.CompletedModules))
	for id, c := range p.CompletedModules {
		clone.CompletedModules[id] = c
	}

	clone.CompletedPaths = make(map[PathID]bool, len(p.CompletedPaths))
	for id := range p.CompletedPaths {
		clone.CompletedPaths[id] = true
	}

	clone.UnlockedAchievements = append([]AchievementID(nil), p.UnlockedAchievements...)
	clone.Badges = append([]BadgeID(nil), p.Badges...)

	clone.PendingTransactions = make([]*RewardTransaction, len(p.PendingTransactions))
	for i, tx := range p.PendingTransactions {
		txCopy := *tx
		clone.PendingTransactions[i] = &txCopy
	}

	return &clone
}
