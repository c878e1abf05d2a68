package profile

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementCondition - монотонное условие над профилем: единожды став
// истинным для данного профиля, оно не может стать ложным.
type AchievementCondition func(p *UserProfile) bool

// AchievementDefinition - запись каталога достижений.
type AchievementDefinition struct {
	// ID - идентификатор достижения.
	ID AchievementID

	// Title - название для уведомлений.
	Title string

	// Description - описание условия.
	Description string

	// RewardXP - разовое начисление XP при разблокировке.
	RewardXP XP

	// Badge - значок, выдаваемый вместе с достижением.
	Badge BadgeID

	// Condition - условие разблокировки.
	Condition AchievementCondition
}

// AchievementCatalog - упорядоченный каталог достижений. Порядок
// обхода - порядок добавления: уведомления о разблокировке
// детерминированы для одной и той же истории действий.
type AchievementCatalog struct {
	definitions []AchievementDefinition
	byID        map[AchievementID]int
}

// NewAchievementCatalog создаёт каталог из списка определений.
// Дубликаты идентификаторов игнорируются - остаётся первое определение.
func NewAchievementCatalog(defs []AchievementDefinition) *AchievementCatalog {
	c := &AchievementCatalog{
		byID: make(map[AchievementID]int, len(defs)),
	}
	for _, def := range defs {
		if _, exists := c.byID[def.ID]; exists {
			continue
		}
		c.byID[def.ID] = len(c.definitions)
		c.definitions = append(c.definitions, def)
	}
	return c
}

// Size возвращает число достижений в каталоге.
func (c *AchievementCatalog) Size() int {
	return len(c.definitions)
}

// Get возвращает определение по идентификатору.
func (c *AchievementCatalog) Get(id AchievementID) (AchievementDefinition, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return AchievementDefinition{}, false
	}
	return c.definitions[idx], true
}

// All возвращает определения в порядке каталога.
func (c *AchievementCatalog) All() []AchievementDefinition {
	return append([]AchievementDefinition(nil), c.definitions...)
}

// Evaluate возвращает достижения, условие которых выполнено, но которые
// ещё не разблокированы, в порядке каталога. Сама функция ничего не
// мутирует: разблокировку, значок и начисление RewardXP выполняет
// ProfileStore. Вызывается только после применения всех остальных
// мутаций действия, чтобы условия видели финальное состояние.
func (c *AchievementCatalog) Evaluate(p *UserProfile) []AchievementDefinition {
	var qualified []AchievementDefinition
	for _, def := range c.definitions {
		if p.HasAchievement(def.ID) {
			continue
		}
		if def.Condition != nil && def.Condition(p) {
			qualified = append(qualified, def)
		}
	}
	return qualified
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAchievementCatalog возвращает штатный каталог T4G Learn Hub.
func DefaultAchievementCatalog() *AchievementCatalog {
	return NewAchievementCatalog([]AchievementDefinition{
		{
			ID:          "first-steps",
			Title:       "First Steps",
			Description: "Complete your first learning module",
			RewardXP:    50,
			Badge:       "badge-first-steps",
			Condition: func(p *UserProfile) bool {
				return len(p.CompletedModules) >= 1
			},
		},
		{
			ID:          "knowledge-seeker",
			Title:       "Knowledge Seeker",
			Description: "Complete 5 learning modules",
			RewardXP:    150,
			Badge:       "badge-knowledge-seeker",
			Condition: func(p *UserProfile) bool {
				return len(p.CompletedModules) >= 5
			},
		},
		{
			ID:          "scholar",
			Title:       "Scholar",
			Description: "Complete 15 learning modules",
			RewardXP:    400,
			Badge:       "badge-scholar",
			Condition: func(p *UserProfile) bool {
				return len(p.CompletedModules) >= 15
			},
		},
		{
			ID:          "pathfinder",
			Title:       "Pathfinder",
			Description: "Complete a full learning path",
			RewardXP:    300,
			Badge:       "badge-pathfinder",
			Condition: func(p *UserProfile) bool {
				return len(p.CompletedPaths) >= 1
			},
		},
		{
			ID:          "week-warrior",
			Title:       "Week Warrior",
			Description: "Maintain a 7-day activity streak",
			RewardXP:    200,
			Badge:       "badge-week-warrior",
			Condition: func(p *UserProfile) bool {
				return p.BestStreakDays >= 7
			},
		},
		{
			ID:          "unstoppable",
			Title:       "Unstoppable",
			Description: "Maintain a 30-day activity streak",
			RewardXP:    1000,
			Badge:       "badge-unstoppable",
			Condition: func(p *UserProfile) bool {
				return p.BestStreakDays >= 30
			},
		},
		{
			ID:          "level-5",
			Title:       "Rising Star",
			Description: "Reach level 5",
			RewardXP:    250,
			Badge:       "badge-rising-star",
			Condition: func(p *UserProfile) bool {
				return p.Level >= 5
			},
		},
		{
			ID:          "level-10",
			Title:       "Veteran",
			Description: "Reach level 10",
			RewardXP:    600,
			Badge:       "badge-veteran",
			Condition: func(p *UserProfile) bool {
				return p.Level >= 10
			},
		},
		{
			ID:          "xp-collector",
			Title:       "XP Collector",
			Description: "Accumulate 10000 lifetime XP",
			RewardXP:    500,
			Badge:       "badge-xp-collector",
			Condition: func(p *UserProfile) bool {
				return p.TotalXP >= 10000
			},
		},
		{
			ID:          "token-holder",
			Title:       "Token Holder",
			Description: "Earn 1000 T4G lifetime",
			RewardXP:    300,
			Badge:       "badge-token-holder",
			Condition: func(p *UserProfile) bool {
				return p.TokenLifetimeEarned >= 1000
			},
		},
	})
}
