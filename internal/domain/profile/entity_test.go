package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfile_ZeroState(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	p, err := NewProfile(NewProfileParams{ID: "user-1", Now: now})
	require.NoError(t, err)

	assert.Equal(t, Level(1), p.Level)
	assert.Equal(t, XP(0), p.XP)
	assert.Equal(t, XP(0), p.TotalXP)
	assert.Equal(t, Tokens(0), p.TokenBalance)
	assert.Equal(t, 0, p.StreakDays)
	assert.True(t, p.LastActivityAt.IsZero())
	assert.Empty(t, p.CompletedModules)
	assert.Empty(t, p.UnlockedAchievements)
}

func TestNewProfile_RequiresID(t *testing.T) {
	_, err := NewProfile(NewProfileParams{})
	assert.Error(t, err)
}

func TestRecordModuleCompletion_Duplicate(t *testing.T) {
	p := newTestProfile(t)
	now := time.Now().UTC()

	completion, err := NewModuleCompletion("go-basics", 90, now)
	require.NoError(t, err)

	require.NoError(t, p.RecordModuleCompletion(completion))
	assert.True(t, p.HasCompletedModule("go-basics"))

	err = p.RecordModuleCompletion(completion)
	assert.ErrorIs(t, err, ErrModuleAlreadyCompleted)
	assert.Len(t, p.CompletedModules, 1)
}

func TestNewModuleCompletion_Validation(t *testing.T) {
	_, err := NewModuleCompletion("", 50, time.Now())
	assert.ErrorIs(t, err, ErrInvalidModuleID)

	_, err = NewModuleCompletion("go-basics", 101, time.Now())
	assert.ErrorIs(t, err, ErrInvalidScore)

	_, err = NewModuleCompletion("go-basics", -1, time.Now())
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestUnlockAchievement_PreservesOrder(t *testing.T) {
	p := newTestProfile(t)
	now := time.Now().UTC()

	require.NoError(t, p.UnlockAchievement("first-steps", now))
	require.NoError(t, p.UnlockAchievement("week-warrior", now))

	err := p.UnlockAchievement("first-steps", now)
	assert.ErrorIs(t, err, ErrAchievementAlreadyUnlocked)
	assert.Equal(t, []AchievementID{"first-steps", "week-warrior"}, p.UnlockedAchievements)
}

func TestCreditTokens(t *testing.T) {
	p := newTestProfile(t)
	now := time.Now().UTC()

	require.NoError(t, p.CreditTokens(100, now))
	require.NoError(t, p.CreditTokens(50, now))
	assert.Equal(t, Tokens(150), p.TokenBalance)
	assert.Equal(t, Tokens(150), p.TokenLifetimeEarned)

	err := p.CreditTokens(-10, now)
	assert.ErrorIs(t, err, ErrInvalidTokens)
	assert.Equal(t, Tokens(150), p.TokenBalance)
}

func TestCorrectBalance_ServerAuthoritative(t *testing.T) {
	p := newTestProfile(t)
	now := time.Now().UTC()
	require.NoError(t, p.CreditTokens(100, now))

	// Server reports less than the optimistic local value.
	p.CorrectBalance(80, now)
	assert.Equal(t, Tokens(80), p.TokenBalance)
	assert.Equal(t, Tokens(100), p.TokenLifetimeEarned)

	// Server reports more: the lifetime counter grows with the correction.
	p.CorrectBalance(120, now)
	assert.Equal(t, Tokens(120), p.TokenBalance)
	assert.Equal(t, Tokens(140), p.TokenLifetimeEarned)
}

func TestPendingTransactionQueue(t *testing.T) {
	p := newTestProfile(t)

	p.EnqueueTransaction(&RewardTransaction{ID: "tx-1", State: SyncStateLocal})
	p.EnqueueTransaction(&RewardTransaction{ID: "tx-2", State: SyncStateLocal})

	tx, ok := p.PendingTransaction("tx-1")
	require.True(t, ok)
	assert.Equal(t, "tx-1", tx.ID)

	assert.True(t, p.RemoveTransaction("tx-1"))
	assert.False(t, p.RemoveTransaction("tx-1"))
	assert.Len(t, p.PendingTransactions, 1)
}

func TestClone_Independence(t *testing.T) {
	p := newTestProfile(t)
	now := time.Now().UTC()

	completion, _ := NewModuleCompletion("go-basics", 90, now)
	require.NoError(t, p.RecordModuleCompletion(completion))
	require.NoError(t, p.UnlockAchievement("first-steps", now))
	p.EnqueueTransaction(&RewardTransaction{ID: "tx-1", State: SyncStateLocal})

	clone := p.Clone()
	clone.XP = 999
	clone.CompletedModules["extra"] = ModuleCompletion{ModuleID: "extra"}
	clone.UnlockedAchievements = append(clone.UnlockedAchievements, "week-warrior")
	clone.PendingTransactions[0].State = SyncStateConfirmed

	assert.Equal(t, XP(0), p.XP)
	assert.Len(t, p.CompletedModules, 1)
	assert.Len(t, p.UnlockedAchievements, 1)
	assert.Equal(t, SyncStateLocal, p.PendingTransactions[0].State)
}

func TestAchievementCatalog_EvaluateInCatalogOrder(t *testing.T) {
	catalog := DefaultAchievementCatalog()
	p := newTestProfile(t)
	now := time.Now().UTC()

	// Fresh profile qualifies for nothing.
	assert.Empty(t, catalog.Evaluate(p))

	for i, id := range []ModuleID{"m1", "m2", "m3", "m4", "m5"} {
		c, err := NewModuleCompletion(id, 80+i, now)
		require.NoError(t, err)
		require.NoError(t, p.RecordModuleCompletion(c))
	}
	p.Level = 5

	qualified := catalog.Evaluate(p)
	require.Len(t, qualified, 3)
	assert.Equal(t, AchievementID("first-steps"), qualified[0].ID)
	assert.Equal(t, AchievementID("knowledge-seeker"), qualified[1].ID)
	assert.Equal(t, AchievementID("level-5"), qualified[2].ID)

	// Already unlocked achievements are excluded from the next pass.
	require.NoError(t, p.UnlockAchievement("first-steps", now))
	qualified = catalog.Evaluate(p)
	require.Len(t, qualified, 2)
	assert.Equal(t, AchievementID("knowledge-seeker"), qualified[0].ID)
}

func TestAchievementCatalog_DuplicateIDsIgnored(t *testing.T) {
	catalog := NewAchievementCatalog([]AchievementDefinition{
		{ID: "a", Title: "first", Condition: func(*UserProfile) bool { return true }},
		{ID: "a", Title: "second", Condition: func(*UserProfile) bool { return true }},
	})
	assert.Equal(t, 1, catalog.Size())

	def, ok := catalog.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first", def.Title)
}
