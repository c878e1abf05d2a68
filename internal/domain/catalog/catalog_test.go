package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
)

func TestGetActionPolicy_KnownActions(t *testing.T) {
	policy, ok := GetActionPolicy(profile.ActionModuleCompletion)
	require.True(t, ok)
	assert.Equal(t, profile.Tokens(100), policy.BaseAmount)
	assert.Equal(t, CategoryLearning, policy.Category)

	policy, ok = GetActionPolicy(profile.ActionCodeContribution)
	require.True(t, ok)
	assert.Equal(t, CategoryContribution, policy.Category)
}

func TestGetActionPolicy_UnknownAction(t *testing.T) {
	_, ok := GetActionPolicy(profile.ActionKind("play-minesweeper"))
	assert.False(t, ok)
}

func TestGetActionPolicy_CoversAllActionKinds(t *testing.T) {
	kinds := []profile.ActionKind{
		profile.ActionModuleCompletion,
		profile.ActionPathCompletion,
		profile.ActionQuizPassed,
		profile.ActionDailyVisit,
		profile.ActionDocFeedback,
		profile.ActionCodeContribution,
		profile.ActionAnswerAccepted,
		profile.ActionProfileCompleted,
		profile.ActionReferral,
	}
	for _, kind := range kinds {
		_, ok := GetActionPolicy(kind)
		assert.True(t, ok, "missing policy for %s", kind)
	}
}

func TestPathOfModule(t *testing.T) {
	c := DefaultContentCatalog()

	path, ok := c.PathOfModule("wallet-setup")
	require.True(t, ok)
	assert.Equal(t, profile.PathID("path-getting-started"), path.ID)

	_, ok = c.PathOfModule("nonexistent")
	assert.False(t, ok)
}

func TestIsPathComplete(t *testing.T) {
	c := DefaultContentCatalog()
	p, err := profile.NewProfile(profile.NewProfileParams{ID: "user-1"})
	require.NoError(t, err)

	now := time.Now().UTC()
	complete := func(id profile.ModuleID) {
		completion, err := profile.NewModuleCompletion(id, 100, now)
		require.NoError(t, err)
		require.NoError(t, p.RecordModuleCompletion(completion))
	}

	complete("intro-to-t4g")
	complete("wallet-setup")
	assert.False(t, c.IsPathComplete(p, "path-getting-started"))

	complete("first-transaction")
	assert.True(t, c.IsPathComplete(p, "path-getting-started"))

	assert.False(t, c.IsPathComplete(p, "path-builder"))
	assert.False(t, c.IsPathComplete(p, "no-such-path"))
}
