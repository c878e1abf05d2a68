// Package catalog holds the static content catalog of the learning hub:
// the reward policy table per action kind, the learning modules, and the
// learning paths that group them. Everything here is an in-memory lookup,
// never a network call.
package catalog

import (
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTION POLICY TABLE
// ══════════════════════════════════════════════════════════════════════════════

// ActionCategory groups action kinds for reporting and metrics.
type ActionCategory string

const (
	CategoryLearning     ActionCategory = "learning"
	CategoryEngagement   ActionCategory = "engagement"
	CategoryContribution ActionCategory = "contribution"
)

// ActionPolicy defines the base reward for an action kind before multipliers.
type ActionPolicy struct {
	// BaseAmount is the pre-multiplier token reward.
	BaseAmount profile.Tokens

	// BaseXP is the pre-multiplier experience reward.
	BaseXP profile.XP

	// Category groups the action for reporting.
	Category ActionCategory
}

// actionPolicies is the static reward table. Amounts are tuned so that a
// full beginner path lands a user around level 3.
var actionPolicies = map[profile.ActionKind]ActionPolicy{
	profile.ActionModuleCompletion: {BaseAmount: 100, BaseXP: 100, Category: CategoryLearning},
	profile.ActionPathCompletion:   {BaseAmount: 500, BaseXP: 500, Category: CategoryLearning},
	profile.ActionQuizPassed:       {BaseAmount: 40, BaseXP: 50, Category: CategoryLearning},
	profile.ActionDailyVisit:       {BaseAmount: 5, BaseXP: 10, Category: CategoryEngagement},
	profile.ActionProfileCompleted: {BaseAmount: 25, BaseXP: 25, Category: CategoryEngagement},
	profile.ActionReferral:         {BaseAmount: 150, BaseXP: 100, Category: CategoryEngagement},
	profile.ActionDocFeedback:      {BaseAmount: 20, BaseXP: 20, Category: CategoryContribution},
	profile.ActionCodeContribution: {BaseAmount: 300, BaseXP: 250, Category: CategoryContribution},
	profile.ActionAnswerAccepted:   {BaseAmount: 80, BaseXP: 75, Category: CategoryContribution},
}

// GetActionPolicy returns the reward policy for an action kind.
// Unknown actions return ok=false; the engine treats them as no-ops.
func GetActionPolicy(action profile.ActionKind) (ActionPolicy, bool) {
	policy, ok := actionPolicies[action]
	return policy, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULES AND PATHS
// ══════════════════════════════════════════════════════════════════════════════

// Module describes a learning module in the documentation site.
type Module struct {
	ID         profile.ModuleID
	Title      string
	Difficulty profile.Difficulty
	PathID     profile.PathID
}

// Path describes an ordered group of modules. Completing every module of
// a path completes the path itself.
type Path struct {
	ID      profile.PathID
	Title   string
	Badge   profile.BadgeID
	Modules []profile.ModuleID
}

// ContentCatalog indexes modules and paths for the engine.
type ContentCatalog struct {
	modules map[profile.ModuleID]Module
	paths   map[profile.PathID]Path
}

// NewContentCatalog builds the index from path definitions.
func NewContentCatalog(paths []Path) *ContentCatalog {
	c := &ContentCatalog{
		modules: make(map[profile.ModuleID]Module),
		paths:   make(map[profile.PathID]Path, len(paths)),
	}
	for _, p := range paths {
		c.paths[p.ID] = p
	}
	return c
}

// RegisterModule adds a module to the index.
func (c *ContentCatalog) RegisterModule(m Module) {
	c.modules[m.ID] = m
}

// Module returns a module by id.
func (c *ContentCatalog) Module(id profile.ModuleID) (Module, bool) {
	m, ok := c.modules[id]
	return m, ok
}

// Path returns a path by id.
func (c *ContentCatalog) Path(id profile.PathID) (Path, bool) {
	p, ok := c.paths[id]
	return p, ok
}

// PathOfModule returns the path a module belongs to, if any.
func (c *ContentCatalog) PathOfModule(id profile.ModuleID) (Path, bool) {
	m, ok := c.modules[id]
	if !ok || m.PathID == "" {
		return Path{}, false
	}
	return c.Path(m.PathID)
}

// IsPathComplete reports whether every module of the path is completed
// in the given profile.
func (c *ContentCatalog) IsPathComplete(p *profile.UserProfile, pathID profile.PathID) bool {
	path, ok := c.paths[pathID]
	if !ok || len(path.Modules) == 0 {
		return false
	}
	for _, moduleID := range path.Modules {
		if !p.HasCompletedModule(moduleID) {
			return false
		}
	}
	return true
}

// DefaultContentCatalog returns the built-in catalog of the documentation
// site's learning tracks.
func DefaultContentCatalog() *ContentCatalog {
	paths := []Path{
		{
			ID:    "path-getting-started",
			Title: "Getting Started with T4G",
			Badge: "badge-path-getting-started",
			Modules: []profile.ModuleID{
				"intro-to-t4g",
				"wallet-setup",
				"first-transaction",
			},
		},
		{
			ID:    "path-builder",
			Title: "Builder Track",
			Badge: "badge-path-builder",
			Modules: []profile.ModuleID{
				"smart-contracts-101",
				"token-standards",
				"dapp-integration",
				"security-essentials",
			},
		},
		{
			ID:    "path-contributor",
			Title: "Contributor Track",
			Badge: "badge-path-contributor",
			Modules: []profile.ModuleID{
				"docs-style-guide",
				"review-workflow",
				"community-governance",
			},
		},
	}

	c := NewContentCatalog(paths)

	register := func(pathID profile.PathID, difficulty profile.Difficulty, ids ...profile.ModuleID) {
		for _, id := range ids {
			c.RegisterModule(Module{ID: id, Difficulty: difficulty, PathID: pathID})
		}
	}
	register("path-getting-started", profile.DifficultyBeginner,
		"intro-to-t4g", "wallet-setup", "first-transaction")
	register("path-builder", profile.DifficultyAdvanced,
		"smart-contracts-101", "token-standards", "dapp-integration")
	register("path-builder", profile.DifficultyExpert, "security-essentials")
	register("path-contributor", profile.DifficultyIntermediate,
		"docs-style-guide", "review-workflow", "community-governance")

	return c
}
