package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts.
// Reward math itself is never flag-gated; flags control the surfaces
// around it (notifications, server push, experimental actions).
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // profileID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their profile ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	ProfileID string // stable profile identifier
	Premium   bool   // premium subscribers see experiments first
}

// Predefined feature flag names.
const (
	// === Notification Features ===
	FeatureNotifyLevelUp     = "notify.level_up"     // "You reached level N!"
	FeatureNotifyAchievement = "notify.achievement"  // Achievement unlocked toasts
	FeatureNotifyStreak      = "notify.streak"       // Streak reminders and breaks
	FeatureNotifyBurn        = "notify.burn_display" // Show burn amounts on rewards

	// === Settlement Features ===
	FeatureSyncServerPush = "sync.server_push" // Live balance updates from ledger

	// === Experimental Actions ===
	FeatureExperimentalReferrals     = "experimental.referrals"     // Referral rewards
	FeatureExperimentalContributions = "experimental.contributions" // Code contribution rewards
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureNotifyLevelUp] = &Feature{
		Name:           FeatureNotifyLevelUp,
		Description:    "Level-up notifications",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyAchievement] = &Feature{
		Name:           FeatureNotifyAchievement,
		Description:    "Achievement unlocked notifications",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyStreak] = &Feature{
		Name:           FeatureNotifyStreak,
		Description:    "Streak reminders and streak-broken notices",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyBurn] = &Feature{
		Name:           FeatureNotifyBurn,
		Description:    "Show protocol burn amounts alongside rewards",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureSyncServerPush] = &Feature{
		Name:           FeatureSyncServerPush,
		Description:    "Apply live balance updates pushed by the ledger",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureExperimentalReferrals] = &Feature{
		Name:           FeatureExperimentalReferrals,
		Description:    "Reward referrals of new learners",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalContributions] = &Feature{
		Name:           FeatureExperimentalContributions,
		Description:    "Reward accepted code contributions",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_NOTIFY_LEVEL_UP=true
// Example: FEATURE_EXPERIMENTAL_REFERRALS=25 (25% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "notify.level_up" -> "FEATURE_NOTIFY_LEVEL_UP"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.ProfileID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.ProfileID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Experiments open to premium subscribers regardless of rollout
	if ctx != nil && ctx.Premium && strings.HasPrefix(featureName, "experimental.") {
		return true
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.ProfileID != "" {
		return isInRollout(ctx.ProfileID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func isInRollout(profileID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(profileID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for a user.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	if !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || len(feature.Variants) == 0 || ctx == nil {
		return ""
	}

	// Use consistent hashing to assign variant
	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.ProfileID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(profileID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[profileID]; !ok {
		ff.userOverrides[profileID] = make(map[string]bool)
	}
	ff.userOverrides[profileID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(profileID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, profileID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
