// Package store contains the progression engine: the ProfileStore owns the
// authoritative in-process profile snapshot and is the only writer of
// XP, level, achievement and streak state.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/catalog"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics receives engine counters. Implemented by the observability layer.
type Metrics interface {
	// ActionApplied counts one applyAction call with its outcome
	// ("applied", "noop", "rejected").
	ActionApplied(action, outcome string)

	// RewardMinted counts locally minted tokens.
	RewardMinted(tokens int64)

	// AchievementUnlocked counts unlocked achievements.
	AchievementUnlocked()

	// PendingQueueDepth reports the current settlement queue depth.
	PendingQueueDepth(depth int)
}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) ActionApplied(string, string) {}
func (NopMetrics) RewardMinted(int64)           {}
func (NopMetrics) AchievementUnlocked()         {}
func (NopMetrics) PendingQueueDepth(int)        {}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION RESULT
// ══════════════════════════════════════════════════════════════════════════════

// ActionResult is the diff returned to the UI layer after applyAction.
// It describes only the local effect; settlement with the remote ledger
// happens in the background.
type ActionResult struct {
	// Applied is false for no-op outcomes (unknown action, duplicate
	// module, invalid metadata).
	Applied bool

	// XPGained is the total XP credited, achievements included.
	XPGained int

	// LevelsGained is the number of level thresholds crossed.
	LevelsGained int

	// NewLevel is the level after the action.
	NewLevel int

	// TokensEarned is the total T4G credited locally.
	TokensEarned int64

	// AchievementsUnlocked lists newly unlocked achievements in catalog order.
	AchievementsUnlocked []profile.AchievementID

	// BadgesAwarded lists newly awarded badges in order.
	BadgesAwarded []profile.BadgeID

	// StreakEvent describes what happened to the activity streak.
	StreakEvent profile.StreakEvent

	// StreakDays is the streak after the action.
	StreakDays int

	// PreviousStreak is the lost streak length when StreakEvent is broken.
	PreviousStreak int

	// PathCompleted is set when this action completed a learning path.
	PathCompleted profile.PathID

	// TransactionIDs lists the reward transactions enqueued for settlement.
	TransactionIDs []string
}

func noopResult(p *profile.UserProfile) *ActionResult {
	return &ActionResult{
		Applied:     false,
		NewLevel:    int(p.Level),
		StreakDays:  p.StreakDays,
		StreakEvent: profile.StreakSameDay,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE STORE
// ══════════════════════════════════════════════════════════════════════════════

// Config contains the tunables of the engine.
type Config struct {
	// HistoryLimit bounds the persisted transaction history per profile.
	HistoryLimit int

	// SnapshotTTL bounds the read-cache lifetime of profile snapshots.
	SnapshotTTL time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLimit: 200,
		SnapshotTTL:  5 * time.Minute,
	}
}

// ProfileStore serializes all mutations of a single user profile behind a
// mutex: applyAction calls never interleave their read-modify-write
// sequence. The durable repository and the snapshot cache are owned
// exclusively by the store; the sync coordinator goes through the
// transaction methods below and never touches XP, levels or achievements.
type ProfileStore struct {
	mu      sync.Mutex
	profile *profile.UserProfile

	repo         profile.Repository
	txRepo       profile.TransactionRepository
	cache        profile.SnapshotCache
	achievements *profile.AchievementCatalog
	content      *catalog.ContentCatalog
	publisher    shared.EventPublisher
	logger       *slog.Logger
	metrics      Metrics
	cfg          Config

	// degraded is set while the durable store is unavailable; the engine
	// keeps operating in memory and the next successful persist writes
	// the accumulated state.
	degraded bool

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// Deps bundles the collaborators of the store.
type Deps struct {
	Repo         profile.Repository
	TxRepo       profile.TransactionRepository
	Cache        profile.SnapshotCache
	Achievements *profile.AchievementCatalog
	Content      *catalog.ContentCatalog
	Publisher    shared.EventPublisher
	Logger       *slog.Logger
	Metrics      Metrics
	Clock        func() time.Time
}

// Open loads the profile from the durable store, creating a fresh
// zero-state profile on first use.
func Open(ctx context.Context, profileID string, deps Deps, cfg Config) (*ProfileStore, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Achievements == nil {
		deps.Achievements = profile.DefaultAchievementCatalog()
	}
	if deps.Content == nil {
		deps.Content = catalog.DefaultContentCatalog()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.HistoryLimit <= 0 {
		cfg = DefaultConfig()
	}

	s := &ProfileStore{
		repo:         deps.Repo,
		txRepo:       deps.TxRepo,
		cache:        deps.Cache,
		achievements: deps.Achievements,
		content:      deps.Content,
		publisher:    deps.Publisher,
		logger:       deps.Logger.With("component", "profile_store"),
		metrics:      deps.Metrics,
		cfg:          cfg,
		now:          deps.Clock,
	}

	p, err := s.load(ctx, profileID)
	if err != nil {
		return nil, err
	}
	s.profile = p
	s.metrics.PendingQueueDepth(len(p.PendingTransactions))
	return s, nil
}

func (s *ProfileStore) load(ctx context.Context, profileID string) (*profile.UserProfile, error) {
	if s.repo == nil {
		return profile.NewProfile(profile.NewProfileParams{ID: profileID, Now: s.now()})
	}

	p, err := s.repo.FindByID(ctx, profileID)
	switch {
	case err == nil:
		if s.txRepo != nil {
			pending, err := s.txRepo.FindPending(ctx, profileID)
			if err != nil {
				s.logger.Warn("failed to load pending transactions", "error", err)
			} else {
				p.PendingTransactions = pending
			}
		}
		return p, nil
	case shared.IsNotFound(err):
		s.logger.Info("no stored profile, starting fresh", "profile_id", profileID)
		return profile.NewProfile(profile.NewProfileParams{ID: profileID, Now: s.now()})
	default:
		return nil, fmt.Errorf("store: load profile: %w", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// APPLY ACTION
// ──────────────────────────────────────────────────────────────────────────────

// ApplyAction runs the full reward pipeline for one user action and
// returns the resulting diff. It never fails for a structurally valid
// input: unknown actions, duplicate completions and invalid metadata are
// logged and reported as no-op diffs. Persistence failures degrade to
// in-memory operation.
func (s *ProfileStore) ApplyAction(ctx context.Context, action profile.ActionKind, meta profile.ActionMetadata) *ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile
	now := s.now()

	policy, ok := catalog.GetActionPolicy(action)
	if !ok {
		s.logger.Warn("unknown action ignored", "action", action)
		s.metrics.ActionApplied(action.String(), "noop")
		return noopResult(p)
	}

	if err := meta.Validate(); err != nil {
		s.logger.Warn("invalid action metadata rejected", "action", action, "error", err)
		s.metrics.ActionApplied(action.String(), "rejected")
		return noopResult(p)
	}

	// Module completions are one-shot; a repeat is a silent no-op.
	if action == profile.ActionModuleCompletion && p.HasCompletedModule(meta.ModuleID) {
		s.logger.Debug("module already completed", "module_id", meta.ModuleID)
		s.metrics.ActionApplied(action.String(), "noop")
		return noopResult(p)
	}

	var events []shared.Event
	result := &ActionResult{Applied: true}

	// 1. Streak first: the streak multiplier must observe today's activity.
	streak := profile.UpdateStreak(p, now)
	result.StreakEvent = streak.Event
	result.StreakDays = streak.StreakDays
	result.PreviousStreak = streak.PreviousStreak
	if streak.Event == profile.StreakBroken {
		events = append(events, shared.NewStreakBrokenEvent(p.ID, streak.PreviousStreak, 0))
	}

	// 2. Fill in profile-derived multiplier inputs.
	meta.StreakDays = p.StreakDays
	meta.EarlyAdopter = p.EarlyAdopter
	meta.Premium = p.Premium
	if meta.Difficulty == "" && meta.ModuleID != "" {
		if m, ok := s.content.Module(meta.ModuleID); ok {
			meta.Difficulty = m.Difficulty
		}
	}

	// 3. Record module completion before path checks.
	if action == profile.ActionModuleCompletion && meta.ModuleID != "" {
		completion, err := profile.NewModuleCompletion(meta.ModuleID, meta.Score, now)
		if err != nil {
			s.logger.Warn("invalid module completion rejected", "module_id", meta.ModuleID, "error", err)
			s.metrics.ActionApplied(action.String(), "rejected")
			return noopResult(p)
		}
		if err := p.RecordModuleCompletion(completion); err != nil {
			s.metrics.ActionApplied(action.String(), "noop")
			return noopResult(p)
		}
	}

	// 4. Mint the reward and commit its XP and token effect.
	oldLevel := p.Level
	tx, err := profile.CalculateReward(p.ID, policy.BaseAmount, action, meta, now)
	if err != nil {
		s.logger.Warn("reward calculation rejected", "action", action, "error", err)
		s.metrics.ActionApplied(action.String(), "rejected")
		return noopResult(p)
	}
	s.commitReward(p, tx, policy.BaseXP, result, &events)

	// 5. Path completion pays its own reward when the last module lands.
	if action == profile.ActionModuleCompletion && meta.ModuleID != "" {
		s.completePathIfDone(p, meta, now, result, &events)
	}

	// 6. Achievements run last so conditions observe final state, iterated
	// to fixed point: an unlock's reward XP can qualify further achievements.
	s.evaluateAchievements(p, now, result, &events)

	if p.Level > oldLevel {
		events = append(events, shared.NewLevelUpEvent(p.ID, int(oldLevel), int(p.Level), int(p.TotalXP)))
	}
	result.NewLevel = int(p.Level)
	result.LevelsGained = int(p.Level - oldLevel)
	events = append(events, shared.NewProfileUpdatedEvent(p.ID, action.String(), result.XPGained, result.TokensEarned))

	// 7. Persist, then publish. Publishing happens after the commit so
	// listeners never observe state that later failed to apply.
	s.persistLocked(ctx)
	s.publishAll(events)
	s.metrics.ActionApplied(action.String(), "applied")
	s.metrics.PendingQueueDepth(len(p.PendingTransactions))

	s.logger.Info("action applied",
		"action", action,
		"xp_gained", result.XPGained,
		"tokens_earned", result.TokensEarned,
		"levels_gained", result.LevelsGained,
		"achievements", len(result.AchievementsUnlocked),
	)
	return result
}

// commitReward applies one transaction's XP and token effect and enqueues
// it for settlement.
func (s *ProfileStore) commitReward(p *profile.UserProfile, tx *profile.RewardTransaction, baseXP profile.XP, result *ActionResult, events *[]shared.Event) {
	now := s.now()

	if _, err := profile.ApplyXPGain(p, baseXP); err == nil {
		result.XPGained += int(baseXP)
	}

	if err := p.CreditTokens(tx.FinalAmount, now); err == nil {
		result.TokensEarned += int64(tx.FinalAmount)
		s.metrics.RewardMinted(int64(tx.FinalAmount))
	}

	p.EnqueueTransaction(tx)
	result.TransactionIDs = append(result.TransactionIDs, tx.ID)
	*events = append(*events, shared.NewRewardEarnedEvent(
		p.ID, tx.ID, tx.Action.String(),
		int64(tx.BaseAmount), int64(tx.FinalAmount), int64(tx.BurnAmount), tx.Multiplier,
	))
}

// completePathIfDone completes the containing path when every module of it
// is done, awarding the path badge and a second reward transaction.
func (s *ProfileStore) completePathIfDone(p *profile.UserProfile, meta profile.ActionMetadata, now time.Time, result *ActionResult, events *[]shared.Event) {
	path, ok := s.content.PathOfModule(meta.ModuleID)
	if !ok || p.HasCompletedPath(path.ID) {
		return
	}
	if !s.content.IsPathComplete(p, path.ID) {
		return
	}
	if err := p.RecordPathCompletion(path.ID, now); err != nil {
		return
	}
	if path.Badge != "" {
		if err := p.AwardBadge(path.Badge, now); err == nil {
			result.BadgesAwarded = append(result.BadgesAwarded, path.Badge)
		}
	}
	result.PathCompleted = path.ID
	*events = append(*events, shared.NewPathCompletedEvent(p.ID, path.ID.String(), string(path.Badge)))

	pathPolicy, ok := catalog.GetActionPolicy(profile.ActionPathCompletion)
	if !ok {
		return
	}
	pathMeta := profile.ActionMetadata{
		StreakDays:   p.StreakDays,
		EarlyAdopter: p.EarlyAdopter,
		Premium:      p.Premium,
		PathID:       path.ID,
	}
	tx, err := profile.CalculateReward(p.ID, pathPolicy.BaseAmount, profile.ActionPathCompletion, pathMeta, now)
	if err != nil {
		s.logger.Warn("path reward calculation failed", "path_id", path.ID, "error", err)
		return
	}
	s.commitReward(p, tx, pathPolicy.BaseXP, result, events)
}

// evaluateAchievements runs the catalog to fixed point, bounded by catalog
// size to guarantee termination.
func (s *ProfileStore) evaluateAchievements(p *profile.UserProfile, now time.Time, result *ActionResult, events *[]shared.Event) {
	for pass := 0; pass < s.achievements.Size(); pass++ {
		qualified := s.achievements.Evaluate(p)
		if len(qualified) == 0 {
			return
		}
		for _, def := range qualified {
			if err := p.UnlockAchievement(def.ID, now); err != nil {
				continue
			}
			if def.Badge != "" {
				if err := p.AwardBadge(def.Badge, now); err == nil {
					result.BadgesAwarded = append(result.BadgesAwarded, def.Badge)
				}
			}
			if _, err := profile.ApplyXPGain(p, def.RewardXP); err == nil {
				result.XPGained += int(def.RewardXP)
			}
			result.AchievementsUnlocked = append(result.AchievementsUnlocked, def.ID)
			s.metrics.AchievementUnlocked()
			*events = append(*events, shared.NewAchievementUnlockedEvent(p.ID, def.ID.String(), int(def.RewardXP)))
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// READ / RESET
// ──────────────────────────────────────────────────────────────────────────────

// GetSnapshot returns an immutable deep copy for rendering. Callers must
// never mutate engine state directly.
func (s *ProfileStore) GetSnapshot() *profile.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// Reset replaces the profile with a fresh zero-state. Explicit user
// action only; pending transactions are discarded with it.
func (s *ProfileStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh, err := profile.NewProfile(profile.NewProfileParams{
		ID:           s.profile.ID,
		EarlyAdopter: s.profile.EarlyAdopter,
		Premium:      s.profile.Premium,
		Now:          s.now(),
	})
	if err != nil {
		return err
	}
	if s.txRepo != nil {
		if err := s.txRepo.DeletePending(ctx, s.profile.ID); err != nil {
			s.logger.Warn("failed to delete pending transactions on reset",
				"profile_id", s.profile.ID, "error", err)
		}
	}
	s.profile = fresh
	s.persistLocked(ctx)
	s.publishAll([]shared.Event{shared.NewProfileResetEvent(fresh.ID)})
	s.logger.Info("profile reset", "profile_id", fresh.ID)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// SETTLEMENT INTERFACE (used by the sync coordinator)
// ──────────────────────────────────────────────────────────────────────────────

// PendingTransactions returns copies of the unsettled transactions in
// creation order.
func (s *ProfileStore) PendingTransactions() []*profile.RewardTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*profile.RewardTransaction, 0, len(s.profile.PendingTransactions))
	for _, tx := range s.profile.PendingTransactions {
		txCopy := *tx
		out = append(out, &txCopy)
	}
	return out
}

// MarkTransactionSent records a send attempt on a pending transaction.
func (s *ProfileStore) MarkTransactionSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.profile.PendingTransaction(id)
	if !ok {
		return profile.ErrProfileNotFound
	}
	return tx.MarkSent()
}

// ConfirmTransaction settles a transaction with the ledger's canonical
// balance. Idempotent by transaction id: confirming an already settled or
// unknown transaction is a no-op, so a transaction is never double-applied.
// The server balance is authoritative and replaces the optimistic local
// value when they differ.
func (s *ProfileStore) ConfirmTransaction(ctx context.Context, id string, serverBalance profile.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile
	tx, ok := p.PendingTransaction(id)
	if !ok {
		// Already settled in a previous attempt.
		return nil
	}
	now := s.now()
	if err := tx.MarkConfirmed(now); err != nil {
		return err
	}

	corrected := serverBalance != p.TokenBalance
	if corrected {
		s.logger.Info("ledger balance correction on confirm",
			"tx_id", id, "local", int64(p.TokenBalance), "server", int64(serverBalance))
		p.CorrectBalance(serverBalance, now)
	}
	p.RemoveTransaction(id)

	if s.txRepo != nil {
		if err := s.txRepo.Save(ctx, tx); err != nil {
			s.logger.Warn("failed to persist confirmed transaction", "tx_id", id, "error", err)
		}
	}
	s.persistLocked(ctx)
	s.publishAll([]shared.Event{
		shared.NewSyncConfirmedEvent(p.ID, id, int64(serverBalance), corrected),
	})
	s.metrics.PendingQueueDepth(len(p.PendingTransactions))
	return nil
}

// FailTransaction records a failed settlement attempt. Transient failures
// stay queued for retry; permanent failures (ledger conflicts) move to the
// terminal conflict state and leave the queue for good, surviving
// restarts. Their local XP and token effect is deliberately not rolled
// back. Rewards already shown to the user are not revoked.
func (s *ProfileStore) FailTransaction(ctx context.Context, id, reason string, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile
	tx, ok := p.PendingTransaction(id)
	if !ok {
		return nil
	}
	if permanent {
		if err := tx.MarkConflicted(reason); err != nil {
			return err
		}
		s.logger.Warn("transaction rejected by ledger", "tx_id", id, "reason", reason)
		p.RemoveTransaction(id)
	} else if err := tx.MarkFailed(reason); err != nil {
		return err
	}
	if s.txRepo != nil {
		if err := s.txRepo.Save(ctx, tx); err != nil {
			s.logger.Warn("failed to persist failed transaction", "tx_id", id, "error", err)
		}
	}
	s.persistLocked(ctx)
	s.publishAll([]shared.Event{
		shared.NewSyncFailedEvent(p.ID, id, tx.Attempts, reason, permanent),
	})
	s.metrics.PendingQueueDepth(len(p.PendingTransactions))
	return nil
}

// ApplyServerBalance applies a server-pushed balance update. The push path
// only touches tokenBalance; it never re-triggers achievement evaluation
// and never overwrites XP, levels or achievements.
func (s *ProfileStore) ApplyServerBalance(ctx context.Context, newBalance profile.Tokens, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile
	old := p.TokenBalance
	if old == newBalance {
		return
	}
	p.CorrectBalance(newBalance, s.now())
	s.persistLocked(ctx)
	s.publishAll([]shared.Event{
		shared.NewBalanceCorrectedEvent(p.ID, int64(old), int64(newBalance), source),
	})
	s.logger.Info("server balance applied", "source", source, "old", int64(old), "new", int64(newBalance))
}

// ──────────────────────────────────────────────────────────────────────────────
// PERSISTENCE
// ──────────────────────────────────────────────────────────────────────────────

// persistLocked writes the profile and its new transactions, degrading to
// in-memory operation when the durable store is unavailable. Must be
// called with the mutex held.
func (s *ProfileStore) persistLocked(ctx context.Context) {
	p := s.profile

	if s.repo != nil {
		if err := s.repo.Save(ctx, p); err != nil {
			if !s.degraded {
				s.logger.Error("durable store unavailable, continuing in memory", "error", err)
			}
			s.degraded = true
			return
		}
		if s.degraded {
			s.logger.Info("durable store recovered, state flushed")
			s.degraded = false
		}
	}

	if s.txRepo != nil {
		for _, tx := range p.PendingTransactions {
			if err := s.txRepo.Save(ctx, tx); err != nil {
				s.logger.Warn("failed to persist transaction", "tx_id", tx.ID, "error", err)
			}
		}
		if err := s.txRepo.PruneHistory(ctx, p.ID, s.cfg.HistoryLimit); err != nil {
			s.logger.Warn("failed to prune transaction history", "error", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, p.Clone(), s.cfg.SnapshotTTL); err != nil {
			s.logger.Debug("snapshot cache write failed", "error", err)
		}
	}
}

// Degraded reports whether the engine is currently running without
// durable persistence.
func (s *ProfileStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *ProfileStore) publishAll(events []shared.Event) {
	for _, e := range events {
		if err := s.publisher.Publish(e); err != nil {
			s.logger.Warn("event publish failed", "event", e.EventType(), "error", err)
		}
	}
}

// Flush persists the current state. Called on shutdown.
func (s *ProfileStore) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked(ctx)
}
