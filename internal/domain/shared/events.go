package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the progression engine; the presentation layer subscribes to
// these to render toasts, progress bars and popups. The engine is fully
// usable with zero listeners attached.
const (
	// Profile events
	EventProfileUpdated = EventType("profile.updated")
	EventProfileReset   = EventType("profile.reset")
	EventLevelUp        = EventType("profile.level_up")

	// Reward events
	EventRewardEarned        = EventType("reward.earned")
	EventModuleCompleted     = EventType("reward.module_completed")
	EventPathCompleted       = EventType("reward.path_completed")
	EventAchievementUnlocked = EventType("reward.achievement_unlocked")

	// Streak events
	EventStreakContinued = EventType("streak.continued")
	EventStreakBroken    = EventType("streak.broken")

	// Sync events
	EventSyncSent      = EventType("sync.sent")
	EventSyncConfirmed = EventType("sync.confirmed")
	EventSyncFailed    = EventType("sync.failed")
	EventSyncConflict  = EventType("sync.conflict")

	// Ledger push events (server-side computations, e.g. best-answer bonuses)
	EventBalanceCorrected = EventType("ledger.balance_corrected")
	EventRewardReceived   = EventType("ledger.reward_received")
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the profile that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event.
func (e BaseEvent) EventType() EventType { return e.Type }

// OccurredAt implements Event.
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID implements Event.
func (e BaseEvent) AggregateID() string { return e.AggregateId }

// NewBaseEvent creates a new base event stamped with the current time.
func NewBaseEvent(eventType EventType, profileID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: profileID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// ProfileUpdatedEvent is emitted after every successful applyAction commit.
type ProfileUpdatedEvent struct {
	BaseEvent
	Action       string `json:"action"`
	XPGained     int    `json:"xp_gained"`
	TokensEarned int64  `json:"tokens_earned"`
}

// Payload implements Event.
func (e ProfileUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"action":        e.Action,
		"xp_gained":     e.XPGained,
		"tokens_earned": e.TokensEarned,
	}
}

// NewProfileUpdatedEvent creates a new ProfileUpdatedEvent.
func NewProfileUpdatedEvent(profileID, action string, xpGained int, tokensEarned int64) ProfileUpdatedEvent {
	return ProfileUpdatedEvent{
		BaseEvent:    NewBaseEvent(EventProfileUpdated, profileID),
		Action:       action,
		XPGained:     xpGained,
		TokensEarned: tokensEarned,
	}
}

// LevelUpEvent is emitted when accumulated XP crosses one or more level
// thresholds in a single gain.
type LevelUpEvent struct {
	BaseEvent
	OldLevel     int `json:"old_level"`
	NewLevel     int `json:"new_level"`
	LevelsGained int `json:"levels_gained"`
	TotalXP      int `json:"total_xp"`
}

// Payload implements Event.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level":     e.OldLevel,
		"new_level":     e.NewLevel,
		"levels_gained": e.LevelsGained,
		"total_xp":      e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(profileID string, oldLevel, newLevel, totalXP int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:    NewBaseEvent(EventLevelUp, profileID),
		OldLevel:     oldLevel,
		NewLevel:     newLevel,
		LevelsGained: newLevel - oldLevel,
		TotalXP:      totalXP,
	}
}

// ProfileResetEvent is emitted when the user explicitly resets their
// progression state.
type ProfileResetEvent struct {
	BaseEvent
}

// Payload implements Event.
func (e ProfileResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewProfileResetEvent creates a new ProfileResetEvent.
func NewProfileResetEvent(profileID string) ProfileResetEvent {
	return ProfileResetEvent{BaseEvent: NewBaseEvent(EventProfileReset, profileID)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reward Events
// ═══════════════════════════════════════════════════════════════════════════

// RewardEarnedEvent is emitted when a reward transaction is created locally.
type RewardEarnedEvent struct {
	BaseEvent
	TransactionID string  `json:"transaction_id"`
	Action        string  `json:"action"`
	BaseAmount    int64   `json:"base_amount"`
	Multiplier    float64 `json:"multiplier"`
	FinalAmount   int64   `json:"final_amount"`
	BurnAmount    int64   `json:"burn_amount"`
}

// Payload implements Event.
func (e RewardEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"action":         e.Action,
		"base_amount":    e.BaseAmount,
		"multiplier":     e.Multiplier,
		"final_amount":   e.FinalAmount,
		"burn_amount":    e.BurnAmount,
	}
}

// NewRewardEarnedEvent creates a new RewardEarnedEvent.
func NewRewardEarnedEvent(profileID, txID, action string, base, final, burn int64, multiplier float64) RewardEarnedEvent {
	return RewardEarnedEvent{
		BaseEvent:     NewBaseEvent(EventRewardEarned, profileID),
		TransactionID: txID,
		Action:        action,
		BaseAmount:    base,
		Multiplier:    multiplier,
		FinalAmount:   final,
		BurnAmount:    burn,
	}
}

// AchievementUnlockedEvent is emitted for each newly unlocked achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	RewardXP      int    `json:"reward_xp"`
}

// Payload implements Event.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"reward_xp":      e.RewardXP,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(profileID, achievementID string, rewardXP int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, profileID),
		AchievementID: achievementID,
		RewardXP:      rewardXP,
	}
}

// PathCompletedEvent is emitted exactly once when the last module of a path
// is completed.
type PathCompletedEvent struct {
	BaseEvent
	PathID  string `json:"path_id"`
	BadgeID string `json:"badge_id"`
}

// Payload implements Event.
func (e PathCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"path_id":  e.PathID,
		"badge_id": e.BadgeID,
	}
}

// NewPathCompletedEvent creates a new PathCompletedEvent.
func NewPathCompletedEvent(profileID, pathID, badgeID string) PathCompletedEvent {
	return PathCompletedEvent{
		BaseEvent: NewBaseEvent(EventPathCompleted, profileID),
		PathID:    pathID,
		BadgeID:   badgeID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakBrokenEvent is emitted when a gap of more than one day resets the
// streak. PreviousStreak carries the lost streak length for the
// "streak lost" notification.
type StreakBrokenEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
	DaysMissed     int `json:"days_missed"`
}

// Payload implements Event.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(profileID string, previousStreak, daysMissed int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, profileID),
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Sync Events
// ═══════════════════════════════════════════════════════════════════════════

// SyncFailedEvent is emitted when a settlement attempt fails. The UI renders
// at most an informational "sync pending" indicator from this.
type SyncFailedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	Attempt       int    `json:"attempt"`
	Reason        string `json:"reason"`
	Permanent     bool   `json:"permanent"`
}

// Payload implements Event.
func (e SyncFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"attempt":        e.Attempt,
		"reason":         e.Reason,
		"permanent":      e.Permanent,
	}
}

// NewSyncFailedEvent creates a new SyncFailedEvent. Permanent rejections
// are emitted as sync.conflict, retryable failures as sync.failed.
func NewSyncFailedEvent(profileID, txID string, attempt int, reason string, permanent bool) SyncFailedEvent {
	eventType := EventSyncFailed
	if permanent {
		eventType = EventSyncConflict
	}
	return SyncFailedEvent{
		BaseEvent:     NewBaseEvent(eventType, profileID),
		TransactionID: txID,
		Attempt:       attempt,
		Reason:        reason,
		Permanent:     permanent,
	}
}

// SyncConfirmedEvent is emitted when the remote ledger confirms a transaction.
type SyncConfirmedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	ServerBalance int64  `json:"server_balance"`
	Corrected     bool   `json:"corrected"` // server balance differed from the optimistic local value
}

// Payload implements Event.
func (e SyncConfirmedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"server_balance": e.ServerBalance,
		"corrected":      e.Corrected,
	}
}

// NewSyncConfirmedEvent creates a new SyncConfirmedEvent.
func NewSyncConfirmedEvent(profileID, txID string, serverBalance int64, corrected bool) SyncConfirmedEvent {
	return SyncConfirmedEvent{
		BaseEvent:     NewBaseEvent(EventSyncConfirmed, profileID),
		TransactionID: txID,
		ServerBalance: serverBalance,
		Corrected:     corrected,
	}
}

// BalanceCorrectedEvent is emitted when a server-pushed balance-update is
// applied. The server is authoritative; the local balance is replaced.
type BalanceCorrectedEvent struct {
	BaseEvent
	OldBalance int64  `json:"old_balance"`
	NewBalance int64  `json:"new_balance"`
	Source     string `json:"source"` // e.g. "balance-update", "reward-received"
}

// Payload implements Event.
func (e BalanceCorrectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_balance": e.OldBalance,
		"new_balance": e.NewBalance,
		"source":      e.Source,
	}
}

// NewBalanceCorrectedEvent creates a new BalanceCorrectedEvent.
func NewBalanceCorrectedEvent(profileID string, oldBalance, newBalance int64, source string) BalanceCorrectedEvent {
	return BalanceCorrectedEvent{
		BaseEvent:  NewBaseEvent(EventBalanceCorrected, profileID),
		OldBalance: oldBalance,
		NewBalance: newBalance,
		Source:     source,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport or storage.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Payload     json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards all events. The engine must be fully usable with
// zero listeners attached; this is the default when no bus is wired.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
