// Package metrics defines and registers all Prometheus metrics for
// T4G Learn Hub. It is the single source of truth for metric names,
// labels, and help strings, and provides the recorders the engine and
// the sync coordinator report through.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "learn_hub"

// ── Progression metrics ───────────────────────────────────────────────────────

// ActionsAppliedTotal counts reward actions by kind and outcome.
// Labels:
//   - action: the action kind (e.g. "module-completion", "daily-visit")
//   - outcome: "applied", "noop", or "rejected"
var ActionsAppliedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_applied_total",
		Help:      "Total number of reward actions processed, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

// TokensMintedTotal counts T4G tokens minted locally (before settlement).
var TokensMintedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_minted_total",
		Help:      "Total T4G tokens credited locally across all actions.",
	},
)

// AchievementsUnlockedTotal counts unlocked achievements.
var AchievementsUnlockedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "achievements_unlocked_total",
		Help:      "Total number of achievements unlocked.",
	},
)

// PendingQueueDepth tracks the current settlement queue depth.
var PendingQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_queue_depth",
		Help:      "Current number of reward transactions awaiting ledger confirmation.",
	},
)

// ── Settlement metrics ────────────────────────────────────────────────────────

// SyncAttemptsTotal counts settlement attempts by outcome.
// Label:
//   - outcome: "confirmed", "failed", or "conflict"
var SyncAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_attempts_total",
		Help:      "Total number of ledger settlement attempts, by outcome.",
	},
	[]string{"outcome"},
)

// ServerPushesTotal counts server-pushed ledger events by type.
// Label:
//   - type: "balance-update" or "reward-received"
var ServerPushesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "server_pushes_total",
		Help:      "Total number of server-pushed ledger events applied, by type.",
	},
	[]string{"type"},
)

// ── Registration ──────────────────────────────────────────────────────────────

// NewRegistry builds a registry with runtime collectors and all
// application metrics registered. Call once at startup.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry.MustRegister(
		ActionsAppliedTotal,
		TokensMintedTotal,
		AchievementsUnlockedTotal,
		PendingQueueDepth,
		SyncAttemptsTotal,
		ServerPushesTotal,
	)

	return registry
}

// Handler returns the HTTP handler serving the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ── Recorders ─────────────────────────────────────────────────────────────────

// StoreRecorder implements the profile store's metrics hooks.
type StoreRecorder struct{}

// ActionApplied counts one reward action with its outcome.
func (StoreRecorder) ActionApplied(action, outcome string) {
	ActionsAppliedTotal.WithLabelValues(action, outcome).Inc()
}

// RewardMinted counts locally minted tokens.
func (StoreRecorder) RewardMinted(tokens int64) {
	TokensMintedTotal.Add(float64(tokens))
}

// AchievementUnlocked counts one unlocked achievement.
func (StoreRecorder) AchievementUnlocked() {
	AchievementsUnlockedTotal.Inc()
}

// PendingQueueDepth reports the current settlement queue depth.
func (StoreRecorder) PendingQueueDepth(depth int) {
	PendingQueueDepth.Set(float64(depth))
}

// SyncRecorder implements the sync coordinator's metrics hooks.
type SyncRecorder struct{}

// SyncAttempt counts one settlement attempt with its outcome.
func (SyncRecorder) SyncAttempt(outcome string) {
	SyncAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ServerPush counts one server-pushed event by type.
func (SyncRecorder) ServerPush(eventType string) {
	ServerPushesTotal.WithLabelValues(eventType).Inc()
}
