package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "T4G Learn Hub API",
		"version":     "v1",
		"description": "Local reward ledger and progression engine for the T4G documentation site",
		"endpoints": map[string]string{
			"health":       "/health",
			"profile":      "/api/v1/profile",
			"actions":      "/api/v1/actions",
			"transactions": "/api/v1/transactions",
			"sync":         "/api/v1/sync/status",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint. Degraded mode is
// reported as healthy: the engine keeps working from memory while the
// database is away, and that is the designed behavior, not an outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	}

	if s.deps.Store != nil {
		health["degraded"] = s.deps.Store.Degraded()
	}

	if s.deps.DB != nil {
		dbHealth, err := s.deps.DB.Health(r.Context())
		if err != nil {
			health["database"] = map[string]interface{}{"healthy": false, "error": err.Error()}
		} else {
			health["database"] = map[string]interface{}{
				"healthy":         dbHealth.Healthy,
				"ping_latency_ms": dbHealth.PingLatency.Milliseconds(),
				"total_conns":     dbHealth.TotalConns,
			}
		}
	}

	if s.deps.Ledger != nil {
		status := s.deps.Ledger.Status(r.Context())
		health["ledger"] = map[string]interface{}{
			"healthy":       status.IsHealthy,
			"breaker_state": status.BreakerState.String(),
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// handleReady handles the readiness probe endpoint. The engine is ready
// as soon as the profile is loaded; a missing database or ledger only
// degrades it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "profile store not configured",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// profileResponse is the wire shape of the profile snapshot.
type profileResponse struct {
	ID                  string                     `json:"id"`
	Level               int                        `json:"level"`
	XP                  int64                      `json:"xp"`
	TotalXP             int64                      `json:"total_xp"`
	TokenBalance        int64                      `json:"token_balance"`
	TokenLifetimeEarned int64                      `json:"token_lifetime_earned"`
	StreakDays          int                        `json:"streak_days"`
	BestStreakDays      int                        `json:"best_streak_days"`
	LastActivityAt      *time.Time                 `json:"last_activity_at,omitempty"`
	CompletedModules    map[string]moduleResponse  `json:"completed_modules"`
	CompletedPaths      []string                   `json:"completed_paths"`
	Achievements        []string                   `json:"achievements"`
	Badges              []string                   `json:"badges"`
	PendingCount        int                        `json:"pending_count"`
	EarlyAdopter        bool                       `json:"early_adopter"`
	Premium             bool                       `json:"premium"`
	CreatedAt           time.Time                  `json:"created_at"`
	UpdatedAt           time.Time                  `json:"updated_at"`
}

type moduleResponse struct {
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

func newProfileResponse(p *profile.UserProfile) profileResponse {
	resp := profileResponse{
		ID:                  p.ID,
		Level:               int(p.Level),
		XP:                  int64(p.XP),
		TotalXP:             int64(p.TotalXP),
		TokenBalance:        int64(p.TokenBalance),
		TokenLifetimeEarned: int64(p.TokenLifetimeEarned),
		StreakDays:          p.StreakDays,
		BestStreakDays:      p.BestStreakDays,
		CompletedModules:    make(map[string]moduleResponse, len(p.CompletedModules)),
		CompletedPaths:      make([]string, 0, len(p.CompletedPaths)),
		Achievements:        make([]string, 0, len(p.UnlockedAchievements)),
		Badges:              make([]string, 0, len(p.Badges)),
		PendingCount:        len(p.PendingTransactions),
		EarlyAdopter:        p.EarlyAdopter,
		Premium:             p.Premium,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}

	if !p.LastActivityAt.IsZero() {
		t := p.LastActivityAt
		resp.LastActivityAt = &t
	}

	for id, mc := range p.CompletedModules {
		resp.CompletedModules[string(id)] = moduleResponse{Score: mc.Score, CompletedAt: mc.CompletedAt}
	}
	for id := range p.CompletedPaths {
		resp.CompletedPaths = append(resp.CompletedPaths, string(id))
	}
	for _, id := range p.UnlockedAchievements {
		resp.Achievements = append(resp.Achievements, string(id))
	}
	for _, id := range p.Badges {
		resp.Badges = append(resp.Badges, string(id))
	}

	return resp
}

// handleGetProfile handles GET /api/v1/profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Profile store not configured")
		return
	}

	snapshot := s.deps.Store.GetSnapshot()
	writeJSON(w, http.StatusOK, newProfileResponse(snapshot))
}

// handleResetProfile handles POST /api/v1/profile/reset
func (s *Server) handleResetProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Profile store not configured")
		return
	}

	if err := s.deps.Store.Reset(r.Context()); err != nil {
		s.logger.Error("failed to reset profile", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to reset profile")
		return
	}

	writeJSON(w, http.StatusOK, newProfileResponse(s.deps.Store.GetSnapshot()))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// actionRequest is the body of POST /api/v1/actions.
type actionRequest struct {
	Action     string `json:"action"`
	ModuleID   string `json:"module_id,omitempty"`
	PathID     string `json:"path_id,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Score      int    `json:"score,omitempty"`
}

// actionResponse is the local effect of a reported action.
type actionResponse struct {
	Applied              bool     `json:"applied"`
	XPGained             int      `json:"xp_gained"`
	LevelsGained         int      `json:"levels_gained"`
	NewLevel             int      `json:"new_level"`
	TokensEarned         int64    `json:"tokens_earned"`
	AchievementsUnlocked []string `json:"achievements_unlocked,omitempty"`
	BadgesAwarded        []string `json:"badges_awarded,omitempty"`
	StreakEvent          string   `json:"streak_event"`
	StreakDays           int      `json:"streak_days"`
	PreviousStreak       int      `json:"previous_streak,omitempty"`
	PathCompleted        string   `json:"path_completed,omitempty"`
	TransactionIDs       []string `json:"transaction_ids,omitempty"`
}

// handleApplyAction handles POST /api/v1/actions
func (s *Server) handleApplyAction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Profile store not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	var req actionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	action := profile.ActionKind(req.Action)
	if !action.IsValid() {
		writeJSONError(w, http.StatusBadRequest, "unknown_action", "Unknown action kind")
		return
	}

	meta := profile.ActionMetadata{
		Difficulty: profile.Difficulty(req.Difficulty),
		ModuleID:   profile.ModuleID(req.ModuleID),
		PathID:     profile.PathID(req.PathID),
		Score:      req.Score,
	}
	if meta.Difficulty == "" {
		meta.Difficulty = profile.DifficultyBeginner
	}
	if err := meta.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_metadata", err.Error())
		return
	}

	result := s.deps.Store.ApplyAction(r.Context(), action, meta)

	resp := actionResponse{
		Applied:        result.Applied,
		XPGained:       result.XPGained,
		LevelsGained:   result.LevelsGained,
		NewLevel:       result.NewLevel,
		TokensEarned:   result.TokensEarned,
		StreakEvent:    string(result.StreakEvent),
		StreakDays:     result.StreakDays,
		PreviousStreak: result.PreviousStreak,
		PathCompleted:  string(result.PathCompleted),
		TransactionIDs: result.TransactionIDs,
	}
	for _, id := range result.AchievementsUnlocked {
		resp.AchievementsUnlocked = append(resp.AchievementsUnlocked, string(id))
	}
	for _, id := range result.BadgesAwarded {
		resp.BadgesAwarded = append(resp.BadgesAwarded, string(id))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// transactionResponse is the wire shape of a reward transaction.
type transactionResponse struct {
	ID          string     `json:"id"`
	Action      string     `json:"action"`
	BaseAmount  int64      `json:"base_amount"`
	Multiplier  float64    `json:"multiplier"`
	FinalAmount int64      `json:"final_amount"`
	BurnAmount  int64      `json:"burn_amount"`
	State       string     `json:"state"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

func newTransactionResponse(tx *profile.RewardTransaction) transactionResponse {
	resp := transactionResponse{
		ID:          tx.ID,
		Action:      string(tx.Action),
		BaseAmount:  int64(tx.BaseAmount),
		Multiplier:  tx.Multiplier,
		FinalAmount: int64(tx.FinalAmount),
		BurnAmount:  int64(tx.BurnAmount),
		State:       string(tx.State),
		Attempts:    tx.Attempts,
		LastError:   tx.LastError,
		CreatedAt:   tx.CreatedAt,
	}
	if !tx.ConfirmedAt.IsZero() {
		t := tx.ConfirmedAt
		resp.ConfirmedAt = &t
	}
	return resp
}

// handleGetTransactions handles GET /api/v1/transactions
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil || s.deps.Transactions == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Transaction history not configured")
		return
	}

	limit := getQueryParamInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	profileID := s.deps.Store.GetSnapshot().ID
	txs, err := s.deps.Transactions.History(r.Context(), profileID, limit)
	if err != nil {
		s.logger.Error("failed to load transaction history", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to load transaction history")
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, newTransactionResponse(tx))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetPendingTransactions handles GET /api/v1/transactions/pending
func (s *Server) handleGetPendingTransactions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Profile store not configured")
		return
	}

	pending := s.deps.Store.PendingTransactions()
	resp := make([]transactionResponse, 0, len(pending))
	for _, tx := range pending {
		resp = append(resp, newTransactionResponse(tx))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSyncStatus handles GET /api/v1/sync/status
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{}

	if s.deps.Store != nil {
		status["pending_count"] = len(s.deps.Store.PendingTransactions())
		status["degraded"] = s.deps.Store.Degraded()
	}

	if s.deps.Ledger != nil {
		ls := s.deps.Ledger.Status(r.Context())
		status["ledger_healthy"] = ls.IsHealthy
		status["breaker_state"] = ls.BreakerState.String()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleTriggerSync handles POST /api/v1/sync
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Coordinator == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Sync coordinator not configured")
		return
	}

	s.deps.Coordinator.SyncPending(r.Context())

	pending := 0
	if s.deps.Store != nil {
		pending = len(s.deps.Store.PendingTransactions())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"triggered":     true,
		"pending_count": pending,
	})
}
