package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
)

// ProfileRepository implements profile.Repository for PostgreSQL.
// Collection fields (completed modules, paths, achievements, badges) are
// stored as JSONB columns since they always travel with the profile.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// moduleCompletionRecord is the JSONB shape of a completed module entry.
type moduleCompletionRecord struct {
	ModuleID    string    `json:"module_id"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// Save persists the profile (upsert by ID). Pending transactions are
// persisted separately through TransactionRepository.
func (r *ProfileRepository) Save(ctx context.Context, p *profile.UserProfile) error {
	modulesJSON, pathsJSON, achievementsJSON, badgesJSON, err := marshalCollections(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO profiles (
			id, level, xp, total_xp, token_balance, token_lifetime_earned,
			streak_days, best_streak_days, last_activity_at,
			completed_modules, completed_paths, achievements, badges,
			early_adopter, premium, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT(id) DO UPDATE SET
			level = EXCLUDED.level,
			xp = EXCLUDED.xp,
			total_xp = EXCLUDED.total_xp,
			token_balance = EXCLUDED.token_balance,
			token_lifetime_earned = EXCLUDED.token_lifetime_earned,
			streak_days = EXCLUDED.streak_days,
			best_streak_days = GREATEST(profiles.best_streak_days, EXCLUDED.best_streak_days),
			last_activity_at = EXCLUDED.last_activity_at,
			completed_modules = EXCLUDED.completed_modules,
			completed_paths = EXCLUDED.completed_paths,
			achievements = EXCLUDED.achievements,
			badges = EXCLUDED.badges,
			early_adopter = EXCLUDED.early_adopter,
			premium = EXCLUDED.premium,
			updated_at = EXCLUDED.updated_at
	`

	var lastActivity *time.Time
	if !p.LastActivityAt.IsZero() {
		lastActivity = &p.LastActivityAt
	}

	_, err = r.conn.Exec(ctx, query,
		p.ID,
		int(p.Level),
		int64(p.XP),
		int64(p.TotalXP),
		int64(p.TokenBalance),
		int64(p.TokenLifetimeEarned),
		p.StreakDays,
		p.BestStreakDays,
		lastActivity,
		modulesJSON,
		pathsJSON,
		achievementsJSON,
		badgesJSON,
		p.EarlyAdopter,
		p.Premium,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	return nil
}

// FindByID returns the profile or profile.ErrProfileNotFound.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*profile.UserProfile, error) {
	query := `
		SELECT id, level, xp, total_xp, token_balance, token_lifetime_earned,
			   streak_days, best_streak_days, last_activity_at,
			   completed_modules, completed_paths, achievements, badges,
			   early_adopter, premium, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	var (
		p                profile.UserProfile
		level            int
		xp               int64
		totalXP          int64
		balance          int64
		lifetime         int64
		lastActivity     *time.Time
		modulesJSON      []byte
		pathsJSON        []byte
		achievementsJSON []byte
		badgesJSON       []byte
	)

	err := r.conn.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&level,
		&xp,
		&totalXP,
		&balance,
		&lifetime,
		&p.StreakDays,
		&p.BestStreakDays,
		&lastActivity,
		&modulesJSON,
		&pathsJSON,
		&achievementsJSON,
		&badgesJSON,
		&p.EarlyAdopter,
		&p.Premium,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, profile.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	p.Level = profile.Level(level)
	p.XP = profile.XP(xp)
	p.TotalXP = profile.XP(totalXP)
	p.TokenBalance = profile.Tokens(balance)
	p.TokenLifetimeEarned = profile.Tokens(lifetime)
	if lastActivity != nil {
		p.LastActivityAt = *lastActivity
	}

	if err := unmarshalCollections(&p, modulesJSON, pathsJSON, achievementsJSON, badgesJSON); err != nil {
		return nil, err
	}

	return &p, nil
}

// Delete removes the profile. Transactions go with it via ON DELETE CASCADE.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONB mapping
// ─────────────────────────────────────────────────────────────────────────────

func marshalCollections(p *profile.UserProfile) (modules, paths, achievements, badges []byte, err error) {
	moduleRecords := make(map[string]moduleCompletionRecord, len(p.CompletedModules))
	for id, mc := range p.CompletedModules {
		moduleRecords[string(id)] = moduleCompletionRecord{
			ModuleID:    string(mc.ModuleID),
			Score:       mc.Score,
			CompletedAt: mc.CompletedAt,
		}
	}
	modules, err = json.Marshal(moduleRecords)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal completed modules: %w", err)
	}

	pathMap := make(map[string]bool, len(p.CompletedPaths))
	for id, done := range p.CompletedPaths {
		pathMap[string(id)] = done
	}
	paths, err = json.Marshal(pathMap)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal completed paths: %w", err)
	}

	achievementIDs := make([]string, len(p.UnlockedAchievements))
	for i, id := range p.UnlockedAchievements {
		achievementIDs[i] = string(id)
	}
	achievements, err = json.Marshal(achievementIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal achievements: %w", err)
	}

	badgeIDs := make([]string, len(p.Badges))
	for i, id := range p.Badges {
		badgeIDs[i] = string(id)
	}
	badges, err = json.Marshal(badgeIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal badges: %w", err)
	}

	return modules, paths, achievements, badges, nil
}

func unmarshalCollections(p *profile.UserProfile, modules, paths, achievements, badges []byte) error {
	moduleRecords := make(map[string]moduleCompletionRecord)
	if len(modules) > 0 {
		if err := json.Unmarshal(modules, &moduleRecords); err != nil {
			return fmt.Errorf("failed to unmarshal completed modules: %w", err)
		}
	}
	p.CompletedModules = make(map[profile.ModuleID]profile.ModuleCompletion, len(moduleRecords))
	for id, rec := range moduleRecords {
		p.CompletedModules[profile.ModuleID(id)] = profile.ModuleCompletion{
			ModuleID:    profile.ModuleID(rec.ModuleID),
			Score:       rec.Score,
			CompletedAt: rec.CompletedAt,
		}
	}

	pathMap := make(map[string]bool)
	if len(paths) > 0 {
		if err := json.Unmarshal(paths, &pathMap); err != nil {
			return fmt.Errorf("failed to unmarshal completed paths: %w", err)
		}
	}
	p.CompletedPaths = make(map[profile.PathID]bool, len(pathMap))
	for id, done := range pathMap {
		p.CompletedPaths[profile.PathID(id)] = done
	}

	var achievementIDs []string
	if len(achievements) > 0 {
		if err := json.Unmarshal(achievements, &achievementIDs); err != nil {
			return fmt.Errorf("failed to unmarshal achievements: %w", err)
		}
	}
	p.UnlockedAchievements = make([]profile.AchievementID, len(achievementIDs))
	for i, id := range achievementIDs {
		p.UnlockedAchievements[i] = profile.AchievementID(id)
	}

	var badgeIDs []string
	if len(badges) > 0 {
		if err := json.Unmarshal(badges, &badgeIDs); err != nil {
			return fmt.Errorf("failed to unmarshal badges: %w", err)
		}
	}
	p.Badges = make([]profile.BadgeID, len(badgeIDs))
	for i, id := range badgeIDs {
		p.Badges[i] = profile.BadgeID(id)
	}

	return nil
}
