// Package postgres implements the PostgreSQL persistence layer for T4G Learn Hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROFILES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create profiles table
-- Version: 001

-- One row per learner. Completed modules, paths, achievements and badges are
-- kept as JSONB: they are read and written as a whole with the profile and
-- never queried relationally.
CREATE TABLE IF NOT EXISTS profiles (
    id VARCHAR(128) PRIMARY KEY,
    level INTEGER NOT NULL DEFAULT 1,
    xp BIGINT NOT NULL DEFAULT 0,
    total_xp BIGINT NOT NULL DEFAULT 0,
    token_balance BIGINT NOT NULL DEFAULT 0,
    token_lifetime_earned BIGINT NOT NULL DEFAULT 0,
    streak_days INTEGER NOT NULL DEFAULT 0,
    best_streak_days INTEGER NOT NULL DEFAULT 0,
    last_activity_at TIMESTAMP WITH TIME ZONE,
    completed_modules JSONB NOT NULL DEFAULT '{}'::jsonb,
    completed_paths JSONB NOT NULL DEFAULT '{}'::jsonb,
    achievements JSONB NOT NULL DEFAULT '[]'::jsonb,
    badges JSONB NOT NULL DEFAULT '[]'::jsonb,
    early_adopter BOOLEAN NOT NULL DEFAULT FALSE,
    premium BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_streak CHECK (streak_days >= 0),
    CONSTRAINT valid_best_streak CHECK (best_streak_days >= streak_days)
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_profiles_level ON profiles(level DESC);
CREATE INDEX IF NOT EXISTS idx_profiles_total_xp ON profiles(total_xp DESC);
CREATE INDEX IF NOT EXISTS idx_profiles_last_activity_at ON profiles(last_activity_at);

-- Trigger to update updated_at automatically
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trigger_profiles_updated_at ON profiles;
CREATE TRIGGER trigger_profiles_updated_at
    BEFORE UPDATE ON profiles
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS trigger_profiles_updated_at ON profiles;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE REWARD TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create reward_transactions table
-- Version: 002

-- Every minted reward, pending or settled. Pending rows (local, sent,
-- failed) are what the sync coordinator replays after a restart;
-- confirmed and conflict rows are terminal and form the local history,
-- pruned to a bounded window per profile.
CREATE TABLE IF NOT EXISTS reward_transactions (
    id UUID PRIMARY KEY,
    profile_id VARCHAR(128) NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    action VARCHAR(50) NOT NULL,
    base_amount BIGINT NOT NULL,
    final_amount BIGINT NOT NULL,
    burn_amount BIGINT NOT NULL DEFAULT 0,
    multiplier DECIMAL(6,3) NOT NULL DEFAULT 1.000,
    sync_state VARCHAR(20) NOT NULL DEFAULT 'local',
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    confirmed_at TIMESTAMP WITH TIME ZONE,

    -- Constraints for data integrity
    CONSTRAINT valid_sync_state CHECK (sync_state IN ('local', 'sent', 'confirmed', 'failed', 'conflict')),
    CONSTRAINT valid_amounts CHECK (base_amount >= 0 AND final_amount >= 0 AND burn_amount >= 0),
    CONSTRAINT valid_attempts CHECK (attempts >= 0)
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_reward_tx_profile_id ON reward_transactions(profile_id);
CREATE INDEX IF NOT EXISTS idx_reward_tx_created_at ON reward_transactions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reward_tx_pending ON reward_transactions(profile_id, created_at)
    WHERE sync_state IN ('local', 'sent', 'failed');
`

const migration002Down = `
DROP TABLE IF EXISTS reward_transactions;
`
