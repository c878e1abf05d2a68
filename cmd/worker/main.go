// Package main - точка входа фонового обслуживания (Worker) T4G Learn Hub.
//
// Worker отвечает за периодические задачи над общей базой профилей:
// - Обрезка истории транзакций до лимита на профиль
// - Инвалидация снимков профилей после обрезки
//
// Сам движок наград работает в процессе hub; worker трогает только
// подтверждённые и провалившиеся записи и никогда не касается очереди
// ожидающих расчёта транзакций.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	// Infrastructure layer
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/persistence/postgres"
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config содержит всю конфигурацию Worker приложения.
type Config struct {
	// App
	AppEnv   string // development, staging, production
	AppDebug bool

	// PostgreSQL
	DatabaseURL string

	// Redis (опционально, для распределённой блокировки и кеша снимков)
	RedisHost    string
	RedisPort    int
	RedisEnabled bool

	// Jobs
	PruneInterval time.Duration
	HistoryLimit  int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

// LoadConfig загружает конфигурацию из переменных окружения.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		AppDebug:        getEnvBool("APP_DEBUG", false),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnvInt("REDIS_PORT", 6379),
		RedisEnabled:    !getEnvBool("REDIS_DISABLED", false),
		PruneInterval:   getEnvDuration("PRUNE_INTERVAL", 1*time.Hour),
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 200),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	// Валидация обязательных полей
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.HistoryLimit < 1 {
		return nil, errors.New("HISTORY_LIMIT must be positive")
	}

	return cfg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting T4G Learn Hub Worker",
		"env", cfg.AppEnv,
		"debug", cfg.AppDebug,
		"prune_interval", cfg.PruneInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ (Worker также должен иметь актуальную схему)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache

	if cfg.RedisEnabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.RedisHost
		redisCfg.Port = cfg.RedisPort

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, running without lock and cache", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	txRepo := postgres.NewTransactionRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. WORKER LOOP
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("T4G Learn Hub Worker is running")

	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	// Первый проход сразу при старте, дальше по расписанию.
	runPruneSweep(ctx, cfg, txRepo, redisCache, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case <-ticker.C:
			runPruneSweep(ctx, cfg, txRepo, redisCache, log)
		case sig := <-sigCh:
			log.Info("received shutdown signal", "signal", sig.String())
			log.Info("starting graceful shutdown...", "timeout", cfg.ShutdownTimeout.String())
			log.Info("shutdown completed successfully")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOBS
// ══════════════════════════════════════════════════════════════════════════════

// runPruneSweep обрезает историю транзакций каждого профиля до лимита.
// При нескольких экземплярах worker'а проход выполняет только владелец
// распределённой блокировки; остальные молча пропускают тик.
func runPruneSweep(ctx context.Context, cfg *Config, txRepo *postgres.TransactionRepository, cache *redis.Cache, log *slog.Logger) {
	if cache != nil {
		acquired, err := cache.SetNX(ctx, redis.LockKey("history-prune"), "1", cfg.PruneInterval/2)
		if err != nil {
			log.Warn("failed to acquire prune lock, skipping sweep", "error", err)
			return
		}
		if !acquired {
			log.Debug("prune lock held by another worker, skipping sweep")
			return
		}
	}

	start := time.Now()

	profileIDs, err := txRepo.ProfilesWithHistory(ctx)
	if err != nil {
		log.Error("failed to list profiles for pruning", "error", err)
		return
	}

	pruned := 0
	for _, id := range profileIDs {
		if err := txRepo.PruneHistory(ctx, id, cfg.HistoryLimit); err != nil {
			log.Warn("failed to prune history", "profile_id", id, "error", err)
			continue
		}
		pruned++

		if cache != nil {
			_ = cache.Delete(ctx, redis.ProfileKey(id))
		}
	}

	log.Info("history prune sweep completed",
		"profiles", len(profileIDs),
		"pruned", pruned,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.AppDebug {
		opts.Level = slog.LevelDebug
	}

	if cfg.AppEnv == "production" {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// getEnv возвращает переменную окружения или значение по умолчанию.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool возвращает boolean переменную окружения.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt возвращает int переменную окружения.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return defaultValue
}

// getEnvDuration возвращает time.Duration переменную окружения.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
