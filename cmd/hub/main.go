// Package main - точка входа движка прогрессии T4G Learn Hub.
//
// Философия: "Local-first" - движок наград живёт рядом с пользователем.
// Каждое учебное действие зачисляется мгновенно и локально; расчёты с
// удалённым леджером T4G идут в фоне и никогда не блокируют интерфейс.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая логика наград, уровней, серий и достижений
// - Application: ProfileStore (единственный писатель профиля) и Sync Coordinator
// - Infrastructure: PostgreSQL, Redis, леджер-клиент, identity, метрики
// - Interface: локальный REST API для сайта документации
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	// Application layer
	"github.com/t4g-hub/t4g-learn-hub/internal/application/store"
	appsync "github.com/t4g-hub/t4g-learn-hub/internal/application/sync"

	// Infrastructure layer
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/external/ledger"
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/identity"
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/messaging"
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/metrics"
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/persistence/postgres"
	"github.com/t4g-hub/t4g-learn-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/t4g-hub/t4g-learn-hub/internal/interface/http"

	// Packages
	"github.com/t4g-hub/t4g-learn-hub/config"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

func main() {
	ctx := context.Background()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	// .env нужен только для локальной разработки, отсутствие файла не ошибка.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting T4G Learn Hub",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	// Движок работает и без базы: профиль живёт в памяти, а деградация
	// лечится при следующем успешном persist. В production база обязательна,
	// это проверяет config.Validate.
	var dbConn *postgres.Connection
	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
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

		// ─────────────────────────────────────────────────────────────────
		// 4. ЗАПУСК МИГРАЦИЙ
		// ─────────────────────────────────────────────────────────────────
		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		status, err := migrator.Status(ctx)
		if err != nil {
			log.Warn("failed to get migration status", "error", err)
		} else {
			appliedCount := 0
			for _, m := range status {
				if m.IsApplied {
					appliedCount++
				}
			}
			log.Info("migrations completed", "applied", appliedCount, "total", len(status))
		}
	} else {
		log.Warn("DATABASE_URL not set, running with in-memory state only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var snapshotCache *redis.SnapshotCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, snapshot caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			snapshotCache = redis.NewSnapshotCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	var profileRepo profile.Repository
	var txRepo profile.TransactionRepository
	if dbConn != nil {
		log.Info("initializing repositories...")
		profileRepo = postgres.NewProfileRepository(dbConn)
		txRepo = postgres.NewTransactionRepository(dbConn)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	registry := metrics.NewRegistry()
	var storeMetrics store.Metrics = store.NopMetrics{}
	var syncMetrics appsync.Metrics = appsync.NopMetrics{}
	if cfg.Observability.MetricsEnabled {
		storeMetrics = metrics.StoreRecorder{}
		syncMetrics = metrics.SyncRecorder{}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. IDENTITY (кошелёк пользователя)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("loading identity...", "key_path", cfg.Identity.KeyPath)
	keyStore := identity.NewFileKeyStore(cfg.Identity.KeyPath)
	auth, err := identity.NewAuthenticator(ctx, keyStore, log)
	if err != nil {
		return fmt.Errorf("failed to initialize identity: %w", err)
	}
	log.Info("identity ready", "wallet", auth.WalletAddress())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. PROFILE STORE (ядро движка)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("opening profile store...")
	storeCfg := store.DefaultConfig()
	storeCfg.SnapshotTTL = cfg.Redis.SnapshotTTL

	storeDeps := store.Deps{
		Repo:      profileRepo,
		TxRepo:    txRepo,
		Publisher: eventBus,
		Logger:    log,
		Metrics:   storeMetrics,
	}
	if snapshotCache != nil {
		storeDeps.Cache = snapshotCache
	}

	profileStore, err := store.Open(ctx, auth.WalletAddress(), storeDeps, storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЛЕДЖЕР-КЛИЕНТ И SYNC COORDINATOR
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing ledger client...", "base_url", cfg.Ledger.BaseURL)
	ledgerConfig := ledger.DefaultClientConfig(cfg.Ledger.BaseURL)
	ledgerConfig.Timeout = cfg.Ledger.RequestTimeout
	ledgerConfig.Logger = log
	ledgerConfig.Debug = cfg.App.Debug
	ledgerConfig.LimiterConfig = ledger.LimiterConfig{
		RequestsPerSecond: cfg.Ledger.RequestsPerSecond,
		Burst:             cfg.Ledger.Burst,
		MaxWait:           cfg.Ledger.MaxWait,
	}
	ledgerConfig.BreakerConfig.FailureThreshold = cfg.Ledger.CircuitBreakerThreshold
	ledgerConfig.BreakerConfig.Cooldown = cfg.Ledger.CircuitBreakerCooldown
	ledgerClient := ledger.NewClient(ledgerConfig)

	var coordinator *appsync.Coordinator
	if cfg.Sync.Enabled {
		log.Info("starting sync coordinator...", "interval", cfg.Sync.Interval.String())
		coordinator = appsync.New(profileStore, ledgerClient, auth, log, syncMetrics, appsync.Config{
			Interval:          cfg.Sync.Interval,
			RequestTimeout:    cfg.Ledger.RequestTimeout,
			InitialBackoff:    cfg.Sync.InitialBackoff,
			MaxBackoff:        cfg.Sync.MaxBackoff,
			MaxRetriesPerPass: uint64(cfg.Sync.MaxRetriesPerPass),
		})
		coordinator.Start(ctx)
	} else {
		log.Warn("sync disabled, rewards stay local until re-enabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. SERVER PUSH (живые обновления баланса от леджера)
	// ─────────────────────────────────────────────────────────────────────────
	pushCtx, pushCancel := context.WithCancel(ctx)
	defer pushCancel()

	featureCtx := &config.FeatureContext{ProfileID: auth.WalletAddress()}
	if coordinator != nil && cfg.Sync.ServerPush && cfg.Features.IsEnabled(config.FeatureSyncServerPush, featureCtx) {
		go func() {
			token, err := auth.GetAuthToken(pushCtx)
			if err != nil {
				log.Warn("server push disabled, auth token unavailable", "error", err)
				return
			}
			err = ledgerClient.Subscribe(pushCtx, auth.WalletAddress(), token, func(ev appsync.ServerEvent) {
				coordinator.HandleServerEvent(pushCtx, ev)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("server push stream ended", "error", err)
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")
	registerNotificationHandlers(eventBus, cfg.Features, featureCtx, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 14. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	if host, port, err := splitListenAddr(cfg.App.ListenAddr); err == nil {
		httpConfig.Host = host
		httpConfig.Port = port
	} else {
		log.Warn("invalid APP_LISTEN_ADDR, using default", "addr", cfg.App.ListenAddr, "error", err)
	}
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled

	httpDeps := httpserver.Dependencies{
		Store:        profileStore,
		Transactions: txRepo,
		Coordinator:  coordinator,
		Ledger:       ledgerClient,
		DB:           dbConn,
		Registry:     registry,
		Logger:       log,
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 15. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("T4G Learn Hub is running",
		"http_address", server.Address(),
		"wallet", auth.WalletAddress(),
		"degraded", profileStore.Degraded(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// 1. Останавливаем приём запросов
	log.Info("stopping HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// 2. Останавливаем фоновую синхронизацию
	pushCancel()
	if coordinator != nil {
		log.Info("stopping sync coordinator...")
		coordinator.Stop()
	}

	// 3. Сбрасываем накопленное состояние на диск
	log.Info("flushing profile state...")
	profileStore.Flush(shutdownCtx)

	// 4. Event bus и база данных закроются через defer

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// registerNotificationHandlers подписывает логирующие обработчики на
// доменные события. Сайт документации слушает те же события через API;
// здесь они дублируются в лог для отладки и аудита наград.
func registerNotificationHandlers(bus *messaging.InMemoryEventBus, flags *config.FeatureFlags, featureCtx *config.FeatureContext, log *slog.Logger) {
	if flags.IsEnabled(config.FeatureNotifyLevelUp, featureCtx) {
		_ = bus.Subscribe(shared.EventLevelUp, func(event shared.Event) error {
			log.Info("level up", "profile_id", event.AggregateID(), "payload", event.Payload())
			return nil
		})
	}

	if flags.IsEnabled(config.FeatureNotifyAchievement, featureCtx) {
		_ = bus.Subscribe(shared.EventAchievementUnlocked, func(event shared.Event) error {
			log.Info("achievement unlocked", "profile_id", event.AggregateID(), "payload", event.Payload())
			return nil
		})
	}

	if flags.IsEnabled(config.FeatureNotifyStreak, featureCtx) {
		_ = bus.Subscribe(shared.EventStreakBroken, func(event shared.Event) error {
			log.Info("streak broken", "profile_id", event.AggregateID(), "payload", event.Payload())
			return nil
		})
	}

	_ = bus.Subscribe(shared.EventBalanceCorrected, func(event shared.Event) error {
		log.Warn("balance corrected by ledger", "profile_id", event.AggregateID(), "payload", event.Payload())
		return nil
	})

	_ = bus.Subscribe(shared.EventSyncFailed, func(event shared.Event) error {
		log.Warn("settlement failed", "profile_id", event.AggregateID(), "payload", event.Payload())
		return nil
	})

	_ = bus.Subscribe(shared.EventSyncConflict, func(event shared.Event) error {
		log.Warn("settlement rejected by ledger", "profile_id", event.AggregateID(), "payload", event.Payload())
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
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

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// splitListenAddr разбирает адрес вида ":8080" или "127.0.0.1:8080".
func splitListenAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
