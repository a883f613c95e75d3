// Package main is the entry point for the retail gamification server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aimd54/retail-gamification/internal/api/dashboard"
	"github.com/aimd54/retail-gamification/internal/api/gamification"
	"github.com/aimd54/retail-gamification/internal/config"
	"github.com/aimd54/retail-gamification/internal/mattermost"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/notify"
	"github.com/aimd54/retail-gamification/internal/pkg/lock"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/aggregator"
	"github.com/aimd54/retail-gamification/internal/service/leaderboard"
	"github.com/aimd54/retail-gamification/internal/service/scheduler"
	"github.com/aimd54/retail-gamification/internal/service/scoring"
	"github.com/aimd54/retail-gamification/internal/service/streak"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("database", cfg.Database.Driver).
		Msg("Configuration loaded")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	loc, err := cfg.Gamification.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid gamification timezone: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	salesRepo := repository.NewSalesRepository(db)
	statsRepo := repository.NewMonthlyStatsRepository(db)
	ledgerRepo := repository.NewGamificationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	configRepo := repository.NewConfigurationRepository(db)

	// Ruleset: the YAML file, when configured, takes precedence over the stored override.
	var source ruleset.Source = configRepo
	if cfg.Gamification.RulesFile != "" {
		source = ruleset.ChainSource{ruleset.FileSource{Path: cfg.Gamification.RulesFile}, configRepo}
	}
	rules := ruleset.NewStore(source, log.Component("ruleset"))
	rs, err := rules.Reload(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ruleset: %w", err)
	}
	prommetrics.SetRulesetVersion(rs.Version)

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	// Services
	engine := scoring.NewEngine(db, rules, locker, loc, log)
	tracker := streak.NewTracker(statsRepo, engine, log)
	aggregatorService := aggregator.NewService(salesRepo, statsRepo, loc, log)
	leaderboardService := leaderboard.NewService(ledgerRepo, userRepo, salesRepo, notificationRepo, rules, loc, log)

	mattermostClient := mattermost.NewClient(&cfg.Mattermost, log)
	var digestSender notify.DigestSender
	if mattermostClient.Enabled() {
		digestSender = mattermostClient
	}
	notifyService := notify.NewService(notificationRepo, userRepo, digestSender, log)

	if err := leaderboardService.RefreshBadgeHolders(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to publish badge holder gauges")
	}

	deps := scheduler.Deps{
		Users:      userRepo,
		Penalties:  engine,
		Aggregator: aggregatorService,
		Streaks:    tracker,
		Rules:      rules,
		Badges:     leaderboardService,
	}
	if digestSender != nil {
		deps.Digest = notifyService
	}
	schedulerService := scheduler.NewService(&cfg.Scheduler, deps, log)
	if err := schedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer schedulerService.Stop()

	// HTTP
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log.Component("http")))

	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Health(checkCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ruleset_version": rules.Current().Version})
	})
	if cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	gamification.NewHandler(engine, tracker, notifyService, rules, log).RegisterRoutes(api)
	dashboard.NewHandler(leaderboardService, log).RegisterRoutes(api)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("Server stopped gracefully")
	return nil
}

func openDatabase(cfg *config.Config, log *logger.Logger) (*repository.DB, error) {
	if cfg.Database.Driver == "postgres" && cfg.Database.Postgres.Migrate {
		if err := repository.RunMigrations(cfg.Database.Postgres.URL(), log); err != nil {
			return nil, err
		}
	}

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}

	if !db.IsPostgres() {
		if err := db.AutoMigrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}
	return db, nil
}

// newLocker returns the Redis locker when Redis is enabled so that several instances serialize
// on the same user keys, and a process-local locker otherwise.
func newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (lock.Locker, func(), error) {
	timeout := time.Duration(cfg.Gamification.LockTimeout) * time.Second
	redisCfg := cfg.Database.Redis
	if !redisCfg.Enabled {
		return lock.NewKeyedMutex(timeout), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr(),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
		PoolSize: redisCfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", redisCfg.Addr(), err)
	}
	log.Info().Str("addr", redisCfg.Addr()).Msg("Connected to Redis")

	ttl := time.Duration(cfg.Gamification.LockTTL) * time.Second
	locker := lock.NewRedisLocker(client, ttl, timeout, log)
	return locker, func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}, nil
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}
