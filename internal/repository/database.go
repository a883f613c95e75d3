// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/retail-gamification/internal/config"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// DB holds the database connection. Inside a transaction it wraps the transaction handle.
type DB struct {
	*gorm.DB
}

// NewDB opens the database selected by cfg.Driver.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLiteDB(cfg.SQLite.Path, log)
	case "postgres", "":
		return NewPostgresDB(&cfg.Postgres, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPostgresDB creates a new PostgreSQL connection.
func NewPostgresDB(cfg *config.PostgresConfig, log *logger.Logger) (*DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL")

	return &DB{db}, nil
}

// NewSQLiteDB opens an embedded database. SQLite allows a single writer, so the pool is
// limited to one connection; this also keeps ":memory:" databases alive and shared.
func NewSQLiteDB(path string, log *logger.Logger) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened SQLite database")

	return &DB{db}, nil
}

func gormConfig(log *logger.Logger) *gorm.Config {
	gormLogLevel := gormlogger.Warn
	switch log.GetLogger().GetLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		gormLogLevel = gormlogger.Info
	case zerolog.Disabled:
		gormLogLevel = gormlogger.Silent
	}

	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// AutoMigrate creates or updates the schema for all models. PostgreSQL deployments use the
// SQL migrations instead; this is for SQLite and tests.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.User{},
		&models.Sale{},
		&models.Configuration{},
		&models.UserGamification{},
		&models.UserBadge{},
		&models.UserAchievement{},
		&models.GamificationEvent{},
		&models.AdminPointAdjustment{},
		&models.GamificationNotification{},
		&models.DailyGoal{},
		&models.MonthlySellerStats{},
	)
}

// Transaction runs fn inside a database transaction bound to ctx. The transaction commits
// when fn returns nil and rolls back otherwise.
func (db *DB) Transaction(ctx context.Context, fn func(tx *DB) error) error {
	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DB{tx})
	})
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// IsPostgres reports whether the connection uses the PostgreSQL dialect.
func (db *DB) IsPostgres() bool {
	return db.Dialector.Name() == "postgres"
}
