package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
)

// RulesetKey is the configuration row holding the ruleset override.
const RulesetKey = "gamification_ruleset"

// ConfigurationRepository handles key/value configuration rows. It also serves as the
// database-backed ruleset source.
type ConfigurationRepository struct {
	db *DB
}

// NewConfigurationRepository creates a new configuration repository.
func NewConfigurationRepository(db *DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

// Get returns the raw JSON value stored under key, or nil if the key is absent.
func (r *ConfigurationRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var row models.Configuration
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration %s: %w", key, err)
	}
	return row.Value, nil
}

// Set stores value under key, replacing any previous value.
func (r *ConfigurationRepository) Set(ctx context.Context, key string, value []byte) error {
	row := &models.Configuration{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to set configuration %s: %w", key, err)
	}
	return nil
}

// Load implements ruleset.Source. Keys missing from the stored document keep their defaults.
func (r *ConfigurationRepository) Load(ctx context.Context) (*ruleset.Ruleset, error) {
	raw, err := r.Get(ctx, RulesetKey)
	if err != nil || raw == nil {
		return nil, err
	}
	rs := ruleset.Default()
	if err := json.Unmarshal(raw, rs); err != nil {
		return nil, fmt.Errorf("failed to decode stored ruleset: %w", err)
	}
	return rs, nil
}

// Save implements ruleset.Saver.
func (r *ConfigurationRepository) Save(ctx context.Context, rs *ruleset.Ruleset) error {
	raw, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to encode ruleset: %w", err)
	}
	return r.Set(ctx, RulesetKey, raw)
}
