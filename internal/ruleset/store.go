package ruleset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// Source provides a ruleset override. Load returns (nil, nil) when no override exists.
type Source interface {
	Load(ctx context.Context) (*Ruleset, error)
}

// Saver persists a ruleset so that later reloads observe it.
type Saver interface {
	Save(ctx context.Context, rs *Ruleset) error
}

// Store publishes immutable ruleset snapshots. Readers call Current and keep the returned
// pointer for the duration of one operation.
type Store struct {
	current atomic.Pointer[Ruleset]
	source  Source
	mu      sync.Mutex // serializes Reload/Replace
	log     *logger.Logger
}

// NewStore creates a store seeded with the default ruleset. source may be nil.
func NewStore(source Source, log *logger.Logger) *Store {
	s := &Store{source: source, log: log}
	rs := Default()
	rs.Version = 1
	s.current.Store(rs)
	return s
}

// Current returns the active ruleset snapshot.
func (s *Store) Current() *Ruleset {
	return s.current.Load()
}

// Reload fetches the ruleset from the source, falling back to the defaults when the source has
// no override. On error the previous snapshot stays active.
func (s *Store) Reload(ctx context.Context) (*Ruleset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rs *Ruleset
	if s.source != nil {
		loaded, err := s.source.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load ruleset: %w", err)
		}
		rs = loaded
	}
	if rs == nil {
		rs = Default()
	}
	return s.publish(rs)
}

// Replace validates rs, persists it when the source supports saving, and publishes it. A rule
// violation fails with apperrors.ErrValidation and a storage failure with apperrors.ErrPersistence.
func (s *Store) Replace(ctx context.Context, rs *Ruleset) (*Ruleset, error) {
	if rs == nil {
		return nil, apperrors.Invalid("ruleset", "must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := rs.Clone()
	if err := next.Validate(); err != nil {
		return nil, apperrors.Invalid("ruleset", "%v", err)
	}
	if saver, ok := s.source.(Saver); ok {
		if err := saver.Save(ctx, next); err != nil {
			return nil, apperrors.Classify("save ruleset", fmt.Errorf("failed to save ruleset: %w", err))
		}
	}
	return s.publish(next)
}

func (s *Store) publish(rs *Ruleset) (*Ruleset, error) {
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ruleset: %w", err)
	}
	prev := s.current.Load()
	rs.Version = prev.Version + 1
	s.current.Store(rs)

	if s.log != nil {
		s.log.Info().
			Uint64("version", rs.Version).
			Int("badges", len(rs.Badges)).
			Int("trophies", len(rs.Trophies)).
			Int("levels", len(rs.AvatarLevels)).
			Msg("Ruleset published")
	}
	return rs, nil
}

// FileSource reads a YAML ruleset. Keys missing from the file keep their default values.
type FileSource struct {
	Path string
}

// Load implements Source. A missing file is not an error.
func (f FileSource) Load(_ context.Context) (*Ruleset, error) {
	if f.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file %s: %w", f.Path, err)
	}

	rs := Default()
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset file %s: %w", f.Path, err)
	}
	return rs, nil
}

// ChainSource returns the first override found among sources.
type ChainSource []Source

// Load implements Source.
func (c ChainSource) Load(ctx context.Context) (*Ruleset, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		rs, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		if rs != nil {
			return rs, nil
		}
	}
	return nil, nil
}

// Save implements Saver by delegating to the first source that can save.
func (c ChainSource) Save(ctx context.Context, rs *Ruleset) error {
	for _, src := range c {
		if saver, ok := src.(Saver); ok {
			return saver.Save(ctx, rs)
		}
	}
	return errors.New("no writable ruleset source configured")
}
