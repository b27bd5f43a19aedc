package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/internal/features/profile/domain"
)

// changeMarker identifies one on-disk revision of the policy file. The
// configuration UI writes the file atomically (write + rename), so
// mtime plus size is a sufficient change signal for a low-frequency poll.
type changeMarker struct {
	modTime time.Time
	size    int64
	exists  bool
}

// Store holds the active policy configuration and hot-swaps it when the
// external configuration UI rewrites the backing file. The control loop
// is the sole writer of the active pointer; the status API and metrics
// reader only ever load it, so a swapped pointer is the whole
// synchronization story.
type Store struct {
	path      string
	tableSize int
	logger    *slog.Logger

	active atomic.Pointer[domain.PolicyConfig]
	marker changeMarker
}

// NewStore creates the store and performs the initial load. A missing or
// malformed policy file is not fatal: the built-in safe default takes
// over until the UI writes a valid one.
func NewStore(path string, tableSize int, logger *slog.Logger) *Store {
	store := &Store{
		path:      path,
		tableSize: tableSize,
		logger:    logger,
	}

	config, err := store.load()
	if err != nil {
		logger.Warn("policy file unusable at startup, using safe default",
			"path", path, "error", err)
		fallback := domain.SafeDefault(tableSize)
		config = &fallback
	}
	store.active.Store(config)
	store.marker = readMarker(path)

	return store
}

// Active returns the current policy configuration. The returned record
// is complete and immutable; callers must not hold it across reloads if
// they need the latest revision.
func (s *Store) Active() *domain.PolicyConfig {
	return s.active.Load()
}

// Snapshot returns a copy of the active configuration for the status
// API. Serializing the copy and reloading it yields an identical record.
func (s *Store) Snapshot() domain.PolicyConfig {
	return *s.active.Load()
}

// CheckReload polls the change marker without blocking and reloads on
// change. The swap happens only after a successful load and validation;
// a malformed rewrite leaves the last valid configuration active.
// It reports whether a new configuration was published.
func (s *Store) CheckReload() bool {
	marker := readMarker(s.path)
	if marker == s.marker {
		return false
	}
	s.marker = marker

	config, err := s.load()
	if err != nil {
		s.logger.Warn("policy file reload rejected, keeping active configuration",
			"path", s.path, "error", err)
		return false
	}

	s.active.Store(config)
	s.logger.Info("policy configuration reloaded",
		"profile", string(config.Profile),
		"up_threshold", config.UpThreshold,
		"down_threshold", config.DownThreshold,
		"min_index", config.MinIndex,
		"max_index", config.MaxIndex,
	)
	return true
}

// load parses and validates the policy file. The file names a profile
// preset; any tunable it sets explicitly overrides the preset's value.
func (s *Store) load() (*domain.PolicyConfig, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	if configType := strings.TrimPrefix(filepath.Ext(s.path), "."); configType != "" {
		v.SetConfigType(configType)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, common.ConfigError("failed to read policy file %s: %v", s.path, err)
	}

	profile := domain.Profile(v.GetString("profile"))
	if !profile.Valid() {
		return nil, common.ConfigError("policy file %s names unknown profile %q", s.path, profile)
	}

	config := domain.Preset(profile, s.tableSize)
	if err := v.Unmarshal(&config); err != nil {
		return nil, common.ConfigError("failed to parse policy file %s: %v", s.path, err)
	}

	if err := config.Validate(s.tableSize); err != nil {
		return nil, err
	}
	return &config, nil
}

func readMarker(path string) changeMarker {
	info, err := os.Stat(path)
	if err != nil {
		return changeMarker{}
	}
	return changeMarker{modTime: info.ModTime(), size: info.Size(), exists: true}
}
