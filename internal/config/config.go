// Package config loads process configuration and the two operator-maintained
// classification files: the quarter calendar and the status mapping.
//
// Configuration comes from the environment (viper), optionally overlaid on a
// config file named by FLOWTIME_CONFIG. Environment always wins.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// TrackerConfig holds the remote API settings.
type TrackerConfig struct {
	Token          string
	OrgID          string
	BaseURL        string
	MaxWorkers     int
	RequestDelay   time.Duration
	ScrollPageSize int
	ScrollTTL      time.Duration
	BatchSize      int
	SyncTimeout    time.Duration // 0 = no global timeout
}

// HierarchyConfig names the two queues and the link shape that ties them
// together. Children reference their parent with a link of the given type
// and direction, so the walk runs child-to-parent matching server-side.
type HierarchyConfig struct {
	UpstreamQueue   string
	DownstreamQueue string
	LinkType        string
	LinkDirection   string
	MaxDepth        int
}

// Config is the full process configuration.
type Config struct {
	Tracker     TrackerConfig
	Hierarchy   HierarchyConfig
	DatabaseURL string

	// MinStatusDuration is the bounce-filter threshold.
	MinStatusDuration time.Duration

	LockPath     string
	ReportsDir   string
	QuartersFile string
	StatusFile   string

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment (and FLOWTIME_CONFIG, if set).
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("TRACKER_BASE_URL", "https://api.tracker.yandex.net")
	v.SetDefault("TRACKER_MAX_WORKERS", 10)
	v.SetDefault("TRACKER_REQUEST_DELAY", "100ms")
	v.SetDefault("TRACKER_SCROLL_PAGE_SIZE", 50)
	v.SetDefault("TRACKER_SCROLL_TTL", "5m")
	v.SetDefault("TRACKER_BATCH_SIZE", 100)
	v.SetDefault("TRACKER_SYNC_TIMEOUT", "0s")
	v.SetDefault("MIN_STATUS_DURATION_SECONDS", 300)
	v.SetDefault("FLOWTIME_UPSTREAM_QUEUE", "CPO")
	v.SetDefault("FLOWTIME_DOWNSTREAM_QUEUE", "FULLSTACK")
	v.SetDefault("FLOWTIME_SUBTASK_LINK_TYPE", "subtask")
	v.SetDefault("FLOWTIME_LINK_DIRECTION", "inward")
	v.SetDefault("FLOWTIME_HIERARCHY_DEPTH", 10)
	v.SetDefault("FLOWTIME_LOCK_PATH", "/tmp/ft-sync.lock")
	v.SetDefault("FLOWTIME_REPORTS_DIR", "reports")
	v.SetDefault("FLOWTIME_QUARTERS_FILE", "config/quarters.txt")
	v.SetDefault("FLOWTIME_STATUS_FILE", "config/status_order.txt")
	v.SetDefault("FLOWTIME_LOG_LEVEL", "info")
	v.SetDefault("FLOWTIME_LOG_JSON", false)

	v.AutomaticEnv()

	if path := os.Getenv("FLOWTIME_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Tracker: TrackerConfig{
			Token:          v.GetString("TRACKER_API_TOKEN"),
			OrgID:          v.GetString("TRACKER_ORG_ID"),
			BaseURL:        v.GetString("TRACKER_BASE_URL"),
			MaxWorkers:     v.GetInt("TRACKER_MAX_WORKERS"),
			RequestDelay:   v.GetDuration("TRACKER_REQUEST_DELAY"),
			ScrollPageSize: v.GetInt("TRACKER_SCROLL_PAGE_SIZE"),
			ScrollTTL:      v.GetDuration("TRACKER_SCROLL_TTL"),
			BatchSize:      v.GetInt("TRACKER_BATCH_SIZE"),
			SyncTimeout:    v.GetDuration("TRACKER_SYNC_TIMEOUT"),
		},
		Hierarchy: HierarchyConfig{
			UpstreamQueue:   v.GetString("FLOWTIME_UPSTREAM_QUEUE"),
			DownstreamQueue: v.GetString("FLOWTIME_DOWNSTREAM_QUEUE"),
			LinkType:        v.GetString("FLOWTIME_SUBTASK_LINK_TYPE"),
			LinkDirection:   v.GetString("FLOWTIME_LINK_DIRECTION"),
			MaxDepth:        v.GetInt("FLOWTIME_HIERARCHY_DEPTH"),
		},
		DatabaseURL:       v.GetString("DATABASE_URL"),
		MinStatusDuration: time.Duration(v.GetInt("MIN_STATUS_DURATION_SECONDS")) * time.Second,
		LockPath:          v.GetString("FLOWTIME_LOCK_PATH"),
		ReportsDir:        v.GetString("FLOWTIME_REPORTS_DIR"),
		QuartersFile:      v.GetString("FLOWTIME_QUARTERS_FILE"),
		StatusFile:        v.GetString("FLOWTIME_STATUS_FILE"),
		LogLevel:          v.GetString("FLOWTIME_LOG_LEVEL"),
		LogJSON:           v.GetBool("FLOWTIME_LOG_JSON"),
	}

	return cfg, nil
}

// ValidateForSync checks everything a sync run needs up front. Config errors
// are fatal before any work: no lock taken, no run row written.
func (c *Config) ValidateForSync() error {
	if c.Tracker.Token == "" {
		return fmt.Errorf("TRACKER_API_TOKEN is required")
	}
	if c.Tracker.OrgID == "" {
		return fmt.Errorf("TRACKER_ORG_ID is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Tracker.MaxWorkers < 1 {
		return fmt.Errorf("TRACKER_MAX_WORKERS must be >= 1, got %d", c.Tracker.MaxWorkers)
	}
	if c.Tracker.ScrollPageSize < 1 || c.Tracker.ScrollPageSize > 100 {
		return fmt.Errorf("TRACKER_SCROLL_PAGE_SIZE must be in 1..100, got %d", c.Tracker.ScrollPageSize)
	}
	if c.Tracker.BatchSize < 1 || c.Tracker.BatchSize > 100 {
		return fmt.Errorf("TRACKER_BATCH_SIZE must be in 1..100, got %d", c.Tracker.BatchSize)
	}
	return nil
}

// ValidateForReport checks what the offline report pass needs.
func (c *Config) ValidateForReport() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Hierarchy.MaxDepth < 1 {
		return fmt.Errorf("FLOWTIME_HIERARCHY_DEPTH must be >= 1, got %d", c.Hierarchy.MaxDepth)
	}
	return nil
}
