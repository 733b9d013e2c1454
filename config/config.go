// Package config loads the application configuration from YAML with
// environment variable overrides for deploy-time settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/SebampitakoDuncan/order-lifecycle-system/activities"
	"github.com/SebampitakoDuncan/order-lifecycle-system/activity"
)

const (
	// Default engine settings
	defaultDeadline         = 15 * time.Second
	defaultActivityTimeout  = 3 * time.Second
	defaultChildBudgetFloor = 2 * time.Second

	// Default worker pool sizes
	defaultOrderWorkers    = 10
	defaultShippingWorkers = 10

	// Default storage settings
	defaultStorageBackend = "memory"

	// Default retention settings
	defaultRetentionMaxAge   = 24 * time.Hour
	defaultRetentionSchedule = "@every 5m"

	// Default monitoring settings
	defaultMetricsPrefix = "order_lifecycle"
	defaultJobName       = "order-lifecycle"

	// Default activity simulation settings
	defaultReviewDelay = 2 * time.Second

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// Config represents the complete application configuration
type Config struct {
	Listener   ListenerConfig   `yaml:"listener"`
	Engine     EngineConfig     `yaml:"engine"`
	Workers    WorkersConfig    `yaml:"workers"`
	Storage    StorageConfig    `yaml:"storage"`
	Activities ActivitiesConfig `yaml:"activities"`
	Retention  RetentionConfig  `yaml:"retention"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ListenerConfig holds HTTP server listener settings
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
}

// EngineConfig holds the orchestration timing and retry settings
type EngineConfig struct {
	// Deadline is the end-to-end execution budget per order
	Deadline time.Duration `yaml:"deadline"`
	// ActivityTimeout is the per-attempt activity timeout
	ActivityTimeout time.Duration `yaml:"activity_timeout"`
	// ChildBudgetFloor is the minimum time budget handed to shipping
	ChildBudgetFloor time.Duration `yaml:"child_budget_floor"`
	// Retry is the step retry policy
	Retry activity.RetryPolicy `yaml:"retry"`
}

// WorkersConfig sets the bounded worker counts per task queue
type WorkersConfig struct {
	Order    int `yaml:"order"`
	Shipping int `yaml:"shipping"`
}

// StorageConfig selects and configures the state store backend
type StorageConfig struct {
	// Backend is one of "memory", "disk" or "postgres"
	Backend string `yaml:"backend"`
	// Dir is the state directory for the disk backend
	Dir string `yaml:"dir"`
	// DSN is the connection string for the postgres backend
	DSN string `yaml:"dsn"`
}

// ActivitiesConfig tunes the demo collaborators
type ActivitiesConfig struct {
	// ReviewDelay is the simulated manual review latency
	ReviewDelay time.Duration `yaml:"review_delay"`
	// FaultsEnabled turns the fault injector on
	FaultsEnabled bool `yaml:"faults_enabled"`
	// Faults is the injection policy; ignored unless FaultsEnabled
	Faults activities.FaultPolicy `yaml:"faults"`
	// Seed seeds the fault injector; 0 means derive from the clock
	Seed int64 `yaml:"seed"`
}

// RetentionConfig controls the purge of terminal executions
type RetentionConfig struct {
	// MaxAge is how long terminal executions are kept
	MaxAge time.Duration `yaml:"max_age"`
	// Schedule is the cron spec for the retention sweep
	Schedule string `yaml:"schedule"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	// VictoriaMetricsURL is the remote write endpoint used in push mode.
	// Optional: server mode scrapes /metrics instead.
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Engine.Deadline <= 0 {
		return fmt.Errorf("engine deadline must be positive")
	}
	if c.Engine.ActivityTimeout <= 0 {
		return fmt.Errorf("activity timeout must be positive")
	}
	if c.Engine.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Workers.Order < 1 || c.Workers.Shipping < 1 {
		return fmt.Errorf("worker counts must be at least 1")
	}

	switch c.Storage.Backend {
	case "memory":
	case "disk":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage dir is required for the disk backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Activities.FaultsEnabled {
		f := c.Activities.Faults
		if f.FailureRatio < 0 || f.StallRatio < 0 || f.FailureRatio+f.StallRatio > 1 {
			return fmt.Errorf("fault ratios must be non-negative and sum to at most 1")
		}
	}

	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention max age must be positive")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = ":8080"
	}
	if c.Engine.Deadline == 0 {
		c.Engine.Deadline = defaultDeadline
	}
	if c.Engine.ActivityTimeout == 0 {
		c.Engine.ActivityTimeout = defaultActivityTimeout
	}
	if c.Engine.ChildBudgetFloor == 0 {
		c.Engine.ChildBudgetFloor = defaultChildBudgetFloor
	}
	if c.Engine.Retry == (activity.RetryPolicy{}) {
		c.Engine.Retry = activity.DefaultRetryPolicy()
	}
	if c.Workers.Order == 0 {
		c.Workers.Order = defaultOrderWorkers
	}
	if c.Workers.Shipping == 0 {
		c.Workers.Shipping = defaultShippingWorkers
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if c.Activities.ReviewDelay == 0 {
		c.Activities.ReviewDelay = defaultReviewDelay
	}
	if c.Activities.FaultsEnabled && c.Activities.Faults == (activities.FaultPolicy{}) {
		c.Activities.Faults = activities.DemoFaultPolicy()
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = defaultRetentionMaxAge
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = defaultRetentionSchedule
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// applyEnv overrides deploy-time settings from the environment. A .env file
// in the working directory is loaded first when present.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("OLS_LISTEN_ADDR"); v != "" {
		c.Listener.Addr = v
	}
	if v := os.Getenv("OLS_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("OLS_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("OLS_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("OLS_VICTORIAMETRICS_URL"); v != "" {
		c.Monitoring.VictoriaMetricsURL = v
	}
	if v := os.Getenv("OLS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("OLS_FAULTS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Activities.FaultsEnabled = enabled
		}
	}
}

// LoadConfig reads the YAML config file at the given path and returns a
// Config struct. An empty path yields the defaults, which is enough to run
// the in-memory demo.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode YAML config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
