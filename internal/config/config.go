package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "SCHEDULER_CONFIG_PATH"

type Config struct {
	Server struct {
		Address         string `yaml:"address"`
		ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
		WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Locks struct {
		// Backend is memory, redis or failover.
		Backend    string `yaml:"backend"`
		TTLSeconds int    `yaml:"ttl_seconds"`
		WaitMillis int    `yaml:"max_wait_ms"`
	} `yaml:"locks"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Generation struct {
		MaxRangeDays int `yaml:"max_range_days"`
		// HorizonDays is how far ahead active templates are generated at startup; 0 disables it.
		HorizonDays int `yaml:"horizon_days"`
	} `yaml:"generation"`

	Timezone string `yaml:"timezone"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	API struct {
		RateLimit    float64 `yaml:"rate_limit"`
		RateBurst    int     `yaml:"rate_burst"`
		MaxRangeDays int     `yaml:"max_range_days"`
	} `yaml:"api"`

	Export struct {
		SheetName string `yaml:"sheet_name"`
	} `yaml:"export"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	HoursFile          string `yaml:"hours_file"`
	HoursWatchInterval int    `yaml:"hours_watch_interval_sec"`

	location *time.Location
}

// BackupConfig controls the periodic database copy.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the YAML config at path (configs/config.yaml when empty), expands ${ENV}
// placeholders, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = 30
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/salonsched.db"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Locks.Backend == "" {
		c.Locks.Backend = "memory"
		if c.Redis.Address != "" {
			c.Locks.Backend = "failover"
		}
	}
	if c.Locks.TTLSeconds <= 0 {
		c.Locks.TTLSeconds = 30
	}
	if c.Locks.WaitMillis <= 0 {
		c.Locks.WaitMillis = 5000
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Generation.MaxRangeDays <= 0 {
		c.Generation.MaxRangeDays = 366
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.API.RateLimit <= 0 {
		c.API.RateLimit = 50
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = 100
	}
	if c.API.MaxRangeDays <= 0 {
		c.API.MaxRangeDays = 90
	}
	if c.Export.SheetName == "" {
		c.Export.SheetName = "Bookings"
	}
	if c.Sheets.SheetName == "" {
		c.Sheets.SheetName = "Bookings"
	}
	if c.HoursWatchInterval <= 0 {
		c.HoursWatchInterval = 30
	}
}

// Validate checks cross-field constraints and resolves the timezone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.location = loc

	switch c.Locks.Backend {
	case "memory":
	case "redis", "failover":
		if c.Redis.Address == "" {
			return fmt.Errorf("locks.backend %q requires redis.address", c.Locks.Backend)
		}
	default:
		return fmt.Errorf("locks.backend: unknown backend %q, expected memory, redis or failover", c.Locks.Backend)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: expected console or json, got %q", c.Logging.Format)
	}

	if c.Sheets.Enabled {
		if c.Sheets.CredentialsFile == "" {
			return fmt.Errorf("sheets.credentials_file is required when sheets are enabled")
		}
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets.spreadsheet_id is required when sheets are enabled")
		}
	}

	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days cannot be negative")
	}

	if c.Generation.HorizonDays < 0 {
		return fmt.Errorf("generation.horizon_days cannot be negative")
	}
	if c.Generation.HorizonDays > c.Generation.MaxRangeDays {
		return fmt.Errorf("generation.horizon_days (%d) exceeds generation.max_range_days (%d)",
			c.Generation.HorizonDays, c.Generation.MaxRangeDays)
	}
	return nil
}

// Location is the configured timezone; all dates are interpreted in it.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Locks.TTLSeconds) * time.Second
}

// LockWait bounds how long a booking waits for its locks.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Locks.WaitMillis) * time.Millisecond
}

func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) HoursInterval() time.Duration {
	return time.Duration(c.HoursWatchInterval) * time.Second
}
