package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the errtrack service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Forward    ForwardConfig    `yaml:"forward"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig selects and configures the persisted-state backend. Backend is
// one of redis, memory, or noop.
type StoreConfig struct {
	Backend      string        `yaml:"backend"`
	TTL          time.Duration `yaml:"ttl"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"poolSize"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// TrackerConfig controls the capture pipeline.
type TrackerConfig struct {
	Environment    string   `yaml:"environment"`
	Version        string   `yaml:"version"`
	SampleRate     float64  `yaml:"sampleRate"`
	IgnorePatterns []string `yaml:"ignorePatterns"`
	MaxBreadcrumbs int      `yaml:"maxBreadcrumbs"`
}

// ResolutionConfig controls the auto-resolution engine.
type ResolutionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Strategies []string `yaml:"strategies"`
}

// AlertingConfig controls threshold monitoring.
type AlertingConfig struct {
	ErrorRateThreshold float64       `yaml:"errorRateThreshold"`
	CriticalThreshold  int           `yaml:"criticalThreshold"`
	Cooldown           time.Duration `yaml:"cooldown"`
	WebhookURL         string        `yaml:"webhookURL"`
	WebhookTimeout     time.Duration `yaml:"webhookTimeout"`
}

// ForwardConfig configures the optional outbound leg to a central collector.
type ForwardConfig struct {
	CollectorURL string        `yaml:"collectorURL"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ERRTRACK_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:      "memory",
			TTL:          7 * 24 * time.Hour,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Tracker: TrackerConfig{
			Environment:    "development",
			SampleRate:     1,
			MaxBreadcrumbs: 100,
		},
		Resolution: ResolutionConfig{
			Enabled:    true,
			Strategies: []string{"retry", "fallback", "cache_clear", "service_restart"},
		},
		Alerting: AlertingConfig{
			ErrorRateThreshold: 10,
			CriticalThreshold:  5,
			Cooldown:           5 * time.Minute,
			WebhookTimeout:     5 * time.Second,
		},
		Forward: ForwardConfig{Timeout: 5 * time.Second},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "redis", "memory", "noop":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.Addr == "" {
		return fmt.Errorf("store backend redis requires an addr")
	}
	if c.Tracker.SampleRate < 0 || c.Tracker.SampleRate > 1 {
		return fmt.Errorf("tracker sample rate must be in [0, 1]")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ERRTRACK_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ERRTRACK_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ERRTRACK_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("ERRTRACK_STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("ERRTRACK_STORE_USERNAME"); v != "" {
		cfg.Store.Username = v
	}
	if v := os.Getenv("ERRTRACK_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("ERRTRACK_STORE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.DB = db
		}
	}
	if v := os.Getenv("ERRTRACK_STORE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.TTL = d
		}
	}
	if v := os.Getenv("ERRTRACK_ENVIRONMENT"); v != "" {
		cfg.Tracker.Environment = v
	}
	if v := os.Getenv("ERRTRACK_VERSION"); v != "" {
		cfg.Tracker.Version = v
	}
	if v := os.Getenv("ERRTRACK_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracker.SampleRate = rate
		}
	}
	if v := os.Getenv("ERRTRACK_IGNORE_PATTERNS"); v != "" {
		patterns := strings.Split(v, ",")
		cfg.Tracker.IgnorePatterns = cfg.Tracker.IgnorePatterns[:0]
		for _, p := range patterns {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.Tracker.IgnorePatterns = append(cfg.Tracker.IgnorePatterns, trimmed)
			}
		}
	}
	if v := os.Getenv("ERRTRACK_RESOLUTION_ENABLED"); v != "" {
		cfg.Resolution.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ERRTRACK_RESOLUTION_STRATEGIES"); v != "" {
		cfg.Resolution.Strategies = strings.Split(v, ",")
		for i, s := range cfg.Resolution.Strategies {
			cfg.Resolution.Strategies[i] = strings.TrimSpace(s)
		}
	}
	if v := os.Getenv("ERRTRACK_ALERT_ERROR_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Alerting.ErrorRateThreshold = rate
		}
	}
	if v := os.Getenv("ERRTRACK_ALERT_CRITICAL_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerting.CriticalThreshold = n
		}
	}
	if v := os.Getenv("ERRTRACK_ALERT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.Cooldown = d
		}
	}
	if v := os.Getenv("ERRTRACK_ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alerting.WebhookURL = v
	}
	if v := os.Getenv("ERRTRACK_COLLECTOR_URL"); v != "" {
		cfg.Forward.CollectorURL = v
	}
	if v := os.Getenv("ERRTRACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ERRTRACK_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
