// Package config loads the storefront client configuration from a YAML file,
// an optional .env file and STOREFRONT_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/storage"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type SessionConfig struct {
	CheckInterval string `yaml:"check_interval"`
	LowWaterMark  string `yaml:"low_water_mark"`
	Grace         string `yaml:"grace"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	Driver string       `yaml:"driver"`
	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

type CallbackConfig struct {
	Addr         string `yaml:"addr"`
	RedirectPath string `yaml:"redirect_path"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"`
	OpenTimeout string `yaml:"open_timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type ConfigFile struct {
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Storage  StorageConfig  `yaml:"storage"`
	Callback CallbackConfig `yaml:"callback"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Log      LogConfig      `yaml:"log"`
}

type Config struct {
	APIBaseURL string
	APITimeout time.Duration

	Session session.Config
	Storage storage.Options

	CallbackAddr         string
	CallbackRedirectPath string
	ShutdownTimeout      time.Duration

	MetricsEnabled bool

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	LogLevel       string
	LogDevelopment bool
}

func defaults() ConfigFile {
	return ConfigFile{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: "10s",
		},
		Session: SessionConfig{
			CheckInterval: "10m",
			LowWaterMark:  "2m",
			Grace:         "5m",
		},
		Storage: StorageConfig{
			Driver: storage.DriverSQLite,
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "storefront:"},
			SQLite: SQLiteConfig{Path: "storefront.db"},
		},
		Callback: CallbackConfig{
			Addr:         "127.0.0.1:8085",
			RedirectPath: "/",
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			OpenTimeout: "30s",
		},
		Log: LogConfig{Level: "info"},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load reads path (a missing file is fine), then .env in the working
// directory, then applies environment overrides.
func Load(path string) (*Config, error) {
	file := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("could not parse config yaml: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env: %w", err)
	}

	if err := applyEnv(&file); err != nil {
		return nil, err
	}
	return build(file)
}

func applyEnv(f *ConfigFile) error {
	f.API.BaseURL = getEnv("STOREFRONT_API_BASE_URL", f.API.BaseURL)
	f.API.Timeout = getEnv("STOREFRONT_API_TIMEOUT", f.API.Timeout)
	f.Session.CheckInterval = getEnv("STOREFRONT_SESSION_CHECK_INTERVAL", f.Session.CheckInterval)
	f.Session.LowWaterMark = getEnv("STOREFRONT_SESSION_LOW_WATER_MARK", f.Session.LowWaterMark)
	f.Session.Grace = getEnv("STOREFRONT_SESSION_GRACE", f.Session.Grace)
	f.Storage.Driver = getEnv("STOREFRONT_STORAGE_DRIVER", f.Storage.Driver)
	f.Storage.Redis.Addr = getEnv("STOREFRONT_REDIS_ADDR", f.Storage.Redis.Addr)
	f.Storage.Redis.Password = getEnv("STOREFRONT_REDIS_PASSWORD", f.Storage.Redis.Password)
	f.Storage.Redis.Prefix = getEnv("STOREFRONT_REDIS_PREFIX", f.Storage.Redis.Prefix)
	f.Storage.SQLite.Path = getEnv("STOREFRONT_SQLITE_PATH", f.Storage.SQLite.Path)
	f.Callback.Addr = getEnv("STOREFRONT_CALLBACK_ADDR", f.Callback.Addr)
	f.Breaker.OpenTimeout = getEnv("STOREFRONT_BREAKER_OPEN_TIMEOUT", f.Breaker.OpenTimeout)
	f.Log.Level = getEnv("STOREFRONT_LOG_LEVEL", f.Log.Level)

	if v := os.Getenv("STOREFRONT_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STOREFRONT_REDIS_DB: %w", err)
		}
		f.Storage.Redis.DB = db
	}
	if v := os.Getenv("STOREFRONT_METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid STOREFRONT_METRICS_ENABLED: %w", err)
		}
		f.Metrics.Enabled = enabled
	}
	return nil
}

func build(f ConfigFile) (*Config, error) {
	apiTimeout, err := time.ParseDuration(f.API.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid api timeout: %w", err)
	}
	checkInterval, err := time.ParseDuration(f.Session.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid session check interval: %w", err)
	}
	lowWater, err := time.ParseDuration(f.Session.LowWaterMark)
	if err != nil {
		return nil, fmt.Errorf("invalid session low water mark: %w", err)
	}
	grace, err := time.ParseDuration(f.Session.Grace)
	if err != nil {
		return nil, fmt.Errorf("invalid session grace: %w", err)
	}
	openTimeout, err := time.ParseDuration(f.Breaker.OpenTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid breaker open timeout: %w", err)
	}

	if checkInterval <= 0 {
		return nil, fmt.Errorf("session check interval must be positive, got %s", checkInterval)
	}
	if lowWater < 0 || grace < 0 {
		return nil, fmt.Errorf("session low water mark and grace must not be negative")
	}
	if f.API.BaseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}

	return &Config{
		APIBaseURL: f.API.BaseURL,
		APITimeout: apiTimeout,
		Session: session.Config{
			CheckInterval: checkInterval,
			LowWaterMark:  lowWater,
			Grace:         grace,
		},
		Storage: storage.Options{
			Driver:        f.Storage.Driver,
			RedisAddr:     f.Storage.Redis.Addr,
			RedisPassword: f.Storage.Redis.Password,
			RedisDB:       f.Storage.Redis.DB,
			RedisPrefix:   f.Storage.Redis.Prefix,
			SQLitePath:    f.Storage.SQLite.Path,
		},
		CallbackAddr:         f.Callback.Addr,
		CallbackRedirectPath: f.Callback.RedirectPath,
		ShutdownTimeout:      10 * time.Second,
		MetricsEnabled:       f.Metrics.Enabled,
		BreakerMaxFailures:   f.Breaker.MaxFailures,
		BreakerOpenTimeout:   openTimeout,
		LogLevel:             f.Log.Level,
		LogDevelopment:       f.Log.Development,
	}, nil
}
