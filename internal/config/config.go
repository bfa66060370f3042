package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Assembly AssemblyConfig `yaml:"assembly"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	Mode           string   `yaml:"mode"` // debug, release, test
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"` // log every SQL statement
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level         string `yaml:"level"`  // debug, info, warn, error
	Format        string `yaml:"format"` // json, console; empty picks console at debug level
	RetentionDays int    `yaml:"retention_days"`
}

// AssemblyConfig tunes the live voting engine
type AssemblyConfig struct {
	OTPWindowSeconds int    `yaml:"otp_window_seconds"`
	OTPRotateEvery   string `yaml:"otp_rotate_every"` // cron spec, empty disables rotation
	CheckInRate      int    `yaml:"checkin_rate"`     // requests per minute per IP
	VoteRate         int    `yaml:"vote_rate"`        // requests per minute per IP
}

// StorageConfig for proxy documents
type StorageConfig struct {
	Driver          string   `yaml:"driver"` // local, gcs
	Dir             string   `yaml:"dir"`
	BaseURL         string   `yaml:"base_url"`
	Bucket          string   `yaml:"bucket"`
	CredentialsFile string   `yaml:"credentials_file"`
	MaxBytes        int64    `yaml:"max_bytes"`
	AllowedTypes    []string `yaml:"allowed_types"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		// Decode on top of defaults so a partial file keeps the rest
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			Mode:           "debug",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "condovote.db",
		},
		JWT: JWTConfig{
			Secret:     "condovote-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 365,
		},
		Assembly: AssemblyConfig{
			OTPWindowSeconds: 240,
			CheckInRate:      30,
			VoteRate:         60,
		},
		Storage: StorageConfig{
			Driver:       "local",
			Dir:          "uploads",
			BaseURL:      "/uploads",
			MaxBytes:     5 << 20,
			AllowedTypes: []string{"application/pdf", "image/jpeg", "image/png"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if window := os.Getenv("OTP_WINDOW_SECONDS"); window != "" {
		if secs, err := strconv.Atoi(window); err == nil && secs > 0 {
			c.Assembly.OTPWindowSeconds = secs
		}
	}
	if dir := os.Getenv("STORAGE_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
