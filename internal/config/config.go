// Package config loads startup configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 2333
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "communekit"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"` // "development" | "production"
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	JWTSecret      string         `yaml:"jwt_secret"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Sync           SyncConfig     `yaml:"sync"`
}

type DatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// SyncConfig sets the page sizes for the comment thread and notification
// feed caches.
type SyncConfig struct {
	CommentPageSize      int `yaml:"comment_page_size"`
	ReplyPageSize        int `yaml:"reply_page_size"`
	NotificationPageSize int `yaml:"notification_page_size"`
}

// Load reads the YAML config at path, applies defaults and environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("COMMUNEKIT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("COMMUNEKIT_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("COMMUNEKIT_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("COMMUNEKIT_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("COMMUNEKIT_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.Sync.CommentPageSize <= 0 {
		cfg.Sync.CommentPageSize = 20
	}
	if cfg.Sync.ReplyPageSize <= 0 {
		cfg.Sync.ReplyPageSize = 50
	}
	if cfg.Sync.NotificationPageSize <= 0 {
		cfg.Sync.NotificationPageSize = 20
	}
}

// IsProd reports whether the app runs in production mode.
func (c *AppConfig) IsProd() bool {
	return c.Env == "production"
}
