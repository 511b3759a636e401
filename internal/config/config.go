package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL       MySQLConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	Maintenance MaintenanceConfig
	Migrate     bool
	HTTPAddr    string
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration. An empty Addr keeps the active-window
// cache in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// MaintenanceConfig holds request enforcement settings
type MaintenanceConfig struct {
	Backend                string
	IgnoreURLPatterns      []string
	ReadOnlyAllowedMethods []string
	AdminURL               string
	StatusURL              string
	Template               string
	CacheTTLSec            int
	CacheKey               string
}

// lookup resolves a key with priority: ENV > INI > default
type lookup struct {
	file *ini.File
}

func (l lookup) getString(envKey, section, key, def string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if l.file != nil {
		if value := l.file.Section(section).Key(key).String(); value != "" {
			return value
		}
	}
	return def
}

func (l lookup) getInt(envKey, section, key string, def int) int {
	if value := os.Getenv(envKey); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	if l.file != nil && l.file.Section(section).HasKey(key) {
		if value, err := l.file.Section(section).Key(key).Int(); err == nil {
			return value
		}
	}
	return def
}

func (l lookup) getBool(envKey, section, key string, def bool) bool {
	if value := os.Getenv(envKey); value != "" {
		return value == "1" || value == "true"
	}
	if l.file != nil && l.file.Section(section).HasKey(key) {
		if value, err := l.file.Section(section).Key(key).Bool(); err == nil {
			return value
		}
	}
	return def
}

func (l lookup) getList(envKey, section, key string, def []string) []string {
	raw := l.getString(envKey, section, key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DefaultIgnoreURLPatterns keep health probes, static assets and the live status
// channel reachable
var DefaultIgnoreURLPatterns = []string{"^healthz$", "^static/", "^favicon\\.ico$", "^socket\\.io/"}

func build(l lookup) (*Config, error) {
	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: l.getString("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     l.getString("REDIS_ADDR", "redis", "addr", ""),
			Password: l.getString("REDIS_PASS", "redis", "pass", ""),
			DB:       l.getInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        l.getString("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: l.getInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        l.getString("JWT_ISSUER", "jwt", "issuer", "go_maintenance"),
		},
		Log: LogConfig{
			Level:  l.getString("LOG_LEVEL", "log", "level", "info"),
			Format: l.getString("LOG_FORMAT", "log", "format", "text"),
		},
		Maintenance: MaintenanceConfig{
			Backend:                l.getString("MAINTENANCE_BACKEND", "maintenance", "backend", "cached"),
			IgnoreURLPatterns:      l.getList("MAINTENANCE_IGNORE_URL_PATTERNS", "maintenance", "ignore_url_patterns", DefaultIgnoreURLPatterns),
			ReadOnlyAllowedMethods: l.getList("MAINTENANCE_READ_ONLY_ALLOWED_METHODS", "maintenance", "read_only_allowed_methods", nil),
			AdminURL:               l.getString("MAINTENANCE_ADMIN_URL", "maintenance", "admin_url", "/admin/"),
			StatusURL:              l.getString("MAINTENANCE_STATUS_URL", "maintenance", "status_url", "/maintenance/status/"),
			Template:               l.getString("MAINTENANCE_TEMPLATE", "maintenance", "template", ""),
			CacheTTLSec:            l.getInt("MAINTENANCE_CACHE_TTL_SEC", "maintenance", "cache_ttl_sec", 3600),
			CacheKey:               l.getString("MAINTENANCE_CACHE_KEY", "maintenance", "cache_key", "active_maintenance_window"),
		},
		Migrate:  l.getBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: l.getString("HTTP_ADDR", "http", "addr", ":8080"),
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	switch cfg.Maintenance.Backend {
	case "cached", "direct":
	default:
		return nil, fmt.Errorf("MAINTENANCE_BACKEND must be cached or direct, got %q", cfg.Maintenance.Backend)
	}
	if cfg.Maintenance.CacheTTLSec <= 0 {
		return nil, fmt.Errorf("MAINTENANCE_CACHE_TTL_SEC must be positive")
	}

	return cfg, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
	return build(lookup{})
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}
	return build(lookup{file: cfgFile})
}

// RequireJWT validates the settings the admin API cannot run without
func (c *Config) RequireJWT() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}
