// Package config provides configuration management for the Greeks dashboard.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/greeks"
	"greeks-dashboard/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Backend     BackendConfig   `mapstructure:"backend"`
	Dashboard   DashboardConfig `mapstructure:"dashboard"`
	Session     SessionConfig   `mapstructure:"session"`
	Server      ServerConfig    `mapstructure:"server"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Store       StoreConfig     `mapstructure:"store"`
	Export      ExportConfig    `mapstructure:"export"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	UI          UIConfig        `mapstructure:"ui"`
	Notify      NotifyConfig    `mapstructure:"notify"`
	Credentials Credentials     `mapstructure:"-"` // Loaded separately

	dir string
}

// BackendConfig describes the analytics backend that publishes raw Greeks.
type BackendConfig struct {
	URL              string        `mapstructure:"url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RateLimit        float64       `mapstructure:"rate_limit"` // requests per second
	Burst            int           `mapstructure:"burst"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// DashboardConfig holds the default series selection.
type DashboardConfig struct {
	Index        string        `mapstructure:"index"`
	Expiry       string        `mapstructure:"expiry"`
	Source       string        `mapstructure:"source"` // live, historical
	Baseline     bool          `mapstructure:"baseline"`
	Truncate     string        `mapstructure:"truncate"` // full, now
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SessionConfig holds login session settings.
type SessionConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	WarnBefore  time.Duration `mapstructure:"warn_before"`
	Persist     bool          `mapstructure:"persist"`
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig selects the response cache for the HTTP service.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	LiveTTL       time.Duration `mapstructure:"live_ttl"`
	ClosedTTL     time.Duration `mapstructure:"closed_ttl"`
}

// StoreConfig controls the local SQLite sample cache.
type StoreConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"` // relative paths resolve under the config dir
	RetentionDays int    `mapstructure:"retention_days"`
}

// ExportConfig holds CSV export defaults.
type ExportConfig struct {
	Order        string `mapstructure:"order"` // asc, desc
	Precision    int    `mapstructure:"precision"`
	IncludeEmpty bool   `mapstructure:"include_empty"`
	Dir          string `mapstructure:"dir"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
	Audit      bool   `mapstructure:"audit"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	TimeFormat   string `mapstructure:"time_format"`
}

// NotifyConfig controls alerts raised while watching a live series.
type NotifyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Level      string `mapstructure:"level"` // all, trend_only, errors_only
	Bell       bool   `mapstructure:"bell"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// Credentials holds backend login credentials.
type Credentials struct {
	Backend BackendCredentials `mapstructure:"backend"`
}

// BackendCredentials are used by `greeks login` when flags are omitted.
type BackendCredentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/greeks-dashboard"
	}
	return filepath.Join(home, ".config", "greeks-dashboard")
}

// LoadEnvFile loads KEY=VALUE pairs from .env files into the process
// environment. Missing files are ignored and existing variables win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{dir: configDir}

	// Load main config
	if err := loadConfigFile(configDir, "config", configTemplate, setDefaults, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadConfigFile(configDir, "credentials", credentialsTemplate, nil, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{dir: DefaultConfigDir()}
	_ = v.Unmarshal(cfg)
	return cfg
}

func loadConfigFile(configDir, name, template string, defaults func(*viper.Viper), target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if defaults != nil {
		defaults(v)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		// Config file not found, create template and carry on with defaults
		if err := writeTemplate(configDir, name+".toml", template); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.rate_limit", 5.0)
	v.SetDefault("backend.burst", 5)
	v.SetDefault("backend.breaker_threshold", 5)
	v.SetDefault("backend.breaker_cooldown", "30s")

	v.SetDefault("dashboard.index", string(models.IndexNifty))
	v.SetDefault("dashboard.expiry", "")
	v.SetDefault("dashboard.source", string(models.SourceLive))
	v.SetDefault("dashboard.baseline", false)
	v.SetDefault("dashboard.truncate", "full")
	v.SetDefault("dashboard.poll_interval", "1m")

	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.warn_before", "2m")
	v.SetDefault("session.persist", true)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.live_ttl", "30s")
	v.SetDefault("cache.closed_ttl", "24h")

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "samples.db")
	v.SetDefault("store.retention_days", 30)

	v.SetDefault("export.order", "desc")
	v.SetDefault("export.precision", 2)
	v.SetDefault("export.include_empty", false)
	v.SetDefault("export.dir", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.audit", true)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.time_format", "15:04")

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.level", "all")
	v.SetDefault("notify.bell", true)
	v.SetDefault("notify.webhook_url", "")
}

func applyEnvOverrides(cfg *Config) {
	// Backend
	if v := os.Getenv("GREEKS_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("GREEKS_USERNAME"); v != "" {
		cfg.Credentials.Backend.Username = v
	}
	if v := os.Getenv("GREEKS_PASSWORD"); v != "" {
		cfg.Credentials.Backend.Password = v
	}

	// Dashboard selection
	if v := os.Getenv("GREEKS_INDEX"); v != "" {
		cfg.Dashboard.Index = strings.ToUpper(v)
	}
	if v := os.Getenv("GREEKS_EXPIRY"); v != "" {
		cfg.Dashboard.Expiry = v
	}

	// Server and cache
	if v := os.Getenv("GREEKS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GREEKS_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Backend = "redis"
	}
	if v := os.Getenv("GREEKS_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("GREEKS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Notify
	if v := os.Getenv("GREEKS_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Backend
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfigError("backend.url", c.Backend.URL, "must be an http(s) URL", nil)
	}
	if c.Backend.Timeout <= 0 {
		return errors.NewConfigError("backend.timeout", c.Backend.Timeout, "must be positive", nil)
	}
	if c.Backend.MaxRetries < 0 {
		return errors.NewConfigError("backend.max_retries", c.Backend.MaxRetries, "must be non-negative", nil)
	}
	if c.Backend.RateLimit < 0 {
		return errors.NewConfigError("backend.rate_limit", c.Backend.RateLimit, "must be non-negative", nil)
	}

	// Dashboard
	if !isSupportedIndex(c.Dashboard.Index) {
		return errors.NewConfigError("dashboard.index", c.Dashboard.Index, "unsupported index", nil)
	}
	if c.Dashboard.Source != string(models.SourceLive) && c.Dashboard.Source != string(models.SourceHistorical) {
		return errors.NewConfigError("dashboard.source", c.Dashboard.Source, "must be 'live' or 'historical'", nil)
	}
	if _, err := greeks.ParseTruncation(c.Dashboard.Truncate); err != nil {
		return errors.NewConfigError("dashboard.truncate", c.Dashboard.Truncate, "must be 'full' or 'now'", nil)
	}
	if c.Dashboard.PollInterval < 5*time.Second {
		return errors.NewConfigError("dashboard.poll_interval", c.Dashboard.PollInterval, "must be at least 5s", nil)
	}

	// Session
	if c.Session.IdleTimeout <= 0 {
		return errors.NewConfigError("session.idle_timeout", c.Session.IdleTimeout, "must be positive", nil)
	}
	if c.Session.WarnBefore < 0 || c.Session.WarnBefore >= c.Session.IdleTimeout {
		return errors.NewConfigError("session.warn_before", c.Session.WarnBefore, "must be shorter than idle_timeout", nil)
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.NewConfigError("server.port", c.Server.Port, "must be between 1 and 65535", nil)
	}

	// Cache
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.NewConfigError("cache.redis_addr", c.Cache.RedisAddr, "required for redis cache", nil)
		}
	default:
		return errors.NewConfigError("cache.backend", c.Cache.Backend, "must be 'memory' or 'redis'", nil)
	}
	if c.Cache.LiveTTL <= 0 || c.Cache.ClosedTTL <= 0 {
		return errors.NewConfigError("cache.live_ttl", c.Cache.LiveTTL, "cache TTLs must be positive", nil)
	}

	// Export
	if c.Export.Order != "asc" && c.Export.Order != "desc" {
		return errors.NewConfigError("export.order", c.Export.Order, "must be 'asc' or 'desc'", nil)
	}
	if c.Export.Precision < 0 || c.Export.Precision > 8 {
		return errors.NewConfigError("export.precision", c.Export.Precision, "must be between 0 and 8", nil)
	}

	switch c.Notify.Level {
	case "", "all", "trend_only", "errors_only":
	default:
		return errors.NewConfigError("notify.level", c.Notify.Level, "must be all, trend_only or errors_only", nil)
	}
	if c.Notify.WebhookURL != "" {
		if u, err := url.Parse(c.Notify.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.NewConfigError("notify.webhook_url", c.Notify.WebhookURL, "must be an http(s) URL", nil)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.NewConfigError("logging.level", c.Logging.Level, "unknown level", nil)
	}

	return nil
}

func isSupportedIndex(s string) bool {
	for _, idx := range models.SupportedIndices {
		if string(idx) == s {
			return true
		}
	}
	return false
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	if c.dir == "" {
		return DefaultConfigDir()
	}
	return c.dir
}

// FilePath returns the path of config.toml.
func (c *Config) FilePath() string {
	return filepath.Join(c.Dir(), "config.toml")
}

// StorePath resolves the SQLite cache path.
func (c *Config) StorePath() string {
	return c.resolve(c.Store.Path)
}

// LogFilePath resolves the log file path. Empty means logs/greeks.log under the config dir.
func (c *Config) LogFilePath() string {
	if c.Logging.File == "" {
		return filepath.Join(c.Dir(), "logs", "greeks.log")
	}
	return c.resolve(c.Logging.File)
}

// Truncation returns the configured grid truncation.
func (c *Config) Truncation() greeks.Truncation {
	t, _ := greeks.ParseTruncation(c.Dashboard.Truncate)
	return t
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(c.Dir(), p)
}
