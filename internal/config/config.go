package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Import   ImportConfig   `yaml:"import"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Notify   NotifyConfig   `yaml:"notify"`
	Journal  JournalConfig  `yaml:"journal"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection used for import sessions and locks
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds Google OAuth authentication configuration
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	SessionSecret      string `yaml:"session_secret"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
	BaseURL            string `yaml:"base_url"`
}

// ImportConfig holds the CSV import pipeline settings
type ImportConfig struct {
	PreviewLimit         int `yaml:"preview_limit"`
	SessionTTLHours      int `yaml:"session_ttl_hours"`
	InsertTimeoutSeconds int `yaml:"insert_timeout_seconds"`
	LockTTLMinutes       int `yaml:"lock_ttl_minutes"`
	MaxUploadMB          int `yaml:"max_upload_mb"`
}

// SessionTTL returns how long idle import sessions are kept.
func (c ImportConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// InsertTimeout returns the bound on a single insert; zero means none.
func (c ImportConfig) InsertTimeout() time.Duration {
	return time.Duration(c.InsertTimeoutSeconds) * time.Second
}

// LockTTL returns how long a commit may hold its session lock.
func (c ImportConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c ImportConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// ArchiveConfig holds the S3 archive of raw uploads (optional)
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Compress bool   `yaml:"compress"`
}

// NotifyConfig holds the SES import report e-mail settings (optional)
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	FromEmail string `yaml:"from_email"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// JournalConfig selects where import jobs are journaled: the CRM database
// ("postgres", default) or a DynamoDB table ("dynamodb").
type JournalConfig struct {
	Backend       string `yaml:"backend"`
	Table         string `yaml:"table"`
	Region        string `yaml:"region"`
	RetentionDays int    `yaml:"retention_days"`
}

// Retention returns how long DynamoDB journal entries live; zero keeps them.
func (c JournalConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "crm_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 86400
	}
	if cfg.Import.PreviewLimit == 0 {
		cfg.Import.PreviewLimit = 50
	}
	if cfg.Import.SessionTTLHours == 0 {
		cfg.Import.SessionTTLHours = 24
	}
	if cfg.Import.LockTTLMinutes == 0 {
		cfg.Import.LockTTLMinutes = 30
	}
	if cfg.Import.MaxUploadMB == 0 {
		cfg.Import.MaxUploadMB = 10
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "imports/"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "eu-west-3"
	}
	if cfg.Notify.Region == "" {
		cfg.Notify.Region = "eu-west-3"
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = "postgres"
	}
	if cfg.Journal.Region == "" {
		cfg.Journal.Region = "eu-west-3"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	// Auth overrides
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}

	if v := os.Getenv("IMPORT_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
		cfg.Archive.Enabled = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Archive.Region = v
		cfg.Notify.Region = v
		cfg.Journal.Region = v
	}
	if v := os.Getenv("IMPORT_JOURNAL_TABLE"); v != "" {
		cfg.Journal.Table = v
		cfg.Journal.Backend = "dynamodb"
	}
	if v := os.Getenv("NOTIFY_FROM_EMAIL"); v != "" {
		cfg.Notify.FromEmail = v
		cfg.Notify.Enabled = true
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Notify.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Notify.SecretKey = v
	}
}
