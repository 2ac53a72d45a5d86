package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// Logging Configuration
	Logging LoggingConfig

	// HTTP Configuration
	HTTP HTTPConfig

	// Session lifetimes
	Sessions SessionConfig

	// Object storage and upload limits
	Storage StorageConfig

	// Federated sign-in
	Google GoogleConfig

	// Outgoing mail
	SMTP SMTPConfig

	// Background jobs
	Jobs JobsConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string // sqlite file path, or postgres:// DSN
}

// IsPostgres reports whether URL points at PostgreSQL.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port)
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// HTTPConfig holds the listener and public address.
type HTTPConfig struct {
	Addr        string
	PublicURL   string   // externally reachable base URL, used in links and OAuth callbacks
	CORSOrigins []string // allowed browser origins
}

// SessionConfig controls token lifetimes per persistence mode.
type SessionConfig struct {
	SessionTTL time.Duration
	DurableTTL time.Duration
}

// StorageConfig describes the S3-compatible bucket.
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicEndpoint  string // base URL objects are served from
	MaxUploadBytes  int64
}

// Enabled reports whether a bucket is configured.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

// GoogleConfig holds OAuth client credentials.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether federated sign-in is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// SMTPConfig holds mail delivery settings. An empty Host logs messages
// instead of sending them.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	TempUploadTTL   time.Duration
	CleanupSchedule string // cron expression
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	sessionTTL, err := durationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	durableTTL, err := durationEnv("DURABLE_SESSION_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	tempTTL, err := durationEnv("TEMP_UPLOAD_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	maxUpload, err := intEnv("UPLOAD_MAX_BYTES", 5*1024*1024)
	if err != nil {
		return nil, err
	}
	smtpPort, err := intEnv("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	addr := stringEnv("HTTP_ADDR", ":8080")
	publicURL := stringEnv("PUBLIC_URL", "http://localhost"+addr)

	return &Config{
		Database: DatabaseConfig{
			URL: stringEnv("DATABASE_URL", "soulnet.sqlite"),
		},
		Redis: RedisConfig{
			Address: stringEnv("REDIS_ADDRESS", "localhost:6379"),
		},
		Logging: LoggingConfig{
			Level:  stringEnv("LOG_LEVEL", "info"),
			Format: stringEnv("LOG_FORMAT", "json"),
		},
		HTTP: HTTPConfig{
			Addr:        addr,
			PublicURL:   strings.TrimRight(publicURL, "/"),
			CORSOrigins: listEnv("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Sessions: SessionConfig{
			SessionTTL: sessionTTL,
			DurableTTL: durableTTL,
		},
		Storage: StorageConfig{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Region:          stringEnv("S3_REGION", "auto"),
			Bucket:          os.Getenv("S3_BUCKET"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			PublicEndpoint:  strings.TrimRight(os.Getenv("S3_PUBLIC_ENDPOINT"), "/"),
			MaxUploadBytes:  int64(maxUpload),
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     stringEnv("SMTP_FROM", "SoulNet <no-reply@soulnet.local>"),
		},
		Jobs: JobsConfig{
			TempUploadTTL:   tempTTL,
			CleanupSchedule: stringEnv("CLEANUP_SCHEDULE", "0 3 * * *"),
		},
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func listEnv(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
