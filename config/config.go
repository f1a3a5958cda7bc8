// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sequence backends.
const (
	SequencePostgres = "postgres"
	SequenceRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	// PostgreSQL – either set DatabaseURL directly, or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// JWT signing secret (required).
	JWTSecret string

	// Server
	Debug      bool
	Port       string
	TLSDomains []string

	// Identifiers: race ids use the calendar day in Location.
	Location        *time.Location
	MarshalBase     int64
	SequenceBackend string

	// Redis – only used when SequenceBackend is "redis".
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Race announcement fan-out.
	NotifyBatchSize int
	NotifyWorkers   int

	// MySQL – used only by kmtadmin import-legacy.
	LegacyMySQLDSN string
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() (*Config, error) {
	v := newViper()

	// Defaults
	v.SetDefault("DB_USER", "kmt")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "kmt")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("PORT", ":9000")
	v.SetDefault("TLS_DOMAINS", "")
	v.SetDefault("DEBUG", false)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("MARSHAL_ID_BASE", 99)
	v.SetDefault("SEQUENCE_BACKEND", SequencePostgres)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NOTIFY_BATCH_SIZE", 200)
	v.SetDefault("NOTIFY_WORKERS", 4)

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("config: TIMEZONE: %w", err)
	}

	cfg := &Config{
		DatabaseURL:     v.GetString("DATABASE_URL"),
		DBUser:          v.GetString("DB_USER"),
		DBPass:          v.GetString("DB_PASS"),
		DBHost:          v.GetString("DB_HOST"),
		DBPort:          v.GetString("DB_PORT"),
		DBName:          v.GetString("DB_NAME"),
		DBSSLMode:       v.GetString("DB_SSLMODE"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		Debug:           v.GetBool("DEBUG"),
		Port:            v.GetString("PORT"),
		TLSDomains:      splitTrimmed(v.GetString("TLS_DOMAINS")),
		Location:        loc,
		MarshalBase:     v.GetInt64("MARSHAL_ID_BASE"),
		SequenceBackend: strings.ToLower(strings.TrimSpace(v.GetString("SEQUENCE_BACKEND"))),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		RedisDB:         v.GetInt("REDIS_DB"),
		NotifyBatchSize: v.GetInt("NOTIFY_BATCH_SIZE"),
		NotifyWorkers:   v.GetInt("NOTIFY_WORKERS"),
		LegacyMySQLDSN:  v.GetString("LEGACY_MYSQL_DSN"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// JWTKey returns the JWT signing key as a byte slice.
func (c *Config) JWTKey() []byte {
	return []byte(c.JWTSecret)
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" && c.DBPass == "" {
		errs = append(errs, errors.New("config: DATABASE_URL or DB_PASS must be set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET must be set"))
	}
	if c.SequenceBackend != SequencePostgres && c.SequenceBackend != SequenceRedis {
		errs = append(errs, fmt.Errorf("config: SEQUENCE_BACKEND must be %q or %q", SequencePostgres, SequenceRedis))
	}
	if c.MarshalBase < 0 {
		errs = append(errs, errors.New("config: MARSHAL_ID_BASE must not be negative"))
	}
	if c.NotifyBatchSize <= 0 || c.NotifyWorkers <= 0 {
		errs = append(errs, errors.New("config: NOTIFY_BATCH_SIZE and NOTIFY_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
