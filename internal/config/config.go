package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	StorePath   string `mapstructure:"STORE_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	EnforceUniqueClinicalRecord bool   `mapstructure:"ENFORCE_UNIQUE_CLINICAL_RECORD"`
	PHIEncryptionKey            string `mapstructure:"PHI_ENCRYPTION_KEY"`
	Timezone                    string `mapstructure:"TIMEZONE"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`

	NotFoundRedirectDelay    time.Duration `mapstructure:"NOT_FOUND_REDIRECT_DELAY"`
	UnconfirmedRedirectDelay time.Duration `mapstructure:"UNCONFIRMED_REDIRECT_DELAY"`

	BackupSchedule string `mapstructure:"BACKUP_SCHEDULE"`
	BackupDir      string `mapstructure:"BACKUP_DIR"`
	BackupRetain   int    `mapstructure:"BACKUP_RETAIN"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_DRIVER", "STORE_PATH", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"ENFORCE_UNIQUE_CLINICAL_RECORD", "PHI_ENCRYPTION_KEY", "TIMEZONE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"NOT_FOUND_REDIRECT_DELAY", "UNCONFIRMED_REDIRECT_DELAY",
	"BACKUP_SCHEDULE", "BACKUP_DIR", "BACKUP_RETAIN",
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverBolt)
	v.SetDefault("STORE_PATH", "./data/patients.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("ENFORCE_UNIQUE_CLINICAL_RECORD", false)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "256K")
	v.SetDefault("NOT_FOUND_REDIRECT_DELAY", "1500ms")
	v.SetDefault("UNCONFIRMED_REDIRECT_DELAY", "1000ms")
	v.SetDefault("BACKUP_DIR", "./backups")
	v.SetDefault("BACKUP_RETAIN", 7)

	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE. Calendar arithmetic for ages and days of life
// happens in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverBolt:
		if c.StorePath == "" {
			return fmt.Errorf("STORE_PATH is required when STORE_DRIVER is %q", DriverBolt)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverBolt, DriverPostgres, c.StoreDriver)
	}

	if c.IsProduction() && c.PHIEncryptionKey == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}
	if c.PHIEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.PHIEncryptionKey)
		if err != nil {
			return fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.NotFoundRedirectDelay < 0 || c.UnconfirmedRedirectDelay < 0 {
		return fmt.Errorf("redirect delays must not be negative")
	}

	if c.BackupSchedule != "" {
		if c.StoreDriver != DriverBolt {
			return fmt.Errorf("BACKUP_SCHEDULE is only supported with STORE_DRIVER %q", DriverBolt)
		}
		if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
			return fmt.Errorf("BACKUP_SCHEDULE %q: %w", c.BackupSchedule, err)
		}
	}

	return nil
}
