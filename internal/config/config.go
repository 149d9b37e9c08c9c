package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "ranchportal.config"

const (
	envPrefix = "ranchportal"

	DefaultBindAddr           = ":8080"
	DefaultDatabasePath       = "ranchportal.db"
	DefaultSessionTTL         = 24 * time.Hour
	DefaultTimezone           = "America/New_York"
	DefaultAttendanceInterval = time.Hour
	DefaultReminderInterval   = 24 * time.Hour
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	BindAddr      string        `yaml:"bindAddr"      split_words:"true"`
	DatabasePath  string        `yaml:"databasePath"  split_words:"true"`
	PublicURL     string        `yaml:"publicUrl"     envconfig:"PUBLIC_URL"`
	SessionSecret string        `yaml:"sessionSecret" split_words:"true"`
	SessionTTL    time.Duration `yaml:"sessionTtl"    envconfig:"SESSION_TTL"`
	Timezone      string        `yaml:"timezone"`
	// How often cached attendance counters are rebuilt; 0 disables the loop.
	AttendanceInterval time.Duration `yaml:"attendanceInterval" split_words:"true"`
	MetricsEnabled     bool          `yaml:"metricsEnabled"     split_words:"true"`
	// OTLP HTTP endpoint URL, or "stdout"; empty disables tracing.
	OtelEndpoint          string `yaml:"otelEndpoint"          split_words:"true"`
	TelegramToken         string `yaml:"telegramToken"         split_words:"true"`
	TelegramWebhookSecret string `yaml:"telegramWebhookSecret" split_words:"true"`
	// How often linked members are reminded of unsigned documents; 0 disables.
	ReminderInterval time.Duration `yaml:"reminderInterval" split_words:"true"`
	Debug                 bool   `yaml:"debug"`
}

func Defaults() *Config {
	return &Config{
		BindAddr:           DefaultBindAddr,
		DatabasePath:       DefaultDatabasePath,
		SessionTTL:         DefaultSessionTTL,
		Timezone:           DefaultTimezone,
		AttendanceInterval: DefaultAttendanceInterval,
		ReminderInterval:   DefaultReminderInterval,
		MetricsEnabled:     true,
	}
}

// LoadConfig reads the YAML file (explicit path, then ~/.ranchportal/config.yaml,
// then /etc/ranchportal/config.yaml) and applies RANCHPORTAL_* env overrides.
func LoadConfig(configFile string) (*Config, error) {
	cfg := Defaults()
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".ranchportal", "config.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/ranchportal/config.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("databasePath must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid sessionTtl: %s", c.SessionTTL)
	}
	if c.AttendanceInterval < 0 {
		return fmt.Errorf("invalid attendanceInterval: %s", c.AttendanceInterval)
	}
	if c.ReminderInterval < 0 {
		return fmt.Errorf("invalid reminderInterval: %s", c.ReminderInterval)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the display timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
