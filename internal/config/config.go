// Package config loads settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dukerupert/larder/internal/backup"
)

type Config struct {
	Port   string `env:"LARDER_PORT" envDefault:"8080"`
	DBPath string `env:"LARDER_DB_PATH" envDefault:"larder.db"`

	LogLevel  string `env:"LARDER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LARDER_LOG_FORMAT" envDefault:"text"`

	// Timezone decides when "today" rolls over for expiration math.
	Timezone string `env:"LARDER_TIMEZONE" envDefault:"UTC"`

	JWTSecret   string `env:"LARDER_JWT_SECRET,required,notEmpty"`
	JWTIssuer   string `env:"LARDER_JWT_ISSUER"`
	JWTAudience string `env:"LARDER_JWT_AUDIENCE"`

	CronSecret     string   `env:"LARDER_CRON_SECRET"`
	AllowedOrigins []string `env:"LARDER_ALLOWED_ORIGINS" envSeparator:","`

	VAPIDPublicKey  string `env:"LARDER_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"LARDER_VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `env:"LARDER_VAPID_SUBSCRIBER" envDefault:"mailto:admin@localhost"`

	// FCMCredentialsFile is a Firebase service account key for Android and
	// iOS devices.
	FCMCredentialsFile string `env:"LARDER_FCM_CREDENTIALS_FILE"`

	S3Endpoint       string `env:"LARDER_S3_ENDPOINT"`
	S3Bucket         string `env:"LARDER_S3_BUCKET"`
	S3Region         string `env:"LARDER_S3_REGION" envDefault:"us-east-1"`
	S3AccessKey      string `env:"LARDER_S3_ACCESS_KEY"`
	S3SecretKey      string `env:"LARDER_S3_SECRET_KEY"`
	BackupPassphrase string `env:"LARDER_BACKUP_PASSPHRASE"`
	BackupHour       int    `env:"LARDER_BACKUP_HOUR" envDefault:"3"`
	BackupRetention  int    `env:"LARDER_BACKUP_RETENTION_DAYS" envDefault:"30"`

	OTelEndpoint string `env:"LARDER_OTEL_ENDPOINT"`

	ShutdownTimeout time.Duration `env:"LARDER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("LARDER_JWT_SECRET cannot be empty"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("LARDER_TIMEZONE: %w", err))
	}
	if c.BackupHour < 0 || c.BackupHour > 23 {
		errs = append(errs, fmt.Errorf("LARDER_BACKUP_HOUR must be 0-23, got %d", c.BackupHour))
	}
	if c.BackupRetention < 0 {
		errs = append(errs, fmt.Errorf("LARDER_BACKUP_RETENTION_DAYS cannot be negative"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("LARDER_VAPID_PUBLIC_KEY and LARDER_VAPID_PRIVATE_KEY must be set together"))
	}
	switch c.LogFormat {
	case "text", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("LARDER_LOG_FORMAT must be text, json or pretty, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Location is the zone of Timezone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WebPushEnabled reports whether VAPID keys are configured.
func (c *Config) WebPushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) FCMEnabled() bool {
	return c.FCMCredentialsFile != ""
}

// PushEnabled reports whether any device platform can be reached.
func (c *Config) PushEnabled() bool {
	return c.WebPushEnabled() || c.FCMEnabled()
}

func (c *Config) Backup() backup.Config {
	return backup.Config{
		Endpoint:      c.S3Endpoint,
		Bucket:        c.S3Bucket,
		Region:        c.S3Region,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		Passphrase:    c.BackupPassphrase,
		Hour:          c.BackupHour,
		RetentionDays: c.BackupRetention,
	}
}
