package model

import "time"

// RelayConfig tunes webhook delivery.
type RelayConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BaseBackoff        time.Duration `mapstructure:"base_backoff"`
	MaxRateLimitWaits  int           `mapstructure:"max_rate_limit_waits"`
	DeleteAttempts     int           `mapstructure:"delete_attempts"`
	WebhookRate        float64       `mapstructure:"webhook_rate"`
	WebhookBurst       int           `mapstructure:"webhook_burst"`
	MaxAttachmentBytes int64         `mapstructure:"max_attachment_bytes"`
}

// RetentionConfig controls purging of old relayed-message records.
type RetentionConfig struct {
	Cron   string        `mapstructure:"cron"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Config stores the application's configuration.
type Config struct {
	BotToken     string          `mapstructure:"token"`
	DatabasePath string          `mapstructure:"database_path"`
	Prefixes     []string        `mapstructure:"prefixes"`
	StatusAddr   string          `mapstructure:"status_addr"`
	LatchTimeout time.Duration   `mapstructure:"latch_timeout"`
	Relay        RelayConfig     `mapstructure:"relay"`
	Retention    RetentionConfig `mapstructure:"retention"`
	Verbosity    int             `mapstructure:"-"`
}
