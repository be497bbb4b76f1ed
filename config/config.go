package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"proxy-bot/model"
	"proxy-bot/utils"

	"github.com/adhocore/gronx"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "data/proxy.db")
	v.SetDefault("prefixes", []string{"pk;", "pk!"})
	v.SetDefault("status_addr", ":9090")
	v.SetDefault("latch_timeout", "6h")

	v.SetDefault("relay.max_attempts", 3)
	v.SetDefault("relay.base_backoff", "250ms")
	v.SetDefault("relay.max_rate_limit_waits", 3)
	v.SetDefault("relay.delete_attempts", 3)
	v.SetDefault("relay.webhook_rate", 5)
	v.SetDefault("relay.webhook_burst", 5)
	v.SetDefault("relay.max_attachment_bytes", 25<<20)

	v.SetDefault("retention.cron", "0 4 * * *")
	v.SetDefault("retention.max_age", "0")
}

// Load reads configuration from .env, an optional YAML file and the
// environment, in increasing order of precedence. With an empty path
// config.yml in the working directory is used when present.
func Load(path string) (*model.Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("token", "BOT_TOKEN"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &model.Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		utils.DurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the bot cannot start with.
func Validate(cfg *model.Config) error {
	if cfg.BotToken == "" {
		return errors.New("BOT_TOKEN is not set")
	}
	if cfg.DatabasePath == "" {
		return errors.New("database_path is empty")
	}
	if cfg.Relay.MaxAttempts < 1 || cfg.Relay.DeleteAttempts < 1 {
		return errors.New("relay attempts must be at least 1")
	}
	if cfg.Relay.MaxRateLimitWaits < 0 {
		return errors.New("relay.max_rate_limit_waits must not be negative")
	}
	if cfg.Relay.BaseBackoff <= 0 {
		return errors.New("relay.base_backoff must be positive")
	}
	if cfg.LatchTimeout < 0 || cfg.Retention.MaxAge < 0 {
		return errors.New("durations must not be negative")
	}
	if cfg.Retention.MaxAge > 0 && cfg.Retention.MaxAge < time.Hour {
		return fmt.Errorf("retention.max_age %s is shorter than an hour", cfg.Retention.MaxAge)
	}
	if cfg.Retention.MaxAge > 0 && !gronx.IsValid(cfg.Retention.Cron) {
		return fmt.Errorf("invalid retention cron expression: %q", cfg.Retention.Cron)
	}
	return nil
}
