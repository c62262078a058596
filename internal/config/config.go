package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PLANTCARE"

type Config struct {
	Log      Log      `mapstructure:"log"`
	Storage  Storage  `mapstructure:"storage"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Device   Device   `mapstructure:"device"`
	Pushover Pushover `mapstructure:"pushover"`
	Schedule Schedule `mapstructure:"schedule"`
	Retry    Retry    `mapstructure:"retry"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Storage struct {
	FilePath string `mapstructure:"file_path"`
}

type Server struct {
	Port      string `mapstructure:"port"`
	APIToken  string `mapstructure:"api_token"`
	PublicURL string `mapstructure:"public_url"`
}

// Database is optional; an empty URL keeps plants in memory.
type Database struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

type Device struct {
	Platform   string `mapstructure:"platform"`
	Simulated  bool   `mapstructure:"simulated"`
	Permission string `mapstructure:"permission"`
}

type Pushover struct {
	Token             string `mapstructure:"token"`
	User              string `mapstructure:"user"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

type Schedule struct {
	SendingHour      int           `mapstructure:"sending_hour"`
	Timezone         string        `mapstructure:"timezone"`
	SkipPastTriggers bool          `mapstructure:"skip_past_triggers"`
	RemindLater      time.Duration `mapstructure:"remind_later"`
}

type Retry struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	// Timeout bounds handling one notification response, retries included.
	Timeout    time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("storage.file_path", "data/plantcare.json")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("device.platform", "android")
	v.SetDefault("device.simulated", false)
	v.SetDefault("device.permission", "granted")
	v.SetDefault("pushover.token", "")
	v.SetDefault("pushover.user", "")
	v.SetDefault("pushover.requests_per_minute", 30)
	v.SetDefault("schedule.sending_hour", 9)
	v.SetDefault("schedule.timezone", "")
	v.SetDefault("schedule.skip_past_triggers", true)
	v.SetDefault("schedule.remind_later", time.Hour)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", time.Minute)
	v.SetDefault("retry.max_delay", time.Hour)
	v.SetDefault("retry.timeout", 15*time.Minute)
}

// LoadConfig reads the YAML file at path, then PLANTCARE_* environment
// variables (PLANTCARE_SERVER_PORT overrides server.port). A missing file
// leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Schedule.SendingHour < 0 || c.Schedule.SendingHour > 23 {
		return fmt.Errorf("schedule.sending_hour must be within 0-23, got %d", c.Schedule.SendingHour)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Device.Platform {
	case "android", "ios":
	default:
		return fmt.Errorf("device.platform must be android or ios, got %q", c.Device.Platform)
	}
	switch c.Device.Permission {
	case "granted", "denied":
	default:
		return fmt.Errorf("device.permission must be granted or denied, got %q", c.Device.Permission)
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1, got %d", c.Retry.MaxRetries)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Location resolves schedule.timezone. Empty means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
