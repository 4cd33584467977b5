// Package config loads bustime settings from a config file and
// BUSTIME_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName = "bustime"
	envPrefix  = "BUSTIME"
)

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory sqlite postgres"`

	// SQLite database directory. Empty keeps the database in memory.
	Directory string `mapstructure:"directory"`

	// Postgres connection string.
	DSN string `mapstructure:"dsn" validate:"required_if=Backend postgres"`
}

type ProviderConfig struct {
	Kind string `mapstructure:"kind" validate:"oneof=mbta gtfs"`

	// MBTA v3 API
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`

	// GTFS feeds
	StaticURL       string        `mapstructure:"static_url" validate:"required_if=Kind gtfs"`
	RealtimeURL     string        `mapstructure:"realtime_url" validate:"omitempty,url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
}

type UpstreamConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" validate:"gt=0"`
}

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Provider ProviderConfig `mapstructure:"provider"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Timezone string         `mapstructure:"timezone" validate:"required"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.directory", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("provider.kind", "mbta")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "https://api-v3.mbta.com")
	v.SetDefault("provider.static_url", "")
	v.SetDefault("provider.realtime_url", "")
	v.SetDefault("provider.refresh_interval", 12*time.Hour)
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.requests_per_second", 15.0)
	v.SetDefault("upstream.burst", 10)
	v.SetDefault("timezone", "America/New_York")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Loads configuration. With an empty path, bustime.toml (or .yaml)
// is looked for in the working directory and ~/.config/bustime, and
// defaults apply if there is none.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// The configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("validating config: timezone: %w", err)
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Durations are written as strings, e.g. "10s".
func stringifyDurations(m map[string]any) {
	for k, val := range m {
		switch val := val.(type) {
		case time.Duration:
			m[k] = val.String()
		case map[string]any:
			stringifyDurations(val)
		}
	}
}

// Writes the default configuration as TOML.
func WriteDefault(w io.Writer) error {
	v := viper.New()
	setDefaults(v)

	settings := v.AllSettings()
	stringifyDurations(settings)

	enc := toml.NewEncoder(w)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
