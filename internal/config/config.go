// Package config loads crudq runtime configuration.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// config file, and CRUDQ_-prefixed environment variables (CRUDQ_STORE_PATH
// sets store.path).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CRUDQ"

// Config is the runtime configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
	Schema SchemaConfig `mapstructure:"schema"`
	Routes RoutesConfig `mapstructure:"routes"`
}

// StoreConfig selects and addresses the document store.
type StoreConfig struct {
	Driver   string   `mapstructure:"driver" validate:"oneof=sqlite mongo"`
	Path     string   `mapstructure:"path" validate:"required_if=Driver sqlite"`
	URI      string   `mapstructure:"uri" validate:"required_if=Driver mongo"`
	Database string   `mapstructure:"database" validate:"required_if=Driver mongo"`
	IDFields []string `mapstructure:"idFields"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// SchemaConfig locates the CUE entity schema.
type SchemaConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// RoutesConfig locates the route options file.
type RoutesConfig struct {
	File string `mapstructure:"file" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration. An empty path looks for crudq.yaml in the
// working directory; a missing default file is not an error, a missing
// explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("crudq")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "crudq.db")
	v.SetDefault("store.uri", "")
	v.SetDefault("store.database", "")
	v.SetDefault("store.idFields", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("schema.dir", "schema")
	v.SetDefault("routes.file", "routes.yaml")
}

// Validate checks field values and driver-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger builds the process logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
