// Package config loads runtime settings for the payments engine.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Config holds the process-level settings. The input path is a
// positional argument, not configuration; everything here has a
// working default.
type Config struct {
	// LogLevel selects the zap level for stderr diagnostics
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	// Output is the report destination; "-" means stdout
	Output string `mapstructure:"output" validate:"required"`
	// Format selects the report renderer
	Format string `mapstructure:"format" validate:"oneof=csv table"`
	// MetricsAddr enables the prometheus listener when non-empty
	MetricsAddr string `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Load layers defaults, an optional config file and PAYENGINE_*
// environment variables into a validated Config. An empty path skips
// the file lookup entirely rather than searching default locations,
// so batch invocations stay hermetic.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("output", "-")
	v.SetDefault("format", "csv")
	v.SetDefault("metrics_addr", "")

	v.SetEnvPrefix("PAYENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
