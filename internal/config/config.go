package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format" validate:"oneof=console json"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path" validate:"required"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,min=8"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" validate:"gt=0"`

	Chat        ChatConfig        `mapstructure:"chat" yaml:"chat"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`
}

// ChatConfig tunes the chat hub.
type ChatConfig struct {
	MaxMessageLength    int           `mapstructure:"max_message_length" yaml:"max_message_length" validate:"gt=0"`
	RateLimitWindow     time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window" validate:"gt=0"`
	RateLimitMax        int           `mapstructure:"rate_limit_max" yaml:"rate_limit_max" validate:"gt=0"`
	TypingTimeout       time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout" validate:"gt=0"`
	BannedWords         []string      `mapstructure:"banned_words" yaml:"banned_words"`
	MaskRune            string        `mapstructure:"mask_rune" yaml:"mask_rune" validate:"len=1"`
	ClientBuffer        int           `mapstructure:"client_buffer" yaml:"client_buffer" validate:"gt=0"`
	FrameLimitPerMinute int           `mapstructure:"frame_limit_per_minute" yaml:"frame_limit_per_minute" validate:"gt=0"`
}

// Mask returns the configured mask character.
func (c ChatConfig) Mask() rune {
	for _, r := range c.MaskRune {
		return r
	}
	return '*'
}

// MaintenanceConfig controls periodic housekeeping.
type MaintenanceConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gt=0"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "campuschat.db",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "campus-lms",
		JWTAudience:       "campus-chat",
		TokenTTL:          24 * time.Hour,
		Chat: ChatConfig{
			MaxMessageLength:    2000,
			RateLimitWindow:     10 * time.Second,
			RateLimitMax:        5,
			TypingTimeout:       2 * time.Second,
			BannedWords:         []string{},
			MaskRune:            "*",
			ClientBuffer:        64,
			FrameLimitPerMinute: 600,
		},
		Maintenance: MaintenanceConfig{
			SweepInterval: time.Minute,
		},
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}
