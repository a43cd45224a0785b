package config

import (
	"errors"
	"time"

	"github.com/vovakirdan/wiredrone/internal/auth"
)

// Config holds client, token and emulator settings.
type Config struct {
	URL          string         `mapstructure:"url" yaml:"url"`
	Channel      string         `mapstructure:"channel" yaml:"channel"`
	Room         string         `mapstructure:"room" yaml:"room"`
	LogLevel     string         `mapstructure:"log_level" yaml:"log_level"`
	CallTimeout  time.Duration  `mapstructure:"call_timeout" yaml:"call_timeout"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout" yaml:"write_timeout"`
	ClientData   map[string]any `mapstructure:"client_data" yaml:"client_data,omitempty"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	Emulator EmulatorConfig `mapstructure:"emulator" yaml:"emulator"`
}

// EmulatorConfig holds settings for the local service emulator.
type EmulatorConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RequireAuth       bool          `mapstructure:"require_auth" yaml:"require_auth"`
	Channel           string        `mapstructure:"channel" yaml:"channel"`
	PublishRate       int           `mapstructure:"publish_rate" yaml:"publish_rate"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		URL:          "ws://localhost:8080/ws",
		Channel:      "demo",
		Room:         "observable-lobby",
		LogLevel:     "info",
		CallTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		JWTIssuer:    "wiredrone",
		TokenTTL:     time.Hour,
		Emulator: EmulatorConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.URL != "" {
		c.URL = other.URL
	}
	if other.Channel != "" {
		c.Channel = other.Channel
	}
	if other.Room != "" {
		c.Room = other.Room
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.CallTimeout != 0 {
		c.CallTimeout = other.CallTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.TokenTTL != 0 {
		c.TokenTTL = other.TokenTTL
	}
	if other.Emulator.Addr != "" {
		c.Emulator.Addr = other.Emulator.Addr
	}
	if other.Emulator.Channel != "" {
		c.Emulator.Channel = other.Emulator.Channel
	}
	if other.Emulator.PublishRate != 0 {
		c.Emulator.PublishRate = other.Emulator.PublishRate
	}
	if other.Emulator.RequireAuth {
		c.Emulator.RequireAuth = true
	}
}

// JWT returns the token settings, or nil when no secret is configured.
func (c Config) JWT() *auth.JWTConfig {
	if c.JWTSecret == "" {
		return nil
	}
	return &auth.JWTConfig{
		Secret:   []byte(c.JWTSecret),
		Issuer:   c.JWTIssuer,
		Audience: c.JWTAudience,
		TTL:      c.TokenTTL,
	}
}

// Validate reports settings the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Channel == "" {
		errs = append(errs, errors.New("channel is required"))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("call_timeout must not be negative"))
	}
	if c.Emulator.PublishRate < 0 {
		errs = append(errs, errors.New("emulator.publish_rate must not be negative"))
	}
	if c.Emulator.RequireAuth && c.JWTSecret == "" {
		errs = append(errs, errors.New("emulator.require_auth needs jwt_secret"))
	}
	return errors.Join(errs...)
}
