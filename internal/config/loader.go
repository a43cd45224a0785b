package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "WIREDRONE"
	envConfigDefaultPath = "WIREDRONE_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"

	keyClientData = "client_data"
)

// Load builds configuration from defaults, an optional config file and
// WIREDRONE_* env vars, and returns the resolved path. A missing file is
// created from the defaults.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cfg := Default()
	v := newViper(cfg)

	configPath := resolveConfigPath(explicitPath)
	if err := readConfigFile(v, configPath, cfg, logger); err != nil {
		return cfg, configPath, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := clientDataFromEnv(v, &cfg); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

func newViper(cfg Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults(cfg) {
		v.SetDefault(key, value)
	}
	return v
}

// defaults flattens cfg into viper keys. Every key must have a default for
// env vars to reach it during Unmarshal.
func defaults(cfg Config) map[string]any {
	values := map[string]any{
		"url":           cfg.URL,
		"channel":       cfg.Channel,
		"room":          cfg.Room,
		"log_level":     cfg.LogLevel,
		"call_timeout":  cfg.CallTimeout,
		"write_timeout": cfg.WriteTimeout,

		"jwt_secret":   cfg.JWTSecret,
		"jwt_issuer":   cfg.JWTIssuer,
		"jwt_audience": cfg.JWTAudience,
		"token_ttl":    cfg.TokenTTL,
	}

	emulator := map[string]any{
		"addr":                cfg.Emulator.Addr,
		"read_header_timeout": cfg.Emulator.ReadHeaderTimeout,
		"shutdown_timeout":    cfg.Emulator.ShutdownTimeout,
		"require_auth":        cfg.Emulator.RequireAuth,
		"channel":             cfg.Emulator.Channel,
		"publish_rate":        cfg.Emulator.PublishRate,
	}
	for key, value := range emulator {
		values["emulator."+key] = value
	}
	return values
}

func readConfigFile(v *viper.Viper, path string, cfg Config, logger *zerolog.Logger) error {
	v.SetConfigFile(path)
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	// Nothing to read; the defaults are already in place.
	if err := writeDefaultConfig(path, cfg); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to write default config")
		return nil
	}
	logger.Info().Str("path", path).Msg("created default config")
	return nil
}

// clientDataFromEnv applies WIREDRONE_CLIENT_DATA, a JSON object, over the
// client_data map from the file.
func clientDataFromEnv(v *viper.Viper, cfg *Config) error {
	raw, ok := v.Get(keyClientData).(string)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		cfg.ClientData = nil
		return nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("%s_CLIENT_DATA must be a JSON object: %w", envPrefix, err)
	}
	cfg.ClientData = data
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
