package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredrone/internal/config"
	applog "github.com/vovakirdan/wiredrone/internal/log"
)

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wiredrone: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "wiredrone",
		Short: "Pub/sub client and local service emulator",
		Long: `wiredrone talks to a channel/room publish-subscribe service over a
single WebSocket connection.

  chat      join a room and exchange messages from the terminal
  emulator  run a local service for development and tests
  token     mint a JWT for the authenticate command`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		chatCmd(opts),
		emulatorCmd(opts),
		tokenCmd(opts),
	)
	return rootCmd
}

// load resolves configuration and builds the logger. Logs go to stderr so
// they never mix with command output.
func (o *options) load() (config.Config, *zerolog.Logger, error) {
	boot := applog.New("warn", os.Stderr)
	cfg, path, err := config.Load(boot, o.configPath)
	if err != nil {
		return cfg, boot, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger := applog.New(cfg.LogLevel, os.Stderr)
	logger.Debug().Str("path", path).Msg("configuration loaded")
	return cfg, logger, nil
}
