package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredrone/internal/app"
	"github.com/vovakirdan/wiredrone/internal/config"
)

func emulatorCmd(opts *options) *cobra.Command {
	var flags config.Config

	cmd := &cobra.Command{
		Use:   "emulator",
		Short: "Run a local pub/sub service",
		Long: `Run an in-process implementation of the service side of the protocol.

Rooms whose name starts with "observable-" track presence. When jwt_secret is
set, clients may authenticate with tokens from "wiredrone token".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			cfg.UpdateFrom(flags)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("addr", cfg.Emulator.Addr).
				Str("channel", cfg.Emulator.Channel).
				Bool("require_auth", cfg.Emulator.RequireAuth).
				Int("publish_rate", cfg.Emulator.PublishRate).
				Msg("starting emulator")
			if err := app.New(cfg, logger).Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("emulator stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.Emulator.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&flags.Emulator.Channel, "channel", "", "only accept handshakes for this channel")
	cmd.Flags().IntVar(&flags.Emulator.PublishRate, "publish-rate", 0, "publishes per minute allowed on one connection (0 is unlimited)")
	cmd.Flags().BoolVar(&flags.Emulator.RequireAuth, "require-auth", false, "reject subscribe and publish before authenticate")
	cmd.Flags().StringVar(&flags.JWTSecret, "jwt-secret", "", "HMAC secret for authenticate tokens")

	return cmd
}
