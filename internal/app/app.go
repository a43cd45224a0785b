package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/config"
	"github.com/vovakirdan/wiredrone/internal/emulator"
	"github.com/vovakirdan/wiredrone/internal/metrics"
)

// App wires the emulator hub to its HTTP server.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *emulator.Hub
	log             *zerolog.Logger
}

// New constructs the emulator with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "emulator")

	jwtCfg := cfg.JWT()
	if jwtCfg == nil {
		logger.Info().Msg("no jwt_secret configured, authenticate is disabled")
	}

	hub := emulator.NewHub(emulator.Config{
		Channel:     cfg.Emulator.Channel,
		RequireAuth: cfg.Emulator.RequireAuth,
		PublishRate: cfg.Emulator.PublishRate,
		JWT:         jwtCfg,
	}, logger, m)

	server := emulator.NewServer(hub, emulator.ServerConfig{
		Addr:              cfg.Emulator.Addr,
		ReadHeaderTimeout: cfg.Emulator.ReadHeaderTimeout,
	}, reg, m, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.Emulator.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}
}

// Handler exposes the HTTP handler, for serving the emulator in tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Hub returns the emulator hub.
func (a *App) Hub() *emulator.Hub {
	return a.hub
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("emulator listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down emulator")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
