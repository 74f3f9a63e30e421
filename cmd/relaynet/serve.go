package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/relaynet"
	"github.com/luciancaetano/relaynet/internal/config"
	"github.com/luciancaetano/relaynet/internal/heartbeat"
	"github.com/luciancaetano/relaynet/internal/logging"
	"github.com/luciancaetano/relaynet/ws"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		Long: `Start the relay server.

Settings are read from --config, or from relaynet.yaml in the working
directory when present, and can be overridden with RELAYNET_ environment
variables, e.g. RELAYNET_MAJOR=1 or RELAYNET_RATE_LIMIT_BURST=50.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.Production())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := ws.New(ws.FromConfig(cfg, logger, reg))
	// Shutdown is driven by the group below so that it is awaited.
	if err := server.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("version", fmt.Sprintf("%d.%d", cfg.Major, cfg.Minor)).
		Msg("relay started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stop relay: %w", err)
		}
		return nil
	})

	if cfg.Heartbeat.Enabled {
		reporter := heartbeat.New(heartbeatConfig(cfg.Heartbeat), server, logger)
		g.Go(func() error {
			return reporter.Run(gctx)
		})
	}

	return g.Wait()
}

func heartbeatConfig(cfg config.HeartbeatConfig) heartbeat.Config {
	return heartbeat.Config{
		Name:        cfg.Name,
		Domain:      cfg.Domain,
		Description: cfg.Description,
		Port:        cfg.Port,
		APIKey:      cfg.APIKey,
		Interval:    cfg.Interval,
		ListURL:     cfg.ListURL,
		APIURL:      cfg.APIURL,
		IPURL:       cfg.IPURL,
	}
}

var _ heartbeat.PlayerSource = (relaynet.Server)(nil)
