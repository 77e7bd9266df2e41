package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/recollsup"
	"github.com/loykin/recollsup/internal/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func createServeCommand(g *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor in the foreground",
		Long: `Start the indexing daemon, keep it running and expose the HTTP API.
SIGINT/SIGTERM stop the daemon and exit; SIGHUP reloads the configuration
and restarts the daemon with it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, f)
		},
	}
	cmd.Flags().BoolVar(&f.NoStart, "no-start", false, "do not start the daemon until requested over the API")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "override [server].listen")
	cmd.Flags().DurationVar(&f.ResourceSample, "resource-interval", 15*time.Second, "daemon CPU/memory sampling interval (0 disables)")
	return cmd
}

func runServe(ctx context.Context, g *GlobalFlags, f *ServeFlags) error {
	cfg, err := recollsup.LoadConfig(g.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := logger.New(cfg.Log, os.Stderr)
	slog.SetDefault(log)

	if cfg.Metrics.Enabled {
		if err := recollsup.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := recollsup.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server stopped", "error", err)
				}
			}()
		}
	}

	sup, err := recollsup.Open(g.ConfigPath, recollsup.Options{Logger: log})
	if err != nil {
		return err
	}
	log.Info("supervisor ready", "config", g.ConfigPath, "host_key", sup.HostKey())

	var srv *http.Server
	listen := cfg.Server.Listen
	if f.Listen != "" {
		listen = f.Listen
	}
	if cfg.Server.Enabled || f.Listen != "" {
		tlsCfg, err := recollsup.SetupTLS(cfg.Server.TLS)
		if err != nil {
			_ = sup.Close(context.Background())
			return fmt.Errorf("setup TLS: %w", err)
		}
		withMetrics := cfg.Metrics.Enabled && cfg.Metrics.Listen == ""
		srv, err = recollsup.NewHTTPServer(listen, cfg.Server.BasePath, sup, withMetrics, tlsCfg)
		if err != nil {
			_ = sup.Close(context.Background())
			return fmt.Errorf("start API server: %w", err)
		}
		log.Info("API listening", "addr", srv.Addr, "base_path", cfg.Server.BasePath, "scheme", cfg.Server.Scheme())
	}

	if f.ResourceSample > 0 {
		sup.CollectResources(ctx, f.ResourceSample)
	}

	if !f.NoStart {
		if err := sup.Start(ctx); err != nil {
			// the retry driver keeps trying in the background
			log.Error("initial start failed", "error", err)
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if err := sup.Reload(); err != nil {
				log.Error("reload failed, keeping previous configuration", "error", err)
				continue
			}
			log.Info("configuration reloaded")
			if err := sup.Restart(ctx); err != nil {
				log.Error("restart after reload failed", "error", err)
			}
		case <-ctx.Done():
			log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if srv != nil {
				_ = srv.Shutdown(sctx)
			}
			return sup.Close(sctx)
		}
	}
}
