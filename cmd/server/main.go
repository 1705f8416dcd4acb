package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/agentcall/internal/adapter/driven/metrics/prometheus"
	handler "github.com/Wyydra/agentcall/internal/adapter/driving/http"
	"github.com/Wyydra/agentcall/internal/config"
	"github.com/Wyydra/agentcall/internal/core/service"
	"github.com/Wyydra/agentcall/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var file string
	cmd := &cobra.Command{
		Use:          "server",
		SilenceUsage: true,
		Short:        "Relay for agent call signalling",
		Long:         `server runs the websocket relay that fans signalling and form events out between a client and an agent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&file, "config", "c", "", "config file (yaml, json or toml)")
	fs.StringP("listen", "l", config.DefaultListenAddr, "listen address")
	fs.StringSlice("allowed-origins", nil, "origins allowed to open the websocket (empty allows all)")
	fs.String("static-dir", "", "directory served at /")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("log-format", "console", "log format (console, json)")
	bindFlags(v, cmd, map[string]string{
		"server.listen":          "listen",
		"server.allowed_origins": "allowed-origins",
		"server.static_dir":      "static-dir",
		"log.level":              "log-level",
		"log.format":             "log-format",
	})
	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func run(ctx context.Context, cfg config.Config) error {
	l, err := logging.Setup(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRelayMetrics()
	relay := service.NewRelay(metrics)
	h := handler.NewHandler(relay, handler.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		PingInterval:    cfg.Server.PingInterval,
		IdleTimeout:     cfg.Server.IdleTimeout,
		SendQueue:       cfg.Server.SendQueue,
		StaticDir:       cfg.Server.StaticDir,
		Metrics:         metrics.Handler(),
	})

	go relay.Run()

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: h.NewRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info().Str("addr", cfg.Server.Listen).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		relay.Stop()
		return err
	}
	l.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	relay.Stop()
	l.Info().Msg("Server exited")
	return nil
}
