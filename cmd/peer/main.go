package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/agentcall/internal/adapter/driven/call/memory"
	"github.com/Wyydra/agentcall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/agentcall/internal/adapter/driven/media/pion"
	repo "github.com/Wyydra/agentcall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/agentcall/internal/adapter/driven/persistence/redis"
	"github.com/Wyydra/agentcall/internal/config"
	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/Wyydra/agentcall/internal/core/port"
	"github.com/Wyydra/agentcall/internal/core/service"
	"github.com/Wyydra/agentcall/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Peer exited with error")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var file string
	cmd := &cobra.Command{
		Use:          "peer",
		SilenceUsage: true,
		Short:        "Headless call peer",
		Long:         `peer joins the relay as the client or the agent and drives a call from a line-oriented console.`,
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
	fs.StringP("relay-url", "u", config.DefaultRelayURL, "relay websocket url")
	fs.StringP("role", "r", "client", "client (caller) or agent (answerer)")
	fs.String("label", "", "role label written into call summaries")
	fs.String("engine", "pion", "negotiation engine (pion, memory)")
	fs.StringSlice("ice-servers", []string{config.DefaultSTUNServer}, "ICE server urls")
	fs.String("summary-store", "memory", "where call summaries are kept (memory, redis)")
	fs.String("redis-addr", "localhost:6379", "redis address for the redis summary store")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("log-format", "console", "log format (console, json)")
	for key, flag := range map[string]string{
		"peer.relay_url":     "relay-url",
		"peer.role":          "role",
		"peer.label":         "label",
		"peer.engine":        "engine",
		"webrtc.ice_servers": "ice-servers",
		"summary.store":      "summary-store",
		"redis.addr":         "redis-addr",
		"log.level":          "log-level",
		"log.format":         "log-format",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	// The console owns stdout.
	l, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(cfg.Peer.Role)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	capture, factory, err := newMedia(cfg, l)
	if err != nil {
		return err
	}
	summaries, closeStore, err := newSummaryStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ch, err := ws.Dial(ctx, cfg.Peer.RelayURL)
	if err != nil {
		return err
	}
	defer ch.Close()

	opts := []service.CoordinatorOption{
		service.WithLogger(l.With().Str("component", "coordinator").Str("role", string(role)).Logger()),
		service.WithNotifier(printNotices(os.Stdout)),
		service.WithSaveTimeout(cfg.Summary.SaveTimeout),
	}
	if cfg.Peer.Label != "" {
		opts = append(opts, service.WithLabel(cfg.Peer.Label))
	}
	coord := service.NewCoordinator(role, ch, capture, factory, summaries, opts...)

	go func() {
		if err := ch.Run(ctx, coord); err != nil {
			l.Warn().Err(err).Msg("Relay connection lost")
		}
		// Losing the relay ends the call like a remote hangup.
		_ = coord.HandleEvent(context.Background(), domain.Event{Name: domain.EventEndCall})
		stop()
	}()

	l.Info().Str("role", string(role)).Str("engine", cfg.Peer.Engine).Msg("Peer ready")
	con := &console{coord: coord, out: os.Stdout}
	if err := con.run(ctx, os.Stdin); err != nil {
		return err
	}
	if err := coord.EndCall(context.Background()); err != nil {
		l.Debug().Err(err).Msg("End call on exit")
	}
	coord.WaitStored()
	return nil
}

func newMedia(cfg config.Config, l zerolog.Logger) (port.MediaCapture, port.NegotiatorFactory, error) {
	switch cfg.Peer.Engine {
	case "memory":
		return memory.NewCapture(), memory.NewEngine(), nil
	case "pion":
		factory, err := pion.NewFactory(cfg.WebRTC.ICEServers, l)
		if err != nil {
			return nil, nil, err
		}
		return pion.NewCapture(), factory, nil
	}
	return nil, nil, fmt.Errorf("unknown engine %q", cfg.Peer.Engine)
}

func newSummaryStore(ctx context.Context, cfg config.Config) (port.SummaryRepository, func(), error) {
	if cfg.Summary.Store != "redis" {
		return repo.NewSummaryRepository(), func() {}, nil
	}
	r, err := redis.NewSummaryRepository(ctx, redis.ClientConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Key:      cfg.Redis.Key,
	})
	if err != nil {
		return nil, nil, err
	}
	return r, func() {
		if err := r.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing redis")
		}
	}, nil
}
