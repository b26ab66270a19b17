package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/screenhive/signaling-relay/internal/config"
	"github.com/screenhive/signaling-relay/internal/httpserver"
	"github.com/screenhive/signaling-relay/internal/metrics"
	"github.com/screenhive/signaling-relay/internal/room"
	"github.com/screenhive/signaling-relay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting screenhive-signaling-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"allowed_origins", cfg.AllowedOrigins,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"ws_ping_interval", cfg.WSPingInterval,
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_messages_per_second", cfg.MaxMessagesPerSecond,
		"max_room_members", cfg.MaxRoomMembers,
	)
	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	srv := httpserver.New(cfg, logger, resolveBuildInfo())

	m := metrics.New()
	registry := room.NewRegistry(room.WithMaxMembers(cfg.MaxRoomMembers))
	hub := signaling.NewHub(registry, logger)
	relay := signaling.NewRelay(signaling.RelayConfig{
		Registry:  registry,
		Transport: hub,
		Logger:    logger,
		Metrics:   m,
	})
	sig := signaling.NewServer(signaling.ServerConfig{
		Relay:                relay,
		Hub:                  hub,
		Logger:               logger,
		Metrics:              m,
		AllowedOrigins:       cfg.AllowedOrigins,
		IdleTimeout:          cfg.WSIdleTimeout,
		PingInterval:         cfg.WSPingInterval,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	})
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format, and count every
	// request that flows through the mux.
	srv.Mux().Handle("GET /metrics", m.Handler())
	srv.SetHandler(m.InstrumentHandler(srv.Mux()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "err", err)
		}
		serveErr = <-errCh
	}

	// Shutdown does not reach hijacked websockets; close them explicitly so
	// every session runs its disconnect cleanup.
	hub.CloseAll()

	if serveErr != nil && !errors.Is(serveErr, httpserver.ErrServerClosed) {
		logger.Error("http server exited", "err", serveErr)
		os.Exit(1)
	}
}

// resolveBuildInfo prefers ldflags-injected values (production builds) and
// falls back to the Go build info, which covers `go run` and dev builds.
func resolveBuildInfo() httpserver.BuildInfo {
	info := httpserver.BuildInfo{Commit: buildCommit, BuildTime: buildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.BuildTime == "":
			info.BuildTime = s.Value
		}
	}
	return info
}
