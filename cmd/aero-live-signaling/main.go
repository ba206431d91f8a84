package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/auth"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/hub"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/moderation"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

const storeOpenTimeout = 10 * time.Second

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

	logger.Info("starting aero-live-signaling",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"auth_mode", cfg.AuthMode,
		"chat_store", cfg.ChatStore.Backend,
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_messages_per_second", cfg.MaxMessagesPerSecond,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)
	logStartupSecurityWarnings(logger, cfg)

	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		logger.Error("failed to configure auth", "err", err)
		os.Exit(2)
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), storeOpenTimeout)
	store, err := chatstore.Open(openCtx, cfg.ChatStore)
	cancelOpen()
	if err != nil {
		logger.Error("failed to open chat store", "backend", cfg.ChatStore.Backend, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	h := hub.New(hub.Config{
		Logger:  logger.With("component", "hub"),
		Metrics: m,
		Moderator: moderation.New(moderation.Config{
			MinInterval:     cfg.ChatMinInterval,
			DuplicateWindow: cfg.ChatDuplicateWindow,
			MaxRunes:        cfg.ChatMaxRunes,
			Terms:           cfg.ChatProfanityTerms,
		}),
		Store:         store,
		StartingDelay: cfg.StreamStartingDelay,
		SweepInterval: cfg.SweepInterval,
		HistoryLimit:  cfg.ChatHistoryLimit,
	})

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv, err := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built}, m)
	if err != nil {
		logger.Error("failed to configure http server", "err", err)
		os.Exit(2)
	}

	sig := signaling.NewServer(signaling.Config{
		Hub:                  h,
		Logger:               logger.With("component", "signaling"),
		Metrics:              m,
		Verifier:             verifier,
		AuthMode:             cfg.AuthMode,
		IdleTimeout:          cfg.WSIdleTimeout,
		PingInterval:         cfg.WSPingInterval,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		SendQueueLength:      cfg.SendQueueLength,
	})
	sig.RegisterRoutes(srv)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go h.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown does not wait for hijacked /ws connections; their pumps exit
	// once the process does.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	if err := h.Close(shutdownCtx); err != nil {
		logger.Warn("chat persistence did not drain before shutdown", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete", "streams_started", m.Get(metrics.StreamsStarted), "chat_accepted", m.Get(metrics.ChatAccepted))
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// ldflags win; fall back to VCS stamps for `go run` and dev builds.
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}
	return commit, buildTime
}
