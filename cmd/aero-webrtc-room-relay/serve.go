package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/policy"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/recording"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/roomapi"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/store"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting aero-webrtc-room-relay",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"auth_mode", cfg.AuthMode,
		"max_participants_per_room", cfg.MaxParticipantsPerRoom,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest", cfg.TURNREST.Enabled(),
		"store_path", cfg.StorePath,
		"recording_storage", cfg.Recording.StorageEnabled(),
	)
	logStartupSecurityWarnings(logger, cfg)

	m := metrics.New()
	hub := relay.NewHub(relay.HubConfig{
		MaxParticipantsPerRoom: cfg.MaxParticipantsPerRoom,
		Metrics:                m,
		Logger:                 logger,
	})

	authz, err := signaling.NewAuthorizer(cfg)
	if err != nil {
		return fmt.Errorf("configure signaling auth: %w", err)
	}

	st, err := store.Open(cfg.StorePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	sources, err := policy.New(cfg.Recording.AllowPrivateSources, cfg.Recording.SourceAllowCIDRs, cfg.Recording.SourceDenyCIDRs)
	if err != nil {
		return err
	}

	recCfg := recording.Config{
		Store:       st,
		Sources:     sources,
		Capturer:    recording.FFmpegCapturer{Path: cfg.Recording.FFmpegPath},
		Metrics:     m,
		Logger:      logger,
		Dir:         cfg.Recording.Dir,
		URLTTL:      cfg.Recording.URLTTL,
		MaxDuration: cfg.Recording.MaxDuration,
	}
	if cfg.Recording.StorageEnabled() {
		s3, err := recording.NewS3Storage(ctx, cfg.Recording.Bucket)
		if err != nil {
			return err
		}
		recCfg.Storage = s3
	}
	recorder, err := recording.NewService(recCfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built}, httpserver.Deps{
		Metrics: m,
		Hub:     hub,
	})

	sig := signaling.NewServer(signaling.Config{
		Hub:            hub,
		Authorizer:     authz,
		Metrics:        m,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,

		SignalingAuthTimeout:          cfg.SignalingAuthTimeout,
		SignalingWSIdleTimeout:        cfg.SignalingWSIdleTimeout,
		SignalingWSPingInterval:       cfg.SignalingWSPingInterval,
		MaxSignalingMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		MailboxMaxFrames:              cfg.MailboxMaxFrames,
		MailboxMaxBytes:               cfg.MailboxMaxBytes,
	})
	sig.RegisterRoutes(srv.Mux())

	roomapi.New(roomapi.Config{
		Store:         st,
		Recorder:      recorder,
		Presence:      hub,
		Metrics:       m,
		Logger:        logger,
		PublicBaseURL: cfg.PublicBaseURL,
	}).RegisterRoutes(srv.Mux(), srv.OriginPolicy())

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so the
	// signaling sessions are closed explicitly.
	sig.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server exited after shutdown: %w", err)
	}
	logger.Info("shutdown complete", "participants", hub.Stats().Participants)
	return nil
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
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
