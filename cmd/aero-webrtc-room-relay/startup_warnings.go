package main

import (
	"log/slog"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.AuthMode == config.AuthModeNone {
		logger.Warn("startup security warning: AUTH_MODE=none lets anyone join any room",
			"warning_code", "auth_mode_none",
			"auth_mode", cfg.AuthMode,
			"mode", cfg.Mode,
		)
	}

	if lo.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxParticipantsPerRoom <= 0 {
		logger.Warn("startup security warning: MAX_PARTICIPANTS_PER_ROOM is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_participants_unlimited_in_prod",
			"max_participants_per_room", cfg.MaxParticipantsPerRoom,
			"mode", cfg.Mode,
		)
	}

	// Every participant's mailbox may hold this much; large values multiply
	// across a busy room.
	if cfg.MaxSignalingMessageBytes > 1<<20 {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (each broadcast is queued once per room member)",
			"warning_code", "max_signaling_message_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.Recording.AllowPrivateSources {
		logger.Warn("startup security warning: RECORDING_ALLOW_PRIVATE_SOURCES lets API clients point ffmpeg at internal services",
			"warning_code", "recording_private_sources",
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.StorePath == "" {
		logger.Warn("startup warning: STORE_PATH is empty; rooms and recordings are lost on restart",
			"warning_code", "store_in_memory_in_prod",
			"mode", cfg.Mode,
		)
	}
}
