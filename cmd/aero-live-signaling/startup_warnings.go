package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/config"
)

const minJWTSecretBytes = 32

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.AuthMode == config.AuthModeNone {
		logger.Warn("startup security warning: AUTH_MODE=none lets anyone connect and claim the broadcaster role",
			"warning_code", "auth_mode_none",
			"auth_mode", cfg.AuthMode,
			"mode", cfg.Mode,
		)
	}

	if cfg.AuthMode == config.AuthModeJWT && len(cfg.JWTSecret) < minJWTSecretBytes {
		logger.Warn("startup security warning: JWT_SECRET is shorter than 32 bytes",
			"warning_code", "jwt_secret_short",
			"jwt_secret_bytes", len(cfg.JWTSecret),
			"mode", cfg.Mode,
		)
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && (cfg.ChatStore.Backend == "" || cfg.ChatStore.Backend == chatstore.BackendMemory) {
		logger.Warn("startup warning: CHAT_STORE_BACKEND=memory while --mode=prod (chat history is lost on restart)",
			"warning_code", "chat_store_memory_in_prod",
			"chat_store_backend", cfg.ChatStore.Backend,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "max_signaling_message_bytes_large",
			"max_signaling_message_bytes", cfg.MaxMessageBytes,
			"mode", cfg.Mode,
		)
	}
	if cfg.MaxMessagesPerSecond > 1000 {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGES_PER_SECOND is very large (weakens flood protection)",
			"warning_code", "max_signaling_messages_per_second_large",
			"max_signaling_messages_per_second", cfg.MaxMessagesPerSecond,
			"mode", cfg.Mode,
		)
	}
	if cfg.WSIdleTimeout > 5*time.Minute {
		logger.Warn("startup warning: SIGNALING_WS_IDLE_TIMEOUT is very large (dead viewers linger in the registry)",
			"warning_code", "ws_idle_timeout_large",
			"ws_idle_timeout", cfg.WSIdleTimeout,
			"mode", cfg.Mode,
		)
	}
}
