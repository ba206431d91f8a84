package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	cp := &recordingHandler{
		mu:      h.mu,
		records: h.records,
	}
	if len(h.attrs) > 0 {
		cp.attrs = append([]slog.Attr(nil), h.attrs...)
	}
	if len(h.groups) > 0 {
		cp.groups = append([]string(nil), h.groups...)
	}
	return cp
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

// warningCodes collects the warning_code attribute of every WARN record.
func warningCodes(records []recordedLog) map[string]recordedLog {
	out := map[string]recordedLog{}
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out[code] = r
		}
	}
	return out
}

func TestStartupSecurityWarnings_AuthModeNone(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:     config.ModeDev,
		AuthMode: config.AuthModeNone,
	})

	r, ok := warningCodes(records())["auth_mode_none"]
	if !ok {
		t.Fatalf("expected warning_code=auth_mode_none, got %#v", records())
	}
	if r.attrs["auth_mode"] != config.AuthModeNone {
		t.Fatalf("auth_mode attr = %#v, want %q", r.attrs["auth_mode"], config.AuthModeNone)
	}
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:           config.ModeDev,
		AuthMode:       config.AuthModeAPIKey,
		AllowedOrigins: []string{"*"},
		APIKey:         "secret",
	})

	if _, ok := warningCodes(records())["allowed_origins_wildcard"]; !ok {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %#v", records())
	}
}

func TestStartupSecurityWarnings_ShortJWTSecret(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:      config.ModeProd,
		AuthMode:  config.AuthModeJWT,
		JWTSecret: "short",
		ChatStore: chatstore.Config{Backend: chatstore.BackendRedis},
	})

	codes := warningCodes(records())
	if _, ok := codes["jwt_secret_short"]; !ok {
		t.Fatalf("expected warning_code=jwt_secret_short, got %#v", records())
	}
	if _, ok := codes["auth_mode_none"]; ok {
		t.Fatalf("unexpected auth_mode_none warning")
	}
	if _, ok := codes["chat_store_memory_in_prod"]; ok {
		t.Fatalf("unexpected chat_store_memory_in_prod warning with redis backend")
	}
}

func TestStartupSecurityWarnings_MemoryStoreInProd(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:      config.ModeProd,
		AuthMode:  config.AuthModeAPIKey,
		APIKey:    "k",
		ChatStore: chatstore.Config{Backend: chatstore.BackendMemory},
	})

	if _, ok := warningCodes(records())["chat_store_memory_in_prod"]; !ok {
		t.Fatalf("expected warning_code=chat_store_memory_in_prod, got %#v", records())
	}
}

func TestStartupSecurityWarnings_DefaultsAreQuietInProd(t *testing.T) {
	t.Setenv("API_KEY", "k")
	cfg, err := config.Load([]string{
		"--mode", "prod",
		"--auth-mode", "api_key",
		"--chat-store", "redis",
		"--redis-addr", "127.0.0.1:6379",
	})
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	logger, records := newRecordingLogger()
	logStartupSecurityWarnings(logger, cfg)
	if codes := warningCodes(records()); len(codes) != 0 {
		t.Fatalf("expected no warnings, got %v", codes)
	}
}
