package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/origin"
)

const (
	envVarListenAddr      = "AERO_LIVE_SIGNALING_LISTEN_ADDR"
	envVarPublicBaseURL   = "AERO_LIVE_SIGNALING_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "AERO_LIVE_SIGNALING_LOG_FORMAT"
	envVarLogLevel        = "AERO_LIVE_SIGNALING_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_LIVE_SIGNALING_SHUTDOWN_TIMEOUT"
	envVarMode            = "AERO_LIVE_SIGNALING_MODE"
	envVarEnvFile         = "AERO_LIVE_SIGNALING_ENV_FILE"

	// Connection admission.
	envVarAuthMode  = "AUTH_MODE"
	envVarAPIKey    = "API_KEY"
	envVarJWTSecret = "JWT_SECRET"

	// WebSocket hardening.
	envVarWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSendQueueLength      = "SIGNALING_SEND_QUEUE_LENGTH"

	envVarSweepInterval       = "SIGNALING_SWEEP_INTERVAL"
	envVarStreamStartingDelay = "STREAM_STARTING_DELAY"

	// Chat moderation and history.
	envVarChatMinInterval     = "CHAT_MIN_INTERVAL"
	envVarChatDuplicateWindow = "CHAT_DUPLICATE_WINDOW"
	envVarChatMaxRunes        = "CHAT_MAX_RUNES"
	envVarChatProfanityTerms  = "CHAT_PROFANITY_TERMS"
	envVarChatHistoryLimit    = "CHAT_HISTORY_LIMIT"
	envVarChatStoreBackend    = "CHAT_STORE_BACKEND"
	envVarChatStoreCapacity   = "CHAT_STORE_CAPACITY"
	envVarRedisAddr           = "REDIS_ADDR"
	envVarRedisPassword       = "REDIS_PASSWORD"
	envVarRedisDB             = "REDIS_DB"
	envVarRedisKey            = "REDIS_CHAT_KEY"
	envVarPostgresDSN         = "DATABASE_URL"

	// coturn TURN REST (ephemeral) credentials.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"
	envVarTURNRESTRealm          = "TURN_REST_REALM"

	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdown        = 15 * time.Second
	DefaultMode       Mode = ModeDev
	DefaultEnvFile         = ".env"

	DefaultAuthMode AuthMode = AuthModeNone

	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
	DefaultSendQueueLength      = 256

	DefaultSweepInterval       = 30 * time.Second
	DefaultStreamStartingDelay = 500 * time.Millisecond

	DefaultChatMinInterval     = 1200 * time.Millisecond
	DefaultChatDuplicateWindow = 6 * time.Second
	DefaultChatMaxRunes        = 500
	DefaultChatHistoryLimit    = 50

	DefaultTURNRESTTTLSeconds     int64  = 3600
	DefaultTURNRESTUsernamePrefix string = "aero"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeAPIKey AuthMode = "api_key"
	AuthModeJWT    AuthMode = "jwt"
)

type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
	Realm          string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr      string
	PublicBaseURL   string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	AuthMode  AuthMode
	APIKey    string
	JWTSecret string

	WSIdleTimeout        time.Duration
	WSPingInterval       time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	// SendQueueLength bounds each connection's outbound queue. A send to a
	// full queue fails and the connection is pruned.
	SendQueueLength int

	SweepInterval time.Duration
	// StreamStartingDelay is how long a stream stays in "starting" before the
	// hub announces it live.
	StreamStartingDelay time.Duration

	ChatMinInterval     time.Duration
	ChatDuplicateWindow time.Duration
	ChatMaxRunes        int
	// ChatProfanityTerms is nil when unset, selecting the built-in list.
	ChatProfanityTerms []string
	ChatHistoryLimit   int
	ChatStore          chatstore.Config

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	iceConfigErr error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

// Load reads configuration from the process environment, an optional .env
// file and command-line flags, in increasing order of precedence.
func Load(args []string) (Config, error) {
	lookup, err := dotEnvLookup(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	return load(lookup, args)
}

// dotEnvLookup layers the .env file under the real environment. A missing
// file is not an error.
func dotEnvLookup(base func(string) (string, bool)) (func(string) (string, bool), error) {
	path := envOrDefault(base, envVarEnvFile, DefaultEnvFile)
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTTTLSeconds := DefaultTURNRESTTTLSeconds
	if raw, ok := lookup(envVarTURNRESTTTLSeconds); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarTURNRESTTTLSeconds, raw, err)
		}
		turnRESTTTLSeconds = n
	}
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)
	turnRESTRealm := envOrDefault(lookup, envVarTURNRESTRealm, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	authModeDefault := envOrDefault(lookup, envVarAuthMode, string(DefaultAuthMode))
	apiKey := envOrDefault(lookup, envVarAPIKey, "")
	jwtSecret := envOrDefault(lookup, envVarJWTSecret, "")

	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes := DefaultMaxMessageBytes
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		maxMessageBytes = n
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueLength, err := envIntOrDefault(lookup, envVarSendQueueLength, DefaultSendQueueLength)
	if err != nil {
		return Config{}, err
	}

	sweepInterval, err := envDurationOrDefault(lookup, envVarSweepInterval, DefaultSweepInterval)
	if err != nil {
		return Config{}, err
	}
	streamStartingDelay, err := envDurationOrDefault(lookup, envVarStreamStartingDelay, DefaultStreamStartingDelay)
	if err != nil {
		return Config{}, err
	}

	chatMinInterval, err := envDurationOrDefault(lookup, envVarChatMinInterval, DefaultChatMinInterval)
	if err != nil {
		return Config{}, err
	}
	chatDuplicateWindow, err := envDurationOrDefault(lookup, envVarChatDuplicateWindow, DefaultChatDuplicateWindow)
	if err != nil {
		return Config{}, err
	}
	chatMaxRunes, err := envIntOrDefault(lookup, envVarChatMaxRunes, DefaultChatMaxRunes)
	if err != nil {
		return Config{}, err
	}
	chatProfanityTermsStr := envOrDefault(lookup, envVarChatProfanityTerms, "")
	chatHistoryLimit, err := envIntOrDefault(lookup, envVarChatHistoryLimit, DefaultChatHistoryLimit)
	if err != nil {
		return Config{}, err
	}

	chatStoreBackendDefault := envOrDefault(lookup, envVarChatStoreBackend, string(chatstore.BackendMemory))
	chatStoreCapacity, err := envIntOrDefault(lookup, envVarChatStoreCapacity, chatstore.DefaultCapacity)
	if err != nil {
		return Config{}, err
	}
	redisAddr := envOrDefault(lookup, envVarRedisAddr, "")
	redisPassword := envOrDefault(lookup, envVarRedisPassword, "")
	redisDB, err := envIntOrDefault(lookup, envVarRedisDB, 0)
	if err != nil {
		return Config{}, err
	}
	redisKey := envOrDefault(lookup, envVarRedisKey, chatstore.DefaultRedisKey)
	postgresDSN := envOrDefault(lookup, envVarPostgresDSN, "")

	fs := flag.NewFlagSet("aero-live-signaling", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr             string
		logFormatStr        string
		logLevelStr         string
		authModeStr         string
		chatStoreBackendStr string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "Public base URL (optional; used for logging)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.StringVar(&turnRESTSharedSecret, "turn-rest-shared-secret", turnRESTSharedSecret, "TURN REST shared secret ("+envVarTURNRESTSharedSecret+")")
	fs.Int64Var(&turnRESTTTLSeconds, "turn-rest-ttl-seconds", turnRESTTTLSeconds, "TURN REST credential TTL seconds ("+envVarTURNRESTTTLSeconds+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "TURN REST username prefix ("+envVarTURNRESTUsernamePrefix+")")
	fs.StringVar(&turnRESTRealm, "turn-rest-realm", turnRESTRealm, "TURN realm (coturn config; "+envVarTURNRESTRealm+")")

	fs.StringVar(&authModeStr, "auth-mode", authModeDefault, "Connection auth mode: none, api_key, or jwt (env "+envVarAuthMode+")")
	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close idle WebSocket connections after this duration (env "+envVarWSIdleTimeout+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "Send ping frames at this interval (must be < --ws-idle-timeout; env "+envVarWSPingInterval+")")
	fs.Int64Var(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-messages-per-second", maxMessagesPerSecond, "Max inbound messages per second per connection (env "+envVarMaxMessagesPerSecond+")")
	fs.IntVar(&sendQueueLength, "send-queue-length", sendQueueLength, "Outbound messages queued per connection before it is dropped (env "+envVarSendQueueLength+")")

	fs.DurationVar(&sweepInterval, "sweep-interval", sweepInterval, "Stale connection sweep interval (env "+envVarSweepInterval+")")
	fs.DurationVar(&streamStartingDelay, "stream-starting-delay", streamStartingDelay, "Delay between stream_start and the live status broadcast (env "+envVarStreamStartingDelay+")")

	fs.DurationVar(&chatMinInterval, "chat-min-interval", chatMinInterval, "Minimum interval between chat messages from one sender (env "+envVarChatMinInterval+")")
	fs.DurationVar(&chatDuplicateWindow, "chat-duplicate-window", chatDuplicateWindow, "Window in which an identical chat message is rejected (env "+envVarChatDuplicateWindow+")")
	fs.IntVar(&chatMaxRunes, "chat-max-runes", chatMaxRunes, "Max chat message length in characters (0 = unlimited; env "+envVarChatMaxRunes+")")
	fs.StringVar(&chatProfanityTermsStr, "chat-profanity-terms", chatProfanityTermsStr, "Comma-separated masked terms (default built-in list; env "+envVarChatProfanityTerms+")")
	fs.IntVar(&chatHistoryLimit, "chat-history-limit", chatHistoryLimit, "Recent chat messages replayed on chat_join (env "+envVarChatHistoryLimit+")")
	fs.StringVar(&chatStoreBackendStr, "chat-store", chatStoreBackendDefault, "Chat store backend: memory, redis, or postgres (env "+envVarChatStoreBackend+")")
	fs.IntVar(&chatStoreCapacity, "chat-store-capacity", chatStoreCapacity, "Messages retained by the memory and redis stores (env "+envVarChatStoreCapacity+")")
	fs.StringVar(&redisAddr, "redis-addr", redisAddr, "Redis address for --chat-store=redis (env "+envVarRedisAddr+")")
	fs.IntVar(&redisDB, "redis-db", redisDB, "Redis database number (env "+envVarRedisDB+")")
	fs.StringVar(&redisKey, "redis-chat-key", redisKey, "Redis list key holding recent chat (env "+envVarRedisKey+")")
	fs.StringVar(&postgresDSN, "database-url", postgresDSN, "Postgres DSN for --chat-store=postgres (env "+envVarPostgresDSN+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	// --mode moves the log defaults with it unless env or a flag pinned them.
	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	authMode, err := parseAuthMode(authModeStr)
	if err != nil {
		return Config{}, err
	}
	chatStoreBackend, err := chatstore.ParseBackend(chatStoreBackendStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/--chat-store: %w", envVarChatStoreBackend, err)
	}

	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", envVarShutdownTimeout)
	}
	if authMode == AuthModeAPIKey && strings.TrimSpace(apiKey) == "" {
		return Config{}, fmt.Errorf("%s must be set when %s=%s", envVarAPIKey, envVarAuthMode, AuthModeAPIKey)
	}
	if authMode == AuthModeJWT && strings.TrimSpace(jwtSecret) == "" {
		return Config{}, fmt.Errorf("%s must be set when %s=%s", envVarJWTSecret, envVarAuthMode, AuthModeJWT)
	}
	if wsIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-idle-timeout must be > 0", envVarWSIdleTimeout)
	}
	if wsPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be > 0", envVarWSPingInterval)
	}
	if wsPingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be < %s/--ws-idle-timeout", envVarWSPingInterval, envVarWSIdleTimeout)
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-message-bytes must be > 0", envVarMaxMessageBytes)
	}
	if maxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-messages-per-second must be > 0", envVarMaxMessagesPerSecond)
	}
	if sendQueueLength <= 0 {
		return Config{}, fmt.Errorf("%s/--send-queue-length must be > 0", envVarSendQueueLength)
	}
	if sweepInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--sweep-interval must be > 0", envVarSweepInterval)
	}
	if streamStartingDelay < 0 {
		return Config{}, fmt.Errorf("%s/--stream-starting-delay must be >= 0", envVarStreamStartingDelay)
	}
	if chatMinInterval < 0 {
		return Config{}, fmt.Errorf("%s/--chat-min-interval must be >= 0", envVarChatMinInterval)
	}
	if chatDuplicateWindow < 0 {
		return Config{}, fmt.Errorf("%s/--chat-duplicate-window must be >= 0", envVarChatDuplicateWindow)
	}
	if chatMaxRunes < 0 {
		return Config{}, fmt.Errorf("%s/--chat-max-runes must be >= 0", envVarChatMaxRunes)
	}
	if chatHistoryLimit <= 0 {
		return Config{}, fmt.Errorf("%s/--chat-history-limit must be > 0", envVarChatHistoryLimit)
	}
	if chatStoreCapacity <= 0 {
		return Config{}, fmt.Errorf("%s/--chat-store-capacity must be > 0", envVarChatStoreCapacity)
	}
	if chatStoreBackend == chatstore.BackendRedis && strings.TrimSpace(redisAddr) == "" {
		return Config{}, fmt.Errorf("%s must be set when %s=%s", envVarRedisAddr, envVarChatStoreBackend, chatstore.BackendRedis)
	}
	if chatStoreBackend == chatstore.BackendPostgres && strings.TrimSpace(postgresDSN) == "" {
		return Config{}, fmt.Errorf("%s must be set when %s=%s", envVarPostgresDSN, envVarChatStoreBackend, chatstore.BackendPostgres)
	}

	if strings.TrimSpace(turnRESTSharedSecret) != "" {
		if turnRESTTTLSeconds <= 0 {
			return Config{}, fmt.Errorf("%s must be > 0 when %s is set", envVarTURNRESTTTLSeconds, envVarTURNRESTSharedSecret)
		}
		if strings.TrimSpace(turnRESTUsernamePrefix) == "" {
			return Config{}, fmt.Errorf("%s must be non-empty when %s is set", envVarTURNRESTUsernamePrefix, envVarTURNRESTSharedSecret)
		}
		if strings.Contains(turnRESTUsernamePrefix, ":") {
			return Config{}, fmt.Errorf("%s must not contain ':'", envVarTURNRESTUsernamePrefix)
		}
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/%s: %w", envVarAllowedOrigins, "--allowed-origins", err)
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		AuthMode:  authMode,
		APIKey:    apiKey,
		JWTSecret: jwtSecret,

		WSIdleTimeout:        wsIdleTimeout,
		WSPingInterval:       wsPingInterval,
		MaxMessageBytes:      maxMessageBytes,
		MaxMessagesPerSecond: maxMessagesPerSecond,
		SendQueueLength:      sendQueueLength,

		SweepInterval:       sweepInterval,
		StreamStartingDelay: streamStartingDelay,

		ChatMinInterval:     chatMinInterval,
		ChatDuplicateWindow: chatDuplicateWindow,
		ChatMaxRunes:        chatMaxRunes,
		ChatProfanityTerms:  splitCommaSeparated(chatProfanityTermsStr),
		ChatHistoryLimit:    chatHistoryLimit,
		ChatStore: chatstore.Config{
			Backend:       chatStoreBackend,
			Capacity:      chatStoreCapacity,
			RedisAddr:     redisAddr,
			RedisPassword: redisPassword,
			RedisDB:       redisDB,
			RedisKey:      redisKey,
			PostgresDSN:   postgresDSN,
		},

		TURNREST: TurnRESTConfig{
			SharedSecret:   turnRESTSharedSecret,
			TTLSeconds:     turnRESTTTLSeconds,
			UsernamePrefix: turnRESTUsernamePrefix,
			Realm:          turnRESTRealm,
		},
	}

	iceServers, err := iceSettings{
		JSON:           iceServersJSON,
		STUNURLs:       stunURLs,
		TURNURLs:       turnURLs,
		TURNUsername:   turnUsername,
		TURNCredential: turnCredential,
	}.servers(cfg.TURNREST.Enabled())
	if err != nil {
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAuthMode(raw string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(AuthModeNone), "":
		return AuthModeNone, nil
	case string(AuthModeAPIKey):
		return AuthModeAPIKey, nil
	case string(AuthModeJWT):
		return AuthModeJWT, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected %s, %s, or %s)", envVarAuthMode, raw, AuthModeNone, AuthModeAPIKey, AuthModeJWT)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if entry == "*" {
			out = append(out, entry)
			continue
		}

		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}

	return out, nil
}
