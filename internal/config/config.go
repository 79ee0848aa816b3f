package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/origin"
)

const (
	EnvListenAddr      = "LISTEN_ADDR"
	EnvPublicBaseURL   = "PUBLIC_BASE_URL"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"
	EnvMode            = "MODE"
	EnvLogFormat       = "LOG_FORMAT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvAuthMode                      = "AUTH_MODE"
	EnvAPIKey                        = "API_KEY"
	EnvJWTSecret                     = "JWT_SECRET"
	EnvSignalingAuthTimeout          = "SIGNALING_AUTH_TIMEOUT"
	EnvSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	EnvSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	EnvMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	EnvMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	EnvMailboxMaxFrames              = "MAILBOX_MAX_FRAMES"
	EnvMailboxMaxBytes               = "MAILBOX_MAX_BYTES"
	EnvMaxParticipantsPerRoom        = "MAX_PARTICIPANTS_PER_ROOM"

	EnvTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	EnvTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	EnvTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"

	EnvStorePath            = "STORE_PATH"
	EnvRecordingBucket      = "RECORDING_BUCKET"
	EnvRecordingURLTTL      = "RECORDING_URL_TTL"
	EnvRecordingDir         = "RECORDING_DIR"
	EnvFFmpegPath           = "FFMPEG_PATH"
	EnvRecordingMaxDuration = "RECORDING_MAX_DURATION"

	EnvRecordingAllowPrivateSources = "RECORDING_ALLOW_PRIVATE_SOURCES"
	EnvRecordingSourceAllowCIDRs    = "RECORDING_SOURCE_ALLOW_CIDRS"
	EnvRecordingSourceDenyCIDRs     = "RECORDING_SOURCE_DENY_CIDRS"
)

const (
	DefaultListenAddr                  = "127.0.0.1:8080"
	DefaultShutdown                    = 15 * time.Second
	DefaultMode                   Mode = ModeDev
	DefaultAuthMode           AuthMode = AuthModeNone

	DefaultSignalingAuthTimeout          = 2 * time.Second
	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultMailboxMaxFrames              = 256
	DefaultMailboxMaxBytes               = 1 << 20

	DefaultTURNRESTTTLSeconds     int64  = 3600
	DefaultTURNRESTUsernamePrefix string = "aero"

	DefaultRecordingURLTTL      = time.Hour
	DefaultRecordingMaxDuration = 10 * time.Minute
	DefaultFFmpegPath           = "ffmpeg"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
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
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

// RecordingConfig configures capture jobs and the object storage that holds
// their output. An empty Bucket disables upload and download links.
type RecordingConfig struct {
	Bucket      string
	URLTTL      time.Duration
	Dir         string
	FFmpegPath  string
	MaxDuration time.Duration

	// Source URL filtering for capture jobs.
	AllowPrivateSources bool
	SourceAllowCIDRs    string
	SourceDenyCIDRs     string
}

func (c RecordingConfig) StorageEnabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
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

	SignalingAuthTimeout          time.Duration
	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	MailboxMaxFrames       int
	MailboxMaxBytes        int
	MaxParticipantsPerRoom int

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	// StorePath is the badger directory. Empty keeps records in memory.
	StorePath string
	Recording RecordingConfig
}

// envConfig mirrors the environment. Values decoded here become the defaults
// of the command-line flags.
type envConfig struct {
	ListenAddr      string        `env:"LISTEN_ADDR,default=127.0.0.1:8080"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS"`
	Mode            string        `env:"MODE,default=dev"`
	LogFormat       string        `env:"LOG_FORMAT"`
	LogLevel        string        `env:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`

	AuthMode  string `env:"AUTH_MODE,default=none"`
	APIKey    string `env:"API_KEY"`
	JWTSecret string `env:"JWT_SECRET"`

	SignalingAuthTimeout          time.Duration `env:"SIGNALING_AUTH_TIMEOUT,default=2s"`
	SignalingWSIdleTimeout        time.Duration `env:"SIGNALING_WS_IDLE_TIMEOUT,default=60s"`
	SignalingWSPingInterval       time.Duration `env:"SIGNALING_WS_PING_INTERVAL,default=20s"`
	MaxSignalingMessageBytes      int64         `env:"MAX_SIGNALING_MESSAGE_BYTES,default=65536"`
	MaxSignalingMessagesPerSecond int           `env:"MAX_SIGNALING_MESSAGES_PER_SECOND,default=50"`
	MailboxMaxFrames              int           `env:"MAILBOX_MAX_FRAMES,default=256"`
	MailboxMaxBytes               int           `env:"MAILBOX_MAX_BYTES,default=1048576"`
	MaxParticipantsPerRoom        int           `env:"MAX_PARTICIPANTS_PER_ROOM,default=0"`

	ICEServersJSON string `env:"ICE_SERVERS_JSON"`
	STUNURLs       string `env:"STUN_URLS"`
	TURNURLs       string `env:"TURN_URLS"`
	TURNUsername   string `env:"TURN_USERNAME"`
	TURNCredential string `env:"TURN_CREDENTIAL"`

	TURNRESTSharedSecret   string `env:"TURN_REST_SHARED_SECRET"`
	TURNRESTTTLSeconds     int64  `env:"TURN_REST_TTL_SECONDS,default=3600"`
	TURNRESTUsernamePrefix string `env:"TURN_REST_USERNAME_PREFIX,default=aero"`

	StorePath            string        `env:"STORE_PATH"`
	RecordingBucket      string        `env:"RECORDING_BUCKET"`
	RecordingURLTTL      time.Duration `env:"RECORDING_URL_TTL,default=1h"`
	RecordingDir         string        `env:"RECORDING_DIR"`
	FFmpegPath           string        `env:"FFMPEG_PATH,default=ffmpeg"`
	RecordingMaxDuration time.Duration `env:"RECORDING_MAX_DURATION,default=10m"`

	RecordingAllowPrivateSources bool   `env:"RECORDING_ALLOW_PRIVATE_SOURCES,default=false"`
	RecordingSourceAllowCIDRs    string `env:"RECORDING_SOURCE_ALLOW_CIDRS"`
	RecordingSourceDenyCIDRs     string `env:"RECORDING_SOURCE_DENY_CIDRS"`
}

// Load reads the process environment and then applies args as flag overrides.
// A --help request returns pflag.ErrHelp.
func Load(args []string) (Config, error) {
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return load(es, args)
}

func load(es env.EnvSet, args []string) (Config, error) {
	var ec envConfig
	if err := env.Unmarshal(es, &ec); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	fs := pflag.NewFlagSet("aero-webrtc-room-relay", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVar(&ec.ListenAddr, "listen-addr", ec.ListenAddr, "HTTP listen address ("+EnvListenAddr+")")
	fs.StringVar(&ec.PublicBaseURL, "public-base-url", ec.PublicBaseURL, "Public base URL used in room links ("+EnvPublicBaseURL+")")
	fs.StringVar(&ec.AllowedOrigins, "allowed-origins", ec.AllowedOrigins, "Comma-separated browser origins; empty means same host only ("+EnvAllowedOrigins+")")
	fs.StringVar(&ec.Mode, "mode", ec.Mode, "dev or prod ("+EnvMode+")")
	fs.StringVar(&ec.LogFormat, "log-format", ec.LogFormat, "text or json; defaults by mode ("+EnvLogFormat+")")
	fs.StringVar(&ec.LogLevel, "log-level", ec.LogLevel, "debug, info, warn or error; defaults by mode ("+EnvLogLevel+")")
	fs.DurationVar(&ec.ShutdownTimeout, "shutdown-timeout", ec.ShutdownTimeout, "Graceful shutdown budget ("+EnvShutdownTimeout+")")

	fs.StringVar(&ec.AuthMode, "auth-mode", ec.AuthMode, "none, api_key or jwt ("+EnvAuthMode+")")
	fs.StringVar(&ec.APIKey, "api-key", ec.APIKey, "Shared API key for auth-mode=api_key ("+EnvAPIKey+")")
	fs.StringVar(&ec.JWTSecret, "jwt-secret", ec.JWTSecret, "HS256 secret for auth-mode=jwt ("+EnvJWTSecret+")")
	fs.DurationVar(&ec.SignalingAuthTimeout, "signaling-auth-timeout", ec.SignalingAuthTimeout, "Time allowed for the first auth message ("+EnvSignalingAuthTimeout+")")
	fs.DurationVar(&ec.SignalingWSIdleTimeout, "signaling-ws-idle-timeout", ec.SignalingWSIdleTimeout, "Close connections silent for this long ("+EnvSignalingWSIdleTimeout+")")
	fs.DurationVar(&ec.SignalingWSPingInterval, "signaling-ws-ping-interval", ec.SignalingWSPingInterval, "WebSocket ping interval ("+EnvSignalingWSPingInterval+")")
	fs.Int64Var(&ec.MaxSignalingMessageBytes, "max-signaling-message-bytes", ec.MaxSignalingMessageBytes, "Max inbound signaling message size ("+EnvMaxSignalingMessageBytes+")")
	fs.IntVar(&ec.MaxSignalingMessagesPerSecond, "max-signaling-messages-per-second", ec.MaxSignalingMessagesPerSecond, "Per-connection inbound message rate ("+EnvMaxSignalingMessagesPerSecond+")")
	fs.IntVar(&ec.MailboxMaxFrames, "mailbox-max-frames", ec.MailboxMaxFrames, "Outbound frames buffered per connection ("+EnvMailboxMaxFrames+")")
	fs.IntVar(&ec.MailboxMaxBytes, "mailbox-max-bytes", ec.MailboxMaxBytes, "Outbound bytes buffered per connection ("+EnvMailboxMaxBytes+")")
	fs.IntVar(&ec.MaxParticipantsPerRoom, "max-participants-per-room", ec.MaxParticipantsPerRoom, "Room capacity, 0 for unlimited ("+EnvMaxParticipantsPerRoom+")")

	fs.StringVar(&ec.ICEServersJSON, "ice-servers-json", ec.ICEServersJSON, "ICE servers as JSON (ICE_SERVERS_JSON)")
	fs.StringVar(&ec.STUNURLs, "stun-urls", ec.STUNURLs, "Comma-separated STUN URLs (STUN_URLS)")
	fs.StringVar(&ec.TURNURLs, "turn-urls", ec.TURNURLs, "Comma-separated TURN URLs (TURN_URLS)")
	fs.StringVar(&ec.TURNUsername, "turn-username", ec.TURNUsername, "Static TURN username (TURN_USERNAME)")
	fs.StringVar(&ec.TURNCredential, "turn-credential", ec.TURNCredential, "Static TURN credential (TURN_CREDENTIAL)")
	fs.StringVar(&ec.TURNRESTSharedSecret, "turn-rest-shared-secret", ec.TURNRESTSharedSecret, "coturn static-auth-secret for ephemeral credentials ("+EnvTURNRESTSharedSecret+")")
	fs.Int64Var(&ec.TURNRESTTTLSeconds, "turn-rest-ttl-seconds", ec.TURNRESTTTLSeconds, "Ephemeral TURN credential lifetime ("+EnvTURNRESTTTLSeconds+")")
	fs.StringVar(&ec.TURNRESTUsernamePrefix, "turn-rest-username-prefix", ec.TURNRESTUsernamePrefix, "Ephemeral TURN username prefix ("+EnvTURNRESTUsernamePrefix+")")

	fs.StringVar(&ec.StorePath, "store-path", ec.StorePath, "Badger directory; empty for in-memory ("+EnvStorePath+")")
	fs.StringVar(&ec.RecordingBucket, "recording-bucket", ec.RecordingBucket, "S3 bucket for recordings; empty disables links ("+EnvRecordingBucket+")")
	fs.DurationVar(&ec.RecordingURLTTL, "recording-url-ttl", ec.RecordingURLTTL, "Lifetime of presigned recording links ("+EnvRecordingURLTTL+")")
	fs.StringVar(&ec.RecordingDir, "recording-dir", ec.RecordingDir, "Scratch directory for captures; empty uses the OS temp dir ("+EnvRecordingDir+")")
	fs.StringVar(&ec.FFmpegPath, "ffmpeg-path", ec.FFmpegPath, "ffmpeg binary ("+EnvFFmpegPath+")")
	fs.DurationVar(&ec.RecordingMaxDuration, "recording-max-duration", ec.RecordingMaxDuration, "Upper bound for a capture job ("+EnvRecordingMaxDuration+")")
	fs.BoolVar(&ec.RecordingAllowPrivateSources, "recording-allow-private-sources", ec.RecordingAllowPrivateSources, "Allow captures from loopback and private networks ("+EnvRecordingAllowPrivateSources+")")
	fs.StringVar(&ec.RecordingSourceAllowCIDRs, "recording-source-allow-cidrs", ec.RecordingSourceAllowCIDRs, "Comma-separated CIDRs capture sources must be in ("+EnvRecordingSourceAllowCIDRs+")")
	fs.StringVar(&ec.RecordingSourceDenyCIDRs, "recording-source-deny-cidrs", ec.RecordingSourceDenyCIDRs, "Comma-separated CIDRs capture sources must not be in ("+EnvRecordingSourceDenyCIDRs+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return ec.resolve()
}

func (ec envConfig) resolve() (Config, error) {
	mode, err := parseMode(ec.Mode)
	if err != nil {
		return Config{}, err
	}

	logFormatRaw := ec.LogFormat
	if strings.TrimSpace(logFormatRaw) == "" {
		logFormatRaw = defaultLogFormatForMode(mode)
	}
	logFormat, err := parseLogFormat(logFormatRaw)
	if err != nil {
		return Config{}, err
	}

	logLevelRaw := ec.LogLevel
	if strings.TrimSpace(logLevelRaw) == "" {
		logLevelRaw = defaultLogLevelForMode(mode)
	}
	logLevel, err := parseLogLevel(logLevelRaw)
	if err != nil {
		return Config{}, err
	}

	authMode, err := parseAuthMode(ec.AuthMode)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(ec.AllowedOrigins)
	if err != nil {
		return Config{}, err
	}

	publicBaseURL := strings.TrimRight(strings.TrimSpace(ec.PublicBaseURL), "/")
	if publicBaseURL != "" {
		u, err := url.Parse(publicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, fmt.Errorf("invalid %s %q (expected http(s)://host)", EnvPublicBaseURL, ec.PublicBaseURL)
		}
	}

	iceServers, err := ICESource{
		JSON:           ec.ICEServersJSON,
		STUNURLs:       ec.STUNURLs,
		TURNURLs:       ec.TURNURLs,
		TURNUsername:   ec.TURNUsername,
		TURNCredential: ec.TURNCredential,
		EphemeralTURN:  strings.TrimSpace(ec.TURNRESTSharedSecret) != "",
	}.Servers()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      strings.TrimSpace(ec.ListenAddr),
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: ec.ShutdownTimeout,
		Mode:            mode,

		AuthMode:  authMode,
		APIKey:    ec.APIKey,
		JWTSecret: ec.JWTSecret,

		SignalingAuthTimeout:          ec.SignalingAuthTimeout,
		SignalingWSIdleTimeout:        ec.SignalingWSIdleTimeout,
		SignalingWSPingInterval:       ec.SignalingWSPingInterval,
		MaxSignalingMessageBytes:      ec.MaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: ec.MaxSignalingMessagesPerSecond,

		MailboxMaxFrames:       ec.MailboxMaxFrames,
		MailboxMaxBytes:        ec.MailboxMaxBytes,
		MaxParticipantsPerRoom: ec.MaxParticipantsPerRoom,

		ICEServers: iceServers,
		TURNREST: TurnRESTConfig{
			SharedSecret:   strings.TrimSpace(ec.TURNRESTSharedSecret),
			TTLSeconds:     ec.TURNRESTTTLSeconds,
			UsernamePrefix: strings.TrimSpace(ec.TURNRESTUsernamePrefix),
		},

		StorePath: strings.TrimSpace(ec.StorePath),
		Recording: RecordingConfig{
			Bucket:      strings.TrimSpace(ec.RecordingBucket),
			URLTTL:      ec.RecordingURLTTL,
			Dir:         strings.TrimSpace(ec.RecordingDir),
			FFmpegPath:  strings.TrimSpace(ec.FFmpegPath),
			MaxDuration: ec.RecordingMaxDuration,

			AllowPrivateSources: ec.RecordingAllowPrivateSources,
			SourceAllowCIDRs:    strings.TrimSpace(ec.RecordingSourceAllowCIDRs),
			SourceDenyCIDRs:     strings.TrimSpace(ec.RecordingSourceDenyCIDRs),
		},
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%s must not be empty", EnvListenAddr)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvShutdownTimeout)
	}

	switch c.AuthMode {
	case AuthModeAPIKey:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvAPIKey, EnvAuthMode, AuthModeAPIKey)
		}
	case AuthModeJWT:
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvJWTSecret, EnvAuthMode, AuthModeJWT)
		}
	}

	if c.SignalingAuthTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvSignalingAuthTimeout)
	}
	if c.SignalingWSIdleTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvSignalingWSIdleTimeout)
	}
	if c.SignalingWSPingInterval <= 0 {
		return fmt.Errorf("%s must be > 0", EnvSignalingWSPingInterval)
	}
	if c.SignalingWSPingInterval >= c.SignalingWSIdleTimeout {
		return fmt.Errorf("%s (%s) must be less than %s (%s)", EnvSignalingWSPingInterval, c.SignalingWSPingInterval, EnvSignalingWSIdleTimeout, c.SignalingWSIdleTimeout)
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("%s must be > 0", EnvMaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be > 0", EnvMaxSignalingMessagesPerSecond)
	}
	if c.MailboxMaxFrames <= 0 {
		return fmt.Errorf("%s must be > 0", EnvMailboxMaxFrames)
	}
	if c.MailboxMaxBytes <= 0 {
		return fmt.Errorf("%s must be > 0", EnvMailboxMaxBytes)
	}
	if c.MaxParticipantsPerRoom < 0 {
		return fmt.Errorf("%s must be >= 0", EnvMaxParticipantsPerRoom)
	}

	if c.TURNREST.Enabled() {
		if c.TURNREST.TTLSeconds <= 0 {
			return fmt.Errorf("%s must be > 0", EnvTURNRESTTTLSeconds)
		}
		if c.TURNREST.UsernamePrefix == "" || strings.Contains(c.TURNREST.UsernamePrefix, ":") {
			return fmt.Errorf("%s must be non-empty and must not contain ':'", EnvTURNRESTUsernamePrefix)
		}
	}

	if c.Recording.URLTTL <= 0 || c.Recording.URLTTL > 7*24*time.Hour {
		// S3 presigned URLs are capped at seven days.
		return fmt.Errorf("%s must be within (0, 168h]", EnvRecordingURLTTL)
	}
	if c.Recording.MaxDuration <= 0 {
		return fmt.Errorf("%s must be > 0", EnvRecordingMaxDuration)
	}
	if c.Recording.FFmpegPath == "" {
		return fmt.Errorf("%s must not be empty", EnvFFmpegPath)
	}
	return nil
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

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
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
		return "", fmt.Errorf("invalid %s %q (expected %s, %s, or %s)", EnvAuthMode, raw, AuthModeNone, AuthModeAPIKey, AuthModeJWT)
	}
}

var errEmptyOrigin = errors.New("empty origin")

func parseAllowedOrigins(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvAllowedOrigins, raw, errEmptyOrigin)
		}
		if part == "*" {
			out = append(out, part)
			continue
		}
		normalized, _, ok := origin.NormalizeHeader(part)
		if !ok {
			return nil, fmt.Errorf("invalid %s entry %q (expected scheme://host[:port], null or *)", EnvAllowedOrigins, part)
		}
		out = append(out, normalized)
	}
	return out, nil
}
