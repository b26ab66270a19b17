// Package config loads the relay's runtime configuration from environment
// variables and command-line flags (flags win).
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "SCREENHIVE_SIGNALING_LISTEN_ADDR"
	envVarMode            = "SCREENHIVE_SIGNALING_MODE"
	envVarLogFormat       = "SCREENHIVE_SIGNALING_LOG_FORMAT"
	envVarLogLevel        = "SCREENHIVE_SIGNALING_LOG_LEVEL"
	envVarShutdownTimeout = "SCREENHIVE_SIGNALING_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// WebSocket hardening knobs.
	envVarWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarMaxRoomMembers       = "MAX_ROOM_MEMBERS"

	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultMode            Mode = ModeDev

	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
)

// Mode selects environment-dependent defaults (log format/level, startup
// warnings).
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// defaultLogFormat is the handler format implied by the mode when neither the
// env var nor the flag picks one.
func (m Mode) defaultLogFormat() string {
	if m == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func (m Mode) defaultLogLevel() string {
	if m == ModeProd {
		return "info"
	}
	return "debug"
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins is the browser Origin allowlist. Empty means same-host
	// only.
	AllowedOrigins []string

	// WebSocket hardening.
	WSIdleTimeout        time.Duration
	WSPingInterval       time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// MaxRoomMembers caps members per room. 0 means unlimited.
	MaxRoomMembers int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

// env reads typed values from a lookup function so tests can feed maps
// instead of touching the process environment.
type env struct {
	lookup func(string) (string, bool)
}

func (e env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func (e env) integer(key string, fallback int) (int, error) {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func (e env) duration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	e := env{lookup: lookup}

	// The env mode steers log defaults even before flags are parsed; an
	// invalid value surfaces once parseMode runs on the final string.
	envMode, _ := parseMode(e.str(envVarMode, string(DefaultMode)))

	var (
		listenAddr        = e.str(envVarListenAddr, DefaultListenAddr)
		modeStr           = e.str(envVarMode, string(DefaultMode))
		logFormatStr      = e.str(envVarLogFormat, envMode.defaultLogFormat())
		logLevelStr       = e.str(envVarLogLevel, envMode.defaultLogLevel())
		allowedOriginsStr = e.str(envVarAllowedOrigins, "")
	)

	shutdownTimeout, err := e.duration(envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := e.duration(envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := e.duration(envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes, err := e.integer(envVarMaxMessageBytes, int(DefaultMaxMessageBytes))
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := e.integer(envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	maxRoomMembers, err := e.integer(envVarMaxRoomMembers, 0)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("screenhive-signaling-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "TCP listen address for the HTTP/WebSocket server")
	fs.StringVar(&modeStr, "mode", modeStr, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatStr, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "How long to wait for in-flight requests on shutdown (env "+envVarShutdownTimeout+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated browser Origin allowlist (env "+envVarAllowedOrigins+")")
	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close signaling websockets idle for this long (env "+envVarWSIdleTimeout+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "Interval between server pings (env "+envVarWSPingInterval+")")
	fs.IntVar(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound signaling message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-messages-per-second", maxMessagesPerSecond, "Per-connection inbound message rate limit (env "+envVarMaxMessagesPerSecond+")")
	fs.IntVar(&maxRoomMembers, "max-room-members", maxRoomMembers, "Maximum members per room, 0 = unlimited (env "+envVarMaxRoomMembers+")")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	switch {
	case maxMessageBytes <= 0:
		return Config{}, fmt.Errorf("max signaling message bytes must be positive, got %d", maxMessageBytes)
	case maxMessagesPerSecond <= 0:
		return Config{}, fmt.Errorf("max signaling messages per second must be positive, got %d", maxMessagesPerSecond)
	case wsPingInterval > 0 && wsIdleTimeout > 0 && wsPingInterval >= wsIdleTimeout:
		return Config{}, fmt.Errorf("ws ping interval (%s) must be shorter than the idle timeout (%s)", wsPingInterval, wsIdleTimeout)
	}

	return Config{
		ListenAddr:           listenAddr,
		Mode:                 mode,
		LogFormat:            logFormat,
		LogLevel:             logLevel,
		ShutdownTimeout:      shutdownTimeout,
		AllowedOrigins:       splitCommaList(allowedOriginsStr),
		WSIdleTimeout:        wsIdleTimeout,
		WSPingInterval:       wsPingInterval,
		MaxMessageBytes:      int64(maxMessageBytes),
		MaxMessagesPerSecond: maxMessagesPerSecond,
		MaxRoomMembers:       maxRoomMembers,
	}, nil
}

// NewLogger constructs the process logger from the loaded configuration.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	switch cfg.LogFormat {
	case LogFormatText:
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
}

func splitCommaList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	}
	return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	}
	return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
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
	}
	return 0, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
}
