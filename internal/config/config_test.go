package config

import (
	"log/slog"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q, want dev", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want text in dev mode", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug in dev mode", cfg.LogLevel)
	}
	if cfg.WSIdleTimeout != DefaultWSIdleTimeout {
		t.Errorf("WSIdleTimeout = %v, want %v", cfg.WSIdleTimeout, DefaultWSIdleTimeout)
	}
	if cfg.MaxMessageBytes != DefaultMaxMessageBytes {
		t.Errorf("MaxMessageBytes = %d, want %d", cfg.MaxMessageBytes, DefaultMaxMessageBytes)
	}
	if cfg.MaxRoomMembers != 0 {
		t.Errorf("MaxRoomMembers = %d, want 0 (unlimited)", cfg.MaxRoomMembers)
	}
}

func TestLoad_ProdModeDefaultsToJSONInfo(t *testing.T) {
	env := map[string]string{
		envVarMode: "prod",
	}
	cfg, err := load(lookupFrom(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want json in prod mode", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info in prod mode", cfg.LogLevel)
	}
}

func TestLoad_EnvValues(t *testing.T) {
	env := map[string]string{
		envVarListenAddr:           "0.0.0.0:9000",
		envVarAllowedOrigins:       "https://app.example.com, https://other.example.com",
		envVarWSIdleTimeout:        "90s",
		envVarWSPingInterval:       "30s",
		envVarMaxMessageBytes:      "1024",
		envVarMaxMessagesPerSecond: "10",
		envVarMaxRoomMembers:       "16",
	}
	cfg, err := load(lookupFrom(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://app.example.com" || cfg.AllowedOrigins[1] != "https://other.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.WSIdleTimeout != 90*time.Second || cfg.WSPingInterval != 30*time.Second {
		t.Errorf("WS timeouts = %v/%v", cfg.WSIdleTimeout, cfg.WSPingInterval)
	}
	if cfg.MaxMessageBytes != 1024 || cfg.MaxMessagesPerSecond != 10 || cfg.MaxRoomMembers != 16 {
		t.Errorf("limits = %d/%d/%d", cfg.MaxMessageBytes, cfg.MaxMessagesPerSecond, cfg.MaxRoomMembers)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := map[string]string{
		envVarListenAddr: "0.0.0.0:9000",
		envVarMode:       "prod",
	}
	cfg, err := load(lookupFrom(env), []string{"-listen-addr", "127.0.0.1:7000", "-mode", "dev"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Errorf("ListenAddr = %q, want flag value", cfg.ListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q, want dev from flag", cfg.Mode)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad mode", map[string]string{envVarMode: "staging"}, nil},
		{"bad log level", nil, []string{"-log-level", "verbose"}},
		{"bad log format", nil, []string{"-log-format", "xml"}},
		{"bad duration", map[string]string{envVarWSIdleTimeout: "soon"}, nil},
		{"bad int", map[string]string{envVarMaxRoomMembers: "many"}, nil},
		{"zero message bytes", nil, []string{"-max-message-bytes", "0"}},
		{"zero message rate", nil, []string{"-max-messages-per-second", "0"}},
		{"ping not shorter than idle", nil, []string{"-ws-ping-interval", "60s", "-ws-idle-timeout", "60s"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(lookupFrom(tc.env), tc.args); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
