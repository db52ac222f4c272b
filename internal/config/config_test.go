package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joebot/heyu/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport != config.TransportTelegram || cfg.Dispatch.Workers != 4 || cfg.Session.MaxAttempts != 3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Session.PromptTimeout != 5*time.Minute {
		t.Errorf("prompt timeout = %v", cfg.Session.PromptTimeout)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
transport: telebot
channels:
  telebot:
    token: "123:abc"
    poll_timeout: 30s
dispatch:
  workers: 8
kafka:
  brokers: [localhost:9092]
  topic: matches
`)
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport != "telebot" || cfg.Channels.Telebot.Token != "123:abc" {
		t.Errorf("file values not applied: %+v", cfg.Channels.Telebot)
	}
	if cfg.Channels.Telebot.PollTimeout != 30*time.Second {
		t.Errorf("poll timeout = %v", cfg.Channels.Telebot.PollTimeout)
	}
	if cfg.Dispatch.Workers != 8 || cfg.Dispatch.QueueSize != 64 {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Topic != "matches" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadReadsLegacyEnv(t *testing.T) {
	t.Setenv("TG_API_ID", "94575")
	t.Setenv("TG_API_HASH", "a3406de8d171bb422bb6ddf3bbd800e2")
	t.Setenv("HEYU_DISPATCH_WORKERS", "2")

	cfg, err := config.LoadFrom(writeFile(t, "channels:\n  telegram:\n    api_id: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Telegram.APIID != 94575 {
		t.Errorf("api_id = %d, env should win over the file", cfg.Channels.Telegram.APIID)
	}
	if cfg.Channels.Telegram.APIHash == "" || cfg.Dispatch.Workers != 2 {
		t.Errorf("env not applied: %+v %+v", cfg.Channels.Telegram, cfg.Dispatch)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsInvalid(t *testing.T) {
	cfg, err := config.LoadFrom(writeFile(t, `
log:
  level: loud
transport: telegram
dispatch:
  workers: -1
heartbeat:
  enabled: true
  interval: 0s
kafka:
  brokers: [localhost:9092]
`))
	if err != nil {
		t.Fatal(err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log.level", "api_id", "api_hash", "dispatch.workers", "heartbeat.interval", "kafka.topic"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateTransportTokens(t *testing.T) {
	for _, transport := range []string{config.TransportTelebot, config.TransportDiscord, "carrier-pigeon"} {
		cfg := config.DefaultConfig()
		cfg.Transport = transport
		if err := cfg.Validate(); err == nil {
			t.Errorf("transport %s without credentials should not validate", transport)
		}
	}
}

func TestCheckUnknownFields(t *testing.T) {
	unknown := config.CheckUnknownFields(map[string]any{
		"transport": "telegram",
		"agents":    map[string]any{"model": "x"},
		"channels": map[string]any{
			"telegram": map[string]any{"api_id": 1, "phone": "+1"},
		},
	})
	if len(unknown) != 2 || unknown[0] != "agents" || unknown[1] != "channels.telegram.phone" {
		t.Errorf("unknown = %v", unknown)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := config.DefaultConfig()
	cfg.Channels.Telegram.APIID = 42
	cfg.Channels.Telegram.APIHash = "hash"

	if err := config.SaveTo(cfg, path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %o, want 600", info.Mode().Perm())
	}

	loaded, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Channels.Telegram.APIID != 42 || loaded.Session.PromptTimeout != 5*time.Minute {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	for _, k := range []string{"TG_API_ID", "TG_API_HASH", "HEYU_CHANNELS_TELEGRAM_API_ID", "HEYU_CHANNELS_TELEGRAM_API_HASH", "HEYU_DISPATCH_WORKERS"} {
		t.Setenv(k, "")
	}
	t.Setenv("HEYU_LOG_LEVEL", "warn")

	cfgDir := t.TempDir()
	os.WriteFile(filepath.Join(cfgDir, ".env"), []byte("TG_API_ID=12345\nTG_API_HASH=fromdir\nHEYU_LOG_LEVEL=debug\n"), 0o600)
	workDir := t.TempDir()
	os.WriteFile(filepath.Join(workDir, ".env"), []byte("# local overrides\nTG_API_HASH=\"fromcwd\"\nHEYU_DISPATCH_WORKERS=2\n"), 0o600)
	prevDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(workDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(prevDir) })

	cfg, err := config.LoadFrom(filepath.Join(cfgDir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	tg := cfg.Channels.Telegram
	if tg.APIID != 12345 || tg.APIHash != "fromcwd" {
		t.Errorf("telegram = %+v, want id from config dir and hash from working dir", tg)
	}
	if cfg.Dispatch.Workers != 2 {
		t.Errorf("workers = %d", cfg.Dispatch.Workers)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, process environment must win over .env", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("credentials from .env should validate: %v", err)
	}
}
