package config

import (
	"path/filepath"
	"time"
)

// Transport names accepted by the transport key.
const (
	TransportTelegram = "telegram"
	TransportTelebot  = "telebot"
	TransportDiscord  = "discord"
)

// Config is the root configuration for heyu.
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Transport string          `mapstructure:"transport" yaml:"transport"`
	Channels  ChannelsConfig  `mapstructure:"channels" yaml:"channels"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Rules     RulesConfig     `mapstructure:"rules" yaml:"rules"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" yaml:"dispatch"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
	Kafka     KafkaConfig     `mapstructure:"kafka" yaml:"kafka"`
	Webhook   WebhookConfig   `mapstructure:"webhook" yaml:"webhook"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" yaml:"heartbeat"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// ChannelsConfig holds all transport configurations.
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Telebot  TelebotConfig  `mapstructure:"telebot" yaml:"telebot"`
	Discord  DiscordConfig  `mapstructure:"discord" yaml:"discord"`
}

// TelegramConfig holds the MTProto user-account settings.
// Session is an exported token used instead of the session store when set.
type TelegramConfig struct {
	APIID   int    `mapstructure:"api_id" yaml:"api_id"`
	APIHash string `mapstructure:"api_hash" yaml:"api_hash"`
	Session string `mapstructure:"session" yaml:"session"`
}

// TelebotConfig holds Telegram Bot API settings.
type TelebotConfig struct {
	Token       string        `mapstructure:"token" yaml:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	Intents int    `mapstructure:"intents" yaml:"intents"`
}

// SessionConfig controls how the session token is stored and how login prompts behave.
type SessionConfig struct {
	StorePath     string        `mapstructure:"store_path" yaml:"store_path"`
	SealKey       string        `mapstructure:"seal_key" yaml:"seal_key"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	PromptTimeout time.Duration `mapstructure:"prompt_timeout" yaml:"prompt_timeout"`
}

// RulesConfig points at the rule table. A missing file means the built-in table.
type RulesConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DispatchConfig holds dispatcher settings.
type DispatchConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// JournalConfig holds the match journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// KafkaConfig holds the brokers used by kafka actions.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

// WebhookConfig holds webhook action settings.
type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// HeartbeatConfig holds heartbeat service settings.
type HeartbeatConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log:       LogConfig{Level: "info"},
		Transport: TransportTelegram,
		Channels: ChannelsConfig{
			Telebot: TelebotConfig{PollTimeout: 10 * time.Second},
			Discord: DiscordConfig{Intents: 37377},
		},
		Session: SessionConfig{
			StorePath:     "~/.heyu/session",
			MaxAttempts:   3,
			PromptTimeout: 5 * time.Minute,
		},
		Rules:    RulesConfig{Path: "~/.heyu/rules.yaml"},
		Dispatch: DispatchConfig{Workers: 4, QueueSize: 64},
		Journal:  JournalConfig{Path: "~/.heyu/journal.db"},
		Webhook:  WebhookConfig{Timeout: 10 * time.Second},
		Heartbeat: HeartbeatConfig{
			Interval: 5 * time.Minute,
		},
	}
}

// SessionPath returns the expanded session store path.
func (c *Config) SessionPath() string { return expandHome(c.Session.StorePath) }

// RulesPath returns the expanded rule file path.
func (c *Config) RulesPath() string { return expandHome(c.Rules.Path) }

// JournalPath returns the expanded journal database path.
func (c *Config) JournalPath() string { return expandHome(c.Journal.Path) }

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
