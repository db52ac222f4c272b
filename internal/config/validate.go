package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validate() []string {
	var errs []string

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}

	// transport and its channel
	ch := c.Channels
	switch c.Transport {
	case TransportTelegram:
		if ch.Telegram.APIID <= 0 {
			errs = append(errs, "channels.telegram.api_id is required (or TG_API_ID)")
		}
		if ch.Telegram.APIHash == "" {
			errs = append(errs, "channels.telegram.api_hash is required (or TG_API_HASH)")
		}
	case TransportTelebot:
		if ch.Telebot.Token == "" {
			errs = append(errs, "channels.telebot.token is required when transport is telebot")
		}
		if ch.Telebot.PollTimeout < 0 {
			errs = append(errs, "channels.telebot.poll_timeout must be non-negative")
		}
	case TransportDiscord:
		if ch.Discord.Token == "" {
			errs = append(errs, "channels.discord.token is required when transport is discord")
		}
	default:
		errs = append(errs, fmt.Sprintf("transport %q must be one of telegram, telebot, discord", c.Transport))
	}

	// session
	if c.Session.MaxAttempts < 0 {
		errs = append(errs, "session.max_attempts must be non-negative")
	}
	if c.Session.PromptTimeout < 0 {
		errs = append(errs, "session.prompt_timeout must be non-negative")
	}

	// dispatch
	if c.Dispatch.Workers < 0 {
		errs = append(errs, "dispatch.workers must be non-negative")
	}
	if c.Dispatch.QueueSize < 0 {
		errs = append(errs, "dispatch.queue_size must be non-negative")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, "kafka.topic is required when kafka.brokers is set")
	}
	if c.Webhook.Timeout < 0 {
		errs = append(errs, "webhook.timeout must be non-negative")
	}
	if c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0 {
		errs = append(errs, "heartbeat.interval must be positive when enabled")
	}

	return errs
}

// CheckUnknownFields walks the raw config map and returns paths of any keys
// that do not correspond to known Config struct fields.
func CheckUnknownFields(raw map[string]any) []string {
	result := checkUnknownFields(raw, reflect.TypeOf(Config{}), "")
	sort.Strings(result)
	return result
}

func checkUnknownFields(data map[string]any, t reflect.Type, prefix string) []string {
	t = derefType(t)
	if t.Kind() != reflect.Struct {
		return nil
	}

	known := fieldMap(t)
	var unknown []string
	for key, val := range data {
		ft, ok := known[strings.ToLower(key)]
		if !ok {
			unknown = append(unknown, joinPath(prefix, key))
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			unknown = append(unknown, checkUnknownFields(nested, ft, joinPath(prefix, key))...)
		}
	}
	return unknown
}

func fieldMap(t reflect.Type) map[string]reflect.Type {
	m := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			m[name] = f.Type
		}
	}
	return m
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
