package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides, e.g. HEYU_LOG_LEVEL.
const envPrefix = "HEYU"

// legacyEnv binds the variable names the bot has always read.
var legacyEnv = map[string]string{
	"channels.telegram.api_id":   "TG_API_ID",
	"channels.telegram.api_hash": "TG_API_HASH",
	"channels.telegram.session":  "TG_SESSION",
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(homeDir(), ".heyu", "config.yaml")
}

// dotEnvName is read next to the config file and in the working directory.
const dotEnvName = ".env"

// LoadFrom builds configuration from defaults, the file at path, .env files
// and the environment, in increasing precedence. Missing files are not an
// error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if err := setDefaults(v, cfg); err != nil {
		return cfg, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return cfg, fmt.Errorf("bind %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		}
	}

	dirs := []string{"."}
	if path != "" {
		dirs = []string{filepath.Dir(path), "."}
	}
	if err := mergeDotEnv(v, dirs...); err != nil {
		return cfg, err
	}

	if unknown := CheckUnknownFields(v.AllSettings()); len(unknown) > 0 {
		slog.Warn("unknown config keys ignored", "keys", strings.Join(unknown, ", "))
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("apply config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key of cfg so environment overrides apply to it.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	flatten("", raw, v.SetDefault)
	return nil
}

func flatten(prefix string, m map[string]any, set func(string, any)) {
	for k, val := range m {
		key := joinPath(prefix, k)
		if nested, ok := val.(map[string]any); ok {
			flatten(key, nested, set)
			continue
		}
		set(key, val)
	}
}

// mergeDotEnv applies KEY=value files found in dirs, later dirs winning.
// A variable already set in the process environment is left to it.
func mergeDotEnv(v *viper.Viper, dirs ...string) error {
	dot := viper.New()
	dot.SetConfigType("env")
	found := false
	for _, dir := range dirs {
		data, err := os.ReadFile(filepath.Join(dir, dotEnvName))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", dotEnvName, err)
		}
		if err := dot.MergeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("parse %s in %s: %w", dotEnvName, dir, err)
		}
		found = true
	}
	if !found {
		return nil
	}

	byEnv := make(map[string]string)
	for _, key := range v.AllKeys() {
		byEnv[envName(key)] = key
	}
	for key, legacy := range legacyEnv {
		byEnv[legacy] = key
	}

	for _, name := range dot.AllKeys() {
		key, ok := byEnv[strings.ToUpper(name)]
		if !ok {
			continue
		}
		if setInEnv(key) {
			continue
		}
		v.Set(key, dot.GetString(name))
	}
	return nil
}

func setInEnv(key string) bool {
	if os.Getenv(envName(key)) != "" {
		return true
	}
	legacy, ok := legacyEnv[key]
	return ok && os.Getenv(legacy) != ""
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// SaveTo writes configuration as YAML. The file may hold credentials, so it
// is readable by the owner only.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return home
}
