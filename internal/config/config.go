// Package config loads the bot's configuration document and applies
// environment overrides on top of it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultPath         = "config.json"
	ExampleName         = "exampleconfig.json"
	defaultPrefixesPath = "prefixes.json"
	defaultLogDir       = "logs"
)

type Config struct {
	Token          string   `json:"token" env:"DISCORD_TOKEN"`
	OwnerID        string   `json:"owner_id" env:"OWNER_ID"`
	AutoLoad       []string `json:"auto_load" env:"AUTO_LOAD" envSeparator:","`
	UnsafeToExpose []string `json:"unsafe_to_expose" env:"UNSAFE_TO_EXPOSE" envSeparator:","`
	PrefixesPath   string   `json:"prefixes_path" env:"PREFIXES_PATH"`
	LogDir         string   `json:"log_dir" env:"LOG_DIR"`

	path string
	raw  map[string]any
}

// LoadEnv loads .env files into the process environment. A missing file is
// not an error; the caller decides whether to mention it.
func LoadEnv(files ...string) (bool, error) {
	err := godotenv.Load(files...)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to load env file: %w", err)
}

// Load reads the configuration document at path. When the document does not
// exist it is seeded from exampleconfig.json next to it, or treated as empty
// if there is no example either. Environment variables override document
// values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = seedFromExample(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{path: path, raw: map[string]any{}}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cfg.raw); err != nil {
			return nil, fmt.Errorf("invalid config document %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config document %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.PrefixesPath == "" {
		cfg.PrefixesPath = defaultPrefixesPath
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir
	}

	return cfg, nil
}

// Reload re-reads the document the config was loaded from.
func (c *Config) Reload() (*Config, error) {
	return Load(c.path)
}

// Path returns the document path.
func (c *Config) Path() string { return c.path }

// Value returns the string form of a top-level key. Known keys reflect
// environment overrides; anything else comes from the raw document.
func (c *Config) Value(key string) (string, bool) {
	switch key {
	case "token":
		return c.Token, c.Token != ""
	case "owner_id":
		return c.OwnerID, c.OwnerID != ""
	}
	v, ok := c.raw[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64, bool:
		return fmt.Sprint(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// Secrets returns the values of the unsafe_to_expose keys that are set.
func (c *Config) Secrets() []string {
	var out []string
	for _, key := range c.UnsafeToExpose {
		if v, ok := c.Value(key); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

func seedFromExample(path string) ([]byte, error) {
	example := filepath.Join(filepath.Dir(path), ExampleName)
	data, err := os.ReadFile(example)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to seed %s from %s: %w", path, example, err)
	}
	return data, nil
}
