package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	LLM     LLMConfig     `koanf:"llm"`
	Session SessionConfig `koanf:"session"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Driver string       `koanf:"driver"` // sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // openai, gemini
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

type SessionConfig struct {
	Store  string        `koanf:"store"` // memory, badger
	Badger BadgerConfig  `koanf:"badger"`
	TTL    time.Duration `koanf:"ttl"`
}

type BadgerConfig struct {
	Path string `koanf:"path"`
}

// Load reads config.yaml when present and overlays NIDO_ environment
// variables, where a double underscore separates nesting levels
// (NIDO_LLM__API_KEY -> llm.api_key).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("NIDO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "NIDO_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.driver") {
		k.Set("storage.driver", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "nido.db")
	}
	if !k.Exists("llm.provider") {
		k.Set("llm.provider", "openai")
	}
	if !k.Exists("session.store") {
		k.Set("session.store", "memory")
	}
	if !k.Exists("session.ttl") {
		k.Set("session.ttl", "720h")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
