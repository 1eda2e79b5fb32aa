package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Plugins  PluginsConfig  `json:"plugins"`
	Events   EventsConfig   `json:"events"`
	Stream   StreamConfig   `json:"stream"`
	Watch    WatchConfig    `json:"watch"`
	Auth     AuthConfig     `json:"auth"`
	Database DatabaseConfig `json:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// PluginsConfig names where capability definitions and tracked projects
// live on disk.
type PluginsConfig struct {
	// Roots are directories containing plugin definitions, either dev
	// checkouts or versioned cache layouts.
	Roots []string `json:"roots"`

	// Projects are project directories whose .claude/changesets trees
	// hold tracked workflows.
	Projects []string `json:"projects"`
}

type EventsConfig struct {
	Capacity int `json:"capacity"`
}

type StreamConfig struct {
	HeartbeatSeconds int `json:"heartbeat_seconds"`
	QueueSize        int `json:"queue_size"`
}

type WatchConfig struct {
	PollMillis     int `json:"poll_millis"`
	DebounceMillis int `json:"debounce_millis"`
}

type AuthConfig struct {
	Mode      string `json:"mode"`
	TokenFile string `json:"token_file"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration usable without a config file, rooted
// at the user's home directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8420
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if len(c.Plugins.Roots) == 0 {
		c.Plugins.Roots = []string{
			filepath.Join(home, ".claude", "plugins"),
			filepath.Join(home, ".claude", "plugins", "cache"),
		}
	}
	if len(c.Plugins.Projects) == 0 {
		if cwd, err := os.Getwd(); err == nil {
			c.Plugins.Projects = []string{cwd}
		}
	}
	if c.Events.Capacity == 0 {
		c.Events.Capacity = 10000
	}
	if c.Stream.HeartbeatSeconds == 0 {
		c.Stream.HeartbeatSeconds = 15
	}
	if c.Stream.QueueSize == 0 {
		c.Stream.QueueSize = 64
	}
	if c.Watch.PollMillis == 0 {
		c.Watch.PollMillis = 1000
	}
	if c.Watch.DebounceMillis == 0 {
		c.Watch.DebounceMillis = 300
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "local"
	}
	if c.Auth.TokenFile == "" {
		c.Auth.TokenFile = filepath.Join(home, ".claude", "vaultscope.token")
	}
}

// PollInterval returns the watcher poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollMillis) * time.Millisecond
}

// DebounceWindow returns the watcher debounce window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Watch.DebounceMillis) * time.Millisecond
}

// HeartbeatInterval returns the SSE heartbeat interval.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Stream.HeartbeatSeconds) * time.Second
}
