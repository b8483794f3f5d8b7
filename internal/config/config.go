// Package config handles agentmesh topology configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is indirected for tests.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order. An explicit
// path (from a -config flag) is checked first by FindConfig. Then:
// ./config.yaml, ~/.config/agentmesh/config.yaml, /config/config.yaml,
// /etc/agentmesh/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agentmesh", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // container convention
	paths = append(paths, "/etc/agentmesh/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches DefaultSearchPaths and returns the first
// that exists. Returns the path found, or an error if nothing was
// found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds the topology configuration for one AgentSystem process.
type Config struct {
	// SystemID is this system's identity within the topology and must
	// be unique among any systems that exchange remote traffic; Validate
	// rejects remote_observers entries that reuse it. The demo subject
	// and observer commands in cmd/agentmesh run under the fixed
	// demo.SubjectSystemID and demo.ObserverSystemID and do not read it.
	SystemID uint8 `yaml:"system_id"`

	// BindAddr is the publisher endpoint this system's dispatcher binds.
	// Expressed as an MQTT broker URL, e.g. "tcp://127.0.0.1:1883".
	BindAddr string `yaml:"bind_addr"`

	// InboxCapacity bounds the collector's inbox.
	InboxCapacity int `yaml:"inbox_capacity"`

	// RemoteObservers lists remote systems to subscribe to at startup,
	// config-time sugar for repeated AddRemoteObserver calls.
	RemoteObservers []RemoteObserverConfig `yaml:"remote_observers"`

	// LogLevel selects the slog level (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// RemoteObserverConfig names one remote system this process subscribes
// to at startup.
type RemoteObserverConfig struct {
	SystemID  uint8  `yaml:"system_id"`
	BrokerURL string `yaml:"broker_url"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${AGENTMESH_BROKER_URL}). A
	// convenience for container deployments; putting values directly in
	// the config file works just as well.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.InboxCapacity == 0 {
		c.InboxCapacity = 128
	}
	if c.BindAddr == "" {
		c.BindAddr = "tcp://127.0.0.1:1883"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.InboxCapacity < 1 {
		return fmt.Errorf("inbox_capacity %d must be at least 1", c.InboxCapacity)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	seen := map[uint8]bool{c.SystemID: true}
	for _, r := range c.RemoteObservers {
		if r.SystemID == c.SystemID {
			return fmt.Errorf("remote_observers: system_id %d collides with this system's own id", r.SystemID)
		}
		if seen[r.SystemID] {
			return fmt.Errorf("remote_observers: duplicate system_id %d", r.SystemID)
		}
		seen[r.SystemID] = true
		if r.BrokerURL == "" {
			return fmt.Errorf("remote_observers: system_id %d has an empty broker_url", r.SystemID)
		}
	}
	return nil
}

// Default returns a default configuration for local single-process
// development. All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
