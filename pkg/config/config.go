// Package config provides configuration loading, validation, and ambient region resolution
// for the agentcore unified client. It handles JSON and TOML config files and
// environment variable substitution.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Service identities of the two planes.
const (
	ControlPlaneService = "bedrock-agentcore-control"
	DataPlaneService    = "bedrock-agentcore"
)

// Defaults.
const (
	DefaultRegion           = "us-west-2"
	DefaultEndpointTemplate = "https://{service}.{region}.amazonaws.com"
	DefaultTimeoutSeconds   = 60
	DefaultTokenEnv         = "AGENTCORE_TOKEN"
	DefaultProfile          = "default"
)

// Documentation pointers for each plane's operations.
const (
	ControlPlaneDocs = "https://boto3.amazonaws.com/v1/documentation/api/latest/reference/services/bedrock-agentcore-control.html"
	DataPlaneDocs    = "https://boto3.amazonaws.com/v1/documentation/api/latest/reference/services/bedrock-agentcore.html"
)

// PlaneEndpoints holds optional endpoint overrides per plane.
type PlaneEndpoints struct {
	Control string `json:"control,omitempty" toml:"control"`
	Data    string `json:"data,omitempty" toml:"data"`
}

// PlaneModels holds optional service model override files per plane.
type PlaneModels struct {
	Control string `json:"control,omitempty" toml:"control"`
	Data    string `json:"data,omitempty" toml:"data"`
}

// MetricsConfig controls the Prometheus exporter and query endpoint.
type MetricsConfig struct {
	ListenAddr    string `json:"listen_addr,omitempty" toml:"listen_addr"`       // e.g. ":9090"; empty disables /metrics
	PrometheusURL string `json:"prometheus_url,omitempty" toml:"prometheus_url"` // server queried by "stats"
}

// JournalConfig controls the SQLite call journal.
type JournalConfig struct {
	Path string `json:"path,omitempty" toml:"path"` // empty disables the journal
}

// Config is the client configuration.
type Config struct {
	Region         string         `json:"region,omitempty" toml:"region"`
	Profile        string         `json:"profile,omitempty" toml:"profile"`
	Endpoints      PlaneEndpoints `json:"endpoints" toml:"endpoints"`
	Models         PlaneModels    `json:"models" toml:"models"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" toml:"timeout_seconds"`
	TokenEnv       string         `json:"token_env,omitempty" toml:"token_env"`
	SecretsFile    string         `json:"secrets_file,omitempty" toml:"secrets_file"`
	Metrics        MetricsConfig  `json:"metrics" toml:"metrics"`
	Journal        JournalConfig  `json:"journal" toml:"journal"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns a configuration with defaults applied and no file backing it.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// Load reads a JSON (default) or TOML (".toml") config file, substitutes ${VAR}
// placeholders from the environment, applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1] // Remove ${ and }
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	var cfg Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if _, err := toml.Decode(dataStr, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		if err := json.Unmarshal([]byte(dataStr), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets AGENTCORE_* variables override file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTCORE_CONTROL_ENDPOINT"); v != "" {
		cfg.Endpoints.Control = v
	}
	if v := os.Getenv("AGENTCORE_DATA_ENDPOINT"); v != "" {
		cfg.Endpoints.Data = v
	}
	if v := os.Getenv("AGENTCORE_JOURNAL"); v != "" {
		cfg.Journal.Path = v
	}
}

// applyDefaults sets default values for missing configuration.
// Region is intentionally left empty so the dispatcher can apply its own resolution order.
func applyDefaults(cfg *Config) {
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = DefaultTokenEnv
	}
}

func validateConfig(cfg *Config) error {
	for name, endpoint := range map[string]string{"control": cfg.Endpoints.Control, "data": cfg.Endpoints.Data} {
		if endpoint == "" {
			continue
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s endpoint must be an absolute URL (got %q)", name, endpoint)
		}
	}
	for name, path := range map[string]string{"control": cfg.Models.Control, "data": cfg.Models.Data} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s service model %s: %w", name, path, err)
		}
	}
	return nil
}

// Timeout returns the per-request HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
