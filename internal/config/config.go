// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the semroute YAML configuration.
//
// Configuration is resolved in layers: built-in defaults, then the YAML
// file named by CONFIG_PATH (default config.yaml), then environment
// overrides. Values absent from the file keep their defaults, so a
// minimal config with just model names is enough to run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	semrouteerrors "github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath names the environment variable that selects the
	// configuration file.
	EnvConfigPath = "CONFIG_PATH"

	// DefaultPath is used when EnvConfigPath is unset.
	DefaultPath = "config.yaml"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete semroute configuration.
type Config struct {
	Models         llm.ModelsConfig     `yaml:"models"`
	Server         ServerConfig         `yaml:"server"`
	EndpointClient EndpointClientConfig `yaml:"endpoint_client"`
	Analysis       AnalysisConfig       `yaml:"analysis"`
	Providers      ProvidersConfig      `yaml:"providers"`
	Tracing        TracingConfig        `yaml:"tracing"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	// Address is the bind address.
	// Default: 0.0.0.0
	Address string `yaml:"address"`

	// Port is the listen port.
	// Default: 50052
	Port int `yaml:"port"`
}

// ListenAddr returns the address in the form net.Listen expects.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// EndpointClientConfig configures the upstream endpoint catalog service.
type EndpointClientConfig struct {
	// DefaultAddress is the catalog address used when no --api override
	// is given.
	// Default: http://localhost:50053
	DefaultAddress string `yaml:"default_address"`
}

// AnalysisConfig tunes the sentence analysis pipeline.
type AnalysisConfig struct {
	// RetryAttempts is how many times an actionable run is retried when
	// endpoint matching finds nothing.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts"`

	// FallbackToGeneral routes an actionable sentence that still has no
	// endpoint after all retries to the general conversation handler
	// instead of failing the request.
	// Default: true
	FallbackToGeneral bool `yaml:"fallback_to_general"`
}

// ProvidersConfig selects and throttles the LLM vendor.
type ProvidersConfig struct {
	// Default is the provider used when no --provider flag is given.
	// Environment: SEMROUTE_PROVIDER
	// Default: cohere
	Default string `yaml:"default"`

	// RateLimitRPS caps outbound provider requests per second.
	// 0 disables client-side limiting.
	// Default: 2
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// TracingConfig configures the OpenTelemetry trace pipeline.
type TracingConfig struct {
	// Enabled activates tracing.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter is one of otlp-grpc, otlp-http, stdout.
	// Default: otlp-grpc
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP receiver address.
	// Default: localhost:4317
	Endpoint string `yaml:"endpoint"`

	// SampleRate is the fraction of analyses to trace (0.0 - 1.0).
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate"`

	// ServiceName identifies this service in traces.
	// Default: semroute
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the application version.
	ServiceVersion string `yaml:"service_version,omitempty"`
}

// Path returns the configuration file path: EnvConfigPath when set,
// DefaultPath otherwise.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// Default returns a Config with built-in defaults. Model names cover the
// three supported vendors so a fresh install works once an API key is
// present.
func Default() *Config {
	return &Config{
		Models: llm.ModelsConfig{
			SentenceToJSON: llm.ModelConfig{
				Cohere:      "command-r",
				Claude:      "claude-3-5-haiku-latest",
				Deepseek:    "deepseek-chat",
				Temperature: 0.0,
				MaxTokens:   1024,
			},
			FindEndpoint: llm.ModelConfig{
				Cohere:      "command-r",
				Claude:      "claude-3-5-haiku-latest",
				Deepseek:    "deepseek-chat",
				Temperature: 0.0,
				MaxTokens:   256,
			},
			SemanticMatch: llm.ModelConfig{
				Cohere:      "command-r",
				Claude:      "claude-3-5-haiku-latest",
				Deepseek:    "deepseek-chat",
				Temperature: 0.0,
				MaxTokens:   512,
			},
			Default: llm.ModelConfig{
				Cohere:      "command-r",
				Claude:      "claude-3-5-haiku-latest",
				Deepseek:    "deepseek-chat",
				Temperature: 0.3,
				MaxTokens:   1024,
			},
		},
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    50052,
		},
		EndpointClient: EndpointClientConfig{
			DefaultAddress: "http://localhost:50053",
		},
		Analysis: AnalysisConfig{
			RetryAttempts:     3,
			FallbackToGeneral: true,
		},
		Providers: ProvidersConfig{
			Default:      "cohere",
			RateLimitRPS: 2,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp-grpc",
			Endpoint:    "localhost:4317",
			SampleRate:  1.0,
			ServiceName: "semroute",
		},
	}
}

// Load reads configuration from the given path, layered over defaults
// and under environment overrides. An empty path resolves via Path().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = Path()
	}
	if err := cfg.loadFromFile(path); err != nil {
		return nil, &semrouteerrors.ConfigError{
			Key:    "config_file",
			Reason: fmt.Sprintf("failed to load from %s", path),
			Cause:  err,
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &semrouteerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but treats a missing file as an empty
// one: built-in defaults plus environment overrides. Commands use this so
// a fresh checkout works without running 'semroute config init' first.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = Default()
	cfg.loadFromEnv()
	if verr := cfg.Validate(); verr != nil {
		return nil, &semrouteerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  verr,
		}
	}
	return cfg, nil
}

// loadFromFile unmarshals the YAML file over the current values, so keys
// absent from the file keep their defaults.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyDefaults fills zero values whose zero is never a valid setting.
// Fields where zero is meaningful (rate_limit_rps, fallback_to_general,
// tracing.enabled) are left alone.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Server.Address == "" {
		c.Server.Address = defaults.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.EndpointClient.DefaultAddress == "" {
		c.EndpointClient.DefaultAddress = defaults.EndpointClient.DefaultAddress
	}
	if c.Analysis.RetryAttempts == 0 {
		c.Analysis.RetryAttempts = defaults.Analysis.RetryAttempts
	}
	if c.Providers.Default == "" {
		c.Providers.Default = defaults.Providers.Default
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = defaults.Tracing.Endpoint
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
}

// loadFromEnv applies environment overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("SEMROUTE_PROVIDER"); val != "" {
		c.Providers.Default = strings.ToLower(val)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.Address == "" {
		errs = append(errs, "server.address must not be empty")
	}

	if c.EndpointClient.DefaultAddress == "" {
		errs = append(errs, "endpoint_client.default_address must not be empty")
	}

	if c.Analysis.RetryAttempts < 1 {
		errs = append(errs, fmt.Sprintf("analysis.retry_attempts must be at least 1, got %d", c.Analysis.RetryAttempts))
	}

	validProviders := map[string]bool{"cohere": true, "claude": true, "deepseek": true}
	if !validProviders[c.Providers.Default] {
		errs = append(errs, fmt.Sprintf("providers.default must be one of [cohere, claude, deepseek], got %q", c.Providers.Default))
	}
	if c.Providers.RateLimitRPS < 0 {
		errs = append(errs, fmt.Sprintf("providers.rate_limit_rps must be non-negative, got %v", c.Providers.RateLimitRPS))
	}

	if c.Tracing.Enabled {
		validExporters := map[string]bool{"otlp-grpc": true, "otlp-http": true, "stdout": true}
		if !validExporters[c.Tracing.Exporter] {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [otlp-grpc, otlp-http, stdout], got %q", c.Tracing.Exporter))
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate))
		}
	}

	errs = append(errs, validateModels(c.Models)...)

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateModels checks each task block names at least one vendor model
// and carries a positive token ceiling.
func validateModels(m llm.ModelsConfig) []string {
	var errs []string

	blocks := []struct {
		key string
		cfg llm.ModelConfig
	}{
		{"sentence_to_json", m.SentenceToJSON},
		{"find_endpoint", m.FindEndpoint},
		{"semantic_match", m.SemanticMatch},
		{"default", m.Default},
	}

	for _, b := range blocks {
		if b.cfg.Cohere == "" && b.cfg.Claude == "" && b.cfg.Deepseek == "" {
			errs = append(errs, fmt.Sprintf("models.%s must name a model for at least one provider", b.key))
		}
		if b.cfg.MaxTokens == 0 {
			errs = append(errs, fmt.Sprintf("models.%s.max_tokens must be positive", b.key))
		}
		if b.cfg.Temperature < 0 || b.cfg.Temperature > 2 {
			errs = append(errs, fmt.Sprintf("models.%s.temperature must be between 0.0 and 2.0, got %v", b.key, b.cfg.Temperature))
		}
	}

	return errs
}
