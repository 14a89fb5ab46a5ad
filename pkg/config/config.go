// Copyright 2025 Kadir Pekel
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

// Package config loads, defaults, and validates the session configuration.
// Values come from an optional YAML file with ${VAR} expansion, .env files,
// and the process environment; validation failures are fatal ConfigErrors.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a research session.
type Config struct {
	LLM           LLMConfig           `yaml:"llm" json:"llm"`
	Search        SearchConfig        `yaml:"search" json:"search"`
	Research      ResearchConfig      `yaml:"research" json:"research"`
	Context       ContextConfig       `yaml:"context" json:"context"`
	Store         StoreConfig         `yaml:"store" json:"store"`
	Vault         VaultConfig         `yaml:"vault" json:"vault"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// LLMConfig configures the OpenRouter-backed chat client.
type LLMConfig struct {
	// Model is the primary model slug (e.g. "openai/gpt-4o").
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// FastModel is used for compression work: context folding, note
	// condensation, fact extraction.
	FastModel string `yaml:"fast_model,omitempty" json:"fast_model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Temperature for generation (0.0 - 2.0).
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// ContextWindow is the model's input window, used for pre-send checks.
	ContextWindow int `yaml:"context_window,omitempty" json:"context_window,omitempty"`

	// Timeout per request in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries for transport-level retry on retryable status codes.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// RetryDelay is the base backoff delay in seconds.
	RetryDelay int `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
}

// GetTemperature returns the configured temperature or the default.
func (c *LLMConfig) GetTemperature() float64 {
	if c.Temperature == nil {
		return 0.7
	}
	return *c.Temperature
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "openai/gpt-4o"
	}
	if c.FastModel == "" {
		c.FastModel = "openai/gpt-4o-mini"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(EnvOpenRouterAPIKey)
	}
	if c.Host == "" {
		c.Host = "https://openrouter.ai/api/v1"
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 8192
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 128000
	}
	if c.Timeout == 0 {
		c.Timeout = 300
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return NewConfigError("llm", "api_key", "missing API key (set "+EnvOpenRouterAPIKey+")")
	}
	if t := c.GetTemperature(); t < 0 || t > 2 {
		return NewConfigError("llm", "temperature", "must be between 0 and 2")
	}
	return nil
}

// SearchConfig configures the Brave web search client.
type SearchConfig struct {
	APIKey     string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Host       string `yaml:"host,omitempty" json:"host,omitempty"`
	MaxResults int    `yaml:"max_results,omitempty" json:"max_results,omitempty"`
	Timeout    int    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryDelay int    `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(EnvBraveAPIKey)
	}
	if c.Host == "" {
		c.Host = "https://api.search.brave.com/res/v1"
	}
	if c.MaxResults == 0 {
		c.MaxResults = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 300
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 1
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.APIKey == "" {
		return NewConfigError("search", "api_key", "missing API key (set "+EnvBraveAPIKey+")")
	}
	return nil
}

// ResearchConfig bounds the research pipeline.
type ResearchConfig struct {
	// Mode selects the pipeline: "fast" runs one researcher per plan node,
	// "deep" adds the supervisor diffusion loop.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// MaxWorkers caps parallel search-node workers.
	MaxWorkers int `yaml:"max_workers,omitempty" json:"max_workers,omitempty"`

	// MaxParallelSubResearchers caps supervisor-triggered researchers in one turn.
	MaxParallelSubResearchers int `yaml:"max_parallel_sub_researchers,omitempty" json:"max_parallel_sub_researchers,omitempty"`

	// MaxSupervisorIterations bounds the diffusion loop.
	MaxSupervisorIterations int `yaml:"max_supervisor_iterations,omitempty" json:"max_supervisor_iterations,omitempty"`

	// MaxWorkerIterations bounds each sub-researcher's ReAct loop.
	MaxWorkerIterations int `yaml:"max_worker_iterations,omitempty" json:"max_worker_iterations,omitempty"`

	// WorkerTokenBudget is the per-worker token ceiling.
	WorkerTokenBudget int `yaml:"worker_token_budget,omitempty" json:"worker_token_budget,omitempty"`

	// NumPerspectives is how many viewpoints the planner generates.
	NumPerspectives int `yaml:"num_perspectives,omitempty" json:"num_perspectives,omitempty"`

	// WorkerTimeout per sub-researcher in seconds.
	WorkerTimeout int `yaml:"worker_timeout,omitempty" json:"worker_timeout,omitempty"`

	// SessionTimeout for the whole session in seconds; 0 disables it.
	SessionTimeout int `yaml:"session_timeout,omitempty" json:"session_timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *ResearchConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "deep"
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 3
	}
	if c.MaxParallelSubResearchers == 0 {
		c.MaxParallelSubResearchers = 3
	}
	if c.MaxSupervisorIterations == 0 {
		c.MaxSupervisorIterations = 15
	}
	if c.MaxWorkerIterations == 0 {
		c.MaxWorkerIterations = 10
	}
	if c.WorkerTokenBudget == 0 {
		c.WorkerTokenBudget = 50000
	}
	if c.NumPerspectives == 0 {
		c.NumPerspectives = 3
	}
	if c.WorkerTimeout == 0 {
		c.WorkerTimeout = 1800
	}
}

// Validate checks the research configuration.
func (c *ResearchConfig) Validate() error {
	if c.Mode != "fast" && c.Mode != "deep" {
		return NewConfigError("research", "mode", "must be \"fast\" or \"deep\"")
	}
	if c.MaxWorkers < 1 {
		return NewConfigError("research", "max_workers", "must be at least 1")
	}
	if c.MaxParallelSubResearchers < 1 {
		return NewConfigError("research", "max_parallel_sub_researchers", "must be at least 1")
	}
	return nil
}

// ContextConfig bounds per-agent context managers.
type ContextConfig struct {
	// WorkingMemorySize caps the number of retained interactions.
	WorkingMemorySize int `yaml:"working_memory_size,omitempty" json:"working_memory_size,omitempty"`

	// MaxTokens is the context token budget.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// FoldThreshold in (0, 1]: fold when usage crosses this fraction.
	FoldThreshold float64 `yaml:"fold_threshold,omitempty" json:"fold_threshold,omitempty"`

	// SummaryLevels is the number of hierarchical summary levels.
	SummaryLevels int `yaml:"summary_levels,omitempty" json:"summary_levels,omitempty"`
}

// SetDefaults applies default values.
func (c *ContextConfig) SetDefaults() {
	if c.WorkingMemorySize == 0 {
		c.WorkingMemorySize = 10
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 32000
	}
	if c.FoldThreshold == 0 {
		c.FoldThreshold = 0.75
	}
	if c.SummaryLevels == 0 {
		c.SummaryLevels = 3
	}
}

// Validate checks the context configuration.
func (c *ContextConfig) Validate() error {
	if c.FoldThreshold <= 0 || c.FoldThreshold > 1 {
		return NewConfigError("context", "fold_threshold", "must be in (0, 1]")
	}
	if c.SummaryLevels < 2 {
		return NewConfigError("context", "summary_levels", "must be at least 2")
	}
	return nil
}

// StoreConfig configures the file event store.
type StoreConfig struct {
	// Root directory holding one subdirectory per session.
	Root string `yaml:"root,omitempty" json:"root,omitempty"`

	// SnapshotEvery takes a snapshot when this many events accumulate past
	// the last one; 0 disables automatic snapshots.
	SnapshotEvery int `yaml:"snapshot_every,omitempty" json:"snapshot_every,omitempty"`
}

// SetDefaults applies default values.
func (c *StoreConfig) SetDefaults() {
	if c.Root == "" {
		c.Root = os.Getenv(EnvStoreRoot)
	}
	if c.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			c.Root = ".argus/sessions"
		} else {
			c.Root = filepath.Join(home, ".argus", "sessions")
		}
	}
	if c.SnapshotEvery == 0 {
		c.SnapshotEvery = 20
	}
}

// VaultConfig configures markdown report output.
type VaultConfig struct {
	// Dir receives one markdown file per completed session. Empty disables
	// vault output; reports still live in the event store.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// SetDefaults applies default values.
func (c *VaultConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = os.Getenv(EnvVaultDir)
	}
}

// LoggingConfig configures the slog-based logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// SetDefaults applies default values.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		if os.Getenv(EnvVerbose) == "true" {
			c.Level = "debug"
		} else {
			c.Level = "info"
		}
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// ObservabilityConfig enables tracing and metrics.
type ObservabilityConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	ServiceName string `yaml:"service_name,omitempty" json:"service_name,omitempty"`

	// Exporter selects the span exporter: "stdout" writes JSON spans to
	// TracePath, "otlp" ships them to a collector at Endpoint.
	Exporter  string `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	TracePath string `yaml:"trace_path,omitempty" json:"trace_path,omitempty"`

	// SamplingRate controls the fraction of traces sampled (0.0 - 1.0).
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`

	// MetricsPort exposes prometheus metrics on /metrics when > 0.
	MetricsPort int `yaml:"metrics_port,omitempty" json:"metrics_port,omitempty"`
}

// SetDefaults applies default values.
func (c *ObservabilityConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "argus"
	}
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.TracePath == "" {
		c.TracePath = "argus-trace.json"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
}

// Validate checks the observability section.
func (c *ObservabilityConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Exporter != "stdout" && c.Exporter != "otlp" {
		return NewConfigError("observability", "exporter", fmt.Sprintf("invalid exporter %q (valid: stdout, otlp)", c.Exporter))
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return NewConfigError("observability", "sampling_rate", fmt.Sprintf("must be between 0 and 1, got %g", c.SamplingRate))
	}
	return nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Search.SetDefaults()
	c.Research.SetDefaults()
	c.Context.SetDefaults()
	c.Store.SetDefaults()
	c.Vault.SetDefaults()
	c.Logging.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section; the first failure wins.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Research.Validate(); err != nil {
		return err
	}
	if err := c.Context.Validate(); err != nil {
		return err
	}
	if err := c.Observability.Validate(); err != nil {
		return err
	}
	return nil
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// DefaultLLMConfig returns an LLM configuration with defaults applied.
func DefaultLLMConfig() *LLMConfig {
	cfg := &LLMConfig{}
	cfg.SetDefaults()
	return cfg
}

// Load reads configuration from an optional YAML file, expands environment
// references, applies defaults, and validates. An empty path loads defaults
// plus environment only.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, NewConfigError("env", "", err.Error())
	}

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewConfigError("file", path, err.Error())
		}

		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, NewConfigError("file", path, "invalid YAML: "+err.Error())
		}

		expanded, err := yaml.Marshal(ExpandEnvVarsInData(raw))
		if err != nil {
			return nil, NewConfigError("file", path, err.Error())
		}
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, NewConfigError("file", path, err.Error())
		}
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
