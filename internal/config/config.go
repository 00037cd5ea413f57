// Package config loads the engine's layered YAML configuration: hardcoded
// defaults, then a user config, then a project config, then environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Scaling    ScalingConfig    `yaml:"scaling" json:"scaling"`
	Agent      AgentConfig      `yaml:"agent" json:"agent"`
	Tool       ToolConfig       `yaml:"tool" json:"tool"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// StoreConfig configures the Chunk Store (C1).
type StoreConfig struct {
	// Path is the SQLite database file. When empty, the CLI uses
	// .docquery/chunks.db under the working directory.
	Path          string `yaml:"path" json:"path"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// ChunkingConfig configures pkg/chunkspan defaults for load_buffer/
// update_buffer when the caller doesn't supply its own.
type ChunkingConfig struct {
	Strategy string `yaml:"strategy" json:"strategy"` // "fixed" or "paragraph"
	Size     int    `yaml:"size" json:"size"`          // bytes
	Overlap  int    `yaml:"overlap" json:"overlap"`    // bytes
}

// SearchConfig configures the Hybrid Searcher (C4) and its default query
// parameters.
type SearchConfig struct {
	RRFConstant      int     `yaml:"rrf_constant" json:"rrf_constant"`
	DefaultTopK      int     `yaml:"default_top_k" json:"default_top_k"`
	DefaultThreshold float64 `yaml:"default_threshold" json:"default_threshold"`
}

// EmbeddingsConfig configures the embedding provider (§6's embed(text)
// interface).
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // "static" = hash embedder; "", "anthropic", "openai" = Ollama
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
}

// ScalingConfig carries the Orchestrator's hard-coded fallback defaults
// (§4.11's last resolution step) and the global concurrency ceiling
// clamped on top of the Scaling Policy's tier recommendation. The tier
// table itself (internal/scaling) stays a pure function of chunk count,
// not something this config overrides.
type ScalingConfig struct {
	ConcurrencyCeiling int     `yaml:"concurrency_ceiling" json:"concurrency_ceiling"`
	DefaultSearchMode  string  `yaml:"default_search_mode" json:"default_search_mode"`
	DefaultBatchSize   int     `yaml:"default_batch_size" json:"default_batch_size"`
	DefaultThreshold   float64 `yaml:"default_threshold" json:"default_threshold"`
	DefaultTopK        int     `yaml:"default_top_k" json:"default_top_k"`
	DefaultMaxChunks   int     `yaml:"default_max_chunks" json:"default_max_chunks"`
	DefaultConcurrency int     `yaml:"default_concurrency" json:"default_concurrency"`
}

// AgentConfig configures the Planner, Extractor, and Synthesizer agents
// (C7-C9), each driven by the Agent Loop (C6) over the same provider.
type AgentConfig struct {
	Provider        string  `yaml:"provider" json:"provider"` // "openai" = OpenAI; "", "anthropic", "static" = Anthropic
	PlannerModel    string  `yaml:"planner_model" json:"planner_model"`
	ExtractorModel  string  `yaml:"extractor_model" json:"extractor_model"`
	SynthesizerModel string `yaml:"synthesizer_model" json:"synthesizer_model"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	MaxTokens       int64   `yaml:"max_tokens" json:"max_tokens"`
	MaxTurns        int     `yaml:"max_turns" json:"max_turns"`
}

// ToolConfig optionally tightens the Tool Executor's §4.5 hard caps.
// These values can only lower the package ceilings in
// internal/toolexec — they are never allowed to raise them.
type ToolConfig struct {
	MaxArgsPayloadBytes int `yaml:"max_args_payload_bytes" json:"max_args_payload_bytes"`
	MaxChunkIDs         int `yaml:"max_chunk_ids" json:"max_chunk_ids"`
	MaxTopK             int `yaml:"max_top_k" json:"max_top_k"`
	MaxRegexBytes       int `yaml:"max_regex_bytes" json:"max_regex_bytes"`
	MaxGrepContextLines int `yaml:"max_grep_context_lines" json:"max_grep_context_lines"`
}

// ServerConfig configures the MCP bridge transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"` // "stdio" only, for now
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// projectConfigName is the project-local config file, checked in the
// working directory.
const projectConfigName = ".docquery.yaml"

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Path:          "",
			SQLiteCacheMB: 64,
		},
		Chunking: ChunkingConfig{
			Strategy: "fixed",
			Size:     2048,
			Overlap:  256,
		},
		Search: SearchConfig{
			RRFConstant:      60,
			DefaultTopK:      20,
			DefaultThreshold: 0,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "",
			Model:      "",
			Dimensions: 0,
			BatchSize:  32,
		},
		Scaling: ScalingConfig{
			ConcurrencyCeiling: runtime.NumCPU() * 4,
			DefaultSearchMode:  "hybrid",
			DefaultBatchSize:   10,
			DefaultThreshold:   0,
			DefaultTopK:        0,
			DefaultMaxChunks:   0,
			DefaultConcurrency: 10,
		},
		Agent: AgentConfig{
			Provider:         "anthropic",
			PlannerModel:     "claude-haiku-4-5",
			ExtractorModel:   "claude-haiku-4-5",
			SynthesizerModel: "claude-sonnet-4-5",
			Temperature:      0.2,
			MaxTokens:        4096,
			MaxTurns:         10,
		},
		Tool: ToolConfig{},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// Load loads configuration for dir in order of increasing precedence:
// hardcoded defaults, user config (~/.config/docquery/config.yaml),
// project config (dir/.docquery.yaml), environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadProjectConfig(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetUserConfigPath returns the user/global configuration file path,
// following the XDG Base Directory spec.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docquery", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docquery", "config.yaml")
	}
	return filepath.Join(home, ".config", "docquery", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadProjectConfig(dir string) error {
	path := filepath.Join(dir, projectConfigName)
	if !fileExists(path) {
		return nil
	}
	return c.loadYAML(path)
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays other's non-zero fields onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}

	if other.Chunking.Strategy != "" {
		c.Chunking.Strategy = other.Chunking.Strategy
	}
	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.DefaultThreshold != 0 {
		c.Search.DefaultThreshold = other.Search.DefaultThreshold
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}

	if other.Scaling.ConcurrencyCeiling != 0 {
		c.Scaling.ConcurrencyCeiling = other.Scaling.ConcurrencyCeiling
	}
	if other.Scaling.DefaultSearchMode != "" {
		c.Scaling.DefaultSearchMode = other.Scaling.DefaultSearchMode
	}
	if other.Scaling.DefaultBatchSize != 0 {
		c.Scaling.DefaultBatchSize = other.Scaling.DefaultBatchSize
	}
	if other.Scaling.DefaultThreshold != 0 {
		c.Scaling.DefaultThreshold = other.Scaling.DefaultThreshold
	}
	if other.Scaling.DefaultTopK != 0 {
		c.Scaling.DefaultTopK = other.Scaling.DefaultTopK
	}
	if other.Scaling.DefaultMaxChunks != 0 {
		c.Scaling.DefaultMaxChunks = other.Scaling.DefaultMaxChunks
	}
	if other.Scaling.DefaultConcurrency != 0 {
		c.Scaling.DefaultConcurrency = other.Scaling.DefaultConcurrency
	}

	if other.Agent.Provider != "" {
		c.Agent.Provider = other.Agent.Provider
	}
	if other.Agent.PlannerModel != "" {
		c.Agent.PlannerModel = other.Agent.PlannerModel
	}
	if other.Agent.ExtractorModel != "" {
		c.Agent.ExtractorModel = other.Agent.ExtractorModel
	}
	if other.Agent.SynthesizerModel != "" {
		c.Agent.SynthesizerModel = other.Agent.SynthesizerModel
	}
	if other.Agent.Temperature != 0 {
		c.Agent.Temperature = other.Agent.Temperature
	}
	if other.Agent.MaxTokens != 0 {
		c.Agent.MaxTokens = other.Agent.MaxTokens
	}
	if other.Agent.MaxTurns != 0 {
		c.Agent.MaxTurns = other.Agent.MaxTurns
	}

	if other.Tool.MaxArgsPayloadBytes != 0 {
		c.Tool.MaxArgsPayloadBytes = other.Tool.MaxArgsPayloadBytes
	}
	if other.Tool.MaxChunkIDs != 0 {
		c.Tool.MaxChunkIDs = other.Tool.MaxChunkIDs
	}
	if other.Tool.MaxTopK != 0 {
		c.Tool.MaxTopK = other.Tool.MaxTopK
	}
	if other.Tool.MaxRegexBytes != 0 {
		c.Tool.MaxRegexBytes = other.Tool.MaxRegexBytes
	}
	if other.Tool.MaxGrepContextLines != 0 {
		c.Tool.MaxGrepContextLines = other.Tool.MaxGrepContextLines
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies DOCQUERY_* environment variable overrides,
// highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCQUERY_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DOCQUERY_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("DOCQUERY_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCQUERY_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCQUERY_AGENT_PROVIDER"); v != "" {
		c.Agent.Provider = v
	}
	if v := os.Getenv("DOCQUERY_CONCURRENCY_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scaling.ConcurrencyCeiling = n
		}
	}
	if v := os.Getenv("DOCQUERY_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate rejects an internally inconsistent configuration.
func (c *Config) Validate() error {
	if c.Chunking.Strategy != "fixed" && c.Chunking.Strategy != "paragraph" {
		return fmt.Errorf("chunking.strategy must be 'fixed' or 'paragraph', got %q", c.Chunking.Strategy)
	}
	if c.Chunking.Size < 0 {
		return fmt.Errorf("chunking.size must be non-negative, got %d", c.Chunking.Size)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultThreshold < 0 || c.Search.DefaultThreshold > 1 {
		return fmt.Errorf("search.default_threshold must be between 0 and 1, got %v", c.Search.DefaultThreshold)
	}

	validProviders := map[string]bool{"anthropic": true, "openai": true, "static": true, "": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'anthropic', 'openai', 'static', or empty, got %q", c.Embeddings.Provider)
	}
	if !validProviders[strings.ToLower(c.Agent.Provider)] {
		return fmt.Errorf("agent.provider must be 'anthropic', 'openai', 'static', or empty, got %q", c.Agent.Provider)
	}

	if c.Agent.Temperature < 0 {
		return fmt.Errorf("agent.temperature must be non-negative, got %v", c.Agent.Temperature)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %q", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}

	if math.IsNaN(c.Search.DefaultThreshold) {
		return fmt.Errorf("search.default_threshold must not be NaN")
	}
	return nil
}

// WriteYAML writes c to path as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
