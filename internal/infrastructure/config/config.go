package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mshogin/reasonguard/internal/application/services"
	"github.com/mshogin/reasonguard/internal/domain/services/clustering"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig              `yaml:"server"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Agents      AgentsConfig              `yaml:"agents"`
	Embeddings  EmbeddingsConfig          `yaml:"embeddings"`
	Clustering  ClusteringConfig          `yaml:"clustering"`
	Gate        GateConfig                `yaml:"gate"`
	Storage     StorageConfig             `yaml:"storage"`
	Performance PerformanceConfig         `yaml:"performance"`
	Logging     LoggingConfig             `yaml:"logging"`
	Security    SecurityConfig            `yaml:"security"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProviderConfig contains LLM provider settings.
type ProviderConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Enabled      bool          `yaml:"enabled"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RateLimitRPS int           `yaml:"rate_limit_rps"` // 0 means unlimited
}

// AgentsConfig controls the persona agents of a task.
type AgentsConfig struct {
	Provider    string               `yaml:"provider"` // empty means detect from model
	Model       string               `yaml:"model"`
	Count       int                  `yaml:"count"`
	Temperature float64              `yaml:"temperature"`
	MaxTokens   int                  `yaml:"max_tokens"`
	Workers     int                  `yaml:"workers"`
	Roles       []services.AgentRole `yaml:"roles"`
	RolesFile   string               `yaml:"roles_file"`
	// Redaction is applied to prompts before they reach providers. The zero
	// value leaves prompts untouched.
	Redaction services.RedactorConfig `yaml:"redaction"`
}

// EmbeddingsConfig selects the embedding backend.
type EmbeddingsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Workers  int    `yaml:"workers"`
}

// ClusteringConfig mirrors clustering.Config.
type ClusteringConfig struct {
	EmbeddingThreshold float64 `yaml:"embedding_threshold"`
	TextThreshold      float64 `yaml:"text_threshold"`
	MergeMargin        float64 `yaml:"merge_margin"`
	MinClusterSize     int     `yaml:"min_cluster_size"`
	MinValidRuns       int     `yaml:"min_valid_runs"`
}

// ToClustering converts the section into the clusterer's config.
func (c ClusteringConfig) ToClustering() clustering.Config {
	return clustering.Config{
		EmbeddingThreshold: c.EmbeddingThreshold,
		TextThreshold:      c.TextThreshold,
		MergeMargin:        c.MergeMargin,
		MinClusterSize:     c.MinClusterSize,
		MinValidRuns:       c.MinValidRuns,
	}
}

// GateConfig contains execution gate settings.
type GateConfig struct {
	Strict bool `yaml:"strict"`
}

// StorageConfig selects where tasks are persisted.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite or memory
	Path   string `yaml:"path"`
}

// PerformanceConfig contains performance tuning settings.
type PerformanceConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TaskTimeout     time.Duration `yaml:"task_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	CORSEnabled bool     `yaml:"cors_enabled"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and fills defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Agents.RolesFile != "" && len(cfg.Agents.Roles) == 0 {
		roles, err := LoadRoles(cfg.Agents.RolesFile)
		if err != nil {
			return nil, err
		}
		cfg.Agents.Roles = roles
	}

	cfg.setDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if err := c.Clustering.ToClustering().Validate(); err != nil {
		return fmt.Errorf("invalid clustering config: %w", err)
	}

	if c.Agents.Count != 0 && (c.Agents.Count < services.MinAgents || c.Agents.Count > len(c.Agents.Roles)) {
		return fmt.Errorf("agents.count must be between %d and %d, got %d",
			services.MinAgents, len(c.Agents.Roles), c.Agents.Count)
	}
	if err := validateRoles(c.Agents.Roles); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver: %s (valid: sqlite, memory)", c.Storage.Driver)
	}

	if c.Agents.Redaction.MaxPromptLength < 0 {
		return fmt.Errorf("agents.redaction.max_prompt_length must not be negative")
	}

	if c.Embeddings.Enabled {
		if c.Embeddings.Model == "" {
			return fmt.Errorf("embeddings.model is required when embeddings are enabled")
		}
		if p, ok := c.Providers[c.Embeddings.Provider]; !ok || !p.Enabled {
			return fmt.Errorf("embeddings provider %q is not enabled", c.Embeddings.Provider)
		}
	}

	return nil
}

// EnabledProviders returns the names of enabled providers, sorted.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CanGenerate reports whether agents can be run: a model is set and at least
// one provider is enabled. Without it the server only analyzes stored runs.
func (c *Config) CanGenerate() bool {
	return c.Agents.Model != "" && len(c.EnabledProviders()) > 0
}

// GeneratorConfig builds the generator settings from the agents section.
func (c *Config) GeneratorConfig() services.GeneratorConfig {
	return services.GeneratorConfig{
		Provider:      c.Agents.Provider,
		Model:         c.Agents.Model,
		Temperature:   c.Agents.Temperature,
		MaxTokens:     c.Agents.MaxTokens,
		Workers:       c.Agents.Workers,
		DefaultAgents: c.Agents.Count,
		Roles:         c.Agents.Roles,
	}
}

// setDefaults sets default values for optional fields.
func (c *Config) setDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8001
	}

	// Provider defaults
	for name, provider := range c.Providers {
		if provider.Timeout == 0 {
			provider.Timeout = 30 * time.Second
		}
		if provider.MaxRetries == 0 {
			provider.MaxRetries = 3
		}
		c.Providers[name] = provider
	}

	// Agent defaults
	if len(c.Agents.Roles) == 0 {
		c.Agents.Roles = services.DefaultAgentRoles
	}
	if c.Agents.Temperature == 0 {
		c.Agents.Temperature = 0.7
	}
	if c.Agents.Workers == 0 {
		c.Agents.Workers = len(c.Agents.Roles)
	}

	// Embedding defaults
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "openai"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "text-embedding-3-small"
	}
	if c.Embeddings.Workers == 0 {
		c.Embeddings.Workers = 4
	}

	// Clustering defaults
	def := clustering.DefaultConfig()
	if c.Clustering.EmbeddingThreshold == 0 {
		c.Clustering.EmbeddingThreshold = def.EmbeddingThreshold
	}
	if c.Clustering.TextThreshold == 0 {
		c.Clustering.TextThreshold = def.TextThreshold
	}
	if c.Clustering.MergeMargin == 0 {
		c.Clustering.MergeMargin = def.MergeMargin
	}
	if c.Clustering.MinClusterSize == 0 {
		c.Clustering.MinClusterSize = def.MinClusterSize
	}
	if c.Clustering.MinValidRuns == 0 {
		c.Clustering.MinValidRuns = def.MinValidRuns
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "data/reasonguard.db"
	}

	// Performance defaults
	if c.Performance.ReadTimeout == 0 {
		c.Performance.ReadTimeout = 30 * time.Second
	}
	if c.Performance.WriteTimeout == 0 {
		c.Performance.WriteTimeout = 5 * time.Minute
	}
	if c.Performance.IdleTimeout == 0 {
		c.Performance.IdleTimeout = 60 * time.Second
	}
	if c.Performance.ShutdownTimeout == 0 {
		c.Performance.ShutdownTimeout = 30 * time.Second
	}
	if c.Performance.TaskTimeout == 0 {
		c.Performance.TaskTimeout = 4 * time.Minute
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// expandEnvVars replaces ${VAR} and $VAR with environment variable values.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}
