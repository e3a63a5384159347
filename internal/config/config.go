// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.tidemark/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, embedder (gemini, ollama, openai via genkit)
//   - Storage: PostgreSQL connection (see storage.go), Redis tool cache
//   - Tools: base URLs and credentials for the four government data APIs
//   - Pulse: worker limits, timeouts, schedule cadence, top-changes bound
//   - Memory: the managed memory service endpoint used by the advisor
//   - Observability: OTLP trace export
//
// Security: sensitive fields (passwords, API keys) are masked in
// MarshalJSON and never logged.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultEmbedderModel is the default Gemini embedder model. Its output is
// truncated to 768 dimensions to match the pgvector schema; see
// knowledge.VectorDimension.
const DefaultEmbedderModel = "gemini-embedding-001"

// ToolsConfig holds the external tool API endpoints and credentials.
// Empty base URLs fall back to the public production endpoints.
type ToolsConfig struct {
	HTSBaseURL       string        `mapstructure:"hts_base_url" json:"hts_base_url"`
	CSLBaseURL       string        `mapstructure:"csl_base_url" json:"csl_base_url"`
	CSLAPIKey        string        `mapstructure:"csl_api_key" json:"csl_api_key"` // SENSITIVE: masked in MarshalJSON
	RefusalsBaseURL  string        `mapstructure:"refusals_base_url" json:"refusals_base_url"`
	RefusalsAuthUser string        `mapstructure:"refusals_auth_user" json:"refusals_auth_user"`
	RefusalsAuthKey  string        `mapstructure:"refusals_auth_key" json:"refusals_auth_key"` // SENSITIVE: masked in MarshalJSON
	RulingsBaseURL   string        `mapstructure:"rulings_base_url" json:"rulings_base_url"`
	CallTimeout      time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
}

// PulseConfig tunes the digest pipeline and its schedule.
type PulseConfig struct {
	// Clients lists the client ids run on the recurring schedule.
	Clients []string `mapstructure:"clients" json:"clients"`

	// Interval is the reporting cadence (e.g. 168h for weekly).
	Interval time.Duration `mapstructure:"interval" json:"interval"`

	// Workers bounds concurrent snapshot generations per run.
	Workers int `mapstructure:"workers" json:"workers"`

	// SnapshotTimeout bounds one snapshot generation end to end.
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout" json:"snapshot_timeout"`

	// TopChanges bounds the ranked changes carried in a digest.
	TopChanges int `mapstructure:"top_changes" json:"top_changes"`
}

// MemoryConfig points at the managed memory service used by the advisor.
// An empty base URL disables memory context entirely.
type MemoryConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	APIKey  string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
}

// ObservabilityConfig controls OTLP trace export.
type ObservabilityConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string  `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// RedisURL configures the tool result cache. Empty disables caching.
	RedisURL string `mapstructure:"redis_url" json:"redis_url"` // SENSITIVE: may embed credentials, masked in MarshalJSON

	// HTTP server bind address for serve mode.
	Addr string `mapstructure:"addr" json:"addr"`

	Tools         ToolsConfig         `mapstructure:"tools" json:"tools"`
	Pulse         PulseConfig         `mapstructure:"pulse" json:"pulse"`
	Memory        MemoryConfig        `mapstructure:"memory" json:"memory"`
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".tidemark")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "tidemark")
	viper.SetDefault("postgres_password", "tidemark_dev_password")
	viper.SetDefault("postgres_db_name", "tidemark")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("redis_url", "redis://localhost:6379/0")
	viper.SetDefault("addr", "127.0.0.1:3600")

	viper.SetDefault("tools.call_timeout", 10*time.Second)

	viper.SetDefault("pulse.interval", 7*24*time.Hour)
	viper.SetDefault("pulse.workers", 4)
	viper.SetDefault("pulse.snapshot_timeout", 30*time.Second)
	viper.SetDefault("pulse.top_changes", 10)

	viper.SetDefault("observability.endpoint", "")
	viper.SetDefault("observability.environment", "dev")
	viper.SetDefault("observability.service_name", "tidemark")
}

// bindEnvVariables binds sensitive environment variables explicitly.
// GEMINI_API_KEY is read directly by genkit, not via viper; it is only
// validated here.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("redis_url", "TIDEMARK_REDIS_URL")
	mustBind("tools.csl_api_key", "CSL_API_KEY")
	mustBind("tools.refusals_auth_user", "FDA_AUTH_USER")
	mustBind("tools.refusals_auth_key", "FDA_AUTH_KEY")
	mustBind("memory.base_url", "TIDEMARK_MEMORY_URL")
	mustBind("memory.api_key", "TIDEMARK_MEMORY_API_KEY")
	mustBind("observability.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// MarshalJSON masks sensitive fields so a config dump is always safe to log.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)

	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	if masked.RedisURL != "" {
		masked.RedisURL = "****"
	}
	if masked.Tools.CSLAPIKey != "" {
		masked.Tools.CSLAPIKey = "****"
	}
	if masked.Tools.RefusalsAuthKey != "" {
		masked.Tools.RefusalsAuthKey = "****"
	}
	if masked.Memory.APIKey != "" {
		masked.Memory.APIKey = "****"
	}
	return json.Marshal(masked)
}
