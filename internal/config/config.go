// Package config provides application configuration management.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (REQLENS_* overrides, secrets)
//  2. Config file (./reqlens.yaml or ~/.reqlens/config.yaml)
//  3. Default values
//
// Sensitive data (tokens, passwords) is never logged; String() masks it.
// Validation is fail-fast: Load returns an error before any component
// sees a half-valid configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for Go-idiomatic checks with errors.Is().
var (
	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidModelName indicates the LLM model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model name is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidConfluenceURL indicates the Confluence base URL is malformed.
	ErrInvalidConfluenceURL = errors.New("invalid Confluence base URL")

	// ErrInvalidJiraURL indicates the Jira base URL is malformed.
	ErrInvalidJiraURL = errors.New("invalid Jira base URL")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidContextBudget indicates the context character budget is too small.
	ErrInvalidContextBudget = errors.New("invalid context character budget")
)

const (
	// DefaultModelName is the provider-qualified model used for semantic
	// compliance judgements.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbedderModel is the Gemini embedder for fragment vectors.
	// Output is truncated to 768 dimensions to match the pgvector schema.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultTopK is the number of context fragments retrieved per query.
	DefaultTopK = 5

	// DefaultContextBudget bounds retrieved context in characters.
	DefaultContextBudget = 16000
)

// Config stores application configuration.
type Config struct {
	// LLM configuration
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	// LLMTimeoutSec bounds a single semantic-analysis call. The
	// structural stage has no inherent timeout; only the LLM does.
	LLMTimeoutSec int `mapstructure:"llm_timeout_sec"`

	// Document store (Confluence) configuration
	ConfluenceBaseURL string `mapstructure:"confluence_base_url"`
	ConfluenceToken   string `mapstructure:"confluence_token"` // SENSITIVE

	// Issue tracker (Jira) configuration
	JiraBaseURL string `mapstructure:"jira_base_url"`
	JiraToken   string `mapstructure:"jira_token"` // SENSITIVE

	// Vector store (PostgreSQL + pgvector) configuration
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Retrieval configuration
	TopK          int `mapstructure:"top_k"`
	ContextBudget int `mapstructure:"context_budget"`

	// Rule and registry files
	RulesPath    string `mapstructure:"rules_path"`
	ServicesPath string `mapstructure:"services_path"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr"`

	// Observability (OTLP trace export; empty endpoint disables export)
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join(home, ".reqlens"))
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("llm_timeout_sec", 120)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "reqlens")
	viper.SetDefault("postgres_password", "reqlens_dev_password")
	viper.SetDefault("postgres_db_name", "reqlens")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("context_budget", DefaultContextBudget)

	viper.SetDefault("rules_path", "rules.json")
	viper.SetDefault("services_path", "services.json")

	viper.SetDefault("server_addr", "127.0.0.1:3500")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly. Secrets only
// arrive through the environment, never the config file in production.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("confluence_base_url", "REQLENS_CONFLUENCE_URL")
	mustBind("confluence_token", "CONFLUENCE_TOKEN")
	mustBind("jira_base_url", "REQLENS_JIRA_URL")
	mustBind("jira_token", "JIRA_TOKEN")
	mustBind("postgres_password", "REQLENS_POSTGRES_PASSWORD")
	mustBind("model_name", "REQLENS_MODEL_NAME")
	mustBind("server_addr", "REQLENS_SERVER_ADDR")
	mustBind("otlp_endpoint", "REQLENS_OTLP_ENDPOINT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
}

// Validate performs fail-fast checks on the configuration.
func (c *Config) Validate() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.ModelName == "" {
		return ErrInvalidModelName
	}
	if c.EmbedderModel == "" {
		return ErrInvalidEmbedderModel
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: %d (want 1-50)", ErrInvalidTopK, c.TopK)
	}
	if c.ContextBudget < 1000 {
		return fmt.Errorf("%w: %d (want >= 1000)", ErrInvalidContextBudget, c.ContextBudget)
	}
	if c.ConfluenceBaseURL != "" {
		if _, err := url.ParseRequestURI(c.ConfluenceBaseURL); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfluenceURL, err)
		}
	}
	if c.JiraBaseURL != "" {
		if _, err := url.ParseRequestURI(c.JiraBaseURL); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJiraURL, err)
		}
	}
	return nil
}

// PostgresURL returns the connection string in URL form, as expected by
// golang-migrate and pgxpool.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// String implements fmt.Stringer with sensitive fields masked.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{model=%s embedder=%s confluence=%s jira=%s postgres=%s:%d/%s top_k=%d}",
		c.ModelName, c.EmbedderModel,
		c.ConfluenceBaseURL, c.JiraBaseURL,
		c.PostgresHost, c.PostgresPort, c.PostgresDBName,
		c.TopK,
	)
}
