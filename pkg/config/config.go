package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConnectionName is used when connections are configured purely
// through DATASOURCE_TYPE / DATASOURCE_DSN.
const DefaultConnectionName = "default"

// Scoping strategies for tenant isolation of generated SQL.
const (
	ScopingClause      = "clause"
	ScopingPlaceholder = "placeholder"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var supportedConnectionTypes = map[string]bool{
	"postgres":  true,
	"sqlite":    true,
	"mysql":     true,
	"sqlserver": true,
}

// Config holds all configuration for ekaya-askdb.
// Configuration comes from a YAML file with environment variable overrides.
// Secrets (API keys, DSNs with passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Connections are the named stores the pipeline can target.
	Connections map[string]ConnectionConfig `yaml:"connections"`

	Oracle    OracleConfig    `yaml:"oracle"`
	Directory DirectoryConfig `yaml:"directory"`
	LLM       LLMConfig       `yaml:"llm"`
	Prompts   PromptsConfig   `yaml:"prompts"`
}

// ConnectionConfig describes one relational store.
type ConnectionConfig struct {
	// Type is one of postgres, sqlite, mysql, sqlserver.
	Type string `yaml:"type"`
	// DSN may be set inline for credential-free stores (e.g. a SQLite file).
	DSN string `yaml:"dsn"`
	// DSNEnv names an environment variable holding the DSN.
	DSNEnv string `yaml:"dsn_env"`
	// TenantSchemaPrefix marks schemas owned by a tenant: tenant_<id>.
	TenantSchemaPrefix string `yaml:"tenant_schema_prefix"`
	MaxConnections     int32  `yaml:"max_connections"`
}

// OracleConfig holds the question answering pipeline options.
type OracleConfig struct {
	// Connection selects the store questions are answered against.
	Connection string `yaml:"connection" env:"ASKDB_CONNECTION" env-default:"default"`
	// StrictMode enables the keyword blocklist for generated SQL.
	StrictMode bool `yaml:"strict_mode" env:"ASKDB_STRICT_MODE"`
	// MaxTablesBeforePerformingLookup is the catalog size at which the
	// relevance filter is consulted.
	MaxTablesBeforePerformingLookup int `yaml:"max_tables_before_performing_lookup" env:"ASKDB_MAX_TABLES_BEFORE_LOOKUP" env-default:"15"`
	// RequireTenant makes every question wait for a bound tenant.
	RequireTenant   bool   `yaml:"require_tenant" env:"ASKDB_REQUIRE_TENANT"`
	ScopingStrategy string `yaml:"scoping_strategy" env:"ASKDB_SCOPING_STRATEGY" env-default:"clause"`
	TenantColumn    string `yaml:"tenant_column" env:"ASKDB_TENANT_COLUMN" env-default:"company_id"`
	SecretKeyColumn string `yaml:"secret_key_column" env:"ASKDB_SECRET_KEY_COLUMN" env-default:"secret_key"`
	UserPlaceholder string `yaml:"user_placeholder" env:"ASKDB_USER_PLACEHOLDER" env-default:"{{user_id}}"`

	QueryMaxTokens    int           `yaml:"query_max_tokens" env:"ASKDB_QUERY_MAX_TOKENS" env-default:"100"`
	AnswerMaxTokens   int           `yaml:"answer_max_tokens" env:"ASKDB_ANSWER_MAX_TOKENS" env-default:"100"`
	AnswerTemperature float32       `yaml:"answer_temperature" env:"ASKDB_ANSWER_TEMPERATURE" env-default:"0.7"`
	CallTimeout       time.Duration `yaml:"call_timeout" env:"ASKDB_CALL_TIMEOUT" env-default:"30s"`
	MaxRetries        int           `yaml:"max_retries" env:"ASKDB_MAX_RETRIES" env-default:"2"`
}

// DirectoryConfig locates the tenant directory (secret keys and companies).
type DirectoryConfig struct {
	// Connection names the store holding the directory tables. Empty means
	// the same store as oracle.connection.
	Connection     string `yaml:"connection" env:"DIRECTORY_CONNECTION"`
	SecretKeyTable string `yaml:"secret_key_table" env:"DIRECTORY_SECRET_KEY_TABLE" env-default:"chat_bots"`
	CompaniesTable string `yaml:"companies_table" env:"DIRECTORY_COMPANIES_TABLE" env-default:"companies"`
	// MigrateOnStart applies the directory migrations when serving (postgres only).
	MigrateOnStart bool `yaml:"migrate_on_start" env:"DIRECTORY_MIGRATE_ON_START" env-default:"false"`
}

// LLMConfig selects the completion and chat backends.
type LLMConfig struct {
	Provider        string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL         string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	APIKey          string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	CompletionModel string `yaml:"completion_model" env:"LLM_COMPLETION_MODEL" env-default:"gpt-3.5-turbo-instruct"`
	ChatModel       string `yaml:"chat_model" env:"LLM_CHAT_MODEL" env-default:"gpt-4o-mini"`
}

// PromptsConfig points at optional prompt template overrides.
type PromptsConfig struct {
	File string `yaml:"file" env:"PROMPTS_FILE" env-default:""`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error: the configuration is then read from the
// environment alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{Version: version}
	// cleanenv applies env-default to any zero field, which would turn an
	// explicit "false" in YAML back into the default. Booleans that default
	// to true are seeded here instead.
	cfg.Oracle.StrictMode = true
	cfg.Oracle.RequireTenant = true

	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	cfg.applyEnvConnection()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvConnection adds the default connection from DATASOURCE_TYPE and
// DATASOURCE_DSN when the YAML file did not declare it.
func (c *Config) applyEnvConnection() {
	if _, ok := c.Connections[DefaultConnectionName]; ok {
		return
	}
	dsType := os.Getenv("DATASOURCE_TYPE")
	if dsType == "" {
		return
	}
	if c.Connections == nil {
		c.Connections = make(map[string]ConnectionConfig)
	}
	c.Connections[DefaultConnectionName] = ConnectionConfig{
		Type:   dsType,
		DSNEnv: "DATASOURCE_DSN",
	}
}

// Validate checks enums, ranges and connection references.
func (c *Config) Validate() error {
	if len(c.Connections) == 0 {
		return fmt.Errorf("no connections configured (set connections in YAML or DATASOURCE_TYPE/DATASOURCE_DSN)")
	}
	for _, name := range c.ConnectionNames() {
		conn := c.Connections[name]
		if !supportedConnectionTypes[conn.Type] {
			return fmt.Errorf("connection %q: unsupported type %q", name, conn.Type)
		}
	}
	if _, ok := c.Connections[c.Oracle.Connection]; !ok {
		return fmt.Errorf("oracle.connection %q is not a configured connection", c.Oracle.Connection)
	}
	if c.Directory.Connection != "" {
		if _, ok := c.Connections[c.Directory.Connection]; !ok {
			return fmt.Errorf("directory.connection %q is not a configured connection", c.Directory.Connection)
		}
	}

	switch c.Oracle.ScopingStrategy {
	case ScopingClause, ScopingPlaceholder:
	default:
		return fmt.Errorf("oracle.scoping_strategy must be %q or %q, got %q", ScopingClause, ScopingPlaceholder, c.Oracle.ScopingStrategy)
	}
	if c.Oracle.ScopingStrategy == ScopingPlaceholder && c.Oracle.UserPlaceholder == "" {
		return fmt.Errorf("oracle.user_placeholder is required for the placeholder strategy")
	}
	if c.Oracle.TenantColumn == "" {
		return fmt.Errorf("oracle.tenant_column must not be empty")
	}
	if c.Oracle.MaxTablesBeforePerformingLookup < 1 {
		return fmt.Errorf("oracle.max_tables_before_performing_lookup must be at least 1")
	}
	if c.Oracle.QueryMaxTokens < 1 || c.Oracle.AnswerMaxTokens < 1 {
		return fmt.Errorf("oracle token budgets must be positive")
	}
	if c.Oracle.AnswerTemperature < 0 || c.Oracle.AnswerTemperature > 2 {
		return fmt.Errorf("oracle.answer_temperature must be between 0 and 2")
	}
	if c.Oracle.CallTimeout <= 0 {
		return fmt.Errorf("oracle.call_timeout must be positive")
	}
	if c.Oracle.MaxRetries < 0 {
		return fmt.Errorf("oracle.max_retries must not be negative")
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.LLM.Provider)
	}
	return nil
}

// ConnectionNames returns the configured connection names in sorted order.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DirectoryConnection returns the name of the store holding the tenant directory.
func (c *Config) DirectoryConnection() string {
	if c.Directory.Connection != "" {
		return c.Directory.Connection
	}
	return c.Oracle.Connection
}

// ResolveDSN returns the DSN for the connection, reading DSNEnv when set.
func (cc ConnectionConfig) ResolveDSN() (string, error) {
	if cc.DSNEnv != "" {
		if v := os.Getenv(cc.DSNEnv); v != "" {
			return v, nil
		}
		if cc.DSN == "" {
			return "", fmt.Errorf("environment variable %s is not set", cc.DSNEnv)
		}
	}
	if cc.DSN == "" {
		return "", fmt.Errorf("connection has no dsn")
	}
	return cc.DSN, nil
}
