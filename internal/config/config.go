// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (FINSOLVE_* / DATABASE_URL)
//  2. Config file (~/.finsolve/config.yaml)
//  3. Defaults
//
// Sensitive values (Postgres password, JWT secret) are never logged; see
// MarshalJSON. Validation lives in validation.go and reports sentinel errors
// usable with errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidMemoryWindow indicates the conversation window size is out of range.
	ErrInvalidMemoryWindow = errors.New("invalid memory window")

	// ErrInvalidGenerationTimeout indicates the generation timeout is out of range.
	ErrInvalidGenerationTimeout = errors.New("invalid generation timeout")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty or malformed.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrMissingJWTSecret indicates the token signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrWeakJWTSecret indicates the token signing secret is too short.
	ErrWeakJWTSecret = errors.New("JWT secret too short")
)

// Defaults applied when neither the environment nor the config file sets a
// value. The memory window is the conversation-history bound N; it is an
// operational parameter, deliberately configuration rather than a constant.
const (
	DefaultModelName         = "gemini-2.5-flash"
	DefaultEmbedderModel     = "gemini-embedding-001"
	DefaultTopK              = 5
	DefaultMemoryWindow      = 10
	DefaultGenerationTimeout = 30 * time.Second
	DefaultTokenTTL          = time.Hour
	DefaultHTTPAddr          = "127.0.0.1:8000"

	// MaxTopK bounds retrieval fan-out to keep prompt size predictable.
	MaxTopK = 20

	// MaxMemoryWindow bounds per-user history to prevent unbounded prompts.
	MaxMemoryWindow = 100

	// MinJWTSecretLen is the minimum accepted secret length for HS256.
	MinJWTSecretLen = 32
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON; update it when
// adding passwords, secrets, or tokens.
type Config struct {
	// Generation
	ModelName         string        `mapstructure:"model_name" json:"model_name"`
	EmbedderModel     string        `mapstructure:"embedder_model" json:"embedder_model"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout" json:"generation_timeout"`

	// Retrieval and memory
	TopK         int `mapstructure:"top_k" json:"top_k"`
	MemoryWindow int `mapstructure:"memory_window" json:"memory_window"`

	// Fragment store (PostgreSQL + pgvector)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// Identity provider
	AuthDBPath string        `mapstructure:"auth_db_path" json:"auth_db_path"`
	JWTSecret  string        `mapstructure:"jwt_secret" json:"jwt_secret"` // masked in MarshalJSON
	TokenTTL   time.Duration `mapstructure:"token_ttl" json:"token_ttl"`

	// HTTP API
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// MarshalJSON masks sensitive fields so the config can be logged safely.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	if masked.JWTSecret != "" {
		masked.JWTSecret = "****"
	}
	return json.Marshal(masked)
}

// Dir returns the configuration directory (~/.finsolve), creating it with
// restrictive permissions if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".finsolve")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Load reads configuration from defaults, the config file, and environment
// variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing file is fine: defaults plus env cover first run.
	}

	v.SetEnvPrefix("FINSOLVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("generation_timeout", DefaultGenerationTimeout)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("memory_window", DefaultMemoryWindow)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "finsolve")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "finsolve")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("auth_db_path", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", DefaultTokenTTL)

	v.SetDefault("http_addr", DefaultHTTPAddr)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// ResolveAuthDBPath returns the SQLite path for the user store, defaulting
// to <config dir>/users.db when unset.
func (c *Config) ResolveAuthDBPath() (string, error) {
	if c.AuthDBPath != "" {
		return c.AuthDBPath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "users.db"), nil
}
