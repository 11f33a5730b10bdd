package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks every configuration value and returns the first problem
// found, wrapped around a sentinel error for errors.Is checks.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidTopK, c.TopK, MaxTopK)
	}
	if c.MemoryWindow < 1 || c.MemoryWindow > MaxMemoryWindow {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidMemoryWindow, c.MemoryWindow, MaxMemoryWindow)
	}

	if c.GenerationTimeout < time.Second || c.GenerationTimeout > 5*time.Minute {
		return fmt.Errorf("%w: %s (must be 1s-5m)", ErrInvalidGenerationTimeout, c.GenerationTimeout)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}

// ValidateAuth checks the settings the identity provider needs. Separate
// from Validate because read-only commands (ingest) never touch auth.
func (c *Config) ValidateAuth() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: set FINSOLVE_JWT_SECRET", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("%w: need at least %d bytes", ErrWeakJWTSecret, MinJWTSecretLen)
	}
	return nil
}
