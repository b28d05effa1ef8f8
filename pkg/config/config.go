package config

import internalconfig "github.com/SmitUplenchwar2687/Tollgate/internal/config"

// Config is the top-level configuration for a Tollgate deployment.
type Config = internalconfig.Config

// ServerConfig holds HTTP server settings.
type ServerConfig = internalconfig.ServerConfig

// StorageConfig selects where limiter and cache state is kept.
type StorageConfig = internalconfig.StorageConfig

// IdentityConfig configures access token verification.
type IdentityConfig = internalconfig.IdentityConfig

// AnalyticsConfig configures where analytics records go.
type AnalyticsConfig = internalconfig.AnalyticsConfig

// Default returns a Config with sensible defaults.
func Default() Config {
	return internalconfig.Default()
}

// LoadFile reads a JSON config file and merges it with defaults.
func LoadFile(path string) (Config, error) {
	return internalconfig.LoadFile(path)
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	return internalconfig.WriteExample(path)
}
