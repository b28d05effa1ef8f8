package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/internal/storage"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// EnvironmentPublic disables the identity gate. Every other environment
// requires a verified access token.
const EnvironmentPublic = "public"

// Config is the top-level configuration for a Tollgate deployment.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Limiter   limiter.Config  `json:"limiter"`
	Storage   StorageConfig   `json:"storage"`
	Identity  IdentityConfig  `json:"identity"`
	Analytics AnalyticsConfig `json:"analytics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `json:"addr"`
	ClientIPHeader  string        `json:"client_ip_header"`
	Environment     string        `json:"environment"`
	Version         string        `json:"version"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// StorageConfig selects where limiter state and cached key sets live.
type StorageConfig struct {
	Backend string              `json:"backend"`
	Prefix  string              `json:"prefix"`
	Redis   storage.RedisConfig `json:"redis"`
}

// IdentityConfig configures access token verification.
type IdentityConfig struct {
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
	JWKSURL         string        `json:"jwks_url"` // Empty derives it from Issuer
	CacheTTL        time.Duration `json:"cache_ttl"`
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// AnalyticsConfig configures where request records go.
type AnalyticsConfig struct {
	Buffer      int           `json:"buffer"`
	RecordFile  string        `json:"record_file"`
	RedisStats  bool          `json:"redis_stats"`
	RedisPrefix string        `json:"redis_prefix"`
	RedisTTL    time.Duration `json:"redis_ttl"`
	TrackKeys   bool          `json:"track_keys"`
	// LiveStream exposes every record on /ws. Gated deployments require a
	// verified identity to subscribe.
	LiveStream bool `json:"live_stream"`
}

// Gated reports whether requests must carry a verified identity.
func (c Config) Gated() bool {
	return c.Server.Environment != EnvironmentPublic
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ClientIPHeader:  "CF-Connecting-IP",
			Environment:     EnvironmentPublic,
			Version:         "dev",
			ShutdownTimeout: 5 * time.Second,
		},
		Limiter: limiter.DefaultConfig(),
		Storage: StorageConfig{
			Backend: BackendMemory,
			Prefix:  "tollgate:",
			Redis: storage.RedisConfig{
				Host:        "localhost",
				Port:        6379,
				PoolSize:    20,
				MaxRetries:  3,
				DialTimeout: 5 * time.Second,
			},
		},
		Identity: IdentityConfig{
			CacheTTL:        time.Hour,
			RefreshInterval: 30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Buffer:      1024,
			RedisPrefix: "tollgate:stats",
			RedisTTL:    24 * time.Hour,
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ClientIPHeader == "" {
		return fmt.Errorf("server.client_ip_header is required")
	}
	if c.Server.Environment == "" {
		return fmt.Errorf("server.environment is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("limiter: %w", err)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		r := c.Storage.Redis
		if r.Cluster {
			if len(r.ClusterNodes) == 0 {
				return fmt.Errorf("storage.redis.cluster_nodes is required when cluster=true")
			}
		} else {
			if r.Host == "" {
				return fmt.Errorf("storage.redis.host is required")
			}
			if r.Port <= 0 {
				return fmt.Errorf("storage.redis.port must be positive, got %d", r.Port)
			}
		}
		if r.DialTimeout < 0 {
			return fmt.Errorf("storage.redis.dial_timeout must not be negative, got %s", r.DialTimeout)
		}
	default:
		return fmt.Errorf("unknown storage backend %q, must be one of: %s, %s", c.Storage.Backend, BackendMemory, BackendRedis)
	}

	if c.Gated() {
		if c.Identity.Issuer == "" {
			return fmt.Errorf("identity.issuer is required in environment %q", c.Server.Environment)
		}
		if c.Identity.Audience == "" {
			return fmt.Errorf("identity.audience is required in environment %q", c.Server.Environment)
		}
	}
	if c.Identity.CacheTTL < 0 {
		return fmt.Errorf("identity.cache_ttl must not be negative, got %s", c.Identity.CacheTTL)
	}
	if c.Identity.RefreshInterval < 0 {
		return fmt.Errorf("identity.refresh_interval must not be negative, got %s", c.Identity.RefreshInterval)
	}

	if c.Analytics.Buffer <= 0 {
		return fmt.Errorf("analytics.buffer must be positive, got %d", c.Analytics.Buffer)
	}
	if c.Analytics.RedisStats && c.Storage.Backend != BackendRedis {
		return fmt.Errorf("analytics.redis_stats requires the redis storage backend")
	}
	if c.Analytics.RedisTTL < 0 {
		return fmt.Errorf("analytics.redis_ttl must not be negative, got %s", c.Analytics.RedisTTL)
	}
	return nil
}

// LoadFile reads a JSON config file and merges it with defaults.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	// Use a raw intermediate struct to handle duration parsing.
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	if err := raw.merge(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// rawConfig is the JSON-friendly representation with string durations.
// Booleans are pointers so an explicit false can override a default.
type rawConfig struct {
	Server struct {
		Addr            string `json:"addr"`
		ClientIPHeader  string `json:"client_ip_header"`
		Environment     string `json:"environment"`
		Version         string `json:"version"`
		ShutdownTimeout string `json:"shutdown_timeout"`
	} `json:"server"`
	Limiter struct {
		Algorithm      string `json:"algorithm"`
		Cost           string `json:"cost"`
		Grace          string `json:"grace"`
		Capacity       int    `json:"capacity"`
		RefillAmount   int    `json:"refill_amount"`
		RefillInterval string `json:"refill_interval"`
		DenyWait       string `json:"deny_wait"`
		IdleTTL        string `json:"idle_ttl"`
		Shards         int    `json:"shards"`
	} `json:"limiter"`
	Storage struct {
		Backend string `json:"backend"`
		Prefix  string `json:"prefix"`
		Redis   struct {
			Host         string   `json:"host"`
			Port         int      `json:"port"`
			Password     string   `json:"password"`
			DB           int      `json:"db"`
			Cluster      *bool    `json:"cluster"`
			ClusterNodes []string `json:"cluster_nodes"`
			PoolSize     int      `json:"pool_size"`
			MaxRetries   int      `json:"max_retries"`
			DialTimeout  string   `json:"dial_timeout"`
		} `json:"redis"`
	} `json:"storage"`
	Identity struct {
		Issuer          string `json:"issuer"`
		Audience        string `json:"audience"`
		JWKSURL         string `json:"jwks_url"`
		CacheTTL        string `json:"cache_ttl"`
		RefreshInterval string `json:"refresh_interval"`
	} `json:"identity"`
	Analytics struct {
		Buffer      int    `json:"buffer"`
		RecordFile  string `json:"record_file"`
		RedisStats  *bool  `json:"redis_stats"`
		RedisPrefix string `json:"redis_prefix"`
		RedisTTL    string `json:"redis_ttl"`
		TrackKeys   *bool  `json:"track_keys"`
		LiveStream  *bool  `json:"live_stream"`
	} `json:"analytics"`
}

func (raw *rawConfig) merge(cfg *Config) error {
	setString(&cfg.Server.Addr, raw.Server.Addr)
	setString(&cfg.Server.ClientIPHeader, raw.Server.ClientIPHeader)
	setString(&cfg.Server.Environment, raw.Server.Environment)
	setString(&cfg.Server.Version, raw.Server.Version)

	if raw.Limiter.Algorithm != "" {
		cfg.Limiter.Algorithm = limiter.Algorithm(raw.Limiter.Algorithm)
	}
	setInt(&cfg.Limiter.Capacity, raw.Limiter.Capacity)
	setInt(&cfg.Limiter.RefillAmount, raw.Limiter.RefillAmount)
	setInt(&cfg.Limiter.Shards, raw.Limiter.Shards)

	setString(&cfg.Storage.Backend, raw.Storage.Backend)
	setString(&cfg.Storage.Prefix, raw.Storage.Prefix)
	r := raw.Storage.Redis
	setString(&cfg.Storage.Redis.Host, r.Host)
	setInt(&cfg.Storage.Redis.Port, r.Port)
	setString(&cfg.Storage.Redis.Password, r.Password)
	setInt(&cfg.Storage.Redis.DB, r.DB)
	setBool(&cfg.Storage.Redis.Cluster, r.Cluster)
	if len(r.ClusterNodes) > 0 {
		cfg.Storage.Redis.ClusterNodes = append([]string(nil), r.ClusterNodes...)
	}
	setInt(&cfg.Storage.Redis.PoolSize, r.PoolSize)
	setInt(&cfg.Storage.Redis.MaxRetries, r.MaxRetries)

	setString(&cfg.Identity.Issuer, raw.Identity.Issuer)
	setString(&cfg.Identity.Audience, raw.Identity.Audience)
	setString(&cfg.Identity.JWKSURL, raw.Identity.JWKSURL)

	setInt(&cfg.Analytics.Buffer, raw.Analytics.Buffer)
	setString(&cfg.Analytics.RecordFile, raw.Analytics.RecordFile)
	setBool(&cfg.Analytics.RedisStats, raw.Analytics.RedisStats)
	setString(&cfg.Analytics.RedisPrefix, raw.Analytics.RedisPrefix)
	setBool(&cfg.Analytics.TrackKeys, raw.Analytics.TrackKeys)
	setBool(&cfg.Analytics.LiveStream, raw.Analytics.LiveStream)

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"server.shutdown_timeout", raw.Server.ShutdownTimeout, &cfg.Server.ShutdownTimeout},
		{"limiter.cost", raw.Limiter.Cost, &cfg.Limiter.Cost},
		{"limiter.grace", raw.Limiter.Grace, &cfg.Limiter.Grace},
		{"limiter.refill_interval", raw.Limiter.RefillInterval, &cfg.Limiter.RefillInterval},
		{"limiter.deny_wait", raw.Limiter.DenyWait, &cfg.Limiter.DenyWait},
		{"limiter.idle_ttl", raw.Limiter.IdleTTL, &cfg.Limiter.IdleTTL},
		{"storage.redis.dial_timeout", r.DialTimeout, &cfg.Storage.Redis.DialTimeout},
		{"identity.cache_ttl", raw.Identity.CacheTTL, &cfg.Identity.CacheTTL},
		{"identity.refresh_interval", raw.Identity.RefreshInterval, &cfg.Identity.RefreshInterval},
		{"analytics.redis_ttl", raw.Analytics.RedisTTL, &cfg.Analytics.RedisTTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.field, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `{
  "server": {
    "addr": ":8080",
    "client_ip_header": "CF-Connecting-IP",
    "environment": "public",
    "shutdown_timeout": "5s"
  },
  "limiter": {
    "algorithm": "leaky_bucket_grace",
    "cost": "1s",
    "grace": "1s",
    "capacity": 5,
    "refill_amount": 1,
    "refill_interval": "1s",
    "idle_ttl": "10m"
  },
  "storage": {
    "backend": "memory",
    "prefix": "tollgate:",
    "redis": {
      "host": "localhost",
      "port": 6379,
      "pool_size": 20,
      "max_retries": 3,
      "dial_timeout": "5s"
    }
  },
  "identity": {
    "issuer": "",
    "audience": "",
    "cache_ttl": "1h",
    "refresh_interval": "30s"
  },
  "analytics": {
    "buffer": 1024,
    "record_file": "",
    "redis_stats": false,
    "redis_prefix": "tollgate:stats",
    "redis_ttl": "24h",
    "live_stream": false
  }
}
`
	return os.WriteFile(path, []byte(example), 0o644)
}
