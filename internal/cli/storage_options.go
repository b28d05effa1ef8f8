package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/config"
)

type storageOptions struct {
	backend           string
	prefix            string
	redisHost         string
	redisPort         int
	redisPassword     string
	redisDB           int
	redisCluster      bool
	redisClusterNodes []string
	redisPoolSize     int
	redisMaxRetries   int
	redisDialTimeout  time.Duration
}

func (o *storageOptions) addFlags(cmd *cobra.Command) {
	def := config.Default().Storage
	cmd.Flags().StringVar(&o.backend, "storage", def.Backend, "storage backend (memory, redis)")
	cmd.Flags().StringVar(&o.prefix, "storage-prefix", def.Prefix, "key prefix for shared storage")
	cmd.Flags().StringVar(&o.redisHost, "redis-host", def.Redis.Host, "redis host (or host:port)")
	cmd.Flags().IntVar(&o.redisPort, "redis-port", def.Redis.Port, "redis port")
	cmd.Flags().StringVar(&o.redisPassword, "redis-password", "", "redis password")
	cmd.Flags().IntVar(&o.redisDB, "redis-db", 0, "redis database index")
	cmd.Flags().BoolVar(&o.redisCluster, "redis-cluster", false, "enable redis cluster mode")
	cmd.Flags().StringSliceVar(&o.redisClusterNodes, "redis-cluster-nodes", nil, "redis cluster nodes host:port list")
	cmd.Flags().IntVar(&o.redisPoolSize, "redis-pool-size", def.Redis.PoolSize, "redis connection pool size")
	cmd.Flags().IntVar(&o.redisMaxRetries, "redis-max-retries", def.Redis.MaxRetries, "redis max retries")
	cmd.Flags().DurationVar(&o.redisDialTimeout, "redis-dial-timeout", def.Redis.DialTimeout, "redis dial timeout")
}

// apply overrides cfg with every flag the user set explicitly, then splits a
// host:port redis host.
func (o *storageOptions) apply(cmd *cobra.Command, cfg *config.StorageConfig) error {
	f := cmd.Flags()
	if f.Changed("storage") {
		cfg.Backend = o.backend
	}
	if f.Changed("storage-prefix") {
		cfg.Prefix = o.prefix
	}
	if f.Changed("redis-host") {
		cfg.Redis.Host = o.redisHost
	}
	if f.Changed("redis-port") {
		cfg.Redis.Port = o.redisPort
	}
	if f.Changed("redis-password") {
		cfg.Redis.Password = o.redisPassword
	}
	if f.Changed("redis-db") {
		cfg.Redis.DB = o.redisDB
	}
	if f.Changed("redis-cluster") {
		cfg.Redis.Cluster = o.redisCluster
	}
	if f.Changed("redis-cluster-nodes") {
		cfg.Redis.ClusterNodes = append([]string(nil), o.redisClusterNodes...)
	}
	if f.Changed("redis-pool-size") {
		cfg.Redis.PoolSize = o.redisPoolSize
	}
	if f.Changed("redis-max-retries") {
		cfg.Redis.MaxRetries = o.redisMaxRetries
	}
	if f.Changed("redis-dial-timeout") {
		cfg.Redis.DialTimeout = o.redisDialTimeout
	}

	if cfg.Backend != config.BackendRedis || cfg.Redis.Cluster {
		return nil
	}
	host, port, err := normalizeRedisHostPort(cfg.Redis.Host, cfg.Redis.Port)
	if err != nil {
		return err
	}
	cfg.Redis.Host = host
	cfg.Redis.Port = port
	return nil
}

func normalizeRedisHostPort(host string, port int) (string, int, error) {
	if strings.Contains(host, ":") {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --redis-host value %q: %w", host, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redis port in --redis-host %q: %w", host, err)
		}
		host = h
		port = n
	}

	if host == "" {
		return "", 0, fmt.Errorf("redis host cannot be empty")
	}
	if port <= 0 {
		return "", 0, fmt.Errorf("redis port must be positive, got %d", port)
	}

	return host, port, nil
}
