// Package config loads the meta-service configuration from a YAML file and
// METASRV_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. METASRV_LEASE_TTL
const EnvPrefix = "METASRV"

// Load reads configuration from file and environment variables. A missing
// file is tolerated; defaults and environment values still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every default so AutomaticEnv can see each key
func setDefaults(v *viper.Viper, d *Config) {
	// Server defaults
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	// Lease defaults
	v.SetDefault("lease.ttl", d.Lease.TTL)
	v.SetDefault("lease.eviction_grace", d.Lease.EvictionGrace)
	v.SetDefault("lease.eviction_interval", d.Lease.EvictionInterval)

	// Selector defaults
	v.SetDefault("selector.type", d.Selector.Type)
	v.SetDefault("selector.default_replicas", d.Selector.DefaultReplicas)
	v.SetDefault("selector.load_weights.region_count", d.Selector.LoadWeights.RegionCount)
	v.SetDefault("selector.load_weights.cpu_usage", d.Selector.LoadWeights.CPUUsage)
	v.SetDefault("selector.load_weights.memory_usage", d.Selector.LoadWeights.MemoryUsage)
	v.SetDefault("selector.load_weights.write_bytes_per_sec", d.Selector.LoadWeights.WriteBytesPerSec)

	// Directory defaults
	v.SetDefault("directory.backend", d.Directory.Backend)
	v.SetDefault("directory.postgres.host", d.Directory.Postgres.Host)
	v.SetDefault("directory.postgres.port", d.Directory.Postgres.Port)
	v.SetDefault("directory.postgres.database", d.Directory.Postgres.Database)
	v.SetDefault("directory.postgres.user", d.Directory.Postgres.User)
	v.SetDefault("directory.postgres.password", d.Directory.Postgres.Password)
	v.SetDefault("directory.postgres.max_connections", d.Directory.Postgres.MaxConnections)
	v.SetDefault("directory.postgres.min_connections", d.Directory.Postgres.MinConnections)

	// Gossip defaults
	v.SetDefault("gossip.enabled", d.Gossip.Enabled)
	v.SetDefault("gossip.node_name", d.Gossip.NodeName)
	v.SetDefault("gossip.bind_port", d.Gossip.BindPort)
	v.SetDefault("gossip.seed_nodes", d.Gossip.SeedNodes)
	v.SetDefault("gossip.gossip_interval", d.Gossip.GossipInterval)
	v.SetDefault("gossip.probe_timeout", d.Gossip.ProbeTimeout)
	v.SetDefault("gossip.probe_interval", d.Gossip.ProbeInterval)
	v.SetDefault("gossip.sync_interval", d.Gossip.SyncInterval)

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", d.RateLimiter.Enabled)
	v.SetDefault("rate_limiter.requests_per_second", d.RateLimiter.RequestsPerSecond)
	v.SetDefault("rate_limiter.burst_size", d.RateLimiter.BurstSize)

	// Metrics defaults
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
