package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/chronodb/metasrv/internal/selector"
)

// Config represents the meta-service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Lease       LeaseConfig       `mapstructure:"lease"`
	Selector    SelectorConfig    `mapstructure:"selector"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Gossip      GossipConfig      `mapstructure:"gossip"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP and gRPC listener configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LeaseConfig represents lease lifetime configuration
type LeaseConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	EvictionGrace    time.Duration `mapstructure:"eviction_grace"`
	EvictionInterval time.Duration `mapstructure:"eviction_interval"`
}

// SelectorConfig represents placement strategy configuration
type SelectorConfig struct {
	Type            string            `mapstructure:"type"`
	DefaultReplicas int               `mapstructure:"default_replicas"`
	LoadWeights     LoadWeightsConfig `mapstructure:"load_weights"`
}

// LoadWeightsConfig represents LoadBased scoring weights
type LoadWeightsConfig struct {
	RegionCount      float64 `mapstructure:"region_count"`
	CPUUsage         float64 `mapstructure:"cpu_usage"`
	MemoryUsage      float64 `mapstructure:"memory_usage"`
	WriteBytesPerSec float64 `mapstructure:"write_bytes_per_sec"`
}

// DirectoryConfig represents peer directory backend configuration
type DirectoryConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig represents PostgreSQL connection configuration
type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// GossipConfig represents memberlist heartbeat ingestion configuration
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	NodeName       string        `mapstructure:"node_name"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
}

// RateLimiterConfig represents rate limiting configuration
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Directory backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// SelectorType returns the configured strategy. Only valid after Validate.
func (c SelectorConfig) SelectorType() selector.Type {
	return selector.Type(c.Type)
}

// Weights converts the configured weights for the scorer
func (c SelectorConfig) Weights() selector.LoadWeights {
	return selector.LoadWeights{
		RegionCount:      c.LoadWeights.RegionCount,
		CPUUsage:         c.LoadWeights.CPUUsage,
		MemoryUsage:      c.LoadWeights.MemoryUsage,
		WriteBytesPerSec: c.LoadWeights.WriteBytesPerSec,
	}
}

// Validate validates the configuration, filling in derived defaults
func (c *Config) Validate() error {
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validPort("server.grpc_port", c.Server.GRPCPort); err != nil {
		return err
	}

	if c.Lease.TTL <= 0 {
		return errors.New("lease.ttl must be positive")
	}
	if c.Lease.EvictionGrace < 0 {
		return errors.New("lease.eviction_grace must not be negative")
	}
	if c.Lease.EvictionInterval <= 0 {
		return errors.New("lease.eviction_interval must be positive")
	}

	if c.Selector.Type == "" {
		c.Selector.Type = selector.DefaultType.String()
	}
	if _, err := selector.ParseType(c.Selector.Type); err != nil {
		return err
	}
	if c.Selector.DefaultReplicas <= 0 {
		return errors.New("selector.default_replicas must be positive")
	}
	w := c.Selector.LoadWeights
	if w.RegionCount < 0 || w.CPUUsage < 0 || w.MemoryUsage < 0 || w.WriteBytesPerSec < 0 {
		return errors.New("selector.load_weights must not be negative")
	}

	switch c.Directory.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Directory.Postgres.Host == "" {
			return errors.New("directory.postgres.host is required")
		}
		if c.Directory.Postgres.Database == "" {
			return errors.New("directory.postgres.database is required")
		}
		if c.Directory.Postgres.User == "" {
			return errors.New("directory.postgres.user is required")
		}
	default:
		return fmt.Errorf("directory.backend must be one of: %s, %s", BackendMemory, BackendPostgres)
	}

	if c.Gossip.Enabled {
		if c.Gossip.NodeName == "" {
			return errors.New("gossip.node_name is required when gossip is enabled")
		}
		if err := validPort("gossip.bind_port", c.Gossip.BindPort); err != nil {
			return err
		}
		if c.Gossip.SyncInterval <= 0 {
			return errors.New("gossip.sync_interval must be positive")
		}
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return errors.New("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return errors.New("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if err := validPort("metrics.port", c.Metrics.Port); err != nil {
			return err
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", name)
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3002,
			GRPCPort:        3003,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Lease: LeaseConfig{
			TTL:              10 * time.Second,
			EvictionGrace:    60 * time.Second,
			EvictionInterval: 30 * time.Second,
		},
		Selector: SelectorConfig{
			Type:            selector.DefaultType.String(),
			DefaultReplicas: 1,
			LoadWeights: LoadWeightsConfig{
				RegionCount: 1.0,
			},
		},
		Directory: DirectoryConfig{
			Backend: BackendMemory,
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "metasrv",
				User:           "metasrv",
				MaxConnections: 20,
				MinConnections: 2,
			},
		},
		Gossip: GossipConfig{
			Enabled:        false,
			NodeName:       "metasrv-1",
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
			ProbeTimeout:   500 * time.Millisecond,
			ProbeInterval:  time.Second,
			SyncInterval:   3 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           false,
			RequestsPerSecond: 1000.0,
			BurstSize:         100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
