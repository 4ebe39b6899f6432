package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Lease.TTL)
	assert.Equal(t, selector.LeaseBased, cfg.Selector.SelectorType())
	assert.Equal(t, selector.DefaultWeights(), cfg.Selector.Weights())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	d := DefaultConfig()
	assert.Equal(t, d.Server, cfg.Server)
	assert.Equal(t, d.Lease, cfg.Lease)
	assert.Equal(t, d.Selector, cfg.Selector)
	assert.Equal(t, d.Directory, cfg.Directory)
	assert.Equal(t, d.Metrics, cfg.Metrics)
	assert.Equal(t, d.Logging, cfg.Logging)
	assert.False(t, cfg.Gossip.Enabled)
	assert.Empty(t, cfg.Gossip.SeedNodes)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
lease:
  ttl: 3s
selector:
  type: LoadBased
  default_replicas: 3
  load_weights:
    region_count: 0.5
    cpu_usage: 2
directory:
  backend: postgres
  postgres:
    host: db.internal
gossip:
  enabled: true
  seed_nodes: ["dn-1:7946", "dn-2:7946"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Lease.TTL)
	assert.Equal(t, 60*time.Second, cfg.Lease.EvictionGrace)
	assert.Equal(t, selector.LoadBased, cfg.Selector.SelectorType())
	assert.Equal(t, 3, cfg.Selector.DefaultReplicas)
	assert.Equal(t, selector.LoadWeights{RegionCount: 0.5, CPUUsage: 2}, cfg.Selector.Weights())
	assert.Equal(t, BackendPostgres, cfg.Directory.Backend)
	assert.Equal(t, "db.internal", cfg.Directory.Postgres.Host)
	assert.Equal(t, 5432, cfg.Directory.Postgres.Port)
	assert.True(t, cfg.Gossip.Enabled)
	assert.Equal(t, []string{"dn-1:7946", "dn-2:7946"}, cfg.Gossip.SeedNodes)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "lease:\n  ttl: 3s\n")
	t.Setenv("METASRV_LEASE_TTL", "7s")
	t.Setenv("METASRV_SELECTOR_TYPE", "LoadBased")
	t.Setenv("METASRV_SERVER_PORT", "8088")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.Lease.TTL)
	assert.Equal(t, selector.LoadBased, cfg.Selector.SelectorType())
	assert.Equal(t, 8088, cfg.Server.Port)
}

func TestLoad_UnsupportedSelectorTypeAborts(t *testing.T) {
	path := writeConfig(t, "selector:\n  type: leasebased\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, metaerrors.ErrUnsupportedSelectorType))
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "lease: [unterminated\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_EmptySelectorTypeDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Selector.Type = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, selector.LeaseBased, cfg.Selector.SelectorType())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.Lease.TTL = 0 }},
		{"negative ttl", func(c *Config) { c.Lease.TTL = -time.Second }},
		{"negative grace", func(c *Config) { c.Lease.EvictionGrace = -1 }},
		{"zero eviction interval", func(c *Config) { c.Lease.EvictionInterval = 0 }},
		{"bad http port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad grpc port", func(c *Config) { c.Server.GRPCPort = 0 }},
		{"unknown selector", func(c *Config) { c.Selector.Type = "Random" }},
		{"zero replicas", func(c *Config) { c.Selector.DefaultReplicas = 0 }},
		{"negative weight", func(c *Config) { c.Selector.LoadWeights.CPUUsage = -1 }},
		{"unknown backend", func(c *Config) { c.Directory.Backend = "etcd" }},
		{"postgres without host", func(c *Config) {
			c.Directory.Backend = BackendPostgres
			c.Directory.Postgres.Host = ""
		}},
		{"gossip without node name", func(c *Config) {
			c.Gossip.Enabled = true
			c.Gossip.NodeName = ""
		}},
		{"rate limiter without rate", func(c *Config) {
			c.RateLimiter.Enabled = true
			c.RateLimiter.RequestsPerSecond = 0
		}},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
