// Package config loads shardctl's runtime configuration from a YAML file,
// with environment variables overriding individual keys. It mirrors the
// shape of controlplane.Config but is serializable, so it can be handed to
// the CLI's bootstrap/join subcommands instead of being assembled flag by
// flag.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk/env-overridable configuration for one master node.
type Config struct {
	NodeID   string `yaml:"node_id"`
	BindAddr string `yaml:"bind_addr"`
	APIAddr  string `yaml:"api_addr"`
	DataDir  string `yaml:"data_dir"`

	ClusterInfo ClusterInfoConfig `yaml:"cluster_info"`
	Routing     RoutingConfig     `yaml:"cluster_routing"`
	Indexing    IndexingConfig    `yaml:"indexing_pressure"`
	ThreadPool  ThreadPoolConfig  `yaml:"thread_pool"`

	RebalanceEnabled bool `yaml:"rebalance_enabled"`
}

// ClusterInfoConfig corresponds to the cluster.info.update.* keys.
type ClusterInfoConfig struct {
	UpdateInterval time.Duration `yaml:"update_interval"`
	UpdateTimeout  time.Duration `yaml:"update_timeout"`
}

// RoutingConfig corresponds to the cluster.routing.allocation.* keys.
type RoutingConfig struct {
	DiskThresholdEnabled bool    `yaml:"disk_threshold_enabled"`
	DiskLowWatermark     float64 `yaml:"disk_low_watermark"`
	DiskFloodWatermark   float64 `yaml:"disk_flood_watermark"`
}

// IndexingConfig corresponds to the indexing_pressure.* keys.
type IndexingConfig struct {
	MemoryLimit          int64 `yaml:"memory_limit"`
	PrimaryMemoryLimit   int64 `yaml:"primary_memory_limit"`
	ReplicaMemoryLimit   int64 `yaml:"replica_memory_limit"`
	CoordinatingMemLimit int64 `yaml:"coordinating_memory_limit"`
}

// ThreadPoolConfig corresponds to the thread_pool.write.* keys.
type ThreadPoolConfig struct {
	WriteQueueSize int `yaml:"write_queue_size"` // -1 means unbounded
}

// defaults mirrors spec.md §6's enumerated defaults.
func defaults() Config {
	return Config{
		ClusterInfo: ClusterInfoConfig{
			UpdateInterval: 30 * time.Second,
			UpdateTimeout:  15 * time.Second,
		},
		Routing: RoutingConfig{
			DiskThresholdEnabled: true,
			DiskLowWatermark:     0.85,
			DiskFloodWatermark:   0.95,
		},
		Indexing: IndexingConfig{
			MemoryLimit: 100 * 1024 * 1024, // 10% of a 1GiB heap equivalent
		},
		ThreadPool: ThreadPoolConfig{
			WriteQueueSize: 200,
		},
	}
}

// Load reads a YAML config file at path, applies environment overrides, then
// validates the result. An empty path returns defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHARDCTL_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("SHARDCTL_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("SHARDCTL_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("SHARDCTL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SHARDCTL_CLUSTER_INFO_UPDATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ClusterInfo.UpdateInterval = d
		}
	}
	if v := os.Getenv("SHARDCTL_CLUSTER_INFO_UPDATE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ClusterInfo.UpdateTimeout = d
		}
	}
	if v := os.Getenv("SHARDCTL_DISK_THRESHOLD_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Routing.DiskThresholdEnabled = b
		}
	}
	if v := os.Getenv("SHARDCTL_INDEXING_MEMORY_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexing.MemoryLimit = n
		}
	}
	if v := os.Getenv("SHARDCTL_WRITE_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ThreadPool.WriteQueueSize = n
		}
	}
}

func (c *Config) validate() error {
	if c.ClusterInfo.UpdateInterval != 0 && c.ClusterInfo.UpdateInterval < 10*time.Second {
		return fmt.Errorf("cluster_info.update_interval must be at least 10s, got %s", c.ClusterInfo.UpdateInterval)
	}
	if c.ClusterInfo.UpdateTimeout <= 0 {
		return fmt.Errorf("cluster_info.update_timeout must be positive, got %s", c.ClusterInfo.UpdateTimeout)
	}
	if c.ThreadPool.WriteQueueSize < -1 {
		return fmt.Errorf("thread_pool.write_queue_size must be -1 or non-negative, got %d", c.ThreadPool.WriteQueueSize)
	}
	return nil
}
