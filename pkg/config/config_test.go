package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shardctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ClusterInfo.UpdateInterval)
	assert.Equal(t, 15*time.Second, cfg.ClusterInfo.UpdateTimeout)
	assert.True(t, cfg.Routing.DiskThresholdEnabled)
	assert.Equal(t, 0.85, cfg.Routing.DiskLowWatermark)
	assert.Equal(t, 200, cfg.ThreadPool.WriteQueueSize)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
node_id: node-1
bind_addr: 127.0.0.1:7000
data_dir: /tmp/shardctl
cluster_info:
  update_interval: 45s
  update_timeout: 20s
cluster_routing:
  disk_threshold_enabled: false
indexing_pressure:
  memory_limit: 2048
thread_pool:
  write_queue_size: -1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, "127.0.0.1:7000", cfg.BindAddr)
	assert.Equal(t, 45*time.Second, cfg.ClusterInfo.UpdateInterval)
	assert.False(t, cfg.Routing.DiskThresholdEnabled)
	assert.Equal(t, int64(2048), cfg.Indexing.MemoryLimit)
	assert.Equal(t, -1, cfg.ThreadPool.WriteQueueSize)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFileValues(t *testing.T) {
	path := writeConfigFile(t, "node_id: from-file\n")

	t.Setenv("SHARDCTL_NODE_ID", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.NodeID)
}

func TestValidateRejectsTooShortUpdateInterval(t *testing.T) {
	path := writeConfigFile(t, "cluster_info:\n  update_interval: 1s\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsInvalidQueueSize(t *testing.T) {
	path := writeConfigFile(t, "thread_pool:\n  write_queue_size: -2\n")

	_, err := Load(path)
	assert.Error(t, err)
}
