package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPreservesDefaultsWithNoOverrides(t *testing.T) {
	out := DefaultIndexerConfig()
	require.NoError(t, Load(viper.New(), "", nil, &out))
	assert.Equal(t, DefaultIndexerConfig(), out)
}

func TestLoadOverridesFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "indexer.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("node_id: node-a\ngrpc_addr: \":9999\"\n"), 0o644))

	out := DefaultIndexerConfig()
	require.NoError(t, Load(viper.New(), cfgPath, nil, &out))
	assert.Equal(t, "node-a", out.NodeID)
	assert.Equal(t, ":9999", out.GRPCAddr)
	assert.Equal(t, DefaultIndexerConfig().ScratchRoot, out.ScratchRoot)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "indexer.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("not_a_real_field: true\n"), 0o644))

	out := DefaultIndexerConfig()
	err := Load(viper.New(), cfgPath, nil, &out)
	assert.Error(t, err)
}

func TestDefaultConfigsAreFullyPopulated(t *testing.T) {
	idx := DefaultIndexerConfig()
	assert.NotEmpty(t, idx.GRPCAddr)
	assert.NotEmpty(t, idx.Metastore.Backend)

	cp := DefaultControlPlaneConfig()
	assert.NotEmpty(t, cp.GRPCAddr)

	jan := DefaultJanitorConfig()
	assert.Positive(t, jan.GracePeriod)
	assert.Positive(t, jan.Interval)
}
