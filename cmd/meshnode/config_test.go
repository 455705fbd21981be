// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/mesh"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, mesh.DefaultConfig().SessionLength, cfg.Chain.SessionLength)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeFile(t, "node.yaml", `
data-dir: /var/lib/mesh
log:
  level: warn
metrics:
  enabled: true
chain:
  session-length: 2
  sessions-per-era: 1
  slash-reward-fraction: 5%
`)
	t.Setenv("MESH_LOG_LEVEL", "debug")
	t.Setenv("MESH_CHAIN_VALIDATOR_COUNT", "5")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/mesh", cfg.DataDir)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level, "environment wins over the file")
	assert.Equal(t, uint32(2), cfg.Chain.SessionLength)
	assert.Equal(t, uint32(1), cfg.Chain.SessionsPerEra)
	assert.Equal(t, uint32(5), cfg.Chain.ValidatorCount)
	assert.Equal(t, mesh.PerbillFromPercent(5), cfg.Chain.SlashRewardFraction)
	assert.Equal(t, mesh.DefaultConfig().BondingDuration, cfg.Chain.BondingDuration, "unset keys keep defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "verbose: true\n"},
		{"bad level", "log: {level: loud}\n"},
		{"bad chain", "chain: {session-length: 0}\n"},
		{"negative cache", "cache: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeFile(t, "node.yaml", tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigRoundTrip(t *testing.T) {
	data, err := defaultConfig().marshal()
	require.NoError(t, err)

	cfg, err := loadConfig(writeFile(t, "node.yaml", string(data)))
	require.NoError(t, err)
	again, err := cfg.marshal()
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}
