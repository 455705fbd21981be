// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
	"github.com/stakemesh/stakemesh/test/meshtest"
)

func TestParseScenario(t *testing.T) {
	s := transferScenario(t, 7)
	assert.Equal(t, mesh.BlockNumber(7), s.Last())
	assert.Empty(t, s.At(6))

	xs := s.At(7)
	require.Len(t, xs, 1)
	assert.Equal(t, meshtest.Alice, xs[0].Signer)
	require.IsType(t, &runtime.Transfer{}, xs[0].Call)
	assert.Equal(t, meshtest.Bob, xs[0].Call.(*runtime.Transfer).To)

	var none *Scenario
	assert.Nil(t, none.At(1))
	assert.Equal(t, mesh.BlockNumber(0), none.Last())
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"genesis block", fmt.Sprintf("blocks:\n  0:\n    - {signer: %s, call: chill}\n", meshtest.Alice)},
		{"unknown call", fmt.Sprintf("blocks:\n  1:\n    - {signer: %s, call: fly}\n", meshtest.Alice)},
		{"no origin", "blocks:\n  1:\n    - {call: chill}\n"},
		{"unknown field", "blokcs: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocks:\n  2:\n    - {root: true, call: force_new_era}\n"), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	require.Len(t, s.At(2), 1)
	assert.True(t, s.At(2)[0].Root)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
