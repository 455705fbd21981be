// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/genesis"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/node"
)

const fastChain = `
chain:
  session-length: 2
  sessions-per-era: 1
  bonding-duration: 2
  history-depth: 4
  slash-defer-duration: 0
`

func runApp(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"meshnode"}, args...))
	return out.String(), err
}

func TestSimulate(t *testing.T) {
	accs := genesis.DevAccounts()
	config := writeFile(t, "node.yaml", fastChain)
	scenario := writeFile(t, "scenario.yaml", fmt.Sprintf(`
blocks:
  2:
    - signer: %s
      call: transfer
      args: {to: %s, amount: 1000}
    - signer: %s
      call: transfer
      args: {to: %s, amount: 1000}
`, accs[8].ID, accs[9].ID, mesh.NumberedAccount(77), accs[9].ID))

	out, err := runApp(t, "simulate", "--config", config, "--scenario", scenario, "--blocks", "4", "--verbosity", "error")
	require.NoError(t, err)

	var lines []node.BlockSummary
	sc := bufio.NewScanner(bytes.NewBufferString(out))
	sc.Buffer(nil, 1<<20)
	for sc.Scan() {
		var line node.BlockSummary
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 4)
	for i, line := range lines {
		assert.Equal(t, mesh.BlockNumber(i+1), line.Number)
	}

	block2 := lines[1]
	require.Len(t, block2.Outcomes, 2)
	assert.Equal(t, "transfer", block2.Outcomes[0].Call)
	assert.Empty(t, block2.Outcomes[0].Error)
	assert.NotEmpty(t, block2.Outcomes[1].Error, "unfunded sender")

	var names []string
	for _, ev := range block2.Events {
		names = append(names, ev.Module+"."+ev.Name)
	}
	assert.Contains(t, names, "system.ExtrinsicSuccess")
	assert.Contains(t, names, "system.ExtrinsicFailed")

	// sessions end on even blocks, each one an era
	var elections int
	for _, line := range lines {
		for _, ev := range line.Events {
			if ev.Module == "staking" && ev.Name == "StakingElection" {
				elections++
			}
		}
	}
	assert.Equal(t, 2, elections)
}

func TestSimulateBadScenario(t *testing.T) {
	config := writeFile(t, "node.yaml", fastChain)
	scenario := writeFile(t, "scenario.yaml", "blocks:\n  1:\n    - {call: transfer}\n")

	_, err := runApp(t, "simulate", "--config", config, "--scenario", scenario, "--verbosity", "error")
	assert.Error(t, err)
}

func TestDumpConfig(t *testing.T) {
	out, err := runApp(t, "dump-config")
	require.NoError(t, err)

	want, err := defaultConfig().marshal()
	require.NoError(t, err)
	assert.Equal(t, string(want), out)
	assert.Contains(t, out, "session-length: 600")
}
