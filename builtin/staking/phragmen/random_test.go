// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package phragmen

import (
	"math/big"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/mesh"
)

type electionInput struct {
	Candidates uint8
	Count      uint8
	Stakes     []uint32
	Votes      [][]uint8
}

// build maps raw fuzz data onto accounts: candidates are 1..n, nominators
// 1001.. and vote targets, deduplicated as nominate does, may point past
// the candidate set.
func (in *electionInput) build() (candidates []mesh.AccountID, voters []Voter, stakeOf StakeOf, count int) {
	n := 1 + int(in.Candidates%8)
	count = 1 + int(in.Count%6)
	stake := make(map[mesh.AccountID]*big.Int)
	stakeAt := func(i int) *big.Int {
		if len(in.Stakes) == 0 {
			return big.NewInt(1)
		}
		return big.NewInt(int64(in.Stakes[i%len(in.Stakes)]%1_000_000) + 1)
	}
	for i := range n {
		c := acc(uint64(i + 1))
		candidates = append(candidates, c)
		stake[c] = stakeAt(i)
	}
	for i, votes := range in.Votes {
		v := Voter{Who: acc(uint64(1001 + i))}
		picked := make(map[mesh.AccountID]bool)
		for _, t := range votes {
			target := acc(uint64(t)%uint64(n+2) + 1)
			if !picked[target] {
				picked[target] = true
				v.Targets = append(v.Targets, target)
			}
		}
		voters = append(voters, v)
		stake[v.Who] = stakeAt(n + i)
	}
	stakeOf = func(who mesh.AccountID) (*big.Int, error) {
		if s, ok := stake[who]; ok {
			return new(big.Int).Set(s), nil
		}
		return new(big.Int), nil
	}
	return
}

func TestElectRandomized(t *testing.T) {
	const minimum = 2
	f := fuzz.NewWithSeed(20251018).NilChance(0).NumElements(0, 12)

	for round := range 200 {
		var in electionInput
		f.Fuzz(&in)
		candidates, voters, stakeOf, count := in.build()

		r, ok, err := Elect(count, minimum, candidates, voters, stakeOf)
		require.NoError(t, err)
		if len(candidates) < minimum {
			assert.False(t, ok, "round %d", round)
			continue
		}
		require.True(t, ok, "round %d", round)

		require.Len(t, r.Winners, min(count, len(candidates)), "round %d", round)
		seen := make(map[mesh.AccountID]bool)
		for _, w := range r.Winners {
			assert.False(t, seen[w], "round %d: %v elected twice", round, w)
			assert.Contains(t, candidates, w)
			seen[w] = true
		}

		for _, a := range r.Assignments {
			if len(a.Edges) == 0 {
				continue
			}
			var sum uint64
			for _, e := range a.Edges {
				assert.True(t, seen[e.Target], "round %d: edge to a loser", round)
				sum += uint64(e.Ratio)
			}
			assert.Equal(t, uint64(mesh.PerbillOne), sum, "round %d: ratios of %v", round, a.Who)
		}

		supports, staked, err := BuildSupportMap(r, stakeOf)
		require.NoError(t, err)
		require.NoError(t, Equalize(staked, supports, new(big.Int), EqualizeIterations, stakeOf))

		for _, sa := range staked {
			budget, _ := stakeOf(sa.Who)
			given := new(big.Int)
			for _, e := range sa.Edges {
				assert.True(t, e.Stake.Sign() >= 0)
				given.Add(given, e.Stake)
			}
			assert.True(t, given.Cmp(budget) <= 0, "round %d: %v gives %v of %v", round, sa.Who, given, budget)
		}

		exposures, slot := Exposures(r.Winners, supports)
		require.Len(t, exposures, len(r.Winners))
		for _, e := range exposures {
			assert.Zero(t, e.Sum().Cmp(e.Total), "round %d", round)
			assert.True(t, slot.Cmp(e.Total) <= 0, "round %d: slot above a backing", round)
		}
	}
}
