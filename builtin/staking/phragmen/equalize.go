// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package phragmen

import (
	"math/big"
	"sort"

	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/mesh"
)

// EqualizeIterations is the number of balancing passes.
const EqualizeIterations = 2

// Equalize moves the stake of each nominator between the winners it backs
// so their totals level out. Self votes are left alone. It stops early once
// no voter can move more than tolerance.
func Equalize(assignments []StakedAssignment, supports SupportMap, tolerance *big.Int, iterations int, stakeOf StakeOf) error {
	for i := 0; i < iterations; i++ {
		maxDiff := new(big.Int)
		for j := range assignments {
			a := &assignments[j]
			if len(a.Edges) == 1 && a.Edges[0].Target == a.Who {
				continue
			}
			budget, err := stakeOf(a.Who)
			if err != nil {
				return err
			}
			if diff := equalizeVoter(a, budget, supports, tolerance); diff.Cmp(maxDiff) > 0 {
				maxDiff = diff
			}
		}
		if maxDiff.Cmp(tolerance) < 0 {
			break
		}
	}
	return nil
}

func totalOf(supports SupportMap, who mesh.AccountID) *big.Int {
	if s, ok := supports[who]; ok {
		return s.Total
	}
	return new(big.Int)
}

func equalizeVoter(a *StakedAssignment, budget *big.Int, supports SupportMap, tolerance *big.Int) *big.Int {
	if len(a.Edges) == 0 {
		return new(big.Int)
	}
	used := new(big.Int)
	for _, e := range a.Edges {
		used.Add(used, e.Stake)
	}

	var difference *big.Int
	var maxBacked, minAll *big.Int
	for _, e := range a.Edges {
		s, ok := supports[e.Target]
		if !ok {
			continue
		}
		if minAll == nil || s.Total.Cmp(minAll) < 0 {
			minAll = s.Total
		}
		if e.Stake.Sign() > 0 && (maxBacked == nil || s.Total.Cmp(maxBacked) > 0) {
			maxBacked = s.Total
		}
	}
	if maxBacked != nil {
		difference = new(big.Int).Sub(maxBacked, minAll)
		if difference.Sign() < 0 {
			difference.SetInt64(0)
		}
		if budget.Cmp(used) > 0 {
			difference.Add(difference, new(big.Int).Sub(budget, used))
		}
		if difference.Cmp(tolerance) < 0 {
			return difference
		}
	} else {
		difference = new(big.Int).Set(budget)
	}

	// take the voter out of every winner it backs
	for i := range a.Edges {
		e := &a.Edges[i]
		if s, ok := supports[e.Target]; ok {
			s.Total.Sub(s.Total, e.Stake)
			if s.Total.Sign() < 0 {
				s.Total.SetInt64(0)
			}
			others := s.Others[:0]
			for _, o := range s.Others {
				if o.Who != a.Who {
					others = append(others, o)
				}
			}
			s.Others = others
		}
		e.Stake = new(big.Int)
	}

	sort.SliceStable(a.Edges, func(i, j int) bool {
		return totalOf(supports, a.Edges[i].Target).Cmp(totalOf(supports, a.Edges[j].Target)) < 0
	})

	cumulative := new(big.Int)
	last := len(a.Edges) - 1
	for idx, e := range a.Edges {
		s, ok := supports[e.Target]
		if !ok {
			continue
		}
		gap := new(big.Int).Mul(s.Total, big.NewInt(int64(idx)))
		gap.Sub(gap, cumulative)
		if gap.Cmp(budget) > 0 {
			last = idx - 1
			if last < 0 {
				last = 0
			}
			break
		}
		cumulative.Add(cumulative, s.Total)
	}

	// level every winner up to (budget + cumulative) / ways
	ways := big.NewInt(int64(last + 1))
	lastStake := new(big.Int).Set(totalOf(supports, a.Edges[last].Target))
	excess := new(big.Int).Add(budget, cumulative)
	excess.Sub(excess, new(big.Int).Mul(lastStake, ways))
	if excess.Sign() < 0 {
		excess.SetInt64(0)
	}
	level := new(big.Int).Quo(excess, ways)
	level.Add(level, lastStake)
	for i := 0; i <= last; i++ {
		e := &a.Edges[i]
		s, ok := supports[e.Target]
		if !ok {
			continue
		}
		stake := new(big.Int).Sub(level, s.Total)
		if stake.Sign() < 0 {
			stake.SetInt64(0)
		}
		e.Stake = stake
		s.Total.Add(s.Total, stake)
		s.Others = append(s.Others, types.IndividualExposure{Who: a.Who, Value: new(big.Int).Set(stake)})
	}
	return difference
}
