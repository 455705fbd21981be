// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package phragmen implements sequential Phragmén validator election with
// an optional equalisation pass over the resulting stake distribution.
//
// Loads and scores are exact rationals, so the outcome does not depend on
// the magnitude of the stakes involved.
package phragmen

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/mesh"
)

// Voter backs a list of candidates with its whole stake.
type Voter struct {
	Who     mesh.AccountID
	Targets []mesh.AccountID
}

// StakeOf returns the stake a voter brings to the election.
type StakeOf func(who mesh.AccountID) (*big.Int, error)

// Edge is the share of a voter stake given to one winner.
type Edge struct {
	Target mesh.AccountID
	Ratio  mesh.Perbill
}

// Assignment distributes the stake of one voter over the winners it backs.
// The ratios add up to exactly one.
type Assignment struct {
	Who   mesh.AccountID
	Edges []Edge
}

// Result is the outcome of an election.
type Result struct {
	Winners     []mesh.AccountID
	Assignments []Assignment
}

type candidate struct {
	who      mesh.AccountID
	approval *big.Int
	score    *big.Rat // nil is infinity
	elected  bool
}

type edge struct {
	candidate int
	load      *big.Rat
}

type voter struct {
	who    mesh.AccountID
	budget *big.Int
	load   *big.Rat
	edges  []edge
}

// Elect chooses up to count winners among candidates. Every candidate votes
// for itself with its own stake, ahead of the nominators. It returns false
// when there are fewer than minimum candidates.
func Elect(count, minimum int, candidates []mesh.AccountID, nominators []Voter, stakeOf StakeOf) (*Result, bool, error) {
	if minimum < 1 {
		minimum = 1
	}
	if len(candidates) < minimum {
		return nil, false, nil
	}

	cands := make([]*candidate, len(candidates))
	index := make(map[mesh.AccountID]int, len(candidates))
	for i, c := range candidates {
		cands[i] = &candidate{who: c, approval: new(big.Int)}
		index[c] = i
	}

	voters := make([]*voter, 0, len(candidates)+len(nominators))
	addVoter := func(who mesh.AccountID, targets []mesh.AccountID) error {
		stake, err := stakeOf(who)
		if err != nil {
			return err
		}
		v := &voter{who: who, budget: stake, load: new(big.Rat)}
		for _, t := range targets {
			i, ok := index[t]
			if !ok {
				continue
			}
			cands[i].approval.Add(cands[i].approval, stake)
			v.edges = append(v.edges, edge{candidate: i, load: new(big.Rat)})
		}
		voters = append(voters, v)
		return nil
	}
	for _, c := range candidates {
		if err := addVoter(c, []mesh.AccountID{c}); err != nil {
			return nil, false, err
		}
	}
	for _, n := range nominators {
		if err := addVoter(n.Who, n.Targets); err != nil {
			return nil, false, err
		}
	}

	toElect := count
	if toElect > len(cands) {
		toElect = len(cands)
	}
	result := &Result{}
	for round := 0; round < toElect; round++ {
		for _, c := range cands {
			if c.elected {
				continue
			}
			if c.approval.Sign() == 0 {
				c.score = nil
			} else {
				c.score = new(big.Rat).SetFrac(big.NewInt(1), c.approval)
			}
		}
		for _, v := range voters {
			for _, e := range v.edges {
				c := cands[e.candidate]
				if c.elected || c.approval.Sign() == 0 {
					continue
				}
				inc := new(big.Rat).Mul(v.load, new(big.Rat).SetFrac(v.budget, c.approval))
				c.score.Add(c.score, inc)
			}
		}

		var winner *candidate
		for _, c := range cands {
			if c.elected {
				continue
			}
			if winner == nil || lessScore(c.score, winner.score) {
				winner = c
			}
		}
		if winner == nil {
			break
		}
		winner.elected = true
		// an unbacked winner leaves every load untouched
		for _, v := range voters {
			if winner.score == nil {
				break
			}
			for i := range v.edges {
				if cands[v.edges[i].candidate] != winner {
					continue
				}
				v.edges[i].load = new(big.Rat).Sub(winner.score, v.load)
				v.load = new(big.Rat).Set(winner.score)
			}
		}
		result.Winners = append(result.Winners, winner.who)
	}

	for _, v := range voters {
		a := Assignment{Who: v.who}
		for _, e := range v.edges {
			c := cands[e.candidate]
			if !c.elected {
				continue
			}
			a.Edges = append(a.Edges, Edge{Target: c.who, Ratio: ratio(e.load, v.load)})
		}
		if len(a.Edges) == 0 {
			continue
		}
		normalize(a.Edges)
		result.Assignments = append(result.Assignments, a)
	}
	return result, true, nil
}

// lessScore orders scores with nil as infinity. Ties keep the earlier
// candidate.
func lessScore(a, b *big.Rat) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.Cmp(b) < 0
}

func ratio(edgeLoad, voterLoad *big.Rat) mesh.Perbill {
	if edgeLoad.Cmp(voterLoad) == 0 {
		return mesh.PerbillOne
	}
	if voterLoad.Sign() == 0 {
		return 0
	}
	q := new(big.Rat).Quo(edgeLoad, voterLoad)
	q.Mul(q, new(big.Rat).SetInt64(mesh.Billion))
	parts := new(big.Int).Quo(q.Num(), q.Denom())
	if parts.Cmp(big.NewInt(mesh.Billion)) > 0 {
		return mesh.PerbillOne
	}
	return mesh.Perbill(parts.Uint64())
}

// normalize spreads the rounding loss over the edges so the ratios add up
// to one: evenly first, then one part each from the front.
func normalize(edges []Edge) {
	var sum uint64
	for _, e := range edges {
		sum += uint64(e.Ratio)
	}
	if sum >= mesh.Billion {
		return
	}
	diff := mesh.Billion - sum
	n := uint64(len(edges))
	perVote := diff / n
	for i := range edges {
		edges[i].Ratio = edges[i].Ratio.SaturatingAdd(mesh.Perbill(perVote))
	}
	for i := uint64(0); i < diff-perVote*n; i++ {
		edges[i].Ratio = edges[i].Ratio.SaturatingAdd(1)
	}
}

// Support is the stake behind one winner.
type Support struct {
	Own    *big.Int
	Total  *big.Int
	Others []types.IndividualExposure
}

// SupportMap is keyed by winner.
type SupportMap map[mesh.AccountID]*Support

// StakedEdge is an assignment edge expressed in stake instead of ratio.
type StakedEdge struct {
	Target mesh.AccountID
	Stake  *big.Int
}

// StakedAssignment is an Assignment expressed in stake.
type StakedAssignment struct {
	Who   mesh.AccountID
	Edges []StakedEdge
}

// BuildSupportMap turns the ratios of an election into stake per winner.
func BuildSupportMap(result *Result, stakeOf StakeOf) (SupportMap, []StakedAssignment, error) {
	supports := make(SupportMap, len(result.Winners))
	for _, w := range result.Winners {
		supports[w] = &Support{Own: new(big.Int), Total: new(big.Int)}
	}
	staked := make([]StakedAssignment, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		stake, err := stakeOf(a.Who)
		if err != nil {
			return nil, nil, err
		}
		sa := StakedAssignment{Who: a.Who}
		for _, e := range a.Edges {
			value := e.Ratio.Mul(stake)
			sa.Edges = append(sa.Edges, StakedEdge{e.Target, value})
			s, ok := supports[e.Target]
			if !ok {
				continue
			}
			s.Total.Add(s.Total, value)
			if e.Target == a.Who {
				s.Own.Add(s.Own, value)
			} else {
				s.Others = append(s.Others, types.IndividualExposure{Who: a.Who, Value: new(big.Int).Set(value)})
			}
		}
		staked = append(staked, sa)
	}
	return supports, staked, nil
}

// Exposures builds the exposure of every winner, in winner order, and
// returns the smallest total among them.
func Exposures(winners []mesh.AccountID, supports SupportMap) ([]*types.Exposure, *big.Int) {
	out := make([]*types.Exposure, 0, len(winners))
	var slot *big.Int
	for _, w := range winners {
		s := supports[w]
		exp := &types.Exposure{
			Total:  new(big.Int).Set(s.Total),
			Own:    new(big.Int).Set(s.Own),
			Others: make([]types.IndividualExposure, 0, len(s.Others)),
		}
		for _, o := range s.Others {
			exp.Others = append(exp.Others, types.IndividualExposure{Who: o.Who, Value: new(big.Int).Set(o.Value)})
		}
		if slot == nil || exp.Total.Cmp(slot) < 0 {
			slot = new(big.Int).Set(exp.Total)
		}
		out = append(out, exp)
	}
	if slot == nil {
		slot = new(big.Int)
	}
	return out, slot
}
