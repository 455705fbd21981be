// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package nomination keeps the intentions of bonded stashes: either to
// validate on given terms or to back a list of validators.
package nomination

import (
	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

// Nominations are the validators a nominator backs.
type Nominations struct {
	Targets     []mesh.AccountID
	SubmittedIn mesh.EraIndex
}

// Nominated is emitted when a nominator replaces its targets.
type Nominated struct {
	Stash   mesh.AccountID
	Targets []mesh.AccountID
}

// Set holds validator and nominator intentions keyed by stash.
type Set struct {
	validators    *store.Mapping[mesh.AccountID, types.ValidatorPrefs]
	validatorList *store.List[mesh.AccountID]
	nominators    *store.Mapping[mesh.AccountID, *Nominations]
	nominatorList *store.List[mesh.AccountID]
	events        *events.Emitter

	maxNominations int
}

func New(st *state.State, cfg *mesh.Config, log *events.Log) *Set {
	sctx := store.NewContext(types.Module, st)
	return &Set{
		validators:     store.NewMapping[mesh.AccountID, types.ValidatorPrefs](sctx, "validators"),
		validatorList:  store.NewList[mesh.AccountID](sctx, "validator-list"),
		nominators:     store.NewMapping[mesh.AccountID, *Nominations](sctx, "nominators"),
		nominatorList:  store.NewList[mesh.AccountID](sctx, "nominator-list"),
		events:         log.For(types.Module),
		maxNominations: cfg.MaxNominations,
	}
}

// Validate declares stash a validator candidate, dropping any nominations.
func (s *Set) Validate(stash mesh.AccountID, prefs types.ValidatorPrefs) error {
	if err := s.removeNominator(stash); err != nil {
		return err
	}
	if err := s.validators.Set(stash, prefs); err != nil {
		return err
	}
	return s.validatorList.Add(stash)
}

// Nominate replaces the targets of stash. Duplicates are dropped and the
// list is truncated to the nomination limit.
func (s *Set) Nominate(stash mesh.AccountID, targets []mesh.AccountID, current mesh.EraIndex) error {
	if len(targets) == 0 {
		return types.ErrEmptyTargets
	}
	seen := make(map[mesh.AccountID]bool, len(targets))
	unique := make([]mesh.AccountID, 0, len(targets))
	for _, t := range targets {
		if seen[t] {
			continue
		}
		seen[t] = true
		unique = append(unique, t)
		if len(unique) == s.maxNominations {
			break
		}
	}
	if err := s.removeValidator(stash); err != nil {
		return err
	}
	if err := s.nominators.Set(stash, &Nominations{Targets: unique, SubmittedIn: current}); err != nil {
		return err
	}
	if err := s.nominatorList.Add(stash); err != nil {
		return err
	}
	return s.events.Emit("Nominated", &Nominated{stash, unique}, mesh.Bytes32(stash))
}

// Chill withdraws both intentions of stash.
func (s *Set) Chill(stash mesh.AccountID) error {
	if err := s.removeValidator(stash); err != nil {
		return err
	}
	return s.removeNominator(stash)
}

func (s *Set) removeValidator(stash mesh.AccountID) error {
	s.validators.Delete(stash)
	return s.validatorList.Remove(stash)
}

func (s *Set) removeNominator(stash mesh.AccountID) error {
	s.nominators.Delete(stash)
	return s.nominatorList.Remove(stash)
}

// Validator returns the prefs of stash if it intends to validate.
func (s *Set) Validator(stash mesh.AccountID) (types.ValidatorPrefs, bool, error) {
	return s.validators.Find(stash)
}

// Nominator returns the nominations of stash.
func (s *Set) Nominator(stash mesh.AccountID) (*Nominations, bool, error) {
	return s.nominators.Find(stash)
}

// Validators lists validator candidates in insertion order.
func (s *Set) Validators() ([]mesh.AccountID, error) {
	return s.validatorList.Values()
}

// Nominators lists nominators in insertion order.
func (s *Set) Nominators() ([]mesh.AccountID, error) {
	return s.nominatorList.Values()
}

// SpanStart returns the start era of the current slashing span of a stash.
type SpanStart func(stash mesh.AccountID) (mesh.EraIndex, bool, error)

// FilterTargets drops the targets slashed after the nominations were
// submitted.
func FilterTargets(n *Nominations, spanStart SpanStart) ([]mesh.AccountID, error) {
	kept := make([]mesh.AccountID, 0, len(n.Targets))
	for _, t := range n.Targets {
		start, ok, err := spanStart(t)
		if err != nil {
			return nil, err
		}
		if !ok || start <= n.SubmittedIn {
			kept = append(kept, t)
		}
	}
	return kept, nil
}
