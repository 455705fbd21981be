// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package session keeps the validator set of the running session and the
// history of past sets the slasher may refer back to.
package session

import (
	"math/big"
	"slices"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "session"

// DisabledThreshold is the share of the set that may be disabled before a
// new era is forced.
var DisabledThreshold = mesh.PerbillFromPercent(17)

type Session struct {
	current    *store.Value[uint32]
	validators *store.Value[[]mesh.AccountID]
	disabled   *store.Value[[]mesh.AccountID]
	historical *store.Mapping[store.U32, []mesh.AccountID]
	firstKept  *store.Value[uint32]
	events     *events.Emitter
}

func New(st *state.State, log *events.Log) *Session {
	sctx := store.NewContext(module, st)
	return &Session{
		current:    store.NewValue[uint32](sctx, "current-index"),
		validators: store.NewValue[[]mesh.AccountID](sctx, "validators"),
		disabled:   store.NewValue[[]mesh.AccountID](sctx, "disabled"),
		historical: store.NewMapping[store.U32, []mesh.AccountID](sctx, "historical"),
		firstKept:  store.NewValue[uint32](sctx, "first-kept"),
		events:     log.For(module),
	}
}

func (s *Session) CurrentIndex() (mesh.SessionIndex, error) {
	i, err := s.current.Get()
	return mesh.SessionIndex(i), err
}

func (s *Session) Validators() ([]mesh.AccountID, error) {
	return s.validators.Get()
}

func (s *Session) Disabled() ([]mesh.AccountID, error) {
	return s.disabled.Get()
}

// HistoricalValidators returns the set that ran session index.
func (s *Session) HistoricalValidators(index mesh.SessionIndex) ([]mesh.AccountID, bool, error) {
	return s.historical.Find(store.U32(index))
}

// Init installs the genesis set as session 0.
func (s *Session) Init(set []mesh.AccountID) error {
	if err := s.validators.Set(set); err != nil {
		return err
	}
	return s.historical.Set(0, set)
}

// Rotate ends the current session and starts the next one. A nil next keeps
// the running set.
func (s *Session) Rotate(next []mesh.AccountID) (mesh.SessionIndex, error) {
	cur, err := s.current.Get()
	if err != nil {
		return 0, err
	}
	cur++
	if err := s.current.Set(cur); err != nil {
		return 0, err
	}
	if next != nil {
		if err := s.validators.Set(next); err != nil {
			return 0, err
		}
	} else if next, err = s.validators.Get(); err != nil {
		return 0, err
	}
	s.disabled.Delete()
	if err := s.historical.Set(store.U32(cur), next); err != nil {
		return 0, err
	}
	return mesh.SessionIndex(cur), s.events.Emit("NewSession", &NewSession{mesh.SessionIndex(cur), next})
}

// DisableValidator disables who for the rest of the session. It reports
// whether the disabled share now exceeds DisabledThreshold.
func (s *Session) DisableValidator(who mesh.AccountID) (bool, error) {
	set, err := s.validators.Get()
	if err != nil {
		return false, err
	}
	if !slices.Contains(set, who) {
		return false, nil
	}
	disabled, err := s.disabled.Get()
	if err != nil {
		return false, err
	}
	if !slices.Contains(disabled, who) {
		disabled = append(disabled, who)
		if err := s.disabled.Set(disabled); err != nil {
			return false, err
		}
		if err := s.events.Emit("ValidatorDisabled", &who, mesh.Bytes32(who)); err != nil {
			return false, err
		}
	}
	threshold := DisabledThreshold.Mul(big.NewInt(int64(len(set)))).Int64()
	return int64(len(disabled)) > threshold, nil
}

// PruneHistoricalUpTo drops the historical sets of sessions before up.
func (s *Session) PruneHistoricalUpTo(up mesh.SessionIndex) error {
	first, err := s.firstKept.Get()
	if err != nil {
		return err
	}
	for i := first; i < uint32(up); i++ {
		s.historical.Delete(store.U32(i))
	}
	if uint32(up) > first {
		return s.firstKept.Set(uint32(up))
	}
	return nil
}

type NewSession struct {
	Index      mesh.SessionIndex
	Validators []mesh.AccountID
}
