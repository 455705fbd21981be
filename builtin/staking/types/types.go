// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package types holds the staking records shared by the election, reward
// and slashing stages.
package types

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/mesh"
)

// Module is the name staking errors and events are reported under.
const Module = "staking"

// RewardDestination tells where era rewards of a stash are paid.
type RewardDestination uint8

const (
	// Staked pays into the stash and bonds the reward.
	Staked RewardDestination = iota
	// Stash pays into the stash, unbonded.
	Stash
	// Controller pays into the controller account.
	Controller
)

func (d RewardDestination) String() string {
	switch d {
	case Staked:
		return "staked"
	case Stash:
		return "stash"
	case Controller:
		return "controller"
	}
	return "unknown"
}

func (d RewardDestination) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *RewardDestination) UnmarshalText(text []byte) error {
	for _, v := range []RewardDestination{Staked, Stash, Controller} {
		if v.String() == string(text) {
			*d = v
			return nil
		}
	}
	return errors.Errorf("unknown reward destination %q", text)
}

// ValidatorPrefs are the terms a validator offers.
type ValidatorPrefs struct {
	Commission mesh.Perbill
}

// IndividualExposure is the stake of one nominator behind a validator.
type IndividualExposure struct {
	Who   mesh.AccountID
	Value *big.Int
}

// Exposure is the stake behind a validator for one era. Total is Own plus
// the sum of Others.
type Exposure struct {
	Total  *big.Int
	Own    *big.Int
	Others []IndividualExposure
}

// NewExposure returns an empty exposure.
func NewExposure() *Exposure {
	return &Exposure{Total: new(big.Int), Own: new(big.Int)}
}

// Sum recomputes Own plus the stake of Others.
func (e *Exposure) Sum() *big.Int {
	sum := new(big.Int).Set(e.Own)
	for _, o := range e.Others {
		sum.Add(sum, o.Value)
	}
	return sum
}
