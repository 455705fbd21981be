// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package balances

import (
	"math/big"

	"github.com/stakemesh/stakemesh/mesh"
)

// Treasury is the sink for slashed funds and unissued era rewards.
type Treasury struct {
	balances *Balances
	account  mesh.AccountID
}

func NewTreasury(b *Balances, account mesh.AccountID) *Treasury {
	return &Treasury{balances: b, account: account}
}

func (t *Treasury) Account() mesh.AccountID {
	return t.account
}

// Absorb credits amount to the treasury account. An amount too small to
// open a dead treasury account is burnt.
func (t *Treasury) Absorb(amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	_, err := t.balances.DepositCreating(t.account, amount)
	return err
}
