// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staking

import (
	"math/big"

	"github.com/stakemesh/stakemesh/mesh"
)

// hooks lends the slasher the parts of staking it acts on.
type hooks struct {
	s *Staking
}

func (h *hooks) Chill(stash mesh.AccountID) error {
	return h.s.nominations.Chill(stash)
}

func (h *hooks) DisableValidator(stash mesh.AccountID) (bool, error) {
	return h.s.deps.Session.DisableValidator(stash)
}

func (h *hooks) EnsureNewEra() error {
	return h.s.clock.EnsureNewEra()
}

func (h *hooks) SlashBond(stash mesh.AccountID, value *big.Int) (*big.Int, error) {
	return h.s.ledger.Slash(stash, value)
}

func (h *hooks) SlashBalance(stash mesh.AccountID, value *big.Int) (*big.Int, *big.Int, error) {
	return h.s.deps.Currency.Slash(stash, value)
}

func (h *hooks) DepositCreating(who mesh.AccountID, amount *big.Int) (*big.Int, error) {
	return h.s.deps.Currency.DepositCreating(who, amount)
}

func (h *hooks) Absorb(amount *big.Int) error {
	return h.s.deps.Sink.Absorb(amount)
}
