// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rewards

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/mesh"
)

// Payout is an amount owed to a stash.
type Payout struct {
	Stash  mesh.AccountID
	Amount *big.Int
}

// ValidatorShare returns floor(payout * points / total).
func ValidatorShare(payout *big.Int, points, total uint32) *big.Int {
	if points == 0 || total == 0 {
		return new(big.Int)
	}
	share := new(big.Int).Mul(payout, big.NewInt(int64(points)))
	return share.Quo(share, big.NewInt(int64(total)))
}

// Split divides the reward of validator. The commission comes off the top;
// the rest is shared pro rata over the exposure, rounding down. The
// validator payout is first and carries the commission and its own share.
// Nominators with nothing to receive are left out.
func Split(validator mesh.AccountID, reward *big.Int, prefs types.ValidatorPrefs, exposure *types.Exposure) []Payout {
	commission := prefs.Commission.Mul(reward)
	if commission.Cmp(reward) > 0 {
		commission.Set(reward)
	}
	rest := new(big.Int).Sub(reward, commission)

	total := new(big.Int).Set(exposure.Total)
	if total.Sign() == 0 {
		total.SetInt64(1)
	}
	shareOf := func(v *big.Int) *big.Int {
		s := new(big.Int).Mul(rest, v)
		return s.Quo(s, total)
	}

	own := commission
	if rest.Sign() > 0 {
		own.Add(own, shareOf(exposure.Own))
	}
	out := []Payout{{Stash: validator, Amount: own}}
	if rest.Sign() == 0 {
		return out
	}
	for _, o := range exposure.Others {
		if amount := shareOf(o.Value); amount.Sign() > 0 {
			out = append(out, Payout{Stash: o.Who, Amount: amount})
		}
	}
	return out
}
