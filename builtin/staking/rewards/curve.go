// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rewards

import (
	"math/big"

	"github.com/stakemesh/stakemesh/mesh"
)

// maxHalvings bounds the decay samples; past it the rate is the minimum.
const maxHalvings = 32

// Curve is the yearly inflation as a function of the staked ratio. It rises
// linearly from the minimum at 0 to the maximum at the ideal ratio. Above
// it the rate decays towards the minimum, halving the excess every falloff,
// approximated linearly between halvings.
type Curve struct {
	min, max, ideal, falloff *big.Rat
}

func perbillRat(p mesh.Perbill) *big.Rat {
	return big.NewRat(int64(p), mesh.Billion)
}

func NewCurve(p mesh.CurveParams) *Curve {
	return &Curve{
		min:     perbillRat(p.MinInflation),
		max:     perbillRat(p.MaxInflation),
		ideal:   perbillRat(p.IdealStake),
		falloff: perbillRat(p.Falloff),
	}
}

// Max is the yearly inflation at the ideal ratio.
func (c *Curve) Max() *big.Rat {
	return new(big.Rat).Set(c.max)
}

// Rate returns the yearly inflation at staked ratio x, clamped to [0, 1].
func (c *Curve) Rate(x *big.Rat) *big.Rat {
	one := big.NewRat(1, 1)
	switch {
	case x.Sign() < 0:
		x = new(big.Rat)
	case x.Cmp(one) > 0:
		x = one
	}
	span := new(big.Rat).Sub(c.max, c.min)

	if x.Cmp(c.ideal) <= 0 {
		if c.ideal.Sign() == 0 {
			return new(big.Rat).Set(c.max)
		}
		r := new(big.Rat).Quo(x, c.ideal)
		r.Mul(r, span)
		return r.Add(r, c.min)
	}
	if c.falloff.Sign() == 0 {
		return new(big.Rat).Set(c.min)
	}

	// k whole falloffs past the ideal ratio
	past := new(big.Rat).Sub(x, c.ideal)
	steps := new(big.Rat).Quo(past, c.falloff)
	k := new(big.Int).Quo(steps.Num(), steps.Denom())
	if k.Cmp(big.NewInt(maxHalvings)) >= 0 {
		return new(big.Rat).Set(c.min)
	}
	n := uint(k.Uint64())
	hi := new(big.Rat).Quo(span, new(big.Rat).SetInt(new(big.Int).Lsh(big.NewInt(1), n)))
	lo := new(big.Rat).Quo(hi, big.NewRat(2, 1))

	// position within the segment, in [0, 1)
	frac := new(big.Rat).Sub(steps, new(big.Rat).SetInt(k))
	r := new(big.Rat).Sub(lo, hi)
	r.Mul(r, frac)
	r.Add(r, hi)
	return r.Add(r, c.min)
}

// ComputeTotalPayout returns the payout of an era lasting duration and the
// most any era of that length may pay. Both are prorated from the yearly
// inflation of issuance.
func ComputeTotalPayout(c *Curve, staked, issuance *big.Int, duration uint64) (payout, max *big.Int) {
	portion := mesh.PerbillFromRational(new(big.Int).SetUint64(duration), big.NewInt(mesh.MillisecondsPerYear))

	var ratio *big.Rat
	if issuance.Sign() > 0 {
		ratio = new(big.Rat).SetFrac(staked, issuance)
	} else {
		ratio = new(big.Rat)
	}
	yearly := c.Rate(ratio)
	yearly.Mul(yearly, new(big.Rat).SetInt(issuance))
	payout = portion.Mul(new(big.Int).Quo(yearly.Num(), yearly.Denom()))

	top := new(big.Rat).Mul(c.max, new(big.Rat).SetInt(issuance))
	max = portion.Mul(new(big.Int).Quo(top.Num(), top.Denom()))
	return payout, max
}
