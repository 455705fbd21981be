// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slashing

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// Offence is a reported misbehaviour of a validator during an era it was
// exposed in.
type Offence struct {
	Offender  mesh.AccountID
	Exposure  *types.Exposure
	Fraction  mesh.Perbill
	Reporters []mesh.AccountID
}

// Report computes the slashes of offences committed in slashEra. They are
// applied at once without a defer duration, otherwise queued under the
// current era.
func (s *Slasher) Report(offences []Offence, slashEra, current mesh.EraIndex, windowStart mesh.EraIndex, invulnerables []mesh.AccountID) error {
	earliest, err := s.earliest.Get()
	if err != nil {
		return err
	}
	if !earliest.Set {
		if err := s.earliest.Set(earliestEra{Set: true, Era: current}); err != nil {
			return err
		}
	}

	skip := make(map[mesh.AccountID]bool, len(invulnerables))
	for _, a := range invulnerables {
		skip[a] = true
	}
	for _, o := range offences {
		if skip[o.Offender] {
			continue
		}
		exposure := o.Exposure
		if exposure == nil {
			exposure = types.NewExposure()
		}
		u, err := s.Compute(Params{
			Stash:       o.Offender,
			Fraction:    o.Fraction,
			Exposure:    exposure,
			SlashEra:    slashEra,
			WindowStart: windowStart,
			Now:         current,
		})
		if err != nil {
			return err
		}
		if u == nil {
			continue
		}
		u.Reporters = o.Reporters
		if s.deferDuration == 0 {
			if err := s.Apply(u); err != nil {
				return err
			}
			continue
		}
		queued, err := s.unapplied.Get(store.U32(current))
		if err != nil {
			return err
		}
		if err := s.unapplied.Set(store.U32(current), append(queued, u)); err != nil {
			return err
		}
	}
	return nil
}

// Unapplied returns the slashes queued in era.
func (s *Slasher) Unapplied(era mesh.EraIndex) ([]*Unapplied, error) {
	return s.unapplied.Get(store.U32(era))
}

// ApplyDue applies the slashes queued at least the defer duration before
// active.
func (s *Slasher) ApplyDue(active mesh.EraIndex) error {
	earliest, err := s.earliest.Get()
	if err != nil || !earliest.Set {
		return err
	}
	var keepFrom mesh.EraIndex
	if uint32(active) > s.deferDuration {
		keepFrom = active - mesh.EraIndex(s.deferDuration)
	}
	for era := earliest.Era; era < keepFrom; era++ {
		due, _, err := s.unapplied.Take(store.U32(era))
		if err != nil {
			return err
		}
		for _, u := range due {
			if err := s.Apply(u); err != nil {
				return err
			}
		}
	}
	if keepFrom > earliest.Era {
		earliest.Era = keepFrom
	}
	return s.earliest.Set(earliest)
}

// Cancel removes the queued slashes of era at indices, which must be
// sorted, distinct and in range.
func (s *Slasher) Cancel(era mesh.EraIndex, indices []uint32) error {
	if len(indices) == 0 {
		return types.ErrEmptyTargets
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			return types.ErrNotSortedAndUnique
		}
	}
	queued, err := s.unapplied.Get(store.U32(era))
	if err != nil {
		return err
	}
	if int(indices[len(indices)-1]) >= len(queued) {
		return types.ErrInvalidSlashIndex
	}
	for removed, index := range indices {
		i := int(index) - removed
		queued = append(queued[:i], queued[i+1:]...)
	}
	if len(queued) == 0 {
		s.unapplied.Delete(store.U32(era))
	} else if err := s.unapplied.Set(store.U32(era), queued); err != nil {
		return err
	}
	return s.events.Emit("SlashCancelled", &Cancelled{era, indices})
}

// Apply slashes the validator and nominators of u and pays the reporters.
func (s *Slasher) Apply(u *Unapplied) error {
	payout := new(big.Int)
	if u.Payout != nil {
		payout.Set(u.Payout)
	}
	slashed := new(big.Int)
	if err := s.doSlash(u.Validator, u.Own, payout, slashed); err != nil {
		return err
	}
	for _, o := range u.Others {
		if err := s.doSlash(o.Who, o.Value, payout, slashed); err != nil {
			return err
		}
	}
	return s.payReporters(payout, slashed, u.Reporters)
}

func (s *Slasher) doSlash(stash mesh.AccountID, value, payout, slashed *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return nil
	}
	taken, err := s.host.SlashBond(stash, value)
	if err != nil {
		return err
	}
	if taken.Sign() == 0 {
		return nil
	}
	burnt, missing, err := s.host.SlashBalance(stash, taken)
	if err != nil {
		return err
	}
	slashed.Add(slashed, burnt)
	if missing.Sign() > 0 {
		payout.Sub(payout, missing)
		if payout.Sign() < 0 {
			payout.SetInt64(0)
		}
	}
	return s.events.Emit("Slash", &Slashed{stash, taken}, mesh.Bytes32(stash))
}

func (s *Slasher) payReporters(payout, slashed *big.Int, reporters []mesh.AccountID) error {
	if payout.Sign() == 0 || len(reporters) == 0 {
		return s.absorb(slashed)
	}
	if payout.Cmp(slashed) > 0 {
		payout = new(big.Int).Set(slashed)
	}
	rest := new(big.Int).Sub(slashed, payout)
	each := new(big.Int).Quo(payout, big.NewInt(int64(len(reporters))))
	for _, r := range reporters {
		paid, err := s.host.DepositCreating(r, each)
		if err != nil {
			return err
		}
		rest.Add(rest, new(big.Int).Sub(each, paid))
	}
	rest.Add(rest, new(big.Int).Sub(payout, new(big.Int).Mul(each, big.NewInt(int64(len(reporters))))))
	return s.absorb(rest)
}

func (s *Slasher) absorb(amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return s.host.Absorb(amount)
}
