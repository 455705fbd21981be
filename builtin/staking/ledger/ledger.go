// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"

	"github.com/stakemesh/stakemesh/mesh"
)

// UnlockChunk is stake leaving the system, withdrawable from Era on.
type UnlockChunk struct {
	Value *big.Int
	Era   mesh.EraIndex
}

// StakingLedger is the bonded stake of a stash, keyed by its controller.
// Total is always Active plus the sum of the unlocking chunks.
type StakingLedger struct {
	Stash     mesh.AccountID
	Total     *big.Int
	Active    *big.Int
	Unlocking []UnlockChunk
}

func newLedger(stash mesh.AccountID, value *big.Int) *StakingLedger {
	return &StakingLedger{
		Stash:  stash,
		Total:  new(big.Int).Set(value),
		Active: new(big.Int).Set(value),
	}
}

// Consistent reports whether Total matches Active plus the chunks.
func (l *StakingLedger) Consistent() bool {
	sum := new(big.Int).Set(l.Active)
	for _, c := range l.Unlocking {
		sum.Add(sum, c.Value)
	}
	return sum.Cmp(l.Total) == 0
}

// IsEmpty reports whether nothing is left bonded or unlocking.
func (l *StakingLedger) IsEmpty() bool {
	return l.Active.Sign() == 0 && len(l.Unlocking) == 0
}

// unbond moves up to value of the active stake into a new chunk maturing at
// era. A residual active stake below minimum goes along. It returns the
// amount moved.
func (l *StakingLedger) unbond(value *big.Int, era mesh.EraIndex, minimum *big.Int) *big.Int {
	moved := new(big.Int).Set(value)
	if moved.Cmp(l.Active) > 0 {
		moved.Set(l.Active)
	}
	if moved.Sign() == 0 {
		return moved
	}
	l.Active.Sub(l.Active, moved)
	if l.Active.Cmp(minimum) < 0 {
		moved.Add(moved, l.Active)
		l.Active.SetInt64(0)
	}
	l.Unlocking = append(l.Unlocking, UnlockChunk{Value: new(big.Int).Set(moved), Era: era})
	return moved
}

// consolidateUnlocked drops the chunks matured by current and returns their
// sum.
func (l *StakingLedger) consolidateUnlocked(current mesh.EraIndex) *big.Int {
	withdrawn := new(big.Int)
	kept := l.Unlocking[:0]
	for _, c := range l.Unlocking {
		if c.Era > current {
			kept = append(kept, c)
		} else {
			withdrawn.Add(withdrawn, c.Value)
		}
	}
	l.Unlocking = kept
	l.Total.Sub(l.Total, withdrawn)
	return withdrawn
}

// Slash removes up to value, from the active stake first and then from the
// unlocking chunks in order. A part left at or below minimum is swept along
// so no dust stays bonded. It returns the amount removed.
func (l *StakingLedger) Slash(value, minimum *big.Int) *big.Int {
	preTotal := new(big.Int).Set(l.Total)
	remaining := new(big.Int).Set(value)

	slashOutOf := func(target *big.Int) {
		fromTarget := new(big.Int).Set(remaining)
		if fromTarget.Cmp(target) > 0 {
			fromTarget.Set(target)
		}
		if fromTarget.Sign() == 0 {
			return
		}
		target.Sub(target, fromTarget)
		if target.Cmp(minimum) <= 0 {
			fromTarget.Add(fromTarget, target)
			remaining.Add(remaining, target)
			target.SetInt64(0)
		}
		l.Total.Sub(l.Total, fromTarget)
		remaining.Sub(remaining, fromTarget)
	}

	slashOutOf(l.Active)
	for i := range l.Unlocking {
		if remaining.Sign() == 0 {
			break
		}
		slashOutOf(l.Unlocking[i].Value)
	}
	kept := l.Unlocking[:0]
	for _, c := range l.Unlocking {
		if c.Value.Sign() > 0 {
			kept = append(kept, c)
		}
	}
	l.Unlocking = kept
	if l.Total.Sign() < 0 {
		l.Total.SetInt64(0)
	}
	return preTotal.Sub(preTotal, l.Total)
}
