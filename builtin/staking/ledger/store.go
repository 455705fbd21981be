// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

// LockID is the balance lock held on every bonded stash.
var LockID = mesh.LockIdentifier{'s', 't', 'a', 'k', 'i', 'n', 'g', ' '}

// Currency is the part of the balances module the ledger needs.
type Currency interface {
	MinimumBalance() *big.Int
	FreeBalance(who mesh.AccountID) (*big.Int, error)
	SetLock(id mesh.LockIdentifier, who mesh.AccountID, amount *big.Int) error
	RemoveLock(id mesh.LockIdentifier, who mesh.AccountID) error
}

// Event payloads.
type (
	Bonded struct {
		Stash  mesh.AccountID
		Amount *big.Int
	}
	Unbonded  Bonded
	Withdrawn Bonded
)

// Store keeps the stash/controller pairing, the ledgers and the payees.
type Store struct {
	bonded   *store.Mapping[mesh.AccountID, mesh.AccountID]
	ledgers  *store.Mapping[mesh.AccountID, *StakingLedger]
	payees   *store.Mapping[mesh.AccountID, types.RewardDestination]
	currency Currency
	events   *events.Emitter

	bondingDuration uint32
	maxChunks       int
}

func New(st *state.State, cfg *mesh.Config, currency Currency, log *events.Log) *Store {
	sctx := store.NewContext(types.Module, st)
	return &Store{
		bonded:          store.NewMapping[mesh.AccountID, mesh.AccountID](sctx, "bonded"),
		ledgers:         store.NewMapping[mesh.AccountID, *StakingLedger](sctx, "ledger"),
		payees:          store.NewMapping[mesh.AccountID, types.RewardDestination](sctx, "payee"),
		currency:        currency,
		events:          log.For(types.Module),
		bondingDuration: cfg.BondingDuration,
		maxChunks:       cfg.MaxUnlockChunks,
	}
}

// Controller returns the controller paired with stash.
func (s *Store) Controller(stash mesh.AccountID) (mesh.AccountID, bool, error) {
	return s.bonded.Find(stash)
}

// Ledger returns the ledger controlled by controller.
func (s *Store) Ledger(controller mesh.AccountID) (*StakingLedger, bool, error) {
	return s.ledgers.Find(controller)
}

// LedgerOfStash follows the pairing of stash to its ledger.
func (s *Store) LedgerOfStash(stash mesh.AccountID) (*StakingLedger, bool, error) {
	controller, ok, err := s.bonded.Find(stash)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.ledgers.Find(controller)
}

// Active returns the active bond of stash, zero if unbonded.
func (s *Store) Active(stash mesh.AccountID) (*big.Int, error) {
	l, ok, err := s.LedgerOfStash(stash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(l.Active), nil
}

func (s *Store) Payee(stash mesh.AccountID) (types.RewardDestination, error) {
	return s.payees.Get(stash)
}

// EnsureController loads the ledger of controller or fails with
// ErrNotController.
func (s *Store) EnsureController(controller mesh.AccountID) (*StakingLedger, error) {
	l, ok, err := s.ledgers.Find(controller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reverts.Wrapf(types.ErrNotController, "account %v", controller.AbbrevString())
	}
	return l, nil
}

// EnsureStash returns the controller of stash or fails with ErrNotStash.
func (s *Store) EnsureStash(stash mesh.AccountID) (mesh.AccountID, error) {
	controller, ok, err := s.bonded.Find(stash)
	if err != nil {
		return mesh.AccountID{}, err
	}
	if !ok {
		return mesh.AccountID{}, reverts.Wrapf(types.ErrNotStash, "account %v", stash.AbbrevString())
	}
	return controller, nil
}

// Update persists l under controller and locks its total on the stash.
func (s *Store) Update(controller mesh.AccountID, l *StakingLedger) error {
	if err := s.currency.SetLock(LockID, l.Stash, l.Total); err != nil {
		return err
	}
	return s.ledgers.Set(controller, l)
}

// Bond pairs stash with controller and bonds value, capped by the free
// balance of stash.
func (s *Store) Bond(stash, controller mesh.AccountID, value *big.Int, payee types.RewardDestination) error {
	if ok, err := s.bonded.Has(stash); err != nil {
		return err
	} else if ok {
		return types.ErrAlreadyBonded
	}
	if ok, err := s.ledgers.Has(controller); err != nil {
		return err
	} else if ok {
		return types.ErrAlreadyPaired
	}
	if value.Cmp(s.currency.MinimumBalance()) < 0 {
		return types.ErrInsufficientValue
	}

	free, err := s.currency.FreeBalance(stash)
	if err != nil {
		return err
	}
	bonded := new(big.Int).Set(value)
	if bonded.Cmp(free) > 0 {
		bonded.Set(free)
	}
	if err := s.bonded.Set(stash, controller); err != nil {
		return err
	}
	if err := s.payees.Set(stash, payee); err != nil {
		return err
	}
	if err := s.Update(controller, newLedger(stash, bonded)); err != nil {
		return err
	}
	return s.events.Emit("Bonded", &Bonded{stash, bonded}, mesh.Bytes32(stash))
}

// BondExtra adds up to max of the unbonded free balance of stash to its
// bond. It returns the amount added.
func (s *Store) BondExtra(stash mesh.AccountID, max *big.Int) (*big.Int, error) {
	controller, err := s.EnsureStash(stash)
	if err != nil {
		return nil, err
	}
	l, err := s.EnsureController(controller)
	if err != nil {
		return nil, err
	}
	free, err := s.currency.FreeBalance(stash)
	if err != nil {
		return nil, err
	}
	extra := new(big.Int)
	if free.Cmp(l.Total) > 0 {
		extra.Sub(free, l.Total)
		if extra.Cmp(max) > 0 {
			extra.Set(max)
		}
	}
	if extra.Sign() == 0 {
		return extra, nil
	}
	l.Total.Add(l.Total, extra)
	l.Active.Add(l.Active, extra)
	if err := s.Update(controller, l); err != nil {
		return nil, err
	}
	return extra, s.events.Emit("Bonded", &Bonded{stash, extra}, mesh.Bytes32(stash))
}

// Unbond schedules up to value of the active bond for withdrawal after the
// bonding duration.
func (s *Store) Unbond(controller mesh.AccountID, value *big.Int, current mesh.EraIndex) (*big.Int, error) {
	l, err := s.EnsureController(controller)
	if err != nil {
		return nil, err
	}
	if len(l.Unlocking) >= s.maxChunks {
		return nil, types.ErrNoMoreChunks
	}
	moved := l.unbond(value, current+mesh.EraIndex(s.bondingDuration), s.currency.MinimumBalance())
	if moved.Sign() == 0 {
		return moved, nil
	}
	if err := s.Update(controller, l); err != nil {
		return nil, err
	}
	return moved, s.events.Emit("Unbonded", &Unbonded{l.Stash, moved}, mesh.Bytes32(l.Stash))
}

// WithdrawUnbonded releases the chunks matured by current. When nothing is
// left bonded the pairing is removed and the caller must clear the rest of
// the stash state; killed reports that case.
func (s *Store) WithdrawUnbonded(controller mesh.AccountID, current mesh.EraIndex) (stash mesh.AccountID, killed bool, err error) {
	l, err := s.EnsureController(controller)
	if err != nil {
		return mesh.AccountID{}, false, err
	}
	withdrawn := l.consolidateUnlocked(current)
	if l.IsEmpty() {
		if err := s.Kill(l.Stash); err != nil {
			return mesh.AccountID{}, false, err
		}
		killed = true
	} else if err := s.Update(controller, l); err != nil {
		return mesh.AccountID{}, false, err
	}
	if withdrawn.Sign() > 0 {
		if err := s.events.Emit("Withdrawn", &Withdrawn{l.Stash, withdrawn}, mesh.Bytes32(l.Stash)); err != nil {
			return mesh.AccountID{}, false, err
		}
	}
	return l.Stash, killed, nil
}

func (s *Store) SetPayee(controller mesh.AccountID, dest types.RewardDestination) error {
	l, err := s.EnsureController(controller)
	if err != nil {
		return err
	}
	return s.payees.Set(l.Stash, dest)
}

// SetController moves the ledger of stash to a new controller. It returns
// the previous controller.
func (s *Store) SetController(stash, controller mesh.AccountID) (mesh.AccountID, error) {
	old, err := s.EnsureStash(stash)
	if err != nil {
		return mesh.AccountID{}, err
	}
	if ok, err := s.ledgers.Has(controller); err != nil {
		return mesh.AccountID{}, err
	} else if ok {
		return mesh.AccountID{}, types.ErrAlreadyPaired
	}
	l, _, err := s.ledgers.Take(old)
	if err != nil {
		return mesh.AccountID{}, err
	}
	if err := s.bonded.Set(stash, controller); err != nil {
		return mesh.AccountID{}, err
	}
	return old, s.ledgers.Set(controller, l)
}

// Kill removes the pairing, ledger and payee of stash and releases its
// lock.
func (s *Store) Kill(stash mesh.AccountID) error {
	controller, ok, err := s.bonded.Take(stash)
	if err != nil {
		return err
	}
	if ok {
		s.ledgers.Delete(controller)
	}
	s.payees.Delete(stash)
	return s.currency.RemoveLock(LockID, stash)
}

// Slash reduces the bond of stash by up to value and returns the amount
// taken off the ledger. The caller burns the same amount of balance.
func (s *Store) Slash(stash mesh.AccountID, value *big.Int) (*big.Int, error) {
	controller, ok, err := s.bonded.Find(stash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	l, ok, err := s.ledgers.Find(controller)
	if err != nil || !ok {
		return new(big.Int), err
	}
	taken := l.Slash(value, s.currency.MinimumBalance())
	if taken.Sign() == 0 {
		return taken, nil
	}
	return taken, s.Update(controller, l)
}

// Restake bonds amount just credited to stash.
func (s *Store) Restake(stash mesh.AccountID, amount *big.Int) error {
	controller, ok, err := s.bonded.Find(stash)
	if err != nil || !ok {
		return err
	}
	l, ok, err := s.ledgers.Find(controller)
	if err != nil || !ok {
		return err
	}
	l.Active.Add(l.Active, amount)
	l.Total.Add(l.Total, amount)
	return s.Update(controller, l)
}
