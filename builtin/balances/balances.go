// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package balances holds native token balances and the named locks placed
// on them. A lock restricts how much of the free balance can leave the
// account; locks overlap, so the effective restriction is the largest one.
package balances

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "balances"

var (
	ErrInsufficientBalance   = reverts.New(reverts.Amount, module, "insufficient balance")
	ErrLiquidityRestrictions = reverts.New(reverts.Amount, module, "liquidity restrictions")
	ErrExistentialDeposit    = reverts.New(reverts.Amount, module, "below minimum balance")
	ErrZeroAmount            = reverts.New(reverts.Amount, module, "zero amount")
	ErrOverflow              = reverts.New(reverts.Amount, module, "balance overflow")
)

type Lock struct {
	ID     mesh.LockIdentifier
	Amount *big.Int
}

type Balances struct {
	free     *store.Mapping[mesh.AccountID, *big.Int]
	locks    *store.Mapping[mesh.AccountID, []Lock]
	issuance *store.Value[*big.Int]
	minimum  *big.Int
	events   *events.Emitter
}

func New(st *state.State, minimum *big.Int, log *events.Log) *Balances {
	sctx := store.NewContext(module, st)
	return &Balances{
		free:     store.NewMapping[mesh.AccountID, *big.Int](sctx, "free"),
		locks:    store.NewMapping[mesh.AccountID, []Lock](sctx, "locks"),
		issuance: store.NewValue[*big.Int](sctx, "issuance"),
		minimum:  new(big.Int).Set(minimum),
		events:   log.For(module),
	}
}

// MinimumBalance is the existential deposit.
func (b *Balances) MinimumBalance() *big.Int {
	return new(big.Int).Set(b.minimum)
}

func (b *Balances) FreeBalance(who mesh.AccountID) (*big.Int, error) {
	return b.free.Get(who)
}

func (b *Balances) TotalIssuance() (*big.Int, error) {
	return b.issuance.Get()
}

// Locked returns the largest lock on who.
func (b *Balances) Locked(who mesh.AccountID) (*big.Int, error) {
	locks, err := b.locks.Get(who)
	if err != nil {
		return nil, err
	}
	max := new(big.Int)
	for _, l := range locks {
		if l.Amount.Cmp(max) > 0 {
			max.Set(l.Amount)
		}
	}
	return max, nil
}

// LockOf returns the amount of the lock id on who, zero if absent.
func (b *Balances) LockOf(id mesh.LockIdentifier, who mesh.AccountID) (*big.Int, error) {
	locks, err := b.locks.Get(who)
	if err != nil {
		return nil, err
	}
	for _, l := range locks {
		if l.ID == id {
			return new(big.Int).Set(l.Amount), nil
		}
	}
	return new(big.Int), nil
}

// Usable returns the part of the free balance not restricted by locks.
func (b *Balances) Usable(who mesh.AccountID) (*big.Int, error) {
	free, err := b.free.Get(who)
	if err != nil {
		return nil, err
	}
	locked, err := b.Locked(who)
	if err != nil {
		return nil, err
	}
	usable := free.Sub(free, locked)
	if usable.Sign() < 0 {
		usable.SetInt64(0)
	}
	return usable, nil
}

// SetLock creates or replaces the lock id on who.
func (b *Balances) SetLock(id mesh.LockIdentifier, who mesh.AccountID, amount *big.Int) error {
	locks, err := b.locks.Get(who)
	if err != nil {
		return err
	}
	replaced := false
	for i := range locks {
		if locks[i].ID == id {
			locks[i].Amount = new(big.Int).Set(amount)
			replaced = true
		}
	}
	if !replaced {
		locks = append(locks, Lock{ID: id, Amount: new(big.Int).Set(amount)})
	}
	return b.locks.Set(who, locks)
}

func (b *Balances) RemoveLock(id mesh.LockIdentifier, who mesh.AccountID) error {
	locks, err := b.locks.Get(who)
	if err != nil {
		return err
	}
	kept := locks[:0]
	for _, l := range locks {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		b.locks.Delete(who)
		return nil
	}
	return b.locks.Set(who, kept)
}

func (b *Balances) setFree(who mesh.AccountID, v *big.Int) error {
	if v.Sign() == 0 {
		b.free.Delete(who)
		return nil
	}
	return b.free.Set(who, v)
}

func (b *Balances) addIssuance(delta *big.Int) error {
	total, err := b.issuance.Get()
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Cmp(mesh.MaxU128()) > 0 {
		return ErrOverflow
	}
	return b.issuance.Set(total)
}

// Slash removes up to amount from the free balance of who regardless of
// locks, burning it. It returns the amount slashed and the part that could
// not be covered.
func (b *Balances) Slash(who mesh.AccountID, amount *big.Int) (slashed, missing *big.Int, err error) {
	free, err := b.free.Get(who)
	if err != nil {
		return nil, nil, err
	}
	slashed = new(big.Int).Set(amount)
	if slashed.Cmp(free) > 0 {
		slashed.Set(free)
	}
	missing = new(big.Int).Sub(amount, slashed)
	if slashed.Sign() == 0 {
		return slashed, missing, nil
	}
	if err := b.setFree(who, free.Sub(free, slashed)); err != nil {
		return nil, nil, err
	}
	if err := b.addIssuance(new(big.Int).Neg(slashed)); err != nil {
		return nil, nil, err
	}
	if err := b.events.Emit("Slashed", &Slashed{who, slashed}, mesh.Bytes32(who)); err != nil {
		return nil, nil, err
	}
	return slashed, missing, nil
}

// DepositIntoExisting mints amount into who when the account exists. It
// returns the amount credited, zero for a dead account.
func (b *Balances) DepositIntoExisting(who mesh.AccountID, amount *big.Int) (*big.Int, error) {
	free, err := b.free.Get(who)
	if err != nil {
		return nil, err
	}
	if free.Sign() == 0 || amount.Sign() == 0 {
		return new(big.Int), nil
	}
	if err := b.deposit(who, free, amount); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// DepositCreating mints amount into who, creating the account if the amount
// reaches the minimum balance. It returns the amount credited.
func (b *Balances) DepositCreating(who mesh.AccountID, amount *big.Int) (*big.Int, error) {
	free, err := b.free.Get(who)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 || (free.Sign() == 0 && amount.Cmp(b.minimum) < 0) {
		return new(big.Int), nil
	}
	if err := b.deposit(who, free, amount); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

func (b *Balances) deposit(who mesh.AccountID, free, amount *big.Int) error {
	if err := b.setFree(who, new(big.Int).Add(free, amount)); err != nil {
		return err
	}
	if err := b.addIssuance(amount); err != nil {
		return err
	}
	return b.events.Emit("Deposit", &Deposit{who, new(big.Int).Set(amount)}, mesh.Bytes32(who))
}

// ensureCanLeave checks amount may leave who: it must be usable and must not
// leave a dust account behind.
func (b *Balances) ensureCanLeave(who mesh.AccountID, amount *big.Int) (*big.Int, error) {
	free, err := b.free.Get(who)
	if err != nil {
		return nil, err
	}
	if free.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	usable, err := b.Usable(who)
	if err != nil {
		return nil, err
	}
	if usable.Cmp(amount) < 0 {
		return nil, ErrLiquidityRestrictions
	}
	rest := free.Sub(free, amount)
	if rest.Sign() > 0 && rest.Cmp(b.minimum) < 0 {
		return nil, ErrExistentialDeposit
	}
	return rest, nil
}

// Withdraw burns amount from the usable balance of who.
func (b *Balances) Withdraw(who mesh.AccountID, amount *big.Int) error {
	rest, err := b.ensureCanLeave(who, amount)
	if err != nil {
		return err
	}
	if err := b.setFree(who, rest); err != nil {
		return err
	}
	return b.addIssuance(new(big.Int).Neg(amount))
}

// Transfer moves amount from the usable balance of from to to.
func (b *Balances) Transfer(from, to mesh.AccountID, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if from == to {
		return nil
	}
	rest, err := b.ensureCanLeave(from, amount)
	if err != nil {
		return err
	}
	dest, err := b.free.Get(to)
	if err != nil {
		return err
	}
	if dest.Sign() == 0 && amount.Cmp(b.minimum) < 0 {
		return ErrExistentialDeposit
	}
	if err := b.setFree(from, rest); err != nil {
		return err
	}
	if err := b.setFree(to, dest.Add(dest, amount)); err != nil {
		return err
	}
	return b.events.Emit("Transfer", &Transfer{from, to, new(big.Int).Set(amount)}, mesh.Bytes32(from), mesh.Bytes32(to))
}

type (
	Slashed struct {
		Who    mesh.AccountID
		Amount *big.Int
	}
	Deposit struct {
		Who    mesh.AccountID
		Amount *big.Int
	}
	Transfer struct {
		From   mesh.AccountID
		To     mesh.AccountID
		Amount *big.Int
	}
)
