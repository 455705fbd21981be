// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package portfolio keeps the asset holdings of identities. Every identity
// has a default portfolio and any number of numbered user portfolios; each
// holds per asset balances with a locked part that cannot leave until
// unlocked, and non-fungible tokens that can be locked individually.
package portfolio

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "portfolio"

var (
	ErrPortfolioDoesNotExist = reverts.New(reverts.State, module, "portfolio does not exist")
	ErrPortfolioNameExists   = reverts.New(reverts.State, module, "portfolio name already in use")
	ErrEmptyName             = reverts.New(reverts.Amount, module, "empty portfolio name")
	ErrDefaultPortfolio      = reverts.New(reverts.State, module, "cannot modify the default portfolio")
	ErrPortfolioNotEmpty     = reverts.New(reverts.State, module, "portfolio not empty")
	ErrInsufficientBalance   = reverts.New(reverts.Amount, module, "insufficient portfolio balance")
	ErrUnlockExceedsLock     = reverts.New(reverts.Amount, module, "unlock exceeds locked amount")
	ErrZeroAmount            = reverts.New(reverts.Amount, module, "zero amount")
	ErrNotCustodian          = reverts.New(reverts.Authorization, module, "not custodian")
	ErrNoPermission          = reverts.New(reverts.Authorization, module, "key lacks portfolio permission")
	ErrDifferentIdentity     = reverts.New(reverts.State, module, "portfolios belong to different identities")
	ErrSamePortfolio         = reverts.New(reverts.State, module, "source and destination are the same portfolio")
	ErrNoSuchAuthorization   = reverts.New(reverts.State, module, "no such custody authorization")
	ErrNFTNotOwned           = reverts.New(reverts.State, module, "nft not held by portfolio")
	ErrNFTLocked             = reverts.New(reverts.State, module, "nft is locked")
	ErrNFTNotLocked          = reverts.New(reverts.State, module, "nft is not locked")
	ErrNFTExists             = reverts.New(reverts.State, module, "nft already minted")
)

// Keys is the identity registry as seen by portfolios.
type Keys interface {
	IdentityOf(account mesh.AccountID) (mesh.IdentityID, bool, error)
	HasPortfolioPermission(account mesh.AccountID, portfolio mesh.PortfolioID) (bool, error)
}

type (
	holdingKey = store.Pair[mesh.PortfolioID, mesh.Ticker]
	nftKey     = store.Pair[mesh.Ticker, store.U64]
)

type Portfolio struct {
	keys Keys

	nextNumber *store.Mapping[mesh.IdentityID, uint64]
	names      *store.Mapping[mesh.PortfolioID, string]
	nameIndex  *store.Mapping[store.Pair[mesh.IdentityID, store.Str], uint64]
	balances   *store.Mapping[holdingKey, *big.Int]
	locked     *store.Mapping[holdingKey, *big.Int]
	holdings   *store.Mapping[mesh.PortfolioID, uint64]
	nftCount   *store.Mapping[holdingKey, uint64]
	nftOwner   *store.Mapping[nftKey, mesh.PortfolioID]
	nftLocked  *store.Mapping[nftKey, bool]
	custodian  *store.Mapping[mesh.PortfolioID, mesh.IdentityID]
	custodyReq *store.Mapping[store.Pair[mesh.PortfolioID, mesh.IdentityID], bool]

	events *events.Emitter
}

func New(st *state.State, keys Keys, log *events.Log) *Portfolio {
	sctx := store.NewContext(module, st)
	return &Portfolio{
		keys:       keys,
		nextNumber: store.NewMapping[mesh.IdentityID, uint64](sctx, "next-number"),
		names:      store.NewMapping[mesh.PortfolioID, string](sctx, "names"),
		nameIndex:  store.NewMapping[store.Pair[mesh.IdentityID, store.Str], uint64](sctx, "name-index"),
		balances:   store.NewMapping[holdingKey, *big.Int](sctx, "balances"),
		locked:     store.NewMapping[holdingKey, *big.Int](sctx, "locked"),
		holdings:   store.NewMapping[mesh.PortfolioID, uint64](sctx, "holdings"),
		nftCount:   store.NewMapping[holdingKey, uint64](sctx, "nft-count"),
		nftOwner:   store.NewMapping[nftKey, mesh.PortfolioID](sctx, "nft-owner"),
		nftLocked:  store.NewMapping[nftKey, bool](sctx, "nft-locked"),
		custodian:  store.NewMapping[mesh.PortfolioID, mesh.IdentityID](sctx, "custodian"),
		custodyReq: store.NewMapping[store.Pair[mesh.PortfolioID, mesh.IdentityID], bool](sctx, "custody-requests"),
		events:     log.For(module),
	}
}

// Exists reports whether pid exists. Default portfolios always exist.
func (p *Portfolio) Exists(pid mesh.PortfolioID) (bool, error) {
	if pid.IsDefault() {
		return true, nil
	}
	return p.names.Has(pid)
}

func (p *Portfolio) ensureExists(pid mesh.PortfolioID) error {
	ok, err := p.Exists(pid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPortfolioDoesNotExist
	}
	return nil
}

// Name returns the name of a user portfolio.
func (p *Portfolio) Name(pid mesh.PortfolioID) (string, error) {
	return p.names.Get(pid)
}

// CreatePortfolio creates the next numbered portfolio of did.
func (p *Portfolio) CreatePortfolio(did mesh.IdentityID, name string) (mesh.PortfolioNumber, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	idx := store.NewPair(did, store.Str(name))
	if taken, err := p.nameIndex.Has(idx); err != nil {
		return 0, err
	} else if taken {
		return 0, ErrPortfolioNameExists
	}
	next, err := p.nextNumber.Get(did)
	if err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	pid := mesh.UserPortfolio(did, mesh.PortfolioNumber(next))
	if err := p.nextNumber.Set(did, next+1); err != nil {
		return 0, err
	}
	if err := p.names.Set(pid, name); err != nil {
		return 0, err
	}
	if err := p.nameIndex.Set(idx, next); err != nil {
		return 0, err
	}
	return pid.Number, p.events.Emit("PortfolioCreated", &Named{pid, name}, mesh.Bytes32(did))
}

func (p *Portfolio) RenamePortfolio(did mesh.IdentityID, num mesh.PortfolioNumber, name string) error {
	pid := mesh.UserPortfolio(did, num)
	if pid.IsDefault() {
		return ErrDefaultPortfolio
	}
	if name == "" {
		return ErrEmptyName
	}
	old, found, err := p.names.Find(pid)
	if err != nil {
		return err
	}
	if !found {
		return ErrPortfolioDoesNotExist
	}
	idx := store.NewPair(did, store.Str(name))
	if taken, err := p.nameIndex.Has(idx); err != nil {
		return err
	} else if taken {
		return ErrPortfolioNameExists
	}
	p.nameIndex.Delete(store.NewPair(did, store.Str(old)))
	if err := p.nameIndex.Set(idx, uint64(num)); err != nil {
		return err
	}
	if err := p.names.Set(pid, name); err != nil {
		return err
	}
	return p.events.Emit("PortfolioRenamed", &Named{pid, name}, mesh.Bytes32(did))
}

// DeletePortfolio removes an empty user portfolio.
func (p *Portfolio) DeletePortfolio(did mesh.IdentityID, num mesh.PortfolioNumber) error {
	pid := mesh.UserPortfolio(did, num)
	if pid.IsDefault() {
		return ErrDefaultPortfolio
	}
	name, found, err := p.names.Find(pid)
	if err != nil {
		return err
	}
	if !found {
		return ErrPortfolioDoesNotExist
	}
	n, err := p.holdings.Get(pid)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrPortfolioNotEmpty
	}
	p.names.Delete(pid)
	p.nameIndex.Delete(store.NewPair(did, store.Str(name)))
	p.custodian.Delete(pid)
	return p.events.Emit("PortfolioDeleted", &Named{pid, name}, mesh.Bytes32(did))
}

// Balance returns the total holding of ticker in pid, locked included.
func (p *Portfolio) Balance(pid mesh.PortfolioID, ticker mesh.Ticker) (*big.Int, error) {
	return p.balances.Get(store.NewPair(pid, ticker))
}

// Locked returns the locked part of the holding.
func (p *Portfolio) Locked(pid mesh.PortfolioID, ticker mesh.Ticker) (*big.Int, error) {
	return p.locked.Get(store.NewPair(pid, ticker))
}

// FreeBalance returns balance minus locked.
func (p *Portfolio) FreeBalance(pid mesh.PortfolioID, ticker mesh.Ticker) (*big.Int, error) {
	bal, err := p.Balance(pid, ticker)
	if err != nil {
		return nil, err
	}
	locked, err := p.Locked(pid, ticker)
	if err != nil {
		return nil, err
	}
	return bal.Sub(bal, locked), nil
}

func (p *Portfolio) adjustHoldings(pid mesh.PortfolioID, delta int64) error {
	n, err := p.holdings.Get(pid)
	if err != nil {
		return err
	}
	n = uint64(int64(n) + delta)
	if n == 0 {
		p.holdings.Delete(pid)
		return nil
	}
	return p.holdings.Set(pid, n)
}

func (p *Portfolio) setBalance(key holdingKey, old, v *big.Int) error {
	switch {
	case old.Sign() == 0 && v.Sign() > 0:
		if err := p.adjustHoldings(key.A, 1); err != nil {
			return err
		}
	case old.Sign() > 0 && v.Sign() == 0:
		if err := p.adjustHoldings(key.A, -1); err != nil {
			return err
		}
	}
	if v.Sign() == 0 {
		p.balances.Delete(key)
		return nil
	}
	return p.balances.Set(key, v)
}

// Credit adds amount to the holding.
func (p *Portfolio) Credit(pid mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	key := store.NewPair(pid, ticker)
	bal, err := p.balances.Get(key)
	if err != nil {
		return err
	}
	return p.setBalance(key, bal, new(big.Int).Add(bal, amount))
}

// Debit removes amount from the unlocked part of the holding.
func (p *Portfolio) Debit(pid mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	free, err := p.FreeBalance(pid, ticker)
	if err != nil {
		return err
	}
	if free.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	key := store.NewPair(pid, ticker)
	bal, err := p.balances.Get(key)
	if err != nil {
		return err
	}
	return p.setBalance(key, bal, new(big.Int).Sub(bal, amount))
}

// Transfer moves an unlocked amount between portfolios without any
// compliance check.
func (p *Portfolio) Transfer(from, to mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error {
	if err := p.ensureExists(to); err != nil {
		return err
	}
	if err := p.Debit(from, ticker, amount); err != nil {
		return err
	}
	return p.Credit(to, ticker, amount)
}

// Lock reserves amount of the free holding.
func (p *Portfolio) Lock(pid mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error {
	free, err := p.FreeBalance(pid, ticker)
	if err != nil {
		return err
	}
	if free.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	key := store.NewPair(pid, ticker)
	locked, err := p.locked.Get(key)
	if err != nil {
		return err
	}
	return p.locked.Set(key, locked.Add(locked, amount))
}

// Unlock releases amount of a prior lock.
func (p *Portfolio) Unlock(pid mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error {
	key := store.NewPair(pid, ticker)
	locked, err := p.locked.Get(key)
	if err != nil {
		return err
	}
	if locked.Cmp(amount) < 0 {
		return ErrUnlockExceedsLock
	}
	locked.Sub(locked, amount)
	if locked.Sign() == 0 {
		p.locked.Delete(key)
		return nil
	}
	return p.locked.Set(key, locked)
}

type Named struct {
	Portfolio mesh.PortfolioID
	Name      string
}
