// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package asset is the asset registry and the transfer validator consulted
// by settlement.
package asset

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "asset"

// Unit is the granularity of indivisible assets.
const Unit = 1_000_000

var unit = big.NewInt(Unit)

var (
	ErrTickerExists         = reverts.New(reverts.State, module, "token already created")
	ErrNoSuchAsset          = reverts.New(reverts.State, module, "no such asset")
	ErrNotIssuer            = reverts.New(reverts.Authorization, module, "not asset issuer")
	ErrInvalidGranularity   = reverts.New(reverts.Amount, module, "invalid granularity")
	ErrZeroAmount           = reverts.New(reverts.Amount, module, "zero amount")
	ErrTotalSupplyOverflow  = reverts.New(reverts.Amount, module, "total supply above limit")
	ErrNotFungible          = reverts.New(reverts.State, module, "asset is non-fungible")
	ErrNotNonFungible       = reverts.New(reverts.State, module, "asset is fungible")
	ErrTransferRejected     = reverts.New(reverts.Execution, module, "transfer rejected by compliance")
	ErrInvalidTransfer      = reverts.New(reverts.Execution, module, "invalid transfer")
	ErrDuplicateReceiver    = reverts.New(reverts.State, module, "receiver already allowed")
	ErrReceiverNotInPolicy  = reverts.New(reverts.State, module, "receiver not in policy")
	ErrMissingIdentity      = reverts.New(reverts.Authorization, module, "caller has no identity")
)

// Result is the outcome of a transfer validation.
type Result uint8

const (
	Success Result = iota
	Failure
	Invalid
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "invalid"
	}
}

type Asset struct {
	Issuer            mesh.IdentityID
	Divisible         bool
	NonFungible       bool
	TotalSupply       *big.Int
	ComplianceEnabled bool
}

// Keys resolves caller identities.
type Keys interface {
	IdentityOf(account mesh.AccountID) (mesh.IdentityID, bool, error)
}

// Holdings is the portfolio store assets are held in.
type Holdings interface {
	Credit(pid mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error
	Transfer(from, to mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error
	MintNFT(pid mesh.PortfolioID, ticker mesh.Ticker, id uint64) error
	TransferNFT(from, to mesh.PortfolioID, ticker mesh.Ticker, id uint64) error
}

type Registry struct {
	keys     Keys
	holdings Holdings

	assets      *store.Mapping[mesh.Ticker, *Asset]
	receivers   *store.Mapping[store.Pair[mesh.Ticker, mesh.IdentityID], bool]
	preApproved *store.Mapping[store.Pair[mesh.Ticker, mesh.PortfolioID], bool]

	events *events.Emitter
}

func New(st *state.State, keys Keys, holdings Holdings, log *events.Log) *Registry {
	sctx := store.NewContext(module, st)
	return &Registry{
		keys:        keys,
		holdings:    holdings,
		assets:      store.NewMapping[mesh.Ticker, *Asset](sctx, "assets"),
		receivers:   store.NewMapping[store.Pair[mesh.Ticker, mesh.IdentityID], bool](sctx, "receivers"),
		preApproved: store.NewMapping[store.Pair[mesh.Ticker, mesh.PortfolioID], bool](sctx, "pre-approved"),
		events:      log.For(module),
	}
}

// Get returns the asset of ticker.
func (r *Registry) Get(ticker mesh.Ticker) (*Asset, bool, error) {
	return r.assets.Find(ticker)
}

func (r *Registry) Exists(ticker mesh.Ticker) (bool, error) {
	return r.assets.Has(ticker)
}

func (r *Registry) mustGet(ticker mesh.Ticker) (*Asset, error) {
	a, found, err := r.assets.Find(ticker)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoSuchAsset
	}
	return a, nil
}

// IsIssuer reports whether did issued ticker.
func (r *Registry) IsIssuer(did mesh.IdentityID, ticker mesh.Ticker) (bool, error) {
	a, found, err := r.assets.Find(ticker)
	if err != nil || !found {
		return false, err
	}
	return a.Issuer == did, nil
}

func (r *Registry) callerIdentity(caller mesh.AccountID) (mesh.IdentityID, error) {
	did, found, err := r.keys.IdentityOf(caller)
	if err != nil {
		return did, err
	}
	if !found {
		return did, ErrMissingIdentity
	}
	return did, nil
}

// ensureIssuer loads ticker and checks caller's identity issued it.
func (r *Registry) ensureIssuer(caller mesh.AccountID, ticker mesh.Ticker) (*Asset, mesh.IdentityID, error) {
	did, err := r.callerIdentity(caller)
	if err != nil {
		return nil, did, err
	}
	a, err := r.mustGet(ticker)
	if err != nil {
		return nil, did, err
	}
	if a.Issuer != did {
		return nil, did, ErrNotIssuer
	}
	return a, did, nil
}

// CreateAsset registers ticker with the caller's identity as issuer.
func (r *Registry) CreateAsset(caller mesh.AccountID, ticker mesh.Ticker, divisible, nonFungible bool) error {
	did, err := r.callerIdentity(caller)
	if err != nil {
		return err
	}
	if has, err := r.assets.Has(ticker); err != nil {
		return err
	} else if has {
		return ErrTickerExists
	}
	a := &Asset{
		Issuer:      did,
		Divisible:   divisible && !nonFungible,
		NonFungible: nonFungible,
		TotalSupply: new(big.Int),
	}
	if err := r.assets.Set(ticker, a); err != nil {
		return err
	}
	return r.events.Emit("AssetCreated", &Created{ticker, did, a.Divisible, nonFungible}, tickerTopic(ticker), mesh.Bytes32(did))
}

// CheckGranularity rejects amounts an indivisible asset cannot represent.
func (r *Registry) CheckGranularity(ticker mesh.Ticker, amount *big.Int) error {
	a, err := r.mustGet(ticker)
	if err != nil {
		return err
	}
	return checkGranularity(a, amount)
}

func checkGranularity(a *Asset, amount *big.Int) error {
	if a.Divisible {
		return nil
	}
	if new(big.Int).Rem(amount, unit).Sign() != 0 {
		return ErrInvalidGranularity
	}
	return nil
}

// Issue mints amount into the issuer's default portfolio.
func (r *Registry) Issue(caller mesh.AccountID, ticker mesh.Ticker, amount *big.Int) error {
	a, did, err := r.ensureIssuer(caller, ticker)
	if err != nil {
		return err
	}
	if a.NonFungible {
		return ErrNotFungible
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := checkGranularity(a, amount); err != nil {
		return err
	}
	supply := new(big.Int).Add(a.TotalSupply, amount)
	if supply.Cmp(mesh.MaxU128()) > 0 {
		return ErrTotalSupplyOverflow
	}
	a.TotalSupply = supply
	if err := r.assets.Set(ticker, a); err != nil {
		return err
	}
	if err := r.holdings.Credit(mesh.DefaultPortfolio(did), ticker, amount); err != nil {
		return err
	}
	return r.events.Emit("Issued", &Issued{ticker, new(big.Int).Set(amount)}, tickerTopic(ticker))
}

// MintNFT mints tokens with the given ids into the issuer's default
// portfolio.
func (r *Registry) MintNFT(caller mesh.AccountID, ticker mesh.Ticker, ids []uint64) error {
	a, did, err := r.ensureIssuer(caller, ticker)
	if err != nil {
		return err
	}
	if !a.NonFungible {
		return ErrNotNonFungible
	}
	if len(ids) == 0 {
		return ErrZeroAmount
	}
	for _, id := range ids {
		if err := r.holdings.MintNFT(mesh.DefaultPortfolio(did), ticker, id); err != nil {
			return err
		}
	}
	a.TotalSupply = new(big.Int).Add(a.TotalSupply, big.NewInt(int64(len(ids))))
	if err := r.assets.Set(ticker, a); err != nil {
		return err
	}
	return r.events.Emit("NFTMinted", &Minted{ticker, ids}, tickerTopic(ticker))
}

func tickerTopic(t mesh.Ticker) mesh.Bytes32 {
	return mesh.BytesToBytes32(t[:])
}

type (
	Created struct {
		Ticker      mesh.Ticker
		Issuer      mesh.IdentityID
		Divisible   bool
		NonFungible bool
	}
	Issued struct {
		Ticker mesh.Ticker
		Amount *big.Int
	}
	Minted struct {
		Ticker mesh.Ticker
		IDs    []uint64
	}
	Policy struct {
		Ticker mesh.Ticker
		Who    mesh.IdentityID
	}
	Approval struct {
		Ticker    mesh.Ticker
		Portfolio mesh.PortfolioID
	}
)
