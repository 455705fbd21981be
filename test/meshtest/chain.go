// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package meshtest runs an in-memory chain for end-to-end tests.
package meshtest

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/settlement/venue"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/genesis"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

// LaunchTime is the genesis timestamp of Spec.
const LaunchTime = mesh.Moment(1_700_000_000_000)

var (
	Alice = mesh.NumberedAccount(1)
	Bob   = mesh.NumberedAccount(2)
	Carol = mesh.NumberedAccount(3)

	AliceDID = mesh.NumberedIdentity(1)
	BobDID   = mesh.NumberedIdentity(2)
	CarolDID = mesh.NumberedIdentity(3)

	// ACME is issued by Alice, ACME2 by Bob, 1000 each.
	ACME  = mesh.MustParseTicker("ACME")
	ACME2 = mesh.MustParseTicker("ACME2")

	// Treasury receives slash and reward remainders.
	Treasury = mesh.NumberedAccount(999)
)

// Venue is the id of the venue Alice creates at genesis. Its only signer
// is the first dev account.
const Venue = uint64(1)

// Units scales n to a balance large enough for inflation to register.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000))
}

func amount(v *big.Int) *mesh.Amount { return (*mesh.Amount)(v) }

// Signer is the receipt signer of Venue.
func Signer() genesis.DevAccount { return genesis.DevAccounts()[0] }

// Config returns a config with one session per era of two blocks, so that
// eras pass quickly.
func Config() *mesh.Config {
	cfg := mesh.DefaultConfig()
	cfg.SessionLength = 2
	cfg.SessionsPerEra = 1
	cfg.BondingDuration = 3
	cfg.HistoryDepth = 6
	cfg.SlashDeferDuration = 0
	cfg.ValidatorCount = 2
	cfg.MinimumValidatorCount = 2
	cfg.TreasuryAccount = Treasury
	return cfg
}

// Spec returns the genesis used by most tests: stashes 11 and 21 validate
// under controllers 10 and 20 with 1000 units each, 101 nominates both with
// 500 units under controller 100. Alice, Bob and Carol have identities,
// Alice and Bob an asset each, and Alice owns Venue. 30 and 31 are funded
// but not bonded.
func Spec() *genesis.Spec {
	spec := &genesis.Spec{LaunchTime: LaunchTime}
	for _, n := range []uint64{10, 11, 20, 21, 30, 31, 100, 101} {
		spec.Accounts = append(spec.Accounts, genesis.Account{
			Address: mesh.NumberedAccount(n),
			Balance: amount(Units(2000)),
		})
	}
	people := []struct {
		acc mesh.AccountID
		did mesh.IdentityID
	}{{Alice, AliceDID}, {Bob, BobDID}, {Carol, CarolDID}}
	for _, p := range people {
		spec.Accounts = append(spec.Accounts, genesis.Account{Address: p.acc, Balance: amount(Units(100))})
		spec.Identities = append(spec.Identities, genesis.Identity{DID: p.did, Primary: p.acc, CDD: true})
	}

	for _, n := range []uint64{1, 2} {
		spec.Validators = append(spec.Validators, genesis.Validator{Bond: genesis.Bond{
			Stash:      mesh.NumberedAccount(10*n + 1),
			Controller: mesh.NumberedAccount(10 * n),
			Value:      amount(Units(1000)),
			Payee:      types.Staked,
		}})
	}
	spec.Nominators = []genesis.Nominator{{
		Bond: genesis.Bond{
			Stash:      mesh.NumberedAccount(101),
			Controller: mesh.NumberedAccount(100),
			Value:      amount(Units(500)),
			Payee:      types.Staked,
		},
		Targets: []mesh.AccountID{mesh.NumberedAccount(11), mesh.NumberedAccount(21)},
	}}

	spec.Assets = []genesis.Asset{
		{Ticker: ACME, Owner: Alice, Divisible: true, Supply: mesh.NewAmount(1000)},
		{Ticker: ACME2, Owner: Bob, Divisible: true, Supply: mesh.NewAmount(1000)},
	}
	spec.Venues = []genesis.Venue{{
		Creator: Alice,
		Details: "otc",
		Type:    venue.Exchange,
		Signers: []mesh.AccountID{Signer().ID},
	}}
	return spec
}

// Chain is an in-memory chain. Blocks are authored in turn by the
// validators of the current session.
type Chain struct {
	db   *lvldb.LevelDB
	rt   *runtime.Runtime
	head runtime.Head
	turn int
}

// New builds spec on a fresh in-memory database.
func New(cfg *mesh.Config, spec *genesis.Spec) (*Chain, error) {
	db, err := lvldb.NewMem()
	if err != nil {
		return nil, err
	}
	rt, err := runtime.New(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	b, err := genesis.New(spec)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "genesis")
	}
	res, err := b.Build(rt)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "build genesis")
	}
	return &Chain{db: db, rt: rt, head: res.Head}, nil
}

// NewDefault is New with Config and Spec.
func NewDefault() (*Chain, error) {
	return New(Config(), Spec())
}

func (c *Chain) Close() error { return c.db.Close() }

func (c *Chain) Runtime() *runtime.Runtime { return c.rt }

func (c *Chain) Config() *mesh.Config { return c.rt.Config() }

// Head returns the last block minted.
func (c *Chain) Head() runtime.Head { return c.head }

// View runs fn over the state of the head.
func (c *Chain) View(fn func(m *runtime.Modules) error) error {
	return c.rt.View(fn)
}

// Era returns the current era index.
func (c *Chain) Era() (era mesh.EraIndex, err error) {
	err = c.View(func(m *runtime.Modules) error {
		era, err = m.Staking.Era().Current()
		return err
	})
	return
}

func (c *Chain) nextAuthor() (author mesh.AccountID, err error) {
	err = c.View(func(m *runtime.Modules) error {
		set, err := m.Session.Validators()
		if err != nil || len(set) == 0 {
			return err
		}
		author = set[c.turn%len(set)]
		return nil
	})
	c.turn++
	return
}

// MintBlock applies the next block with xs as its extrinsics.
func (c *Chain) MintBlock(xs ...*runtime.Extrinsic) (*runtime.Result, error) {
	author, err := c.nextAuthor()
	if err != nil {
		return nil, err
	}
	res, err := c.rt.ApplyBlock(&runtime.Block{
		Number:     c.head.Number + 1,
		Timestamp:  c.head.Timestamp + mesh.Moment(c.Config().BlockInterval*1000),
		Author:     author,
		Extrinsics: xs,
	})
	if err != nil {
		return nil, err
	}
	c.head = res.Head
	return res, nil
}

// MintBlocks applies n empty blocks and returns their results.
func (c *Chain) MintBlocks(n int) ([]*runtime.Result, error) {
	out := make([]*runtime.Result, 0, n)
	for i := 0; i < n; i++ {
		res, err := c.MintBlock()
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// NextEra mints empty blocks until the current era changes.
func (c *Chain) NextEra() ([]*runtime.Result, error) {
	start, err := c.Era()
	if err != nil {
		return nil, err
	}
	var out []*runtime.Result
	limit := 2 * c.Config().EraLength()
	for i := uint64(0); i < limit; i++ {
		res, err := c.MintBlock()
		if err != nil {
			return out, err
		}
		out = append(out, res)
		if now, err := c.Era(); err != nil {
			return out, err
		} else if now != start {
			return out, nil
		}
	}
	return out, errors.Errorf("era %d did not end within %d blocks", start, limit)
}

// Filter returns the events of module named name, in order. An empty name
// matches every event of module.
func Filter(results []*runtime.Result, module, name string) []*events.Event {
	var out []*events.Event
	for _, res := range results {
		for _, ev := range res.Events {
			if ev.Module == module && (name == "" || ev.Name == name) {
				out = append(out, ev)
			}
		}
	}
	return out
}
