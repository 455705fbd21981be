// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package meshtest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/settlement"
	"github.com/stakemesh/stakemesh/builtin/settlement/receipt"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

var (
	aDflt = mesh.DefaultPortfolio(AliceDID)
	bDflt = mesh.DefaultPortfolio(BobDID)
)

func acc(n uint64) mesh.AccountID { return mesh.NumberedAccount(n) }

func newChain(t *testing.T, cfg *mesh.Config) *Chain {
	c, err := New(cfg, Spec())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func mint(t *testing.T, c *Chain, xs ...*runtime.Extrinsic) *runtime.Result {
	t.Helper()
	res, err := c.MintBlock(xs...)
	require.NoError(t, err)
	return res
}

func mustSucceed(t *testing.T, res *runtime.Result) {
	t.Helper()
	for _, o := range res.Outcomes {
		require.NoError(t, o.Err, "extrinsic %d (%s)", o.Index, o.Call)
	}
}

func nextEras(t *testing.T, c *Chain, n int) []*runtime.Result {
	t.Helper()
	var out []*runtime.Result
	for i := 0; i < n; i++ {
		results, err := c.NextEra()
		require.NoError(t, err)
		out = append(out, results...)
	}
	return out
}

func balance(t *testing.T, c *Chain, pid mesh.PortfolioID, ticker mesh.Ticker) (total, locked *big.Int) {
	require.NoError(t, c.View(func(m *runtime.Modules) error {
		var err error
		if total, err = m.Portfolio.Balance(pid, ticker); err != nil {
			return err
		}
		locked, err = m.Portfolio.Locked(pid, ticker)
		return err
	}))
	return
}

func assertBalance(t *testing.T, c *Chain, pid mesh.PortfolioID, ticker mesh.Ticker, total, locked int64) {
	t.Helper()
	bal, l := balance(t, c, pid, ticker)
	assert.Equal(t, big.NewInt(total).String(), bal.String(), "balance %v %v", pid, ticker)
	assert.Equal(t, big.NewInt(locked).String(), l.String(), "locked %v %v", pid, ticker)
}

func status(t *testing.T, c *Chain, id uint64) settlement.Status {
	var st settlement.Status
	require.NoError(t, c.View(func(m *runtime.Modules) (err error) {
		st, err = m.Settlement.Status(id)
		return
	}))
	return st
}

func activeBond(t *testing.T, c *Chain, stash mesh.AccountID) *big.Int {
	var active *big.Int
	require.NoError(t, c.View(func(m *runtime.Modules) error {
		l, ok, err := m.Staking.Ledger().LedgerOfStash(stash)
		require.True(t, ok)
		active = l.Active
		return err
	}))
	return active
}

func swap() []runtime.Leg {
	return []runtime.Leg{
		{Kind: settlement.Fungible, From: aDflt, To: bDflt, Ticker: ACME, Amount: mesh.NewAmount(100)},
		{Kind: settlement.Fungible, From: bDflt, To: aDflt, Ticker: ACME2, Amount: mesh.NewAmount(100)},
	}
}

func TestChain(t *testing.T) {
	c, err := NewDefault()
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, mesh.BlockNumber(0), c.Head().Number)
	assert.Equal(t, LaunchTime, c.Head().Timestamp)

	results, err := c.MintBlocks(3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, mesh.BlockNumber(3), c.Head().Number)
	assert.Equal(t, LaunchTime+3*6000, c.Head().Timestamp)

	era, err := c.Era()
	require.NoError(t, err)
	assert.Equal(t, mesh.EraIndex(1), era)
	_, err = c.NextEra()
	require.NoError(t, err)
	era, err = c.Era()
	require.NoError(t, err)
	assert.Equal(t, mesh.EraIndex(2), era)

	assert.Empty(t, Filter(results, "system", ""))
	assert.Len(t, Filter(results, "staking", "StakingElection"), 1)
}

// Bond, nominate and elect.
func TestElection(t *testing.T) {
	c := newChain(t, Config())

	require.NoError(t, c.View(func(m *runtime.Modules) error {
		elected, err := m.Staking.Elected(0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []mesh.AccountID{acc(11), acc(21)}, elected)

		total := new(big.Int)
		var totals []*big.Int
		for _, stash := range elected {
			exp, ok, err := m.Staking.Exposure(0, stash)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, Units(1000).String(), exp.Own.String())
			total.Add(total, exp.Total)
			totals = append(totals, exp.Total)
		}
		assert.Equal(t, Units(2500).String(), total.String())

		slot, err := m.Staking.SlotStake(0)
		require.NoError(t, err)
		min := totals[0]
		if totals[1].Cmp(min) < 0 {
			min = totals[1]
		}
		assert.Equal(t, min.String(), slot.String())
		return nil
	}))

	// a third validator joins through extrinsics
	mustSucceed(t, mint(t, c,
		runtime.Signed(acc(31), &runtime.Bond{Controller: acc(30), Value: (*mesh.Amount)(Units(1000)), Payee: types.Stash}),
		runtime.Root(&runtime.AddPotentialValidator{Controller: acc(30)}),
		runtime.Signed(acc(30), &runtime.Validate{Commission: mesh.PerbillFromPercent(1)}),
		runtime.Root(&runtime.SetValidatorCount{Count: 3}),
		runtime.Signed(acc(100), &runtime.Nominate{Targets: []mesh.AccountID{acc(11), acc(21), acc(31)}}),
	))
	nextEras(t, c, 1)

	era, err := c.Era()
	require.NoError(t, err)
	require.NoError(t, c.View(func(m *runtime.Modules) error {
		elected, err := m.Staking.Elected(era)
		require.NoError(t, err)
		assert.ElementsMatch(t, []mesh.AccountID{acc(11), acc(21), acc(31)}, elected)
		set, err := m.Session.Validators()
		require.NoError(t, err)
		assert.ElementsMatch(t, elected, set)
		return nil
	}))
}

// A deferred slash cancelled by governance is never applied.
func TestDeferredSlashCancelled(t *testing.T) {
	cfg := Config()
	cfg.SlashDeferDuration = 3
	cfg.BondingDuration = 4
	c := newChain(t, cfg)

	nextEras(t, c, 5)
	era, err := c.Era()
	require.NoError(t, err)
	require.Equal(t, mesh.EraIndex(5), era)

	var session mesh.SessionIndex
	require.NoError(t, c.View(func(m *runtime.Modules) (err error) {
		session, err = m.Session.CurrentIndex()
		return
	}))
	before := activeBond(t, c, acc(11))

	mustSucceed(t, mint(t, c, runtime.Root(&runtime.ReportOffence{
		Session:   session,
		Offenders: []runtime.Offence{{Offender: acc(11), Fraction: mesh.PerbillFromPercent(10)}},
	})))
	require.NoError(t, c.View(func(m *runtime.Modules) error {
		queued, err := m.Staking.Slashing().Unapplied(5)
		require.NoError(t, err)
		assert.Len(t, queued, 1)
		return nil
	}))

	nextEras(t, c, 1)
	res := mint(t, c, runtime.Root(&runtime.CancelDeferredSlash{Era: 5, Indices: []uint32{0}}))
	mustSucceed(t, res)
	assert.Len(t, Filter([]*runtime.Result{res}, "staking", "SlashCancelled"), 1)

	later := nextEras(t, c, 4)
	assert.Empty(t, Filter(later, "staking", "Slash"))
	require.NoError(t, c.View(func(m *runtime.Modules) error {
		queued, err := m.Staking.Slashing().Unapplied(5)
		require.NoError(t, err)
		assert.Empty(t, queued)
		return nil
	}))
	assert.True(t, activeBond(t, c, acc(11)).Cmp(before) >= 0, "bond of 11 was not slashed")
}

// Both sides affirm and the instruction settles in the next block.
func TestAtomicSettlement(t *testing.T) {
	c := newChain(t, Config())

	res := mint(t, c,
		runtime.Signed(Alice, &runtime.AddInstruction{
			Venue:      Venue,
			Settlement: runtime.Settlement{Type: settlement.OnAffirmation},
			Legs:       swap(),
		}),
		runtime.Signed(Alice, &runtime.AffirmInstruction{ID: 1, Portfolios: []mesh.PortfolioID{aDflt}}),
		runtime.Signed(Bob, &runtime.AffirmInstruction{ID: 1, Portfolios: []mesh.PortfolioID{bDflt}}),
	)
	mustSucceed(t, res)
	assertBalance(t, c, aDflt, ACME, 1000, 100)
	assertBalance(t, c, bDflt, ACME2, 1000, 100)

	res = mint(t, c)
	assert.Len(t, Filter([]*runtime.Result{res}, "settlement", "InstructionExecuted"), 1)
	assert.Equal(t, settlement.Success, status(t, c, 1))
	assertBalance(t, c, aDflt, ACME, 900, 0)
	assertBalance(t, c, bDflt, ACME, 100, 0)
	assertBalance(t, c, bDflt, ACME2, 900, 0)
	assertBalance(t, c, aDflt, ACME2, 100, 0)
}

// A compliance failure rolls every leg back; a manual retry settles once
// compliance is fixed.
func TestFailedSettlementRollsBack(t *testing.T) {
	c := newChain(t, Config())

	mustSucceed(t, mint(t, c,
		runtime.Signed(Bob, &runtime.SetAssetCompliance{Ticker: ACME2, Enabled: true}),
		runtime.Signed(Alice, &runtime.AddAndAffirmInstruction{
			AddInstruction: runtime.AddInstruction{
				Venue:      Venue,
				Settlement: runtime.Settlement{Type: settlement.OnAffirmation},
				Legs:       swap(),
			},
			Portfolios: []mesh.PortfolioID{aDflt},
		}),
		runtime.Signed(Bob, &runtime.AffirmInstruction{ID: 1, Portfolios: []mesh.PortfolioID{bDflt}}),
	))

	res := mint(t, c)
	assert.Len(t, Filter([]*runtime.Result{res}, "settlement", "InstructionFailed"), 1)
	assert.Equal(t, settlement.Failed, status(t, c, 1))
	assertBalance(t, c, aDflt, ACME, 1000, 100)
	assertBalance(t, c, bDflt, ACME, 0, 0)
	assertBalance(t, c, bDflt, ACME2, 1000, 100)

	res = mint(t, c,
		runtime.Signed(Carol, &runtime.ExecuteManualInstruction{ID: 1, FungibleLegs: 2}),
		runtime.Signed(Bob, &runtime.AddReceiverPolicy{Ticker: ACME2, DID: AliceDID}),
		runtime.Signed(Alice, &runtime.ExecuteManualInstruction{ID: 1, FungibleLegs: 2}),
	)
	assert.ErrorIs(t, res.Outcomes[0].Err, settlement.ErrNotParty)
	require.NoError(t, res.Outcomes[1].Err)
	require.NoError(t, res.Outcomes[2].Err)
	assert.Equal(t, settlement.Success, status(t, c, 1))
	assertBalance(t, c, aDflt, ACME, 900, 0)
	assertBalance(t, c, aDflt, ACME2, 100, 0)
}

// An off-chain leg is settled by a receipt of a venue signer, and the
// receipt cannot be claimed twice.
func TestOffChainReceipt(t *testing.T) {
	c := newChain(t, Config())
	offChain := mesh.MustParseTicker("BOND")
	legs := []runtime.Leg{{Kind: settlement.OffChain, From: aDflt, To: bDflt, Ticker: offChain, Amount: mesh.NewAmount(100)}}
	sign := func(id uint64) runtime.Receipt {
		r := &receipt.Receipt{UID: 7, InstructionID: id, LegID: 0, From: aDflt, To: bDflt, Ticker: offChain, Amount: big.NewInt(100)}
		payload, err := r.Encode()
		require.NoError(t, err)
		sig := receipt.SignSecp256k1(Signer().PrivateKey, payload)
		return runtime.Receipt{UID: 7, Leg: 0, Signer: Signer().ID, Scheme: sig.Scheme, Signature: hexutil.Bytes(sig.Bytes)}
	}
	add := runtime.Signed(Alice, &runtime.AddInstruction{
		Venue:      Venue,
		Settlement: runtime.Settlement{Type: settlement.OnAffirmation},
		Legs:       legs,
	})

	mustSucceed(t, mint(t, c, add, runtime.Signed(Alice, &runtime.AffirmWithReceipts{ID: 1, Receipts: []runtime.Receipt{sign(1)}})))
	require.NoError(t, c.View(func(m *runtime.Modules) error {
		used, err := m.Settlement.Claims().IsUsed(Signer().ID, 7)
		require.NoError(t, err)
		assert.True(t, used)
		leg, err := m.Settlement.LegStatus(1, 0)
		require.NoError(t, err)
		assert.Equal(t, settlement.ExecutionToBeSkipped, leg.Status)
		return nil
	}))

	res := mint(t, c, add, runtime.Signed(Alice, &runtime.AffirmWithReceipts{ID: 2, Receipts: []runtime.Receipt{sign(2)}}))
	require.NoError(t, res.Outcomes[0].Err)
	assert.ErrorIs(t, res.Outcomes[1].Err, receipt.ErrAlreadyClaimed)
	assert.Equal(t, settlement.Success, status(t, c, 1))
}

// The number of unlocking chunks is capped until matured chunks are
// withdrawn.
func TestUnbondChunkCap(t *testing.T) {
	c := newChain(t, Config())
	ctrl := acc(100)
	max := c.Config().MaxUnlockChunks

	xs := make([]*runtime.Extrinsic, 0, max+1)
	for i := 0; i <= max; i++ {
		xs = append(xs, runtime.Signed(ctrl, &runtime.Unbond{Value: mesh.NewAmount(1)}))
	}
	res := mint(t, c, xs...)
	for _, o := range res.Outcomes[:max] {
		require.NoError(t, o.Err)
	}
	assert.ErrorIs(t, res.Outcomes[max].Err, types.ErrNoMoreChunks)
	assert.Len(t, Filter([]*runtime.Result{res}, "system", "ExtrinsicFailed"), 1)

	nextEras(t, c, int(c.Config().BondingDuration))
	mustSucceed(t, mint(t, c,
		runtime.Signed(ctrl, &runtime.WithdrawUnbonded{}),
		runtime.Signed(ctrl, &runtime.Unbond{Value: mesh.NewAmount(1)}),
	))
	require.NoError(t, c.View(func(m *runtime.Modules) error {
		l, ok, err := m.Staking.Ledger().LedgerOfStash(acc(101))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, l.Unlocking, 1)
		return nil
	}))
}
