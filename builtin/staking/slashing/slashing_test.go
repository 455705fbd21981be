// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slashing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

func acc(n uint64) mesh.AccountID { return mesh.NumberedAccount(n) }

type testHost struct {
	bonds    map[mesh.AccountID]*big.Int
	deposits map[mesh.AccountID]*big.Int
	absorbed *big.Int
	chilled  []mesh.AccountID
	disabled []mesh.AccountID
	overflow bool
	newEras  int
}

func newTestHost() *testHost {
	return &testHost{
		bonds:    make(map[mesh.AccountID]*big.Int),
		deposits: make(map[mesh.AccountID]*big.Int),
		absorbed: new(big.Int),
	}
}

func (h *testHost) Chill(stash mesh.AccountID) error {
	h.chilled = append(h.chilled, stash)
	return nil
}

func (h *testHost) DisableValidator(stash mesh.AccountID) (bool, error) {
	h.disabled = append(h.disabled, stash)
	return h.overflow, nil
}

func (h *testHost) EnsureNewEra() error {
	h.newEras++
	return nil
}

func (h *testHost) SlashBond(stash mesh.AccountID, value *big.Int) (*big.Int, error) {
	bond, ok := h.bonds[stash]
	if !ok {
		return new(big.Int), nil
	}
	taken := new(big.Int).Set(value)
	if taken.Cmp(bond) > 0 {
		taken.Set(bond)
	}
	bond.Sub(bond, taken)
	return taken, nil
}

func (h *testHost) SlashBalance(stash mesh.AccountID, value *big.Int) (*big.Int, *big.Int, error) {
	return new(big.Int).Set(value), new(big.Int), nil
}

func (h *testHost) DepositCreating(who mesh.AccountID, amount *big.Int) (*big.Int, error) {
	if _, ok := h.deposits[who]; !ok {
		h.deposits[who] = new(big.Int)
	}
	h.deposits[who].Add(h.deposits[who], amount)
	return new(big.Int).Set(amount), nil
}

func (h *testHost) Absorb(amount *big.Int) error {
	h.absorbed.Add(h.absorbed, amount)
	return nil
}

func newSlasher(t *testing.T, deferDuration uint32) (*Slasher, *testHost) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)
	cfg := mesh.DefaultConfig()
	cfg.SlashDeferDuration = deferDuration
	cfg.SlashRewardFraction = mesh.PerbillFromPercent(10)
	host := newTestHost()
	return New(st, cfg, host, events.New(st)), host
}

func exposure() *types.Exposure {
	return &types.Exposure{
		Total:  big.NewInt(1250),
		Own:    big.NewInt(1000),
		Others: []types.IndividualExposure{{Who: acc(101), Value: big.NewInt(250)}},
	}
}

func TestSpans(t *testing.T) {
	s := NewSpans(10)
	assert.Equal(t, []Span{{0, 10, 0}}, s.All())

	assert.True(t, s.EndSpan(15))
	assert.False(t, s.EndSpan(15), "span already started after 15")
	assert.True(t, s.EndSpan(20))
	assert.Equal(t, []Span{{2, 21, 0}, {1, 16, 5}, {0, 10, 6}}, s.All())

	span, ok := s.EraSpan(12)
	require.True(t, ok)
	assert.Equal(t, uint32(0), span.Index)
	span, ok = s.EraSpan(100)
	require.True(t, ok)
	assert.Equal(t, uint32(2), span.Index)
	_, ok = s.EraSpan(5)
	assert.False(t, ok)

	from, to, pruned := s.Prune(17)
	require.True(t, pruned)
	assert.Equal(t, uint32(0), from)
	assert.Equal(t, uint32(1), to)
	assert.Equal(t, []Span{{2, 21, 0}, {1, 16, 5}}, s.All())

	_, _, pruned = s.Prune(18)
	assert.False(t, pruned)

	_, _, pruned = s.Prune(30)
	assert.True(t, pruned)
	assert.Equal(t, mesh.EraIndex(30), s.LastStart)
	assert.Empty(t, s.Prior)
}

func TestComputeSlash(t *testing.T) {
	s, host := newSlasher(t, 0)

	u, err := s.Compute(Params{Stash: acc(11), Fraction: mesh.PerbillFromPercent(10), Exposure: exposure(), SlashEra: 5, Now: 5})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, big.NewInt(100), u.Own)
	require.Len(t, u.Others, 1)
	assert.Equal(t, big.NewInt(25), u.Others[0].Value)
	// half of 10% of each slash, rounded down: 5 and 1
	assert.Equal(t, big.NewInt(6), u.Payout)
	assert.Equal(t, []mesh.AccountID{acc(11)}, host.chilled)
	assert.Equal(t, []mesh.AccountID{acc(11)}, host.disabled)
	assert.Equal(t, 0, host.newEras)

	spans, ok, err := s.Spans(acc(11))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), spans.SpanIndex)
	assert.Equal(t, mesh.EraIndex(6), spans.LastStart)
	start, ok, err := s.SpanStart(acc(101))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, mesh.EraIndex(6), start, "nominator span ended too")

	// a smaller report in the same era owes nothing
	u, err = s.Compute(Params{Stash: acc(11), Fraction: mesh.PerbillFromPercent(5), Exposure: exposure(), SlashEra: 5, Now: 5})
	require.NoError(t, err)
	assert.Nil(t, u)

	// a larger one owes the difference, without chilling again
	u, err = s.Compute(Params{Stash: acc(11), Fraction: mesh.PerbillFromPercent(20), Exposure: exposure(), SlashEra: 5, Now: 5})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, big.NewInt(100), u.Own)
	assert.Equal(t, big.NewInt(25), u.Others[0].Value)
	assert.Len(t, host.chilled, 1)

	nominated, err := s.NominatorSlashInEra(5, acc(101))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50), nominated)
	record, err := s.SpanRecord(acc(11), 0)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), record.Slashed)

	require.NoError(t, s.ClearEra(5))
	_, ok, err = s.ValidatorSlashInEra(5, acc(11))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ClearStash(acc(11)))
	_, ok, err = s.Spans(acc(11))
	require.NoError(t, err)
	assert.False(t, ok)
	record, err = s.SpanRecord(acc(11), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, record.Slashed.Sign())
}

func TestZeroSlashKicksOut(t *testing.T) {
	s, host := newSlasher(t, 0)
	host.overflow = true

	u, err := s.Compute(Params{Stash: acc(11), Fraction: 0, Exposure: exposure(), SlashEra: 3, Now: 3})
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Equal(t, []mesh.AccountID{acc(11)}, host.chilled)
	assert.Equal(t, 1, host.newEras)
}

func TestReportAppliesAtOnce(t *testing.T) {
	s, host := newSlasher(t, 0)
	host.bonds[acc(11)] = big.NewInt(1000)
	host.bonds[acc(101)] = big.NewInt(500)

	offences := []Offence{
		{Offender: acc(11), Exposure: exposure(), Fraction: mesh.PerbillFromPercent(10), Reporters: []mesh.AccountID{acc(7), acc(8)}},
		{Offender: acc(21), Exposure: exposure(), Fraction: mesh.PerbillFromPercent(10)},
	}
	require.NoError(t, s.Report(offences, 5, 5, 2, []mesh.AccountID{acc(21)}))

	assert.Equal(t, big.NewInt(900), host.bonds[acc(11)])
	assert.Equal(t, big.NewInt(475), host.bonds[acc(101)])
	assert.Equal(t, big.NewInt(3), host.deposits[acc(7)])
	assert.Equal(t, big.NewInt(3), host.deposits[acc(8)])
	assert.Equal(t, big.NewInt(125-6), host.absorbed)
	assert.NotContains(t, host.chilled, acc(21), "invulnerable")
}

func TestDeferredSlashes(t *testing.T) {
	s, host := newSlasher(t, 3)
	host.bonds[acc(11)] = big.NewInt(1000)
	host.bonds[acc(101)] = big.NewInt(500)

	offence := []Offence{{Offender: acc(11), Exposure: exposure(), Fraction: mesh.PerbillFromPercent(10)}}
	require.NoError(t, s.Report(offence, 5, 5, 2, nil))
	queued, err := s.Unapplied(5)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	for era := mesh.EraIndex(6); era <= 8; era++ {
		require.NoError(t, s.ApplyDue(era))
		assert.Equal(t, big.NewInt(1000), host.bonds[acc(11)], "era %d", era)
	}
	require.NoError(t, s.ApplyDue(9))
	assert.Equal(t, big.NewInt(900), host.bonds[acc(11)])
	assert.Equal(t, big.NewInt(125), host.absorbed)

	queued, err = s.Unapplied(5)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestCancel(t *testing.T) {
	s, host := newSlasher(t, 3)
	host.bonds[acc(11)] = big.NewInt(1000)
	host.bonds[acc(21)] = big.NewInt(1000)

	offences := []Offence{
		{Offender: acc(11), Exposure: &types.Exposure{Total: big.NewInt(1000), Own: big.NewInt(1000)}, Fraction: mesh.PerbillFromPercent(10)},
		{Offender: acc(21), Exposure: &types.Exposure{Total: big.NewInt(1000), Own: big.NewInt(1000)}, Fraction: mesh.PerbillFromPercent(10)},
	}
	require.NoError(t, s.Report(offences, 5, 5, 2, nil))

	assert.ErrorIs(t, s.Cancel(5, nil), types.ErrEmptyTargets)
	assert.ErrorIs(t, s.Cancel(5, []uint32{1, 0}), types.ErrNotSortedAndUnique)
	assert.ErrorIs(t, s.Cancel(5, []uint32{0, 0}), types.ErrNotSortedAndUnique)
	assert.ErrorIs(t, s.Cancel(5, []uint32{2}), types.ErrInvalidSlashIndex)

	require.NoError(t, s.Cancel(5, []uint32{0}))
	queued, err := s.Unapplied(5)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, acc(21), queued[0].Validator)

	require.NoError(t, s.ApplyDue(9))
	assert.Equal(t, big.NewInt(1000), host.bonds[acc(11)])
	assert.Equal(t, big.NewInt(900), host.bonds[acc(21)])
}
