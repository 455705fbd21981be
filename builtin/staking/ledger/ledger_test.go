// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/balances"
	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

func chunk(v int64, era mesh.EraIndex) UnlockChunk {
	return UnlockChunk{Value: big.NewInt(v), Era: era}
}

func TestLedgerSlash(t *testing.T) {
	tests := []struct {
		name      string
		active    int64
		unlocking []UnlockChunk
		slash     int64
		minimum   int64
		taken     int64
		wantAct   int64
		wantChunk []UnlockChunk
	}{
		{"active only", 100, nil, 30, 1, 30, 70, nil},
		{"dust swept", 100, nil, 95, 10, 100, 0, nil},
		{"into chunks", 50, []UnlockChunk{chunk(20, 5), chunk(30, 6)}, 60, 1, 60, 0, []UnlockChunk{chunk(10, 5), chunk(30, 6)}},
		{"stops when paid", 50, []UnlockChunk{chunk(20, 5), chunk(30, 6)}, 55, 1, 55, 0, []UnlockChunk{chunk(15, 5), chunk(30, 6)}},
		{"more than total", 10, []UnlockChunk{chunk(5, 5)}, 100, 1, 15, 0, []UnlockChunk{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(mesh.NumberedAccount(1), big.NewInt(tt.active))
			for _, c := range tt.unlocking {
				l.Unlocking = append(l.Unlocking, UnlockChunk{new(big.Int).Set(c.Value), c.Era})
				l.Total.Add(l.Total, c.Value)
			}
			taken := l.Slash(big.NewInt(tt.slash), big.NewInt(tt.minimum))
			assert.Equal(t, big.NewInt(tt.taken), taken)
			assert.Equal(t, big.NewInt(tt.wantAct), l.Active)
			assert.Len(t, l.Unlocking, len(tt.wantChunk))
			for i, c := range tt.wantChunk {
				assert.Equal(t, c.Value, l.Unlocking[i].Value)
				assert.Equal(t, c.Era, l.Unlocking[i].Era)
			}
			assert.True(t, l.Consistent())
		})
	}
}

type fixture struct {
	*Store
	balances *balances.Balances
}

func newFixture(t *testing.T) *fixture {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)
	log := events.New(st)
	b := balances.New(st, big.NewInt(10), log)
	cfg := mesh.DefaultConfig()
	cfg.BondingDuration = 3
	cfg.MaxUnlockChunks = 2
	return &fixture{New(st, cfg, b, log), b}
}

func (f *fixture) fund(t *testing.T, who mesh.AccountID, amount int64) {
	_, err := f.balances.DepositCreating(who, big.NewInt(amount))
	require.NoError(t, err)
}

func (f *fixture) lock(t *testing.T, who mesh.AccountID) *big.Int {
	v, err := f.balances.LockOf(LockID, who)
	require.NoError(t, err)
	return v
}

func TestBond(t *testing.T) {
	f := newFixture(t)
	stash, ctrl := mesh.NumberedAccount(11), mesh.NumberedAccount(10)
	f.fund(t, stash, 800)

	assert.ErrorIs(t, f.Bond(stash, ctrl, big.NewInt(5), types.Staked), types.ErrInsufficientValue)
	require.NoError(t, f.Bond(stash, ctrl, big.NewInt(1000), types.Stash))

	l, err := f.EnsureController(ctrl)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(800), l.Total, "capped by free balance")
	assert.Equal(t, big.NewInt(800), f.lock(t, stash))
	payee, err := f.Payee(stash)
	require.NoError(t, err)
	assert.Equal(t, types.Stash, payee)

	assert.ErrorIs(t, f.Bond(stash, mesh.NumberedAccount(99), big.NewInt(100), types.Staked), types.ErrAlreadyBonded)
	assert.ErrorIs(t, f.Bond(mesh.NumberedAccount(21), ctrl, big.NewInt(100), types.Staked), types.ErrAlreadyPaired)

	_, err = f.EnsureController(stash)
	assert.ErrorIs(t, err, types.ErrNotController)
}

func TestBondExtra(t *testing.T) {
	f := newFixture(t)
	stash, ctrl := mesh.NumberedAccount(11), mesh.NumberedAccount(10)
	f.fund(t, stash, 1000)
	require.NoError(t, f.Bond(stash, ctrl, big.NewInt(600), types.Staked))

	extra, err := f.BondExtra(stash, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), extra)

	extra, err = f.BondExtra(stash, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), extra)
	assert.Equal(t, big.NewInt(1000), f.lock(t, stash))

	_, err = f.BondExtra(ctrl, big.NewInt(1))
	assert.ErrorIs(t, err, types.ErrNotStash)
}

func TestUnbondAndWithdraw(t *testing.T) {
	f := newFixture(t)
	stash, ctrl := mesh.NumberedAccount(11), mesh.NumberedAccount(10)
	f.fund(t, stash, 1000)
	require.NoError(t, f.Bond(stash, ctrl, big.NewInt(1000), types.Staked))

	moved, err := f.Unbond(ctrl, big.NewInt(400), 1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), moved)

	// the residual 5 is below the minimum of 10 and goes with the chunk
	moved, err = f.Unbond(ctrl, big.NewInt(595), 2)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), moved)

	_, err = f.Unbond(ctrl, big.NewInt(1), 2)
	assert.ErrorIs(t, err, types.ErrNoMoreChunks)

	l, err := f.EnsureController(ctrl)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Active.Sign())
	assert.Equal(t, []mesh.EraIndex{4, 5}, []mesh.EraIndex{l.Unlocking[0].Era, l.Unlocking[1].Era})
	assert.Equal(t, big.NewInt(1000), f.lock(t, stash), "lock follows total")

	_, killed, err := f.WithdrawUnbonded(ctrl, 4)
	require.NoError(t, err)
	assert.False(t, killed)
	assert.Equal(t, big.NewInt(600), f.lock(t, stash))

	got, killed, err := f.WithdrawUnbonded(ctrl, 5)
	require.NoError(t, err)
	assert.True(t, killed)
	assert.Equal(t, stash, got)
	assert.Equal(t, 0, f.lock(t, stash).Sign())

	_, bonded, err := f.Controller(stash)
	require.NoError(t, err)
	assert.False(t, bonded)
	_, err = f.EnsureController(ctrl)
	assert.ErrorIs(t, err, types.ErrNotController)
}

func TestSetController(t *testing.T) {
	f := newFixture(t)
	stash, ctrl, next := mesh.NumberedAccount(11), mesh.NumberedAccount(10), mesh.NumberedAccount(12)
	f.fund(t, stash, 1000)
	require.NoError(t, f.Bond(stash, ctrl, big.NewInt(500), types.Staked))

	_, err := f.SetController(ctrl, next)
	assert.ErrorIs(t, err, types.ErrNotStash)
	_, err = f.SetController(stash, ctrl)
	assert.ErrorIs(t, err, types.ErrAlreadyPaired)

	old, err := f.SetController(stash, next)
	require.NoError(t, err)
	assert.Equal(t, ctrl, old)

	l, err := f.EnsureController(next)
	require.NoError(t, err)
	assert.Equal(t, stash, l.Stash)
	_, err = f.EnsureController(ctrl)
	assert.ErrorIs(t, err, types.ErrNotController)
}

func TestSlashAndRestake(t *testing.T) {
	f := newFixture(t)
	stash, ctrl := mesh.NumberedAccount(11), mesh.NumberedAccount(10)
	f.fund(t, stash, 1000)
	require.NoError(t, f.Bond(stash, ctrl, big.NewInt(1000), types.Staked))

	taken, err := f.Slash(stash, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), taken)
	assert.Equal(t, big.NewInt(900), f.lock(t, stash))

	taken, err = f.Slash(mesh.NumberedAccount(77), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, 0, taken.Sign(), "unbonded stash")

	require.NoError(t, f.Restake(stash, big.NewInt(50)))
	active, err := f.Active(stash)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(950), active)
}
