// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package portfolio

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/identity"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

var acme = mesh.MustParseTicker("ACME")

type fixture struct {
	id        *identity.Identity
	p         *Portfolio
	alice     mesh.AccountID
	aliceDID  mesh.IdentityID
	bob       mesh.AccountID
	bobDID    mesh.IdentityID
	aliceDflt mesh.PortfolioID
}

func newFixture(t *testing.T) *fixture {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)
	log := events.New(st)
	id := identity.New(st, log)

	f := &fixture{
		id:       id,
		p:        New(st, id, log),
		alice:    mesh.NumberedAccount(1),
		aliceDID: mesh.NumberedIdentity(1),
		bob:      mesh.NumberedAccount(2),
		bobDID:   mesh.NumberedIdentity(2),
	}
	f.aliceDflt = mesh.DefaultPortfolio(f.aliceDID)
	require.NoError(t, id.RegisterIdentity(f.aliceDID, f.alice))
	require.NoError(t, id.RegisterIdentity(f.bobDID, f.bob))
	return f
}

func TestCreateRenameDelete(t *testing.T) {
	f := newFixture(t)

	num, err := f.p.CreatePortfolio(f.aliceDID, "trading")
	require.NoError(t, err)
	assert.Equal(t, mesh.PortfolioNumber(1), num)

	_, err = f.p.CreatePortfolio(f.aliceDID, "trading")
	assert.ErrorIs(t, err, ErrPortfolioNameExists)

	// names are per identity
	_, err = f.p.CreatePortfolio(f.bobDID, "trading")
	require.NoError(t, err)

	require.NoError(t, f.p.RenamePortfolio(f.aliceDID, num, "custody"))
	name, err := f.p.Name(mesh.UserPortfolio(f.aliceDID, num))
	require.NoError(t, err)
	assert.Equal(t, "custody", name)

	num2, err := f.p.CreatePortfolio(f.aliceDID, "trading")
	require.NoError(t, err)
	assert.Equal(t, mesh.PortfolioNumber(2), num2)

	user := mesh.UserPortfolio(f.aliceDID, num)
	require.NoError(t, f.p.Credit(user, acme, big.NewInt(5)))
	assert.ErrorIs(t, f.p.DeletePortfolio(f.aliceDID, num), ErrPortfolioNotEmpty)
	require.NoError(t, f.p.Debit(user, acme, big.NewInt(5)))
	require.NoError(t, f.p.DeletePortfolio(f.aliceDID, num))

	ok, err := f.p.Exists(user)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, f.p.DeletePortfolio(f.aliceDID, 0), ErrDefaultPortfolio)
}

func TestLockUnlock(t *testing.T) {
	f := newFixture(t)
	pid := f.aliceDflt
	require.NoError(t, f.p.Credit(pid, acme, big.NewInt(100)))

	require.NoError(t, f.p.Lock(pid, acme, big.NewInt(60)))
	assert.ErrorIs(t, f.p.Lock(pid, acme, big.NewInt(41)), ErrInsufficientBalance)
	assert.ErrorIs(t, f.p.Debit(pid, acme, big.NewInt(41)), ErrInsufficientBalance)

	free, err := f.p.FreeBalance(pid, acme)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(40), free)

	assert.ErrorIs(t, f.p.Unlock(pid, acme, big.NewInt(61)), ErrUnlockExceedsLock)
	require.NoError(t, f.p.Unlock(pid, acme, big.NewInt(60)))

	locked, err := f.p.Locked(pid, acme)
	require.NoError(t, err)
	assert.Equal(t, 0, locked.Sign())
}

func TestNFT(t *testing.T) {
	f := newFixture(t)
	bobDflt := mesh.DefaultPortfolio(f.bobDID)

	require.NoError(t, f.p.MintNFT(f.aliceDflt, acme, 1))
	assert.ErrorIs(t, f.p.MintNFT(bobDflt, acme, 1), ErrNFTExists)

	require.NoError(t, f.p.LockNFT(f.aliceDflt, acme, 1))
	assert.ErrorIs(t, f.p.LockNFT(f.aliceDflt, acme, 1), ErrNFTLocked)
	assert.ErrorIs(t, f.p.TransferNFT(f.aliceDflt, bobDflt, acme, 1), ErrNFTLocked)
	assert.ErrorIs(t, f.p.UnlockNFT(bobDflt, acme, 1), ErrNFTNotOwned)

	require.NoError(t, f.p.UnlockNFT(f.aliceDflt, acme, 1))
	require.NoError(t, f.p.TransferNFT(f.aliceDflt, bobDflt, acme, 1))

	owner, found, err := f.p.NFTOwner(acme, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, bobDflt, owner)

	n, err := f.p.NFTCount(f.aliceDflt, acme)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCustody(t *testing.T) {
	f := newFixture(t)
	bobDflt := mesh.DefaultPortfolio(f.bobDID)

	_, err := f.p.EnsureCustody(f.bob, f.aliceDflt)
	assert.ErrorIs(t, err, ErrNotCustodian)

	assert.ErrorIs(t, f.p.AcceptCustody(f.bob, f.aliceDflt), ErrNoSuchAuthorization)
	require.NoError(t, f.p.AuthorizeCustody(f.alice, f.aliceDflt, f.bobDID))
	require.NoError(t, f.p.AcceptCustody(f.bob, f.aliceDflt))

	_, err = f.p.EnsureCustody(f.bob, f.aliceDflt)
	require.NoError(t, err)
	_, err = f.p.EnsureCustody(f.alice, f.aliceDflt)
	assert.ErrorIs(t, err, ErrNotCustodian)

	// hand it back
	require.NoError(t, f.p.AuthorizeCustody(f.bob, f.aliceDflt, f.aliceDID))
	require.NoError(t, f.p.AcceptCustody(f.alice, f.aliceDflt))
	c, err := f.p.CustodianOf(f.aliceDflt)
	require.NoError(t, err)
	assert.Equal(t, f.aliceDID, c)

	// secondary key without permission
	carol := mesh.NumberedAccount(3)
	require.NoError(t, f.id.AddSecondaryKey(f.bob, carol, identity.Permissions{Restricted: true}))
	_, err = f.p.EnsureCustody(carol, bobDflt)
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestMoveFunds(t *testing.T) {
	f := newFixture(t)
	num, err := f.p.CreatePortfolio(f.aliceDID, "cold")
	require.NoError(t, err)
	cold := mesh.UserPortfolio(f.aliceDID, num)

	require.NoError(t, f.p.Credit(f.aliceDflt, acme, big.NewInt(100)))
	require.NoError(t, f.p.MintNFT(f.aliceDflt, acme, 9))

	assert.ErrorIs(t, f.p.MoveFunds(f.alice, f.aliceDflt, mesh.DefaultPortfolio(f.bobDID), nil), ErrDifferentIdentity)
	assert.ErrorIs(t, f.p.MoveFunds(f.bob, f.aliceDflt, cold, nil), ErrNotCustodian)

	require.NoError(t, f.p.MoveFunds(f.alice, f.aliceDflt, cold, []Fund{
		{Ticker: acme, Amount: big.NewInt(30), NFTs: []uint64{9}, Memo: "rebalance"},
	}))

	bal, err := f.p.Balance(cold, acme)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(30), bal)
	owner, _, err := f.p.NFTOwner(acme, 9)
	require.NoError(t, err)
	assert.Equal(t, cold, owner)
}
