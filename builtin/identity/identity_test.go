// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

func newIdentity(t *testing.T) *Identity {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)
	return New(st, events.New(st))
}

func TestRegister(t *testing.T) {
	id := newIdentity(t)
	alice, did := mesh.NumberedAccount(1), mesh.NumberedIdentity(1)

	require.NoError(t, id.RegisterIdentity(did, alice))
	assert.ErrorIs(t, id.RegisterIdentity(did, mesh.NumberedAccount(2)), ErrIdentityExists)
	assert.ErrorIs(t, id.RegisterIdentity(mesh.NumberedIdentity(2), alice), ErrKeyInUse)

	got, found, err := id.IdentityOf(alice)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, did, got)

	_, err = id.EnsureIdentity(mesh.NumberedAccount(3))
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestSecondaryKeys(t *testing.T) {
	id := newIdentity(t)
	alice, bob, carol := mesh.NumberedAccount(1), mesh.NumberedAccount(2), mesh.NumberedAccount(3)
	did := mesh.NumberedIdentity(1)
	require.NoError(t, id.RegisterIdentity(did, alice))

	user := mesh.UserPortfolio(did, 1)
	require.NoError(t, id.AddSecondaryKey(alice, bob, Permissions{Restricted: true, Portfolios: []mesh.PortfolioID{user}}))
	require.NoError(t, id.AddSecondaryKey(alice, carol, Permissions{}))
	assert.ErrorIs(t, id.AddSecondaryKey(bob, mesh.NumberedAccount(4), Permissions{}), ErrNotPrimaryKey)

	ok, err := id.IsSignerAuthorized(did, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = id.HasPortfolioPermission(bob, user)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = id.HasPortfolioPermission(bob, mesh.DefaultPortfolio(did))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = id.HasPortfolioPermission(carol, mesh.DefaultPortfolio(did))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, id.RemoveSecondaryKey(alice, bob))
	assert.ErrorIs(t, id.RemoveSecondaryKey(alice, bob), ErrNotSecondaryKey)
	ok, err = id.IsSignerAuthorized(did, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCDD(t *testing.T) {
	id := newIdentity(t)
	alice, did := mesh.NumberedAccount(1), mesh.NumberedIdentity(1)
	assert.ErrorIs(t, id.SetCDD(did, true), ErrNoSuchIdentity)

	require.NoError(t, id.RegisterIdentity(did, alice))
	ok, err := id.AccountHasValidCDD(alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, id.SetCDD(did, true))
	ok, err = id.AccountHasValidCDD(alice)
	require.NoError(t, err)
	assert.True(t, ok)
}
