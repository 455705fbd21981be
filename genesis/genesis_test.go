// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/settlement/venue"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
	"github.com/stakemesh/stakemesh/test/datagen"
)

const launchTime = mesh.Moment(1_700_000_000_000)

func acc(n uint64) mesh.AccountID { return mesh.NumberedAccount(n) }

func newRuntime(t *testing.T) *runtime.Runtime {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	rt, err := runtime.New(db, mesh.DefaultConfig())
	require.NoError(t, err)
	return rt
}

var specYAML = fmt.Sprintf(`
launch-time: %d
accounts:
  - {address: %s, balance: 5000}
  - {address: %s, balance: 5000}
  - {address: %s, balance: 0x1388}
identities:
  - did: %s
    primary: %s
    cdd: true
assets:
  - {ticker: ACME, owner: %s, divisible: true, supply: 700}
validators:
  - {stash: %s, controller: %s, value: 1000, commission: 10%%}
  - {stash: %s, controller: %s, value: 1000, payee: stash}
nominators:
  - {stash: %s, controller: %s, value: 500, targets: [%s]}
venues:
  - {creator: %s, details: otc, type: exchange}
`,
	launchTime,
	acc(11), acc(21), acc(101),
	mesh.NumberedIdentity(1), acc(1),
	acc(1),
	acc(11), acc(10),
	acc(21), acc(20),
	acc(101), acc(100), acc(21),
	acc(1),
)

func TestParse(t *testing.T) {
	spec, err := Parse([]byte(specYAML))
	require.NoError(t, err)

	assert.Equal(t, launchTime, spec.LaunchTime)
	require.Len(t, spec.Accounts, 3)
	assert.Equal(t, "5000", spec.Accounts[2].Balance.String())
	assert.Equal(t, mesh.MustParseTicker("ACME"), spec.Assets[0].Ticker)
	assert.Equal(t, mesh.PerbillFromPercent(10), spec.Validators[0].Commission)
	assert.Equal(t, types.Stash, spec.Validators[1].Payee)
	assert.Equal(t, acc(100), spec.Nominators[0].Controller)
	assert.Equal(t, venue.Exchange, spec.Venues[0].Type)
	assert.NoError(t, spec.Validate())

	_, err = Parse([]byte("launch-time: 1\nbogus: 2\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Spec)
		want   string
	}{
		{"no launch time", func(s *Spec) { s.LaunchTime = 0 }, "launch-time must be set"},
		{"no validators", func(s *Spec) { s.Validators = nil; s.Nominators = nil }, "at least one validator"},
		{"balance unset", func(s *Spec) { s.Accounts[0].Balance = nil }, "balance must be set"},
		{"zero balance", func(s *Spec) { s.Accounts[0].Balance = mesh.NewAmount(0) }, "balance must be a non-zero integer"},
		{"duplicated account", func(s *Spec) { s.Accounts[1].Address = s.Accounts[0].Address }, "duplicated account"},
		{"key linked twice", func(s *Spec) { s.Identities[0].Secondary = []mesh.AccountID{acc(1)} }, "key linked twice"},
		{"owner without identity", func(s *Spec) { s.Assets[0].Owner = acc(2) }, "has no identity"},
		{"nft supply", func(s *Spec) { s.Assets[0].NonFungible = true }, "supply of a non-fungible asset"},
		{"unfunded stash", func(s *Spec) { s.Validators[0].Stash = datagen.RandAccountID() }, "stash is not funded"},
		{"zero bond", func(s *Spec) { s.Validators[0].Value = nil }, "bond value must be a non-zero integer"},
		{"stash twice", func(s *Spec) { s.Nominators[0].Stash = acc(11) }, "stash bonded twice"},
		{"unknown target", func(s *Spec) { s.Nominators[0].Targets = []mesh.AccountID{datagen.RandAccountID()} }, "is not a genesis validator"},
		{"no targets", func(s *Spec) { s.Nominators[0].Targets = nil }, "nominator without targets"},
		{"no did", func(s *Spec) { s.Identities[0].DID = mesh.IdentityID{} }, "identity did must be set"},
		{"duplicated identity", func(s *Spec) {
			s.Identities = append(s.Identities, Identity{DID: s.Identities[0].DID, Primary: datagen.RandAccountID()})
		}, "duplicated identity"},
		{"venue creator", func(s *Spec) { s.Venues[0].Creator = acc(3) }, "creator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Parse([]byte(specYAML))
			require.NoError(t, err)
			tt.mutate(spec)
			err = spec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			_, err = New(spec)
			assert.Error(t, err)
		})
	}
}

func TestBuild(t *testing.T) {
	spec, err := Parse([]byte(specYAML))
	require.NoError(t, err)
	b, err := New(spec)
	require.NoError(t, err)

	rt := newRuntime(t)
	res, err := b.Build(rt)
	require.NoError(t, err)
	assert.Equal(t, mesh.BlockNumber(0), res.Head.Number)
	assert.Equal(t, launchTime, res.Head.Timestamp)

	require.NoError(t, rt.View(func(m *runtime.Modules) error {
		elected, err := m.Staking.Elected(0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []mesh.AccountID{acc(11), acc(21)}, elected)

		set, err := m.Session.Validators()
		require.NoError(t, err)
		assert.ElementsMatch(t, elected, set)

		did, ok, err := m.Identity.IdentityOf(acc(1))
		require.NoError(t, err)
		require.True(t, ok)
		valid, err := m.Identity.HasValidCDD(did)
		require.NoError(t, err)
		assert.True(t, valid)

		bal, err := m.Portfolio.Balance(mesh.DefaultPortfolio(did), mesh.MustParseTicker("ACME"))
		require.NoError(t, err)
		assert.Equal(t, "700", bal.String())

		v, ok, err := m.Settlement.Venues().Get(1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, did, v.Creator)
		assert.Equal(t, venue.Exchange, v.Type)
		return nil
	}))

	_, err = b.Build(rt)
	assert.Error(t, err, "genesis is committed once")
}

func TestBuildFailsWhenElectionFails(t *testing.T) {
	spec, err := Parse([]byte(specYAML))
	require.NoError(t, err)
	spec.Validators = spec.Validators[1:]
	b, err := New(spec)
	require.NoError(t, err)

	rt := newRuntime(t)
	_, err = b.Build(rt)
	assert.Error(t, err)

	_, ok, err := rt.Best()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDevnet(t *testing.T) {
	accs := DevAccounts()
	require.Len(t, accs, 10)
	assert.Equal(t, accs, DevAccounts())
	seen := make(map[mesh.AccountID]bool)
	for _, a := range accs {
		assert.False(t, seen[a.ID])
		seen[a.ID] = true
	}

	spec := NewDevnet(launchTime)
	require.NoError(t, spec.Validate())
	b, err := New(spec)
	require.NoError(t, err)

	rt := newRuntime(t)
	_, err = b.Build(rt)
	require.NoError(t, err)

	require.NoError(t, rt.View(func(m *runtime.Modules) error {
		elected, err := m.Staking.Elected(0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []mesh.AccountID{accs[0].ID, accs[1].ID, accs[2].ID}, elected)

		bal, err := m.Portfolio.Balance(mesh.DefaultPortfolio(accs[4].DID), DevTicker)
		require.NoError(t, err)
		assert.Equal(t, devAmount(1_000_000).String(), bal.String())
		return nil
	}))
}
