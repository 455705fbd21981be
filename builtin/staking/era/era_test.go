// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package era

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

func newClock(t *testing.T) *Clock {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)
	cfg := mesh.DefaultConfig()
	cfg.SessionsPerEra = 3
	cfg.BondingDuration = 2
	c := New(st, cfg, events.New(st))
	require.NoError(t, c.Init(1000))
	return c
}

func TestShouldStartEra(t *testing.T) {
	c := newClock(t)

	for session, want := range []bool{false, false, false, true, true} {
		got, err := c.ShouldStartEra(mesh.SessionIndex(session))
		require.NoError(t, err)
		assert.Equal(t, want, got, "session %d", session)
	}

	require.NoError(t, c.EnsureNewEra())
	got, err := c.ShouldStartEra(1)
	require.NoError(t, err)
	assert.True(t, got)
	f, err := c.Forcing()
	require.NoError(t, err)
	assert.Equal(t, NotForcing, f, "ForceNew is consumed")

	require.NoError(t, c.SetForcing(ForceNone))
	got, err = c.ShouldStartEra(9)
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, c.SetForcing(ForceAlways))
	require.NoError(t, c.EnsureNewEra())
	f, err = c.Forcing()
	require.NoError(t, err)
	assert.Equal(t, ForceAlways, f)
	got, err = c.ShouldStartEra(1)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestAdvancePrunes(t *testing.T) {
	c := newClock(t)

	era, pruned, _, err := c.Advance(3, 2000)
	require.NoError(t, err)
	assert.Equal(t, mesh.EraIndex(1), era)
	assert.Empty(t, pruned)

	_, pruned, _, err = c.Advance(6, 3000)
	require.NoError(t, err)
	assert.Empty(t, pruned)

	era, pruned, firstKept, err := c.Advance(9, 4000)
	require.NoError(t, err)
	assert.Equal(t, mesh.EraIndex(3), era)
	assert.Equal(t, []mesh.EraIndex{0}, pruned)
	assert.Equal(t, mesh.SessionIndex(3), firstKept)

	bonded, err := c.BondedEras()
	require.NoError(t, err)
	assert.Equal(t, []Bonded{{1, 3}, {2, 6}, {3, 9}}, bonded)

	start, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, mesh.Moment(4000), start)
	assert.Equal(t, mesh.EraIndex(1), c.WindowStart(era))
	assert.Equal(t, mesh.EraIndex(0), c.WindowStart(1))
}

func TestEraForSession(t *testing.T) {
	c := newClock(t)
	_, _, _, err := c.Advance(3, 2000)
	require.NoError(t, err)
	_, _, _, err = c.Advance(6, 3000)
	require.NoError(t, err)

	for session, want := range map[mesh.SessionIndex]mesh.EraIndex{0: 0, 2: 0, 3: 1, 5: 1, 6: 2, 10: 2} {
		era, ok, err := c.EraForSession(session)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, era, "session %d", session)
	}

	_, _, _, err = c.Advance(9, 4000)
	require.NoError(t, err)
	_, ok, err := c.EraForSession(1)
	require.NoError(t, err)
	assert.False(t, ok, "era 0 left the bonding window")
}
