// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

func newSession(t *testing.T) *Session {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)
	return New(st, events.New(st))
}

func accounts(ns ...uint64) []mesh.AccountID {
	out := make([]mesh.AccountID, 0, len(ns))
	for _, n := range ns {
		out = append(out, mesh.NumberedAccount(n))
	}
	return out
}

func TestRotate(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.Init(accounts(11, 21)))

	idx, err := s.Rotate(nil)
	require.NoError(t, err)
	assert.Equal(t, mesh.SessionIndex(1), idx)

	idx, err = s.Rotate(accounts(31))
	require.NoError(t, err)
	assert.Equal(t, mesh.SessionIndex(2), idx)

	set, err := s.Validators()
	require.NoError(t, err)
	assert.Equal(t, accounts(31), set)

	hist, found, err := s.HistoricalValidators(1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, accounts(11, 21), hist)

	require.NoError(t, s.PruneHistoricalUpTo(2))
	_, found, err = s.HistoricalValidators(1)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = s.HistoricalValidators(2)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDisableThreshold(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.Init(accounts(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)))

	// 17% of 10 floors to 1
	exceeded, err := s.DisableValidator(mesh.NumberedAccount(1))
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = s.DisableValidator(mesh.NumberedAccount(1))
	require.NoError(t, err)
	assert.False(t, exceeded, "disabling twice counts once")

	exceeded, err = s.DisableValidator(mesh.NumberedAccount(2))
	require.NoError(t, err)
	assert.True(t, exceeded)

	exceeded, err = s.DisableValidator(mesh.NumberedAccount(99))
	require.NoError(t, err)
	assert.False(t, exceeded, "not in the set")

	_, err = s.Rotate(nil)
	require.NoError(t, err)
	disabled, err := s.Disabled()
	require.NoError(t, err)
	assert.Empty(t, disabled)
}
