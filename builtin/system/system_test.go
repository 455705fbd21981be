// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

func TestBlockContext(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db.Close()

	st := state.New(db)
	sys := New(st)

	number, err := sys.BlockNumber()
	require.NoError(t, err)
	assert.Zero(t, number)

	author := mesh.NumberedAccount(11)
	require.NoError(t, sys.SetBlock(&Block{Number: 7, Timestamp: 42_000, Author: author}))

	number, err = sys.BlockNumber()
	require.NoError(t, err)
	assert.Equal(t, mesh.BlockNumber(7), number)

	now, err := sys.Now()
	require.NoError(t, err)
	assert.Equal(t, mesh.Moment(42_000), now)

	cp := st.NewCheckpoint()
	require.NoError(t, sys.SetBlock(&Block{Number: 8}))
	st.RevertTo(cp)

	b, err := sys.Block()
	require.NoError(t, err)
	assert.Equal(t, &Block{Number: 7, Timestamp: 42_000, Author: author}, b)
}
