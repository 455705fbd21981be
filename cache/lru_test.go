// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoad(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)

	loads := 0
	load := func(v int) Loader {
		return func() (any, error) {
			loads++
			return v, nil
		}
	}

	v, err := c.GetOrLoad("a", load(1))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = c.GetOrLoad("a", load(2))
	require.NoError(t, err)
	assert.Equal(t, 1, v, "cached")
	assert.Equal(t, 1, loads)

	_, err = c.GetOrLoad("b", load(2))
	require.NoError(t, err)
	_, err = c.GetOrLoad("c", load(3))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	// a was evicted
	v, err = c.GetOrLoad("a", load(4))
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	_, hit, miss := c.Stats().Stats()
	assert.Equal(t, int64(1), hit)
	assert.Equal(t, int64(4), miss)
}

func TestLoadErrorNotCached(t *testing.T) {
	c, err := NewLRU(1)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.GetOrLoad("k", func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestNewLRUInvalidSize(t *testing.T) {
	_, err := NewLRU(0)
	assert.Error(t, err)
}

func TestStatsChanged(t *testing.T) {
	var s Stats
	s.Hit()
	changed, hit, miss := s.Stats()
	assert.True(t, changed)
	assert.Equal(t, int64(1), hit)
	assert.Equal(t, int64(0), miss)

	changed, _, _ = s.Stats()
	assert.False(t, changed)
}
