// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

type testStruct struct {
	Field1 uint64
	Who    mesh.AccountID
	Value  *big.Int
}

func newTestContext(t *testing.T, module string) *Context {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewContext(module, state.New(db))
}

func TestMappingStruct(t *testing.T) {
	ctx := newTestContext(t, "test")
	m := NewMapping[mesh.AccountID, *testStruct](ctx, "structs")

	who := mesh.NumberedAccount(1)

	v, found, err := m.Find(who)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotNil(t, v, "absent pointer values decode to a fresh zero value")
	assert.Equal(t, uint64(0), v.Field1)

	entry := &testStruct{Field1: 7, Who: who, Value: big.NewInt(1000)}
	require.NoError(t, m.Set(who, entry))

	v, found, err = m.Find(who)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry, v)

	has, err := m.Has(who)
	require.NoError(t, err)
	assert.True(t, has)

	taken, found, err := m.Take(who)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry, taken)

	has, err = m.Has(who)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMappingCompositeKeys(t *testing.T) {
	ctx := newTestContext(t, "test")
	m := NewMapping[Pair[U32, mesh.AccountID], uint64](ctx, "pairs")

	a := NewPair(U32(1), mesh.NumberedAccount(1))
	b := NewPair(U32(2), mesh.NumberedAccount(1))

	require.NoError(t, m.Set(a, 10))
	require.NoError(t, m.Set(b, 20))

	va, err := m.Get(a)
	require.NoError(t, err)
	vb, err := m.Get(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), va)
	assert.Equal(t, uint64(20), vb)

	triple := NewTriple(U64(1), U64(2), U32(3))
	assert.Len(t, triple.Bytes(), 20)
}

func TestModulesDoNotClash(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db.Close()
	st := state.New(db)

	a := NewValue[uint64](NewContext("a", st), "value")
	b := NewValue[uint64](NewContext("b", st), "value")

	require.NoError(t, a.Set(1))
	require.NoError(t, b.Set(2))

	va, err := a.Get()
	require.NoError(t, err)
	vb, err := b.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), va)
	assert.Equal(t, uint64(2), vb)

	a.Delete()
	va, err = a.Get()
	require.NoError(t, err)
	assert.Zero(t, va)
}

func TestValueBig(t *testing.T) {
	ctx := newTestContext(t, "test")
	v := NewValue[*big.Int](ctx, "issuance")

	got, err := v.Get()
	require.NoError(t, err)
	assert.Equal(t, 0, got.Sign())

	require.NoError(t, v.Set(big.NewInt(42)))
	got, err = v.Get()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), got)
}

func TestCounter(t *testing.T) {
	ctx := newTestContext(t, "test")
	c := NewCounter(ctx, "ids", 1)

	peek, err := c.Peek()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), peek)

	for want := uint64(1); want <= 3; want++ {
		got, err := c.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestList(t *testing.T) {
	ctx := newTestContext(t, "test")
	l := NewList[mesh.AccountID](ctx, "accounts")

	a, b, c := mesh.NumberedAccount(1), mesh.NumberedAccount(2), mesh.NumberedAccount(3)
	for _, k := range []mesh.AccountID{a, b, c, b} {
		require.NoError(t, l.Add(k))
	}

	n, err := l.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	values, err := l.Values()
	require.NoError(t, err)
	assert.Equal(t, []mesh.AccountID{a, b, c}, values)

	// middle
	require.NoError(t, l.Remove(b))
	values, err = l.Values()
	require.NoError(t, err)
	assert.Equal(t, []mesh.AccountID{a, c}, values)

	ok, err := l.Contains(b)
	require.NoError(t, err)
	assert.False(t, ok)

	// head
	require.NoError(t, l.Remove(a))
	head, err := l.Head()
	require.NoError(t, err)
	assert.Equal(t, c, head)

	// absent
	require.NoError(t, l.Remove(a))

	// tail, then re-add
	require.NoError(t, l.Remove(c))
	n, err = l.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, l.Add(b))
	values, err = l.Values()
	require.NoError(t, err)
	assert.Equal(t, []mesh.AccountID{b}, values)

	assert.Error(t, l.Add(mesh.AccountID{}))
}

func TestListRemoveWhileIterating(t *testing.T) {
	ctx := newTestContext(t, "test")
	l := NewList[U64](ctx, "ids")
	for i := U64(1); i <= 5; i++ {
		require.NoError(t, l.Add(i))
	}

	var seen []U64
	require.NoError(t, l.Iter(func(k U64) error {
		seen = append(seen, k)
		if k%2 == 0 {
			return l.Remove(k)
		}
		return nil
	}))
	assert.Equal(t, []U64{1, 2, 3, 4, 5}, seen)

	values, err := l.Values()
	require.NoError(t, err)
	assert.Equal(t, []U64{1, 3, 5}, values)

	require.NoError(t, l.Clear())
	n, err := l.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}
