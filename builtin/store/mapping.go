// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/stakemesh/stakemesh/mesh"
)

// Mapping is a key/value storage abstraction for runtime modules. Values are
// RLP encoded and stored at blake2b(module, name, key).
type Mapping[K Key, V any] struct {
	context *Context
	basePos mesh.Bytes32
}

func NewMapping[K Key, V any](context *Context, name string) *Mapping[K, V] {
	return &Mapping[K, V]{context: context, basePos: context.slot(name)}
}

func (m *Mapping[K, V]) position(key K) mesh.Bytes32 {
	return mesh.Blake2b(m.basePos[:], key.Bytes())
}

// Get returns the value stored under key. For an absent key it returns the
// zero value, or a pointer to a fresh zero value when V is a pointer.
func (m *Mapping[K, V]) Get(key K) (value V, err error) {
	value, _, err = m.Find(key)
	return
}

// Find is Get that also reports whether the key is present.
func (m *Mapping[K, V]) Find(key K) (value V, found bool, err error) {
	err = m.context.state.DecodeStorage(m.position(key), func(raw []byte) error {
		if t := reflect.TypeOf(value); t != nil && t.Kind() == reflect.Ptr {
			value = reflect.New(t.Elem()).Interface().(V)
		}
		if len(raw) == 0 {
			return nil
		}
		found = true
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

// Has reports whether key is present.
func (m *Mapping[K, V]) Has(key K) (bool, error) {
	return m.context.state.Has(m.position(key))
}

func (m *Mapping[K, V]) Set(key K, value V) error {
	return m.context.state.EncodeStorage(m.position(key), func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}

func (m *Mapping[K, V]) Delete(key K) {
	m.context.state.SetRaw(m.position(key), nil)
}

// Take returns the value and deletes the key.
func (m *Mapping[K, V]) Take(key K) (V, bool, error) {
	value, found, err := m.Find(key)
	if err != nil || !found {
		return value, found, err
	}
	m.Delete(key)
	return value, true, nil
}
