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

// Value is a single storage entry.
type Value[V any] struct {
	context *Context
	pos     mesh.Bytes32
}

func NewValue[V any](context *Context, name string) *Value[V] {
	return &Value[V]{context: context, pos: context.slot(name)}
}

func (v *Value[V]) Get() (value V, err error) {
	err = v.context.state.DecodeStorage(v.pos, func(raw []byte) error {
		if t := reflect.TypeOf(value); t != nil && t.Kind() == reflect.Ptr {
			value = reflect.New(t.Elem()).Interface().(V)
		}
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

func (v *Value[V]) Set(value V) error {
	return v.context.state.EncodeStorage(v.pos, func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}

func (v *Value[V]) Delete() {
	v.context.state.SetRaw(v.pos, nil)
}

// Counter is a monotonically increasing id source.
type Counter struct {
	value *Value[uint64]
	start uint64
}

// NewCounter creates a counter whose first id is start.
func NewCounter(context *Context, name string, start uint64) *Counter {
	return &Counter{value: NewValue[uint64](context, name), start: start}
}

// Peek returns the id Next would return.
func (c *Counter) Peek() (uint64, error) {
	n, err := c.value.Get()
	if err != nil {
		return 0, err
	}
	if n < c.start {
		n = c.start
	}
	return n, nil
}

// Next returns the next id and advances the counter.
func (c *Counter) Next() (uint64, error) {
	n, err := c.Peek()
	if err != nil {
		return 0, err
	}
	if err := c.value.Set(n + 1); err != nil {
		return 0, err
	}
	return n, nil
}
