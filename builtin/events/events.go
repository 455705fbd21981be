// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package events

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

// Event is an observable side effect of a dispatched call. Data is the RLP
// encoding of a module defined payload.
type Event struct {
	Module string
	Name   string
	Topics []mesh.Bytes32
	Data   []byte
}

// Decode decodes the payload into v.
func (e *Event) Decode(v any) error {
	return rlp.DecodeBytes(e.Data, v)
}

// Log collects the events of the block being applied. Events live in state
// so a reverted call drops the events it emitted.
type Log struct {
	count *store.Value[uint64]
	items *store.Mapping[store.U64, *Event]
}

func New(st *state.State) *Log {
	sctx := store.NewContext("events", st)
	return &Log{
		count: store.NewValue[uint64](sctx, "count"),
		items: store.NewMapping[store.U64, *Event](sctx, "items"),
	}
}

// Emit appends an event.
func (l *Log) Emit(module, name string, topics []mesh.Bytes32, data any) error {
	var enc []byte
	if data != nil {
		var err error
		if enc, err = rlp.EncodeToBytes(data); err != nil {
			return err
		}
	}
	n, err := l.count.Get()
	if err != nil {
		return err
	}
	if err := l.items.Set(store.U64(n), &Event{
		Module: module,
		Name:   name,
		Topics: topics,
		Data:   enc,
	}); err != nil {
		return err
	}
	return l.count.Set(n + 1)
}

// Len returns the number of pending events.
func (l *Log) Len() (uint64, error) {
	return l.count.Get()
}

// Drain returns the pending events in emission order and clears them.
func (l *Log) Drain() ([]*Event, error) {
	n, err := l.count.Get()
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, n)
	for i := uint64(0); i < n; i++ {
		ev, _, err := l.items.Take(store.U64(i))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	l.count.Delete()
	return out, nil
}

// Emitter binds a Log to a module name.
type Emitter struct {
	log    *Log
	module string
}

func (l *Log) For(module string) *Emitter {
	return &Emitter{log: l, module: module}
}

func (e *Emitter) Emit(name string, data any, topics ...mesh.Bytes32) error {
	return e.log.Emit(e.module, name, topics, data)
}
