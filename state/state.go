// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"fmt"

	"github.com/stakemesh/stakemesh/kv"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/stackedmap"
)

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// State is the journaled keyed storage a block is applied on. Every write
// lands in the revision on top of the stack, so a checkpoint can be rolled
// back without touching the underlying database. Empty values mean absent.
type State struct {
	db kv.Getter
	sm *stackedmap.StackedMap[mesh.Bytes32, []byte]
}

// New create state object over the committed storage db.
func New(db kv.Getter) *State {
	s := &State{db: db}
	s.sm = stackedmap.New(s.cacheGetter)
	return s
}

// cacheGetter implements stackedmap.MapGetter.
func (s *State) cacheGetter(key mesh.Bytes32) ([]byte, bool, error) {
	v, err := s.db.Get(key[:])
	if err != nil {
		if s.db.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// GetRaw returns the raw value stored at key, nil if absent.
func (s *State) GetRaw(key mesh.Bytes32) ([]byte, error) {
	v, _, err := s.sm.Get(key)
	if err != nil {
		return nil, &Error{err}
	}
	return v, nil
}

// SetRaw stores value at key. An empty value deletes the key.
func (s *State) SetRaw(key mesh.Bytes32, value []byte) {
	s.sm.Put(key, value)
}

// Has returns whether a non-empty value is stored at key.
func (s *State) Has(key mesh.Bytes32) (bool, error) {
	v, err := s.GetRaw(key)
	if err != nil {
		return false, err
	}
	return len(v) > 0, nil
}

// DecodeStorage get and decode storage value.
// Error returned by dec will be passed through.
func (s *State) DecodeStorage(key mesh.Bytes32, dec func([]byte) error) error {
	v, err := s.GetRaw(key)
	if err != nil {
		return err
	}
	return dec(v)
}

// EncodeStorage set storage value encoded by given enc method.
// Error returned by end will be absorbed by State instance.
func (s *State) EncodeStorage(key mesh.Bytes32, enc func() ([]byte, error)) error {
	data, err := enc()
	if err != nil {
		return &Error{err}
	}
	s.SetRaw(key, data)
	return nil
}

// NewCheckpoint makes a checkpoint of current state.
// It returns revision of the checkpoint.
func (s *State) NewCheckpoint() int {
	return s.sm.Push()
}

// RevertTo revert to checkpoint specified by revision.
func (s *State) RevertTo(revision int) {
	if revision < 0 || revision > s.sm.Depth() {
		panic("invalid revision")
	}
	s.sm.PopTo(revision)
}

// WithTransaction runs fn in a nested checkpoint. The writes of fn are kept
// when it returns nil and rolled back otherwise; the error is passed through.
func (s *State) WithTransaction(fn func() error) error {
	revision := s.NewCheckpoint()
	if err := fn(); err != nil {
		s.RevertTo(revision)
		return err
	}
	return nil
}

// Stage makes a stage object to compute the change digest and commit the
// writes.
func (s *State) Stage() *Stage {
	changes := make(map[mesh.Bytes32][]byte)
	s.sm.Journal(func(key mesh.Bytes32, value []byte) bool {
		changes[key] = value
		return true
	})
	return newStage(changes)
}
