// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/kv"
	"github.com/stakemesh/stakemesh/mesh"
)

// Stage abstracts changes on the main accounts trie.
type Stage struct {
	keys    []mesh.Bytes32
	changes map[mesh.Bytes32][]byte
}

func newStage(changes map[mesh.Bytes32][]byte) *Stage {
	keys := make([]mesh.Bytes32, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	return &Stage{keys: keys, changes: changes}
}

// Len returns the number of changed keys.
func (s *Stage) Len() int {
	return len(s.keys)
}

// Hash computes the digest of the changes, independent of write order.
func (s *Stage) Hash() mesh.Bytes32 {
	return mesh.Blake2bFn(func(w io.Writer) {
		var n [4]byte
		for _, k := range s.keys {
			v := s.changes[k]
			w.Write(k[:])
			binary.BigEndian.PutUint32(n[:], uint32(len(v)))
			w.Write(n[:])
			w.Write(v)
		}
	})
}

// Commit writes the changes into the putter. Empty values are deleted.
func (s *Stage) Commit(putter kv.Putter) error {
	for _, k := range s.keys {
		v := s.changes[k]
		var err error
		if len(v) == 0 {
			err = putter.Delete(k[:])
		} else {
			err = putter.Put(k[:], v)
		}
		if err != nil {
			return errors.Wrap(err, "commit state")
		}
	}
	return nil
}
