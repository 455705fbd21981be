// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package system keeps the block context visible to runtime modules.
package system

import (
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

type Block struct {
	Number    mesh.BlockNumber
	Timestamp mesh.Moment
	Author    mesh.AccountID
}

type System struct {
	block *store.Value[*Block]
}

func New(st *state.State) *System {
	sctx := store.NewContext("system", st)
	return &System{block: store.NewValue[*Block](sctx, "block")}
}

// SetBlock is called by the runtime before anything else in a block.
func (s *System) SetBlock(b *Block) error {
	return s.block.Set(b)
}

func (s *System) Block() (*Block, error) {
	return s.block.Get()
}

// BlockNumber returns the number of the block being applied.
func (s *System) BlockNumber() (mesh.BlockNumber, error) {
	b, err := s.block.Get()
	if err != nil {
		return 0, err
	}
	return b.Number, nil
}

// Now returns the timestamp of the block being applied.
func (s *System) Now() (mesh.Moment, error) {
	b, err := s.block.Get()
	if err != nil {
		return 0, err
	}
	return b.Timestamp, nil
}
