// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rewards accrues era points, turns the inflation curve into an era
// payout and splits it between validators and their nominators.
package rewards

import (
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const (
	AuthorPoints      = 20
	UncleAuthorPoints = 2
	UnclePoints       = 1
)

// EraPoints are the points of the elected validators, by position in the
// elected set.
type EraPoints struct {
	Total      uint32
	Individual []uint32
}

// Of returns the points of the validator at position i.
func (p *EraPoints) Of(i int) uint32 {
	if i < len(p.Individual) {
		return p.Individual[i]
	}
	return 0
}

// Points accrues points for the current era.
type Points struct {
	current *store.Value[*EraPoints]
}

func NewPoints(st *state.State) *Points {
	sctx := store.NewContext(types.Module, st)
	return &Points{current: store.NewValue[*EraPoints](sctx, "current-era-points")}
}

// Add credits n points to who if it is in elected.
func (p *Points) Add(elected []mesh.AccountID, who mesh.AccountID, n uint32) error {
	pos := -1
	for i, e := range elected {
		if e == who {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil
	}
	pts, err := p.current.Get()
	if err != nil {
		return err
	}
	for len(pts.Individual) <= pos {
		pts.Individual = append(pts.Individual, 0)
	}
	pts.Individual[pos] += n
	pts.Total += n
	return p.current.Set(pts)
}

// NoteAuthorship credits the author of a block and of the uncles it
// references.
func (p *Points) NoteAuthorship(elected []mesh.AccountID, author mesh.AccountID, uncles []mesh.AccountID) error {
	if err := p.Add(elected, author, AuthorPoints+UncleAuthorPoints*uint32(len(uncles))); err != nil {
		return err
	}
	for _, u := range uncles {
		if err := p.Add(elected, u, UnclePoints); err != nil {
			return err
		}
	}
	return nil
}

// Current returns the points accrued so far.
func (p *Points) Current() (*EraPoints, error) {
	return p.current.Get()
}

// Take returns the accrued points and resets them.
func (p *Points) Take() (*EraPoints, error) {
	pts, err := p.current.Get()
	if err != nil {
		return nil, err
	}
	p.current.Delete()
	return pts, nil
}
