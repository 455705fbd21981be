// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package permission keeps the governance approved validator controllers
// and their compliance status.
package permission

import (
	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

var (
	ErrAlreadyExists = reverts.New(reverts.State, types.Module, "validator already permissioned")
	ErrNotExists     = reverts.New(reverts.State, types.Module, "permission entry not found")
)

// Compliance is the status of a permissioned validator. Only Active
// validators may validate or be elected.
type Compliance uint8

const (
	Pending Compliance = iota + 1
	Active
)

func (c Compliance) String() string {
	switch c {
	case Pending:
		return "pending"
	case Active:
		return "active"
	}
	return "absent"
}

// Changed is emitted on every transition. Status 0 means removed.
type Changed struct {
	Controller mesh.AccountID
	Status     Compliance
}

// Gate maps controllers to their compliance status.
type Gate struct {
	entries *store.Mapping[mesh.AccountID, Compliance]
	events  *events.Emitter
}

func New(st *state.State, log *events.Log) *Gate {
	sctx := store.NewContext(types.Module, st)
	return &Gate{
		entries: store.NewMapping[mesh.AccountID, Compliance](sctx, "permissioned-validators"),
		events:  log.For(types.Module),
	}
}

// Status returns the status of controller and whether it is permissioned.
func (g *Gate) Status(controller mesh.AccountID) (Compliance, bool, error) {
	return g.entries.Find(controller)
}

// IsActive reports whether controller is permissioned and compliant.
func (g *Gate) IsActive(controller mesh.AccountID) (bool, error) {
	c, err := g.entries.Get(controller)
	return c == Active, err
}

// Add permissions controller as Active.
func (g *Gate) Add(controller mesh.AccountID) error {
	if ok, err := g.entries.Has(controller); err != nil {
		return err
	} else if ok {
		return ErrAlreadyExists
	}
	return g.set(controller, Active)
}

// Remove revokes the permission of controller.
func (g *Gate) Remove(controller mesh.AccountID) error {
	if _, err := g.ensure(controller); err != nil {
		return err
	}
	g.entries.Delete(controller)
	return g.events.Emit("PermissionedValidatorRemoved", &Changed{Controller: controller}, mesh.Bytes32(controller))
}

// ComplianceFailed moves controller to Pending.
func (g *Gate) ComplianceFailed(controller mesh.AccountID) error {
	if _, err := g.ensure(controller); err != nil {
		return err
	}
	return g.set(controller, Pending)
}

// CompliancePassed moves controller back to Active.
func (g *Gate) CompliancePassed(controller mesh.AccountID) error {
	if _, err := g.ensure(controller); err != nil {
		return err
	}
	return g.set(controller, Active)
}

// Move carries the entry of from over to to, used when a stash changes
// controller.
func (g *Gate) Move(from, to mesh.AccountID) error {
	c, ok, err := g.entries.Take(from)
	if err != nil || !ok {
		return err
	}
	return g.entries.Set(to, c)
}

func (g *Gate) ensure(controller mesh.AccountID) (Compliance, error) {
	c, ok, err := g.entries.Find(controller)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, reverts.Wrapf(ErrNotExists, "controller %v", controller.AbbrevString())
	}
	return c, nil
}

func (g *Gate) set(controller mesh.AccountID, c Compliance) error {
	if err := g.entries.Set(controller, c); err != nil {
		return err
	}
	return g.events.Emit("PermissionedValidatorChanged", &Changed{controller, c}, mesh.Bytes32(controller))
}
