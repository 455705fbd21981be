// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package era tracks the current era, when the next one starts and which
// past eras are still inside the bonding window.
package era

import (
	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

// Forcing overrides the session count rule for starting eras.
type Forcing uint8

const (
	NotForcing Forcing = iota
	// ForceNew starts a new era at the next session end, then reverts to
	// NotForcing.
	ForceNew
	// ForceNone never starts a new era.
	ForceNone
	// ForceAlways starts a new era at every session end.
	ForceAlways
)

func (f Forcing) String() string {
	switch f {
	case NotForcing:
		return "not-forcing"
	case ForceNew:
		return "force-new"
	case ForceNone:
		return "force-none"
	case ForceAlways:
		return "force-always"
	}
	return "unknown"
}

// Bonded is an era still inside the bonding window and the session it
// started at.
type Bonded struct {
	Era     mesh.EraIndex
	Session mesh.SessionIndex
}

// Started is emitted when an era begins.
type Started struct {
	Era     mesh.EraIndex
	Session mesh.SessionIndex
	Start   mesh.Moment
}

// Clock is the era state machine.
type Clock struct {
	current      *store.Value[mesh.EraIndex]
	start        *store.Value[mesh.Moment]
	startSession *store.Value[mesh.SessionIndex]
	forcing      *store.Value[Forcing]
	bonded       *store.Value[[]Bonded]
	events       *events.Emitter

	sessionsPerEra  uint32
	bondingDuration uint32
}

func New(st *state.State, cfg *mesh.Config, log *events.Log) *Clock {
	sctx := store.NewContext(types.Module, st)
	return &Clock{
		current:         store.NewValue[mesh.EraIndex](sctx, "current-era"),
		start:           store.NewValue[mesh.Moment](sctx, "current-era-start"),
		startSession:    store.NewValue[mesh.SessionIndex](sctx, "current-era-start-session"),
		forcing:         store.NewValue[Forcing](sctx, "force-era"),
		bonded:          store.NewValue[[]Bonded](sctx, "bonded-eras"),
		events:          log.For(types.Module),
		sessionsPerEra:  cfg.SessionsPerEra,
		bondingDuration: cfg.BondingDuration,
	}
}

// Init records era 0 as starting at genesis.
func (c *Clock) Init(now mesh.Moment) error {
	if err := c.start.Set(now); err != nil {
		return err
	}
	return c.bonded.Set([]Bonded{{Era: 0, Session: 0}})
}

func (c *Clock) Current() (mesh.EraIndex, error) {
	return c.current.Get()
}

// Start returns when the current era started.
func (c *Clock) Start() (mesh.Moment, error) {
	return c.start.Get()
}

// StartSession returns the first session of the current era.
func (c *Clock) StartSession() (mesh.SessionIndex, error) {
	return c.startSession.Get()
}

func (c *Clock) Forcing() (Forcing, error) {
	return c.forcing.Get()
}

func (c *Clock) SetForcing(f Forcing) error {
	return c.forcing.Set(f)
}

// BondedEras returns the eras inside the bonding window, oldest first.
func (c *Clock) BondedEras() ([]Bonded, error) {
	return c.bonded.Get()
}

// EnsureNewEra makes the next session end start an era unless eras are
// already forced.
func (c *Clock) EnsureNewEra() error {
	f, err := c.forcing.Get()
	if err != nil {
		return err
	}
	if f == ForceAlways || f == ForceNew {
		return nil
	}
	return c.forcing.Set(ForceNew)
}

// ShouldStartEra reports whether session begins a new era. A pending
// ForceNew is consumed.
func (c *Clock) ShouldStartEra(session mesh.SessionIndex) (bool, error) {
	f, err := c.forcing.Get()
	if err != nil {
		return false, err
	}
	switch f {
	case ForceNew:
		return true, c.forcing.Set(NotForcing)
	case ForceAlways:
		return true, nil
	case NotForcing:
		start, err := c.startSession.Get()
		if err != nil {
			return false, err
		}
		var length uint32
		if session > start {
			length = uint32(session - start)
		}
		return length >= c.sessionsPerEra, nil
	}
	return false, nil
}

// Advance starts the next era at session. Eras that fall out of the bonding
// window are returned in pruned; firstKept is the start session of the
// oldest era still bonded, valid when pruned is not empty.
func (c *Clock) Advance(session mesh.SessionIndex, now mesh.Moment) (era mesh.EraIndex, pruned []mesh.EraIndex, firstKept mesh.SessionIndex, err error) {
	if era, err = c.current.Get(); err != nil {
		return
	}
	era++
	if err = c.current.Set(era); err != nil {
		return
	}
	if err = c.start.Set(now); err != nil {
		return
	}
	if err = c.startSession.Set(session); err != nil {
		return
	}

	bonded, err := c.bonded.Get()
	if err != nil {
		return
	}
	bonded = append(bonded, Bonded{Era: era, Session: session})
	if uint32(era) > c.bondingDuration {
		keep := era - mesh.EraIndex(c.bondingDuration)
		n := 0
		for n < len(bonded) && bonded[n].Era < keep {
			pruned = append(pruned, bonded[n].Era)
			n++
		}
		bonded = bonded[n:]
		firstKept = bonded[0].Session
	}
	if err = c.bonded.Set(bonded); err != nil {
		return
	}
	err = c.events.Emit("EraStarted", &Started{era, session, now})
	return
}

// EraForSession finds the era session belongs to among the bonded eras.
func (c *Clock) EraForSession(session mesh.SessionIndex) (mesh.EraIndex, bool, error) {
	current, err := c.current.Get()
	if err != nil {
		return 0, false, err
	}
	start, err := c.startSession.Get()
	if err != nil {
		return 0, false, err
	}
	if session >= start {
		return current, true, nil
	}
	bonded, err := c.bonded.Get()
	if err != nil {
		return 0, false, err
	}
	for i := len(bonded) - 1; i >= 0; i-- {
		if bonded[i].Session <= session {
			return bonded[i].Era, true, nil
		}
	}
	return 0, false, nil
}

// WindowStart is the oldest era whose offences still count.
func (c *Clock) WindowStart(current mesh.EraIndex) mesh.EraIndex {
	if uint32(current) <= c.bondingDuration {
		return 0
	}
	return current - mesh.EraIndex(c.bondingDuration)
}
