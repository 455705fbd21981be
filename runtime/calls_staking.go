// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"github.com/stakemesh/stakemesh/builtin/staking"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/mesh"
)

// Bond is signed by the stash.
type Bond struct {
	Controller mesh.AccountID          `yaml:"controller"`
	Value      *mesh.Amount            `yaml:"value"`
	Payee      types.RewardDestination `yaml:"payee"`
}

func (c *Bond) Dispatch(m *Modules, o Origin) error {
	stash, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.Bond(stash, c.Controller, c.Value.Big(), c.Payee)
}

// BondExtra is signed by the stash.
type BondExtra struct {
	MaxAdditional *mesh.Amount `yaml:"max-additional"`
}

func (c *BondExtra) Dispatch(m *Modules, o Origin) error {
	stash, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.BondExtra(stash, c.MaxAdditional.Big())
}

// Unbond and the calls below are signed by the controller.
type Unbond struct {
	Value *mesh.Amount `yaml:"value"`
}

func (c *Unbond) Dispatch(m *Modules, o Origin) error {
	ctrl, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.Unbond(ctrl, c.Value.Big())
}

type WithdrawUnbonded struct{}

func (c *WithdrawUnbonded) Dispatch(m *Modules, o Origin) error {
	ctrl, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.WithdrawUnbonded(ctrl)
}

type Validate struct {
	Commission mesh.Perbill `yaml:"commission"`
}

func (c *Validate) Dispatch(m *Modules, o Origin) error {
	ctrl, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.Validate(ctrl, types.ValidatorPrefs{Commission: c.Commission})
}

type Nominate struct {
	Targets []mesh.AccountID `yaml:"targets"`
}

func (c *Nominate) Dispatch(m *Modules, o Origin) error {
	ctrl, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.Nominate(ctrl, c.Targets)
}

type Chill struct{}

func (c *Chill) Dispatch(m *Modules, o Origin) error {
	ctrl, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.Chill(ctrl)
}

type SetPayee struct {
	Payee types.RewardDestination `yaml:"payee"`
}

func (c *SetPayee) Dispatch(m *Modules, o Origin) error {
	ctrl, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.SetPayee(ctrl, c.Payee)
}

// SetController is signed by the stash.
type SetController struct {
	Controller mesh.AccountID `yaml:"controller"`
}

func (c *SetController) Dispatch(m *Modules, o Origin) error {
	stash, err := o.signed()
	if err != nil {
		return err
	}
	return m.Staking.SetController(stash, c.Controller)
}

// SetValidatorCount and the rest of this file are root calls.
type SetValidatorCount struct {
	Count uint32 `yaml:"count"`
}

func (c *SetValidatorCount) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.SetValidatorCount(c.Count)
}

type AddPotentialValidator struct {
	Controller mesh.AccountID `yaml:"controller"`
}

func (c *AddPotentialValidator) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.AddPotentialValidator(c.Controller)
}

type RemoveValidator struct {
	Controller mesh.AccountID `yaml:"controller"`
}

func (c *RemoveValidator) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.RemoveValidator(c.Controller)
}

type ComplianceFailed struct {
	Controller mesh.AccountID `yaml:"controller"`
}

func (c *ComplianceFailed) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.ComplianceFailed(c.Controller)
}

type CompliancePassed struct {
	Controller mesh.AccountID `yaml:"controller"`
}

func (c *CompliancePassed) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.CompliancePassed(c.Controller)
}

type ForceNoEras struct{}

func (c *ForceNoEras) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.ForceNoEras()
}

type ForceNewEra struct{}

func (c *ForceNewEra) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.ForceNewEra()
}

type ForceNewEraAlways struct{}

func (c *ForceNewEraAlways) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.ForceNewEraAlways()
}

type SetInvulnerables struct {
	Stashes []mesh.AccountID `yaml:"stashes"`
}

func (c *SetInvulnerables) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.SetInvulnerables(c.Stashes)
}

type ForceUnstake struct {
	Stash mesh.AccountID `yaml:"stash"`
}

func (c *ForceUnstake) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.ForceUnstake(c.Stash)
}

type CancelDeferredSlash struct {
	Era     mesh.EraIndex `yaml:"era"`
	Indices []uint32      `yaml:"indices"`
}

func (c *CancelDeferredSlash) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Staking.CancelDeferredSlash(c.Era, c.Indices)
}

// Offence names an offender of a ReportOffence call.
type Offence struct {
	Offender  mesh.AccountID   `yaml:"offender"`
	Fraction  mesh.Perbill     `yaml:"fraction"`
	Reporters []mesh.AccountID `yaml:"reporters"`
}

// ReportOffence stands in for the offences pallet: it reports
// misbehaviour observed in Session.
type ReportOffence struct {
	Session   mesh.SessionIndex `yaml:"session"`
	Offenders []Offence         `yaml:"offenders"`
}

func (c *ReportOffence) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	details := make([]staking.OffenceDetails, 0, len(c.Offenders))
	for _, off := range c.Offenders {
		details = append(details, staking.OffenceDetails(off))
	}
	return m.Staking.ReportOffence(details, c.Session)
}
