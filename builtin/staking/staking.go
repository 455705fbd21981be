// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package staking is the nominated proof of stake engine. Stashes bond
// funds through a controller and either validate, if governance has
// permissioned them, or nominate validators. Every era a Phragmén election
// picks the validator set; the closing era is paid out from inflation and
// offences are slashed after a defer period.
package staking

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/staking/era"
	"github.com/stakemesh/stakemesh/builtin/staking/ledger"
	"github.com/stakemesh/stakemesh/builtin/staking/nomination"
	"github.com/stakemesh/stakemesh/builtin/staking/permission"
	"github.com/stakemesh/stakemesh/builtin/staking/rewards"
	"github.com/stakemesh/stakemesh/builtin/staking/slashing"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

var logger = log.WithContext("pkg", "staking")

// Currency is the balances module as staking uses it.
type Currency interface {
	ledger.Currency
	TotalIssuance() (*big.Int, error)
	Slash(who mesh.AccountID, amount *big.Int) (slashed, missing *big.Int, err error)
	DepositIntoExisting(who mesh.AccountID, amount *big.Int) (*big.Int, error)
	DepositCreating(who mesh.AccountID, amount *big.Int) (*big.Int, error)
}

// Session is the validator set handoff.
type Session interface {
	DisableValidator(who mesh.AccountID) (bool, error)
	PruneHistoricalUpTo(index mesh.SessionIndex) error
}

// Compliance answers whether an account belongs to an identity with a
// valid CDD claim.
type Compliance interface {
	AccountHasValidCDD(account mesh.AccountID) (bool, error)
}

// Sink receives unissued era rewards and unclaimed slashed funds.
type Sink interface {
	Absorb(amount *big.Int) error
}

// Clock tells the time of the block being applied.
type Clock interface {
	Now() (mesh.Moment, error)
}

// Deps are the collaborators of the engine.
type Deps struct {
	Currency   Currency
	Session    Session
	Compliance Compliance
	Sink       Sink
	Clock      Clock
}

// Staking wires the staking stages together over chain state.
type Staking struct {
	cfg  *mesh.Config
	deps Deps

	ledger      *ledger.Store
	clock       *era.Clock
	nominations *nomination.Set
	gate        *permission.Gate
	points      *rewards.Points
	curve       *rewards.Curve
	slasher     *slashing.Slasher

	validatorCount *store.Value[uint32]
	invulnerables  *store.Value[[]mesh.AccountID]
	erasStakers    *store.Mapping[eraStash, *types.Exposure]
	erasPrefs      *store.Mapping[eraStash, types.ValidatorPrefs]
	erasElected    *store.Mapping[store.U32, []mesh.AccountID]
	erasSlotStake  *store.Mapping[store.U32, *big.Int]
	erasRewards    *store.Mapping[store.U32, *EraReward]
	erasPoints     *store.Mapping[store.U32, *rewards.EraPoints]
	events         *events.Emitter
}

type eraStash = store.Pair[store.U32, mesh.AccountID]

func eraKey(e mesh.EraIndex, stash mesh.AccountID) eraStash {
	return store.NewPair(store.U32(e), stash)
}

func New(st *state.State, cfg *mesh.Config, deps Deps, log *events.Log) *Staking {
	sctx := store.NewContext(types.Module, st)
	s := &Staking{
		cfg:            cfg,
		deps:           deps,
		ledger:         ledger.New(st, cfg, deps.Currency, log),
		clock:          era.New(st, cfg, log),
		nominations:    nomination.New(st, cfg, log),
		gate:           permission.New(st, log),
		points:         rewards.NewPoints(st),
		curve:          rewards.NewCurve(cfg.RewardCurve),
		validatorCount: store.NewValue[uint32](sctx, "validator-count"),
		invulnerables:  store.NewValue[[]mesh.AccountID](sctx, "invulnerables"),
		erasStakers:    store.NewMapping[eraStash, *types.Exposure](sctx, "eras-stakers"),
		erasPrefs:      store.NewMapping[eraStash, types.ValidatorPrefs](sctx, "eras-validator-prefs"),
		erasElected:    store.NewMapping[store.U32, []mesh.AccountID](sctx, "eras-elected"),
		erasSlotStake:  store.NewMapping[store.U32, *big.Int](sctx, "eras-slot-stake"),
		erasRewards:    store.NewMapping[store.U32, *EraReward](sctx, "eras-rewards"),
		erasPoints:     store.NewMapping[store.U32, *rewards.EraPoints](sctx, "eras-reward-points"),
		events:         log.For(types.Module),
	}
	s.slasher = slashing.New(st, cfg, &hooks{s}, log)
	return s
}

// Ledger gives read access to bonds.
func (s *Staking) Ledger() *ledger.Store { return s.ledger }

// Era gives read access to the era clock.
func (s *Staking) Era() *era.Clock { return s.clock }

// Nominations gives read access to intentions.
func (s *Staking) Nominations() *nomination.Set { return s.nominations }

// Permissions gives read access to the permissioned validators.
func (s *Staking) Permissions() *permission.Gate { return s.gate }

// Slashing gives read access to slashing state.
func (s *Staking) Slashing() *slashing.Slasher { return s.slasher }

// Points gives read access to the points of the current era.
func (s *Staking) Points() *rewards.Points { return s.points }

// Bond locks value of the stash balance under controller.
func (s *Staking) Bond(stash, controller mesh.AccountID, value *big.Int, payee types.RewardDestination) error {
	return s.ledger.Bond(stash, controller, value, payee)
}

// BondExtra adds more of the stash balance to its bond.
func (s *Staking) BondExtra(stash mesh.AccountID, max *big.Int) error {
	_, err := s.ledger.BondExtra(stash, max)
	return err
}

// Unbond schedules part of the active bond for withdrawal.
func (s *Staking) Unbond(controller mesh.AccountID, value *big.Int) error {
	current, err := s.clock.Current()
	if err != nil {
		return err
	}
	_, err = s.ledger.Unbond(controller, value, current)
	return err
}

// WithdrawUnbonded releases matured chunks, removing the stash entirely
// once nothing is left.
func (s *Staking) WithdrawUnbonded(controller mesh.AccountID) error {
	current, err := s.clock.Current()
	if err != nil {
		return err
	}
	stash, killed, err := s.ledger.WithdrawUnbonded(controller, current)
	if err != nil || !killed {
		return err
	}
	return s.clearStash(stash)
}

func (s *Staking) clearStash(stash mesh.AccountID) error {
	if err := s.nominations.Chill(stash); err != nil {
		return err
	}
	return s.slasher.ClearStash(stash)
}

// Validate declares the stash of controller a validator candidate.
func (s *Staking) Validate(controller mesh.AccountID, prefs types.ValidatorPrefs) error {
	l, err := s.ledger.EnsureController(controller)
	if err != nil {
		return err
	}
	active, err := s.gate.IsActive(controller)
	if err != nil {
		return err
	}
	if !active {
		return types.ErrNotPermissioned
	}
	return s.nominations.Validate(l.Stash, prefs)
}

// Nominate makes the stash of controller back targets.
func (s *Staking) Nominate(controller mesh.AccountID, targets []mesh.AccountID) error {
	l, err := s.ledger.EnsureController(controller)
	if err != nil {
		return err
	}
	if s.cfg.RequireNominatorCDD {
		ok, err := s.deps.Compliance.AccountHasValidCDD(l.Stash)
		if err != nil {
			return err
		}
		if !ok {
			return types.ErrMissingCDD
		}
	}
	current, err := s.clock.Current()
	if err != nil {
		return err
	}
	return s.nominations.Nominate(l.Stash, targets, current)
}

// Chill withdraws the intentions of the stash of controller.
func (s *Staking) Chill(controller mesh.AccountID) error {
	l, err := s.ledger.EnsureController(controller)
	if err != nil {
		return err
	}
	return s.nominations.Chill(l.Stash)
}

func (s *Staking) SetPayee(controller mesh.AccountID, dest types.RewardDestination) error {
	return s.ledger.SetPayee(controller, dest)
}

// SetController pairs stash with a new controller. A permission follows
// the controller.
func (s *Staking) SetController(stash, controller mesh.AccountID) error {
	old, err := s.ledger.SetController(stash, controller)
	if err != nil {
		return err
	}
	return s.gate.Move(old, controller)
}

// SetValidatorCount sets the desired size of the validator set.
func (s *Staking) SetValidatorCount(n uint32) error {
	return s.validatorCount.Set(n)
}

func (s *Staking) ValidatorCount() (uint32, error) {
	return s.validatorCount.Get()
}

func (s *Staking) AddPotentialValidator(controller mesh.AccountID) error {
	return s.gate.Add(controller)
}

func (s *Staking) RemoveValidator(controller mesh.AccountID) error {
	return s.gate.Remove(controller)
}

func (s *Staking) ComplianceFailed(controller mesh.AccountID) error {
	return s.gate.ComplianceFailed(controller)
}

func (s *Staking) CompliancePassed(controller mesh.AccountID) error {
	return s.gate.CompliancePassed(controller)
}

func (s *Staking) ForceNoEras() error {
	return s.clock.SetForcing(era.ForceNone)
}

func (s *Staking) ForceNewEra() error {
	return s.clock.SetForcing(era.ForceNew)
}

func (s *Staking) ForceNewEraAlways() error {
	return s.clock.SetForcing(era.ForceAlways)
}

// SetInvulnerables replaces the stashes exempt from slashing.
func (s *Staking) SetInvulnerables(stashes []mesh.AccountID) error {
	return s.invulnerables.Set(stashes)
}

func (s *Staking) Invulnerables() ([]mesh.AccountID, error) {
	return s.invulnerables.Get()
}

// ForceUnstake removes stash from staking at once, releasing its lock.
func (s *Staking) ForceUnstake(stash mesh.AccountID) error {
	if _, err := s.ledger.EnsureStash(stash); err != nil {
		return err
	}
	if err := s.ledger.Kill(stash); err != nil {
		return err
	}
	return s.clearStash(stash)
}

// CancelDeferredSlash drops queued slashes of era by index.
func (s *Staking) CancelDeferredSlash(e mesh.EraIndex, indices []uint32) error {
	return s.slasher.Cancel(e, indices)
}

// NoteAuthorship credits era points for a block.
func (s *Staking) NoteAuthorship(author mesh.AccountID, uncles []mesh.AccountID) error {
	current, err := s.clock.Current()
	if err != nil {
		return err
	}
	elected, err := s.erasElected.Get(store.U32(current))
	if err != nil {
		return err
	}
	return s.points.NoteAuthorship(elected, author, uncles)
}

// Exposure returns the exposure of stash in era, if it was elected.
func (s *Staking) Exposure(e mesh.EraIndex, stash mesh.AccountID) (*types.Exposure, bool, error) {
	return s.erasStakers.Find(eraKey(e, stash))
}

// Elected returns the validators elected for era.
func (s *Staking) Elected(e mesh.EraIndex) ([]mesh.AccountID, error) {
	return s.erasElected.Get(store.U32(e))
}

// SlotStake returns the smallest exposure elected for era.
func (s *Staking) SlotStake(e mesh.EraIndex) (*big.Int, error) {
	return s.erasSlotStake.Get(store.U32(e))
}

// EraPrefs returns the terms a validator ran era on.
func (s *Staking) EraPrefs(e mesh.EraIndex, stash mesh.AccountID) (types.ValidatorPrefs, error) {
	return s.erasPrefs.Get(eraKey(e, stash))
}

// EraReward returns what era paid out.
func (s *Staking) EraReward(e mesh.EraIndex) (*EraReward, bool, error) {
	return s.erasRewards.Find(store.U32(e))
}

// EraPoints returns the points earned in a closed era.
func (s *Staking) EraPoints(e mesh.EraIndex) (*rewards.EraPoints, error) {
	return s.erasPoints.Get(store.U32(e))
}
