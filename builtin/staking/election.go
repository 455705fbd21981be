// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staking

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/staking/nomination"
	"github.com/stakemesh/stakemesh/builtin/staking/phragmen"
	"github.com/stakemesh/stakemesh/builtin/staking/rewards"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// ErrElectionFailed is returned when genesis cannot elect a set.
var ErrElectionFailed = reverts.New(reverts.Election, types.Module, "too few candidates")

// EraReward is the payout of a closed era.
type EraReward struct {
	Era       mesh.EraIndex
	Paid      *big.Int
	Remainder *big.Int
}

// Elected is emitted after every successful election.
type Elected struct {
	Era       mesh.EraIndex
	Stashes   []mesh.AccountID
	SlotStake *big.Int
}

// Genesis starts era 0 at now and elects its validators.
func (s *Staking) Genesis(now mesh.Moment) ([]mesh.AccountID, error) {
	if err := s.validatorCount.Set(s.cfg.ValidatorCount); err != nil {
		return nil, err
	}
	if err := s.invulnerables.Set(s.cfg.Invulnerables); err != nil {
		return nil, err
	}
	if err := s.clock.Init(now); err != nil {
		return nil, err
	}
	set, ok, err := s.elect(0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrElectionFailed
	}
	return set, nil
}

// NewSession is called when session index is about to start. It returns
// the validator set for it when a new era starts, or false to keep the
// current set.
func (s *Staking) NewSession(index mesh.SessionIndex) ([]mesh.AccountID, bool, error) {
	start, err := s.clock.ShouldStartEra(index)
	if err != nil || !start {
		return nil, false, err
	}
	return s.newEra(index)
}

func (s *Staking) newEra(session mesh.SessionIndex) ([]mesh.AccountID, bool, error) {
	now, err := s.deps.Clock.Now()
	if err != nil {
		return nil, false, err
	}
	closing, err := s.clock.Current()
	if err != nil {
		return nil, false, err
	}
	if err := s.payout(closing, now); err != nil {
		return nil, false, errors.Wrap(err, "payout")
	}

	current, pruned, firstKept, err := s.clock.Advance(session, now)
	if err != nil {
		return nil, false, err
	}
	for _, e := range pruned {
		if err := s.slasher.ClearEra(e); err != nil {
			return nil, false, err
		}
	}
	if len(pruned) > 0 {
		if err := s.deps.Session.PruneHistoricalUpTo(firstKept); err != nil {
			return nil, false, err
		}
	}
	if uint32(current) > s.cfg.HistoryDepth {
		if err := s.clearEraSnapshot(current - mesh.EraIndex(s.cfg.HistoryDepth) - 1); err != nil {
			return nil, false, err
		}
	}
	if err := s.slasher.ApplyDue(current); err != nil {
		return nil, false, errors.Wrap(err, "apply slashes")
	}
	logger.Info("new era", "era", current, "session", session)

	set, ok, err := s.elect(current)
	if err != nil {
		return nil, false, errors.Wrap(err, "election")
	}
	if !ok {
		logger.Warn("election failed, keeping validators", "era", current)
		return nil, false, s.carryOver(current)
	}
	return set, true, nil
}

// stakeOf is the active bond, zero for unbonded accounts.
func (s *Staking) stakeOf(who mesh.AccountID) (*big.Int, error) {
	return s.ledger.Active(who)
}

// elect runs the election for era and snapshots its outcome.
func (s *Staking) elect(e mesh.EraIndex) ([]mesh.AccountID, bool, error) {
	stashes, err := s.nominations.Validators()
	if err != nil {
		return nil, false, err
	}
	candidates := make([]mesh.AccountID, 0, len(stashes))
	for _, stash := range stashes {
		controller, bonded, err := s.ledger.Controller(stash)
		if err != nil {
			return nil, false, err
		}
		if !bonded {
			continue
		}
		active, err := s.gate.IsActive(controller)
		if err != nil {
			return nil, false, err
		}
		if active {
			candidates = append(candidates, stash)
		}
	}

	nominators, err := s.nominations.Nominators()
	if err != nil {
		return nil, false, err
	}
	voters := make([]phragmen.Voter, 0, len(nominators))
	for _, n := range nominators {
		noms, ok, err := s.nominations.Nominator(n)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		targets, err := nomination.FilterTargets(noms, s.slasher.SpanStart)
		if err != nil {
			return nil, false, err
		}
		voters = append(voters, phragmen.Voter{Who: n, Targets: targets})
	}

	count, err := s.validatorCount.Get()
	if err != nil {
		return nil, false, err
	}
	result, ok, err := phragmen.Elect(int(count), int(s.cfg.MinimumValidatorCount), candidates, voters, s.stakeOf)
	if err != nil || !ok {
		return nil, false, err
	}
	supports, staked, err := phragmen.BuildSupportMap(result, s.stakeOf)
	if err != nil {
		return nil, false, err
	}
	if s.cfg.Equalize {
		if err := phragmen.Equalize(staked, supports, new(big.Int), phragmen.EqualizeIterations, s.stakeOf); err != nil {
			return nil, false, err
		}
	}
	exposures, slot := phragmen.Exposures(result.Winners, supports)

	for i, w := range result.Winners {
		if err := s.erasStakers.Set(eraKey(e, w), exposures[i]); err != nil {
			return nil, false, err
		}
		prefs, _, err := s.nominations.Validator(w)
		if err != nil {
			return nil, false, err
		}
		if err := s.erasPrefs.Set(eraKey(e, w), prefs); err != nil {
			return nil, false, err
		}
	}
	if err := s.erasElected.Set(store.U32(e), result.Winners); err != nil {
		return nil, false, err
	}
	if err := s.erasSlotStake.Set(store.U32(e), slot); err != nil {
		return nil, false, err
	}
	logger.Info("validators elected", "era", e, "count", len(result.Winners), "slot-stake", slot)
	return result.Winners, true, s.events.Emit("StakingElection", &Elected{e, result.Winners, slot})
}

// carryOver keeps the previous era set and exposures for e.
func (s *Staking) carryOver(e mesh.EraIndex) error {
	if e == 0 {
		return nil
	}
	prev := e - 1
	elected, err := s.erasElected.Get(store.U32(prev))
	if err != nil {
		return err
	}
	for _, w := range elected {
		exp, ok, err := s.erasStakers.Find(eraKey(prev, w))
		if err != nil {
			return err
		}
		if ok {
			if err := s.erasStakers.Set(eraKey(e, w), exp); err != nil {
				return err
			}
		}
		prefs, err := s.erasPrefs.Get(eraKey(prev, w))
		if err != nil {
			return err
		}
		if err := s.erasPrefs.Set(eraKey(e, w), prefs); err != nil {
			return err
		}
	}
	if err := s.erasElected.Set(store.U32(e), elected); err != nil {
		return err
	}
	slot, err := s.erasSlotStake.Get(store.U32(prev))
	if err != nil {
		return err
	}
	return s.erasSlotStake.Set(store.U32(e), slot)
}

func (s *Staking) clearEraSnapshot(e mesh.EraIndex) error {
	elected, _, err := s.erasElected.Take(store.U32(e))
	if err != nil {
		return err
	}
	for _, w := range elected {
		s.erasStakers.Delete(eraKey(e, w))
		s.erasPrefs.Delete(eraKey(e, w))
	}
	s.erasSlotStake.Delete(store.U32(e))
	s.erasRewards.Delete(store.U32(e))
	s.erasPoints.Delete(store.U32(e))
	return nil
}

// payout rewards the validators of the closing era e by their points and
// sends what the curve allowed but nobody earned to the sink.
func (s *Staking) payout(e mesh.EraIndex, now mesh.Moment) error {
	points, err := s.points.Take()
	if err != nil {
		return err
	}
	if err := s.erasPoints.Set(store.U32(e), points); err != nil {
		return err
	}
	start, err := s.clock.Start()
	if err != nil {
		return err
	}
	if now <= start {
		return nil
	}

	elected, err := s.erasElected.Get(store.U32(e))
	if err != nil {
		return err
	}
	slot, err := s.erasSlotStake.Get(store.U32(e))
	if err != nil {
		return err
	}
	issuance, err := s.deps.Currency.TotalIssuance()
	if err != nil {
		return err
	}
	staked := new(big.Int).Mul(slot, big.NewInt(int64(len(elected))))
	total, max := rewards.ComputeTotalPayout(s.curve, staked, issuance, uint64(now-start))

	paid := new(big.Int)
	for i, v := range elected {
		reward := rewards.ValidatorShare(total, points.Of(i), points.Total)
		if reward.Sign() == 0 {
			continue
		}
		exposure, ok, err := s.erasStakers.Find(eraKey(e, v))
		if err != nil {
			return err
		}
		if !ok {
			exposure = types.NewExposure()
		}
		prefs, err := s.erasPrefs.Get(eraKey(e, v))
		if err != nil {
			return err
		}
		for _, p := range rewards.Split(v, reward, prefs, exposure) {
			credited, err := s.makePayout(p.Stash, p.Amount)
			if err != nil {
				return err
			}
			paid.Add(paid, credited)
		}
	}

	remainder := new(big.Int).Sub(max, paid)
	if remainder.Sign() < 0 {
		remainder.SetInt64(0)
	}
	if remainder.Sign() > 0 {
		if err := s.deps.Sink.Absorb(remainder); err != nil {
			return err
		}
	}
	reward := &EraReward{Era: e, Paid: paid, Remainder: remainder}
	if err := s.erasRewards.Set(store.U32(e), reward); err != nil {
		return err
	}
	logger.Info("era paid out", "era", e, "paid", paid, "remainder", remainder)
	return s.events.Emit("Reward", reward)
}

// makePayout credits amount to stash according to its reward destination
// and returns what was credited.
func (s *Staking) makePayout(stash mesh.AccountID, amount *big.Int) (*big.Int, error) {
	dest, err := s.ledger.Payee(stash)
	if err != nil {
		return nil, err
	}
	switch dest {
	case types.Controller:
		controller, ok, err := s.ledger.Controller(stash)
		if err != nil || !ok {
			return new(big.Int), err
		}
		return s.deps.Currency.DepositIntoExisting(controller, amount)
	case types.Stash:
		return s.deps.Currency.DepositIntoExisting(stash, amount)
	default:
		if _, bonded, err := s.ledger.LedgerOfStash(stash); err != nil || !bonded {
			return new(big.Int), err
		}
		credited, err := s.deps.Currency.DepositIntoExisting(stash, amount)
		if err != nil {
			return nil, err
		}
		if credited.Sign() > 0 {
			if err := s.ledger.Restake(stash, credited); err != nil {
				return nil, err
			}
		}
		return credited, nil
	}
}
