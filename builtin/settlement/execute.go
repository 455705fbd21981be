// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// legFailure is the error of a leg that could not settle.
type legFailure struct {
	leg uint64
	err error
}

func (f *legFailure) Error() string { return f.err.Error() }

// ExecuteScheduled settles instruction id from the scheduler. A failed
// settlement leaves the instruction Failed and is not an error.
func (s *Settlement) ExecuteScheduled(id uint64) error {
	in, err := s.mustGet(id)
	if err != nil {
		return err
	}
	if in.Status != Pending && in.Status != Failed {
		logger.Debug("scheduled execution skipped", "id", id, "status", in.Status)
		return nil
	}
	pending, err := s.PendingAffirmations(id)
	if err != nil {
		return err
	}
	if pending > 0 {
		logger.Warn("instruction due with pending affirmations", "id", id, "pending", pending)
		if err := s.setStatus(in, Failed); err != nil {
			return err
		}
		return s.events.Emit("InstructionFailed", &InstructionEvent{id}, instructionTopic(id))
	}
	ok, err := s.execute(in)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("scheduled instruction failed", "id", id)
	}
	return nil
}

// ExecuteManual settles instruction id on behalf of the venue creator or a
// party. Only failed instructions and manual ones whose block has been
// reached qualify. counts bounds the legs of the instruction by kind.
func (s *Settlement) ExecuteManual(caller mesh.AccountID, id uint64, counts LegCounts) error {
	in, err := s.mustGet(id)
	if err != nil {
		return err
	}
	did, err := s.identity(caller)
	if err != nil {
		return err
	}
	legs, err := s.Legs(id)
	if err != nil {
		return err
	}
	if err := s.ensureExecutor(did, in, legs); err != nil {
		return err
	}
	actual := countLegs(legs)
	if counts.Fungible < actual.Fungible || counts.NonFungible < actual.NonFungible || counts.OffChain < actual.OffChain {
		return ErrLegCountUnderestimated
	}

	switch {
	case in.Status == Failed:
	case in.Status == Pending && in.Settlement.Kind == Manual:
		now, err := s.deps.Clock.BlockNumber()
		if err != nil {
			return err
		}
		if now < in.Settlement.Block {
			return ErrSettleBlockNotReached
		}
	case in.Status == Pending:
		return ErrNotManual
	default:
		return ErrNotExecutable
	}
	pending, err := s.PendingAffirmations(id)
	if err != nil {
		return err
	}
	if pending > 0 {
		return ErrPendingAffirmations
	}

	ok, err := s.execute(in)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstructionFailed
	}
	return nil
}

func (s *Settlement) ensureExecutor(did mesh.IdentityID, in *Instruction, legs []*Leg) error {
	v, found, err := s.venues.Get(in.Venue)
	if err != nil {
		return err
	}
	if found && v.Creator == did {
		return nil
	}
	for _, l := range legs {
		if l.From.DID == did || l.To.DID == did {
			return nil
		}
	}
	return ErrNotParty
}

// execute settles every leg of in within one transaction, in leg order.
// It reports false when a leg failed; the transaction is then rolled back
// and in is marked Failed.
func (s *Settlement) execute(in *Instruction) (bool, error) {
	legs, err := s.Legs(in.ID)
	if err != nil {
		return false, err
	}
	err = s.st.WithTransaction(func() error {
		for i, l := range legs {
			if err := s.settleLeg(in.ID, uint64(i), l); err != nil {
				if reverts.IsRevert(err) {
					return &legFailure{uint64(i), err}
				}
				return err
			}
		}
		return nil
	})

	var failure *legFailure
	switch {
	case err == nil:
	case errors.As(err, &failure):
		logger.Info("instruction failed", "id", in.ID, "leg", failure.leg, "err", failure.err)
		if err := s.setStatus(in, Failed); err != nil {
			return false, err
		}
		if err := s.events.Emit("LegFailedExecution", &LegFailed{in.ID, failure.leg}, instructionTopic(in.ID)); err != nil {
			return false, err
		}
		return false, s.events.Emit("InstructionFailed", &InstructionEvent{in.ID}, instructionTopic(in.ID))
	default:
		return false, err
	}

	if err := s.setStatus(in, Success); err != nil {
		return false, err
	}
	if err := s.prune(in); err != nil {
		return false, err
	}
	logger.Info("instruction executed", "id", in.ID, "legs", len(legs))
	return true, s.events.Emit("InstructionExecuted", &InstructionEvent{in.ID}, instructionTopic(in.ID))
}

// settleLeg releases the sender lock of a leg and moves its assets.
// Off-chain legs move nothing.
func (s *Settlement) settleLeg(id, leg uint64, l *Leg) error {
	if l.Kind == OffChain {
		return nil
	}
	st, err := s.legStatus.Get(store.NewPair(store.U64(id), store.U64(leg)))
	if err != nil {
		return err
	}
	if st.Status == ExecutionPending {
		if err := s.unlockLeg(l); err != nil {
			return err
		}
	}
	if l.Kind == Fungible {
		return s.deps.Assets.TransferFungible(l.Ticker, l.From, l.To, l.Amount)
	}
	return s.deps.Assets.TransferNFTs(l.Ticker, l.From, l.To, l.NFTs)
}
