// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"github.com/stakemesh/stakemesh/builtin/settlement/receipt"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// Affirm affirms instruction id for portfolios in the caller's custody and
// locks what they send.
func (s *Settlement) Affirm(caller mesh.AccountID, id uint64, portfolios []mesh.PortfolioID) error {
	return s.AffirmWithReceipts(caller, id, nil, portfolios)
}

// AffirmWithReceipts affirms portfolios like Affirm and settles off-chain
// legs with receipts signed by venue signers.
func (s *Settlement) AffirmWithReceipts(caller mesh.AccountID, id uint64, receipts []ReceiptDetails, portfolios []mesh.PortfolioID) error {
	in, err := s.mustGet(id)
	if err != nil {
		return err
	}
	switch in.Status {
	case Pending:
		if err := s.checkDeadline(in); err != nil {
			return err
		}
	case Failed:
		// parties complete a failed instruction before executing it manually
	default:
		return ErrInstructionNotPending
	}
	legs, err := s.Legs(id)
	if err != nil {
		return err
	}

	claimed, err := s.claimReceipts(caller, in, legs, receipts)
	if err != nil {
		return err
	}
	affirmed, err := s.affirmPortfolios(caller, id, legs, portfolios)
	if err != nil {
		return err
	}

	if claimed+affirmed == 0 {
		return nil
	}
	pending, err := s.PendingAffirmations(id)
	if err != nil {
		return err
	}
	pending -= claimed + affirmed
	if err := s.setPending(id, pending); err != nil {
		return err
	}
	if in.Status == Failed {
		return nil
	}
	return s.maybeSchedule(in, pending)
}

// checkDeadline rejects affirmations of an on-block instruction from block
// b on. The scheduled execution runs at the initialization of b, before any
// extrinsic of b, so an affirmation in b could never count.
func (s *Settlement) checkDeadline(in *Instruction) error {
	if in.Settlement.Kind != OnBlock {
		return nil
	}
	now, err := s.deps.Clock.BlockNumber()
	if err != nil {
		return err
	}
	if now >= in.Settlement.Block {
		return ErrSettleBlockPassed
	}
	return nil
}

func (s *Settlement) affirmPortfolios(caller mesh.AccountID, id uint64, legs []*Leg, portfolios []mesh.PortfolioID) (uint64, error) {
	for _, pid := range portfolios {
		if _, err := s.deps.Portfolios.EnsureCustody(caller, pid); err != nil {
			return 0, err
		}
		key := store.NewPair(pid, store.U64(id))
		status, err := s.affirmations.Get(key)
		if err != nil {
			return 0, err
		}
		if status != AffirmationPending {
			return 0, ErrUnexpectedAffirmation
		}
		for i, l := range legs {
			if l.Kind == OffChain || l.From != pid {
				continue
			}
			if err := s.lockLeg(l); err != nil {
				return 0, err
			}
			if err := s.legStatus.Set(store.NewPair(store.U64(id), store.U64(i)), &LegState{Status: ExecutionPending}); err != nil {
				return 0, err
			}
		}
		if err := s.affirmations.Set(key, Affirmed); err != nil {
			return 0, err
		}
		if err := s.events.Emit("InstructionAffirmed", &PortfolioEvent{id, pid}, instructionTopic(id), mesh.Bytes32(pid.DID)); err != nil {
			return 0, err
		}
	}
	return uint64(len(portfolios)), nil
}

func (s *Settlement) claimReceipts(caller mesh.AccountID, in *Instruction, legs []*Leg, receipts []ReceiptDetails) (uint64, error) {
	if len(receipts) == 0 {
		return 0, nil
	}
	did, err := s.identity(caller)
	if err != nil {
		return 0, err
	}

	type claim struct {
		signer mesh.AccountID
		uid    uint64
	}
	var (
		uids    = make(map[claim]bool, len(receipts))
		legsFor = make(map[uint64]bool, len(receipts))
	)
	for _, rd := range receipts {
		c := claim{rd.Signer, rd.UID}
		if uids[c] {
			return 0, ErrDuplicateReceiptUID
		}
		uids[c] = true
		if legsFor[rd.LegID] {
			return 0, ErrMultipleReceiptsForLeg
		}
		legsFor[rd.LegID] = true

		if rd.LegID >= uint64(len(legs)) {
			return 0, ErrLegNotFound
		}
		leg := legs[rd.LegID]
		if leg.Kind != OffChain {
			return 0, ErrReceiptForNonOffChainLeg
		}
		if did != leg.From.DID && did != leg.To.DID {
			return 0, ErrNotParty
		}
		state, err := s.LegStatus(in.ID, rd.LegID)
		if err != nil {
			return 0, err
		}
		if state.Status != PendingTokenLock {
			return 0, ErrUnexpectedLegStatus
		}
		ok, err := s.venues.IsSigner(in.Venue, rd.Signer)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrUnauthorizedSigner
		}
		r := &receipt.Receipt{
			UID:           rd.UID,
			InstructionID: in.ID,
			LegID:         rd.LegID,
			From:          leg.From,
			To:            leg.To,
			Ticker:        leg.Ticker,
			Amount:        leg.Amount,
		}
		if err := s.claims.Check(rd.Signer, r, rd.Signature); err != nil {
			return 0, err
		}
	}

	for _, rd := range receipts {
		if err := s.claims.Claim(rd.Signer, rd.UID); err != nil {
			return 0, err
		}
		st := &LegState{Status: ExecutionToBeSkipped, Signer: rd.Signer, UID: rd.UID}
		if err := s.legStatus.Set(store.NewPair(store.U64(in.ID), store.U64(rd.LegID)), st); err != nil {
			return 0, err
		}
		if err := s.events.Emit("ReceiptClaimed", &ReceiptEvent{in.ID, rd.LegID, rd.UID, rd.Signer, rd.Metadata},
			instructionTopic(in.ID), mesh.Bytes32(did)); err != nil {
			return 0, err
		}
	}
	return uint64(len(receipts)), nil
}

// WithdrawAffirmation takes back the affirmations of portfolios, unlocking
// what they send and releasing the receipts claimed for their off-chain
// legs.
func (s *Settlement) WithdrawAffirmation(caller mesh.AccountID, id uint64, portfolios []mesh.PortfolioID) error {
	in, err := s.mustGet(id)
	if err != nil {
		return err
	}
	if in.Status != Pending && in.Status != Failed {
		return ErrNotExecutable
	}
	legs, err := s.Legs(id)
	if err != nil {
		return err
	}

	var restored uint64
	for _, pid := range portfolios {
		if _, err := s.deps.Portfolios.EnsureCustody(caller, pid); err != nil {
			return err
		}
		key := store.NewPair(pid, store.U64(id))
		status, err := s.affirmations.Get(key)
		if err != nil {
			return err
		}
		released, err := s.releaseLegs(in, legs, pid, status == Affirmed)
		if err != nil {
			return err
		}
		if status != Affirmed && released == 0 {
			return ErrUnexpectedAffirmation
		}
		restored += released
		if status == Affirmed {
			if err := s.affirmations.Set(key, AffirmationPending); err != nil {
				return err
			}
			restored++
		}
		if err := s.events.Emit("AffirmationWithdrawn", &PortfolioEvent{id, pid}, instructionTopic(id), mesh.Bytes32(pid.DID)); err != nil {
			return err
		}
	}

	pending, err := s.PendingAffirmations(id)
	if err != nil {
		return err
	}
	if err := s.setPending(id, pending+restored); err != nil {
		return err
	}
	if in.Settlement.Kind == OnAffirmation {
		return s.unschedule(id)
	}
	return nil
}

// releaseLegs returns the legs pid sends to PendingTokenLock. Locks are
// released only when unlock is set; claimed receipts always are. It
// returns the number of receipts released.
func (s *Settlement) releaseLegs(in *Instruction, legs []*Leg, pid mesh.PortfolioID, unlock bool) (uint64, error) {
	var released uint64
	for i, l := range legs {
		if l.From != pid {
			continue
		}
		key := store.NewPair(store.U64(in.ID), store.U64(i))
		st, err := s.legStatus.Get(key)
		if err != nil {
			return 0, err
		}
		switch {
		case st.Status == ExecutionPending && unlock:
			if err := s.unlockLeg(l); err != nil {
				return 0, err
			}
		case st.Status == ExecutionToBeSkipped:
			s.claims.Release(st.Signer, st.UID)
			if err := s.events.Emit("ReceiptUnclaimed", &ReceiptEvent{in.ID, uint64(i), st.UID, st.Signer, ""},
				instructionTopic(in.ID)); err != nil {
				return 0, err
			}
			released++
		default:
			continue
		}
		if err := s.legStatus.Set(key, &LegState{Status: PendingTokenLock}); err != nil {
			return 0, err
		}
	}
	return released, nil
}

// RejectInstruction cancels instruction id. The caller must hold custody of
// pid, a portfolio of one of the legs.
func (s *Settlement) RejectInstruction(caller mesh.AccountID, id uint64, pid mesh.PortfolioID) error {
	in, err := s.mustGet(id)
	if err != nil {
		return err
	}
	if in.Status != Pending && in.Status != Failed {
		return ErrNotExecutable
	}
	did, err := s.deps.Portfolios.EnsureCustody(caller, pid)
	if err != nil {
		return err
	}
	legs, err := s.Legs(id)
	if err != nil {
		return err
	}
	party := false
	for _, l := range legs {
		if l.From == pid || l.To == pid {
			party = true
			break
		}
	}
	if !party {
		return ErrNotParty
	}

	for i, l := range legs {
		if l.Kind == OffChain {
			continue
		}
		st, err := s.LegStatus(id, uint64(i))
		if err != nil {
			return err
		}
		if st.Status == ExecutionPending {
			if err := s.unlockLeg(l); err != nil {
				return err
			}
		}
	}
	if err := s.unschedule(id); err != nil {
		return err
	}
	if err := s.setStatus(in, Rejected); err != nil {
		return err
	}
	if err := s.prune(in); err != nil {
		return err
	}
	logger.Debug("instruction rejected", "id", id, "by", did)
	return s.events.Emit("InstructionRejected", &PortfolioEvent{id, pid}, instructionTopic(id), mesh.Bytes32(did))
}

func (s *Settlement) lockLeg(l *Leg) error {
	if l.Kind == Fungible {
		return s.deps.Portfolios.Lock(l.From, l.Ticker, l.Amount)
	}
	for _, nft := range l.NFTs {
		if err := s.deps.Portfolios.LockNFT(l.From, l.Ticker, nft); err != nil {
			return err
		}
	}
	return nil
}

func (s *Settlement) unlockLeg(l *Leg) error {
	if l.Kind == Fungible {
		return s.deps.Portfolios.Unlock(l.From, l.Ticker, l.Amount)
	}
	for _, nft := range l.NFTs {
		if err := s.deps.Portfolios.UnlockNFT(l.From, l.Ticker, nft); err != nil {
			return err
		}
	}
	return nil
}
