// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"math/big"
	"slices"

	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// AddInstruction creates an instruction on venue id. Zero dates are unset.
func (s *Settlement) AddInstruction(
	caller mesh.AccountID,
	venueID uint64,
	settle SettlementType,
	tradeDate, valueDate mesh.Moment,
	legs []*Leg,
	memo string,
) (uint64, error) {
	did, err := s.venues.EnsureCreator(caller, venueID)
	if err != nil {
		return 0, err
	}
	legs, err = s.checkLegs(venueID, legs)
	if err != nil {
		return 0, err
	}
	now, err := s.deps.Clock.BlockNumber()
	if err != nil {
		return 0, err
	}
	if settle.Kind != OnAffirmation && settle.Block <= now {
		return 0, ErrSettleOnPastBlock
	}
	if tradeDate != 0 && valueDate != 0 && valueDate < tradeDate {
		return 0, ErrInvalidDates
	}
	createdAt, err := s.deps.Clock.Now()
	if err != nil {
		return 0, err
	}

	id, err := s.next.Next()
	if err != nil {
		return 0, err
	}
	in := &Instruction{
		ID:         id,
		Venue:      venueID,
		Status:     Pending,
		Settlement: settle,
		CreatedAt:  createdAt,
		TradeDate:  tradeDate,
		ValueDate:  valueDate,
		Memo:       memo,
	}
	if err := s.instructions.Set(store.U64(id), in); err != nil {
		return 0, err
	}
	if err := s.legs.Set(store.U64(id), legs); err != nil {
		return 0, err
	}
	for i := range legs {
		if err := s.legStatus.Set(store.NewPair(store.U64(id), store.U64(i)), &LegState{Status: PendingTokenLock}); err != nil {
			return 0, err
		}
	}
	pending, auto, err := s.initAffirmations(id, legs)
	if err != nil {
		return 0, err
	}
	if err := s.setPending(id, pending); err != nil {
		return 0, err
	}
	mine, err := s.venueInstructions.Get(store.U64(venueID))
	if err != nil {
		return 0, err
	}
	if err := s.venueInstructions.Set(store.U64(venueID), append(mine, id)); err != nil {
		return 0, err
	}

	if err := s.events.Emit("InstructionCreated", &InstructionCreated{id, venueID, did, settle, legs, memo},
		instructionTopic(id), mesh.Bytes32(did)); err != nil {
		return 0, err
	}
	for _, pid := range auto {
		if err := s.events.Emit("InstructionAutoAffirmed", &PortfolioEvent{id, pid}, instructionTopic(id), mesh.Bytes32(pid.DID)); err != nil {
			return 0, err
		}
	}

	if settle.Kind == OnBlock {
		err = s.schedule(in, settle.Block)
	} else {
		err = s.maybeSchedule(in, pending)
	}
	if err != nil {
		return 0, err
	}
	logger.Debug("instruction created", "id", id, "venue", venueID, "legs", len(legs), "pending", pending)
	return id, nil
}

// AddAndAffirmInstruction creates an instruction and affirms it for the
// given portfolios of the caller in one call.
func (s *Settlement) AddAndAffirmInstruction(
	caller mesh.AccountID,
	venueID uint64,
	settle SettlementType,
	tradeDate, valueDate mesh.Moment,
	legs []*Leg,
	memo string,
	portfolios []mesh.PortfolioID,
) (uint64, error) {
	id, err := s.AddInstruction(caller, venueID, settle, tradeDate, valueDate, legs, memo)
	if err != nil {
		return 0, err
	}
	return id, s.Affirm(caller, id, portfolios)
}

// checkLegs validates legs against the caps, the assets and the venue
// filtering, and returns normalized copies.
func (s *Settlement) checkLegs(venueID uint64, legs []*Leg) ([]*Leg, error) {
	if len(legs) == 0 {
		return nil, ErrNoLegs
	}
	counts := countLegs(legs)
	switch {
	case counts.Fungible > s.cfg.MaxFungibleLegs:
		return nil, ErrMaxFungibleLegs
	case counts.NonFungible > s.cfg.MaxNFTLegs:
		return nil, ErrMaxNFTLegs
	case counts.OffChain > s.cfg.MaxOffChainLegs:
		return nil, ErrMaxOffChainLegs
	}

	out := make([]*Leg, 0, len(legs))
	for _, l := range legs {
		leg := &Leg{Kind: l.Kind, From: l.From, To: l.To, Ticker: l.Ticker, NFTs: slices.Clone(l.NFTs)}
		if l.Amount != nil {
			leg.Amount = new(big.Int).Set(l.Amount)
		}
		if leg.From == leg.To {
			return nil, ErrSameSenderReceiver
		}
		if err := s.checkLeg(leg); err != nil {
			return nil, err
		}
		ok, err := s.venues.IsAllowed(leg.Ticker, venueID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrVenueNotAllowed
		}
		out = append(out, leg)
	}
	return out, nil
}

func (s *Settlement) checkLeg(leg *Leg) error {
	if leg.Kind == OffChain {
		if leg.Amount == nil || leg.Amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		leg.NFTs = nil
		return nil
	}

	a, found, err := s.deps.Assets.Get(leg.Ticker)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoSuchAsset
	}
	if leg.Kind == Fungible {
		if a.NonFungible {
			return ErrNotFungible
		}
		if leg.Amount == nil || leg.Amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		leg.NFTs = nil
		return s.deps.Assets.CheckGranularity(leg.Ticker, leg.Amount)
	}

	if !a.NonFungible {
		return ErrNotNonFungible
	}
	if len(leg.NFTs) == 0 {
		return ErrNoTokens
	}
	if uint32(len(leg.NFTs)) > s.cfg.MaxNFTsPerLeg {
		return ErrMaxNFTsPerLeg
	}
	sorted := slices.Clone(leg.NFTs)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(leg.NFTs) {
		return ErrDuplicateNFT
	}
	leg.Amount = big.NewInt(int64(len(leg.NFTs)))
	return nil
}

// initAffirmations records who has to affirm instruction id. Every on-chain
// portfolio is a party. A party that only receives, and only assets whose
// issuer pre-approved it, is affirmed at once. It returns the number of
// pending affirmations, off-chain legs included, and the affirmed parties.
func (s *Settlement) initAffirmations(id uint64, legs []*Leg) (uint64, []mesh.PortfolioID, error) {
	var (
		parties []mesh.PortfolioID
		senders = make(map[mesh.PortfolioID]bool)
		pending uint64
	)
	for _, l := range legs {
		if l.Kind == OffChain {
			pending++
			continue
		}
		senders[l.From] = true
		for _, pid := range []mesh.PortfolioID{l.From, l.To} {
			if !slices.Contains(parties, pid) {
				parties = append(parties, pid)
			}
		}
	}

	var auto []mesh.PortfolioID
	for _, pid := range parties {
		status := AffirmationPending
		if !senders[pid] {
			ok, err := s.preApproved(pid, legs)
			if err != nil {
				return 0, nil, err
			}
			if ok {
				status = Affirmed
				auto = append(auto, pid)
			}
		}
		if status == AffirmationPending {
			pending++
		}
		if err := s.affirmations.Set(store.NewPair(pid, store.U64(id)), status); err != nil {
			return 0, nil, err
		}
	}
	if err := s.parties.Set(store.U64(id), parties); err != nil {
		return 0, nil, err
	}
	return pending, auto, nil
}

// preApproved reports whether every on-chain asset pid receives has
// pre-approved it.
func (s *Settlement) preApproved(pid mesh.PortfolioID, legs []*Leg) (bool, error) {
	for _, l := range legs {
		if l.Kind == OffChain || l.To != pid {
			continue
		}
		ok, err := s.deps.Assets.IsPreApproved(l.Ticker, pid)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
