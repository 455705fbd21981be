// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package slashing computes, defers and applies slashes for validator
// offences. A validator and its nominators are slashed at most once per
// slashing span for the largest offence in it; reporters are rewarded out
// of the slashed amount.
package slashing

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

// rewardF1 is the share of the reporter reward paid on the first report.
var rewardF1 = mesh.PerbillFromPercent(50)

// Host is what slashing needs from the rest of staking.
type Host interface {
	// Chill removes the validator and nominator intentions of stash.
	Chill(stash mesh.AccountID) error
	// DisableValidator disables stash for the rest of the session and
	// reports whether too many validators are now disabled.
	DisableValidator(stash mesh.AccountID) (bool, error)
	EnsureNewEra() error
	// SlashBond takes up to value off the bond of stash and returns the
	// amount taken.
	SlashBond(stash mesh.AccountID, value *big.Int) (*big.Int, error)
	// SlashBalance burns up to value of the balance of stash.
	SlashBalance(stash mesh.AccountID, value *big.Int) (slashed, missing *big.Int, err error)
	DepositCreating(who mesh.AccountID, amount *big.Int) (*big.Int, error)
	// Absorb credits slashed funds nobody claimed to the slash sink.
	Absorb(amount *big.Int) error
}

// SpanRecord is the largest slash of a span and the reporter reward already
// paid for it.
type SpanRecord struct {
	Slashed *big.Int
	PaidOut *big.Int
}

// ValidatorSlash is the largest slash of a validator in an era.
type ValidatorSlash struct {
	Fraction mesh.Perbill
	Amount   *big.Int
}

// Unapplied is a computed slash waiting to be applied.
type Unapplied struct {
	Validator mesh.AccountID
	Own       *big.Int
	Others    []types.IndividualExposure
	Reporters []mesh.AccountID
	Payout    *big.Int
}

type earliestEra struct {
	Set bool
	Era mesh.EraIndex
}

// Event payloads.
type (
	Slashed struct {
		Stash  mesh.AccountID
		Amount *big.Int
	}
	Cancelled struct {
		Era     mesh.EraIndex
		Indices []uint32
	}
)

type eraKey = store.Pair[store.U32, mesh.AccountID]
type spanKey = store.Pair[mesh.AccountID, store.U32]

// Slasher holds slashing state.
type Slasher struct {
	spans            *store.Mapping[mesh.AccountID, *Spans]
	spanSlash        *store.Mapping[spanKey, *SpanRecord]
	validatorInEra   *store.Mapping[eraKey, *ValidatorSlash]
	nominatorInEra   *store.Mapping[eraKey, *big.Int]
	slashedInEra     *store.Mapping[store.U32, []mesh.AccountID]
	unapplied        *store.Mapping[store.U32, []*Unapplied]
	earliest         *store.Value[earliestEra]
	host             Host
	events           *events.Emitter
	rewardProportion mesh.Perbill
	deferDuration    uint32
}

func New(st *state.State, cfg *mesh.Config, host Host, log *events.Log) *Slasher {
	sctx := store.NewContext(types.Module, st)
	return &Slasher{
		spans:            store.NewMapping[mesh.AccountID, *Spans](sctx, "slashing-spans"),
		spanSlash:        store.NewMapping[spanKey, *SpanRecord](sctx, "span-slash"),
		validatorInEra:   store.NewMapping[eraKey, *ValidatorSlash](sctx, "validator-slash-in-era"),
		nominatorInEra:   store.NewMapping[eraKey, *big.Int](sctx, "nominator-slash-in-era"),
		slashedInEra:     store.NewMapping[store.U32, []mesh.AccountID](sctx, "slashed-in-era"),
		unapplied:        store.NewMapping[store.U32, []*Unapplied](sctx, "unapplied-slashes"),
		earliest:         store.NewValue[earliestEra](sctx, "earliest-unapplied-slash"),
		host:             host,
		events:           log.For(types.Module),
		rewardProportion: cfg.SlashRewardFraction,
		deferDuration:    cfg.SlashDeferDuration,
	}
}

// Spans returns the slashing spans of stash.
func (s *Slasher) Spans(stash mesh.AccountID) (*Spans, bool, error) {
	return s.spans.Find(stash)
}

// SpanStart returns the start of the ongoing span of stash, if it was ever
// slashed.
func (s *Slasher) SpanStart(stash mesh.AccountID) (mesh.EraIndex, bool, error) {
	spans, ok, err := s.spans.Find(stash)
	if err != nil || !ok {
		return 0, false, err
	}
	return spans.LastStart, true, nil
}

// SpanRecord returns the record of span index of stash.
func (s *Slasher) SpanRecord(stash mesh.AccountID, index uint32) (*SpanRecord, error) {
	r, err := s.spanSlash.Get(store.NewPair(stash, store.U32(index)))
	if err != nil {
		return nil, err
	}
	normalizeRecord(r)
	return r, nil
}

func normalizeRecord(r *SpanRecord) {
	if r.Slashed == nil {
		r.Slashed = new(big.Int)
	}
	if r.PaidOut == nil {
		r.PaidOut = new(big.Int)
	}
}

// ValidatorSlashInEra returns the largest slash of stash in era.
func (s *Slasher) ValidatorSlashInEra(era mesh.EraIndex, stash mesh.AccountID) (*ValidatorSlash, bool, error) {
	return s.validatorInEra.Find(store.NewPair(store.U32(era), stash))
}

// NominatorSlashInEra returns the amount stash was slashed as a nominator
// in era.
func (s *Slasher) NominatorSlashInEra(era mesh.EraIndex, stash mesh.AccountID) (*big.Int, error) {
	return s.nominatorInEra.Get(store.NewPair(store.U32(era), stash))
}

func (s *Slasher) noteSlashedInEra(era mesh.EraIndex, stash mesh.AccountID) error {
	list, err := s.slashedInEra.Get(store.U32(era))
	if err != nil {
		return err
	}
	for _, a := range list {
		if a == stash {
			return nil
		}
	}
	return s.slashedInEra.Set(store.U32(era), append(list, stash))
}

// inspection edits the spans of one stash and accumulates the slash and
// reporter reward found along the way.
type inspection struct {
	s           *Slasher
	stash       mesh.AccountID
	windowStart mesh.EraIndex
	spans       *Spans
	dirty       bool
	slashed     *big.Int
	payout      *big.Int
}

func (s *Slasher) inspect(stash mesh.AccountID, windowStart mesh.EraIndex, payout *big.Int) (*inspection, error) {
	spans, ok, err := s.spans.Find(stash)
	if err != nil {
		return nil, err
	}
	if !ok {
		spans = NewSpans(windowStart)
		if err := s.spans.Set(stash, spans); err != nil {
			return nil, err
		}
	}
	return &inspection{s: s, stash: stash, windowStart: windowStart, spans: spans, slashed: new(big.Int), payout: payout}, nil
}

func (in *inspection) endSpan(now mesh.EraIndex) {
	if in.spans.EndSpan(now) {
		in.dirty = true
	}
}

// compareAndUpdate records slash against the span containing era. Only the
// excess over the largest slash of that span is owed. It returns the index
// of the span, if any contains era.
func (in *inspection) compareAndUpdate(era mesh.EraIndex, slash *big.Int) (uint32, bool, error) {
	span, ok := in.spans.EraSpan(era)
	if !ok {
		return 0, false, nil
	}
	key := store.NewPair(in.stash, store.U32(span.Index))
	record, err := in.s.spanSlash.Get(key)
	if err != nil {
		return 0, false, err
	}
	normalizeRecord(record)

	changed := false
	reward := new(big.Int)
	rewardFor := func() *big.Int {
		r := new(big.Int).Sub(in.s.rewardProportion.Mul(slash), record.PaidOut)
		if r.Sign() < 0 {
			return new(big.Int)
		}
		return rewardF1.Mul(r)
	}
	switch record.Slashed.Cmp(slash) {
	case -1:
		diff := new(big.Int).Sub(slash, record.Slashed)
		record.Slashed = new(big.Int).Set(slash)
		reward = rewardFor()
		in.slashed.Add(in.slashed, diff)
		if era > in.spans.LastNonzeroSlash {
			in.spans.LastNonzeroSlash = era
		}
		changed = true
	case 0:
		reward = rewardFor()
	}
	if reward.Sign() > 0 {
		record.PaidOut.Add(record.PaidOut, reward)
		in.payout.Add(in.payout, reward)
		changed = true
	}
	if changed {
		if err := in.s.spanSlash.Set(key, record); err != nil {
			return 0, false, err
		}
	}
	return span.Index, true, nil
}

// close persists the spans if a span ended, pruning the ones out of the
// window.
func (in *inspection) close() error {
	if !in.dirty {
		return nil
	}
	if from, to, ok := in.spans.Prune(in.windowStart); ok {
		for i := from; i < to; i++ {
			in.s.spanSlash.Delete(store.NewPair(in.stash, store.U32(i)))
		}
	}
	return in.s.spans.Set(in.stash, in.spans)
}

// Params describe one offence.
type Params struct {
	Stash       mesh.AccountID
	Fraction    mesh.Perbill
	Exposure    *types.Exposure
	SlashEra    mesh.EraIndex
	WindowStart mesh.EraIndex
	Now         mesh.EraIndex
}

// Compute works out the slash for an offence and updates the span
// bookkeeping. It returns nil when nothing is owed beyond what earlier
// reports in the era already account for.
func (s *Slasher) Compute(p Params) (*Unapplied, error) {
	payout := new(big.Int)
	ownSlash := p.Fraction.Mul(p.Exposure.Own)
	if p.Fraction.Mul(p.Exposure.Total).Sign() == 0 {
		return nil, s.kickOutIfRecent(p)
	}

	key := store.NewPair(store.U32(p.SlashEra), p.Stash)
	prior, found, err := s.validatorInEra.Find(key)
	if err != nil {
		return nil, err
	}
	var priorFraction mesh.Perbill
	if found {
		priorFraction = prior.Fraction
	}
	if p.Fraction <= priorFraction {
		return nil, nil
	}
	if err := s.validatorInEra.Set(key, &ValidatorSlash{p.Fraction, ownSlash}); err != nil {
		return nil, err
	}
	if err := s.noteSlashedInEra(p.SlashEra, p.Stash); err != nil {
		return nil, err
	}

	in, err := s.inspect(p.Stash, p.WindowStart, payout)
	if err != nil {
		return nil, err
	}
	index, ok, err := in.compareAndUpdate(p.SlashEra, ownSlash)
	if err != nil {
		return nil, err
	}
	if ok && index == in.spans.SpanIndex {
		in.endSpan(p.Now)
		if err := s.punish(p.Stash); err != nil {
			return nil, err
		}
	}
	if err := in.close(); err != nil {
		return nil, err
	}

	others, err := s.slashNominators(p, priorFraction, payout)
	if err != nil {
		return nil, err
	}
	return &Unapplied{
		Validator: p.Stash,
		Own:       in.slashed,
		Others:    others,
		Payout:    payout,
	}, nil
}

// punish chills stash and disables it, forcing a new era if too many
// validators are disabled.
func (s *Slasher) punish(stash mesh.AccountID) error {
	if err := s.host.Chill(stash); err != nil {
		return err
	}
	exceeded, err := s.host.DisableValidator(stash)
	if err != nil {
		return err
	}
	if exceeded {
		return s.host.EnsureNewEra()
	}
	return nil
}

// kickOutIfRecent removes a validator whose offence costs nothing, as long
// as the offence is in its ongoing span.
func (s *Slasher) kickOutIfRecent(p Params) error {
	in, err := s.inspect(p.Stash, p.WindowStart, new(big.Int))
	if err != nil {
		return err
	}
	if span, ok := in.spans.EraSpan(p.SlashEra); ok && span.Index == in.spans.SpanIndex {
		in.endSpan(p.Now)
		if err := s.punish(p.Stash); err != nil {
			return err
		}
	}
	return in.close()
}

func (s *Slasher) slashNominators(p Params, priorFraction mesh.Perbill, payout *big.Int) ([]types.IndividualExposure, error) {
	out := make([]types.IndividualExposure, 0, len(p.Exposure.Others))
	for _, n := range p.Exposure.Others {
		diff := new(big.Int).Sub(p.Fraction.Mul(n.Value), priorFraction.Mul(n.Value))
		if diff.Sign() < 0 {
			diff.SetInt64(0)
		}
		key := store.NewPair(store.U32(p.SlashEra), n.Who)
		eraSlash, err := s.nominatorInEra.Get(key)
		if err != nil {
			return nil, err
		}
		eraSlash.Add(eraSlash, diff)
		if err := s.nominatorInEra.Set(key, eraSlash); err != nil {
			return nil, err
		}
		if err := s.noteSlashedInEra(p.SlashEra, n.Who); err != nil {
			return nil, err
		}

		in, err := s.inspect(n.Who, p.WindowStart, payout)
		if err != nil {
			return nil, err
		}
		index, ok, err := in.compareAndUpdate(p.SlashEra, eraSlash)
		if err != nil {
			return nil, err
		}
		// the nominator keeps its intentions; its nomination of the
		// offender is dropped at the next election
		if ok && index == in.spans.SpanIndex {
			in.endSpan(p.Now)
		}
		if err := in.close(); err != nil {
			return nil, err
		}
		out = append(out, types.IndividualExposure{Who: n.Who, Value: in.slashed})
	}
	return out, nil
}

// ClearEra drops the per-era slash records of an era leaving the bonding
// window.
func (s *Slasher) ClearEra(era mesh.EraIndex) error {
	list, _, err := s.slashedInEra.Take(store.U32(era))
	if err != nil {
		return err
	}
	for _, stash := range list {
		key := store.NewPair(store.U32(era), stash)
		s.validatorInEra.Delete(key)
		s.nominatorInEra.Delete(key)
	}
	return nil
}

// ClearStash drops the spans of a stash that left staking.
func (s *Slasher) ClearStash(stash mesh.AccountID) error {
	spans, ok, err := s.spans.Take(stash)
	if err != nil || !ok {
		return err
	}
	for _, span := range spans.All() {
		s.spanSlash.Delete(store.NewPair(stash, store.U32(span.Index)))
	}
	return nil
}
