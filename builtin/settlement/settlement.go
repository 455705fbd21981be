// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package settlement is the instruction engine. An instruction bundles
// legs moving assets between portfolios of different identities; every
// party affirms, which locks what it sends, and the instruction then
// settles all of its legs at once or none of them.
package settlement

import (
	"encoding/binary"
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/asset"
	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/scheduler"
	"github.com/stakemesh/stakemesh/builtin/settlement/receipt"
	"github.com/stakemesh/stakemesh/builtin/settlement/venue"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/cache"
	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

var logger = log.WithContext("pkg", "settlement")

// ExecuteCall is the root call the scheduler dispatches to settle an
// instruction.
const ExecuteCall = "execute_scheduled_instruction"

// Identity resolves caller identities.
type Identity interface {
	IdentityOf(account mesh.AccountID) (mesh.IdentityID, bool, error)
}

// Portfolios is the custody store legs lock and move value in.
type Portfolios interface {
	EnsureCustody(account mesh.AccountID, pid mesh.PortfolioID) (mesh.IdentityID, error)
	Lock(pid mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error
	Unlock(pid mesh.PortfolioID, ticker mesh.Ticker, amount *big.Int) error
	LockNFT(pid mesh.PortfolioID, ticker mesh.Ticker, id uint64) error
	UnlockNFT(pid mesh.PortfolioID, ticker mesh.Ticker, id uint64) error
}

// Assets is the asset registry and its compliance checked transfers.
type Assets interface {
	venue.Issuers
	Get(ticker mesh.Ticker) (*asset.Asset, bool, error)
	CheckGranularity(ticker mesh.Ticker, amount *big.Int) error
	IsPreApproved(ticker mesh.Ticker, pid mesh.PortfolioID) (bool, error)
	TransferFungible(ticker mesh.Ticker, from, to mesh.PortfolioID, amount *big.Int) error
	TransferNFTs(ticker mesh.Ticker, from, to mesh.PortfolioID, ids []uint64) error
}

// Scheduler queues instruction executions.
type Scheduler interface {
	ScheduleNamed(at mesh.BlockNumber, task scheduler.Task) error
	CancelNamed(name mesh.Bytes32) error
	Lookup(name mesh.Bytes32) (mesh.BlockNumber, bool, error)
}

// Clock tells the block being applied.
type Clock interface {
	BlockNumber() (mesh.BlockNumber, error)
	Now() (mesh.Moment, error)
}

// Deps are the collaborators of the engine.
type Deps struct {
	Identity   Identity
	Portfolios Portfolios
	Assets     Assets
	Scheduler  Scheduler
	Clock      Clock
}

type (
	legKey         = store.Pair[store.U64, store.U64]
	affirmationKey = store.Pair[mesh.PortfolioID, store.U64]
)

// Settlement is the instruction engine.
type Settlement struct {
	st   *state.State
	cfg  *mesh.Config
	deps Deps

	venues *venue.Registry
	claims *receipt.Claims

	next              *store.Counter
	instructions      *store.Mapping[store.U64, *Instruction]
	legs              *store.Mapping[store.U64, []*Leg]
	legStatus         *store.Mapping[legKey, *LegState]
	affirmations      *store.Mapping[affirmationKey, AffirmationStatus]
	parties           *store.Mapping[store.U64, []mesh.PortfolioID]
	pending           *store.Mapping[store.U64, uint64]
	venueInstructions *store.Mapping[store.U64, []uint64]
	events            *events.Emitter
}

// New binds the engine to st. verified caches receipt signature checks and
// may be nil.
func New(st *state.State, cfg *mesh.Config, deps Deps, verified *cache.LRU, log *events.Log) *Settlement {
	sctx := store.NewContext(module, st)
	return &Settlement{
		st:                st,
		cfg:               cfg,
		deps:              deps,
		venues:            venue.New(st, cfg, deps.Identity, deps.Assets, log),
		claims:            receipt.NewClaims(st, verified),
		next:              store.NewCounter(sctx, "instruction-counter", 1),
		instructions:      store.NewMapping[store.U64, *Instruction](sctx, "instructions"),
		legs:              store.NewMapping[store.U64, []*Leg](sctx, "instruction-legs"),
		legStatus:         store.NewMapping[legKey, *LegState](sctx, "leg-status"),
		affirmations:      store.NewMapping[affirmationKey, AffirmationStatus](sctx, "user-affirmations"),
		parties:           store.NewMapping[store.U64, []mesh.PortfolioID](sctx, "instruction-parties"),
		pending:           store.NewMapping[store.U64, uint64](sctx, "pending-affirmations"),
		venueInstructions: store.NewMapping[store.U64, []uint64](sctx, "venue-instructions"),
		events:            log.For(module),
	}
}

// Venues gives access to the venue registry.
func (s *Settlement) Venues() *venue.Registry { return s.venues }

// Claims gives read access to claimed receipts.
func (s *Settlement) Claims() *receipt.Claims { return s.claims }

// Instruction returns instruction id. Settled and rejected instructions
// keep their record so their status can be queried.
func (s *Settlement) Instruction(id uint64) (*Instruction, bool, error) {
	return s.instructions.Find(store.U64(id))
}

// Status returns the status of instruction id, Unknown if there is none.
func (s *Settlement) Status(id uint64) (Status, error) {
	in, found, err := s.Instruction(id)
	if err != nil || !found {
		return Unknown, err
	}
	return in.Status, nil
}

// Legs returns the legs of a live instruction, indexed by leg id.
func (s *Settlement) Legs(id uint64) ([]*Leg, error) {
	return s.legs.Get(store.U64(id))
}

func (s *Settlement) LegStatus(id, leg uint64) (*LegState, error) {
	return s.legStatus.Get(store.NewPair(store.U64(id), store.U64(leg)))
}

// Affirmation returns the affirmation of pid for instruction id.
func (s *Settlement) Affirmation(pid mesh.PortfolioID, id uint64) (AffirmationStatus, error) {
	return s.affirmations.Get(store.NewPair(pid, store.U64(id)))
}

// PendingAffirmations returns the number of affirmations instruction id
// still waits for.
func (s *Settlement) PendingAffirmations(id uint64) (uint64, error) {
	return s.pending.Get(store.U64(id))
}

// VenueInstructions lists the live instructions of venue id.
func (s *Settlement) VenueInstructions(id uint64) ([]uint64, error) {
	return s.venueInstructions.Get(store.U64(id))
}

// LegCounts counts the legs of instruction id by kind.
func (s *Settlement) LegCounts(id uint64) (LegCounts, error) {
	legs, err := s.Legs(id)
	if err != nil {
		return LegCounts{}, err
	}
	return countLegs(legs), nil
}

func countLegs(legs []*Leg) (c LegCounts) {
	for _, l := range legs {
		switch l.Kind {
		case Fungible:
			c.Fungible++
		case NonFungible:
			c.NonFungible++
		default:
			c.OffChain++
		}
	}
	return
}

// TaskName is the scheduler name of the execution of instruction id.
func TaskName(id uint64) mesh.Bytes32 {
	return scheduler.TaskName([]byte(module), binary.BigEndian.AppendUint64(nil, id))
}

func (s *Settlement) identity(caller mesh.AccountID) (mesh.IdentityID, error) {
	did, found, err := s.deps.Identity.IdentityOf(caller)
	if err != nil {
		return did, err
	}
	if !found {
		return did, ErrMissingIdentity
	}
	return did, nil
}

func (s *Settlement) mustGet(id uint64) (*Instruction, error) {
	in, found, err := s.Instruction(id)
	if err != nil {
		return nil, err
	}
	if !found || in.Status == Unknown {
		return nil, ErrUnknownInstruction
	}
	return in, nil
}

func (s *Settlement) setPending(id, n uint64) error {
	if n == 0 {
		s.pending.Delete(store.U64(id))
		return nil
	}
	return s.pending.Set(store.U64(id), n)
}

// schedule queues the execution of in at block at.
func (s *Settlement) schedule(in *Instruction, at mesh.BlockNumber) error {
	return s.deps.Scheduler.ScheduleNamed(at, scheduler.Task{
		Name: TaskName(in.ID),
		Call: ExecuteCall,
		Arg:  in.ID,
	})
}

// unschedule cancels a queued execution, if any.
func (s *Settlement) unschedule(id uint64) error {
	name := TaskName(id)
	_, found, err := s.deps.Scheduler.Lookup(name)
	if err != nil || !found {
		return err
	}
	return s.deps.Scheduler.CancelNamed(name)
}

// maybeSchedule queues an on-affirmation instruction once nothing is
// pending.
func (s *Settlement) maybeSchedule(in *Instruction, pending uint64) error {
	if pending != 0 || in.Settlement.Kind != OnAffirmation {
		return nil
	}
	now, err := s.deps.Clock.BlockNumber()
	if err != nil {
		return err
	}
	return s.schedule(in, now+1)
}

// prune drops everything but the instruction record.
func (s *Settlement) prune(in *Instruction) error {
	id := store.U64(in.ID)
	legs, err := s.legs.Get(id)
	if err != nil {
		return err
	}
	for i := range legs {
		s.legStatus.Delete(store.NewPair(id, store.U64(i)))
	}
	s.legs.Delete(id)

	parties, err := s.parties.Get(id)
	if err != nil {
		return err
	}
	for _, pid := range parties {
		s.affirmations.Delete(store.NewPair(pid, id))
	}
	s.parties.Delete(id)
	s.pending.Delete(id)

	ids, err := s.venueInstructions.Get(store.U64(in.Venue))
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, other := range ids {
		if other != in.ID {
			kept = append(kept, other)
		}
	}
	if len(kept) == 0 {
		s.venueInstructions.Delete(store.U64(in.Venue))
		return nil
	}
	return s.venueInstructions.Set(store.U64(in.Venue), kept)
}

func (s *Settlement) setStatus(in *Instruction, status Status) error {
	in.Status = status
	return s.instructions.Set(store.U64(in.ID), in)
}

func instructionTopic(id uint64) mesh.Bytes32 {
	var b mesh.Bytes32
	binary.BigEndian.PutUint64(b[24:], id)
	return b
}
