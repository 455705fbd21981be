// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package runtime applies blocks. Each block runs the due scheduled tasks
// and the authorship bookkeeping, then its extrinsics in order, then the
// session rotation when the block closes a session. The resulting writes
// are committed to the chain database in one batch.
package runtime

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/scheduler"
	"github.com/stakemesh/stakemesh/builtin/system"
	"github.com/stakemesh/stakemesh/cache"
	"github.com/stakemesh/stakemesh/kv"
	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

var logger = log.WithContext("pkg", "runtime")

const (
	stateBucket = kv.Bucket("s")
	metaBucket  = kv.Bucket("m")

	systemModule = "system"

	// verifiedCacheSize bounds the receipt signature cache.
	verifiedCacheSize = 4096
)

var bestKey = []byte("best")

// Block is the input of ApplyBlock.
type Block struct {
	Number     mesh.BlockNumber
	Timestamp  mesh.Moment
	Author     mesh.AccountID
	Uncles     []mesh.AccountID
	Extrinsics []*Extrinsic
}

// Head summarises the last committed block.
type Head struct {
	Number    mesh.BlockNumber
	Timestamp mesh.Moment
	Digest    mesh.Bytes32
}

// Outcome is the result of one extrinsic. Err is nil on success.
type Outcome struct {
	Index uint32
	Call  string
	Err   error
}

// Result is what applying a block produced.
type Result struct {
	Head     Head
	Outcomes []Outcome
	Events   []*events.Event
	Changes  int
}

// ExtrinsicSuccess is emitted by the system module for each applied
// extrinsic.
type ExtrinsicSuccess struct {
	Index uint32
}

// ExtrinsicFailed is emitted when an extrinsic is reverted. Kind is zero
// for failures other than module reverts.
type ExtrinsicFailed struct {
	Index uint32
	Kind  uint8
	Error string
}

// Runtime owns the chain database and applies blocks on top of it. It is
// safe for concurrent use; blocks are applied one at a time.
type Runtime struct {
	db       kv.Store
	cfg      *mesh.Config
	verified *cache.LRU
	mu       sync.Mutex
}

// New creates a runtime over db.
func New(db kv.Store, cfg *mesh.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	verified, err := cache.NewLRU(verifiedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Runtime{db: db, cfg: cfg, verified: verified}, nil
}

func (rt *Runtime) Config() *mesh.Config { return rt.cfg }

// Best returns the head of the chain. ok is false before genesis.
func (rt *Runtime) Best() (head Head, ok bool, err error) {
	getter := metaBucket.NewGetter(rt.db)
	data, err := getter.Get(bestKey)
	if err != nil {
		if getter.IsNotFound(err) {
			return Head{}, false, nil
		}
		return Head{}, false, errors.Wrap(err, "read best")
	}
	if err := rlp.DecodeBytes(data, &head); err != nil {
		return Head{}, false, errors.Wrap(err, "decode best")
	}
	return head, true, nil
}

// View runs fn over the committed state. Writes made by fn are discarded.
func (rt *Runtime) View(fn func(m *Modules) error) error {
	snap := rt.db.Snapshot()
	defer snap.Release()
	return fn(NewModules(state.New(stateBucket.NewGetter(snap)), rt.cfg, rt.verified))
}

// Genesis commits block 0, built by build over empty state.
func (rt *Runtime) Genesis(timestamp mesh.Moment, build func(m *Modules) error) (*Result, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok, err := rt.Best(); err != nil {
		return nil, err
	} else if ok {
		return nil, errors.New("genesis already committed")
	}
	m := rt.newModules()
	if err := m.System.SetBlock(&system.Block{Number: 0, Timestamp: timestamp}); err != nil {
		return nil, err
	}
	if err := build(m); err != nil {
		return nil, errors.Wrap(err, "build genesis")
	}
	return rt.commit(m, Head{Number: 0, Timestamp: timestamp}, nil)
}

// ApplyBlock applies b on top of the best block and commits it.
func (rt *Runtime) ApplyBlock(b *Block) (*Result, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	start := time.Now()
	best, ok, err := rt.Best()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("no genesis")
	}
	if b.Number != best.Number+1 {
		return nil, errors.Errorf("block %d does not follow %d", b.Number, best.Number)
	}
	if b.Timestamp < best.Timestamp {
		return nil, errors.Errorf("block %d goes back in time", b.Number)
	}

	m := rt.newModules()
	if err := m.System.SetBlock(&system.Block{Number: b.Number, Timestamp: b.Timestamp, Author: b.Author}); err != nil {
		return nil, err
	}
	if err := rt.initialize(m, b); err != nil {
		return nil, errors.Wrap(err, "initialize")
	}
	outcomes := make([]Outcome, 0, len(b.Extrinsics))
	for i, x := range b.Extrinsics {
		o, err := rt.applyExtrinsic(m, uint32(i), x)
		if err != nil {
			return nil, errors.Wrapf(err, "extrinsic %d", i)
		}
		outcomes = append(outcomes, o)
	}
	if b.Number%rt.cfg.SessionLength == 0 {
		if err := rt.endSession(m); err != nil {
			return nil, errors.Wrap(err, "end session")
		}
	}

	res, err := rt.commit(m, Head{Number: b.Number, Timestamp: b.Timestamp}, outcomes)
	if err != nil {
		logger.Error("failed to commit block", "number", b.Number, "err", err)
		return nil, err
	}
	metricBlocksApplied().Add(1)
	metricApplyDuration().Observe(float64(time.Since(start).Milliseconds()))
	logger.Debug("applied block", "number", b.Number, "extrinsics", len(outcomes), "changes", res.Changes, "elapsed", time.Since(start))
	return res, nil
}

func (rt *Runtime) newModules() *Modules {
	return NewModules(state.New(stateBucket.NewGetter(rt.db)), rt.cfg, rt.verified)
}

// initialize runs the tasks due at this block, then credits authorship.
func (rt *Runtime) initialize(m *Modules, b *Block) error {
	tasks, err := m.Scheduler.Take(b.Number)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := rt.runTask(m, task); err != nil {
			return err
		}
	}
	if b.Author.IsZero() {
		return nil
	}
	return m.Staking.NoteAuthorship(b.Author, b.Uncles)
}

// runTask dispatches task as root in its own checkpoint. A failing task is
// dropped; only infrastructure errors are returned.
func (rt *Runtime) runTask(m *Modules, task scheduler.Task) error {
	mk, ok := registry[task.Call]
	if !ok {
		logger.Warn("dropping task of unknown call", "call", task.Call, "arg", task.Arg)
		metricTasks().AddWithLabels(1, task.Call, "unknown")
		return nil
	}
	c, ok := mk().(taskCall)
	if !ok {
		logger.Warn("dropping task of unschedulable call", "call", task.Call)
		metricTasks().AddWithLabels(1, task.Call, "unknown")
		return nil
	}
	c.bind(task.Arg)

	checkpoint := m.State.NewCheckpoint()
	if err := c.Dispatch(m, Origin{Root: true}); err != nil {
		m.State.RevertTo(checkpoint)
		if !reverts.IsRevert(err) {
			return err
		}
		logger.Warn("scheduled call failed", "call", task.Call, "arg", task.Arg, "err", err)
		metricTasks().AddWithLabels(1, task.Call, "failed")
		return nil
	}
	metricTasks().AddWithLabels(1, task.Call, "ok")
	return nil
}

// applyExtrinsic dispatches x in a checkpoint. A dispatch error reverts
// every write of the call and is recorded in the outcome.
func (rt *Runtime) applyExtrinsic(m *Modules, index uint32, x *Extrinsic) (Outcome, error) {
	name := CallName(x.Call)
	out := Outcome{Index: index, Call: name}
	emitter := m.Events.For(systemModule)

	checkpoint := m.State.NewCheckpoint()
	err := x.Call.Dispatch(m, x.Origin())
	if err == nil {
		logger.Debug("dispatched", "call", name, "index", index)
		metricExtrinsics().AddWithLabels(1, name, "ok")
		return out, emitter.Emit("ExtrinsicSuccess", &ExtrinsicSuccess{index})
	}
	m.State.RevertTo(checkpoint)
	if !reverts.IsRevert(err) {
		logger.Error("dispatch failed", "call", name, "index", index, "err", err)
	} else {
		logger.Debug("dispatch reverted", "call", name, "index", index, "err", err)
	}
	out.Err = err
	metricExtrinsics().AddWithLabels(1, name, "failed")
	return out, emitter.Emit("ExtrinsicFailed", &ExtrinsicFailed{
		Index: index,
		Kind:  uint8(reverts.KindOf(err)),
		Error: err.Error(),
	})
}

// endSession runs the era boundary processing of staking, then hands the
// resulting set to the session module.
func (rt *Runtime) endSession(m *Modules) error {
	idx, err := m.Session.CurrentIndex()
	if err != nil {
		return err
	}
	set, changed, err := m.Staking.NewSession(idx + 1)
	if err != nil {
		return err
	}
	if !changed {
		set = nil
	}
	if _, err := m.Session.Rotate(set); err != nil {
		return err
	}

	era, err := m.Staking.Era().Current()
	if err != nil {
		return err
	}
	metricEra().Set(int64(era))
	if changed {
		metricElected().Set(int64(len(set)))
		if slot, err := m.Staking.SlotStake(era); err == nil && slot.IsInt64() {
			metricSlotStake().Set(slot.Int64())
		}
	}
	return nil
}

// commit drains the block events, stages the state and writes it together
// with the new head.
func (rt *Runtime) commit(m *Modules, head Head, outcomes []Outcome) (*Result, error) {
	evs, err := m.Events.Drain()
	if err != nil {
		return nil, err
	}
	observeEvents(evs)

	stage := m.State.Stage()
	head.Digest = stage.Hash()
	enc, err := rlp.EncodeToBytes(&head)
	if err != nil {
		return nil, err
	}

	bulk := rt.db.Bulk()
	if err := stage.Commit(stateBucket.NewPutter(bulk)); err != nil {
		return nil, err
	}
	if err := metaBucket.NewPutter(bulk).Put(bestKey, enc); err != nil {
		return nil, errors.Wrap(err, "write best")
	}
	if err := bulk.Write(); err != nil {
		return nil, errors.Wrap(err, "write block")
	}
	return &Result{Head: head, Outcomes: outcomes, Events: evs, Changes: stage.Len()}, nil
}
