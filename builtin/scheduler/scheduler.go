// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package scheduler is the on-chain agenda of named root calls due at a
// future block.
package scheduler

import (
	"sort"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "scheduler"

var (
	ErrNameTaken = reverts.New(reverts.State, module, "task name already scheduled")
	ErrNotFound  = reverts.New(reverts.State, module, "task not found")
	ErrPastBlock = reverts.New(reverts.Timing, module, "target block in the past")
)

// Task is a deferred call. Call names a root call known to the runtime and
// Arg is its single argument.
type Task struct {
	Name     mesh.Bytes32
	Call     string
	Arg      uint64
	Priority uint8
}

type entry struct {
	At   mesh.BlockNumber
	Task Task
}

// Clock tells the block being applied.
type Clock interface {
	BlockNumber() (mesh.BlockNumber, error)
}

type Scheduler struct {
	clock  Clock
	agenda *store.Mapping[store.U32, []mesh.Bytes32]
	tasks  *store.Mapping[mesh.Bytes32, *entry]
	events *events.Emitter
}

func New(st *state.State, clock Clock, log *events.Log) *Scheduler {
	sctx := store.NewContext(module, st)
	return &Scheduler{
		clock:  clock,
		agenda: store.NewMapping[store.U32, []mesh.Bytes32](sctx, "agenda"),
		tasks:  store.NewMapping[mesh.Bytes32, *entry](sctx, "tasks"),
		events: log.For(module),
	}
}

// TaskName derives a task name from its parts.
func TaskName(parts ...[]byte) mesh.Bytes32 {
	return mesh.Blake2b(parts...)
}

// ScheduleNamed queues task for block at.
func (s *Scheduler) ScheduleNamed(at mesh.BlockNumber, task Task) error {
	now, err := s.clock.BlockNumber()
	if err != nil {
		return err
	}
	if at <= now {
		return ErrPastBlock
	}
	if has, err := s.tasks.Has(task.Name); err != nil {
		return err
	} else if has {
		return ErrNameTaken
	}
	names, err := s.agenda.Get(store.U32(at))
	if err != nil {
		return err
	}
	if err := s.agenda.Set(store.U32(at), append(names, task.Name)); err != nil {
		return err
	}
	if err := s.tasks.Set(task.Name, &entry{At: at, Task: task}); err != nil {
		return err
	}
	return s.events.Emit("Scheduled", &Scheduled{at, task.Name, task.Call, task.Arg}, task.Name)
}

// CancelNamed removes a queued task.
func (s *Scheduler) CancelNamed(name mesh.Bytes32) error {
	e, found, err := s.tasks.Take(name)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	names, err := s.agenda.Get(store.U32(e.At))
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		s.agenda.Delete(store.U32(e.At))
	} else if err := s.agenda.Set(store.U32(e.At), kept); err != nil {
		return err
	}
	return s.events.Emit("Canceled", &Scheduled{e.At, name, e.Task.Call, e.Task.Arg}, name)
}

// Lookup returns the block a named task is due at.
func (s *Scheduler) Lookup(name mesh.Bytes32) (mesh.BlockNumber, bool, error) {
	e, found, err := s.tasks.Find(name)
	if err != nil || !found {
		return 0, false, err
	}
	return e.At, true, nil
}

// Take removes and returns the tasks due at block, ordered by priority then
// argument.
func (s *Scheduler) Take(block mesh.BlockNumber) ([]Task, error) {
	names, _, err := s.agenda.Take(store.U32(block))
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(names))
	for _, name := range names {
		e, found, err := s.tasks.Take(name)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, e.Task)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Arg < out[j].Arg
	})
	return out, nil
}

type Scheduled struct {
	At   mesh.BlockNumber
	Name mesh.Bytes32
	Call string
	Arg  uint64
}
