// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

var logger = log.WithContext("pkg", "genesis")

// Builder helper to build genesis state.
type Builder struct {
	timestamp mesh.Moment
	procs     []func(m *runtime.Modules) error
}

// Timestamp set timestamp.
func (b *Builder) Timestamp(t mesh.Moment) *Builder {
	b.timestamp = t
	return b
}

// State add a state process. Processes run in the order they were added.
func (b *Builder) State(proc func(m *runtime.Modules) error) *Builder {
	b.procs = append(b.procs, proc)
	return b
}

// Build commits block 0 on rt. The era 0 election runs after every state
// process and its set is handed to the session module.
func (b *Builder) Build(rt *runtime.Runtime) (*runtime.Result, error) {
	return rt.Genesis(b.timestamp, func(m *runtime.Modules) error {
		for i, proc := range b.procs {
			if err := proc(m); err != nil {
				return errors.Wrapf(err, "state process %d", i)
			}
		}
		set, err := m.Staking.Genesis(b.timestamp)
		if err != nil {
			return errors.Wrap(err, "era 0 election")
		}
		logger.Info("genesis validators elected", "count", len(set))
		return m.Session.Init(set)
	})
}
