// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

// Context scopes typed storage to a module, so two modules may declare
// entries with the same name without clashing.
type Context struct {
	module string
	prefix mesh.Bytes32
	state  *state.State
}

func NewContext(module string, state *state.State) *Context {
	return &Context{
		module: module,
		prefix: mesh.Blake2b([]byte(module)),
		state:  state,
	}
}

func (c *Context) State() *state.State {
	return c.state
}

func (c *Context) Module() string {
	return c.module
}

// slot derives the storage key for a named entry.
func (c *Context) slot(name string) mesh.Bytes32 {
	return mesh.Blake2b(c.prefix[:], []byte(name))
}
