// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"github.com/stakemesh/stakemesh/builtin/asset"
	"github.com/stakemesh/stakemesh/builtin/balances"
	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/identity"
	"github.com/stakemesh/stakemesh/builtin/portfolio"
	"github.com/stakemesh/stakemesh/builtin/scheduler"
	"github.com/stakemesh/stakemesh/builtin/session"
	"github.com/stakemesh/stakemesh/builtin/settlement"
	"github.com/stakemesh/stakemesh/builtin/staking"
	"github.com/stakemesh/stakemesh/builtin/system"
	"github.com/stakemesh/stakemesh/cache"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

// Modules are the runtime modules bound to one state.
type Modules struct {
	State      *state.State
	Events     *events.Log
	System     *system.System
	Balances   *balances.Balances
	Treasury   *balances.Treasury
	Identity   *identity.Identity
	Portfolio  *portfolio.Portfolio
	Assets     *asset.Registry
	Scheduler  *scheduler.Scheduler
	Session    *session.Session
	Staking    *staking.Staking
	Settlement *settlement.Settlement
}

// NewModules wires every module over st. verified caches receipt signature
// checks across blocks.
func NewModules(st *state.State, cfg *mesh.Config, verified *cache.LRU) *Modules {
	log := events.New(st)
	m := &Modules{
		State:    st,
		Events:   log,
		System:   system.New(st),
		Balances: balances.New(st, cfg.MinBalance(), log),
		Identity: identity.New(st, log),
		Session:  session.New(st, log),
	}
	m.Treasury = balances.NewTreasury(m.Balances, cfg.TreasuryAccount)
	m.Portfolio = portfolio.New(st, m.Identity, log)
	m.Assets = asset.New(st, m.Identity, m.Portfolio, log)
	m.Scheduler = scheduler.New(st, m.System, log)
	m.Staking = staking.New(st, cfg, staking.Deps{
		Currency:   m.Balances,
		Session:    m.Session,
		Compliance: m.Identity,
		Sink:       m.Treasury,
		Clock:      m.System,
	}, log)
	m.Settlement = settlement.New(st, cfg, settlement.Deps{
		Identity:   m.Identity,
		Portfolios: m.Portfolio,
		Assets:     m.Assets,
		Scheduler:  m.Scheduler,
		Clock:      m.System,
	}, verified, log)
	return m
}

// signerIdentity resolves the identity behind a signing key.
func (m *Modules) signerIdentity(signer mesh.AccountID) (mesh.IdentityID, error) {
	return m.Identity.EnsureIdentity(signer)
}
