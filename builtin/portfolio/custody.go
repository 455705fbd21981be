// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package portfolio

import (
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// CustodianOf returns the custodian of pid, the owner unless custody was
// handed over.
func (p *Portfolio) CustodianOf(pid mesh.PortfolioID) (mesh.IdentityID, error) {
	c, found, err := p.custodian.Find(pid)
	if err != nil {
		return mesh.IdentityID{}, err
	}
	if !found {
		return pid.DID, nil
	}
	return c, nil
}

func (p *Portfolio) IsCustodian(did mesh.IdentityID, pid mesh.PortfolioID) (bool, error) {
	c, err := p.CustodianOf(pid)
	if err != nil {
		return false, err
	}
	return c == did, nil
}

// EnsureCustody checks account may act on pid: its identity is the
// custodian and the key holds permission for the portfolio. It returns the
// identity of account.
func (p *Portfolio) EnsureCustody(account mesh.AccountID, pid mesh.PortfolioID) (mesh.IdentityID, error) {
	did, found, err := p.keys.IdentityOf(account)
	if err != nil {
		return did, err
	}
	if !found {
		return did, ErrNotCustodian
	}
	if err := p.ensureExists(pid); err != nil {
		return did, err
	}
	ok, err := p.IsCustodian(did, pid)
	if err != nil {
		return did, err
	}
	if !ok {
		return did, ErrNotCustodian
	}
	ok, err = p.keys.HasPortfolioPermission(account, pid)
	if err != nil {
		return did, err
	}
	if !ok {
		return did, ErrNoPermission
	}
	return did, nil
}

// AuthorizeCustody lets target take custody of pid. Only the current
// custodian may authorize.
func (p *Portfolio) AuthorizeCustody(caller mesh.AccountID, pid mesh.PortfolioID, target mesh.IdentityID) error {
	if _, err := p.EnsureCustody(caller, pid); err != nil {
		return err
	}
	if err := p.custodyReq.Set(store.NewPair(pid, target), true); err != nil {
		return err
	}
	return p.events.Emit("CustodyAuthorized", &Custody{pid, target}, mesh.Bytes32(pid.DID), mesh.Bytes32(target))
}

// AcceptCustody completes a custody handover authorized for the caller's
// identity.
func (p *Portfolio) AcceptCustody(caller mesh.AccountID, pid mesh.PortfolioID) error {
	did, found, err := p.keys.IdentityOf(caller)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoSuchAuthorization
	}
	_, found, err = p.custodyReq.Take(store.NewPair(pid, did))
	if err != nil {
		return err
	}
	if !found {
		return ErrNoSuchAuthorization
	}
	if err := p.ensureExists(pid); err != nil {
		return err
	}
	if did == pid.DID {
		p.custodian.Delete(pid)
	} else if err := p.custodian.Set(pid, did); err != nil {
		return err
	}
	return p.events.Emit("CustodyTransferred", &Custody{pid, did}, mesh.Bytes32(pid.DID), mesh.Bytes32(did))
}

type Custody struct {
	Portfolio mesh.PortfolioID
	Custodian mesh.IdentityID
}
