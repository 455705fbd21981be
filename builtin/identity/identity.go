// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package identity is the DID registry. Every account acting on the chain
// is a key of exactly one identity, either its primary key or a secondary
// key with possibly restricted portfolio permissions.
package identity

import (
	"slices"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "identity"

var (
	ErrIdentityExists  = reverts.New(reverts.State, module, "identity already exists")
	ErrNoSuchIdentity  = reverts.New(reverts.State, module, "no such identity")
	ErrKeyInUse        = reverts.New(reverts.State, module, "key already linked")
	ErrNotPrimaryKey   = reverts.New(reverts.Authorization, module, "not primary key")
	ErrNotSecondaryKey = reverts.New(reverts.State, module, "not a secondary key of the identity")
	ErrMissingIdentity = reverts.New(reverts.Authorization, module, "caller has no identity")
)

// Record is the registry entry of an identity.
type Record struct {
	Primary mesh.AccountID
	CDD     bool
}

// Permissions restrict a secondary key. Restricted false grants every
// portfolio of the identity.
type Permissions struct {
	Restricted bool
	Portfolios []mesh.PortfolioID
}

type keyRecord struct {
	DID         mesh.IdentityID
	Primary     bool
	Permissions Permissions
}

type Identity struct {
	records *store.Mapping[mesh.IdentityID, *Record]
	keys    *store.Mapping[mesh.AccountID, *keyRecord]
	events  *events.Emitter
}

func New(st *state.State, log *events.Log) *Identity {
	sctx := store.NewContext(module, st)
	return &Identity{
		records: store.NewMapping[mesh.IdentityID, *Record](sctx, "records"),
		keys:    store.NewMapping[mesh.AccountID, *keyRecord](sctx, "keys"),
		events:  log.For(module),
	}
}

// RegisterIdentity creates did with primary as its primary key.
func (id *Identity) RegisterIdentity(did mesh.IdentityID, primary mesh.AccountID) error {
	if has, err := id.records.Has(did); err != nil {
		return err
	} else if has {
		return ErrIdentityExists
	}
	if has, err := id.keys.Has(primary); err != nil {
		return err
	} else if has {
		return ErrKeyInUse
	}
	if err := id.records.Set(did, &Record{Primary: primary}); err != nil {
		return err
	}
	if err := id.keys.Set(primary, &keyRecord{DID: did, Primary: true}); err != nil {
		return err
	}
	return id.events.Emit("IdentityRegistered", &Registered{did, primary}, mesh.Bytes32(did))
}

func (id *Identity) Record(did mesh.IdentityID) (*Record, bool, error) {
	return id.records.Find(did)
}

// AddSecondaryKey links key to the identity whose primary key is caller.
func (id *Identity) AddSecondaryKey(caller, key mesh.AccountID, perms Permissions) error {
	kr, found, err := id.keys.Find(caller)
	if err != nil {
		return err
	}
	if !found {
		return ErrMissingIdentity
	}
	if !kr.Primary {
		return ErrNotPrimaryKey
	}
	if has, err := id.keys.Has(key); err != nil {
		return err
	} else if has {
		return ErrKeyInUse
	}
	if err := id.keys.Set(key, &keyRecord{DID: kr.DID, Permissions: perms}); err != nil {
		return err
	}
	return id.events.Emit("SecondaryKeyAdded", &Registered{kr.DID, key}, mesh.Bytes32(kr.DID))
}

// RemoveSecondaryKey unlinks a secondary key of the caller's identity.
func (id *Identity) RemoveSecondaryKey(caller, key mesh.AccountID) error {
	kr, found, err := id.keys.Find(caller)
	if err != nil {
		return err
	}
	if !found {
		return ErrMissingIdentity
	}
	if !kr.Primary {
		return ErrNotPrimaryKey
	}
	sk, found, err := id.keys.Find(key)
	if err != nil {
		return err
	}
	if !found || sk.Primary || sk.DID != kr.DID {
		return ErrNotSecondaryKey
	}
	id.keys.Delete(key)
	return id.events.Emit("SecondaryKeyRemoved", &Registered{kr.DID, key}, mesh.Bytes32(kr.DID))
}

// IdentityOf returns the identity account is a key of.
func (id *Identity) IdentityOf(account mesh.AccountID) (mesh.IdentityID, bool, error) {
	kr, found, err := id.keys.Find(account)
	if err != nil || !found {
		return mesh.IdentityID{}, false, err
	}
	return kr.DID, true, nil
}

// EnsureIdentity is IdentityOf failing for accounts without identity.
func (id *Identity) EnsureIdentity(account mesh.AccountID) (mesh.IdentityID, error) {
	did, found, err := id.IdentityOf(account)
	if err != nil {
		return did, err
	}
	if !found {
		return did, ErrMissingIdentity
	}
	return did, nil
}

// IsSignerAuthorized reports whether signer is a key of did.
func (id *Identity) IsSignerAuthorized(did mesh.IdentityID, signer mesh.AccountID) (bool, error) {
	got, found, err := id.IdentityOf(signer)
	if err != nil || !found {
		return false, err
	}
	return got == did, nil
}

// HasPortfolioPermission reports whether account may act on portfolio on
// behalf of its identity. It does not check custody.
func (id *Identity) HasPortfolioPermission(account mesh.AccountID, portfolio mesh.PortfolioID) (bool, error) {
	kr, found, err := id.keys.Find(account)
	if err != nil || !found {
		return false, err
	}
	if kr.Primary || !kr.Permissions.Restricted {
		return true, nil
	}
	return slices.Contains(kr.Permissions.Portfolios, portfolio), nil
}

// SetCDD records the customer due diligence status of did.
func (id *Identity) SetCDD(did mesh.IdentityID, valid bool) error {
	rec, found, err := id.records.Find(did)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoSuchIdentity
	}
	rec.CDD = valid
	return id.records.Set(did, rec)
}

func (id *Identity) HasValidCDD(did mesh.IdentityID) (bool, error) {
	rec, err := id.records.Get(did)
	if err != nil {
		return false, err
	}
	return rec.CDD, nil
}

// AccountHasValidCDD checks the CDD of the identity account belongs to.
func (id *Identity) AccountHasValidCDD(account mesh.AccountID) (bool, error) {
	did, found, err := id.IdentityOf(account)
	if err != nil || !found {
		return false, err
	}
	return id.HasValidCDD(did)
}

type Registered struct {
	DID mesh.IdentityID
	Key mesh.AccountID
}
