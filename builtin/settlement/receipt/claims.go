// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package receipt

import (
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/cache"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "settlement"

var (
	ErrAlreadyClaimed   = reverts.New(reverts.Receipt, module, "receipt already claimed")
	ErrInvalidSignature = reverts.New(reverts.Receipt, module, "invalid receipt signature")
)

type claimKey = store.Pair[mesh.AccountID, store.U64]

// Claims is the set of (signer, uid) pairs ever claimed.
type Claims struct {
	used     *store.Mapping[claimKey, bool]
	verified *cache.LRU
}

// NewClaims binds the claim set to st. verified caches signature checks
// across blocks and may be shared.
func NewClaims(st *state.State, verified *cache.LRU) *Claims {
	sctx := store.NewContext(module, st)
	return &Claims{
		used:     store.NewMapping[claimKey, bool](sctx, "receipts-used"),
		verified: verified,
	}
}

func (c *Claims) IsUsed(signer mesh.AccountID, uid uint64) (bool, error) {
	return c.used.Get(store.NewPair(signer, store.U64(uid)))
}

// Check verifies r is signed by signer and has not been claimed.
func (c *Claims) Check(signer mesh.AccountID, r *Receipt, sig Signature) error {
	used, err := c.IsUsed(signer, r.UID)
	if err != nil {
		return err
	}
	if used {
		return ErrAlreadyClaimed
	}
	payload, err := r.Encode()
	if err != nil {
		return ErrInvalidSignature
	}
	ok, err := c.verify(signer, payload, sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

func (c *Claims) verify(signer mesh.AccountID, payload []byte, sig Signature) (bool, error) {
	if c.verified == nil {
		return Verify(signer, payload, sig), nil
	}
	key := mesh.Blake2b(signer[:], payload, []byte{byte(sig.Scheme)}, sig.Bytes)
	v, err := c.verified.GetOrLoad(key, func() (any, error) {
		return Verify(signer, payload, sig), nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Claim marks (signer, uid) used.
func (c *Claims) Claim(signer mesh.AccountID, uid uint64) error {
	return c.used.Set(store.NewPair(signer, store.U64(uid)), true)
}

// Release forgets a claim so the receipt may be presented again.
func (c *Claims) Release(signer mesh.AccountID, uid uint64) {
	c.used.Delete(store.NewPair(signer, store.U64(uid)))
}
