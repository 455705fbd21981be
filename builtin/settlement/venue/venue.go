// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package venue keeps the settlement venues: who created them, which keys
// may sign off-chain receipts for them, and which assets restrict trading
// to an allow-list of venues.
package venue

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/builtin/events"
	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

const module = "settlement"

var (
	ErrInvalidVenue        = reverts.New(reverts.State, module, "invalid venue")
	ErrNotVenueCreator     = reverts.New(reverts.Authorization, module, "not venue creator")
	ErrMissingIdentity     = reverts.New(reverts.Authorization, module, "caller has no identity")
	ErrNotIssuer           = reverts.New(reverts.Authorization, module, "not asset issuer")
	ErrMaxSigners          = reverts.New(reverts.Capacity, module, "too many venue signers")
	ErrSignerAlreadyExists = reverts.New(reverts.State, module, "signer already exists")
	ErrSignerDoesNotExist  = reverts.New(reverts.State, module, "signer does not exist")
)

// Type classifies a venue.
type Type uint8

const (
	Other Type = iota
	Distribution
	Sto
	Exchange
)

func (t Type) String() string {
	switch t {
	case Distribution:
		return "distribution"
	case Sto:
		return "sto"
	case Exchange:
		return "exchange"
	default:
		return "other"
	}
}

func (t *Type) UnmarshalText(text []byte) error {
	for _, v := range []Type{Other, Distribution, Sto, Exchange} {
		if v.String() == string(text) {
			*t = v
			return nil
		}
	}
	return errors.Errorf("unknown venue type %q", text)
}

type Venue struct {
	Creator mesh.IdentityID
	Type    Type
}

// Keys resolves caller identities.
type Keys interface {
	IdentityOf(account mesh.AccountID) (mesh.IdentityID, bool, error)
}

// Issuers tells who issued an asset.
type Issuers interface {
	IsIssuer(did mesh.IdentityID, ticker mesh.Ticker) (bool, error)
}

type signerKey = store.Pair[store.U64, mesh.AccountID]
type allowKey = store.Pair[mesh.Ticker, store.U64]

// Registry stores venues and the venue filtering of assets.
type Registry struct {
	keys    Keys
	issuers Issuers

	next        *store.Counter
	venues      *store.Mapping[store.U64, *Venue]
	details     *store.Mapping[store.U64, string]
	signers     *store.Mapping[signerKey, bool]
	signerCount *store.Mapping[store.U64, uint32]
	userVenues  *store.Mapping[mesh.IdentityID, []uint64]
	filtering   *store.Mapping[mesh.Ticker, bool]
	allowed     *store.Mapping[allowKey, bool]
	events      *events.Emitter

	maxSigners uint32
}

func New(st *state.State, cfg *mesh.Config, keys Keys, issuers Issuers, log *events.Log) *Registry {
	sctx := store.NewContext(module, st)
	return &Registry{
		keys:        keys,
		issuers:     issuers,
		next:        store.NewCounter(sctx, "venue-counter", 1),
		venues:      store.NewMapping[store.U64, *Venue](sctx, "venues"),
		details:     store.NewMapping[store.U64, string](sctx, "venue-details"),
		signers:     store.NewMapping[signerKey, bool](sctx, "venue-signers"),
		signerCount: store.NewMapping[store.U64, uint32](sctx, "venue-signer-count"),
		userVenues:  store.NewMapping[mesh.IdentityID, []uint64](sctx, "user-venues"),
		filtering:   store.NewMapping[mesh.Ticker, bool](sctx, "venue-filtering"),
		allowed:     store.NewMapping[allowKey, bool](sctx, "venue-allow-list"),
		events:      log.For(module),
		maxSigners:  cfg.MaxVenueSigners,
	}
}

func (r *Registry) identity(caller mesh.AccountID) (mesh.IdentityID, error) {
	did, found, err := r.keys.IdentityOf(caller)
	if err != nil {
		return did, err
	}
	if !found {
		return did, ErrMissingIdentity
	}
	return did, nil
}

// Get returns venue id.
func (r *Registry) Get(id uint64) (*Venue, bool, error) {
	return r.venues.Find(store.U64(id))
}

func (r *Registry) Details(id uint64) (string, error) {
	return r.details.Get(store.U64(id))
}

// UserVenues lists the venues created by did.
func (r *Registry) UserVenues(did mesh.IdentityID) ([]uint64, error) {
	return r.userVenues.Get(did)
}

// EnsureCreator checks the identity of caller created venue id and returns
// that identity.
func (r *Registry) EnsureCreator(caller mesh.AccountID, id uint64) (mesh.IdentityID, error) {
	did, err := r.identity(caller)
	if err != nil {
		return did, err
	}
	v, found, err := r.Get(id)
	if err != nil {
		return did, err
	}
	if !found {
		return did, ErrInvalidVenue
	}
	if v.Creator != did {
		return did, ErrNotVenueCreator
	}
	return did, nil
}

// Create registers a venue of the caller's identity and returns its id.
func (r *Registry) Create(caller mesh.AccountID, details string, signers []mesh.AccountID, typ Type) (uint64, error) {
	did, err := r.identity(caller)
	if err != nil {
		return 0, err
	}
	if uint32(len(signers)) > r.maxSigners {
		return 0, ErrMaxSigners
	}
	id, err := r.next.Next()
	if err != nil {
		return 0, err
	}
	if err := r.venues.Set(store.U64(id), &Venue{Creator: did, Type: typ}); err != nil {
		return 0, err
	}
	if err := r.details.Set(store.U64(id), details); err != nil {
		return 0, err
	}
	if err := r.addSigners(id, signers); err != nil {
		return 0, err
	}
	mine, err := r.userVenues.Get(did)
	if err != nil {
		return 0, err
	}
	if err := r.userVenues.Set(did, append(mine, id)); err != nil {
		return 0, err
	}
	return id, r.events.Emit("VenueCreated", &Created{id, did, typ, details}, mesh.Bytes32(did))
}

// UpdateDetails replaces the details of venue id.
func (r *Registry) UpdateDetails(caller mesh.AccountID, id uint64, details string) error {
	did, err := r.EnsureCreator(caller, id)
	if err != nil {
		return err
	}
	if err := r.details.Set(store.U64(id), details); err != nil {
		return err
	}
	return r.events.Emit("VenueDetailsUpdated", &Updated{ID: id, Details: details}, mesh.Bytes32(did))
}

func (r *Registry) UpdateType(caller mesh.AccountID, id uint64, typ Type) error {
	did, err := r.EnsureCreator(caller, id)
	if err != nil {
		return err
	}
	v, _, err := r.Get(id)
	if err != nil {
		return err
	}
	v.Type = typ
	if err := r.venues.Set(store.U64(id), v); err != nil {
		return err
	}
	return r.events.Emit("VenueTypeUpdated", &Updated{ID: id, Type: typ}, mesh.Bytes32(did))
}

// UpdateSigners adds or removes receipt signers of venue id. Adding a
// present signer or removing an absent one fails the whole update.
func (r *Registry) UpdateSigners(caller mesh.AccountID, id uint64, signers []mesh.AccountID, add bool) error {
	did, err := r.EnsureCreator(caller, id)
	if err != nil {
		return err
	}
	if add {
		err = r.addSigners(id, signers)
	} else {
		err = r.removeSigners(id, signers)
	}
	if err != nil {
		return err
	}
	return r.events.Emit("VenueSignersUpdated", &SignersUpdated{id, signers, add}, mesh.Bytes32(did))
}

func (r *Registry) addSigners(id uint64, signers []mesh.AccountID) error {
	count, err := r.signerCount.Get(store.U64(id))
	if err != nil {
		return err
	}
	if uint64(count)+uint64(len(signers)) > uint64(r.maxSigners) {
		return ErrMaxSigners
	}
	for i, s := range signers {
		key := store.NewPair(store.U64(id), s)
		has, err := r.signers.Get(key)
		if err != nil {
			return err
		}
		if has || slices.Contains(signers[:i], s) {
			return ErrSignerAlreadyExists
		}
		if err := r.signers.Set(key, true); err != nil {
			return err
		}
	}
	return r.signerCount.Set(store.U64(id), count+uint32(len(signers)))
}

func (r *Registry) removeSigners(id uint64, signers []mesh.AccountID) error {
	count, err := r.signerCount.Get(store.U64(id))
	if err != nil {
		return err
	}
	for _, s := range signers {
		key := store.NewPair(store.U64(id), s)
		has, err := r.signers.Get(key)
		if err != nil {
			return err
		}
		if !has {
			return ErrSignerDoesNotExist
		}
		r.signers.Delete(key)
		count--
	}
	return r.signerCount.Set(store.U64(id), count)
}

// IsSigner reports whether signer may sign receipts for venue id.
func (r *Registry) IsSigner(id uint64, signer mesh.AccountID) (bool, error) {
	return r.signers.Get(store.NewPair(store.U64(id), signer))
}

func (r *Registry) ensureIssuer(caller mesh.AccountID, ticker mesh.Ticker) (mesh.IdentityID, error) {
	did, err := r.identity(caller)
	if err != nil {
		return did, err
	}
	ok, err := r.issuers.IsIssuer(did, ticker)
	if err != nil {
		return did, err
	}
	if !ok {
		return did, ErrNotIssuer
	}
	return did, nil
}

// SetFiltering turns venue filtering of ticker on or off.
func (r *Registry) SetFiltering(caller mesh.AccountID, ticker mesh.Ticker, enabled bool) error {
	did, err := r.ensureIssuer(caller, ticker)
	if err != nil {
		return err
	}
	if enabled {
		err = r.filtering.Set(ticker, true)
	} else {
		r.filtering.Delete(ticker)
	}
	if err != nil {
		return err
	}
	return r.events.Emit("VenueFiltering", &Filtering{ticker, enabled}, mesh.Bytes32(did))
}

// AllowVenues adds ids to the allow-list of ticker.
func (r *Registry) AllowVenues(caller mesh.AccountID, ticker mesh.Ticker, ids []uint64) error {
	return r.setAllowed(caller, ticker, ids, true)
}

// DisallowVenues removes ids from the allow-list of ticker.
func (r *Registry) DisallowVenues(caller mesh.AccountID, ticker mesh.Ticker, ids []uint64) error {
	return r.setAllowed(caller, ticker, ids, false)
}

func (r *Registry) setAllowed(caller mesh.AccountID, ticker mesh.Ticker, ids []uint64, allow bool) error {
	did, err := r.ensureIssuer(caller, ticker)
	if err != nil {
		return err
	}
	for _, id := range ids {
		key := store.NewPair(ticker, store.U64(id))
		if allow {
			if err := r.allowed.Set(key, true); err != nil {
				return err
			}
		} else {
			r.allowed.Delete(key)
		}
	}
	name := "VenuesAllowed"
	if !allow {
		name = "VenuesBlocked"
	}
	return r.events.Emit(name, &AllowList{ticker, ids}, mesh.Bytes32(did))
}

// IsAllowed reports whether instructions of venue id may move ticker.
func (r *Registry) IsAllowed(ticker mesh.Ticker, id uint64) (bool, error) {
	filtered, err := r.filtering.Get(ticker)
	if err != nil || !filtered {
		return true, err
	}
	return r.allowed.Get(store.NewPair(ticker, store.U64(id)))
}

// Event payloads.
type (
	Created struct {
		ID      uint64
		Creator mesh.IdentityID
		Type    Type
		Details string
	}
	Updated struct {
		ID      uint64
		Type    Type
		Details string
	}
	SignersUpdated struct {
		ID      uint64
		Signers []mesh.AccountID
		Added   bool
	}
	Filtering struct {
		Ticker  mesh.Ticker
		Enabled bool
	}
	AllowList struct {
		Ticker mesh.Ticker
		IDs    []uint64
	}
)
