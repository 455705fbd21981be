// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mesh

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// AccountID identifies an on-chain key. For ed25519 and sr25519 keys it is
// the public key itself; for secp256k1 keys it is the blake2b-256 hash of
// the compressed public key.
type AccountID [32]byte

// BytesToAccountID converts bytes slice into AccountID, left padded.
func BytesToAccountID(b []byte) AccountID {
	return AccountID(copyRight32(b))
}

// NumberedAccount returns a well-known account whose last 8 bytes encode n.
// Used for fixtures and devnet scenarios.
func NumberedAccount(n uint64) AccountID {
	var a AccountID
	binary.BigEndian.PutUint64(a[24:], n)
	return a
}

// ParseAccountID parses a 0x prefixed hex account id.
func ParseAccountID(s string) (AccountID, error) {
	var a AccountID
	if err := parseHex32(s, a[:]); err != nil {
		return AccountID{}, err
	}
	return a, nil
}

func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// AbbrevString returns abbrev string presentation.
func (a AccountID) AbbrevString() string {
	return fmt.Sprintf("0x%x…%x", a[:4], a[28:])
}

func (a AccountID) Bytes() []byte {
	return a[:]
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// IdentityID is the decentralized identifier (DID) an account is linked to.
type IdentityID [32]byte

// NumberedIdentity returns a well-known identity whose last 8 bytes encode n.
func NumberedIdentity(n uint64) IdentityID {
	var d IdentityID
	binary.BigEndian.PutUint64(d[24:], n)
	return d
}

func ParseIdentityID(s string) (IdentityID, error) {
	var d IdentityID
	if err := parseHex32(s, d[:]); err != nil {
		return IdentityID{}, err
	}
	return d, nil
}

func (d IdentityID) String() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d IdentityID) Bytes() []byte {
	return d[:]
}

func (d IdentityID) IsZero() bool {
	return d == IdentityID{}
}

func (d IdentityID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *IdentityID) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentityID(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LockIdentifier names a balance lock.
type LockIdentifier [8]byte

func (l LockIdentifier) Bytes() []byte {
	return l[:]
}
