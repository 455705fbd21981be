// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package receipt

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
	subkey "github.com/vedhavyas/go-subkey/v2"
	"github.com/vedhavyas/go-subkey/v2/ed25519"
	"github.com/vedhavyas/go-subkey/v2/sr25519"

	"github.com/stakemesh/stakemesh/mesh"
)

// Scheme is a signature scheme a receipt signer may use.
type Scheme uint8

const (
	Ed25519 Scheme = iota
	Sr25519
	Secp256k1
)

func (s Scheme) String() string {
	switch s {
	case Ed25519:
		return "ed25519"
	case Sr25519:
		return "sr25519"
	case Secp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

func (s *Scheme) UnmarshalText(text []byte) error {
	for _, v := range []Scheme{Ed25519, Sr25519, Secp256k1} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return errors.Errorf("unknown signature scheme %q", text)
}

// Signature is a scheme tagged signature.
type Signature struct {
	Scheme Scheme
	Bytes  []byte
}

// SecpAccount is the account of a secp256k1 key: the blake2b-256 hash of
// its compressed form.
func SecpAccount(pub *secp256k1.PublicKey) mesh.AccountID {
	return mesh.AccountID(mesh.Blake2b(pub.SerializeCompressed()))
}

// Verify checks sig is signer's signature of payload.
func Verify(signer mesh.AccountID, payload []byte, sig Signature) bool {
	switch sig.Scheme {
	case Ed25519:
		return verifySubkey(ed25519.Scheme{}, signer, payload, sig.Bytes)
	case Sr25519:
		return verifySubkey(sr25519.Scheme{}, signer, payload, sig.Bytes)
	case Secp256k1:
		if len(sig.Bytes) != 65 {
			return false
		}
		hash := mesh.Blake2b(payload)
		pub, _, err := ecdsa.RecoverCompact(sig.Bytes, hash[:])
		if err != nil {
			return false
		}
		return SecpAccount(pub) == signer
	}
	return false
}

func verifySubkey(scheme subkey.Scheme, signer mesh.AccountID, payload, sig []byte) bool {
	pub, err := scheme.FromPublicKey(signer[:])
	if err != nil {
		return false
	}
	return pub.Verify(payload, sig)
}

// Sign signs payload with a substrate key pair.
func Sign(kp subkey.KeyPair, scheme Scheme, payload []byte) (Signature, error) {
	b, err := kp.Sign(payload)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Scheme: scheme, Bytes: b}, nil
}

// SignSecp256k1 signs payload with a secp256k1 key.
func SignSecp256k1(key *secp256k1.PrivateKey, payload []byte) Signature {
	hash := mesh.Blake2b(payload)
	return Signature{Scheme: Secp256k1, Bytes: ecdsa.SignCompact(key, hash[:], true)}
}
