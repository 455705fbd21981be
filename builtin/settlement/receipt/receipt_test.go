// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package receipt

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	subkey "github.com/vedhavyas/go-subkey/v2"
	"github.com/vedhavyas/go-subkey/v2/ed25519"
	"github.com/vedhavyas/go-subkey/v2/sr25519"

	"github.com/stakemesh/stakemesh/cache"
	"github.com/stakemesh/stakemesh/lvldb"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/state"
)

func seed(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func sampleReceipt() *Receipt {
	return &Receipt{
		UID:           7,
		InstructionID: 1,
		LegID:         0,
		From:          mesh.DefaultPortfolio(mesh.NumberedIdentity(1)),
		To:            mesh.UserPortfolio(mesh.NumberedIdentity(2), 2),
		Ticker:        mesh.MustParseTicker("OFFCHAIN"),
		Amount:        big.NewInt(100),
	}
}

func TestEncodeLayout(t *testing.T) {
	r := sampleReceipt()
	got, err := r.Encode()
	require.NoError(t, err)

	var want []byte
	want = append(want, 7<<2, 1<<2, 0)
	from := mesh.NumberedIdentity(1)
	want = append(want, from[:]...)
	want = append(want, 0)
	to := mesh.NumberedIdentity(2)
	want = append(want, to[:]...)
	want = append(want, 1, 2, 0, 0, 0, 0, 0, 0, 0)
	want = append(want, r.Ticker[:]...)
	amount := make([]byte, 16)
	amount[0] = 100
	want = append(want, amount...)

	assert.Equal(t, want, got)
}

func TestEncodeAmountRange(t *testing.T) {
	r := sampleReceipt()
	r.Amount = new(big.Int).Add(mesh.MaxU128(), big.NewInt(1))
	_, err := r.Encode()
	assert.Error(t, err)

	r.Amount = nil
	_, err = r.Encode()
	assert.Error(t, err)
}

func TestVerifySubkeySchemes(t *testing.T) {
	payload, err := sampleReceipt().Encode()
	require.NoError(t, err)

	for _, tt := range []struct {
		scheme Scheme
		keys   subkey.Scheme
	}{
		{Ed25519, ed25519.Scheme{}},
		{Sr25519, sr25519.Scheme{}},
	} {
		t.Run(tt.scheme.String(), func(t *testing.T) {
			kp, err := tt.keys.FromSeed(seed(1))
			require.NoError(t, err)
			signer := mesh.BytesToAccountID(kp.Public())

			sig, err := Sign(kp, tt.scheme, payload)
			require.NoError(t, err)
			assert.True(t, Verify(signer, payload, sig))

			tampered := append([]byte{}, payload...)
			tampered[0]++
			assert.False(t, Verify(signer, tampered, sig))

			other, err := tt.keys.FromSeed(seed(2))
			require.NoError(t, err)
			assert.False(t, Verify(mesh.BytesToAccountID(other.Public()), payload, sig))
		})
	}
}

func TestVerifySecp256k1(t *testing.T) {
	payload, err := sampleReceipt().Encode()
	require.NoError(t, err)

	key := secp256k1.PrivKeyFromBytes(seed(3))
	signer := SecpAccount(key.PubKey())
	sig := SignSecp256k1(key, payload)

	assert.True(t, Verify(signer, payload, sig))
	assert.False(t, Verify(mesh.NumberedAccount(1), payload, sig))
	assert.False(t, Verify(signer, payload, Signature{Scheme: Secp256k1, Bytes: sig.Bytes[:64]}))
	assert.False(t, Verify(signer, payload, Signature{Scheme: Scheme(9), Bytes: sig.Bytes}))
}

func TestClaims(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	verified, err := cache.NewLRU(16)
	require.NoError(t, err)
	claims := NewClaims(state.New(db), verified)

	kp, err := ed25519.Scheme{}.FromSeed(seed(4))
	require.NoError(t, err)
	signer := mesh.BytesToAccountID(kp.Public())
	r := sampleReceipt()
	payload, err := r.Encode()
	require.NoError(t, err)
	sig, err := Sign(kp, Ed25519, payload)
	require.NoError(t, err)

	require.NoError(t, claims.Check(signer, r, sig))
	require.NoError(t, claims.Check(signer, r, sig))
	_, hit, miss := verified.Stats().Stats()
	assert.Equal(t, int64(1), hit)
	assert.Equal(t, int64(1), miss)

	bad := *r
	bad.Amount = big.NewInt(101)
	assert.ErrorIs(t, claims.Check(signer, &bad, sig), ErrInvalidSignature)

	require.NoError(t, claims.Claim(signer, r.UID))
	assert.ErrorIs(t, claims.Check(signer, r, sig), ErrAlreadyClaimed)

	claims.Release(signer, r.UID)
	used, err := claims.IsUsed(signer, r.UID)
	require.NoError(t, err)
	assert.False(t, used)
}
