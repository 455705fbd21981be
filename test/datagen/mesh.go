// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package datagen

import (
	"crypto/rand"

	"github.com/stakemesh/stakemesh/mesh"
)

func RandBytes32() (b mesh.Bytes32) {
	rand.Read(b[:])
	return
}

func RandAccountID() mesh.AccountID {
	return mesh.AccountID(RandBytes32())
}

func RandIdentityID() mesh.IdentityID {
	return mesh.IdentityID(RandBytes32())
}

// RandTicker returns an upper-case ticker of 3 to 12 letters.
func RandTicker() mesh.Ticker {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	n := 3 + RandIntN(10)
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[RandIntN(len(letters))]
	}
	return mesh.MustParseTicker(string(b))
}
