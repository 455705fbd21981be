// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mesh

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type (
	// EraIndex counts eras from genesis.
	EraIndex uint32
	// SessionIndex counts sessions from genesis.
	SessionIndex uint32
	// BlockNumber is the height of a block.
	BlockNumber uint32
	// Moment is a unix timestamp in milliseconds.
	Moment uint64
)

// MillisecondsPerYear is the length of the julian year in milliseconds.
const MillisecondsPerYear = 1000 * 3600 * 24 * 36525 / 100

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// MaxU128 returns the largest balance the chain can represent.
func MaxU128() *big.Int {
	return new(big.Int).Set(maxU128)
}

// Amount is a u128 balance as it appears in configuration and scenario files.
type Amount big.Int

// NewAmount wraps v.
func NewAmount(v uint64) *Amount {
	return (*Amount)(new(big.Int).SetUint64(v))
}

// ParseAmount parses a decimal or 0x prefixed hex amount, bounded to u128.
func ParseAmount(s string) (*big.Int, error) {
	var v *uint256.Int
	var err error
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err = uint256.FromHex(s)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse amount %q", s)
	}
	if v.BitLen() > 128 {
		return nil, errors.Errorf("amount %s exceeds u128", s)
	}
	return v.ToBig(), nil
}

// Big returns the value as a fresh big.Int. A nil amount is zero.
func (a *Amount) Big() *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(a))
}

func (a *Amount) String() string {
	return a.Big().String()
}

func (a *Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = Amount(*v)
	return nil
}
