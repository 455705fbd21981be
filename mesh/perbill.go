// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mesh

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Billion is the accuracy of Perbill.
const Billion = 1_000_000_000

// Perbill is a fraction in [0, 1] expressed in parts per billion.
type Perbill uint32

var bigBillion = big.NewInt(Billion)

// PerbillOne is 100%.
const PerbillOne = Perbill(Billion)

// PerbillFromPercent returns p percent, saturating at 100%.
func PerbillFromPercent(p uint32) Perbill {
	if p >= 100 {
		return PerbillOne
	}
	return Perbill(p * (Billion / 100))
}

// PerbillFromParts returns parts/1e9, saturating at 100%.
func PerbillFromParts(parts uint32) Perbill {
	if parts > Billion {
		return PerbillOne
	}
	return Perbill(parts)
}

// PerbillFromRational returns n/d rounded down, saturating at 100%.
// A zero denominator yields 100% unless n is also zero.
func PerbillFromRational(n, d *big.Int) Perbill {
	if d.Sign() <= 0 {
		if n.Sign() > 0 {
			return PerbillOne
		}
		return 0
	}
	if n.Cmp(d) >= 0 {
		return PerbillOne
	}
	parts := new(big.Int).Mul(n, bigBillion)
	parts.Quo(parts, d)
	return Perbill(parts.Uint64())
}

// Deconstruct returns the raw parts.
func (p Perbill) Deconstruct() uint32 {
	return uint32(p)
}

func (p Perbill) IsZero() bool {
	return p == 0
}

// Mul returns floor(p * x).
func (p Perbill) Mul(x *big.Int) *big.Int {
	if x == nil || p == 0 {
		return new(big.Int)
	}
	if p >= PerbillOne {
		return new(big.Int).Set(x)
	}
	out := new(big.Int).Mul(x, big.NewInt(int64(p)))
	return out.Quo(out, bigBillion)
}

// SaturatingAdd adds q to p, capped at 100%.
func (p Perbill) SaturatingAdd(q Perbill) Perbill {
	sum := uint64(p) + uint64(q)
	if sum > Billion {
		return PerbillOne
	}
	return Perbill(sum)
}

// String renders the fraction as a percentage.
func (p Perbill) String() string {
	whole := uint32(p) / (Billion / 100)
	frac := uint32(p) % (Billion / 100)
	if frac == 0 {
		return strconv.FormatUint(uint64(whole), 10) + "%"
	}
	s := strconv.FormatUint(uint64(frac)+Billion/100, 10)[1:]
	return strconv.FormatUint(uint64(whole), 10) + "." + strings.TrimRight(s, "0") + "%"
}

func (p Perbill) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts "12.5%", decimal fractions such as "0.125" and raw
// parts per billion such as "125000000".
func (p *Perbill) UnmarshalText(text []byte) error {
	parsed, err := ParsePerbill(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePerbill parses the forms accepted by UnmarshalText.
func ParsePerbill(s string) (Perbill, error) {
	s = strings.TrimSpace(s)
	scale := uint64(Billion)
	switch {
	case strings.HasSuffix(s, "%"):
		s = strings.TrimSuffix(s, "%")
		scale = Billion / 100
	case strings.Contains(s, "."):
	default:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, errors.Wrap(err, "perbill parts")
		}
		if n > Billion {
			return 0, errors.New("perbill out of range")
		}
		return Perbill(n), nil
	}

	whole, frac, _ := strings.Cut(s, ".")
	w, err := strconv.ParseUint(whole, 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, "perbill")
	}
	parts := w * scale
	for i, unit := 0, scale/10; i < len(frac); i, unit = i+1, unit/10 {
		c := frac[i]
		if c < '0' || c > '9' {
			return 0, errors.Errorf("invalid perbill %q", s)
		}
		parts += uint64(c-'0') * unit
	}
	if parts > Billion {
		return 0, errors.New("perbill out of range")
	}
	return Perbill(parts), nil
}
