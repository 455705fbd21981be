// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mesh

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// PortfolioNumber numbers the user portfolios of an identity. Zero is the
// default portfolio.
type PortfolioNumber uint64

// PortfolioID addresses a portfolio of an identity.
type PortfolioID struct {
	DID    IdentityID
	Number PortfolioNumber
}

// DefaultPortfolio returns the default portfolio of did.
func DefaultPortfolio(did IdentityID) PortfolioID {
	return PortfolioID{DID: did}
}

// UserPortfolio returns the numbered portfolio of did.
func UserPortfolio(did IdentityID, n PortfolioNumber) PortfolioID {
	return PortfolioID{DID: did, Number: n}
}

func (p PortfolioID) IsDefault() bool {
	return p.Number == 0
}

// Bytes is a fixed width encoding used for storage keys.
func (p PortfolioID) Bytes() []byte {
	out := make([]byte, 40)
	copy(out, p.DID[:])
	binary.BigEndian.PutUint64(out[32:], uint64(p.Number))
	return out
}

func (p PortfolioID) String() string {
	if p.IsDefault() {
		return p.DID.String() + "/default"
	}
	return fmt.Sprintf("%v/%d", p.DID, p.Number)
}

// MarshalText implements encoding.TextMarshaler, see String.
func (p PortfolioID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts "<did>/default" and "<did>/<number>".
func (p *PortfolioID) UnmarshalText(text []byte) error {
	s := string(text)
	idx := strings.LastIndexByte(s, '/')
	if idx < 0 {
		did, err := ParseIdentityID(s)
		if err != nil {
			return err
		}
		*p = DefaultPortfolio(did)
		return nil
	}
	did, err := ParseIdentityID(s[:idx])
	if err != nil {
		return err
	}
	if s[idx+1:] == "default" {
		*p = DefaultPortfolio(did)
		return nil
	}
	var n uint64
	if _, err := fmt.Sscanf(s[idx+1:], "%d", &n); err != nil {
		return errors.Wrap(err, "portfolio number")
	}
	*p = UserPortfolio(did, PortfolioNumber(n))
	return nil
}

// Ticker is the upper-case symbol of an asset, zero padded to 12 bytes.
type Ticker [12]byte

// ParseTicker validates and converts s into a Ticker.
func ParseTicker(s string) (Ticker, error) {
	var t Ticker
	if len(s) == 0 || len(s) > len(t) {
		return Ticker{}, errors.New("ticker length must be within 1..12")
	}
	for _, c := range []byte(s) {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
		default:
			return Ticker{}, errors.Errorf("invalid ticker character %q", c)
		}
	}
	copy(t[:], s)
	return t, nil
}

// MustParseTicker is ParseTicker for literals.
func MustParseTicker(s string) Ticker {
	t, err := ParseTicker(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Ticker) String() string {
	return strings.TrimRight(string(t[:]), "\x00")
}

func (t Ticker) Bytes() []byte {
	return t[:]
}

func (t Ticker) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Ticker) UnmarshalText(text []byte) error {
	parsed, err := ParseTicker(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
