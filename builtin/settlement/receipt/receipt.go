// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package receipt encodes, signs and verifies the off-chain receipts that
// settle off-chain instruction legs, and tracks which receipts have been
// claimed.
package receipt

import (
	"bytes"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/mesh"
)

// Receipt is the statement a venue signer makes about an off-chain leg.
type Receipt struct {
	UID           uint64
	InstructionID uint64
	LegID         uint64
	From          mesh.PortfolioID
	To            mesh.PortfolioID
	Ticker        mesh.Ticker
	Amount        *big.Int
}

// portfolio is the SCALE form of a portfolio id: the identity followed by
// the portfolio kind, 0 for Default or 1 and the number for a user
// portfolio.
type portfolio mesh.PortfolioID

func (p portfolio) Encode(enc scale.Encoder) error {
	if err := enc.Write(p.DID[:]); err != nil {
		return err
	}
	if p.Number == 0 {
		return enc.PushByte(0)
	}
	if err := enc.PushByte(1); err != nil {
		return err
	}
	return enc.Encode(gstypes.NewU64(uint64(p.Number)))
}

// Encode returns the signed payload of r. Ids are compact integers and the
// amount a little-endian u128.
func (r *Receipt) Encode() ([]byte, error) {
	if r.Amount == nil || r.Amount.Sign() < 0 || r.Amount.Cmp(mesh.MaxU128()) > 0 {
		return nil, errors.New("receipt amount out of u128 range")
	}
	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)
	fields := []any{
		gstypes.NewUCompactFromUInt(r.UID),
		gstypes.NewUCompactFromUInt(r.InstructionID),
		gstypes.NewUCompactFromUInt(r.LegID),
		portfolio(r.From),
		portfolio(r.To),
		[12]byte(r.Ticker),
		gstypes.NewU128(*r.Amount),
	}
	for _, f := range fields {
		if err := enc.Encode(f); err != nil {
			return nil, errors.Wrap(err, "encode receipt")
		}
	}
	return buf.Bytes(), nil
}
