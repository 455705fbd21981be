// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package portfolio

import (
	"math/big"

	"github.com/stakemesh/stakemesh/mesh"
)

// Fund is one item of a move between portfolios: an amount of a fungible
// asset, or a set of tokens.
type Fund struct {
	Ticker mesh.Ticker
	Amount *big.Int `rlp:"nil"`
	NFTs   []uint64
	Memo   string
}

// MoveFunds moves items between two portfolios of the same identity. The
// caller must be custodian of the source.
func (p *Portfolio) MoveFunds(caller mesh.AccountID, from, to mesh.PortfolioID, items []Fund) error {
	if from == to {
		return ErrSamePortfolio
	}
	if from.DID != to.DID {
		return ErrDifferentIdentity
	}
	if _, err := p.EnsureCustody(caller, from); err != nil {
		return err
	}
	if err := p.ensureExists(to); err != nil {
		return err
	}
	for _, item := range items {
		if item.Amount != nil && item.Amount.Sign() > 0 {
			if err := p.Transfer(from, to, item.Ticker, item.Amount); err != nil {
				return err
			}
		}
		for _, id := range item.NFTs {
			if err := p.TransferNFT(from, to, item.Ticker, id); err != nil {
				return err
			}
		}
		if err := p.events.Emit("FundsMoved", &Moved{from, to, item}, mesh.Bytes32(from.DID)); err != nil {
			return err
		}
	}
	return nil
}

type Moved struct {
	From mesh.PortfolioID
	To   mesh.PortfolioID
	Fund Fund
}
