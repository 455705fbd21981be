// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package portfolio

import (
	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// NFTOwner returns the portfolio holding token id of ticker.
func (p *Portfolio) NFTOwner(ticker mesh.Ticker, id uint64) (mesh.PortfolioID, bool, error) {
	return p.nftOwner.Find(store.NewPair(ticker, store.U64(id)))
}

// NFTCount returns how many tokens of ticker pid holds.
func (p *Portfolio) NFTCount(pid mesh.PortfolioID, ticker mesh.Ticker) (uint64, error) {
	return p.nftCount.Get(store.NewPair(pid, ticker))
}

func (p *Portfolio) IsNFTLocked(ticker mesh.Ticker, id uint64) (bool, error) {
	return p.nftLocked.Get(store.NewPair(ticker, store.U64(id)))
}

func (p *Portfolio) adjustNFTCount(pid mesh.PortfolioID, ticker mesh.Ticker, delta int64) error {
	key := store.NewPair(pid, ticker)
	n, err := p.nftCount.Get(key)
	if err != nil {
		return err
	}
	next := uint64(int64(n) + delta)
	switch {
	case n == 0 && next > 0:
		if err := p.adjustHoldings(pid, 1); err != nil {
			return err
		}
	case n > 0 && next == 0:
		if err := p.adjustHoldings(pid, -1); err != nil {
			return err
		}
	}
	if next == 0 {
		p.nftCount.Delete(key)
		return nil
	}
	return p.nftCount.Set(key, next)
}

// MintNFT places a new token in pid.
func (p *Portfolio) MintNFT(pid mesh.PortfolioID, ticker mesh.Ticker, id uint64) error {
	key := store.NewPair(ticker, store.U64(id))
	if has, err := p.nftOwner.Has(key); err != nil {
		return err
	} else if has {
		return ErrNFTExists
	}
	if err := p.nftOwner.Set(key, pid); err != nil {
		return err
	}
	return p.adjustNFTCount(pid, ticker, 1)
}

func (p *Portfolio) ensureNFTOwner(pid mesh.PortfolioID, ticker mesh.Ticker, id uint64) error {
	owner, found, err := p.NFTOwner(ticker, id)
	if err != nil {
		return err
	}
	if !found || owner != pid {
		return ErrNFTNotOwned
	}
	return nil
}

// LockNFT marks a held token as locked.
func (p *Portfolio) LockNFT(pid mesh.PortfolioID, ticker mesh.Ticker, id uint64) error {
	if err := p.ensureNFTOwner(pid, ticker, id); err != nil {
		return err
	}
	key := store.NewPair(ticker, store.U64(id))
	locked, err := p.nftLocked.Get(key)
	if err != nil {
		return err
	}
	if locked {
		return ErrNFTLocked
	}
	return p.nftLocked.Set(key, true)
}

func (p *Portfolio) UnlockNFT(pid mesh.PortfolioID, ticker mesh.Ticker, id uint64) error {
	if err := p.ensureNFTOwner(pid, ticker, id); err != nil {
		return err
	}
	key := store.NewPair(ticker, store.U64(id))
	locked, err := p.nftLocked.Get(key)
	if err != nil {
		return err
	}
	if !locked {
		return ErrNFTNotLocked
	}
	p.nftLocked.Delete(key)
	return nil
}

// TransferNFT moves an unlocked token between portfolios.
func (p *Portfolio) TransferNFT(from, to mesh.PortfolioID, ticker mesh.Ticker, id uint64) error {
	if err := p.ensureExists(to); err != nil {
		return err
	}
	if err := p.ensureNFTOwner(from, ticker, id); err != nil {
		return err
	}
	key := store.NewPair(ticker, store.U64(id))
	locked, err := p.nftLocked.Get(key)
	if err != nil {
		return err
	}
	if locked {
		return ErrNFTLocked
	}
	if err := p.nftOwner.Set(key, to); err != nil {
		return err
	}
	if err := p.adjustNFTCount(from, ticker, -1); err != nil {
		return err
	}
	return p.adjustNFTCount(to, ticker, 1)
}
