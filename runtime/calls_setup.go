// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"github.com/stakemesh/stakemesh/builtin/identity"
	"github.com/stakemesh/stakemesh/builtin/portfolio"
	"github.com/stakemesh/stakemesh/mesh"
)

type Transfer struct {
	To     mesh.AccountID `yaml:"to"`
	Amount *mesh.Amount   `yaml:"amount"`
}

func (c *Transfer) Dispatch(m *Modules, o Origin) error {
	from, err := o.signed()
	if err != nil {
		return err
	}
	return m.Balances.Transfer(from, c.To, c.Amount.Big())
}

// RegisterIdentity is a root call standing in for a CDD provider.
type RegisterIdentity struct {
	DID     mesh.IdentityID `yaml:"did"`
	Primary mesh.AccountID  `yaml:"primary"`
}

func (c *RegisterIdentity) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Identity.RegisterIdentity(c.DID, c.Primary)
}

type SetCDD struct {
	DID   mesh.IdentityID `yaml:"did"`
	Valid bool            `yaml:"valid"`
}

func (c *SetCDD) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Identity.SetCDD(c.DID, c.Valid)
}

// AddSecondaryKey is signed by the primary key. A restricted key may only
// act on Portfolios.
type AddSecondaryKey struct {
	Key        mesh.AccountID     `yaml:"key"`
	Restricted bool               `yaml:"restricted"`
	Portfolios []mesh.PortfolioID `yaml:"portfolios"`
}

func (c *AddSecondaryKey) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Identity.AddSecondaryKey(caller, c.Key, identity.Permissions{
		Restricted: c.Restricted,
		Portfolios: c.Portfolios,
	})
}

type RemoveSecondaryKey struct {
	Key mesh.AccountID `yaml:"key"`
}

func (c *RemoveSecondaryKey) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Identity.RemoveSecondaryKey(caller, c.Key)
}

type CreateAsset struct {
	Ticker      mesh.Ticker `yaml:"ticker"`
	Divisible   bool        `yaml:"divisible"`
	NonFungible bool        `yaml:"non-fungible"`
}

func (c *CreateAsset) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Assets.CreateAsset(caller, c.Ticker, c.Divisible, c.NonFungible)
}

type Issue struct {
	Ticker mesh.Ticker  `yaml:"ticker"`
	Amount *mesh.Amount `yaml:"amount"`
}

func (c *Issue) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Assets.Issue(caller, c.Ticker, c.Amount.Big())
}

type MintNFT struct {
	Ticker mesh.Ticker `yaml:"ticker"`
	IDs    []uint64    `yaml:"ids"`
}

func (c *MintNFT) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Assets.MintNFT(caller, c.Ticker, c.IDs)
}

type SetAssetCompliance struct {
	Ticker  mesh.Ticker `yaml:"ticker"`
	Enabled bool        `yaml:"enabled"`
}

func (c *SetAssetCompliance) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Assets.SetCompliance(caller, c.Ticker, c.Enabled)
}

type AddReceiverPolicy struct {
	Ticker mesh.Ticker     `yaml:"ticker"`
	DID    mesh.IdentityID `yaml:"did"`
}

func (c *AddReceiverPolicy) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Assets.AddReceiverPolicy(caller, c.Ticker, c.DID)
}

type PreApprovePortfolio struct {
	Ticker    mesh.Ticker      `yaml:"ticker"`
	Portfolio mesh.PortfolioID `yaml:"portfolio"`
	Approved  bool             `yaml:"approved"`
}

func (c *PreApprovePortfolio) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Assets.PreApprove(caller, c.Ticker, c.Portfolio, c.Approved)
}

type CreatePortfolio struct {
	Name string `yaml:"name"`
}

func (c *CreatePortfolio) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	did, err := m.signerIdentity(caller)
	if err != nil {
		return err
	}
	_, err = m.Portfolio.CreatePortfolio(did, c.Name)
	return err
}

type RenamePortfolio struct {
	Number mesh.PortfolioNumber `yaml:"number"`
	Name   string               `yaml:"name"`
}

func (c *RenamePortfolio) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	did, err := m.signerIdentity(caller)
	if err != nil {
		return err
	}
	return m.Portfolio.RenamePortfolio(did, c.Number, c.Name)
}

type DeletePortfolio struct {
	Number mesh.PortfolioNumber `yaml:"number"`
}

func (c *DeletePortfolio) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	did, err := m.signerIdentity(caller)
	if err != nil {
		return err
	}
	return m.Portfolio.DeletePortfolio(did, c.Number)
}

// Fund is an item of a MovePortfolioFunds call.
type Fund struct {
	Ticker mesh.Ticker  `yaml:"ticker"`
	Amount *mesh.Amount `yaml:"amount"`
	NFTs   []uint64     `yaml:"nfts"`
	Memo   string       `yaml:"memo"`
}

type MovePortfolioFunds struct {
	From  mesh.PortfolioID `yaml:"from"`
	To    mesh.PortfolioID `yaml:"to"`
	Funds []Fund           `yaml:"funds"`
}

func (c *MovePortfolioFunds) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	items := make([]portfolio.Fund, 0, len(c.Funds))
	for _, f := range c.Funds {
		item := portfolio.Fund{Ticker: f.Ticker, NFTs: f.NFTs, Memo: f.Memo}
		if f.Amount != nil {
			item.Amount = f.Amount.Big()
		}
		items = append(items, item)
	}
	return m.Portfolio.MoveFunds(caller, c.From, c.To, items)
}

type AuthorizeCustody struct {
	Portfolio mesh.PortfolioID `yaml:"portfolio"`
	Target    mesh.IdentityID  `yaml:"target"`
}

func (c *AuthorizeCustody) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Portfolio.AuthorizeCustody(caller, c.Portfolio, c.Target)
}

type AcceptCustody struct {
	Portfolio mesh.PortfolioID `yaml:"portfolio"`
}

func (c *AcceptCustody) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Portfolio.AcceptCustody(caller, c.Portfolio)
}
