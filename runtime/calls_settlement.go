// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/stakemesh/stakemesh/builtin/settlement"
	"github.com/stakemesh/stakemesh/builtin/settlement/receipt"
	"github.com/stakemesh/stakemesh/builtin/settlement/venue"
	"github.com/stakemesh/stakemesh/mesh"
)

type CreateVenue struct {
	Details string           `yaml:"details"`
	Signers []mesh.AccountID `yaml:"signers"`
	Type    venue.Type       `yaml:"type"`
}

func (c *CreateVenue) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	_, err = m.Settlement.Venues().Create(caller, c.Details, c.Signers, c.Type)
	return err
}

type UpdateVenueDetails struct {
	Venue   uint64 `yaml:"venue"`
	Details string `yaml:"details"`
}

func (c *UpdateVenueDetails) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.Venues().UpdateDetails(caller, c.Venue, c.Details)
}

type UpdateVenueType struct {
	Venue uint64     `yaml:"venue"`
	Type  venue.Type `yaml:"type"`
}

func (c *UpdateVenueType) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.Venues().UpdateType(caller, c.Venue, c.Type)
}

// UpdateVenueSigners adds Signers, or removes them when Add is false.
type UpdateVenueSigners struct {
	Venue   uint64           `yaml:"venue"`
	Signers []mesh.AccountID `yaml:"signers"`
	Add     bool             `yaml:"add"`
}

func (c *UpdateVenueSigners) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.Venues().UpdateSigners(caller, c.Venue, c.Signers, c.Add)
}

type SetVenueFiltering struct {
	Ticker  mesh.Ticker `yaml:"ticker"`
	Enabled bool        `yaml:"enabled"`
}

func (c *SetVenueFiltering) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.Venues().SetFiltering(caller, c.Ticker, c.Enabled)
}

type AllowVenues struct {
	Ticker mesh.Ticker `yaml:"ticker"`
	Venues []uint64    `yaml:"venues"`
}

func (c *AllowVenues) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.Venues().AllowVenues(caller, c.Ticker, c.Venues)
}

type DisallowVenues struct {
	Ticker mesh.Ticker `yaml:"ticker"`
	Venues []uint64    `yaml:"venues"`
}

func (c *DisallowVenues) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.Venues().DisallowVenues(caller, c.Ticker, c.Venues)
}

// Leg is a leg argument. Amount is ignored for non-fungible legs.
type Leg struct {
	Kind   settlement.LegKind `yaml:"kind"`
	From   mesh.PortfolioID   `yaml:"from"`
	To     mesh.PortfolioID   `yaml:"to"`
	Ticker mesh.Ticker        `yaml:"ticker"`
	Amount *mesh.Amount       `yaml:"amount"`
	NFTs   []uint64           `yaml:"nfts"`
}

func toLegs(in []Leg) []*settlement.Leg {
	out := make([]*settlement.Leg, 0, len(in))
	for _, l := range in {
		out = append(out, &settlement.Leg{
			Kind:   l.Kind,
			From:   l.From,
			To:     l.To,
			Ticker: l.Ticker,
			Amount: l.Amount.Big(),
			NFTs:   l.NFTs,
		})
	}
	return out
}

type Settlement struct {
	Type  settlement.SettlementKind `yaml:"type"`
	Block mesh.BlockNumber          `yaml:"block"`
}

type AddInstruction struct {
	Venue      uint64      `yaml:"venue"`
	Settlement Settlement  `yaml:"settlement"`
	TradeDate  mesh.Moment `yaml:"trade-date"`
	ValueDate  mesh.Moment `yaml:"value-date"`
	Legs       []Leg       `yaml:"legs"`
	Memo       string      `yaml:"memo"`
}

func (c *AddInstruction) settlement() settlement.SettlementType {
	return settlement.SettlementType{Kind: c.Settlement.Type, Block: c.Settlement.Block}
}

func (c *AddInstruction) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	_, err = m.Settlement.AddInstruction(caller, c.Venue, c.settlement(), c.TradeDate, c.ValueDate, toLegs(c.Legs), c.Memo)
	return err
}

type AddAndAffirmInstruction struct {
	AddInstruction `yaml:",inline"`
	Portfolios     []mesh.PortfolioID `yaml:"portfolios"`
}

func (c *AddAndAffirmInstruction) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	_, err = m.Settlement.AddAndAffirmInstruction(
		caller, c.Venue, c.settlement(), c.TradeDate, c.ValueDate, toLegs(c.Legs), c.Memo, c.Portfolios)
	return err
}

type AffirmInstruction struct {
	ID         uint64             `yaml:"id"`
	Portfolios []mesh.PortfolioID `yaml:"portfolios"`
}

func (c *AffirmInstruction) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.Affirm(caller, c.ID, c.Portfolios)
}

// Receipt is a signed off-chain receipt argument.
type Receipt struct {
	UID       uint64         `yaml:"uid"`
	Leg       uint64         `yaml:"leg"`
	Signer    mesh.AccountID `yaml:"signer"`
	Scheme    receipt.Scheme `yaml:"scheme"`
	Signature hexutil.Bytes  `yaml:"signature"`
	Metadata  string         `yaml:"metadata"`
}

type AffirmWithReceipts struct {
	ID         uint64             `yaml:"id"`
	Receipts   []Receipt          `yaml:"receipts"`
	Portfolios []mesh.PortfolioID `yaml:"portfolios"`
}

func (c *AffirmWithReceipts) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	details := make([]settlement.ReceiptDetails, 0, len(c.Receipts))
	for _, r := range c.Receipts {
		details = append(details, settlement.ReceiptDetails{
			UID:       r.UID,
			LegID:     r.Leg,
			Signer:    r.Signer,
			Signature: receipt.Signature{Scheme: r.Scheme, Bytes: r.Signature},
			Metadata:  r.Metadata,
		})
	}
	return m.Settlement.AffirmWithReceipts(caller, c.ID, details, c.Portfolios)
}

type WithdrawAffirmation struct {
	ID         uint64             `yaml:"id"`
	Portfolios []mesh.PortfolioID `yaml:"portfolios"`
}

func (c *WithdrawAffirmation) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.WithdrawAffirmation(caller, c.ID, c.Portfolios)
}

type RejectInstruction struct {
	ID        uint64           `yaml:"id"`
	Portfolio mesh.PortfolioID `yaml:"portfolio"`
}

func (c *RejectInstruction) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.RejectInstruction(caller, c.ID, c.Portfolio)
}

// ExecuteManualInstruction carries the caller's upper bound of the leg
// counts, which must not be below the real ones.
type ExecuteManualInstruction struct {
	ID           uint64 `yaml:"id"`
	FungibleLegs uint32 `yaml:"fungible-legs"`
	NFTLegs      uint32 `yaml:"nft-legs"`
	OffChainLegs uint32 `yaml:"offchain-legs"`
}

func (c *ExecuteManualInstruction) Dispatch(m *Modules, o Origin) error {
	caller, err := o.signed()
	if err != nil {
		return err
	}
	return m.Settlement.ExecuteManual(caller, c.ID, settlement.LegCounts{
		Fungible:    c.FungibleLegs,
		NonFungible: c.NFTLegs,
		OffChain:    c.OffChainLegs,
	})
}

// ExecuteScheduledInstruction is queued by the settlement engine.
type ExecuteScheduledInstruction struct {
	ID uint64 `yaml:"id"`
}

func (c *ExecuteScheduledInstruction) bind(id uint64) { c.ID = id }

func (c *ExecuteScheduledInstruction) Dispatch(m *Modules, o Origin) error {
	if err := o.ensureRoot(); err != nil {
		return err
	}
	return m.Settlement.ExecuteScheduled(c.ID)
}
