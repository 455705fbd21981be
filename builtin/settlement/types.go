// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/settlement/receipt"
	"github.com/stakemesh/stakemesh/mesh"
)

const module = "settlement"

var (
	ErrUnknownInstruction       = reverts.New(reverts.State, module, "unknown instruction")
	ErrInstructionNotPending    = reverts.New(reverts.State, module, "instruction is not pending")
	ErrNotExecutable            = reverts.New(reverts.State, module, "instruction is not pending or failed")
	ErrPendingAffirmations      = reverts.New(reverts.State, module, "instruction has pending affirmations")
	ErrUnexpectedAffirmation    = reverts.New(reverts.State, module, "unexpected affirmation status")
	ErrUnexpectedLegStatus      = reverts.New(reverts.State, module, "unexpected leg status")
	ErrLegNotFound              = reverts.New(reverts.State, module, "leg not found")
	ErrNoSuchAsset              = reverts.New(reverts.State, module, "no such asset")
	ErrNoTokens                 = reverts.New(reverts.Amount, module, "non-fungible leg without tokens")
	ErrNotFungible              = reverts.New(reverts.State, module, "asset is non-fungible")
	ErrNotNonFungible           = reverts.New(reverts.State, module, "asset is fungible")
	ErrNotManual                = reverts.New(reverts.State, module, "instruction cannot be executed manually")
	ErrNotParty                 = reverts.New(reverts.Authorization, module, "caller is not a party of the instruction")
	ErrMissingIdentity          = reverts.New(reverts.Authorization, module, "caller has no identity")
	ErrVenueNotAllowed          = reverts.New(reverts.Authorization, module, "venue not allowed for asset")
	ErrUnauthorizedSigner       = reverts.New(reverts.Authorization, module, "signer is not a venue signer")
	ErrNoLegs                   = reverts.New(reverts.Capacity, module, "instruction has no legs")
	ErrMaxFungibleLegs          = reverts.New(reverts.Capacity, module, "too many fungible legs")
	ErrMaxNFTLegs               = reverts.New(reverts.Capacity, module, "too many non-fungible legs")
	ErrMaxOffChainLegs          = reverts.New(reverts.Capacity, module, "too many off-chain legs")
	ErrMaxNFTsPerLeg            = reverts.New(reverts.Capacity, module, "too many tokens in leg")
	ErrLegCountUnderestimated   = reverts.New(reverts.Capacity, module, "number of legs underestimated")
	ErrZeroAmount               = reverts.New(reverts.Amount, module, "zero amount")
	ErrSameSenderReceiver       = reverts.New(reverts.Amount, module, "sender and receiver are the same")
	ErrDuplicateNFT             = reverts.New(reverts.Amount, module, "duplicate token in leg")
	ErrSettleOnPastBlock        = reverts.New(reverts.Timing, module, "settlement block in the past")
	ErrSettleBlockNotReached    = reverts.New(reverts.Timing, module, "settlement block not reached")
	ErrSettleBlockPassed        = reverts.New(reverts.Timing, module, "settlement block passed")
	ErrInvalidDates             = reverts.New(reverts.Timing, module, "value date before trade date")
	ErrDuplicateReceiptUID      = reverts.New(reverts.Receipt, module, "duplicate receipt uid in batch")
	ErrMultipleReceiptsForLeg   = reverts.New(reverts.Receipt, module, "multiple receipts for one leg")
	ErrReceiptForNonOffChainLeg = reverts.New(reverts.Receipt, module, "receipt for a leg that is not off-chain")
	ErrInstructionFailed        = reverts.New(reverts.Execution, module, "instruction failed to execute")
)

// LegKind tells how a leg moves value.
type LegKind uint8

const (
	Fungible LegKind = iota
	NonFungible
	OffChain
)

func (k LegKind) String() string {
	switch k {
	case Fungible:
		return "fungible"
	case NonFungible:
		return "non-fungible"
	default:
		return "off-chain"
	}
}

func (k *LegKind) UnmarshalText(text []byte) error {
	for _, v := range []LegKind{Fungible, NonFungible, OffChain} {
		if v.String() == string(text) {
			*k = v
			return nil
		}
	}
	return errors.Errorf("unknown leg kind %q", text)
}

// Leg is one transfer of an instruction. Off-chain legs name the
// portfolios of the parties but move nothing on chain.
type Leg struct {
	Kind   LegKind
	From   mesh.PortfolioID
	To     mesh.PortfolioID
	Ticker mesh.Ticker
	Amount *big.Int
	NFTs   []uint64
}

// SettlementKind tells when an instruction executes.
type SettlementKind uint8

const (
	// OnAffirmation executes in the block after the last affirmation.
	OnAffirmation SettlementKind = iota
	// OnBlock executes at a fixed block.
	OnBlock
	// Manual waits for a party to execute it once the block is reached.
	Manual
)

func (k SettlementKind) String() string {
	switch k {
	case OnAffirmation:
		return "on-affirmation"
	case OnBlock:
		return "on-block"
	default:
		return "manual"
	}
}

func (k *SettlementKind) UnmarshalText(text []byte) error {
	for _, v := range []SettlementKind{OnAffirmation, OnBlock, Manual} {
		if v.String() == string(text) {
			*k = v
			return nil
		}
	}
	return errors.Errorf("unknown settlement type %q", text)
}

type SettlementType struct {
	Kind  SettlementKind
	Block mesh.BlockNumber
}

// Status is the lifecycle state of an instruction.
type Status uint8

const (
	Unknown Status = iota
	Pending
	Failed
	Rejected
	Success
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	case Rejected:
		return "rejected"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

type Instruction struct {
	ID         uint64
	Venue      uint64
	Status     Status
	Settlement SettlementType
	CreatedAt  mesh.Moment
	TradeDate  mesh.Moment
	ValueDate  mesh.Moment
	Memo       string
}

// AffirmationStatus is the affirmation state of a party.
type AffirmationStatus uint8

const (
	AffirmationUnknown AffirmationStatus = iota
	AffirmationPending
	Affirmed
)

// LegStatus is where a leg is in its lifecycle.
type LegStatus uint8

const (
	PendingTokenLock LegStatus = iota
	ExecutionPending
	ExecutionToBeSkipped
)

// LegState is the status of a leg. Signer and UID identify the receipt
// that settled an off-chain leg.
type LegState struct {
	Status LegStatus
	Signer mesh.AccountID
	UID    uint64
}

// ReceiptDetails settles an off-chain leg with a signed receipt.
type ReceiptDetails struct {
	UID       uint64
	LegID     uint64
	Signer    mesh.AccountID
	Signature receipt.Signature
	Metadata  string
}

// LegCounts are the number of legs of each kind.
type LegCounts struct {
	Fungible    uint32
	NonFungible uint32
	OffChain    uint32
}

// Event payloads.
type (
	InstructionCreated struct {
		ID         uint64
		Venue      uint64
		Creator    mesh.IdentityID
		Settlement SettlementType
		Legs       []*Leg
		Memo       string
	}
	InstructionEvent struct {
		ID uint64
	}
	PortfolioEvent struct {
		ID        uint64
		Portfolio mesh.PortfolioID
	}
	LegFailed struct {
		ID  uint64
		Leg uint64
	}
	ReceiptEvent struct {
		ID       uint64
		Leg      uint64
		UID      uint64
		Signer   mesh.AccountID
		Metadata string
	}
)
