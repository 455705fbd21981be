// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package asset

import (
	"math/big"

	"github.com/stakemesh/stakemesh/builtin/store"
	"github.com/stakemesh/stakemesh/mesh"
)

// SetCompliance turns the receiver policy of ticker on or off.
func (r *Registry) SetCompliance(caller mesh.AccountID, ticker mesh.Ticker, enabled bool) error {
	a, _, err := r.ensureIssuer(caller, ticker)
	if err != nil {
		return err
	}
	a.ComplianceEnabled = enabled
	if err := r.assets.Set(ticker, a); err != nil {
		return err
	}
	return r.events.Emit("ComplianceSet", &struct {
		Ticker  mesh.Ticker
		Enabled bool
	}{ticker, enabled}, tickerTopic(ticker))
}

// AddReceiverPolicy allows did to receive ticker while compliance is on.
func (r *Registry) AddReceiverPolicy(caller mesh.AccountID, ticker mesh.Ticker, did mesh.IdentityID) error {
	if _, _, err := r.ensureIssuer(caller, ticker); err != nil {
		return err
	}
	key := store.NewPair(ticker, did)
	if has, err := r.receivers.Has(key); err != nil {
		return err
	} else if has {
		return ErrDuplicateReceiver
	}
	if err := r.receivers.Set(key, true); err != nil {
		return err
	}
	return r.events.Emit("ReceiverAdded", &Policy{ticker, did}, tickerTopic(ticker), mesh.Bytes32(did))
}

func (r *Registry) RemoveReceiverPolicy(caller mesh.AccountID, ticker mesh.Ticker, did mesh.IdentityID) error {
	if _, _, err := r.ensureIssuer(caller, ticker); err != nil {
		return err
	}
	key := store.NewPair(ticker, did)
	if has, err := r.receivers.Has(key); err != nil {
		return err
	} else if !has {
		return ErrReceiverNotInPolicy
	}
	r.receivers.Delete(key)
	return r.events.Emit("ReceiverRemoved", &Policy{ticker, did}, tickerTopic(ticker), mesh.Bytes32(did))
}

// PreApprove marks pid as pre-approved to receive ticker. Instruction legs
// into a pre-approved portfolio need no receiver affirmation.
func (r *Registry) PreApprove(caller mesh.AccountID, ticker mesh.Ticker, pid mesh.PortfolioID, approved bool) error {
	if _, _, err := r.ensureIssuer(caller, ticker); err != nil {
		return err
	}
	key := store.NewPair(ticker, pid)
	if approved {
		if err := r.preApproved.Set(key, true); err != nil {
			return err
		}
	} else {
		r.preApproved.Delete(key)
	}
	return r.events.Emit("PreApprovalSet", &Approval{ticker, pid}, tickerTopic(ticker), mesh.Bytes32(pid.DID))
}

func (r *Registry) IsPreApproved(ticker mesh.Ticker, pid mesh.PortfolioID) (bool, error) {
	return r.preApproved.Get(store.NewPair(ticker, pid))
}

// ValidateTransfer checks a transfer of amount from one portfolio to
// another. Invalid means the transfer can never happen as stated; Failure
// means the compliance rules reject it now.
func (r *Registry) ValidateTransfer(ticker mesh.Ticker, from, to mesh.PortfolioID, amount *big.Int) (Result, error) {
	a, found, err := r.assets.Find(ticker)
	if err != nil {
		return Invalid, err
	}
	if !found || amount.Sign() <= 0 || from == to {
		return Invalid, nil
	}
	if !a.NonFungible && checkGranularity(a, amount) != nil {
		return Invalid, nil
	}
	if !a.ComplianceEnabled || to.DID == a.Issuer {
		return Success, nil
	}
	ok, err := r.receivers.Get(store.NewPair(ticker, to.DID))
	if err != nil {
		return Invalid, err
	}
	if !ok {
		return Failure, nil
	}
	return Success, nil
}

func resultError(res Result) error {
	switch res {
	case Success:
		return nil
	case Failure:
		return ErrTransferRejected
	default:
		return ErrInvalidTransfer
	}
}

// TransferFungible moves amount of ticker after validating the transfer.
func (r *Registry) TransferFungible(ticker mesh.Ticker, from, to mesh.PortfolioID, amount *big.Int) error {
	res, err := r.ValidateTransfer(ticker, from, to, amount)
	if err != nil {
		return err
	}
	if err := resultError(res); err != nil {
		return err
	}
	return r.holdings.Transfer(from, to, ticker, amount)
}

// TransferNFTs moves tokens of ticker after validating the transfer.
func (r *Registry) TransferNFTs(ticker mesh.Ticker, from, to mesh.PortfolioID, ids []uint64) error {
	res, err := r.ValidateTransfer(ticker, from, to, big.NewInt(int64(len(ids))))
	if err != nil {
		return err
	}
	if err := resultError(res); err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.holdings.TransferNFT(from, to, ticker, id); err != nil {
			return err
		}
	}
	return nil
}
