// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"math/big"
	"sync/atomic"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/stakemesh/stakemesh/builtin/settlement/receipt"
	"github.com/stakemesh/stakemesh/builtin/settlement/venue"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/mesh"
)

// DevAccount account for development.
type DevAccount struct {
	ID         mesh.AccountID
	DID        mesh.IdentityID
	PrivateKey *secp256k1.PrivateKey
}

var devAccounts atomic.Value

// DevAccounts returns pre-alloced accounts for the dev network. Each one
// has its own identity.
func DevAccounts() []DevAccount {
	if accs := devAccounts.Load(); accs != nil {
		return accs.([]DevAccount)
	}

	var accs []DevAccount
	privKeys := []string{
		"dce1443bd2ef0c2631adc1c67e5c93f13dc23a41c18b536effbbdcbcdb96fb65",
		"321d6443bc6177273b5abf54210fe806d451d6b7973bccc2384ef78bbcd0bf51",
		"2d7c882bad2a01105e36dda3646693bc1aaaa45b0ed63fb0ce23c060294f3af2",
		"593537225b037191d322c3b1df585fb1e5100811b71a6f7fc7e29cca1333483e",
		"ca7b25fc980c759df5f3ce17a3d881d6e19a38e651fc4315fc08917edab41058",
		"88d2d80b12b92feaa0da6d62309463d20408157723f2d7e799b6a74ead9a673b",
		"fbb9e7ba5fe9969a71c6599052237b91adeb1e5fc0c96727b66e56ff5d02f9d0",
		"547fb081e73dc2e22b4aae5c60e2970b008ac4fc3073aebc27d41ace9c4f53e9",
		"c8c53657e41a8d669349fc287f57457bd746cb1fcfc38cf94d235deb2cfca81b",
		"87e0eba9c86c494d98353800571089f316740b0cb84c9a7cdf2fe5c9997c7966",
	}
	for i, str := range privKeys {
		pk := secp256k1.PrivKeyFromBytes(hexutil.MustDecode("0x" + str))
		accs = append(accs, DevAccount{
			ID:         receipt.SecpAccount(pk.PubKey()),
			DID:        mesh.NumberedIdentity(uint64(i + 1)),
			PrivateKey: pk,
		})
	}
	devAccounts.Store(accs)
	return accs
}

// DevTicker is the asset issued by the fifth dev account.
var DevTicker = mesh.MustParseTicker("DEV")

// DevLaunchTime is 2025-01-01T00:00:00Z.
const DevLaunchTime = mesh.Moment(1_735_689_600_000)

var devUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

func devAmount(n int64) *mesh.Amount {
	return (*mesh.Amount)(new(big.Int).Mul(big.NewInt(n), devUnit))
}

// NewDevnet create genesis for the dev network: ten funded dev accounts
// with valid CDD, three validators bonding to themselves, a nominator
// backing all of them, the DEV asset and an exchange venue.
func NewDevnet(launchTime mesh.Moment) *Spec {
	accs := DevAccounts()
	spec := &Spec{LaunchTime: launchTime}
	for _, a := range accs {
		spec.Accounts = append(spec.Accounts, Account{Address: a.ID, Balance: devAmount(1_000_000)})
		spec.Identities = append(spec.Identities, Identity{DID: a.DID, Primary: a.ID, CDD: true})
	}

	var targets []mesh.AccountID
	for _, a := range accs[:3] {
		spec.Validators = append(spec.Validators, Validator{
			Bond:       Bond{Stash: a.ID, Controller: a.ID, Value: devAmount(100_000), Payee: types.Staked},
			Commission: mesh.PerbillFromPercent(5),
		})
		targets = append(targets, a.ID)
	}
	spec.Nominators = []Nominator{{
		Bond:    Bond{Stash: accs[3].ID, Controller: accs[3].ID, Value: devAmount(50_000), Payee: types.Stash},
		Targets: targets,
	}}

	spec.Assets = []Asset{{
		Ticker:    DevTicker,
		Owner:     accs[4].ID,
		Divisible: true,
		Supply:    devAmount(1_000_000),
	}}
	spec.Venues = []Venue{{
		Creator: accs[4].ID,
		Details: "dev exchange",
		Type:    venue.Exchange,
		Signers: []mesh.AccountID{accs[5].ID},
	}}
	return spec
}
