// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"reflect"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stakemesh/stakemesh/builtin/reverts"
	"github.com/stakemesh/stakemesh/builtin/settlement"
	"github.com/stakemesh/stakemesh/mesh"
)

// ErrBadOrigin rejects a signed call dispatched as root and the other way
// around.
var ErrBadOrigin = reverts.New(reverts.Authorization, "runtime", "bad origin")

// Origin is who dispatches a call: a signing account, or governance.
type Origin struct {
	Signer mesh.AccountID
	Root   bool
}

func (o Origin) signed() (mesh.AccountID, error) {
	if o.Root {
		return mesh.AccountID{}, ErrBadOrigin
	}
	return o.Signer, nil
}

func (o Origin) ensureRoot() error {
	if !o.Root {
		return ErrBadOrigin
	}
	return nil
}

// Call is a dispatchable runtime call. The struct fields are its
// arguments.
type Call interface {
	Dispatch(m *Modules, origin Origin) error
}

// taskCall is a root call the scheduler can queue with a single argument.
type taskCall interface {
	Call
	bind(arg uint64)
}

var registry = map[string]func() Call{
	// staking
	"bond":                    func() Call { return new(Bond) },
	"bond_extra":              func() Call { return new(BondExtra) },
	"unbond":                  func() Call { return new(Unbond) },
	"withdraw_unbonded":       func() Call { return new(WithdrawUnbonded) },
	"validate":                func() Call { return new(Validate) },
	"nominate":                func() Call { return new(Nominate) },
	"chill":                   func() Call { return new(Chill) },
	"set_payee":               func() Call { return new(SetPayee) },
	"set_controller":          func() Call { return new(SetController) },
	"set_validator_count":     func() Call { return new(SetValidatorCount) },
	"add_potential_validator": func() Call { return new(AddPotentialValidator) },
	"remove_validator":        func() Call { return new(RemoveValidator) },
	"compliance_failed":       func() Call { return new(ComplianceFailed) },
	"compliance_passed":       func() Call { return new(CompliancePassed) },
	"force_no_eras":           func() Call { return new(ForceNoEras) },
	"force_new_era":           func() Call { return new(ForceNewEra) },
	"force_new_era_always":    func() Call { return new(ForceNewEraAlways) },
	"set_invulnerables":       func() Call { return new(SetInvulnerables) },
	"force_unstake":           func() Call { return new(ForceUnstake) },
	"cancel_deferred_slash":   func() Call { return new(CancelDeferredSlash) },
	"report_offence":          func() Call { return new(ReportOffence) },

	// settlement
	"create_venue":               func() Call { return new(CreateVenue) },
	"update_venue_details":       func() Call { return new(UpdateVenueDetails) },
	"update_venue_type":          func() Call { return new(UpdateVenueType) },
	"update_venue_signers":       func() Call { return new(UpdateVenueSigners) },
	"set_venue_filtering":        func() Call { return new(SetVenueFiltering) },
	"allow_venues":               func() Call { return new(AllowVenues) },
	"disallow_venues":            func() Call { return new(DisallowVenues) },
	"add_instruction":            func() Call { return new(AddInstruction) },
	"add_and_affirm_instruction": func() Call { return new(AddAndAffirmInstruction) },
	"affirm_instruction":         func() Call { return new(AffirmInstruction) },
	"affirm_with_receipts":       func() Call { return new(AffirmWithReceipts) },
	"withdraw_affirmation":       func() Call { return new(WithdrawAffirmation) },
	"reject_instruction":         func() Call { return new(RejectInstruction) },
	"execute_manual_instruction": func() Call { return new(ExecuteManualInstruction) },
	settlement.ExecuteCall:       func() Call { return new(ExecuteScheduledInstruction) },

	// accounts, identities, assets and portfolios
	"transfer":              func() Call { return new(Transfer) },
	"register_identity":     func() Call { return new(RegisterIdentity) },
	"set_cdd":               func() Call { return new(SetCDD) },
	"add_secondary_key":     func() Call { return new(AddSecondaryKey) },
	"remove_secondary_key":  func() Call { return new(RemoveSecondaryKey) },
	"create_asset":          func() Call { return new(CreateAsset) },
	"issue":                 func() Call { return new(Issue) },
	"mint_nft":              func() Call { return new(MintNFT) },
	"set_asset_compliance":  func() Call { return new(SetAssetCompliance) },
	"add_receiver_policy":   func() Call { return new(AddReceiverPolicy) },
	"pre_approve_portfolio": func() Call { return new(PreApprovePortfolio) },
	"create_portfolio":      func() Call { return new(CreatePortfolio) },
	"rename_portfolio":      func() Call { return new(RenamePortfolio) },
	"delete_portfolio":      func() Call { return new(DeletePortfolio) },
	"move_portfolio_funds":  func() Call { return new(MovePortfolioFunds) },
	"authorize_custody":     func() Call { return new(AuthorizeCustody) },
	"accept_custody":        func() Call { return new(AcceptCustody) },
}

var callNames = func() map[reflect.Type]string {
	names := make(map[reflect.Type]string, len(registry))
	for name, mk := range registry {
		names[reflect.TypeOf(mk())] = name
	}
	return names
}()

// CallName returns the name c is dispatched under.
func CallName(c Call) string {
	if name, ok := callNames[reflect.TypeOf(c)]; ok {
		return name
	}
	return "unknown"
}

// CallNames lists every known call.
func CallNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// DecodeCall builds the call named name from its YAML arguments. A nil or
// empty node leaves every argument zero.
func DecodeCall(name string, args *yaml.Node) (Call, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown call %q", name)
	}
	c := mk()
	if args != nil && args.Kind != 0 {
		if err := args.Decode(c); err != nil {
			return nil, errors.Wrapf(err, "decode %s", name)
		}
	}
	return c, nil
}

// Extrinsic is a call with its origin, as it appears in a block.
type Extrinsic struct {
	Signer mesh.AccountID
	Root   bool
	Call   Call
}

// Signed makes an extrinsic signed by signer.
func Signed(signer mesh.AccountID, c Call) *Extrinsic {
	return &Extrinsic{Signer: signer, Call: c}
}

// Root makes a governance extrinsic.
func Root(c Call) *Extrinsic {
	return &Extrinsic{Root: true, Call: c}
}

func (x *Extrinsic) Origin() Origin {
	return Origin{Signer: x.Signer, Root: x.Root}
}

// UnmarshalYAML reads
//
//	signer: <account>   # or root: true
//	call: <name>
//	args: {...}
func (x *Extrinsic) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Signer *mesh.AccountID `yaml:"signer"`
		Root   bool            `yaml:"root"`
		Call   string          `yaml:"call"`
		Args   yaml.Node       `yaml:"args"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Root == (raw.Signer != nil) {
		return errors.Errorf("line %d: extrinsic needs exactly one of signer or root", node.Line)
	}
	c, err := DecodeCall(raw.Call, &raw.Args)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	x.Root = raw.Root
	if raw.Signer != nil {
		x.Signer = *raw.Signer
	}
	x.Call = c
	return nil
}
