// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stakemesh/stakemesh/builtin/identity"
	"github.com/stakemesh/stakemesh/builtin/settlement/venue"
	"github.com/stakemesh/stakemesh/builtin/staking/types"
	"github.com/stakemesh/stakemesh/mesh"
	"github.com/stakemesh/stakemesh/runtime"
)

// Spec is a user customized genesis.
type Spec struct {
	LaunchTime mesh.Moment `yaml:"launch-time"`
	Accounts   []Account   `yaml:"accounts"`
	Identities []Identity  `yaml:"identities"`
	Assets     []Asset     `yaml:"assets"`
	Validators []Validator `yaml:"validators"`
	Nominators []Nominator `yaml:"nominators"`
	Venues     []Venue     `yaml:"venues"`
}

// Account is an endowed account.
type Account struct {
	Address mesh.AccountID `yaml:"address"`
	Balance *mesh.Amount   `yaml:"balance"`
}

// Identity is a registered DID. Secondary keys are unrestricted.
type Identity struct {
	DID       mesh.IdentityID  `yaml:"did"`
	Primary   mesh.AccountID   `yaml:"primary"`
	CDD       bool             `yaml:"cdd"`
	Secondary []mesh.AccountID `yaml:"secondary"`
}

// Asset is created by the identity of Owner, which must be one of the
// genesis identity keys.
type Asset struct {
	Ticker      mesh.Ticker    `yaml:"ticker"`
	Owner       mesh.AccountID `yaml:"owner"`
	Divisible   bool           `yaml:"divisible"`
	NonFungible bool           `yaml:"non-fungible"`
	Supply      *mesh.Amount   `yaml:"supply"`
	NFTs        []uint64       `yaml:"nfts"`
}

// Bond is the bonding part shared by validators and nominators.
type Bond struct {
	Stash      mesh.AccountID          `yaml:"stash"`
	Controller mesh.AccountID          `yaml:"controller"`
	Value      *mesh.Amount            `yaml:"value"`
	Payee      types.RewardDestination `yaml:"payee"`
}

// Validator is a permissioned validator candidate.
type Validator struct {
	Bond       `yaml:",inline"`
	Commission mesh.Perbill `yaml:"commission"`
}

// Nominator backs Targets, given by stash.
type Nominator struct {
	Bond    `yaml:",inline"`
	Targets []mesh.AccountID `yaml:"targets"`
}

// Venue is created by the identity of Creator.
type Venue struct {
	Creator mesh.AccountID   `yaml:"creator"`
	Details string           `yaml:"details"`
	Type    venue.Type       `yaml:"type"`
	Signers []mesh.AccountID `yaml:"signers"`
}

// Parse decodes a YAML genesis spec. Unknown fields are rejected.
func Parse(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, "decode genesis")
	}
	return &spec, nil
}

// Load reads and parses the genesis spec at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis")
	}
	return Parse(data)
}

// Validate checks the spec is self consistent. Balances are not checked
// against bonds; an underfunded stash fails the build.
func (s *Spec) Validate() error {
	if s.LaunchTime == 0 {
		return errors.New("launch-time must be set")
	}
	if len(s.Validators) == 0 {
		return errors.New("at least one validator")
	}

	funded := make(map[mesh.AccountID]bool, len(s.Accounts))
	for _, a := range s.Accounts {
		if funded[a.Address] {
			return errors.Errorf("%s: duplicated account", a.Address)
		}
		if a.Balance == nil {
			return errors.Errorf("%s: balance must be set", a.Address)
		}
		if a.Balance.Big().Sign() < 1 {
			return errors.Errorf("%s: balance must be a non-zero integer", a.Address)
		}
		funded[a.Address] = true
	}

	keys := make(map[mesh.AccountID]bool)
	dids := make(map[mesh.IdentityID]bool)
	for _, id := range s.Identities {
		if id.DID.IsZero() {
			return errors.New("identity did must be set")
		}
		if dids[id.DID] {
			return errors.Errorf("%s: duplicated identity", id.DID)
		}
		dids[id.DID] = true
		for _, k := range append([]mesh.AccountID{id.Primary}, id.Secondary...) {
			if keys[k] {
				return errors.Errorf("%s: key linked twice", k)
			}
			keys[k] = true
		}
	}

	for _, a := range s.Assets {
		if !keys[a.Owner] {
			return errors.Errorf("%s: owner %s has no identity", a.Ticker, a.Owner)
		}
		if a.NonFungible && a.Supply != nil {
			return errors.Errorf("%s: supply of a non-fungible asset is given by nfts", a.Ticker)
		}
		if !a.NonFungible && len(a.NFTs) > 0 {
			return errors.Errorf("%s: nfts on a fungible asset", a.Ticker)
		}
	}

	stashes := make(map[mesh.AccountID]bool)
	checkBond := func(b *Bond) error {
		if b.Value == nil || b.Value.Big().Sign() < 1 {
			return errors.Errorf("%s: bond value must be a non-zero integer", b.Stash)
		}
		if !funded[b.Stash] {
			return errors.Errorf("%s: stash is not funded", b.Stash)
		}
		if stashes[b.Stash] {
			return errors.Errorf("%s: stash bonded twice", b.Stash)
		}
		stashes[b.Stash] = true
		return nil
	}
	validators := make(map[mesh.AccountID]bool, len(s.Validators))
	for i := range s.Validators {
		if err := checkBond(&s.Validators[i].Bond); err != nil {
			return err
		}
		validators[s.Validators[i].Stash] = true
	}
	for i := range s.Nominators {
		n := &s.Nominators[i]
		if err := checkBond(&n.Bond); err != nil {
			return err
		}
		if len(n.Targets) == 0 {
			return errors.Errorf("%s: nominator without targets", n.Stash)
		}
		for _, t := range n.Targets {
			if !validators[t] {
				return errors.Errorf("%s: target %s is not a genesis validator", n.Stash, t)
			}
		}
	}

	for _, v := range s.Venues {
		if !keys[v.Creator] {
			return errors.Errorf("venue %q: creator %s has no identity", v.Details, v.Creator)
		}
	}
	return nil
}

// New validates spec and returns a builder that lays it out in order:
// endowments, identities, assets, stakers and venues.
func New(spec *Spec) (*Builder, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	b := new(Builder).Timestamp(spec.LaunchTime)

	b.State(func(m *runtime.Modules) error {
		for _, a := range spec.Accounts {
			if _, err := m.Balances.DepositCreating(a.Address, a.Balance.Big()); err != nil {
				return errors.Wrapf(err, "endow %s", a.Address)
			}
		}
		return nil
	})

	b.State(func(m *runtime.Modules) error {
		for _, id := range spec.Identities {
			if err := m.Identity.RegisterIdentity(id.DID, id.Primary); err != nil {
				return errors.Wrapf(err, "register %s", id.DID)
			}
			if err := m.Identity.SetCDD(id.DID, id.CDD); err != nil {
				return err
			}
			for _, k := range id.Secondary {
				if err := m.Identity.AddSecondaryKey(id.Primary, k, identity.Permissions{}); err != nil {
					return errors.Wrapf(err, "secondary key %s", k)
				}
			}
		}
		return nil
	})

	b.State(func(m *runtime.Modules) error {
		for _, a := range spec.Assets {
			if err := m.Assets.CreateAsset(a.Owner, a.Ticker, a.Divisible, a.NonFungible); err != nil {
				return errors.Wrapf(err, "create %s", a.Ticker)
			}
			if a.Supply != nil {
				if err := m.Assets.Issue(a.Owner, a.Ticker, a.Supply.Big()); err != nil {
					return errors.Wrapf(err, "issue %s", a.Ticker)
				}
			}
			if len(a.NFTs) > 0 {
				if err := m.Assets.MintNFT(a.Owner, a.Ticker, a.NFTs); err != nil {
					return errors.Wrapf(err, "mint %s", a.Ticker)
				}
			}
		}
		return nil
	})

	b.State(func(m *runtime.Modules) error {
		for _, v := range spec.Validators {
			if err := m.Staking.Bond(v.Stash, v.Controller, v.Value.Big(), v.Payee); err != nil {
				return errors.Wrapf(err, "bond %s", v.Stash)
			}
			if err := m.Staking.AddPotentialValidator(v.Controller); err != nil {
				return err
			}
			if err := m.Staking.Validate(v.Controller, types.ValidatorPrefs{Commission: v.Commission}); err != nil {
				return errors.Wrapf(err, "validate %s", v.Stash)
			}
		}
		for _, n := range spec.Nominators {
			if err := m.Staking.Bond(n.Stash, n.Controller, n.Value.Big(), n.Payee); err != nil {
				return errors.Wrapf(err, "bond %s", n.Stash)
			}
			if err := m.Staking.Nominate(n.Controller, n.Targets); err != nil {
				return errors.Wrapf(err, "nominate %s", n.Stash)
			}
		}
		return nil
	})

	b.State(func(m *runtime.Modules) error {
		for _, v := range spec.Venues {
			id, err := m.Settlement.Venues().Create(v.Creator, v.Details, v.Signers, v.Type)
			if err != nil {
				return errors.Wrapf(err, "venue %q", v.Details)
			}
			logger.Debug("genesis venue", "id", id, "details", v.Details)
		}
		return nil
	})
	return b, nil
}
