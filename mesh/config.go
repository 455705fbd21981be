// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mesh

import (
	"math/big"

	"github.com/pkg/errors"
)

// CurveParams parameterise the yearly inflation curve: inflation grows
// linearly from Min to Max while the staked ratio is below IdealStake, then
// halves every Falloff above it.
type CurveParams struct {
	MinInflation Perbill `yaml:"min-inflation" envconfig:"MIN_INFLATION"`
	MaxInflation Perbill `yaml:"max-inflation" envconfig:"MAX_INFLATION"`
	IdealStake   Perbill `yaml:"ideal-stake" envconfig:"IDEAL_STAKE"`
	Falloff      Perbill `yaml:"falloff" envconfig:"FALLOFF"`
}

// Config is the runtime configuration record. It is fixed for the lifetime
// of a chain; knobs that governance may change live in chain state.
type Config struct {
	// staking
	SessionLength         uint32      `yaml:"session-length" envconfig:"SESSION_LENGTH"` // blocks per session
	SessionsPerEra        uint32      `yaml:"sessions-per-era" envconfig:"SESSIONS_PER_ERA"`
	BondingDuration       uint32      `yaml:"bonding-duration" envconfig:"BONDING_DURATION"`         // eras
	HistoryDepth          uint32      `yaml:"history-depth" envconfig:"HISTORY_DEPTH"`               // eras of election snapshots kept
	SlashDeferDuration    uint32      `yaml:"slash-defer-duration" envconfig:"SLASH_DEFER_DURATION"` // eras
	MaxUnlockChunks       int         `yaml:"max-unlock-chunks" envconfig:"MAX_UNLOCK_CHUNKS"`
	MaxNominations        int         `yaml:"max-nominations" envconfig:"MAX_NOMINATIONS"`
	ValidatorCount        uint32      `yaml:"validator-count" envconfig:"VALIDATOR_COUNT"`
	MinimumValidatorCount uint32      `yaml:"minimum-validator-count" envconfig:"MINIMUM_VALIDATOR_COUNT"`
	MinimumBalance        *Amount     `yaml:"minimum-balance" envconfig:"MINIMUM_BALANCE"`
	SlashRewardFraction   Perbill     `yaml:"slash-reward-fraction" envconfig:"SLASH_REWARD_FRACTION"`
	RewardCurve           CurveParams `yaml:"reward-curve" envconfig:"REWARD_CURVE"`
	Equalize              bool        `yaml:"equalize" envconfig:"EQUALIZE"`
	RequireNominatorCDD   bool        `yaml:"require-nominator-cdd" envconfig:"REQUIRE_NOMINATOR_CDD"`
	Invulnerables         []AccountID `yaml:"invulnerables" envconfig:"INVULNERABLES"`
	TreasuryAccount       AccountID   `yaml:"treasury" envconfig:"TREASURY"`

	// settlement
	MaxFungibleLegs uint32 `yaml:"max-fungible-legs" envconfig:"MAX_FUNGIBLE_LEGS"`
	MaxNFTLegs      uint32 `yaml:"max-nft-legs" envconfig:"MAX_NFT_LEGS"`
	MaxOffChainLegs uint32 `yaml:"max-offchain-legs" envconfig:"MAX_OFFCHAIN_LEGS"`
	MaxNFTsPerLeg   uint32 `yaml:"max-nfts-per-leg" envconfig:"MAX_NFTS_PER_LEG"`
	MaxVenueSigners uint32 `yaml:"max-venue-signers" envconfig:"MAX_VENUE_SIGNERS"`

	// block production
	BlockInterval uint64 `yaml:"block-interval" envconfig:"BLOCK_INTERVAL"` // seconds
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		SessionLength:         600,
		SessionsPerEra:        6,
		BondingDuration:       28,
		HistoryDepth:          84,
		SlashDeferDuration:    14,
		MaxUnlockChunks:       32,
		MaxNominations:        16,
		ValidatorCount:        10,
		MinimumValidatorCount: 2,
		MinimumBalance:        NewAmount(1),
		SlashRewardFraction:   PerbillFromPercent(10),
		RewardCurve: CurveParams{
			MinInflation: PerbillFromParts(25_000_000),
			MaxInflation: PerbillFromParts(100_000_000),
			IdealStake:   PerbillFromParts(500_000_000),
			Falloff:      PerbillFromParts(50_000_000),
		},
		Equalize:        true,
		MaxFungibleLegs: 10,
		MaxNFTLegs:      10,
		MaxOffChainLegs: 10,
		MaxNFTsPerLeg:   10,
		MaxVenueSigners: 50,
		BlockInterval:   6,
	}
}

// MinBalance returns MinimumBalance as a fresh big.Int.
func (c *Config) MinBalance() *big.Int {
	return c.MinimumBalance.Big()
}

// EraLength returns the number of blocks in an era when no era is forced.
func (c *Config) EraLength() uint64 {
	return uint64(c.SessionLength) * uint64(c.SessionsPerEra)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.SessionLength == 0:
		return errors.New("session-length must be positive")
	case c.SessionsPerEra == 0:
		return errors.New("sessions-per-era must be positive")
	case c.HistoryDepth < c.BondingDuration:
		return errors.New("history-depth below bonding-duration")
	case c.MaxUnlockChunks <= 0:
		return errors.New("max-unlock-chunks must be positive")
	case c.MaxNominations <= 0:
		return errors.New("max-nominations must be positive")
	case c.MinimumValidatorCount == 0:
		return errors.New("minimum-validator-count must be at least 1")
	case c.ValidatorCount < c.MinimumValidatorCount:
		return errors.New("validator-count below minimum-validator-count")
	case c.MinimumBalance == nil || c.MinimumBalance.Big().Sign() <= 0:
		return errors.New("minimum-balance must be positive")
	case c.MaxVenueSigners == 0:
		return errors.New("max-venue-signers must be positive")
	case c.MaxNFTsPerLeg == 0:
		return errors.New("max-nfts-per-leg must be positive")
	}
	rc := c.RewardCurve
	if rc.MinInflation > rc.MaxInflation {
		return errors.New("reward-curve: min-inflation above max-inflation")
	}
	if rc.IdealStake == 0 || rc.IdealStake >= PerbillOne {
		return errors.New("reward-curve: ideal-stake must be within (0, 1)")
	}
	if rc.Falloff == 0 {
		return errors.New("reward-curve: falloff must be positive")
	}
	return nil
}
