// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mesh

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerbill(t *testing.T) {
	assert.Equal(t, Perbill(100_000_000), PerbillFromPercent(10))
	assert.Equal(t, PerbillOne, PerbillFromPercent(150))

	assert.Equal(t, Perbill(750_000_000), PerbillFromRational(big.NewInt(3), big.NewInt(4)))
	assert.Equal(t, Perbill(333_333_333), PerbillFromRational(big.NewInt(1), big.NewInt(3)))
	assert.Equal(t, PerbillOne, PerbillFromRational(big.NewInt(5), big.NewInt(4)))
	assert.Equal(t, Perbill(0), PerbillFromRational(big.NewInt(0), big.NewInt(0)))

	assert.Equal(t, big.NewInt(33), PerbillFromPercent(33).Mul(big.NewInt(100)))
	// floor
	assert.Equal(t, big.NewInt(333), PerbillFromRational(big.NewInt(1), big.NewInt(3)).Mul(big.NewInt(1000)))
	assert.Equal(t, big.NewInt(1000), PerbillOne.Mul(big.NewInt(1000)))

	assert.Equal(t, PerbillOne, PerbillFromPercent(60).SaturatingAdd(PerbillFromPercent(60)))
}

func TestParsePerbill(t *testing.T) {
	tests := []struct {
		in   string
		want Perbill
		err  bool
	}{
		{"10%", 100_000_000, false},
		{"12.5%", 125_000_000, false},
		{"0.1", 100_000_000, false},
		{"0.025", 25_000_000, false},
		{"1.0", PerbillOne, false},
		{"250000000", 250_000_000, false},
		{"101%", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePerbill(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	assert.Equal(t, "12.5%", Perbill(125_000_000).String())
	assert.Equal(t, "10%", Perbill(100_000_000).String())
}

func TestTicker(t *testing.T) {
	ticker, err := ParseTicker("ACME")
	require.NoError(t, err)
	assert.Equal(t, "ACME", ticker.String())

	_, err = ParseTicker("")
	assert.Error(t, err)
	_, err = ParseTicker("THIRTEENCHARS")
	assert.Error(t, err)
	_, err = ParseTicker("acme")
	assert.Error(t, err)
}

func TestPortfolioText(t *testing.T) {
	did := NumberedIdentity(7)
	for _, p := range []PortfolioID{DefaultPortfolio(did), UserPortfolio(did, 3)} {
		text, err := p.MarshalText()
		require.NoError(t, err)
		var parsed PortfolioID
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, p, parsed)
	}
	assert.Len(t, UserPortfolio(did, 3).Bytes(), 40)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1000")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), v)

	v, err = ParseAmount("0xff")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(255), v)

	_, err = ParseAmount("340282366920938463463374607431768211456") // 2^128
	assert.Error(t, err)

	_, err = ParseAmount("-1")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.MaxUnlockChunks = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ValidatorCount = 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RewardCurve.IdealStake = PerbillOne
	assert.Error(t, cfg.Validate())
}

func TestBlake2b(t *testing.T) {
	assert.Equal(t, Blake2b([]byte("ab")), Blake2b([]byte("a"), []byte("b")))
	assert.NotEqual(t, Blake2b([]byte("a")), Blake2b([]byte("b")))
}
