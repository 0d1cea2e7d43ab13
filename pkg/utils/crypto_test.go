package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCampaignID(t *testing.T) {
	valid := map[string]string{
		"0":      "0",
		"7":      "7",
		"010":    "10",
		" 42 ":   "42",
		"0x1f":   "31",
		"0X10":   "16",
		"000123": "123",
	}
	for raw, want := range valid {
		id, err := ParseCampaignID(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, id.String(), raw)
	}

	for _, raw := range []string{"", "0x", "-1", "+1", "1_000", "0b101", "0o17", "12ab", "0xzz"} {
		_, err := ParseCampaignID(raw)
		assert.True(t, IsCode(err, ErrCodeValidation), raw)
	}
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1234...5678", ShortAddress("0x1234567890abcdef1234567890abcdef12345678"))
	assert.Equal(t, "0xabc", ShortAddress("0xabc"))
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"))
	assert.False(t, IsValidAddress("not-an-address"))
}

func TestGetEventSignature(t *testing.T) {
	// keccak256("Transfer(address,address,uint256)")
	assert.Equal(t,
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		GetEventSignature("Transfer(address,address,uint256)"))
}
