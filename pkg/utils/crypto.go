package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// ShortAddress renders an address as 0x1234...abcd
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// GetEventSignature returns the keccak256 hash of an event signature
func GetEventSignature(signature string) string {
	hash := crypto.Keccak256Hash([]byte(signature))
	return hash.Hex()
}

// CreateEventID creates a unique ID for an event log
func CreateEventID(txHash string, logIndex uint) string {
	data := fmt.Sprintf("%s-%d", strings.ToLower(txHash), logIndex)
	hash := crypto.Keccak256Hash([]byte(data))
	return hash.Hex()
}

// ParseCampaignID parses a decimal or 0x-prefixed hex campaign id.
// Leading zeros are decimal; signs and digit separators are rejected.
func ParseCampaignID(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewAppError(ErrCodeValidation, "Campaign id is required", "")
	}

	digits, base := raw, 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		digits, base = raw[2:], 16
	}
	if digits == "" || strings.ContainsAny(digits, "+-_") {
		return nil, NewAppError(ErrCodeValidation, "Invalid campaign id", raw)
	}

	id, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, NewAppError(ErrCodeValidation, "Invalid campaign id", raw)
	}
	return id, nil
}
