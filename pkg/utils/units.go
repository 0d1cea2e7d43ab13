package utils

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals between wei and ether
const EtherDecimals = 18

// FormatUnits renders a base-unit integer as an exact decimal string
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatEther renders a wei amount in ether
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// ParseUnits parses a decimal string into base units. Values with more
// fractional digits than decimals are rejected rather than rounded.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, NewAppError(ErrCodeValidation, "Amount is required", "")
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, NewAppError(ErrCodeValidation, "Invalid amount", value)
	}
	if d.IsNegative() {
		return nil, NewAppError(ErrCodeValidation, "Amount must not be negative", value)
	}

	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, NewAppError(ErrCodeValidation, "Amount has too many decimal places", value)
	}
	return shifted.BigInt(), nil
}

// ParseEther parses an ether amount into wei
func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, EtherDecimals)
}

// Ratio returns numerator/denominator as a float for display, 0 when denominator is zero
func Ratio(numerator, denominator *big.Int) float64 {
	if numerator == nil || denominator == nil || denominator.Sign() == 0 {
		return 0
	}
	r, _ := decimal.NewFromBigInt(numerator, 0).
		DivRound(decimal.NewFromBigInt(denominator, 0), 18).
		Float64()
	return r
}
