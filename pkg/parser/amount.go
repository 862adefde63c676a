package parser

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a human decimal string into minimal units for a token
// with the given decimals. It returns nil for empty, non-numeric, negative or
// zero input and for values with more fractional digits than decimals allows.
func ParseAmount(value string, decimals int32) *big.Int {
	value = strings.TrimSpace(value)
	if value == "" || decimals < 0 {
		return nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil
	}
	if d.Sign() <= 0 {
		return nil
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil
	}
	return scaled.BigInt()
}

// FormatAmount renders minimal units as a decimal string without trailing zeros.
func FormatAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}
