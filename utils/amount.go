package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/vitwit/tipjar/types"
)

var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseUnits converts a human decimal amount ("3.5") into integer units of a
// token with the given decimals (3500000 for 6 decimals). Short fractions are
// zero-extended, never rounded.
func ParseUnits(text string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, types.NewError(types.ErrValidation, types.ReasonInvalidFormat, "enter an amount", nil)
	}
	if !amountPattern.MatchString(s) {
		return nil, types.NewError(types.ErrValidation, types.ReasonInvalidFormat, "amount must be a number", nil)
	}
	if _, frac, ok := strings.Cut(s, "."); ok && len(frac) > decimals {
		return nil, types.NewError(types.ErrValidation, types.ReasonInvalidFormat,
			fmt.Sprintf("token supports up to %d decimal places", decimals), nil)
	}

	dec, err := decimal.NewFromString(s)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, types.ReasonInvalidFormat, "amount must be a number", err)
	}

	units := dec.Mul(decimal.New(1, int32(decimals)))
	if !units.IsInteger() {
		// unreachable given the fraction length check above
		return nil, types.NewError(types.ErrValidation, types.ReasonInvalidFormat, "amount has too many decimal places", nil)
	}
	if !units.IsPositive() {
		return nil, types.NewError(types.ErrValidation, types.ReasonNonPositiveAmount, "amount must be greater than 0", nil)
	}

	out := units.BigInt()
	if _, overflow := uint256.FromBig(out); overflow {
		return nil, types.NewError(types.ErrValidation, types.ReasonInvalidFormat, "amount is too large", nil)
	}
	return out, nil
}

// FormatUnits is the exact inverse of ParseUnits: it always renders the
// token's full decimal places ("3.500000").
func FormatUnits(units *big.Int, decimals int) string {
	return decimal.NewFromBigInt(units, -int32(decimals)).StringFixed(int32(decimals))
}

// FormatUnitsDisplay renders units with trailing zeros trimmed ("3.5").
func FormatUnitsDisplay(units *big.Int, decimals int) string {
	return decimal.NewFromBigInt(units, -int32(decimals)).String()
}
