package near

import (
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
)

// NominationExp is the number of decimal places between NEAR and yoctoNEAR.
const NominationExp = 24

// maxYoctoBits is the width of the ledger's u128 balance fields.
const maxYoctoBits = 128

// YoctoPerNEAR is 10^24, the number of yoctoNEAR in one NEAR.
var YoctoPerNEAR = sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(NominationExp), nil))

// ParseNEAR converts a decimal NEAR amount ("1", "0.5", "1,000.25") into
// yoctoNEAR. Thousands separators are ignored; more than 24 fractional digits,
// signs, exponents, any other characters and values above u128 are rejected.
func ParseNEAR(amount string) (sdkmath.Int, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(amount, ",", ""))
	if cleaned == "" {
		return sdkmath.Int{}, invalidAmount(amount, "amount is required")
	}
	whole, frac, _ := strings.Cut(cleaned, ".")
	if strings.Contains(frac, ".") {
		return sdkmath.Int{}, invalidAmount(amount, "too many decimal points")
	}
	if whole == "" && frac == "" {
		return sdkmath.Int{}, invalidAmount(amount, "no digits")
	}
	if !isDigits(whole) || !isDigits(frac) {
		return sdkmath.Int{}, invalidAmount(amount, "only digits are allowed")
	}
	if len(frac) > NominationExp {
		return sdkmath.Int{}, invalidAmount(amount, fmt.Sprintf("at most %d fractional digits", NominationExp))
	}

	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", NominationExp-len(frac)), "0")
	if digits == "" {
		return sdkmath.ZeroInt(), nil
	}
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok || value.BitLen() > maxYoctoBits {
		return sdkmath.Int{}, invalidAmount(amount, "does not fit in u128 yoctoNEAR")
	}
	return sdkmath.NewIntFromBigInt(value), nil
}

// FormatNEAR renders a yoctoNEAR amount in NEAR, truncated to fracDigits
// decimal places with trailing zeros removed.
func FormatNEAR(yocto sdkmath.Int, fracDigits int) string {
	if yocto.IsNil() {
		return "0"
	}
	if fracDigits < 0 {
		fracDigits = 0
	}
	if fracDigits > NominationExp {
		fracDigits = NominationExp
	}
	value := new(big.Int).Set(yocto.BigInt())
	sign := ""
	if value.Sign() < 0 {
		sign = "-"
		value.Neg(value)
	}
	whole, rem := new(big.Int).QuoRem(value, YoctoPerNEAR.BigInt(), new(big.Int))
	remDigits := rem.String()
	frac := (strings.Repeat("0", NominationExp-len(remDigits)) + remDigits)[:fracDigits]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return sign + whole.String()
	}
	return sign + whole.String() + "." + frac
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func invalidAmount(raw string, reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidAmount,
		fmt.Sprintf("cannot parse %q as NEAR amount: %s", raw, reason),
		map[string]string{"amount": raw},
	)
}
