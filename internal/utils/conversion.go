/*
This file contains common utility functions for converting between different types,
particularly the fixed-point ratio conversions between native asset units and the
normalized 18-decimal unit every pool balance is accounted in.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// RatioScale is the fixed-point base of every bAsset ratio.
const RatioScale = 100_000_000

// MaxDecimals is the largest native precision a bAsset may declare.
const MaxDecimals = 18

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrInvalidRatio     = errors.New("ratio must be positive")
)

var (
	ratioScale = sdkmath.NewInt(RatioScale)
	fullScale  = sdkmath.NewIntWithDecimal(1, sdkmath.LegacyPrecision)
)

// RatioForDecimals returns the ratio that lifts an amount with the given native precision
// to 18 decimals: 10^(18-decimals) * RatioScale.
func RatioForDecimals(decimals int) (sdkmath.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, decimals, MaxDecimals)
	}
	return sdkmath.NewIntWithDecimal(1, MaxDecimals-decimals).MulRaw(RatioScale), nil
}

// ValidateRatio rejects nil or non-positive ratios.
func ValidateRatio(ratio sdkmath.Int) error {
	if ratio.IsNil() || !ratio.IsPositive() {
		return ErrInvalidRatio
	}
	return nil
}

// ToNormalized converts a native amount to normalized units, truncating.
func ToNormalized(native, ratio sdkmath.Int) sdkmath.Int {
	return native.Mul(ratio).Quo(ratioScale)
}

// ToNormalizedCeil converts a native amount to normalized units, rounding up.
// Used wherever the caller pays for a native amount.
func ToNormalizedCeil(native, ratio sdkmath.Int) sdkmath.Int {
	return quoCeil(native.Mul(ratio), ratioScale)
}

// ToNative converts a normalized amount to native units, truncating.
func ToNative(normalized, ratio sdkmath.Int) sdkmath.Int {
	return normalized.Mul(ratioScale).Quo(ratio)
}

// MulTruncate multiplies x by a fraction, truncating.
func MulTruncate(x sdkmath.Int, frac sdkmath.LegacyDec) sdkmath.Int {
	return x.Mul(fracUnits(frac)).Quo(fullScale)
}

// MulCeil multiplies x by a fraction, rounding up.
func MulCeil(x sdkmath.Int, frac sdkmath.LegacyDec) sdkmath.Int {
	return quoCeil(x.Mul(fracUnits(frac)), fullScale)
}

// DivPrecisely returns x/y as an 18-decimal fraction, truncating. Panics when y is zero.
func DivPrecisely(x, y sdkmath.Int) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromBigIntWithPrec(x.Mul(fullScale).Quo(y).BigInt(), sdkmath.LegacyPrecision)
}

// fracUnits returns the raw 18-decimal integer behind a fraction.
func fracUnits(frac sdkmath.LegacyDec) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(frac.BigInt())
}

func quoCeil(x, y sdkmath.Int) sdkmath.Int {
	q := x.Quo(y)
	if !x.Mod(y).IsZero() {
		q = q.AddRaw(1)
	}
	return q
}

// ToDisplay converts a non-negative amount with the given number of decimals to a float64 for
// metrics and logs. Never use the result for accounting.
func ToDisplay(amount sdkmath.Int, decimals int) (float64, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, decimals, MaxDecimals)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	f, err := sdkmath.LegacyNewDecFromIntWithPrec(amount, int64(decimals)).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
} 
