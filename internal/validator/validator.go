/*
This file contains the weight and liquidity validator. Every function is pure: it reads a
basket snapshot, decides whether a candidate operation is admissible, and prices it.
Nothing here mutates state, so quotes and the engine share the exact same code path.
*/

package validator

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
)

// Rejection reasons reported to callers.
const (
	ReasonMintNotAllowed      = "bAsset not allowed in mint"
	ReasonSwapNotAllowed      = "bAsset not allowed in swap"
	ReasonRedeemNotAllowed    = "bAsset not allowed in redemption"
	ReasonExceedsWeightLimits = "Exceeds weight limits"
	ReasonInputAboveMax       = "Input must remain below max weighting"
	ReasonNotEnoughLiquidity  = "Not enough liquidity"
	ReasonEmptyBasket         = "Basket is empty"
	ReasonInputMismatch       = "Input array mismatch"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidLimits = errors.New("weight limits are invalid")
	ErrInvalidFee    = errors.New("fee rate is invalid")
	ErrNilValue      = errors.New("value is nil")
)

// Params is the slice of basket configuration the validator needs.
type Params struct {
	Limits        types.WeightLimits
	MaxPenalty    sdkmath.LegacyDec
	SwapFee       sdkmath.LegacyDec
	RedemptionFee sdkmath.LegacyDec
}

// ParamsFromBasket extracts validator parameters from a basket snapshot.
func ParamsFromBasket(b *types.Basket) Params {
	return Params{
		Limits:        b.Limits,
		MaxPenalty:    b.MaxPenalty,
		SwapFee:       b.SwapFee,
		RedemptionFee: b.RedemptionFee,
	}
}

// Validate checks that the limits are ordered Min <= SoftMin <= SoftMax <= Max <= 1 and
// that every rate lies in [0, 1).
func (p Params) Validate() error {
	l := p.Limits
	for _, d := range []sdkmath.LegacyDec{l.Min, l.Max, l.SoftMin, l.SoftMax, p.MaxPenalty, p.SwapFee, p.RedemptionFee} {
		if d.IsNil() {
			return ErrNilValue
		}
	}
	if l.Min.IsNegative() || l.Min.GT(l.SoftMin) || l.SoftMin.GT(l.SoftMax) || l.SoftMax.GT(l.Max) || l.Max.GT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: min=%s softMin=%s softMax=%s max=%s", ErrInvalidLimits, l.Min, l.SoftMin, l.SoftMax, l.Max)
	}
	for name, rate := range map[string]sdkmath.LegacyDec{"maxPenalty": p.MaxPenalty, "swapFee": p.SwapFee, "redemptionFee": p.RedemptionFee} {
		if rate.IsNegative() || rate.GTE(sdkmath.LegacyOneDec()) {
			return fmt.Errorf("%w: %s=%s", ErrInvalidFee, name, rate)
		}
	}
	return nil
}

// EffectiveLimits returns the limits that apply to one asset. A per-asset max weight replaces
// both the soft and the hard maximum.
func EffectiveLimits(limits types.WeightLimits, basset types.Basset) types.WeightLimits {
	if basset.MaxWeight == nil {
		return limits
	}
	l := limits
	l.Max = *basset.MaxWeight
	l.SoftMax = *basset.MaxWeight
	if l.SoftMin.GT(l.Max) {
		l.SoftMin = l.Max
	}
	if l.Min.GT(l.SoftMin) {
		l.Min = l.SoftMin
	}
	return l
}

// Weight returns normalized/total, or zero for an empty basket.
func Weight(normalized, total sdkmath.Int) sdkmath.LegacyDec {
	if !total.IsPositive() || !normalized.IsPositive() {
		return sdkmath.LegacyZeroDec()
	}
	return utils.DivPrecisely(normalized, total)
}

// IsOverweight reports whether the asset currently sits above its soft maximum.
func IsOverweight(limits types.WeightLimits, basset types.Basset, total sdkmath.Int) bool {
	l := EffectiveLimits(limits, basset)
	return Weight(utils.ToNormalized(basset.VaultBalance, basset.Ratio), total).GT(l.SoftMax)
}

// PenaltyRate is zero inside [SoftMin, SoftMax] and grows linearly to maxPenalty at Min and Max.
// Beyond a hard bound the rate stays at maxPenalty; rejecting is up to the caller.
func PenaltyRate(limits types.WeightLimits, maxPenalty, weight sdkmath.LegacyDec) sdkmath.LegacyDec {
	return maxSidePenalty(limits, maxPenalty, weight).Add(minSidePenalty(limits, maxPenalty, weight))
}

func maxSidePenalty(l types.WeightLimits, maxPenalty, weight sdkmath.LegacyDec) sdkmath.LegacyDec {
	if weight.LTE(l.SoftMax) {
		return sdkmath.LegacyZeroDec()
	}
	if weight.GTE(l.Max) {
		return maxPenalty
	}
	return maxPenalty.Mul(weight.Sub(l.SoftMax)).Quo(l.Max.Sub(l.SoftMax))
}

func minSidePenalty(l types.WeightLimits, maxPenalty, weight sdkmath.LegacyDec) sdkmath.LegacyDec {
	if weight.GTE(l.SoftMin) {
		return sdkmath.LegacyZeroDec()
	}
	if weight.LTE(l.Min) {
		return maxPenalty
	}
	return maxPenalty.Mul(l.SoftMin.Sub(weight)).Quo(l.SoftMin.Sub(l.Min))
}

// MintResult is the outcome of a mint validation. Output is in normalized pool token units.
type MintResult struct {
	Valid  bool        `json:"valid"`
	Reason string      `json:"reason,omitempty"`
	Output sdkmath.Int `json:"output"`
}

// ValidateMint checks a single-asset mint of nativeQty. Mint carries no fee.
func ValidateMint(p Params, totalValue sdkmath.Int, basset types.Basset, nativeQty sdkmath.Int) MintResult {
	if !basset.Status.IsNormal() {
		return MintResult{Reason: ReasonMintNotAllowed, Output: sdkmath.ZeroInt()}
	}
	l := EffectiveLimits(p.Limits, basset)
	value := utils.ToNormalized(nativeQty, basset.Ratio)
	newVault := utils.ToNormalized(basset.VaultBalance, basset.Ratio).Add(value)
	if newVault.GT(utils.MulTruncate(totalValue.Add(value), l.Max)) {
		return MintResult{Reason: ReasonExceedsWeightLimits, Output: sdkmath.ZeroInt()}
	}
	return MintResult{Valid: true, Output: value}
}

// ValidateMintMulti checks a multi-asset mint against the cumulative post-mint weights.
func ValidateMintMulti(p Params, totalValue sdkmath.Int, bassets []types.Basset, nativeQtys []sdkmath.Int) MintResult {
	if len(bassets) != len(nativeQtys) || len(bassets) == 0 {
		return MintResult{Reason: ReasonInputMismatch, Output: sdkmath.ZeroInt()}
	}
	values := make([]sdkmath.Int, len(bassets))
	total := sdkmath.ZeroInt()
	for i, b := range bassets {
		if !b.Status.IsNormal() {
			return MintResult{Reason: ReasonMintNotAllowed, Output: sdkmath.ZeroInt()}
		}
		values[i] = utils.ToNormalized(nativeQtys[i], b.Ratio)
		total = total.Add(values[i])
	}
	postTotal := totalValue.Add(total)
	for i, b := range bassets {
		if values[i].IsZero() {
			continue
		}
		l := EffectiveLimits(p.Limits, b)
		newVault := utils.ToNormalized(b.VaultBalance, b.Ratio).Add(values[i])
		if newVault.GT(utils.MulTruncate(postTotal, l.Max)) {
			return MintResult{Reason: ReasonExceedsWeightLimits, Output: sdkmath.ZeroInt()}
		}
	}
	return MintResult{Valid: true, Output: total}
}

// SwapResult is the outcome of a swap validation. Output is in output-asset native units and
// Fee in normalized units; the fee and any rounding residue stay in the pool as surplus.
type SwapResult struct {
	Valid    bool              `json:"valid"`
	Reason   string            `json:"reason,omitempty"`
	Output   sdkmath.Int       `json:"output"`
	Fee      sdkmath.Int       `json:"fee"`
	FeeRate  sdkmath.LegacyDec `json:"fee_rate"`
	ApplyFee bool              `json:"apply_fee"`
}

func rejectSwap(reason string) SwapResult {
	return SwapResult{Reason: reason, Output: sdkmath.ZeroInt(), Fee: sdkmath.ZeroInt(), FeeRate: sdkmath.LegacyZeroDec()}
}

// ValidateSwap checks a swap of nativeQty of in for out. Checks run in order: status,
// output liquidity, input max weight. An output pushed below its soft minimum is never refused,
// only priced through the min-side penalty. The base swap fee is waived when the output asset is
// currently overweight; soft-zone penalties always apply.
func ValidateSwap(p Params, totalValue sdkmath.Int, in, out types.Basset, nativeQty sdkmath.Int) SwapResult {
	if !in.Status.IsNormal() || !out.Status.IsNormal() {
		return rejectSwap(ReasonSwapNotAllowed)
	}

	value := utils.ToNormalized(nativeQty, in.Ratio)
	if utils.ToNative(value, out.Ratio).GT(out.VaultBalance) {
		return rejectSwap(ReasonNotEnoughLiquidity)
	}

	inLimits := EffectiveLimits(p.Limits, in)
	newIn := utils.ToNormalized(in.VaultBalance, in.Ratio).Add(value)
	if newIn.GT(utils.MulTruncate(totalValue, inLimits.Max)) {
		return rejectSwap(ReasonInputAboveMax)
	}

	outLimits := EffectiveLimits(p.Limits, out)
	outVault := utils.ToNormalized(out.VaultBalance, out.Ratio)
	newOut := sdkmath.ZeroInt()
	if outVault.GT(value) {
		newOut = outVault.Sub(value)
	}
	outWeight := Weight(newOut, totalValue)

	applyFee := !IsOverweight(p.Limits, out, totalValue)
	rate := sdkmath.LegacyZeroDec()
	if applyFee {
		rate = rate.Add(p.SwapFee)
	}
	rate = rate.Add(maxSidePenalty(inLimits, p.MaxPenalty, Weight(newIn, totalValue)))
	if value.IsPositive() {
		rate = rate.Add(minSidePenalty(outLimits, p.MaxPenalty, outWeight))
	}

	fee := utils.MulCeil(value, rate)
	if fee.GT(value) {
		fee = value
	}
	return SwapResult{
		Valid:    true,
		Output:   utils.ToNative(value.Sub(fee), out.Ratio),
		Fee:      fee,
		FeeRate:  rate,
		ApplyFee: applyFee,
	}
}

// RedemptionResult is the outcome of a single-asset redemption validation. Output is native.
type RedemptionResult struct {
	Valid    bool              `json:"valid"`
	Reason   string            `json:"reason,omitempty"`
	Output   sdkmath.Int       `json:"output"`
	Fee      sdkmath.Int       `json:"fee"`
	FeeRate  sdkmath.LegacyDec `json:"fee_rate"`
	ApplyFee bool              `json:"apply_fee"`
}

func rejectRedemption(reason string) RedemptionResult {
	return RedemptionResult{Reason: reason, Output: sdkmath.ZeroInt(), Fee: sdkmath.ZeroInt(), FeeRate: sdkmath.LegacyZeroDec()}
}

// ValidateRedemption prices burning normalizedQty pool tokens for basset. The base redemption
// fee is waived when the asset is overweight; a min-side penalty is added when the post
// weight falls below the soft minimum. Redemption is never rejected on weight.
func ValidateRedemption(p Params, totalValue sdkmath.Int, basset types.Basset, normalizedQty sdkmath.Int) RedemptionResult {
	if !basset.Status.IsNormal() {
		return rejectRedemption(ReasonRedeemNotAllowed)
	}

	l := EffectiveLimits(p.Limits, basset)
	vault := utils.ToNormalized(basset.VaultBalance, basset.Ratio)
	newVault, newTotal := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	if vault.GT(normalizedQty) {
		newVault = vault.Sub(normalizedQty)
	}
	if totalValue.GT(normalizedQty) {
		newTotal = totalValue.Sub(normalizedQty)
	}

	applyFee := !IsOverweight(p.Limits, basset, totalValue)
	rate := sdkmath.LegacyZeroDec()
	if applyFee {
		rate = rate.Add(p.RedemptionFee)
	}
	if normalizedQty.IsPositive() {
		rate = rate.Add(minSidePenalty(l, p.MaxPenalty, Weight(newVault, newTotal)))
	}

	fee := utils.MulCeil(normalizedQty, rate)
	if fee.GT(normalizedQty) {
		fee = normalizedQty
	}
	output := utils.ToNative(normalizedQty.Sub(fee), basset.Ratio)
	if output.GT(basset.VaultBalance) {
		return rejectRedemption(ReasonNotEnoughLiquidity)
	}
	return RedemptionResult{Valid: true, Output: output, Fee: fee, FeeRate: rate, ApplyFee: applyFee}
}

// RedeemExactResult is the outcome of an exact-output redemption. Input is the normalized
// amount of pool token the caller must burn, fee included.
type RedeemExactResult struct {
	Valid  bool        `json:"valid"`
	Reason string      `json:"reason,omitempty"`
	Input  sdkmath.Int `json:"input"`
	Fee    sdkmath.Int `json:"fee"`
}

func rejectRedeemExact(reason string) RedeemExactResult {
	return RedeemExactResult{Reason: reason, Input: sdkmath.ZeroInt(), Fee: sdkmath.ZeroInt()}
}

// ValidateRedeemExact prices withdrawing exact native outputs. The value of each output is
// rounded up and each asset is priced with its own fee rate.
func ValidateRedeemExact(p Params, totalValue sdkmath.Int, bassets []types.Basset, nativeOutputs []sdkmath.Int) RedeemExactResult {
	if len(bassets) != len(nativeOutputs) || len(bassets) == 0 {
		return rejectRedeemExact(ReasonInputMismatch)
	}

	values := make([]sdkmath.Int, len(bassets))
	sum := sdkmath.ZeroInt()
	for i, b := range bassets {
		if !b.Status.IsNormal() {
			return rejectRedeemExact(ReasonRedeemNotAllowed)
		}
		if nativeOutputs[i].GT(b.VaultBalance) {
			return rejectRedeemExact(ReasonNotEnoughLiquidity)
		}
		values[i] = utils.ToNormalizedCeil(nativeOutputs[i], b.Ratio)
		sum = sum.Add(values[i])
	}

	newTotal := sdkmath.ZeroInt()
	if totalValue.GT(sum) {
		newTotal = totalValue.Sub(sum)
	}
	fee := sdkmath.ZeroInt()
	for i, b := range bassets {
		if values[i].IsZero() {
			continue
		}
		rate := sdkmath.LegacyZeroDec()
		if !IsOverweight(p.Limits, b, totalValue) {
			rate = rate.Add(p.RedemptionFee)
		}
		vault := utils.ToNormalized(b.VaultBalance, b.Ratio)
		newVault := sdkmath.ZeroInt()
		if vault.GT(values[i]) {
			newVault = vault.Sub(values[i])
		}
		rate = rate.Add(minSidePenalty(EffectiveLimits(p.Limits, b), p.MaxPenalty, Weight(newVault, newTotal)))
		fee = fee.Add(utils.MulCeil(values[i], rate))
	}
	return RedeemExactResult{Valid: true, Input: sum.Add(fee), Fee: fee}
}

// ProportionalResult is the outcome of a proportional redemption. Outputs follow basket order.
type ProportionalResult struct {
	Valid   bool          `json:"valid"`
	Reason  string        `json:"reason,omitempty"`
	Outputs []sdkmath.Int `json:"outputs"`
	Fee     sdkmath.Int   `json:"fee"`
}

// ValidateRedeemProportional prices burning normalizedQty pool tokens for a pro-rata share of
// every vault. It ignores asset status so that holders can always exit; the redemption fee
// always applies.
func ValidateRedeemProportional(p Params, totalValue sdkmath.Int, bassets []types.Basset, normalizedQty sdkmath.Int) ProportionalResult {
	if !totalValue.IsPositive() || len(bassets) == 0 {
		return ProportionalResult{Reason: ReasonEmptyBasket, Fee: sdkmath.ZeroInt()}
	}
	if normalizedQty.GT(totalValue) {
		return ProportionalResult{Reason: ReasonNotEnoughLiquidity, Fee: sdkmath.ZeroInt()}
	}
	fee := utils.MulCeil(normalizedQty, p.RedemptionFee)
	net := normalizedQty.Sub(fee)
	outputs := make([]sdkmath.Int, len(bassets))
	for i, b := range bassets {
		outputs[i] = b.VaultBalance.Mul(net).Quo(totalValue)
	}
	return ProportionalResult{Valid: true, Outputs: outputs, Fee: fee}
}
