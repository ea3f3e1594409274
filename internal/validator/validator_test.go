package validator

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func newBasset(t *testing.T, address string, vaultUnits int64) types.Basset {
	t.Helper()
	ratio, err := utils.RatioForDecimals(18)
	require.NoError(t, err)
	return types.Basset{
		Address:      address,
		Status:       types.StatusNormal,
		Decimals:     18,
		Ratio:        ratio,
		VaultBalance: units(vaultUnits),
	}
}

func withMaxWeight(b types.Basset, w string) types.Basset {
	d := dec(w)
	b.MaxWeight = &d
	return b
}

func testParams() Params {
	return Params{
		Limits: types.WeightLimits{
			Min:     dec("0.05"),
			Max:     dec("0.55"),
			SoftMin: dec("0.10"),
			SoftMax: dec("0.45"),
		},
		MaxPenalty:    dec("0.05"),
		SwapFee:       dec("0.0006"),
		RedemptionFee: dec("0.0003"),
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, testParams().Validate())

	p := testParams()
	p.Limits.SoftMin = dec("0.5")
	assert.ErrorIs(t, p.Validate(), ErrInvalidLimits)

	p = testParams()
	p.Limits.Max = dec("1.1")
	assert.ErrorIs(t, p.Validate(), ErrInvalidLimits)

	p = testParams()
	p.SwapFee = dec("1")
	assert.ErrorIs(t, p.Validate(), ErrInvalidFee)

	p = testParams()
	p.RedemptionFee = sdkmath.LegacyDec{}
	assert.ErrorIs(t, p.Validate(), ErrNilValue)
}

func TestPenaltyRate(t *testing.T) {
	p := testParams()
	cases := []struct {
		weight string
		want   string
	}{
		{"0.30", "0"},
		{"0.45", "0"},
		{"0.10", "0"},
		{"0.50", "0.025"},
		{"0.55", "0.05"},
		{"0.90", "0.05"},
		{"0.075", "0.025"},
		{"0.05", "0.05"},
		{"0", "0.05"},
	}
	for _, tc := range cases {
		got := PenaltyRate(p.Limits, p.MaxPenalty, dec(tc.weight))
		assert.True(t, got.Equal(dec(tc.want)), "weight %s: got %s want %s", tc.weight, got, tc.want)
	}
}

func TestEffectiveLimitsOverride(t *testing.T) {
	p := testParams()
	b := withMaxWeight(newBasset(t, "uusdc", 0), "0.25")
	l := EffectiveLimits(p.Limits, b)
	assert.True(t, l.Max.Equal(dec("0.25")))
	assert.True(t, l.SoftMax.Equal(dec("0.25")))
	assert.True(t, l.SoftMin.Equal(dec("0.10")))

	tiny := withMaxWeight(newBasset(t, "uusdc", 0), "0.02")
	l = EffectiveLimits(p.Limits, tiny)
	assert.True(t, l.SoftMin.Equal(dec("0.02")))
	assert.True(t, l.Min.Equal(dec("0.02")))

	assert.Equal(t, p.Limits, EffectiveLimits(p.Limits, newBasset(t, "udai", 0)))
}

func TestWeightEmptyBasket(t *testing.T) {
	assert.True(t, Weight(units(1), sdkmath.ZeroInt()).IsZero())
	assert.True(t, Weight(units(25), units(100)).Equal(dec("0.25")))
}

func TestValidateSwapWeightLimitBoundary(t *testing.T) {
	p := testParams()
	in := withMaxWeight(newBasset(t, "uusdc", 24), "0.25")
	out := withMaxWeight(newBasset(t, "udai", 25), "0.25")

	res := ValidateSwap(p, units(100), in, out, units(1))
	assert.True(t, res.Valid, res.Reason)

	res = ValidateSwap(p, units(100), in, out, units(2))
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonInputAboveMax, res.Reason)
}

func TestValidateSwapLiquidityBoundary(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 10)
	out := newBasset(t, "udai", 9)

	res := ValidateSwap(p, units(100), in, out, units(10))
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonNotEnoughLiquidity, res.Reason)

	// emptying the output vault costs the full min-side penalty on top of the swap fee
	res = ValidateSwap(p, units(100), in, out, units(9))
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.FeeRate.Equal(dec("0.0506")), res.FeeRate.String())
	assert.Equal(t, "455400000000000000", res.Fee.String())
	assert.Equal(t, "8544600000000000000", res.Output.String())
	assert.True(t, res.Output.LTE(out.VaultBalance))
}

func TestValidateSwapStatusGate(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 10)
	out := newBasset(t, "udai", 1)

	for _, st := range []types.BassetStatus{types.StatusBrokenBelowPeg, types.StatusBlacklisted, types.StatusLiquidating, types.StatusDefault} {
		badIn := in
		badIn.Status = st
		res := ValidateSwap(p, units(100), badIn, out, units(5))
		assert.Equal(t, ReasonSwapNotAllowed, res.Reason, st.String())

		badOut := out
		badOut.Status = st
		res = ValidateSwap(p, units(100), in, badOut, units(5))
		assert.Equal(t, ReasonSwapNotAllowed, res.Reason, st.String())
	}
}

func TestValidateSwapAppliesFee(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 20)
	out := newBasset(t, "udai", 30)

	res := ValidateSwap(p, units(100), in, out, units(10))
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.ApplyFee)
	assert.True(t, res.FeeRate.Equal(dec("0.0006")))
	assert.Equal(t, "6000000000000000", res.Fee.String())
	assert.Equal(t, "9994000000000000000", res.Output.String())
}

func TestValidateSwapWaivesFeeForOverweightOutput(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 20)
	out := newBasset(t, "udai", 50)

	res := ValidateSwap(p, units(100), in, out, units(10))
	require.True(t, res.Valid, res.Reason)
	assert.False(t, res.ApplyFee)
	assert.True(t, res.Fee.IsZero())
	assert.Equal(t, units(10).String(), res.Output.String())
}

func TestValidateSwapSoftZonePenalty(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 45)
	out := newBasset(t, "udai", 30)

	res := ValidateSwap(p, units(100), in, out, units(5))
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.FeeRate.Equal(dec("0.0256")), res.FeeRate.String())
	assert.Equal(t, "128000000000000000", res.Fee.String())
}

func TestValidateSwapOutputBelowMinPaysPenalty(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 20)

	// 10% -> 8%: halfway between SoftMin and Min
	res := ValidateSwap(p, units(100), in, newBasset(t, "udai", 10), units(2))
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.ApplyFee)
	assert.True(t, res.FeeRate.Equal(dec("0.0206")), res.FeeRate.String())
	assert.Equal(t, "41200000000000000", res.Fee.String())
	assert.Equal(t, "1958800000000000000", res.Output.String())

	// 6% -> 4%: below Min, the penalty is capped at MaxPenalty
	res = ValidateSwap(p, units(100), in, newBasset(t, "udai", 6), units(2))
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.FeeRate.Equal(dec("0.0506")), res.FeeRate.String())
	assert.Equal(t, "101200000000000000", res.Fee.String())
	assert.Equal(t, "1898800000000000000", res.Output.String())
}

func TestValidateSwapDrainsOutputToZero(t *testing.T) {
	p := testParams()
	in := withMaxWeight(newBasset(t, "uusdc", 50), "0.75")
	out := newBasset(t, "udai", 100)

	res := ValidateSwap(p, units(200), in, out, units(100))
	require.True(t, res.Valid, res.Reason)
	// udai sits at 50%, above SoftMax, so only the min-side penalty is charged
	assert.False(t, res.ApplyFee)
	assert.True(t, res.FeeRate.Equal(dec("0.05")), res.FeeRate.String())
	assert.Equal(t, units(5).String(), res.Fee.String())
	assert.Equal(t, units(95).String(), res.Output.String())
}

func TestValidateSwapZeroQuantity(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 20)
	out := newBasset(t, "udai", 30)

	res := ValidateSwap(p, units(100), in, out, sdkmath.ZeroInt())
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.Output.IsZero())
	assert.True(t, res.Fee.IsZero())

	overweight := newBasset(t, "uusdt", 60)
	res = ValidateSwap(p, units(100), overweight, out, sdkmath.ZeroInt())
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonInputAboveMax, res.Reason)
}

func TestValidateSwapZeroMaxWeight(t *testing.T) {
	p := testParams()
	in := withMaxWeight(newBasset(t, "uusdc", 0), "0")
	out := newBasset(t, "udai", 30)

	res := ValidateSwap(p, units(100), in, out, sdkmath.OneInt())
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonInputAboveMax, res.Reason)
}

func TestValidateSwapMixedDecimals(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 20)
	ratio6, err := utils.RatioForDecimals(6)
	require.NoError(t, err)
	in.Decimals, in.Ratio, in.VaultBalance = 6, ratio6, sdkmath.NewInt(20_000_000)
	out := newBasset(t, "udai", 50)

	res := ValidateSwap(p, units(100), in, out, sdkmath.NewInt(10_000_000))
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, units(10).String(), res.Output.String())
}

func TestValidateSwapIsIdempotent(t *testing.T) {
	p := testParams()
	in := newBasset(t, "uusdc", 45)
	out := newBasset(t, "udai", 30)
	before := in.Clone()

	first := ValidateSwap(p, units(100), in, out, units(5))
	second := ValidateSwap(p, units(100), in, out, units(5))
	assert.Equal(t, first.Output.String(), second.Output.String())
	assert.Equal(t, first.Fee.String(), second.Fee.String())
	assert.True(t, first.FeeRate.Equal(second.FeeRate))
	assert.Equal(t, before.VaultBalance.String(), in.VaultBalance.String())
}

func TestValidateMint(t *testing.T) {
	p := testParams()
	b := newBasset(t, "uusdc", 50)

	res := ValidateMint(p, units(100), b, units(11))
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, units(11).String(), res.Output.String())

	res = ValidateMint(p, units(100), b, units(12))
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonExceedsWeightLimits, res.Reason)

	b.Status = types.StatusLiquidating
	res = ValidateMint(p, units(100), b, units(1))
	assert.Equal(t, ReasonMintNotAllowed, res.Reason)
}

func TestValidateMintNormalizesNativeUnits(t *testing.T) {
	p := testParams()
	ratio6, err := utils.RatioForDecimals(6)
	require.NoError(t, err)
	b := types.Basset{Address: "uusdc", Status: types.StatusNormal, Decimals: 6, Ratio: ratio6, VaultBalance: sdkmath.NewInt(10_000_000)}

	res := ValidateMint(p, units(100), b, sdkmath.NewInt(1_000_000))
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, units(1).String(), res.Output.String())
}

func TestValidateMintMulti(t *testing.T) {
	p := testParams()
	a := newBasset(t, "uusdc", 0)
	b := newBasset(t, "udai", 0)

	res := ValidateMintMulti(p, sdkmath.ZeroInt(), []types.Basset{a, b}, []sdkmath.Int{units(50), units(50)})
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, units(100).String(), res.Output.String())

	res = ValidateMintMulti(p, sdkmath.ZeroInt(), []types.Basset{a, b}, []sdkmath.Int{units(70), units(30)})
	assert.Equal(t, ReasonExceedsWeightLimits, res.Reason)

	res = ValidateMintMulti(p, sdkmath.ZeroInt(), []types.Basset{a, b}, []sdkmath.Int{units(1)})
	assert.Equal(t, ReasonInputMismatch, res.Reason)
}

func TestValidateRedemption(t *testing.T) {
	p := testParams()

	t.Run("base fee", func(t *testing.T) {
		res := ValidateRedemption(p, units(100), newBasset(t, "uusdc", 30), units(10))
		require.True(t, res.Valid, res.Reason)
		assert.True(t, res.ApplyFee)
		assert.Equal(t, "3000000000000000", res.Fee.String())
		assert.Equal(t, "9997000000000000000", res.Output.String())
	})

	t.Run("overweight waives fee", func(t *testing.T) {
		res := ValidateRedemption(p, units(100), newBasset(t, "uusdc", 50), units(10))
		require.True(t, res.Valid, res.Reason)
		assert.False(t, res.ApplyFee)
		assert.Equal(t, units(10).String(), res.Output.String())
	})

	t.Run("soft minimum penalty", func(t *testing.T) {
		res := ValidateRedemption(p, units(100), newBasset(t, "uusdc", 12), units(4))
		require.True(t, res.Valid, res.Reason)
		assert.True(t, res.FeeRate.GT(p.RedemptionFee))
		assert.True(t, res.FeeRate.LT(p.RedemptionFee.Add(p.MaxPenalty)))
	})

	t.Run("below hard minimum is priced not rejected", func(t *testing.T) {
		res := ValidateRedemption(p, units(100), newBasset(t, "uusdc", 6), units(5))
		require.True(t, res.Valid, res.Reason)
		assert.True(t, res.FeeRate.Equal(dec("0.0503")), res.FeeRate.String())
		assert.Equal(t, "4748500000000000000", res.Output.String())
	})

	t.Run("not enough liquidity", func(t *testing.T) {
		res := ValidateRedemption(p, units(100), newBasset(t, "uusdc", 5), units(10))
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonNotEnoughLiquidity, res.Reason)
	})

	t.Run("status gate", func(t *testing.T) {
		b := newBasset(t, "uusdc", 30)
		b.Status = types.StatusBrokenBelowPeg
		res := ValidateRedemption(p, units(100), b, units(1))
		assert.Equal(t, ReasonRedeemNotAllowed, res.Reason)
	})
}

func TestValidateRedeemExact(t *testing.T) {
	p := testParams()
	a := newBasset(t, "uusdc", 40)
	b := newBasset(t, "udai", 40)

	res := ValidateRedeemExact(p, units(100), []types.Basset{a, b}, []sdkmath.Int{units(10), units(10)})
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, "6000000000000000", res.Fee.String())
	assert.Equal(t, "20006000000000000000", res.Input.String())

	res = ValidateRedeemExact(p, units(100), []types.Basset{a, b}, []sdkmath.Int{units(41), units(0)})
	assert.Equal(t, ReasonNotEnoughLiquidity, res.Reason)

	res = ValidateRedeemExact(p, units(100), []types.Basset{a}, nil)
	assert.Equal(t, ReasonInputMismatch, res.Reason)
}

func TestValidateRedeemProportional(t *testing.T) {
	p := testParams()
	a := newBasset(t, "uusdc", 60)
	b := newBasset(t, "udai", 40)
	b.Status = types.StatusBlacklisted

	res := ValidateRedeemProportional(p, units(100), []types.Basset{a, b}, units(10))
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, "3000000000000000", res.Fee.String())
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "5998200000000000000", res.Outputs[0].String())
	assert.Equal(t, "3998800000000000000", res.Outputs[1].String())

	res = ValidateRedeemProportional(p, sdkmath.ZeroInt(), []types.Basset{a, b}, units(10))
	assert.Equal(t, ReasonEmptyBasket, res.Reason)

	res = ValidateRedeemProportional(p, units(100), []types.Basset{a, b}, units(101))
	assert.Equal(t, ReasonNotEnoughLiquidity, res.Reason)
}
