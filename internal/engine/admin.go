package engine

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/cache"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/elys-network/basket-engine/internal/validator"
)

// Governance bounds.
var (
	MaxMinWeight   = sdkmath.LegacyNewDecWithPrec(1, 1) // 10%
	MinMaxWeight   = sdkmath.LegacyOneDec().QuoInt64(3) // 33.3%
	MaxFeeRate     = sdkmath.LegacyNewDecWithPrec(2, 2) // 2%
	MaxPenaltyRate = sdkmath.LegacyNewDecWithPrec(1, 1) // 10%
)

// administer applies a governance change to a snapshot and commits it. Changes to the basket
// parameters are versioned through the recorder.
func (e *Engine) administer(ctx context.Context, action string, versioned bool, body func(next *types.Basket) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.ledger.Snapshot()
	if err := body(next); err != nil {
		e.logger.Warn().Err(err).Str("action", action).Msg("Governance change rejected")
		return err
	}
	seq, err := e.ledger.Commit(ctx, next)
	if err != nil {
		return err
	}
	e.metrics.RecordBasket(next)

	if versioned && e.recorder != nil {
		if err := e.recorder.SaveParameters(ctx, next.Parameters(), action); err != nil {
			e.metrics.RecordCheckpointFailure()
			e.logger.Error().Err(err).Str("action", action).Msg("Failed to record basket parameters")
		}
	}

	e.logger.Info().Str("action", action).Uint64("sequence", seq).Msg("Governance change committed")
	return nil
}

// AddBasset appends a new asset with an empty vault. integratorName may be empty for assets
// held purely in the pool account.
func (e *Engine) AddBasset(ctx context.Context, address string, decimals int, integratorName string, hasTxFee bool) error {
	return e.administer(ctx, "add_basset", false, func(next *types.Basket) error {
		if err := sdk.ValidateDenom(address); err != nil {
			return &RejectionError{Reason: ReasonInvalidAsset, cause: err}
		}
		if address == e.tokens.PoolDenom() {
			return reject("", ReasonInvalidAsset)
		}
		if next.Index(address) >= 0 {
			return reject("", ReasonDuplicateAsset)
		}
		if len(next.Bassets) >= MaxBassets {
			return reject("", ReasonMaxBassets)
		}
		ratio, err := utils.RatioForDecimals(decimals)
		if err != nil {
			return &RejectionError{Reason: ReasonDecimals, cause: err}
		}
		if integratorName != "" && !e.cache.HasIntegrator(integratorName) {
			return reject("", ReasonUnknownIntegrator)
		}

		next.Bassets = append(next.Bassets, types.Basset{
			Address:      address,
			Integrator:   integratorName,
			HasTxFee:     hasTxFee,
			Status:       types.StatusNormal,
			Decimals:     decimals,
			Ratio:        ratio,
			VaultBalance: sdkmath.ZeroInt(),
		})
		return nil
	})
}

// SetCacheSize sets the fraction of pool value each cache may hold. Existing caches are left
// where they are and converge on the next deposit or withdrawal.
func (e *Engine) SetCacheSize(ctx context.Context, size sdkmath.LegacyDec) error {
	return e.administer(ctx, "set_cache_size", true, func(next *types.Basket) error {
		if size.IsNil() || size.IsNegative() || size.GT(cache.MaxCacheSize) {
			return reject("", ReasonCacheSize)
		}
		next.CacheSize = size
		return nil
	})
}

// SetWeightLimits sets the hard bounds. Soft bounds are clamped into the new range.
func (e *Engine) SetWeightLimits(ctx context.Context, minWeight, maxWeight sdkmath.LegacyDec) error {
	return e.administer(ctx, "set_weight_limits", true, func(next *types.Basket) error {
		if minWeight.IsNil() || minWeight.IsNegative() || minWeight.GT(MaxMinWeight) {
			return reject("", ReasonMinWeight)
		}
		if maxWeight.IsNil() || maxWeight.LT(MinMaxWeight) || maxWeight.GT(sdkmath.LegacyOneDec()) {
			return reject("", ReasonMaxWeight)
		}

		l := next.Limits
		l.Min, l.Max = minWeight, maxWeight
		l.SoftMin = clamp(l.SoftMin, minWeight, maxWeight)
		l.SoftMax = clamp(l.SoftMax, l.SoftMin, maxWeight)
		next.Limits = l
		return nil
	})
}

// SetSoftLimits sets the penalty-free band and the penalty reached at the hard bounds.
func (e *Engine) SetSoftLimits(ctx context.Context, softMin, softMax, maxPenalty sdkmath.LegacyDec) error {
	return e.administer(ctx, "set_soft_limits", true, func(next *types.Basket) error {
		l := next.Limits
		if softMin.IsNil() || softMax.IsNil() || softMin.LT(l.Min) || softMin.GT(softMax) || softMax.GT(l.Max) {
			return reject("", ReasonSoftLimits)
		}
		if maxPenalty.IsNil() || maxPenalty.IsNegative() || maxPenalty.GT(MaxPenaltyRate) {
			return reject("", ReasonPenalty)
		}
		l.SoftMin, l.SoftMax = softMin, softMax
		next.Limits = l
		next.MaxPenalty = maxPenalty
		return nil
	})
}

// SetFees sets the base swap and redemption fee rates.
func (e *Engine) SetFees(ctx context.Context, swapFee, redemptionFee sdkmath.LegacyDec) error {
	return e.administer(ctx, "set_fees", true, func(next *types.Basket) error {
		if swapFee.IsNil() || swapFee.IsNegative() || swapFee.GT(MaxFeeRate) {
			return reject("", ReasonSwapRate)
		}
		if redemptionFee.IsNil() || redemptionFee.IsNegative() || redemptionFee.GT(MaxFeeRate) {
			return reject("", ReasonRedemptionRate)
		}
		next.SwapFee = swapFee
		next.RedemptionFee = redemptionFee
		return nil
	})
}

// SetParameters replaces the whole parameter set after checking it is internally consistent.
func (e *Engine) SetParameters(ctx context.Context, p types.BasketParameters, reason string) error {
	if reason == "" {
		reason = "set_parameters"
	}
	return e.administer(ctx, reason, true, func(next *types.Basket) error {
		vp := validator.Params{Limits: p.Limits, MaxPenalty: p.MaxPenalty, SwapFee: p.SwapFee, RedemptionFee: p.RedemptionFee}
		if err := vp.Validate(); err != nil {
			return &RejectionError{Reason: err.Error(), cause: err}
		}
		if p.CacheSize.IsNil() || p.CacheSize.IsNegative() || p.CacheSize.GT(cache.MaxCacheSize) {
			return reject("", ReasonCacheSize)
		}
		next.ApplyParameters(p)
		return nil
	})
}

// SetTransferFeesFlag marks an asset as charging a transfer fee. Turning the flag on for an
// integrated asset empties its cache into the integrator, since transfer-fee assets are never
// cached.
func (e *Engine) SetTransferFeesFlag(ctx context.Context, asset string, enabled bool) error {
	return e.administer(ctx, "set_transfer_fees_flag", false, func(next *types.Basket) error {
		i, err := resolve("", next, asset)
		if err != nil {
			return err
		}
		b := &next.Bassets[i]
		if b.HasTxFee == enabled {
			return nil
		}
		b.HasTxFee = enabled
		if enabled && b.HasIntegrator() {
			action, err := e.cache.SweepAll(ctx, *b)
			if err != nil {
				return fmt.Errorf("cache of %s could not be emptied: %w", asset, err)
			}
			e.metrics.RecordCacheAction(action)
		}
		return nil
	})
}

// SetBassetStatus changes the lifecycle status of an asset.
func (e *Engine) SetBassetStatus(ctx context.Context, asset string, status types.BassetStatus) error {
	return e.administer(ctx, "set_basset_status", false, func(next *types.Basket) error {
		if status > types.StatusDefault {
			return reject("", ReasonInvalidStatus)
		}
		i, err := resolve("", next, asset)
		if err != nil {
			return err
		}
		if next.Bassets[i].Status == status {
			return reject("", ReasonAssetState)
		}
		e.logger.Info().
			Str("asset", asset).
			Str("from", next.Bassets[i].Status.String()).
			Str("to", status.String()).
			Msg("bAsset status changed")
		next.Bassets[i].Status = status
		return nil
	})
}

// SetBassetMaxWeight overrides the basket maximum weight for one asset. A nil weight removes
// the override.
func (e *Engine) SetBassetMaxWeight(ctx context.Context, asset string, maxWeight *sdkmath.LegacyDec) error {
	return e.administer(ctx, "set_basset_max_weight", false, func(next *types.Basket) error {
		i, err := resolve("", next, asset)
		if err != nil {
			return err
		}
		if maxWeight != nil && (maxWeight.IsNil() || !maxWeight.IsPositive() || maxWeight.GT(sdkmath.LegacyOneDec())) {
			return reject("", ReasonMaxWeight)
		}
		if maxWeight == nil {
			next.Bassets[i].MaxWeight = nil
			return nil
		}
		w := maxWeight.Clone()
		next.Bassets[i].MaxWeight = &w
		return nil
	})
}

func clamp(x, lo, hi sdkmath.LegacyDec) sdkmath.LegacyDec {
	if x.IsNil() || x.LT(lo) {
		return lo
	}
	if x.GT(hi) {
		return hi
	}
	return x
}
