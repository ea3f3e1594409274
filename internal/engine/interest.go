package engine

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
)

// CollectInterest mints all but one unit of the surplus to the savings recipient. It returns the
// amount minted, zero when there is nothing to collect.
func (e *Engine) CollectInterest(ctx context.Context) (sdkmath.Int, error) {
	receipt, err := e.execute(ctx, types.OpCollectInterest, e.pool, e.savings, func(o *operation, next *types.Basket) error {
		if e.savings == "" {
			return reject(o.kind, ReasonNoSavings)
		}
		one := sdkmath.OneInt()
		if next.Surplus.LTE(one) {
			return reject(o.kind, ReasonNothingToCollect)
		}

		gain := next.Surplus.Sub(one)
		if err := e.mint(ctx, o, e.savings, gain); err != nil {
			return err
		}
		next.TotalSupply = next.TotalSupply.Add(gain)
		next.Surplus = one

		o.receipt.Outputs = append(o.receipt.Outputs, sdk.NewCoin(e.tokens.PoolDenom(), gain))
		o.receipt.MassetDelta = gain
		return nil
	})
	if Reason(err) == ReasonNothingToCollect {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return receipt.MassetDelta, nil
}

// CollectPlatformInterest credits what integrators earned on top of the recorded vault balances
// and mints its value to the savings recipient. The physical holding of an asset is its cache
// plus its integrator balance; a shortfall is logged and left for governance.
func (e *Engine) CollectPlatformInterest(ctx context.Context) (sdkmath.Int, error) {
	receipt, err := e.execute(ctx, types.OpCollectPlatform, e.pool, e.savings, func(o *operation, next *types.Basket) error {
		if e.savings == "" {
			return reject(o.kind, ReasonNoSavings)
		}

		value := sdkmath.ZeroInt()
		for i := range next.Bassets {
			b := next.Bassets[i]
			if !b.HasIntegrator() {
				continue
			}
			held, err := e.cache.IntegratorBalance(ctx, b)
			if err != nil {
				return err
			}
			cached, err := e.cache.Cache(ctx, b.Address)
			if err != nil {
				return err
			}
			actual := held.Add(cached)
			if actual.LT(b.VaultBalance) {
				e.logger.Warn().
					Str("asset", b.Address).
					Str("vault", b.VaultBalance.String()).
					Str("held", actual.String()).
					Msg("Integrated asset holds less than its vault balance")
				continue
			}
			gain := actual.Sub(b.VaultBalance)
			if gain.IsZero() {
				continue
			}
			next.Bassets[i].VaultBalance = actual
			value = value.Add(utils.ToNormalized(gain, b.Ratio))
			o.receipt.Inputs = append(o.receipt.Inputs, sdk.NewCoin(b.Address, gain))
		}
		if !value.IsPositive() {
			return reject(o.kind, ReasonNothingToCollect)
		}

		if err := e.mint(ctx, o, e.savings, value); err != nil {
			return err
		}
		next.TotalSupply = next.TotalSupply.Add(value)

		o.receipt.Outputs = append(o.receipt.Outputs, sdk.NewCoin(e.tokens.PoolDenom(), value))
		o.receipt.MassetDelta = value
		return nil
	})
	if Reason(err) == ReasonNothingToCollect {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return receipt.MassetDelta, nil
}

// RunInterestLoop collects platform interest and surplus every interval until ctx is done.
func (e *Engine) RunInterestLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().
		Dur("interval", interval).
		Str("savings", e.savings).
		Msg("Starting interest collection loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Interest loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.collectAll(ctx)
		}
	}
}

func (e *Engine) collectAll(ctx context.Context) {
	platform, err := e.CollectPlatformInterest(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Platform interest collection failed")
	}
	surplus, err := e.CollectInterest(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Surplus collection failed")
	}
	if platform.IsPositive() || surplus.IsPositive() {
		e.logger.Info().
			Str("platform", platform.String()).
			Str("surplus", surplus.String()).
			Msg("Interest collected")
	}
}
