package engine

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/cache"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/elys-network/basket-engine/internal/validator"
)

// Redeem burns normalizedQty pool tokens from sender and sends the equivalent amount of asset,
// minus the redemption fee, to recipient. It returns the native output amount.
func (e *Engine) Redeem(ctx context.Context, asset string, normalizedQty, minOutput sdkmath.Int, sender, recipient string) (sdkmath.Int, error) {
	receipt, err := e.execute(ctx, types.OpRedeem, sender, recipient, func(o *operation, next *types.Basket) error {
		if !isPositive(normalizedQty) {
			return reject(o.kind, ReasonZeroQty)
		}
		i, err := resolve(o.kind, next, asset)
		if err != nil {
			return err
		}
		b := next.Bassets[i]

		res := validator.ValidateRedemption(params(next), next.TotalValue(), b, normalizedQty)
		if !res.Valid {
			return reject(o.kind, res.Reason)
		}
		if res.Output.LT(orZero(minOutput)) {
			return reject(o.kind, ReasonBelowMinOutput)
		}
		if normalizedQty.GT(next.TotalSupply) {
			return reject(o.kind, validator.ReasonNotEnoughLiquidity)
		}

		if err := e.burn(ctx, o, sender, normalizedQty); err != nil {
			return err
		}
		if err := e.withdraw(ctx, o, next, []int{i}, []sdkmath.Int{res.Output}, recipient); err != nil {
			return err
		}
		e.settleRedemption(o, next, normalizedQty)
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if len(receipt.Outputs) == 0 {
		return sdkmath.ZeroInt(), nil
	}
	return receipt.Outputs[0].Amount, nil
}

// RedeemExact sends exactly nativeOutputs of assets to recipient and burns whatever pool token
// amount that costs, fee included, as long as it does not exceed maxInput. It returns the
// normalized amount burned.
func (e *Engine) RedeemExact(ctx context.Context, assets []string, nativeOutputs []sdkmath.Int, maxInput sdkmath.Int, sender, recipient string) (sdkmath.Int, error) {
	receipt, err := e.execute(ctx, types.OpRedeemExact, sender, recipient, func(o *operation, next *types.Basket) error {
		if len(assets) == 0 || len(assets) != len(nativeOutputs) {
			return reject(o.kind, validator.ReasonInputMismatch)
		}
		anyPositive := false
		for _, q := range nativeOutputs {
			if q.IsNil() || q.IsNegative() {
				return reject(o.kind, ReasonZeroQty)
			}
			anyPositive = anyPositive || q.IsPositive()
		}
		if !anyPositive {
			return reject(o.kind, ReasonZeroQty)
		}
		idx, err := resolveAll(o.kind, next, assets)
		if err != nil {
			return err
		}
		bassets := make([]types.Basset, len(idx))
		for k, i := range idx {
			bassets[k] = next.Bassets[i]
		}

		res := validator.ValidateRedeemExact(params(next), next.TotalValue(), bassets, nativeOutputs)
		if !res.Valid {
			return reject(o.kind, res.Reason)
		}
		if !maxInput.IsNil() && res.Input.GT(maxInput) {
			return reject(o.kind, ReasonMaxInput)
		}
		if res.Input.GT(next.TotalSupply) {
			return reject(o.kind, validator.ReasonNotEnoughLiquidity)
		}

		if err := e.burn(ctx, o, sender, res.Input); err != nil {
			return err
		}
		if err := e.withdraw(ctx, o, next, idx, nativeOutputs, recipient); err != nil {
			return err
		}
		e.settleRedemption(o, next, res.Input)
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return receipt.MassetDelta.Neg(), nil
}

// RedeemProportional burns normalizedQty pool tokens for a pro-rata share of every vault. It
// is available whatever the status of the assets. minOutputs may be empty; otherwise it holds
// one minimum per asset in basket order.
func (e *Engine) RedeemProportional(ctx context.Context, normalizedQty sdkmath.Int, minOutputs []sdkmath.Int, sender, recipient string) ([]sdk.Coin, error) {
	receipt, err := e.execute(ctx, types.OpRedeemProportional, sender, recipient, func(o *operation, next *types.Basket) error {
		if !isPositive(normalizedQty) {
			return reject(o.kind, ReasonZeroQty)
		}
		if len(minOutputs) != 0 && len(minOutputs) != len(next.Bassets) {
			return reject(o.kind, validator.ReasonInputMismatch)
		}

		res := validator.ValidateRedeemProportional(params(next), next.TotalValue(), next.Bassets, normalizedQty)
		if !res.Valid {
			return reject(o.kind, res.Reason)
		}
		for k, m := range minOutputs {
			if res.Outputs[k].LT(orZero(m)) {
				return reject(o.kind, ReasonBelowMinOutput)
			}
		}
		if normalizedQty.GT(next.TotalSupply) {
			return reject(o.kind, validator.ReasonNotEnoughLiquidity)
		}

		idx := make([]int, len(next.Bassets))
		for i := range idx {
			idx[i] = i
		}
		if err := e.burn(ctx, o, sender, normalizedQty); err != nil {
			return err
		}
		if err := e.withdraw(ctx, o, next, idx, res.Outputs, recipient); err != nil {
			return err
		}
		e.settleRedemption(o, next, normalizedQty)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt.Outputs, nil
}

// withdraw prepares every output first so that integrator refills either all succeed or
// nothing has reached the recipient yet, then releases them. Vault balances in next are debited.
func (e *Engine) withdraw(ctx context.Context, o *operation, next *types.Basket, idx []int, outputs []sdkmath.Int, recipient string) error {
	maxCaches := make([]sdkmath.Int, len(idx))
	for k, i := range idx {
		maxCaches[k] = cache.MaxCache(next, next.Bassets[i])
	}
	for k, i := range idx {
		if !outputs[k].IsPositive() {
			continue
		}
		action, err := e.cache.Prepare(ctx, next.Bassets[i], outputs[k], maxCaches[k])
		if err != nil {
			return err
		}
		o.addCacheMove(action)
	}
	for k, i := range idx {
		if !outputs[k].IsPositive() {
			continue
		}
		if _, err := e.cache.Release(ctx, next.Bassets[i], outputs[k], recipient); err != nil {
			return err
		}
	}
	for k, i := range idx {
		if !outputs[k].IsPositive() {
			continue
		}
		next.Bassets[i].VaultBalance = next.Bassets[i].VaultBalance.Sub(outputs[k])
		o.receipt.Outputs = append(o.receipt.Outputs, sdk.NewCoin(next.Bassets[i].Address, outputs[k]))
	}
	return nil
}

// settleRedemption reduces supply by burned and credits everything not paid out to surplus.
// withdraw must already have debited the vaults and filled the receipt outputs.
func (e *Engine) settleRedemption(o *operation, next *types.Basket, burned sdkmath.Int) {
	paid := sdkmath.ZeroInt()
	for _, c := range o.receipt.Outputs {
		i := next.Index(c.Denom)
		paid = paid.Add(utils.ToNormalized(c.Amount, next.Bassets[i].Ratio))
	}
	next.TotalSupply = next.TotalSupply.Sub(burned)
	next.Surplus = next.Surplus.Add(burned.Sub(paid))

	o.receipt.Inputs = append(o.receipt.Inputs, sdk.NewCoin(e.tokens.PoolDenom(), burned))
	o.receipt.MassetDelta = burned.Neg()
	o.receipt.Fee = burned.Sub(paid)
}
