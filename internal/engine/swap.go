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

// Swap exchanges nativeQty of input for output at par, minus the swap fee and any weight
// penalty. Swapping into the pool token is a mint. It returns the native output amount.
func (e *Engine) Swap(ctx context.Context, input, output string, nativeQty, minOutput sdkmath.Int, sender, recipient string) (sdkmath.Int, error) {
	receipt, err := e.execute(ctx, types.OpSwap, sender, recipient, func(o *operation, next *types.Basket) error {
		if input == output {
			return reject(o.kind, ReasonInvalidPair)
		}
		if output == e.tokens.PoolDenom() {
			return e.mintSingle(ctx, o, next, input, nativeQty, minOutput, sender, recipient)
		}
		return e.swap(ctx, o, next, input, output, nativeQty, orZero(minOutput), sender, recipient)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if output == e.tokens.PoolDenom() {
		return receipt.MassetDelta, nil
	}
	return receipt.Outputs[0].Amount, nil
}

func (e *Engine) swap(ctx context.Context, o *operation, next *types.Basket, input, output string, nativeQty, minOutput sdkmath.Int, sender, recipient string) error {
	if !isPositive(nativeQty) {
		return reject(o.kind, ReasonZeroQty)
	}
	in, err := resolve(o.kind, next, input)
	if err != nil {
		return err
	}
	out, err := resolve(o.kind, next, output)
	if err != nil {
		return err
	}
	inB, outB := next.Bassets[in], next.Bassets[out]
	p := params(next)
	total := next.TotalValue()

	res := validator.ValidateSwap(p, total, inB, outB, nativeQty)
	if !res.Valid {
		return reject(o.kind, res.Reason)
	}
	if res.Output.LT(minOutput) {
		return reject(o.kind, ReasonBelowMinOutput)
	}
	maxIn := cache.MaxCache(next, inB)
	maxOut := cache.MaxCache(next, outB)

	received, err := e.pullIn(ctx, o, sender, input, nativeQty)
	if err != nil {
		return err
	}
	credited, err := e.deposit(ctx, o, inB, received, maxIn)
	if err != nil {
		return err
	}
	if credited.LT(nativeQty) {
		res = validator.ValidateSwap(p, total, inB, outB, credited)
		if !res.Valid {
			return reject(o.kind, res.Reason)
		}
		if res.Output.LT(minOutput) {
			return reject(o.kind, ReasonBelowMinOutput)
		}
	}

	// a refill moved into the pool account stays part of the vault, so it needs no undo
	action, err := e.cache.Prepare(ctx, outB, res.Output, maxOut)
	if err != nil {
		return err
	}
	o.addCacheMove(action)
	if _, err := e.cache.Release(ctx, outB, res.Output, recipient); err != nil {
		return err
	}

	value := utils.ToNormalized(credited, inB.Ratio)
	surplus := value.Sub(utils.ToNormalized(res.Output, outB.Ratio))

	next.Bassets[in].VaultBalance = next.Bassets[in].VaultBalance.Add(credited)
	next.Bassets[out].VaultBalance = next.Bassets[out].VaultBalance.Sub(res.Output)
	next.Surplus = next.Surplus.Add(surplus)

	o.receipt.Inputs = append(o.receipt.Inputs, sdk.NewCoin(input, credited))
	o.receipt.Outputs = append(o.receipt.Outputs, sdk.NewCoin(output, res.Output))
	o.receipt.Fee = surplus
	return nil
}
