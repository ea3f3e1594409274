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

// Mint deposits nativeQty of asset from sender and issues pool tokens to recipient. It returns
// the normalized amount minted.
func (e *Engine) Mint(ctx context.Context, asset string, nativeQty, minOutput sdkmath.Int, sender, recipient string) (sdkmath.Int, error) {
	receipt, err := e.execute(ctx, types.OpMint, sender, recipient, func(o *operation, next *types.Basket) error {
		return e.mintSingle(ctx, o, next, asset, nativeQty, minOutput, sender, recipient)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return receipt.MassetDelta, nil
}

func (e *Engine) mintSingle(ctx context.Context, o *operation, next *types.Basket, asset string, nativeQty, minOutput sdkmath.Int, sender, recipient string) error {
	if !isPositive(nativeQty) {
		return reject(o.kind, ReasonZeroQty)
	}
	minOutput = orZero(minOutput)
	i, err := resolve(o.kind, next, asset)
	if err != nil {
		return err
	}
	b := next.Bassets[i]
	p := params(next)
	total := next.TotalValue()

	res := validator.ValidateMint(p, total, b, nativeQty)
	if !res.Valid {
		return reject(o.kind, res.Reason)
	}
	if res.Output.LT(minOutput) {
		return reject(o.kind, ReasonBelowMinOutput)
	}
	maxCache := cache.MaxCache(next, b)

	received, err := e.pullIn(ctx, o, sender, asset, nativeQty)
	if err != nil {
		return err
	}
	credited, err := e.deposit(ctx, o, b, received, maxCache)
	if err != nil {
		return err
	}
	if credited.LT(nativeQty) {
		// fee-on-transfer asset: price what actually arrived
		res = validator.ValidateMint(p, total, b, credited)
		if !res.Valid {
			return reject(o.kind, res.Reason)
		}
		if res.Output.LT(minOutput) {
			return reject(o.kind, ReasonBelowMinOutput)
		}
	}

	minted := utils.ToNormalized(credited, b.Ratio)
	if err := e.mint(ctx, o, recipient, minted); err != nil {
		return err
	}

	next.Bassets[i].VaultBalance = next.Bassets[i].VaultBalance.Add(credited)
	next.TotalSupply = next.TotalSupply.Add(minted)

	o.receipt.Inputs = append(o.receipt.Inputs, sdk.NewCoin(asset, credited))
	o.receipt.Outputs = append(o.receipt.Outputs, sdk.NewCoin(e.tokens.PoolDenom(), minted))
	o.receipt.MassetDelta = o.receipt.MassetDelta.Add(minted)
	return nil
}

// MintMulti deposits several assets at once and issues the summed value as pool tokens. The
// weight check runs against the cumulative post-mint basket, which makes it the way to seed an
// empty basket.
func (e *Engine) MintMulti(ctx context.Context, assets []string, nativeQtys []sdkmath.Int, minOutput sdkmath.Int, sender, recipient string) (sdkmath.Int, error) {
	receipt, err := e.execute(ctx, types.OpMintMulti, sender, recipient, func(o *operation, next *types.Basket) error {
		if len(assets) == 0 || len(assets) != len(nativeQtys) {
			return reject(o.kind, validator.ReasonInputMismatch)
		}
		anyPositive := false
		for _, q := range nativeQtys {
			if q.IsNil() || q.IsNegative() {
				return reject(o.kind, ReasonZeroQty)
			}
			anyPositive = anyPositive || q.IsPositive()
		}
		if !anyPositive {
			return reject(o.kind, ReasonZeroQty)
		}
		minOutput := orZero(minOutput)

		idx, err := resolveAll(o.kind, next, assets)
		if err != nil {
			return err
		}
		bassets := make([]types.Basset, len(idx))
		maxCaches := make([]sdkmath.Int, len(idx))
		for k, i := range idx {
			bassets[k] = next.Bassets[i]
			maxCaches[k] = cache.MaxCache(next, next.Bassets[i])
		}
		p := params(next)
		total := next.TotalValue()

		res := validator.ValidateMintMulti(p, total, bassets, nativeQtys)
		if !res.Valid {
			return reject(o.kind, res.Reason)
		}
		if res.Output.LT(minOutput) {
			return reject(o.kind, ReasonBelowMinOutput)
		}

		credited := make([]sdkmath.Int, len(idx))
		short := false
		for k, b := range bassets {
			credited[k] = sdkmath.ZeroInt()
			if !nativeQtys[k].IsPositive() {
				continue
			}
			received, err := e.pullIn(ctx, o, sender, b.Address, nativeQtys[k])
			if err != nil {
				return err
			}
			if credited[k], err = e.deposit(ctx, o, b, received, maxCaches[k]); err != nil {
				return err
			}
			short = short || credited[k].LT(nativeQtys[k])
		}
		if short {
			res = validator.ValidateMintMulti(p, total, bassets, credited)
			if !res.Valid {
				return reject(o.kind, res.Reason)
			}
			if res.Output.LT(minOutput) {
				return reject(o.kind, ReasonBelowMinOutput)
			}
		}

		minted := sdkmath.ZeroInt()
		for k, i := range idx {
			if !credited[k].IsPositive() {
				continue
			}
			minted = minted.Add(utils.ToNormalized(credited[k], bassets[k].Ratio))
			next.Bassets[i].VaultBalance = next.Bassets[i].VaultBalance.Add(credited[k])
			o.receipt.Inputs = append(o.receipt.Inputs, sdk.NewCoin(bassets[k].Address, credited[k]))
		}
		if err := e.mint(ctx, o, recipient, minted); err != nil {
			return err
		}
		next.TotalSupply = next.TotalSupply.Add(minted)

		o.receipt.Outputs = append(o.receipt.Outputs, sdk.NewCoin(e.tokens.PoolDenom(), minted))
		o.receipt.MassetDelta = minted
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return receipt.MassetDelta, nil
}
