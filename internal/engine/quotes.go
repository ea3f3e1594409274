package engine

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/cache"
	"github.com/elys-network/basket-engine/internal/ledger"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/validator"
)

// Quotes price an operation against the latest committed basket without taking the writer lock.
// Calling one twice with no commit in between returns the same answer. Quantities too large for
// the fixed-width arithmetic are reported as ErrArithmetic.

// recoverArithmetic turns an overflow panic in a quote into ErrArithmetic.
func recoverArithmetic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrArithmetic, r)
	}
}

// GetMintOutput prices minting nativeQty of asset.
func (e *Engine) GetMintOutput(asset string, nativeQty sdkmath.Int) (res validator.MintResult, err error) {
	defer recoverArithmetic(&err)
	b := e.ledger.Snapshot()
	i, err := resolve(types.OpMint, b, asset)
	if err != nil {
		return validator.MintResult{}, err
	}
	return validator.ValidateMint(params(b), b.TotalValue(), b.Bassets[i], orZero(nativeQty)), nil
}

// GetMintMultiOutput prices minting several assets at once.
func (e *Engine) GetMintMultiOutput(assets []string, nativeQtys []sdkmath.Int) (res validator.MintResult, err error) {
	defer recoverArithmetic(&err)
	b := e.ledger.Snapshot()
	idx, err := resolveAll(types.OpMintMulti, b, assets)
	if err != nil {
		return validator.MintResult{}, err
	}
	bassets := make([]types.Basset, len(idx))
	for k, i := range idx {
		bassets[k] = b.Bassets[i]
	}
	return validator.ValidateMintMulti(params(b), b.TotalValue(), bassets, zeroNil(nativeQtys)), nil
}

// GetSwapOutput prices swapping nativeQty of input for output. When output is the pool token the
// quote is a mint quote and only Valid, Reason and Output are set.
func (e *Engine) GetSwapOutput(input, output string, nativeQty sdkmath.Int) (res validator.SwapResult, err error) {
	defer recoverArithmetic(&err)
	if input == output {
		return validator.SwapResult{}, reject(types.OpSwap, ReasonInvalidPair)
	}
	if output == e.tokens.PoolDenom() {
		m, err := e.GetMintOutput(input, nativeQty)
		if err != nil {
			return validator.SwapResult{}, err
		}
		return validator.SwapResult{
			Valid:   m.Valid,
			Reason:  m.Reason,
			Output:  m.Output,
			Fee:     sdkmath.ZeroInt(),
			FeeRate: sdkmath.LegacyZeroDec(),
		}, nil
	}

	b := e.ledger.Snapshot()
	in, err := resolve(types.OpSwap, b, input)
	if err != nil {
		return validator.SwapResult{}, err
	}
	out, err := resolve(types.OpSwap, b, output)
	if err != nil {
		return validator.SwapResult{}, err
	}
	return validator.ValidateSwap(params(b), b.TotalValue(), b.Bassets[in], b.Bassets[out], orZero(nativeQty)), nil
}

// GetRedeemOutput prices burning normalizedQty pool tokens for asset.
func (e *Engine) GetRedeemOutput(asset string, normalizedQty sdkmath.Int) (res validator.RedemptionResult, err error) {
	defer recoverArithmetic(&err)
	b := e.ledger.Snapshot()
	i, err := resolve(types.OpRedeem, b, asset)
	if err != nil {
		return validator.RedemptionResult{}, err
	}
	return validator.ValidateRedemption(params(b), b.TotalValue(), b.Bassets[i], orZero(normalizedQty)), nil
}

// GetRedeemExactInput prices withdrawing exact native amounts of assets.
func (e *Engine) GetRedeemExactInput(assets []string, nativeOutputs []sdkmath.Int) (res validator.RedeemExactResult, err error) {
	defer recoverArithmetic(&err)
	b := e.ledger.Snapshot()
	idx, err := resolveAll(types.OpRedeemExact, b, assets)
	if err != nil {
		return validator.RedeemExactResult{}, err
	}
	bassets := make([]types.Basset, len(idx))
	for k, i := range idx {
		bassets[k] = b.Bassets[i]
	}
	return validator.ValidateRedeemExact(params(b), b.TotalValue(), bassets, zeroNil(nativeOutputs)), nil
}

// GetRedeemProportionalOutput prices a pro-rata redemption.
func (e *Engine) GetRedeemProportionalOutput(normalizedQty sdkmath.Int) (res validator.ProportionalResult, err error) {
	defer recoverArithmetic(&err)
	b := e.ledger.Snapshot()
	return validator.ValidateRedeemProportional(params(b), b.TotalValue(), b.Bassets, orZero(normalizedQty)), nil
}

// GetBasset returns the committed record of one asset.
func (e *Engine) GetBasset(asset string) (types.BassetView, error) {
	b, err := e.ledger.GetBasset(asset)
	if err != nil {
		return types.BassetView{}, err
	}
	return b.View(), nil
}

// GetBassets returns every asset in basket order.
func (e *Engine) GetBassets() []types.BassetView {
	return e.ledger.Snapshot().Views()
}

// GetBasket returns a copy of the committed basket.
func (e *Engine) GetBasket() *types.Basket {
	return e.ledger.Snapshot()
}

// Conservation reports the difference between vault value and supply plus surplus.
func (e *Engine) Conservation() (ledger.ConservationReport, error) {
	return e.ledger.CheckConservation()
}

// CacheState describes the physical cache of one asset.
type CacheState struct {
	Asset             string      `json:"asset"`
	Integrator        string      `json:"integrator,omitempty"`
	Cache             sdkmath.Int `json:"cache"`
	MaxCache          sdkmath.Int `json:"max_cache"`
	State             string      `json:"state"`
	IntegratorBalance sdkmath.Int `json:"integrator_balance"`
}

// CacheStates reads the cache and integrator balance of every asset. Integrator read failures
// are joined into the returned error; the states of the other assets are still returned.
func (e *Engine) CacheStates(ctx context.Context) ([]CacheState, error) {
	b := e.ledger.Snapshot()
	states := make([]CacheState, 0, len(b.Bassets))
	var errs []error
	for _, ba := range b.Bassets {
		s := CacheState{
			Asset:             ba.Address,
			Integrator:        ba.Integrator,
			Cache:             sdkmath.ZeroInt(),
			MaxCache:          cache.MaxCache(b, ba),
			IntegratorBalance: sdkmath.ZeroInt(),
		}
		c, err := e.cache.Cache(ctx, ba.Address)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.Cache = c
		}
		s.State = cache.Classify(s.Cache, s.MaxCache).String()
		if bal, err := e.cache.IntegratorBalance(ctx, ba); err != nil {
			errs = append(errs, err)
		} else {
			s.IntegratorBalance = bal
		}
		states = append(states, s)
	}
	return states, errors.Join(errs...)
}

func zeroNil(xs []sdkmath.Int) []sdkmath.Int {
	out := make([]sdkmath.Int, len(xs))
	for i, x := range xs {
		out[i] = orZero(x)
	}
	return out
}
