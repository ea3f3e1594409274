package cache

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/integrator"
	"github.com/elys-network/basket-engine/internal/token"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pool = "basket"

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

// centi returns n/100 units.
func centi(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 16)
}

type fixture struct {
	ctx    context.Context
	bank   *token.Bank
	market *integrator.Memory
	mgr    *Manager
	basket *types.Basket
}

func newFixture(t *testing.T, supply int64, cached int64) *fixture {
	t.Helper()
	ctx := context.Background()
	bank, err := token.NewBank("umusd")
	require.NoError(t, err)
	market := integrator.NewMemory("aave", bank, pool)
	mgr := NewManager(bank, pool, integrator.NewRegistry(market))

	ratio, err := utils.RatioForDecimals(18)
	require.NoError(t, err)
	basket := &types.Basket{
		Bassets: []types.Basset{{
			Address:      "udai",
			Integrator:   "aave",
			Status:       types.StatusNormal,
			Decimals:     18,
			Ratio:        ratio,
			VaultBalance: units(supply),
		}},
		TotalSupply: units(supply),
		Surplus:     sdkmath.ZeroInt(),
		CacheSize:   sdkmath.LegacyNewDecWithPrec(1, 1),
	}

	require.NoError(t, bank.Fund(pool, sdk.NewCoin("udai", units(supply))))
	_, err = market.Deposit(ctx, "udai", units(supply-cached), false)
	require.NoError(t, err)
	return &fixture{ctx: ctx, bank: bank, market: market, mgr: mgr, basket: basket}
}

// receive simulates a user transfer landing in the pool account.
func (f *fixture) receive(t *testing.T, amount sdkmath.Int) {
	t.Helper()
	require.NoError(t, f.bank.Fund(pool, sdk.NewCoin("udai", amount)))
}

func (f *fixture) credit(amount sdkmath.Int) {
	f.basket.Bassets[0].VaultBalance = f.basket.Bassets[0].VaultBalance.Add(amount)
	f.basket.TotalSupply = f.basket.TotalSupply.Add(amount)
}

func (f *fixture) cache(t *testing.T) sdkmath.Int {
	t.Helper()
	c, err := f.mgr.Cache(f.ctx, "udai")
	require.NoError(t, err)
	return c
}

func TestClassify(t *testing.T) {
	maxCache := sdkmath.NewInt(10)
	assert.Equal(t, BelowMidpoint, Classify(sdkmath.NewInt(3), maxCache))
	assert.Equal(t, AtMidpoint, Classify(sdkmath.NewInt(5), maxCache))
	assert.Equal(t, BetweenMidpointAndCap, Classify(sdkmath.NewInt(7), maxCache))
	assert.Equal(t, BetweenMidpointAndCap, Classify(sdkmath.NewInt(10), maxCache))
	assert.Equal(t, OverCap, Classify(sdkmath.NewInt(11), maxCache))
	assert.Equal(t, "OverCap", OverCap.String())
}

func TestMaxCache(t *testing.T) {
	f := newFixture(t, 100, 0)
	assert.Equal(t, units(10).String(), MaxCache(f.basket, f.basket.Bassets[0]).String())

	f.basket.Surplus = units(5)
	assert.Equal(t, centi(1050).String(), MaxCache(f.basket, f.basket.Bassets[0]).String())
}

func TestDepositOverflowSweepsToMidpoint(t *testing.T) {
	f := newFixture(t, 100, 0)

	// +5 stays in the cache
	maxCache := MaxCache(f.basket, f.basket.Bassets[0])
	f.receive(t, units(5))
	credited, action, err := f.mgr.Deposit(f.ctx, f.basket.Bassets[0], units(5), maxCache)
	require.NoError(t, err)
	assert.Equal(t, units(5).String(), credited.String())
	assert.True(t, action.Deposited.IsZero())
	assert.Equal(t, units(5).String(), f.cache(t).String())
	f.credit(credited)

	// +6 reaches the 10.5 cap and sweeps down to 5.25
	maxCache = MaxCache(f.basket, f.basket.Bassets[0])
	assert.Equal(t, centi(1050).String(), maxCache.String())
	f.receive(t, units(6))
	credited, action, err = f.mgr.Deposit(f.ctx, f.basket.Bassets[0], units(6), maxCache)
	require.NoError(t, err)
	assert.Equal(t, units(6).String(), credited.String())
	assert.Equal(t, centi(575).String(), action.Deposited.String())
	assert.Equal(t, centi(525).String(), action.CacheAfter.String())
	assert.Equal(t, centi(525).String(), f.cache(t).String())
	assert.Equal(t, AtMidpoint, Classify(f.cache(t), maxCache))

	held, err := f.market.CheckBalance(f.ctx, "udai")
	require.NoError(t, err)
	assert.Equal(t, centi(10575).String(), held.String())
}

func TestDepositSweepFailure(t *testing.T) {
	f := newFixture(t, 100, 9)
	f.market.SetFailing(true)

	f.receive(t, units(2))
	_, _, err := f.mgr.Deposit(f.ctx, f.basket.Bassets[0], units(2), MaxCache(f.basket, f.basket.Bassets[0]))
	assert.ErrorIs(t, err, ErrIntegratorFailed)
	assert.Equal(t, units(11).String(), f.cache(t).String())
}

func TestWithdrawServedFromCache(t *testing.T) {
	f := newFixture(t, 100, 5)

	action, err := f.mgr.Withdraw(f.ctx, f.basket.Bassets[0], units(3), MaxCache(f.basket, f.basket.Bassets[0]), "alice")
	require.NoError(t, err)
	assert.True(t, action.Withdrawn.IsZero())
	assert.Equal(t, units(2).String(), f.cache(t).String())
	assert.Equal(t, units(3).String(), f.bank.Balances("alice").AmountOf("udai").String())
}

func TestWithdrawRefillsToMidpoint(t *testing.T) {
	f := newFixture(t, 100, 5)
	maxCache := MaxCache(f.basket, f.basket.Bassets[0])

	action, err := f.mgr.Withdraw(f.ctx, f.basket.Bassets[0], units(8), maxCache, "alice")
	require.NoError(t, err)
	assert.Equal(t, units(8).String(), action.Withdrawn.String())
	assert.Equal(t, units(5).String(), action.CacheAfter.String())
	assert.Equal(t, units(5).String(), f.cache(t).String())
	assert.Equal(t, AtMidpoint, Classify(f.cache(t), maxCache))
	assert.Equal(t, units(8).String(), f.bank.Balances("alice").AmountOf("udai").String())
}

func TestWithdrawRefillCappedByVault(t *testing.T) {
	f := newFixture(t, 100, 5)
	// a withdrawal of nearly everything cannot refill beyond what the integrator holds
	action, err := f.mgr.Withdraw(f.ctx, f.basket.Bassets[0], units(98), MaxCache(f.basket, f.basket.Bassets[0]), "alice")
	require.NoError(t, err)
	assert.Equal(t, units(95).String(), action.Withdrawn.String())
	assert.Equal(t, units(2).String(), f.cache(t).String())
}

func TestWithdrawIntegratorFailure(t *testing.T) {
	f := newFixture(t, 100, 5)
	f.market.SetFailing(true)

	_, err := f.mgr.Withdraw(f.ctx, f.basket.Bassets[0], units(8), MaxCache(f.basket, f.basket.Bassets[0]), "alice")
	assert.ErrorIs(t, err, ErrRedeemFailed)
	assert.Equal(t, units(5).String(), f.cache(t).String())
	assert.True(t, f.bank.Balances("alice").AmountOf("udai").IsZero())
}

func TestWithdrawIntegratorShortLiquidity(t *testing.T) {
	f := newFixture(t, 100, 5)
	f.market.SetLiquidity("udai", units(1))

	_, err := f.mgr.Withdraw(f.ctx, f.basket.Bassets[0], units(8), MaxCache(f.basket, f.basket.Bassets[0]), "alice")
	assert.ErrorIs(t, err, ErrRedeemFailed)
}

func TestTransferFeeAssetBypassesCache(t *testing.T) {
	f := newFixture(t, 100, 0)
	require.NoError(t, f.bank.SetTransferFee("udai", sdkmath.LegacyNewDecWithPrec(1, 2)))
	b := f.basket.Bassets[0]
	b.HasTxFee = true

	f.receive(t, units(10))
	credited, action, err := f.mgr.Deposit(f.ctx, b, units(10), MaxCache(f.basket, b))
	require.NoError(t, err)
	assert.Equal(t, centi(990).String(), credited.String())
	assert.Equal(t, centi(990).String(), action.Deposited.String())
	assert.True(t, f.cache(t).IsZero())

	received, err := f.mgr.Release(f.ctx, b, units(50), "alice")
	require.NoError(t, err)
	assert.Equal(t, centi(4950).String(), received.String())
}

func TestLocalAssetIsPureCache(t *testing.T) {
	f := newFixture(t, 100, 100)
	b := f.basket.Bassets[0]
	b.Integrator = ""

	f.receive(t, units(50))
	credited, action, err := f.mgr.Deposit(f.ctx, b, units(50), MaxCache(f.basket, b))
	require.NoError(t, err)
	assert.Equal(t, units(50).String(), credited.String())
	assert.True(t, action.Deposited.IsZero())
	assert.Equal(t, units(150).String(), f.cache(t).String())

	_, err = f.mgr.Prepare(f.ctx, b, units(151), MaxCache(f.basket, b))
	assert.ErrorIs(t, err, ErrRedeemFailed)
}

func TestUnknownIntegrator(t *testing.T) {
	f := newFixture(t, 100, 0)
	b := f.basket.Bassets[0]
	b.Integrator = "compound"

	_, _, err := f.mgr.Deposit(f.ctx, b, units(1), units(10))
	assert.ErrorIs(t, err, ErrUnknownIntegrator)
}

func TestUnwindReturnsSweep(t *testing.T) {
	f := newFixture(t, 100, 9)
	f.receive(t, units(2))
	_, action, err := f.mgr.Deposit(f.ctx, f.basket.Bassets[0], units(2), MaxCache(f.basket, f.basket.Bassets[0]))
	require.NoError(t, err)
	require.Equal(t, units(6).String(), action.Deposited.String())

	require.NoError(t, f.mgr.Unwind(f.ctx, f.basket.Bassets[0], action))
	assert.Equal(t, units(11).String(), f.cache(t).String())
}

func TestHasIntegrator(t *testing.T) {
	f := newFixture(t, 100, 0)
	assert.True(t, f.mgr.HasIntegrator("aave"))
	assert.False(t, f.mgr.HasIntegrator("compound"))
}

func TestSweepAllEmptiesCache(t *testing.T) {
	f := newFixture(t, 100, 7)

	action, err := f.mgr.SweepAll(f.ctx, f.basket.Bassets[0])
	require.NoError(t, err)
	assert.Equal(t, units(7).String(), action.Deposited.String())
	assert.True(t, f.cache(t).IsZero())

	held, err := f.market.CheckBalance(f.ctx, "udai")
	require.NoError(t, err)
	assert.Equal(t, units(100).String(), held.String())

	// nothing left to move
	action, err = f.mgr.SweepAll(f.ctx, f.basket.Bassets[0])
	require.NoError(t, err)
	assert.True(t, action.Deposited.IsZero())
}
