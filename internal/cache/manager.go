/*
This file contains the platform-integration cache manager. Each bAsset with an integrator keeps
a slice of its vault balance in the basket's own token account (the cache) so most mints and
redemptions never touch the external market. The cache is swept down to its midpoint when it
reaches the cap and refilled to its midpoint when a withdrawal exhausts it.
*/

package cache

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/integrator"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/elys-network/basket-engine/internal/token"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/rs/zerolog"
)

// Error definitions for zero-tolerance error handling
var (
	ErrRedeemFailed      = errors.New("redeem failed")
	ErrIntegratorFailed  = errors.New("integrator deposit failed")
	ErrUnknownIntegrator = errors.New("integrator is not registered")
	ErrCacheRead         = errors.New("cache balance could not be read")
)

// MaxCacheSize is the largest cache fraction governance may configure.
var MaxCacheSize = sdkmath.LegacyNewDecWithPrec(2, 1)

// State is the position of a cache relative to its midpoint and cap.
type State int

const (
	BelowMidpoint State = iota
	AtMidpoint
	BetweenMidpointAndCap
	OverCap
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case BelowMidpoint:
		return "BelowMidpoint"
	case AtMidpoint:
		return "AtMidpoint"
	case BetweenMidpointAndCap:
		return "BetweenMidpointAndCap"
	case OverCap:
		return "OverCap"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Classify places a physical cache against its cap.
func Classify(cache, maxCache sdkmath.Int) State {
	mid := maxCache.QuoRaw(2)
	switch {
	case cache.GT(maxCache):
		return OverCap
	case cache.GT(mid):
		return BetweenMidpointAndCap
	case cache.Equal(mid):
		return AtMidpoint
	default:
		return BelowMidpoint
	}
}

// MaxCache returns the cap of one asset's cache in native units, computed on the basket value
// before the operation.
func MaxCache(b *types.Basket, basset types.Basset) sdkmath.Int {
	return utils.MulTruncate(utils.ToNative(b.TotalValue(), basset.Ratio), b.CacheSize)
}

// Manager keeps caches between their midpoint and cap.
type Manager struct {
	tokens      token.Ledger
	integrators integrator.Registry
	pool        string
	log         zerolog.Logger
}

// NewManager creates a cache manager for the basket account pool.
func NewManager(tokens token.Ledger, pool string, integrators integrator.Registry) *Manager {
	return &Manager{
		tokens:      tokens,
		integrators: integrators,
		pool:        pool,
		log:         logger.GetForComponent("cache_manager"),
	}
}

// Pool returns the basket account the caches live in.
func (m *Manager) Pool() string {
	return m.pool
}

// Cache reads the physical cache of asset.
func (m *Manager) Cache(ctx context.Context, asset string) (sdkmath.Int, error) {
	bal, err := m.tokens.BalanceOf(ctx, m.pool, asset)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrCacheRead, err)
	}
	return bal, nil
}

// HasIntegrator reports whether name is registered.
func (m *Manager) HasIntegrator(name string) bool {
	_, ok := m.integrators.Get(name)
	return ok
}

// integratorFor returns the asset's integrator, or nil when the asset is held locally.
func (m *Manager) integratorFor(basset types.Basset) (integrator.Integrator, error) {
	if !basset.HasIntegrator() {
		return nil, nil
	}
	i, ok := m.integrators.Get(basset.Integrator)
	if !ok {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownIntegrator, basset.Integrator, basset.Address)
	}
	return i, nil
}

// IntegratorBalance returns what the asset's integrator holds for the basket, zero without one.
func (m *Manager) IntegratorBalance(ctx context.Context, basset types.Basset) (sdkmath.Int, error) {
	i, err := m.integratorFor(basset)
	if err != nil || i == nil {
		return sdkmath.ZeroInt(), err
	}
	return i.CheckBalance(ctx, basset.Address)
}

// Deposit settles amount of basset that has already arrived in the pool account and returns the
// amount to credit to the vault. Transfer-fee assets go straight to the integrator; any other
// cache that reached maxCache is swept down to maxCache/2.
func (m *Manager) Deposit(ctx context.Context, basset types.Basset, amount, maxCache sdkmath.Int) (sdkmath.Int, types.CacheAction, error) {
	action := newAction(basset.Address, maxCache)
	integ, err := m.integratorFor(basset)
	if err != nil {
		return sdkmath.ZeroInt(), action, err
	}

	if integ == nil {
		cache, err := m.Cache(ctx, basset.Address)
		if err != nil {
			return sdkmath.ZeroInt(), action, err
		}
		action.CacheAfter = cache
		return amount, action, nil
	}

	if basset.HasTxFee {
		deposited, err := integ.Deposit(ctx, basset.Address, amount, true)
		if err != nil {
			return sdkmath.ZeroInt(), action, errors.Join(ErrIntegratorFailed, err)
		}
		action.Deposited = deposited
		action.CacheAfter, err = m.Cache(ctx, basset.Address)
		if err != nil {
			return sdkmath.ZeroInt(), action, err
		}
		return sdkmath.MinInt(amount, deposited), action, nil
	}

	cache, err := m.Cache(ctx, basset.Address)
	if err != nil {
		return sdkmath.ZeroInt(), action, err
	}
	action.CacheAfter = cache
	mid := maxCache.QuoRaw(2)
	if cache.LT(maxCache) || !cache.GT(mid) {
		return amount, action, nil
	}

	sweep := cache.Sub(mid)
	deposited, err := integ.Deposit(ctx, basset.Address, sweep, false)
	if err != nil {
		m.log.Error().Err(err).Str("asset", basset.Address).Str("sweep", sweep.String()).Msg("Cache sweep failed")
		return sdkmath.ZeroInt(), action, errors.Join(ErrIntegratorFailed, err)
	}
	if !deposited.Equal(sweep) {
		m.log.Warn().
			Str("asset", basset.Address).
			Str("sweep", sweep.String()).
			Str("deposited", deposited.String()).
			Msg("Integrator credited a different amount than swept")
	}
	action.Deposited = sweep
	action.CacheAfter = mid

	m.log.Debug().
		Str("asset", basset.Address).
		Str("cacheBefore", cache.String()).
		Str("maxCache", maxCache.String()).
		Str("swept", sweep.String()).
		Msg("Cache swept to midpoint")
	return amount, action, nil
}

// Prepare makes sure the pool account holds amount of basset, refilling the cache from the
// integrator to maxCache/2 beyond amount when it falls short. Transfer-fee assets are released
// straight from the integrator, so there is nothing to prepare.
func (m *Manager) Prepare(ctx context.Context, basset types.Basset, amount, maxCache sdkmath.Int) (types.CacheAction, error) {
	action := newAction(basset.Address, maxCache)
	integ, err := m.integratorFor(basset)
	if err != nil {
		return action, errors.Join(ErrRedeemFailed, err)
	}
	if integ != nil && basset.HasTxFee {
		return action, nil
	}

	cache, err := m.Cache(ctx, basset.Address)
	if err != nil {
		return action, errors.Join(ErrRedeemFailed, err)
	}
	if amount.LTE(cache) {
		action.CacheAfter = cache.Sub(amount)
		return action, nil
	}
	if integ == nil {
		return action, fmt.Errorf("%w: %s cache %s below %s with no integrator", ErrRedeemFailed, basset.Address, cache, amount)
	}

	want := maxCache.QuoRaw(2).Add(amount).Sub(cache)
	limit := sdkmath.ZeroInt()
	if basset.VaultBalance.GT(cache) {
		limit = basset.VaultBalance.Sub(cache)
	}
	refill := sdkmath.MinInt(want, limit)
	if cache.Add(refill).LT(amount) {
		return action, fmt.Errorf("%w: %s vault %s cannot cover %s", ErrRedeemFailed, basset.Address, basset.VaultBalance, amount)
	}

	received, err := integ.Withdraw(ctx, m.pool, basset.Address, refill, false)
	if err != nil {
		m.log.Error().Err(err).Str("asset", basset.Address).Str("refill", refill.String()).Msg("Cache refill failed")
		return action, errors.Join(ErrRedeemFailed, err)
	}
	if received.LT(refill) {
		return action, fmt.Errorf("%w: %s refill delivered %s of %s", ErrRedeemFailed, basset.Address, received, refill)
	}
	action.Withdrawn = received
	action.CacheAfter = cache.Add(received).Sub(amount)

	m.log.Debug().
		Str("asset", basset.Address).
		Str("cacheBefore", cache.String()).
		Str("amount", amount.String()).
		Str("refilled", received.String()).
		Msg("Cache refilled to midpoint")
	return action, nil
}

// Release sends amount of basset to recipient, from the integrator for transfer-fee assets and
// from the cache otherwise. It returns what the recipient received.
func (m *Manager) Release(ctx context.Context, basset types.Basset, amount sdkmath.Int, recipient string) (sdkmath.Int, error) {
	integ, err := m.integratorFor(basset)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRedeemFailed, err)
	}
	if integ != nil && basset.HasTxFee {
		received, err := integ.Withdraw(ctx, recipient, basset.Address, amount, true)
		if err != nil {
			return sdkmath.ZeroInt(), errors.Join(ErrRedeemFailed, err)
		}
		return received, nil
	}
	received, err := m.tokens.TransferOut(ctx, m.pool, recipient, sdk.NewCoin(basset.Address, amount))
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRedeemFailed, err)
	}
	return received, nil
}

// Withdraw prepares and releases amount of basset to recipient.
func (m *Manager) Withdraw(ctx context.Context, basset types.Basset, amount, maxCache sdkmath.Int, recipient string) (types.CacheAction, error) {
	action, err := m.Prepare(ctx, basset, amount, maxCache)
	if err != nil {
		return action, err
	}
	if _, err := m.Release(ctx, basset, amount, recipient); err != nil {
		return action, err
	}
	return action, nil
}

// Unwind returns a swept deposit from the integrator to the pool account so that a failed
// operation can refund its input.
func (m *Manager) Unwind(ctx context.Context, basset types.Basset, action types.CacheAction) error {
	if action.Deposited.IsNil() || !action.Deposited.IsPositive() {
		return nil
	}
	integ, err := m.integratorFor(basset)
	if err != nil || integ == nil {
		return err
	}
	if _, err := integ.Withdraw(ctx, m.pool, basset.Address, action.Deposited, basset.HasTxFee); err != nil {
		return errors.Join(ErrRedeemFailed, err)
	}
	return nil
}

// SweepAll moves the entire cache of basset to its integrator. It is used when an asset switches
// to transfer-fee handling, after which nothing is cached for it.
func (m *Manager) SweepAll(ctx context.Context, basset types.Basset) (types.CacheAction, error) {
	action := newAction(basset.Address, sdkmath.ZeroInt())
	integ, err := m.integratorFor(basset)
	if err != nil || integ == nil {
		return action, err
	}
	cache, err := m.Cache(ctx, basset.Address)
	if err != nil {
		return action, err
	}
	if !cache.IsPositive() {
		return action, nil
	}
	if _, err := integ.Deposit(ctx, basset.Address, cache, basset.HasTxFee); err != nil {
		return action, errors.Join(ErrIntegratorFailed, err)
	}
	action.Deposited = cache

	m.log.Info().Str("asset", basset.Address).Str("swept", cache.String()).Msg("Cache emptied into integrator")
	return action, nil
}

func newAction(asset string, maxCache sdkmath.Int) types.CacheAction {
	return types.CacheAction{
		Asset:      asset,
		Deposited:  sdkmath.ZeroInt(),
		Withdrawn:  sdkmath.ZeroInt(),
		CacheAfter: sdkmath.ZeroInt(),
		MaxCache:   maxCache,
	}
}
