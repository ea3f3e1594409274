package token

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/rs/zerolog"
)

// Bank is an in-process Ledger. Denoms registered with a transfer fee lose that fraction on
// every transfer, the way fee-on-transfer tokens behave.
type Bank struct {
	mu           sync.RWMutex
	poolDenom    string
	balances     map[string]sdk.Coins
	transferFees map[string]sdkmath.LegacyDec
	supply       sdk.Coins
	log          zerolog.Logger
}

var _ Ledger = (*Bank)(nil)

// NewBank creates an empty bank issuing poolDenom as the pool token.
func NewBank(poolDenom string) (*Bank, error) {
	if err := sdk.ValidateDenom(poolDenom); err != nil {
		return nil, fmt.Errorf("%w: pool denom %q: %w", ErrInvalidCoin, poolDenom, err)
	}
	return &Bank{
		poolDenom:    poolDenom,
		balances:     make(map[string]sdk.Coins),
		transferFees: make(map[string]sdkmath.LegacyDec),
		supply:       sdk.NewCoins(),
		log:          logger.GetForComponent("token_bank"),
	}, nil
}

// PoolDenom returns the pool token denom.
func (b *Bank) PoolDenom() string {
	return b.poolDenom
}

// SetTransferFee makes every transfer of denom deliver amount*(1-rate).
func (b *Bank) SetTransferFee(denom string, rate sdkmath.LegacyDec) error {
	if rate.IsNil() || rate.IsNegative() || rate.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: transfer fee %s for %s", ErrInvalidCoin, rate, denom)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transferFees[denom] = rate
	return nil
}

// Fund credits coins to an account out of thin air. Used for bootstrapping and yield simulation.
func (b *Bank) Fund(holder string, coins ...sdk.Coin) error {
	if holder == "" {
		return ErrInvalidAccount
	}
	add := sdk.NewCoins(coins...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[holder] = b.balances[holder].Add(add...)
	b.supply = b.supply.Add(add...)
	return nil
}

// TransferIn implements Ledger.
func (b *Bank) TransferIn(ctx context.Context, from, to string, coin sdk.Coin) (sdkmath.Int, error) {
	return b.transfer(from, to, coin)
}

// TransferOut implements Ledger.
func (b *Bank) TransferOut(ctx context.Context, from, to string, coin sdk.Coin) (sdkmath.Int, error) {
	return b.transfer(from, to, coin)
}

func (b *Bank) transfer(from, to string, coin sdk.Coin) (sdkmath.Int, error) {
	if from == "" || to == "" {
		return sdkmath.ZeroInt(), ErrInvalidAccount
	}
	if err := coin.Validate(); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrInvalidCoin, err)
	}
	if coin.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	remaining, negative := b.balances[from].SafeSub(coin)
	if negative {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, b.balances[from].AmountOf(coin.Denom), coin)
	}
	received := coin.Amount
	if rate, ok := b.transferFees[coin.Denom]; ok {
		fee := utils.MulTruncate(coin.Amount, rate)
		if fee.IsPositive() {
			received = received.Sub(fee)
			b.supply = b.supply.Sub(sdk.NewCoin(coin.Denom, fee))
		}
	}
	b.balances[from] = remaining
	b.balances[to] = b.balances[to].Add(sdk.NewCoin(coin.Denom, received))

	b.log.Debug().
		Str("from", from).
		Str("to", to).
		Str("sent", coin.String()).
		Str("received", received.String()).
		Msg("Transfer settled")
	return received, nil
}

// BalanceOf implements Ledger.
func (b *Bank) BalanceOf(ctx context.Context, holder, denom string) (sdkmath.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[holder].AmountOf(denom), nil
}

// Balances returns every coin an account holds.
func (b *Bank) Balances(holder string) sdk.Coins {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[holder]
}

// Supply returns the total outstanding amount of denom.
func (b *Bank) Supply(denom string) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.supply.AmountOf(denom)
}

// MintPoolToken implements Ledger.
func (b *Bank) MintPoolToken(ctx context.Context, to string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: mint amount %s", ErrInvalidCoin, amount)
	}
	return b.Fund(to, sdk.NewCoin(b.poolDenom, amount))
}

// BurnPoolToken implements Ledger.
func (b *Bank) BurnPoolToken(ctx context.Context, from string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: burn amount %s", ErrInvalidCoin, amount)
	}
	burn := sdk.NewCoin(b.poolDenom, amount)

	b.mu.Lock()
	defer b.mu.Unlock()
	remaining, negative := b.balances[from].SafeSub(burn)
	if negative {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, b.balances[from].AmountOf(b.poolDenom), burn)
	}
	b.balances[from] = remaining
	b.supply = b.supply.Sub(burn)
	return nil
}
