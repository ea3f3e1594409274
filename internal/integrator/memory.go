package integrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/elys-network/basket-engine/internal/token"
	"github.com/rs/zerolog"
)

// funder is implemented by ledgers that can create tokens, used to simulate accrued yield.
type funder interface {
	Fund(holder string, coins ...sdk.Coin) error
}

// Memory is an in-process lending market. Deposited tokens sit in its own account on the token
// ledger. Liquidity caps and an outage switch make withdrawal failures reproducible.
type Memory struct {
	mu        sync.Mutex
	name      string
	tokens    token.Ledger
	pool      string
	account   string
	balances  map[string]sdkmath.Int
	liquidity map[string]sdkmath.Int
	failing   bool
	log       zerolog.Logger
}

var _ Integrator = (*Memory)(nil)

// NewMemory creates a market named name that takes deposits from the pool account.
func NewMemory(name string, tokens token.Ledger, pool string) *Memory {
	return &Memory{
		name:      name,
		tokens:    tokens,
		pool:      pool,
		account:   "integrator/" + name,
		balances:  make(map[string]sdkmath.Int),
		liquidity: make(map[string]sdkmath.Int),
		log:       logger.GetForComponent("integrator_memory").With().Str("integrator", name).Logger(),
	}
}

// Name implements Integrator.
func (m *Memory) Name() string {
	return m.name
}

// Account returns the token ledger account holding deposited funds.
func (m *Memory) Account() string {
	return m.account
}

// SetFailing makes every subsequent call fail with ErrIntegratorUnavailable.
func (m *Memory) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

// SetLiquidity caps how much of asset can be withdrawn in a single call.
func (m *Memory) SetLiquidity(asset string, available sdkmath.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidity[asset] = available
}

// Accrue credits yield on asset. The ledger must be able to create tokens.
func (m *Memory) Accrue(asset string, amount sdkmath.Int) error {
	f, ok := m.tokens.(funder)
	if !ok {
		return errors.New("token ledger cannot create yield")
	}
	if err := f.Fund(m.account, sdk.NewCoin(asset, amount)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = m.balanceOf(asset).Add(amount)
	return nil
}

func (m *Memory) balanceOf(asset string) sdkmath.Int {
	if b, ok := m.balances[asset]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

// Deposit implements Integrator.
func (m *Memory) Deposit(ctx context.Context, asset string, amount sdkmath.Int, hasTxFee bool) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return sdkmath.ZeroInt(), ErrIntegratorUnavailable
	}

	received, err := m.tokens.TransferIn(ctx, m.pool, m.account, sdk.NewCoin(asset, amount))
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrIntegratorUnavailable, err)
	}
	m.balances[asset] = m.balanceOf(asset).Add(received)

	m.log.Debug().
		Str("asset", asset).
		Str("amount", amount.String()).
		Str("received", received.String()).
		Bool("hasTxFee", hasTxFee).
		Msg("Deposit accepted")
	return received, nil
}

// Withdraw implements Integrator.
func (m *Memory) Withdraw(ctx context.Context, receiver, asset string, amount sdkmath.Int, hasTxFee bool) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return sdkmath.ZeroInt(), ErrIntegratorUnavailable
	}
	if amount.GT(m.balanceOf(asset)) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s requested, %s deposited", ErrInsufficientLiquidity, amount, m.balanceOf(asset))
	}
	if available, ok := m.liquidity[asset]; ok && amount.GT(available) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s requested, %s available", ErrInsufficientLiquidity, amount, available)
	}

	received, err := m.tokens.TransferOut(ctx, m.account, receiver, sdk.NewCoin(asset, amount))
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrIntegratorUnavailable, err)
	}
	m.balances[asset] = m.balanceOf(asset).Sub(amount)

	m.log.Debug().
		Str("asset", asset).
		Str("receiver", receiver).
		Str("amount", amount.String()).
		Str("received", received.String()).
		Bool("hasTxFee", hasTxFee).
		Msg("Withdrawal sent")
	return received, nil
}

// CheckBalance implements Integrator.
func (m *Memory) CheckBalance(ctx context.Context, asset string) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return sdkmath.ZeroInt(), ErrIntegratorUnavailable
	}
	return m.balanceOf(asset), nil
}
