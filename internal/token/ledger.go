package token

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidCoin         = errors.New("coin is invalid")
	ErrInvalidAccount      = errors.New("account is invalid")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Ledger is the token bookkeeping the basket engine relies on. Transfers report the amount the
// receiver actually got, which is less than requested for assets that charge a transfer fee.
type Ledger interface {
	// TransferIn moves coin from a user account into a basket-controlled account.
	TransferIn(ctx context.Context, from, to string, coin sdk.Coin) (sdkmath.Int, error)

	// TransferOut moves coin from a basket-controlled account to a user account.
	TransferOut(ctx context.Context, from, to string, coin sdk.Coin) (sdkmath.Int, error)

	// BalanceOf returns the holder's balance of denom.
	BalanceOf(ctx context.Context, holder, denom string) (sdkmath.Int, error)

	// MintPoolToken issues pool tokens to an account.
	MintPoolToken(ctx context.Context, to string, amount sdkmath.Int) error

	// BurnPoolToken destroys pool tokens held by an account.
	BurnPoolToken(ctx context.Context, from string, amount sdkmath.Int) error

	// PoolDenom is the denom of the pool token.
	PoolDenom() string
}
