package integrator

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrIntegratorUnavailable = errors.New("integrator is unavailable")
	ErrInsufficientLiquidity = errors.New("integrator has insufficient liquidity")
	ErrInvalidAmount         = errors.New("amount is invalid")
	ErrInvalidAsset          = errors.New("asset is invalid")
	ErrRPCRequestFailed      = errors.New("RPC request failed")
	ErrInvalidResponse       = errors.New("response data is invalid")
)

// Integrator defines the interface to an external yield market holding part of the basket's
// underlying assets. Implementations move real tokens through the token ledger, so the basket's
// physical cache is always observable as its own token balance.
type Integrator interface {
	// Name returns the handle bAssets reference this integrator by.
	Name() string

	// Deposit pulls amount of asset from the basket account into the market and returns the
	// amount the market credited, which is lower than amount for transfer-fee assets.
	Deposit(ctx context.Context, asset string, amount sdkmath.Int, hasTxFee bool) (sdkmath.Int, error)

	// Withdraw sends amount of asset from the market to receiver and returns the amount the
	// receiver got. Implementations never fill partially: they either send amount or fail.
	Withdraw(ctx context.Context, receiver, asset string, amount sdkmath.Int, hasTxFee bool) (sdkmath.Int, error)

	// CheckBalance returns everything the market owes the basket for asset, accrued yield included.
	CheckBalance(ctx context.Context, asset string) (sdkmath.Int, error)
}

// Registry maps integrator handles to implementations.
type Registry map[string]Integrator

// NewRegistry indexes integrators by name.
func NewRegistry(integrators ...Integrator) Registry {
	r := make(Registry, len(integrators))
	for _, i := range integrators {
		r[i.Name()] = i
	}
	return r
}

// Get returns the integrator registered under name.
func (r Registry) Get(name string) (Integrator, bool) {
	i, ok := r[name]
	return i, ok
}
