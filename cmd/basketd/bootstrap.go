package main

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/config"
	"github.com/elys-network/basket-engine/internal/engine"
	"github.com/elys-network/basket-engine/internal/integrator"
	"github.com/elys-network/basket-engine/internal/state"
	"github.com/elys-network/basket-engine/internal/token"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/rs/zerolog/log"
)

// buildIntegrators creates one client per configured endpoint. The "memory" endpoint runs a
// simulated market inside the process.
func buildIntegrators(bank token.Ledger, pool string, endpoints map[string]string) (integrator.Registry, error) {
	var all []integrator.Integrator
	for name, endpoint := range endpoints {
		if endpoint == config.MemoryEndpoint {
			log.Warn().Str("integrator", name).Msg("Using in-process simulated market")
			all = append(all, integrator.NewMemory(name, bank, pool))
			continue
		}
		client, err := integrator.NewRPCClient(name, endpoint, pool, config.IntegratorTimeout)
		if err != nil {
			return nil, fmt.Errorf("integrator %s: %w", name, err)
		}
		all = append(all, client)
	}
	return integrator.NewRegistry(all...), nil
}

// loadParameters returns the active parameter set, seeding the database with the defaults on
// first start.
func loadParameters(ctx context.Context, configName string) types.BasketParameters {
	if !config.PersistenceEnabled() {
		return config.DefaultBasketParameters
	}
	params, err := state.LoadActiveBasketParameters(ctx, configName)
	if err == nil {
		log.Info().Str("config", configName).Msg("Basket parameters loaded successfully.")
		return *params
	}

	log.Warn().Err(err).Msg("Failed to load active basket parameters, using defaults and saving.")
	defaults := config.DefaultBasketParameters
	if _, err := state.SaveBasketParameters(ctx, defaults, configName, 1, true, "initial defaults"); err != nil {
		log.Fatal().Err(err).Msg("Failed to save initial default basket parameters.")
	}
	return defaults
}

// restoreBasket loads the last checkpoint. ok is false when the database is disabled or empty.
func restoreBasket(ctx context.Context) (*types.Basket, bool, error) {
	if !config.PersistenceEnabled() {
		return nil, false, nil
	}
	b, err := state.LoadBasket(ctx)
	if errors.Is(err, state.ErrNoBasket) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// emptyBasket returns a basket with no bAssets and the given parameters.
func emptyBasket(params types.BasketParameters) *types.Basket {
	b := &types.Basket{
		TotalSupply: sdkmath.ZeroInt(),
		Surplus:     sdkmath.ZeroInt(),
	}
	b.ApplyParameters(params)
	return b
}

// fundRestored credits the in-process token ledger with the checkpointed holdings. Every vault
// is placed in the pool account and the basket supply is held by the pool until claimed.
func fundRestored(ctx context.Context, bank *token.Bank, pool string, b *types.Basket) error {
	for _, ba := range b.Bassets {
		if !ba.VaultBalance.IsPositive() {
			continue
		}
		if err := bank.Fund(pool, sdk.NewCoin(ba.Address, ba.VaultBalance)); err != nil {
			return fmt.Errorf("failed to fund %s: %w", ba.Address, err)
		}
	}
	if b.TotalSupply.IsPositive() {
		return bank.MintPoolToken(ctx, pool, b.TotalSupply)
	}
	return nil
}

// registerAssets adds the configured bAssets the basket does not know yet.
func registerAssets(ctx context.Context, eng *engine.Engine, assets []config.AssetConfig) error {
	for _, a := range assets {
		if _, err := eng.GetBasset(a.Denom); err == nil {
			continue
		}
		if err := eng.AddBasset(ctx, a.Denom, a.Decimals, a.Integrator, a.HasTxFee); err != nil {
			return fmt.Errorf("failed to add bAsset %s: %w", a.Denom, err)
		}
		log.Info().
			Str("asset", a.Denom).
			Int("decimals", a.Decimals).
			Str("integrator", a.Integrator).
			Msg("bAsset registered")
	}
	return nil
}
