/*

This file contains the default parameters for the basket.

These parameters are designed for a basket of a handful of USD stablecoins holding significant capital.
Each value balances peg-risk containment against the cost of trading into and out of the basket.

*/

package config

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/types"
)

// DefaultBasketParameters provides a baseline set of parameters for a new basket.
// These values are used if no active parameters are found in the database during initialization.
//
// IMPORTANT: These defaults assume every bAsset is a fiat-backed stablecoin.
// Baskets mixing algorithmic or yield-bearing assets need tighter weights.
var DefaultBasketParameters = types.BasketParameters{
	Limits: types.WeightLimits{
		Min: sdkmath.LegacyNewDecWithPrec(5, 2), // No bAsset may fall below 5% of the basket.
		// Rationale: Redemptions into the most popular asset must leave some of it behind,
		// otherwise a single depeg empties the basket of everything but the failing coin.

		Max: sdkmath.LegacyNewDecWithPrec(55, 2), // No bAsset may exceed 55% of the basket.
		// Rationale: Caps the loss from any one issuer failing at a little over half of the backing.
		// Tighter caps make the basket unusable with three assets, where 33% is the floor.

		SoftMin: sdkmath.LegacyNewDecWithPrec(10, 2), // Penalty starts below 10%.
		SoftMax: sdkmath.LegacyNewDecWithPrec(45, 2), // Penalty starts above 45%.
		// Rationale: Between the soft and hard bounds trades are still allowed but pay a fee
		// that grows linearly, which pushes arbitrageurs to rebalance before the hard wall is hit.
	},

	MaxPenalty: sdkmath.LegacyNewDecWithPrec(5, 2), // Up to 5% extra fee at the hard bounds.
	// Rationale: Must exceed any realistic depeg discount, otherwise draining a failing asset
	// into the basket stays profitable right up to the hard limit.

	CacheSize: sdkmath.LegacyNewDecWithPrec(10, 2), // Each cache may hold up to 10% of basket value.
	// Rationale: Most redemptions are paid from the cache without touching the integrator,
	// while 90% of integrated capital keeps earning.

	SwapFee: sdkmath.LegacyNewDecWithPrec(6, 4), // 6 basis points per swap.
	// Rationale: Stable-to-stable swaps compete with AMM curve pools charging 4 to 10 bps.

	RedemptionFee: sdkmath.LegacyNewDecWithPrec(3, 4), // 3 basis points per redemption.
	// Rationale: Lower than swaps so holders are not discouraged from exiting, but non-zero
	// to deter mint and redeem cycling used to route around the swap fee.
}
