/*

This file contains the types recorded for every committed basket operation.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// OperationKind defines the engine operations that mutate the basket.
type OperationKind string

const (
	OpMint               OperationKind = "MINT"
	OpMintMulti          OperationKind = "MINT_MULTI"
	OpSwap               OperationKind = "SWAP"
	OpRedeem             OperationKind = "REDEEM"
	OpRedeemExact        OperationKind = "REDEEM_EXACT"
	OpRedeemProportional OperationKind = "REDEEM_PROPORTIONAL"
	OpCollectInterest    OperationKind = "COLLECT_INTEREST"
	OpCollectPlatform    OperationKind = "COLLECT_PLATFORM_INTEREST"
)

// CacheAction records what the cache manager did for one asset during an operation.
type CacheAction struct {
	Asset      string      `json:"asset"`
	Deposited  sdkmath.Int `json:"deposited"`  // moved cache -> integrator
	Withdrawn  sdkmath.Int `json:"withdrawn"`  // moved integrator -> cache
	CacheAfter sdkmath.Int `json:"cache_after"`
	MaxCache   sdkmath.Int `json:"max_cache"`
}

// Receipt is the durable record of one committed operation.
type Receipt struct {
	ReceiptID   int64           `json:"receipt_id,omitempty"` // Auto-incremented by DB
	OperationID string          `json:"operation_id"`
	Sequence    uint64          `json:"sequence"`
	Kind        OperationKind   `json:"kind"`
	Sender      string          `json:"sender,omitempty"`
	Recipient   string          `json:"recipient,omitempty"`
	Inputs      []sdktypes.Coin `json:"inputs"`
	Outputs     []sdktypes.Coin `json:"outputs"`
	MassetDelta sdkmath.Int     `json:"masset_delta"` // minted (+) or burned (-) pool token units
	Fee         sdkmath.Int     `json:"fee"`          // normalized units credited to surplus
	CacheMoves  []CacheAction   `json:"cache_moves,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Duration    time.Duration   `json:"duration"`
}

// Assets returns every denom touched by the operation, inputs first.
func (r Receipt) Assets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, coins := range [][]sdktypes.Coin{r.Inputs, r.Outputs} {
		for _, c := range coins {
			if !seen[c.Denom] {
				seen[c.Denom] = true
				out = append(out, c.Denom)
			}
		}
	}
	return out
}
