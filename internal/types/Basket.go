/*

This file contains the basket aggregate: the ordered bAsset list plus the basket-wide accounting
and configuration that every mint, swap and redemption reads and mutates.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// WeightLimits bounds each asset's share of total pool value.
// Inside [SoftMin, SoftMax] no penalty applies; between a soft and a hard bound the penalty grows
// linearly; beyond a hard bound the operation is rejected (minimum side: redemption only priced).
type WeightLimits struct {
	Min     sdkmath.LegacyDec `json:"min"`
	Max     sdkmath.LegacyDec `json:"max"`
	SoftMin sdkmath.LegacyDec `json:"soft_min"`
	SoftMax sdkmath.LegacyDec `json:"soft_max"`
}

// Basket is the single owned aggregate for one pool token.
type Basket struct {
	Bassets     []Basset    `json:"bassets"`
	TotalSupply sdkmath.Int `json:"total_supply"` // pool token units, 18 decimals
	Surplus     sdkmath.Int `json:"surplus"`      // fee and rounding residue not yet distributed

	Limits        WeightLimits      `json:"limits"`
	MaxPenalty    sdkmath.LegacyDec `json:"max_penalty"`    // penalty rate reached at a hard bound
	CacheSize     sdkmath.LegacyDec `json:"cache_size"`     // fraction of pool value a single cache may hold
	SwapFee       sdkmath.LegacyDec `json:"swap_fee"`       // e.g., 0.0006 = 6bps
	RedemptionFee sdkmath.LegacyDec `json:"redemption_fee"` // e.g., 0.0003 = 3bps

	Sequence uint64 `json:"sequence"` // Number of committed operations
}

// TotalValue is the pool value every weight is measured against.
func (b *Basket) TotalValue() sdkmath.Int {
	return b.TotalSupply.Add(b.Surplus)
}

// Index returns the position of the asset in the basket or -1.
func (b *Basket) Index(address string) int {
	for i := range b.Bassets {
		if b.Bassets[i].Address == address {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so that a writer can mutate it without readers observing partial state.
func (b *Basket) Clone() *Basket {
	c := *b
	c.Bassets = make([]Basset, len(b.Bassets))
	for i := range b.Bassets {
		c.Bassets[i] = b.Bassets[i].Clone()
	}
	return &c
}

// Views returns the personal/data view of every asset, in basket order.
func (b *Basket) Views() []BassetView {
	views := make([]BassetView, len(b.Bassets))
	for i := range b.Bassets {
		views[i] = b.Bassets[i].View()
	}
	return views
}

// BasketParameters is the governance-controlled configuration of a basket.
type BasketParameters struct {
	Limits        WeightLimits      `json:"limits"`
	MaxPenalty    sdkmath.LegacyDec `json:"max_penalty"`
	CacheSize     sdkmath.LegacyDec `json:"cache_size"`
	SwapFee       sdkmath.LegacyDec `json:"swap_fee"`
	RedemptionFee sdkmath.LegacyDec `json:"redemption_fee"`
}

// Parameters returns the basket's current configuration.
func (b *Basket) Parameters() BasketParameters {
	return BasketParameters{
		Limits:        b.Limits,
		MaxPenalty:    b.MaxPenalty,
		CacheSize:     b.CacheSize,
		SwapFee:       b.SwapFee,
		RedemptionFee: b.RedemptionFee,
	}
}

// ApplyParameters overwrites the basket's configuration.
func (b *Basket) ApplyParameters(p BasketParameters) {
	b.Limits = p.Limits
	b.MaxPenalty = p.MaxPenalty
	b.CacheSize = p.CacheSize
	b.SwapFee = p.SwapFee
	b.RedemptionFee = p.RedemptionFee
}
