/*

This file contains the types for the underlying assets (bAssets) held by the basket.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// BassetStatus is the lifecycle status of an underlying asset.
type BassetStatus uint8

const (
	StatusNormal BassetStatus = iota
	StatusBrokenBelowPeg
	StatusBrokenAbovePeg
	StatusBlacklisted
	StatusLiquidating
	StatusLiquidated
	StatusDefault
)

// String returns the canonical name of the status.
func (s BassetStatus) String() string {
	switch s {
	case StatusNormal:
		return "Normal"
	case StatusBrokenBelowPeg:
		return "BrokenBelowPeg"
	case StatusBrokenAbovePeg:
		return "BrokenAbovePeg"
	case StatusBlacklisted:
		return "Blacklisted"
	case StatusLiquidating:
		return "Liquidating"
	case StatusLiquidated:
		return "Liquidated"
	case StatusDefault:
		return "Default"
	default:
		return fmt.Sprintf("BassetStatus(%d)", uint8(s))
	}
}

// ParseBassetStatus is the inverse of String.
func ParseBassetStatus(s string) (BassetStatus, error) {
	for st := StatusNormal; st <= StatusDefault; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown bAsset status %q", s)
}

// IsNormal reports whether the asset may take part in single-asset mint, swap and redemption.
func (s BassetStatus) IsNormal() bool {
	switch s {
	case StatusNormal:
		return true
	case StatusBrokenBelowPeg, StatusBrokenAbovePeg, StatusBlacklisted, StatusLiquidating, StatusLiquidated, StatusDefault:
		return false
	default:
		return false
	}
}

// Basset is the personal metadata and vault data of one basket member.
type Basset struct {
	Address      string       `json:"address"`              // e.g., "uusdc" or "ibc/498A...8F" (unique key)
	Integrator   string       `json:"integrator,omitempty"` // Integrator handle, empty when held purely locally
	HasTxFee     bool         `json:"has_tx_fee"`           // Transfers may deliver less than requested
	Status       BassetStatus `json:"status"`
	Decimals     int          `json:"decimals"`
	Ratio        sdkmath.Int  `json:"ratio"`         // native -> normalized scale factor, see utils.RatioScale
	VaultBalance sdkmath.Int  `json:"vault_balance"` // native units owed to the pool

	// MaxWeight overrides the basket limits for this asset when set.
	MaxWeight *sdkmath.LegacyDec `json:"max_weight,omitempty"`
}

// HasIntegrator reports whether part of the vault balance may sit with an external market.
func (b Basset) HasIntegrator() bool {
	return b.Integrator != ""
}

// Clone returns a deep copy of the asset record.
func (b Basset) Clone() Basset {
	c := b
	if b.MaxWeight != nil {
		w := b.MaxWeight.Clone()
		c.MaxWeight = &w
	}
	return c
}

// BassetView is the read-only pair returned by basket introspection.
type BassetView struct {
	Personal BassetPersonal `json:"personal"`
	Data     BassetData     `json:"data"`
}

// BassetPersonal is the static half of a Basset.
type BassetPersonal struct {
	Address    string       `json:"address"`
	Integrator string       `json:"integrator,omitempty"`
	HasTxFee   bool         `json:"has_tx_fee"`
	Status     BassetStatus `json:"status"`
}

// BassetData is the accounting half of a Basset.
type BassetData struct {
	Ratio        sdkmath.Int `json:"ratio"`
	VaultBalance sdkmath.Int `json:"vault_balance"`
}

// View splits the asset into its personal and data halves.
func (b Basset) View() BassetView {
	return BassetView{
		Personal: BassetPersonal{
			Address:    b.Address,
			Integrator: b.Integrator,
			HasTxFee:   b.HasTxFee,
			Status:     b.Status,
		},
		Data: BassetData{
			Ratio:        b.Ratio,
			VaultBalance: b.VaultBalance,
		},
	}
}
