package config

import (
	"fmt"
	"strconv"
	"strings"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// AssetConfig describes a bAsset registered when the basket is created from scratch.
type AssetConfig struct {
	Denom      string
	Decimals   int
	Integrator string
	HasTxFee   bool
}

// Assets is the initial bAsset list parsed from BASKET_ASSETS. It is ignored once a basket has
// been persisted.
var Assets []AssetConfig

func loadAssetConfig() ([]AssetConfig, error) {
	return ParseAssets(getEnvOrDefault("BASKET_ASSETS", ""))
}

// ParseAssets reads a comma separated list of denom:decimals[:integrator[:fee]] entries, e.g.
// "uusdc:6:aave,udai:18,uusdt:6:aave:fee". Every integrator named must have an endpoint.
func ParseAssets(raw string) ([]AssetConfig, error) {
	var assets []AssetConfig
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) < 2 || len(fields) > 4 {
			return nil, fmt.Errorf("BASKET_ASSETS entry %q must look like denom:decimals[:integrator[:fee]]", entry)
		}

		a := AssetConfig{Denom: fields[0]}
		if err := sdk.ValidateDenom(a.Denom); err != nil {
			return nil, fmt.Errorf("BASKET_ASSETS entry %q: %w", entry, err)
		}
		if seen[a.Denom] {
			return nil, fmt.Errorf("BASKET_ASSETS lists %s twice", a.Denom)
		}
		seen[a.Denom] = true

		decimals, err := strconv.Atoi(fields[1])
		if err != nil || decimals < 0 || decimals > 18 {
			return nil, fmt.Errorf("BASKET_ASSETS entry %q: decimals must be between 0 and 18", entry)
		}
		a.Decimals = decimals

		if len(fields) >= 3 {
			a.Integrator = fields[2]
		}
		if len(fields) == 4 {
			if fields[3] != "fee" {
				return nil, fmt.Errorf("BASKET_ASSETS entry %q: unknown flag %q", entry, fields[3])
			}
			a.HasTxFee = true
		}
		if a.Integrator != "" && IntegratorEndpoints != nil {
			if _, ok := IntegratorEndpoints[a.Integrator]; !ok {
				return nil, fmt.Errorf("BASKET_ASSETS entry %q: integrator %s has no endpoint in INTEGRATOR_ENDPOINTS", entry, a.Integrator)
			}
		}
		assets = append(assets, a)
	}
	return assets, nil
}
