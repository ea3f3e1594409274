// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveBasketParameters saves a new version of basket parameters.
func SaveBasketParameters(ctx context.Context, params types.BasketParameters, configName string, version int, makeActive bool, reason string) (paramsID int64, err error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackOnError(tx, &err)

	if makeActive {
		stmtDeactivate := `UPDATE basket_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.ExecContext(ctx, stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO basket_parameters (
            version, config_name, is_active, activated_at, created_at,
            min_weight, max_weight, soft_min_weight, soft_max_weight,
            max_penalty, cache_size, swap_fee, redemption_fee,
            reason
        ) VALUES (
            $1, $2, $3, $4, $5,   -- version, config_name, is_active, activated_at, created_at
            $6, $7, $8, $9,       -- weight limits
            $10, $11, $12, $13,   -- penalty, cache, fees
            $14
        ) RETURNING params_id;`

	currentTime := time.Now()
	err = tx.QueryRowContext(ctx,
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.Limits.Min.String(), params.Limits.Max.String(), params.Limits.SoftMin.String(), params.Limits.SoftMax.String(),
		params.MaxPenalty.String(), params.CacheSize.String(), params.SwapFee.String(), params.RedemptionFee.String(),
		reason,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert basket parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Str("reason", reason).
		Msg("Saved basket parameters")
	return paramsID, nil
}

// NextParametersVersion returns the version number the next save for configName should use.
func NextParametersVersion(ctx context.Context, configName string) (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var version int
	err := DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM basket_parameters WHERE config_name = $1;`,
		configName,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get next parameters version for config '%s': %w", configName, err)
	}
	return version, nil
}

// LoadActiveBasketParameters loads the currently active basket parameters.
func LoadActiveBasketParameters(ctx context.Context, configName string) (*types.BasketParameters, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
        SELECT
            min_weight, max_weight, soft_min_weight, soft_max_weight,
            max_penalty, cache_size, swap_fee, redemption_fee
        FROM basket_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var cols [8]string
	row := DB.QueryRowContext(ctx, query, configName)
	err := row.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &cols[7])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active basket parameters found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active basket parameters for config '%s': %w", configName, err)
	}

	var decs [8]sdkmath.LegacyDec
	for i, c := range cols {
		if decs[i], err = sdkmath.LegacyNewDecFromStr(c); err != nil {
			return nil, fmt.Errorf("invalid basket parameter %q for config '%s': %w", c, configName, err)
		}
	}

	p := &types.BasketParameters{
		Limits: types.WeightLimits{
			Min:     decs[0],
			Max:     decs[1],
			SoftMin: decs[2],
			SoftMax: decs[3],
		},
		MaxPenalty:    decs[4],
		CacheSize:     decs[5],
		SwapFee:       decs[6],
		RedemptionFee: decs[7],
	}
	log.Info().Str("config", configName).Msg("Loaded active basket parameters")
	return p, nil
}

// SaveParameters records p as the new active version of the store's config.
func (s *PostgresStore) SaveParameters(ctx context.Context, p types.BasketParameters, reason string) error {
	version, err := NextParametersVersion(ctx, s.ConfigName)
	if err != nil {
		return err
	}
	_, err = SaveBasketParameters(ctx, p, s.ConfigName, version, true, reason)
	return err
}
