// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/rs/zerolog/log"
)

// ErrNoBasket is returned by LoadBasket when nothing has been checkpointed yet.
var ErrNoBasket = errors.New("no basket checkpoint found")

// PostgresStore persists baskets, receipts and parameter history through the global DB.
type PostgresStore struct {
	ConfigName string
}

// NewPostgresStore returns a store that records parameter versions under configName.
func NewPostgresStore(configName string) *PostgresStore {
	if configName == "" {
		configName = "default"
	}
	return &PostgresStore{ConfigName: configName}
}

// SaveBasket checkpoints b.
func (s *PostgresStore) SaveBasket(ctx context.Context, b *types.Basket) error {
	return SaveBasket(ctx, b)
}

// LoadBasket restores the last checkpoint.
func (s *PostgresStore) LoadBasket(ctx context.Context) (*types.Basket, error) {
	return LoadBasket(ctx)
}

// SaveBasket writes the basket row and every bAsset row in one transaction.
func SaveBasket(ctx context.Context, b *types.Basket) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}

	paramsJSON, err := json.Marshal(b.Parameters())
	if err != nil {
		return fmt.Errorf("failed to marshal basket parameters: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackOnError(tx, &err)

	basketStmt := `
		INSERT INTO basket_state (id, sequence, total_supply, surplus, parameters, updated_at)
		VALUES (1, $1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			sequence = EXCLUDED.sequence,
			total_supply = EXCLUDED.total_supply,
			surplus = EXCLUDED.surplus,
			parameters = EXCLUDED.parameters,
			updated_at = CURRENT_TIMESTAMP
		WHERE basket_state.sequence <= EXCLUDED.sequence;`

	if _, err = tx.ExecContext(ctx, basketStmt, int64(b.Sequence), b.TotalSupply.String(), b.Surplus.String(), paramsJSON); err != nil {
		return fmt.Errorf("failed to save basket state: %w", err)
	}

	bassetStmt := `
		INSERT INTO bassets (address, position, integrator, has_tx_fee, status, decimals, ratio, vault_balance, max_weight, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		ON CONFLICT (address) DO UPDATE SET
			position = EXCLUDED.position,
			integrator = EXCLUDED.integrator,
			has_tx_fee = EXCLUDED.has_tx_fee,
			status = EXCLUDED.status,
			decimals = EXCLUDED.decimals,
			ratio = EXCLUDED.ratio,
			vault_balance = EXCLUDED.vault_balance,
			max_weight = EXCLUDED.max_weight,
			updated_at = CURRENT_TIMESTAMP;`

	for i, ba := range b.Bassets {
		var maxWeight sql.NullString
		if ba.MaxWeight != nil {
			maxWeight = sql.NullString{String: ba.MaxWeight.String(), Valid: true}
		}
		_, err = tx.ExecContext(ctx, bassetStmt,
			ba.Address, i, ba.Integrator, ba.HasTxFee, ba.Status.String(), ba.Decimals,
			ba.Ratio.String(), ba.VaultBalance.String(), maxWeight,
		)
		if err != nil {
			return fmt.Errorf("failed to save bAsset %s: %w", ba.Address, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debug().
		Uint64("sequence", b.Sequence).
		Int("bassets", len(b.Bassets)).
		Str("total_supply", b.TotalSupply.String()).
		Msg("Basket checkpoint saved to database")
	return nil
}

// LoadBasket reads the last checkpointed basket, bAssets in basket order.
func LoadBasket(ctx context.Context) (*types.Basket, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	var (
		sequence              int64
		supplyStr, surplusStr string
		paramsJSON            []byte
	)
	row := DB.QueryRowContext(ctx, `SELECT sequence, total_supply, surplus, parameters FROM basket_state WHERE id = 1;`)
	if err := row.Scan(&sequence, &supplyStr, &surplusStr, &paramsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoBasket
		}
		return nil, fmt.Errorf("failed to load basket state: %w", err)
	}

	b := &types.Basket{Sequence: uint64(sequence)}
	var ok bool
	if b.TotalSupply, ok = sdkmath.NewIntFromString(supplyStr); !ok {
		return nil, fmt.Errorf("invalid total_supply %q", supplyStr)
	}
	if b.Surplus, ok = sdkmath.NewIntFromString(surplusStr); !ok {
		return nil, fmt.Errorf("invalid surplus %q", surplusStr)
	}
	var params types.BasketParameters
	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal basket parameters: %w", err)
	}
	b.ApplyParameters(params)

	rows, err := DB.QueryContext(ctx, `
		SELECT address, integrator, has_tx_fee, status, decimals, ratio, vault_balance, max_weight
		FROM bassets
		ORDER BY position ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bAssets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ba, err := scanBasset(rows)
		if err != nil {
			return nil, err
		}
		b.Bassets = append(b.Bassets, ba)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bAsset rows: %w", err)
	}

	log.Info().
		Uint64("sequence", b.Sequence).
		Int("bassets", len(b.Bassets)).
		Msg("Loaded basket checkpoint")
	return b, nil
}

func scanBasset(rows *sql.Rows) (types.Basset, error) {
	var (
		ba                 types.Basset
		status             string
		ratioStr, vaultStr string
		maxWeight          sql.NullString
	)
	if err := rows.Scan(&ba.Address, &ba.Integrator, &ba.HasTxFee, &status, &ba.Decimals, &ratioStr, &vaultStr, &maxWeight); err != nil {
		return ba, fmt.Errorf("failed to scan bAsset row: %w", err)
	}

	var err error
	if ba.Status, err = types.ParseBassetStatus(status); err != nil {
		return ba, err
	}
	var ok bool
	if ba.Ratio, ok = sdkmath.NewIntFromString(ratioStr); !ok {
		return ba, fmt.Errorf("invalid ratio %q for %s", ratioStr, ba.Address)
	}
	if ba.VaultBalance, ok = sdkmath.NewIntFromString(vaultStr); !ok {
		return ba, fmt.Errorf("invalid vault_balance %q for %s", vaultStr, ba.Address)
	}
	if maxWeight.Valid {
		w, err := sdkmath.LegacyNewDecFromStr(maxWeight.String)
		if err != nil {
			return ba, fmt.Errorf("invalid max_weight %q for %s: %w", maxWeight.String, ba.Address, err)
		}
		ba.MaxWeight = &w
	}
	return ba, nil
}
