package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elys-network/basket-engine/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// SaveReceipt stores r and bumps the operation counter in one transaction.
func SaveReceipt(ctx context.Context, r types.Receipt) (receiptID int64, err error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	// Marshal all JSONB fields
	inputsJSON, err := json.Marshal(r.Inputs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(r.Outputs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal outputs: %w", err)
	}
	cacheMovesJSON, err := json.Marshal(r.CacheMoves)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal cache_moves: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackOnError(tx, &err)

	count, err := incrementOperationCount(ctx, tx)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO operation_receipts (
			operation_id, sequence, kind, sender, recipient, assets,
			inputs, outputs, masset_delta, fee, cache_moves, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING receipt_id;
	`

	err = tx.QueryRowContext(ctx,
		query,
		r.OperationID, int64(r.Sequence), string(r.Kind), r.Sender, r.Recipient, pq.Array(r.Assets()),
		inputsJSON, outputsJSON, r.MassetDelta.String(), r.Fee.String(), cacheMovesJSON, r.Duration.Milliseconds(), r.Timestamp,
	).Scan(&receiptID)
	if err != nil {
		return 0, fmt.Errorf("failed to save receipt: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int64("receipt_id", receiptID).
		Str("operation_id", r.OperationID).
		Str("kind", string(r.Kind)).
		Uint64("sequence", r.Sequence).
		Int64("operations", count).
		Msg("Operation receipt saved to database")
	return receiptID, nil
}

// SaveReceipt stores r.
func (s *PostgresStore) SaveReceipt(ctx context.Context, r types.Receipt) (int64, error) {
	return SaveReceipt(ctx, r)
}
