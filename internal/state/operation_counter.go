/*

This file manages the persistent operation counter. Every committed receipt increments it in the
same transaction, so the counter always equals the number of stored receipts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ensureOperationCounterTable creates the operation_counter table if it doesn't exist
func ensureOperationCounterTable() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS operation_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			operations BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO operation_counter (id, operations)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`

	_, err := DB.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create operation_counter table: %w", err)
	}

	log.Debug().Msg("Ensured operation_counter table exists")
	return nil
}

// GetOperationCount retrieves the number of recorded operations.
func GetOperationCount(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	query := `SELECT operations FROM operation_counter WHERE id = 1;`

	var count int64
	err := DB.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn().Msg("No operation counter row found, treating as 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get operation count: %w", err)
	}

	return count, nil
}

// incrementOperationCount bumps the counter inside tx and returns the new value.
func incrementOperationCount(ctx context.Context, tx *sql.Tx) (int64, error) {
	updateQuery := `
		UPDATE operation_counter
		SET operations = operations + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING operations;`

	var count int64
	if err := tx.QueryRowContext(ctx, updateQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment operation count: %w", err)
	}
	return count, nil
}

// ResetOperationCount sets the counter to a specific value (for testing/maintenance)
func ResetOperationCount(ctx context.Context, count int64) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	if count < 0 {
		return fmt.Errorf("operation count cannot be negative: %d", count)
	}

	updateQuery := `
		UPDATE operation_counter
		SET operations = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.ExecContext(ctx, updateQuery, count)
	if err != nil {
		return fmt.Errorf("failed to reset operation count to %d: %w", count, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting operation count")
	}

	log.Warn().Int64("count", count).Msg("Reset operation counter")
	return nil
}
