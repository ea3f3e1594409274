package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/rs/zerolog/log"
)

// ErrReceiptNotFound is returned when no receipt matches the lookup.
var ErrReceiptNotFound = errors.New("receipt not found")

// BasketSummary represents high-level basket statistics
type BasketSummary struct {
	TotalSupply      string           `json:"total_supply"`
	Surplus          string           `json:"surplus"`
	Sequence         uint64           `json:"sequence"`
	BassetCount      int              `json:"basset_count"`
	TotalOperations  int64            `json:"total_operations"`
	OperationsByKind map[string]int64 `json:"operations_by_kind"`
	LastUpdated      string           `json:"last_updated"`
}

// FeeMetrics represents fees credited to surplus per operation kind.
type FeeMetrics struct {
	Kind       string `json:"kind"`
	Operations int64  `json:"operations"`
	TotalFees  string `json:"total_fees"`
}

const receiptColumns = `
	receipt_id, operation_id, sequence, kind, sender, recipient,
	inputs, outputs, masset_delta, fee, cache_moves, duration_ms, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (types.Receipt, error) {
	var (
		r                                       types.Receipt
		sequence, durationMs                    int64
		kind                                    string
		sender, recipient                       sql.NullString
		inputsJSON, outputsJSON, cacheMovesJSON []byte
		deltaStr, feeStr                        string
	)
	err := row.Scan(
		&r.ReceiptID, &r.OperationID, &sequence, &kind, &sender, &recipient,
		&inputsJSON, &outputsJSON, &deltaStr, &feeStr, &cacheMovesJSON, &durationMs, &r.Timestamp,
	)
	if err != nil {
		return r, err
	}
	r.Sequence = uint64(sequence)
	r.Kind = types.OperationKind(kind)
	r.Sender = sender.String
	r.Recipient = recipient.String
	r.Duration = time.Duration(durationMs) * time.Millisecond

	var ok bool
	if r.MassetDelta, ok = sdkmath.NewIntFromString(deltaStr); !ok {
		return r, fmt.Errorf("invalid masset_delta %q", deltaStr)
	}
	if r.Fee, ok = sdkmath.NewIntFromString(feeStr); !ok {
		return r, fmt.Errorf("invalid fee %q", feeStr)
	}
	if err := unmarshalJSONFields(&r, inputsJSON, outputsJSON, cacheMovesJSON); err != nil {
		return r, err
	}
	return r, nil
}

// unmarshalJSONFields unmarshals JSON fields for a receipt
func unmarshalJSONFields(r *types.Receipt, inputsJSON, outputsJSON, cacheMovesJSON []byte) error {
	if len(inputsJSON) > 0 {
		if err := json.Unmarshal(inputsJSON, &r.Inputs); err != nil {
			return fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}
	if len(outputsJSON) > 0 {
		if err := json.Unmarshal(outputsJSON, &r.Outputs); err != nil {
			return fmt.Errorf("failed to unmarshal outputs: %w", err)
		}
	}
	if len(cacheMovesJSON) > 0 {
		if err := json.Unmarshal(cacheMovesJSON, &r.CacheMoves); err != nil {
			return fmt.Errorf("failed to unmarshal cache moves: %w", err)
		}
	}
	return nil
}

func queryReceipts(ctx context.Context, query string, args ...any) ([]types.Receipt, error) {
	rows, err := DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query receipts")
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return receipts, nil
}

// GetRecentReceipts retrieves the most recent receipts, newest first.
func GetRecentReceipts(ctx context.Context, limit int) ([]types.Receipt, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	receipts, err := queryReceipts(ctx, `SELECT `+receiptColumns+`
		FROM operation_receipts
		ORDER BY sequence DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("count", len(receipts)).Int("limit", limit).Msg("Retrieved recent receipts")
	return receipts, nil
}

// GetReceiptsByAsset retrieves the most recent receipts touching asset.
func GetReceiptsByAsset(ctx context.Context, asset string, limit int) ([]types.Receipt, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	return queryReceipts(ctx, `SELECT `+receiptColumns+`
		FROM operation_receipts
		WHERE $1 = ANY(assets)
		ORDER BY sequence DESC
		LIMIT $2`, asset, limit)
}

// GetReceiptByOperationID retrieves a specific receipt by its operation ID
func GetReceiptByOperationID(ctx context.Context, operationID string) (*types.Receipt, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	row := DB.QueryRowContext(ctx, `SELECT `+receiptColumns+`
		FROM operation_receipts
		WHERE operation_id = $1`, operationID)

	r, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, operationID)
		}
		log.Error().Err(err).Str("operation_id", operationID).Msg("Failed to query receipt")
		return nil, fmt.Errorf("failed to query receipt: %w", err)
	}
	return &r, nil
}

// GetBasketSummary retrieves high-level basket statistics from the last checkpoint.
func GetBasketSummary(ctx context.Context) (*BasketSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	summary := &BasketSummary{OperationsByKind: make(map[string]int64)}

	var (
		sequence    int64
		lastUpdated sql.NullTime
	)
	err := DB.QueryRowContext(ctx, `SELECT sequence, total_supply, surplus, updated_at FROM basket_state WHERE id = 1`).
		Scan(&sequence, &summary.TotalSupply, &summary.Surplus, &lastUpdated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get basket state: %w", err)
	}
	summary.Sequence = uint64(sequence)
	if lastUpdated.Valid {
		summary.LastUpdated = lastUpdated.Time.UTC().Format(time.RFC3339)
	}

	if err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM bassets").Scan(&summary.BassetCount); err != nil {
		log.Error().Err(err).Msg("Failed to get bAsset count")
	}

	rows, err := DB.QueryContext(ctx, "SELECT kind, COUNT(*) FROM operation_receipts GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count operations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan operation count: %w", err)
		}
		summary.OperationsByKind[kind] = count
		summary.TotalOperations += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Uint64("sequence", summary.Sequence).Int64("operations", summary.TotalOperations).Msg("Retrieved basket summary")
	return summary, nil
}

// GetFeeMetrics aggregates fees credited to surplus per operation kind.
func GetFeeMetrics(ctx context.Context) ([]FeeMetrics, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT
			kind,
			COUNT(*) AS operations,
			COALESCE(SUM(fee), 0)::TEXT AS total_fees
		FROM operation_receipts
		GROUP BY kind
		ORDER BY kind
	`

	rows, err := DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee metrics: %w", err)
	}
	defer rows.Close()

	var metrics []FeeMetrics
	for rows.Next() {
		var m FeeMetrics
		if err := rows.Scan(&m.Kind, &m.Operations, &m.TotalFees); err != nil {
			return nil, fmt.Errorf("failed to scan fee metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return metrics, nil
}
