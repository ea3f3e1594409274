// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// ErrDBNotInitialized is returned by every store function called before InitDB.
var ErrDBNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// schemaSQL holds the DDL for every basket table. Token amounts are stored as NUMERIC(78, 0),
// wide enough for any 256-bit integer; fractions as NUMERIC(38, 18).
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS basket_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		min_weight NUMERIC(38, 18) NOT NULL, max_weight NUMERIC(38, 18) NOT NULL,
		soft_min_weight NUMERIC(38, 18) NOT NULL, soft_max_weight NUMERIC(38, 18) NOT NULL,
		max_penalty NUMERIC(38, 18) NOT NULL, cache_size NUMERIC(38, 18) NOT NULL,
		swap_fee NUMERIC(38, 18) NOT NULL, redemption_fee NUMERIC(38, 18) NOT NULL,
		reason TEXT,
		CONSTRAINT uq_basket_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_basket_parameters_config_active_timestamp ON basket_parameters(config_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS basket_state (
		id INTEGER PRIMARY KEY DEFAULT 1,
		sequence BIGINT NOT NULL DEFAULT 0,
		total_supply NUMERIC(78, 0) NOT NULL,
		surplus NUMERIC(78, 0) NOT NULL,
		parameters JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	CREATE TABLE IF NOT EXISTS bassets (
		address VARCHAR(128) PRIMARY KEY,
		position INTEGER NOT NULL,
		integrator VARCHAR(64) NOT NULL DEFAULT '',
		has_tx_fee BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(32) NOT NULL,
		decimals INTEGER NOT NULL,
		ratio NUMERIC(78, 0) NOT NULL,
		vault_balance NUMERIC(78, 0) NOT NULL,
		max_weight NUMERIC(38, 18),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bassets_position ON bassets(position);

	CREATE TABLE IF NOT EXISTS operation_receipts (
		receipt_id SERIAL PRIMARY KEY,
		operation_id VARCHAR(36) NOT NULL UNIQUE,
		sequence BIGINT NOT NULL,
		kind VARCHAR(32) NOT NULL,
		sender VARCHAR(128),
		recipient VARCHAR(128),
		assets TEXT[],
		inputs JSONB,
		outputs JSONB,
		masset_delta NUMERIC(78, 0) NOT NULL,
		fee NUMERIC(78, 0) NOT NULL,
		cache_moves JSONB,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_operation_receipts_created ON operation_receipts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_operation_receipts_kind ON operation_receipts(kind);
	CREATE INDEX IF NOT EXISTS idx_operation_receipts_sequence ON operation_receipts(sequence DESC);
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	if err := ensureOperationCounterTable(); err != nil {
		return err
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema drops every basket table. Parameter history survives when keepParameters is set.
func DropSchema(keepParameters bool) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	tables := []string{"operation_receipts", "operation_counter", "bassets", "basket_state"}
	if !keepParameters {
		tables = append(tables, "basket_parameters")
	}
	for _, table := range tables {
		if _, err := DB.Exec("DROP TABLE IF EXISTS " + table + " CASCADE"); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	log.Info().Strs("tables", tables).Msg("Dropped basket tables")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// rollbackOnError is deferred by every transactional store function.
func rollbackOnError(tx *sql.Tx, err *error) {
	if p := recover(); p != nil {
		tx.Rollback()
		panic(p) // Re-panic after rollback
	} else if *err != nil {
		tx.Rollback() // Rollback if error occurred
	}
}
