package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// PoolAccount is the account that holds every bAsset not lent to an integrator.
	PoolAccount string
	// PoolDenom is the denomination of the basket token.
	PoolDenom string
	// SavingsRecipient receives collected interest. Interest collection is disabled when empty.
	SavingsRecipient string

	// ConfigName selects the versioned parameter set in the database.
	ConfigName string

	// WebPort is the port of the read-only HTTP API.
	WebPort string
	// GRPCPort is the port of the gRPC health service.
	GRPCPort string

	// InterestInterval is the period of the interest collection loop.
	InterestInterval time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is "console" or "json".
	LogFormat string
	// LogFile optionally mirrors log output to a file.
	LogFile string

	// Database connection settings. DBHost empty disables persistence.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// BASKET_POOL_ACCOUNT and BASKET_POOL_DENOM are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	PoolAccount, err = getEnv("BASKET_POOL_ACCOUNT")
	if err != nil {
		return err
	}

	PoolDenom, err = getEnv("BASKET_POOL_DENOM")
	if err != nil {
		return err
	}
	if err := sdk.ValidateDenom(PoolDenom); err != nil {
		return errors.New("environment variable BASKET_POOL_DENOM is not a valid denom: " + err.Error())
	}

	SavingsRecipient = getEnvOrDefault("BASKET_SAVINGS_RECIPIENT", "")
	ConfigName = getEnvOrDefault("BASKET_CONFIG_NAME", "default")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	GRPCPort = getEnvOrDefault("GRPC_PORT", "9090")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	InterestInterval, err = getEnvAsDurationOrDefault("BASKET_INTEREST_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}
	if InterestInterval <= 0 {
		return errors.New("environment variable BASKET_INTEREST_INTERVAL must be positive")
	}

	DBHost = getEnvOrDefault("DB_HOST", "")
	DBPort, err = getEnvAsIntOrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBUser = getEnvOrDefault("DB_USER", "")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	Assets, err = loadAssetConfig()
	if err != nil {
		return err
	}

	log.Debug().
		Str("PoolAccount", PoolAccount).
		Str("PoolDenom", PoolDenom).
		Str("ConfigName", ConfigName).
		Bool("Persistence", PersistenceEnabled()).
		Int("Assets", len(Assets)).
		Msg("Configuration loaded successfully.")

	return nil
}

// PersistenceEnabled reports whether a database is configured.
func PersistenceEnabled() bool {
	return DBHost != ""
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsIntOrDefault retrieves an environment variable as an int. Returns error if set but invalid.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault retrieves an environment variable as a time.Duration such as "5m".
func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
