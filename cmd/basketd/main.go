package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elys-network/basket-engine/internal/cache"
	"github.com/elys-network/basket-engine/internal/config"
	"github.com/elys-network/basket-engine/internal/engine"
	"github.com/elys-network/basket-engine/internal/ledger"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/elys-network/basket-engine/internal/metrics"
	"github.com/elys-network/basket-engine/internal/state"
	"github.com/elys-network/basket-engine/internal/token"
	"github.com/elys-network/basket-engine/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "basket"

// main is the entry point for the basket engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logger.Initialize(logger.Options{Level: config.LogLevel, Format: config.LogFormat, File: config.LogFile})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	defer logCloser.Close()
	log.Info().Msg("Basket engine starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection (optional)
	var store *state.PostgresStore
	if config.PersistenceEnabled() {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		store = state.NewPostgresStore(config.ConfigName)
	} else {
		log.Warn().Msg("DB_HOST not set, running without persistence")
	}

	params := loadParameters(ctx, config.ConfigName)

	// --- 2. Token ledger and integrators ---
	bank, err := token.NewBank(config.PoolDenom)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token ledger")
	}
	integrators, err := buildIntegrators(bank, config.PoolAccount, config.IntegratorEndpoints)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create integrators")
	}

	basket, restored, err := restoreBasket(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore basket checkpoint")
	}
	if restored {
		basket.ApplyParameters(params)
		if err := fundRestored(ctx, bank, config.PoolAccount, basket); err != nil {
			log.Fatal().Err(err).Msg("Failed to fund token ledger from checkpoint")
		}
		log.Info().
			Int("bassets", len(basket.Bassets)).
			Str("supply", basket.TotalSupply.String()).
			Msg("Basket restored from checkpoint")
	} else {
		basket = emptyBasket(params)
	}

	// --- 3. Engine with dependency injection ---
	var persister ledger.Persister
	var recorder engine.Recorder
	if store != nil {
		persister, recorder = store, store
	}
	basketLedger, err := ledger.New(basket, persister)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create basket ledger")
	}
	collector := metrics.NewCollector(serviceName)
	eng, err := engine.New(engine.Config{
		Ledger:           basketLedger,
		Cache:            cache.NewManager(bank, config.PoolAccount, integrators),
		Tokens:           bank,
		Recorder:         recorder,
		Metrics:          collector,
		SavingsRecipient: config.SavingsRecipient,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}
	if err := registerAssets(ctx, eng, config.Assets); err != nil {
		log.Fatal().Err(err).Msg("Failed to register configured bAssets")
	}
	log.Info().Int("bassets", len(eng.GetBassets())).Msg("Engine created successfully")

	// --- 4. Servers ---
	webServer := web.NewWebServer(config.WebPort, eng, collector, config.ConfigName)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting basket HTTP API")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed to start")
			stop()
		}
	}()

	grpcServer, healthServer := newHealthServer()
	go func() {
		lis, err := net.Listen("tcp", ":"+config.GRPCPort)
		if err != nil {
			log.Error().Err(err).Str("port", config.GRPCPort).Msg("gRPC listener failed")
			stop()
			return
		}
		log.Info().Str("port", config.GRPCPort).Msg("Starting gRPC health service")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	// --- 5. Interest loop until shutdown ---
	if config.SavingsRecipient != "" {
		go eng.RunInterestLoop(ctx, config.InterestInterval)
	} else {
		log.Warn().Msg("BASKET_SAVINGS_RECIPIENT not set, interest collection disabled")
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Server().Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	grpcServer.GracefulStop()
	log.Info().Msg("Basket engine stopped")
}

func newHealthServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}
