// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sentinel/internal/adapter/storage"
	"sentinel/internal/config"
	"sentinel/internal/server"
	"sentinel/internal/service/analysis"
	"sentinel/internal/service/clustering"
	"sentinel/internal/service/dateselect"
	"sentinel/internal/service/merge"
)

func main() {
	// Load .env if present; environment variables win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Close()

	// Initialize storage adapters
	caseStore := storage.NewCaseStore(db)
	clusterStore := storage.NewClusterStore(db)
	processingStore := storage.NewProcessingStore(db)
	mergeLogStore := storage.NewMergeLogStore(db)

	// Initialize services
	selector := dateselect.NewSelector(
		caseStore, processingStore,
		cfg.Clustering.GeocodingThresholdPct,
		cfg.Clustering.DateFloorDays,
		logger,
	)
	sweeper := analysis.NewSweeper(clusterStore, cfg.Clustering.AutoAcceptTimeoutDays, logger)
	areaClusterer := clustering.NewAreaClusterer(cfg.Clustering.MinClusterSize, logger)
	spatialClusterer := clustering.NewSpatialClusterer(
		cfg.Clustering.GISRadiusMeters,
		cfg.Clustering.MinClusterSize,
		logger,
	)
	matcher := clustering.NewMatcher(
		clusterStore,
		cfg.Clustering.MatchLookbackDays,
		cfg.Clustering.AcceptDistanceMeters,
		cfg.Clustering.MergeDistanceMeters,
		logger,
	)

	orchestrator := analysis.NewOrchestrator(
		selector, sweeper, areaClusterer, spatialClusterer, matcher,
		caseStore, clusterStore, processingStore,
		natsConn, cfg.Clustering.EventsTopic,
		cfg.Clustering.TimeWindowDays,
		logger,
	)

	mergeEngine := merge.NewEngine(
		clusterStore, processingStore, mergeLogStore,
		natsConn, cfg.Clustering.EventsTopic,
		cfg.Merge.WindowDays,
		cfg.Merge.EligibilityLookbackDays,
		cfg.Merge.EligibilityWalkDays,
		cfg.Merge.MaxPendingRatio,
		cfg.Merge.AutoMergeThreshold,
		cfg.Merge.ReviewThreshold,
		logger,
	)

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg,
		natsConn,
		orchestrator,
		mergeEngine,
		clusterStore,
		processingStore,
		logger,
	)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// Initialize structured logger
func initLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
