package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"presence-backend/checkin"
	"presence-backend/config"
	"presence-backend/contracts"
	. "presence-backend/handlers"
	"presence-backend/reconcile"
	"presence-backend/storage/postgres"
	"presence-backend/storage/sqlite"
	"presence-backend/telemetry"
)

// store is everything the server needs from a storage driver.
type store interface {
	checkin.Store
	EventStore
	ProfileStore
	Ping(ctx context.Context) error
}

func connectToDatabase(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("sqlite database opened", slog.String("path", cfg.SQLitePath))
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		slog.Info("successfully connected to the database")
		return s, s.Close, nil
	}
}

func connectToEthereum(rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	slog.Info("successfully connected to Ethereum node")
	return client, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if gin.Mode() == gin.ReleaseMode {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Any("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "presence-backend", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("unable to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Database connection
	db, closeDB, err := connectToDatabase(ctx, cfg)
	if err != nil {
		logger.Error("unable to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeDB()

	// Proof verification is only available with an Ethereum node
	var proofs ProofVerifier
	if cfg.RPCURL != "" {
		ethClient, err := connectToEthereum(cfg.RPCURL)
		if err != nil {
			logger.Error("unable to connect to Ethereum node", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer ethClient.Close()
		proofs = contracts.NewProofVerifier(ethClient)
	}

	signer, err := checkin.NewSigner([]byte(cfg.QRSecretKey))
	if err != nil {
		logger.Error("invalid signing key", slog.String("error", err.Error()))
		os.Exit(1)
	}
	svc := checkin.New(db, signer, checkin.Config{
		TokenTTL:     cfg.TokenTTL,
		AwardPoints:  cfg.AwardPoints,
		StoreTimeout: cfg.StoreTimeout,
		RetryBackoff: cfg.StoreRetryBackoff,
		Logger:       logger.With(slog.String("component", "checkin")),
	})

	go reconcile.New(svc.Ledger, svc.AwardPoints(), cfg.ReconcileInterval,
		logger.With(slog.String("component", "reconcile"))).Start(ctx)

	// Create handlers
	userHandler := NewUserHandler(db, logger)
	eventHandler := NewEventHandler(db, logger)
	checkinHandler := NewCheckinHandler(db, svc, proofs, cfg.AppURL, logger)

	// Setup Gin
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// API routes
	api := router.Group("/api/v1")
	{
		// Event routes
		api.POST("/events", eventHandler.CreateEvent)
		api.GET("/events", eventHandler.GetEvents)
		api.GET("/events/:id", eventHandler.GetEvent)
		api.PUT("/events/:id/status", eventHandler.UpdateEventStatus)
		api.GET("/events/:id/attendances", eventHandler.GetAttendances)
		api.GET("/events/:id/attendance/:address", checkinHandler.GetAttendance)

		// Checkin routes
		api.POST("/checkin/tokens", checkinHandler.GenerateQR)
		api.POST("/checkin/redeem", checkinHandler.Redeem)

		// Profile routes
		api.GET("/profiles/:address", userHandler.GetProfile)
		api.PUT("/profiles/:address", userHandler.UpdateProfile)
		api.GET("/leaderboard", userHandler.GetLeaderboard)

		api.GET("/test-db", func(c *gin.Context) {
			if err := db.Ping(c.Request.Context()); err != nil {
				logger.Error("database ping failed", slog.String("error", err.Error()))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Database connection failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "Database connection OK"})
		})
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}
