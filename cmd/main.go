package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"predictive-league/internal/auth"
	"predictive-league/internal/confidential"
	"predictive-league/internal/config"
	"predictive-league/internal/database"
	"predictive-league/internal/handlers"
	"predictive-league/internal/jobs"
	"predictive-league/internal/logging"
	"predictive-league/internal/repository"
	"predictive-league/internal/repository/boltdb"
	"predictive-league/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Options{LogLevel: zerolog.InfoLevel, Type: logging.ConsoleLogger})
		logging.Root.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := logging.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logging.Init(logging.Options{LogLevel: level, Type: logging.ParseLoggerType(cfg.Log.Type)})

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	store, err := openStore(cfg)
	if err != nil {
		logging.Root.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open ledger store")
	}
	defer store.Close()

	policy, err := cfg.Ledger.Policy()
	if err != nil {
		logging.Root.Fatal().Err(err).Msg("invalid ledger policy")
	}

	var boundary confidential.Boundary = confidential.NewCommitmentBoundary()
	if cfg.Confidential.Mode == "gateway" {
		boundary = confidential.NewGatewayClient(cfg.Confidential.GatewayURL, cfg.Confidential.APIKey, cfg.Confidential.Secret)
	}

	// Initialize services
	leagueService := services.NewLeagueService(store, boundary, services.SystemClock{}, policy)
	defer leagueService.Close()
	authService := services.NewAuthService(store, services.SystemClock{})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	leagueHandler := handlers.NewLeagueHandler(leagueService)

	var keeper *jobs.FinalizeKeeper
	if cfg.Keeper.Enabled {
		var keeperAddr common.Address
		if common.IsHexAddress(cfg.Keeper.Address) {
			keeperAddr = common.HexToAddress(cfg.Keeper.Address)
		}
		keeper = jobs.NewFinalizeKeeper(leagueService, cfg.Keeper.Interval, cfg.Keeper.BatchSize, keeperAddr)
		keeper.Start()
	}

	// Set up Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(logging.GinLogger(), gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Authentication routes (public)
	authRoutes := router.Group("/auth")
	{
		authRoutes.GET("/message", authHandler.LoginMessage)
		authRoutes.POST("/wallet", authHandler.WalletLogin)
		authRoutes.POST("/logout", authHandler.Logout)
	}

	authProtected := router.Group("/auth")
	authProtected.Use(auth.AuthMiddleware())
	{
		authProtected.GET("/me", authHandler.GetMe)
	}

	api := router.Group("/api")
	protected := router.Group("/api")
	protected.Use(auth.AuthMiddleware())
	leagueHandler.RegisterRoutes(api, protected)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logging.Root.Info().Str("port", cfg.Server.Port).Str("store", cfg.Database.Driver).
			Str("confidential", cfg.Confidential.Mode).Msg("server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Root.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Root.Info().Msg("shutting down server")
	if keeper != nil {
		keeper.Stop()
	}

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Root.Error().Err(err).Msg("server forced to shutdown")
	}

	logging.Root.Info().Msg("server exited")
}

func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.Database.Driver {
	case "bolt":
		store, err := boltdb.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		db, err := database.Connect("sqlite", cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
		return repository.NewRepository(db), nil
	default:
		db, err := database.Connect("postgres", cfg.GetDSN())
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
		return repository.NewRepository(db), nil
	}
}
