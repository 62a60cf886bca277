package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-migrate/migrate/v4"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/taxpilot/efile-service/internal/api"
	"github.com/taxpilot/efile-service/internal/audit"
	"github.com/taxpilot/efile-service/internal/config"
	"github.com/taxpilot/efile-service/internal/crypto"
	"github.com/taxpilot/efile-service/internal/events"
	"github.com/taxpilot/efile-service/internal/repository/elasticsearch"
	"github.com/taxpilot/efile-service/internal/repository/postgres"
	"github.com/taxpilot/efile-service/internal/repository/s3"
	"github.com/taxpilot/efile-service/internal/service"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Info("Starting E-File Transmission Service...")

	// 3. Database migrations
	if err := runMigrations(cfg); err != nil {
		sugar.Fatalf("Failed to apply migrations: %v", err)
	}

	// 4. Crypto / Security
	signer, err := crypto.NewAuditSigner(cfg.Audit.HMACSecret)
	if err != nil {
		sugar.Fatalf("Failed to initialize audit signer: %v", err)
	}

	// 5. Repositories
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	efileRepo := postgres.NewEFileRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	var indexer audit.Indexer
	if esRepo, err := elasticsearch.NewSearchRepository(cfg.Elasticsearch); err != nil {
		sugar.Warnf("Failed to connect to Elasticsearch: %v (audit search will be limited)", err)
	} else {
		indexer = esRepo
	}

	s3Repo, err := s3.NewExportRepository(ctx, cfg.S3)
	if err != nil {
		sugar.Fatalf("Failed to initialize S3 export repository: %v", err)
	}

	// 6. Services
	auditService := audit.NewService(auditRepo, indexer, s3Repo, signer, logger)
	httpClient := &http.Client{Timeout: cfg.MEF.HTTPTimeout}
	submissionService := service.NewSubmissionService(efileRepo, auditService, httpClient, logger)
	ackService := service.NewAckService(efileRepo, auditService, logger)

	// 7. Kafka Consumer
	consumer, err := events.NewAckConsumer(cfg.Kafka, ackService, logger)
	if err != nil {
		sugar.Fatalf("Failed to create Kafka consumer: %v", err)
	}

	go func() {
		sugar.Info("Starting acknowledgment consumer loop...")
		if err := consumer.Start(ctx); err != nil {
			sugar.Errorf("Kafka consumer failed: %v", err)
		}
	}()
	defer consumer.Close()

	// 8. API Server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	efileHandler := api.NewEFileHandler(submissionService, auditService)

	apiGroup := e.Group("/api/efile")

	keyData, err := os.ReadFile(cfg.Auth.JWTPublicKeyPath)
	var signingKey interface{}
	if err == nil {
		signingKey, err = jwt.ParseRSAPublicKeyFromPEM(keyData)
		if err != nil {
			sugar.Warnf("Failed to parse JWT public key: %v", err)
		}
	} else {
		sugar.Warnf("JWT public key not found at %s: %v", cfg.Auth.JWTPublicKeyPath, err)
	}

	if signingKey != nil {
		jwtConfig := echojwt.Config{
			SigningKey:    signingKey,
			SigningMethod: "RS256",
			NewClaimsFunc: func(c echo.Context) jwt.Claims {
				return new(jwt.MapClaims)
			},
		}
		apiGroup.Use(echojwt.WithConfig(jwtConfig))
		sugar.Info("JWT Authentication enabled for /api/efile/*")
	} else {
		sugar.Warn("JWT Authentication DISABLED - Missing Public Key (Security Risk)")
	}

	efileHandler.RegisterRoutes(apiGroup)

	// Health Check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Start Server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Shutting down the server: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		sugar.Fatal(err)
	}
}

func runMigrations(cfg *config.Config) error {
	m, err := migrate.New(cfg.Database.MigrationsPath, cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
