package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/table-engine/internal/adapters"
	"github.com/ignite/table-engine/internal/api"
	"github.com/ignite/table-engine/internal/config"
	"github.com/ignite/table-engine/internal/engine"
	"github.com/ignite/table-engine/internal/intake"
	"github.com/ignite/table-engine/internal/pkg/logger"
	"github.com/ignite/table-engine/internal/predict"
	"github.com/ignite/table-engine/internal/presets"
)

func main() {
	configPath := os.Getenv("UTE_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err.Error())
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	// Optional LLM prediction client
	predictor := predict.New(predict.Config{
		Enabled: cfg.Predict.Enabled,
		BaseURL: cfg.Predict.BaseURL,
		APIKey:  cfg.Predict.APIKey,
		Model:   cfg.Predict.Model,
		Timeout: cfg.Predict.Timeout(),
	}, nil)
	if predictor != nil {
		logger.Info("column prediction enabled", "model", cfg.Predict.Model)
	}

	// Downstream adapters
	registry := &adapters.Registry{
		JSON: &adapters.JSONAdapter{
			OutputDir: cfg.Adapters.JSON.OutputDir,
			Exports:   cfg.Adapters.JSON.Exports,
			Gzip:      cfg.Adapters.JSON.Gzip,
			DropNulls: cfg.Adapters.JSON.DropNulls,
		},
	}
	if cfg.Adapters.Sheets.Enabled {
		registry.Sheets = &adapters.SheetsAdapter{
			WorkbookPath: cfg.Adapters.Sheets.WorkbookPath,
			DefaultMode:  cfg.Adapters.Sheets.DefaultMode,
		}
		logger.Info("sheets adapter enabled", "workbook", cfg.Adapters.Sheets.WorkbookPath)
	}
	var warehouseDB *sql.DB
	if cfg.Adapters.Warehouse.Enabled && cfg.Adapters.Warehouse.DatabaseURL != "" {
		warehouseDB, err = sql.Open("postgres", cfg.Adapters.Warehouse.DatabaseURL)
		if err != nil {
			logger.Error("failed to open warehouse connection", "error", err.Error())
			os.Exit(1)
		}
		warehouseDB.SetMaxOpenConns(10)
		warehouseDB.SetConnMaxLifetime(5 * time.Minute)
		registry.Warehouse = &adapters.WarehouseAdapter{
			DB:           warehouseDB,
			DefaultTable: cfg.Adapters.Warehouse.DefaultTable,
		}
		logger.Info("warehouse adapter enabled", "table", cfg.Adapters.Warehouse.DefaultTable)
	}

	eng := engine.New(engine.Config{
		RulesDir:        cfg.Parse.RulesDir,
		SampleLimit:     cfg.Parse.SampleLimit,
		HeaderSearchMax: cfg.Parse.HeaderSearchMax,
		MaxSizeBytes:    cfg.Parse.MaxSizeBytes(),
		DefaultAdapter:  cfg.Parse.DefaultAdapter,
		MaskPII:         cfg.Parse.MaskPII,
		DefaultDayFirst: cfg.Parse.DefaultDayfirst,
	}, predictor, registry)

	store := intake.NewStore(cfg.Webhook.OutputDir)
	pool := intake.NewPool(cfg.Webhook.Workers)
	orchestrator := intake.NewOrchestrator(store, eng, pool)
	authenticator := intake.NewAuthenticator(intake.AuthConfig{
		RequireAuth: cfg.Webhook.RequireAuth,
		APIKeys:     cfg.Webhook.APIKeys,
		HMACSecrets: cfg.Webhook.HMACSecrets,
		AllowedIPs:  cfg.Webhook.AllowedIPs,
		ClockSkew:   cfg.Webhook.ClockSkew(),
	})

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.Info("redis rate limiter enabled",
			"addr", cfg.Redis.Addr, "rate_per_minute", cfg.Redis.RatePerMinute)
	}

	server := api.NewServer(cfg, eng, orchestrator, store,
		&presets.Store{Dir: cfg.Presets.Dir}, authenticator, redisClient)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		logger.Info("starting server", "addr", addr, "webhook_enabled", cfg.Webhook.Enabled)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err.Error())
	}

	// Let queued intakes finish before closing shared resources
	pool.Wait()
	if warehouseDB != nil {
		warehouseDB.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info("server stopped")
}
