package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"lendcore/config"
	"lendcore/gateway/middleware"
	"lendcore/gateway/routes"
	"lendcore/native/risk"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/storage"
	"lendcore/storage/audit"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "lendcore.toml", "path to lendcored config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("LENDCORE_ENV"))
	logger := logging.Setup("lendcored", env, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})

	if endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint); endpoint != "" {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "lendcored",
			Environment: env,
			Endpoint:    endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		log.Fatalf("open ledger db: %v", err)
	}
	defer db.Close()

	auditStore, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		log.Fatalf("open audit store: %v", err)
	}
	defer auditStore.Close()

	params := risk.NewParamStore()
	assets, err := config.LoadAssets(cfg.AssetsFile)
	if err != nil {
		log.Fatalf("load assets: %v", err)
	}
	for _, asset := range assets {
		if err := params.RegisterAsset(asset); err != nil {
			log.Fatalf("register asset %s: %v", asset.Symbol, err)
		}
	}

	feed := risk.NewStaticFeed()
	engine := risk.NewEngine(storage.NewLedgerStore(db), params, feed, cfg.EngineConfig())
	engine.SetAuditor(auditStore)
	engine.SetLogger(logger)

	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, logger)
	defer limiter.Close()

	handler := routes.New(routes.Config{
		Engine:        engine,
		Audit:         auditStore,
		Feed:          feed,
		RateLimiter:   limiter,
		Observability: middleware.NewObservability(logger, true),
		AdminAuth:     middleware.NewAdminAuth(cfg.Admin.APIKeys, cfg.AdminSkew()),
	})
	if len(cfg.Admin.APIKeys) == 0 {
		logger.Warn("no admin API keys configured, governance routes are disabled")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendcored listening", "addr", cfg.ListenAddress)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}
}
