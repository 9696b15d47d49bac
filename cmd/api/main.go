package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/gherkin-agent/internal/application"
	appchat "github.com/bryanwahyu/gherkin-agent/internal/application/chat"
	appscans "github.com/bryanwahyu/gherkin-agent/internal/application/scans"
	"github.com/bryanwahyu/gherkin-agent/internal/config"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
	openaiinfra "github.com/bryanwahyu/gherkin-agent/internal/infra/ai/openai"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/browser"
	mysqlp "github.com/bryanwahyu/gherkin-agent/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/gherkin-agent/internal/infra/db/postgres"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/httpserver"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/prompts"
	minioStore "github.com/bryanwahyu/gherkin-agent/internal/infra/storage"
	"github.com/bryanwahyu/gherkin-agent/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	// connect DB (mysql atau postgres)
	var (
		db          *sql.DB
		scanRepo    domain.Repository
		featureRepo features.Repository
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		scanRepo = mysqlp.NewScanRepository(db)
		featureRepo = mysqlp.NewFeatureRepository(db)
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		scanRepo = postgresp.NewScanRepository(db)
		featureRepo = postgresp.NewFeatureRepository(db)
	default:
		log.Fatalf("unknown database driver: %q", cfg.Database.Driver)
	}
	defer db.Close()

	// init minio (optional)
	var archive domain.SnapshotArchive
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
	}

	// prompt store dengan fallback lokal
	promptSrc := prompts.New(
		cfg.Prompts.BaseURL,
		cfg.Prompts.PublicKey,
		cfg.Prompts.SecretKey,
		logger,
	)

	// init AI client
	aiClient := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, promptSrc, logger)

	// init browser inspector
	inspector := browser.New(browser.Config{
		RemoteURL:  cfg.Browser.RemoteURL,
		NavTimeout: time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
		Stealth:    cfg.Browser.Stealth,
	}, logger)

	metrics := middleware.NewMetrics()

	// init services
	scanSvc := &appscans.Service{
		Scans:       scanRepo,
		Features:    featureRepo,
		Inspector:   inspector,
		Synthesizer: aiClient,
		Archive:     archive,
		Metrics:     metrics,
		Clock:       application.SystemClock{},
		Log:         logger,
	}
	chatSvc := appchat.NewService(aiClient, scanRepo, featureRepo, promptSrc, application.SystemClock{}, logger)

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.Logging(logger))
	mux.Use(metrics.Middleware)
	mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	mux.Use(middleware.RateLimit(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))

	mux.Get("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}))
	mux.Get("/metrics", metrics.Handler())
	mux.Mount("/", httpserver.NewRouter(scanSvc, chatSvc, logger))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: chat streams stay open while a tool call
		// waits for human approval.
		IdleTimeout: 60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server listening", "addr", addr, "db", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
