package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/ecovault/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/ecovault/internal/adapter/driven/getlate"
	sqliteadapter "github.com/ericfisherdev/ecovault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/ecovault/internal/adapter/driven/totp"
	httphandler "github.com/ericfisherdev/ecovault/internal/adapter/driving/http"
	"github.com/ericfisherdev/ecovault/internal/application"
	"github.com/ericfisherdev/ecovault/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on a missing or malformed key).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded", "config", cfg)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "version", version)

	// 5. Wire adapters. The key is handed to the codec once and not kept.
	codec, err := aesgcm.New(cfg.SecretKey)
	if err != nil {
		return err
	}
	cfg.SecretKey = nil

	users := sqliteadapter.NewUserRepo(db)
	ecosystems := sqliteadapter.NewEcosystemRepo(db)
	assignments := sqliteadapter.NewAssignmentRepo(db)
	platforms := sqliteadapter.NewPlatformRepo(db)
	history := sqliteadapter.NewHistoryRepo(db)
	verifier := totp.NewVerifier(nil)

	// 6. Create services.
	logger := slog.Default()
	credentialSvc := application.NewCredentialService(platforms, history, codec, verifier, nil, logger)
	ecosystemSvc := application.NewEcosystemService(ecosystems, assignments, platforms, logger)
	importSvc := application.NewImportService(users, ecosystems, assignments, platforms, credentialSvc, nil, logger)

	// 6b. Profile sync is only available with a Getlate API key.
	var syncSvc *application.SyncService
	if cfg.HasProfileSource() {
		client := getlate.NewClient(cfg.GetlateAPIKey, cfg.GetlateAPIURL, getlate.WithLogger(logger))
		syncSvc = application.NewSyncService(ecosystems, client, logger)
		slog.Info("profile sync enabled", "mock", client.IsMock())
	} else {
		slog.Info("no getlate api key configured, profile sync disabled")
	}

	// 7. Create HTTP handler with all API routes and middleware.
	apiHandler := httphandler.NewHandler(credentialSvc, ecosystemSvc, importSvc, syncSvc, cfg.ImportErrorLimit, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
