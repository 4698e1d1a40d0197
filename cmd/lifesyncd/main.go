// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// lifesyncd serves the task/calendar synchronization API. It wires the
// sync engine behind a chi router with JWT-authenticated endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/AlexM1010/life-manager-sub002/syncengine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lifesyncd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	tokens := syncengine.NewTokenManager(syncengine.OAuthConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
	}, store, logger)

	engine := syncengine.NewSyncEngine(
		store,
		tokens,
		syncengine.NewGoogleCalendarClient(),
		syncengine.NewGoogleTasksClient(),
		nil,
		logger,
	)
	defer engine.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	jwtAuth := syncengine.NewJWTAuth(jwtSecret)
	handlers := syncengine.NewHTTPSyncHandlers(engine, jwtAuth, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	// The provider redirects the browser here; no bearer token available
	r.Get("/auth/google/callback", handlers.HandleOAuthCallback)

	r.Group(func(r chi.Router) {
		r.Use(jwtAuth.Middleware)
		r.Get("/auth/google/connect", handlers.HandleConnect)
		r.Post("/auth/google/disconnect", handlers.HandleDisconnect)
		r.Post("/sync/import", handlers.HandleImport)
		r.Post("/sync/export/{taskID}", handlers.HandleExport)
		r.Post("/sync/retry", handlers.HandleRetry)
		r.Get("/sync/status", handlers.HandleStatus)
		r.Get("/sync/log", handlers.HandleSyncLog)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("lifesyncd listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Shutting down")
	return server.Shutdown(shutdownCtx)
}

// openStore selects Postgres when DATABASE_URL is set, otherwise falls
// back to a local SQLite file (single-user mode).
func openStore(ctx context.Context, logger *slog.Logger) (syncengine.Store, func(), error) {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to reach database: %w", err)
		}
		store, err := syncengine.NewPgStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Using Postgres store")
		return store, pool.Close, nil
	}

	path := os.Getenv("SQLITE_FILE")
	if path == "" {
		path = "lifesync.db"
	}
	store, err := syncengine.NewSQLiteStore(ctx, path, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using SQLite store", "path", path)
	return store, func() { _ = store.Close() }, nil
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
