// Package main provides a stand-in catalog service for local development
// and CI. It serves the OAuth2 token endpoint and the management API
// subset used by polaris-bootstrap, keeping all state in memory.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/lakehouse-tools/polaris-bootstrap/internal/polarisfake"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zapr.NewLogger(zl)

	listenAddr := envOrDefault("MOCK_POLARIS_ADDR", ":8181")
	clientID := envOrDefault("MOCK_POLARIS_CLIENT_ID", "root")
	fake := polarisfake.New(
		polarisfake.WithClient(clientID, envOrDefault("MOCK_POLARIS_CLIENT_SECRET", "secret")),
		polarisfake.WithPrincipal(clientID),
	)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           newRouter(fake, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "HTTP server error")
			stop()
		}
	}()

	logger.Info("mock catalog service ready", "listen", listenAddr, "clientID", clientID)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "HTTP server shutdown error")
	}

	logger.Info("mock catalog service stopped")
}

func newRouter(fake *polarisfake.Server, logger logr.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogger(requestLogFormatter{logger: logger.WithName("http")}))
	router.Mount("/", fake.Handler())
	return router
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
