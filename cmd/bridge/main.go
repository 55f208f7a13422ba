// Package main is the entry point for the credential bridge server.
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

	"github.com/joho/godotenv"

	"github.com/rleekg/craft-cognito/internal/bridge"
	"github.com/rleekg/craft-cognito/internal/config"
	bridgehttp "github.com/rleekg/craft-cognito/internal/http"
	"github.com/rleekg/craft-cognito/internal/identity"
	"github.com/rleekg/craft-cognito/internal/keyset"
	"github.com/rleekg/craft-cognito/internal/provider/cognito"
	"github.com/rleekg/craft-cognito/internal/store/file"
	"github.com/rleekg/craft-cognito/internal/verifier"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Initialize local user store
	users, err := file.NewStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer users.Close()

	logger.Info("initialized file store", "data_dir", cfg.DataDir)

	// Remote credential client
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	remote, err := cognito.New(ctx, cfg.Region, cfg.Profile, cfg.ClientID, cfg.UserPoolID,
		cognito.WithLogger(logger))
	cancel()
	if err != nil {
		logger.Error("failed to initialize remote provider client", "error", err)
		os.Exit(1)
	}

	// Token verification chain
	keys := keyset.New(cfg.JWKSURL,
		keyset.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		keyset.WithLogger(logger))
	tokenVerifier := verifier.New(keys, cfg.Issuer,
		verifier.WithLeeway(cfg.Leeway),
		verifier.WithLogger(logger))
	resolver := identity.NewResolver(users, identity.WithLogger(logger))

	// Lifecycle service
	service := bridge.NewService(remote, users,
		bridge.WithLogger(logger),
		bridge.WithRequireUserPassword(cfg.RequireUserPassword),
		bridge.WithCodeExchange(cfg.CognitoDomain, cfg.ClientID, cfg.CallbackURL),
		bridge.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}))

	// HTTP server
	server := bridgehttp.NewServer(cfg.Addr(), bridgehttp.WithLogger(logger))

	authMiddleware := bridgehttp.NewAuthMiddleware(tokenVerifier, resolver,
		cfg.JWTEnabled, cfg.AutoCreateUser, logger)
	authHandler := bridgehttp.NewAuthHandler(service, logger)
	authHandler.Routes(server.Router(), authMiddleware, cfg.CredentialRateLimit)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started", "addr", cfg.Addr(), "issuer", cfg.Issuer)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
