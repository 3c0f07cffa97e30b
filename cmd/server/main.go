// Copyright 2026 The PlantOps Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

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

	"github.com/plantops/identity/internal/audit"
	"github.com/plantops/identity/internal/authz"
	"github.com/plantops/identity/internal/config"
	"github.com/plantops/identity/internal/identity"
	"github.com/plantops/identity/internal/observability/logger"
	"github.com/plantops/identity/internal/observability/metrics"
	"github.com/plantops/identity/internal/observability/tracing"
	"github.com/plantops/identity/internal/registry"
	"github.com/plantops/identity/internal/store/postgres"
	"github.com/plantops/identity/internal/token"
	transportHTTP "github.com/plantops/identity/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting plantops identity service")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if len(os.Args) > 1 && os.Args[1] == "gen-service-key" {
		if err := runGenServiceKey(cfg); err != nil {
			fmt.Printf("Key generation failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter and domain instruments
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	identityMetrics, err := metrics.NewIdentityMetrics(meter)
	if err != nil {
		slog.Error("failed to create instruments", logger.Error(err))
		os.Exit(1)
	}

	// Audit logging, with durable write-through when the database is enabled.
	var auditLogger audit.Logger = audit.NewSlogLogger()
	var auditQuery audit.Querier
	var revocationStore token.RevocationStore

	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, postgres.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			slog.Error("failed to connect to database", logger.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to database")

		auditRepo := postgres.NewAuditRepository(db)
		auditLogger = audit.NewPersistentLogger(auditRepo, auditLogger)
		auditQuery = auditRepo
		revocationStore = postgres.NewRevocationRepository(db)
	} else {
		slog.Warn("running without a database; revocations and audit entries will not survive a restart")
	}

	// Signing keys
	keys, err := token.NewKeySet(cfg.Token.KeyBits)
	if err != nil {
		slog.Error("failed to generate signing keys", logger.Error(err))
		os.Exit(1)
	}

	// Revocation ledger
	ledger := token.NewLedger(cfg.Token.RevocationRetention, revocationStore)
	if err := ledger.Restore(ctx); err != nil {
		slog.Error("failed to restore revocation ledger", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("revocation ledger ready", slog.Int("entries", ledger.Size()))

	// Module registry with the default catalog
	moduleRegistry := registry.New()
	if err := registry.Bootstrap(ctx, moduleRegistry); err != nil {
		slog.Error("failed to bootstrap module registry", logger.Error(err))
		os.Exit(1)
	}

	// Initialize services
	identityService := identity.NewService(identity.NewContextStore(), auditLogger)
	engine := authz.NewEngine(moduleRegistry)
	tokenService := token.NewService(
		token.Config{
			Issuer:           cfg.Token.Issuer,
			Lifetime:         cfg.Token.Lifetime,
			RefreshThreshold: cfg.Token.RefreshThreshold,
		},
		keys, ledger, identityService, engine, auditLogger,
	)

	serviceKeyHasher := identity.NewServiceKeyHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	if cfg.Security.ServiceKeyHash == "" {
		slog.Warn("SERVICE_KEY_HASH not set; module management endpoints are unauthenticated")
	}

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		moduleRegistry,
		identityService,
		engine,
		tokenService,
		auditLogger,
		auditQuery,
		identityMetrics,
		serviceKeyHasher,
		cfg.Security.ServiceKeyHash,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Periodic maintenance: prune the revocation ledger (including the
	// durable store, when enabled) and retired keys.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := ledger.Prune(ctx); err != nil {
				slog.ErrorContext(ctx, "revocation ledger prune failed", logger.Error(err))
			}
			keys.Prune(cfg.Token.Lifetime)
		}
	}()

	// Periodic key rotation. Retired keys stay verifiable until pruned.
	if cfg.Token.KeyRotationInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Token.KeyRotationInterval)
			defer ticker.Stop()
			for range ticker.C {
				kid, err := keys.Rotate()
				if err != nil {
					slog.ErrorContext(ctx, "key rotation failed", logger.Error(err))
					continue
				}
				slog.InfoContext(ctx, "rotated signing key", logger.KeyID(kid))
			}
		}()
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}

// runGenServiceKey prints a fresh service key and its hash for SERVICE_KEY_HASH.
// The key itself is shown once and never stored.
func runGenServiceKey(cfg *config.Config) error {
	key, err := identity.GenerateServiceKey()
	if err != nil {
		return err
	}

	hasher := identity.NewServiceKeyHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	hash, err := hasher.Hash(key)
	if err != nil {
		return err
	}

	fmt.Printf("Service key:      %s\n", key)
	fmt.Printf("SERVICE_KEY_HASH: %s\n", hash)
	return nil
}
