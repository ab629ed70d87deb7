/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan schedule engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Bind configuration (flags over environment over defaults)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Connect the optional Redis quote cache
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  Read through viper; every key works as an environment variable with the
  LOAN_ENGINE_ prefix or as a command-line flag:

    port        HTTP server port                (default: 8080)
    db          SQLite database path            (default: loans.db,
                ":memory:" for in-memory)
    redis-addr  Redis address for quote caching (default: disabled)
    log-level   zap level: debug/info/warn      (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close cache and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server --db="./data/loans.db"

  # Run with quote caching
  LOAN_ENGINE_REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/store/sqlite"
)

func main() {
	// Configuration: defaults < environment < flags
	pflag.Int("port", 8080, "HTTP server port")
	pflag.String("db", "loans.db", "SQLite database path")
	pflag.String("redis-addr", "", "Redis address for quote caching (empty disables)")
	pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	viper.SetEnvPrefix("LOAN_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		log.Fatalf("Failed to bind flags: %v", err)
	}

	logger, err := buildLogger(viper.GetString("log-level"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(viper.GetString("db"))
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Optional quote cache
	quotes := api.NewQuoteCache(viper.GetString("redis-addr"), logger)
	defer quotes.Close()

	// Initialize handler and router
	handler := api.NewHandler(store, quotes, logger)
	router := api.NewRouter(handler)

	port := viper.GetInt("port")
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting",
			zap.Int("port", port),
			zap.String("db", viper.GetString("db")),
			zap.Bool("quote_cache", viper.GetString("redis-addr") != ""))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
