/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Open the stock store (sqlite3 or mysql) and migrate
  4. Open the offers mirror, or disable it when OFFERS_DSN is empty
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -driver      sqlite3 | mysql (default: sqlite3)
  -db          Database DSN (default: stock.db)
               Use ":memory:" for in-memory sqlite
  -offers-db   Offers datastore DSN (default: disabled)
  -log-level   logrus level (default: info)
  -log-format  text | json (default: text)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/stock.db"

  # Run against MySQL with offers mirrored
  DB_DRIVER=mysql DB_HOST=127.0.0.1 DB_USER=stock DB_NAME=stock \
  OFFERS_DSN="stock:pw@tcp(127.0.0.1:3306)/ofertas" ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqldb/sqldb.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chipiona/stock-engine/api"
	"github.com/chipiona/stock-engine/config"
	"github.com/chipiona/stock-engine/offer"
	"github.com/chipiona/stock-engine/stock"
	"github.com/chipiona/stock-engine/store/sqldb"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Initialize store
	store, err := sqldb.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Offers mirror
	var mirror stock.OfferMirror = offer.Nop{}
	if cfg.OffersEnabled() {
		m, err := offer.Open(cfg.OffersDriver, cfg.OffersDSN, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open offers database")
		}
		defer m.Close()
		mirror = m
	} else {
		logger.Warn("OFFERS_DSN not set, offer mirror disabled")
	}

	handler := api.NewHandler(store, mirror, cfg.StaleLotDays, logger)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.DBDriver,
			"offers": cfg.OffersEnabled(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return
	}

	logger.Info("Server stopped")
}
