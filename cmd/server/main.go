/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the church/ONG administration server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration and parse flags
  2. Build the zap logger
  3. Initialize SQLite store
  4. Wire ledger, scheduling and members services
  5. Start the balance reconciler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port           HTTP server port (overrides HTTP_PORT)
  -db             SQLite database path (overrides DB_PATH)
                  Use ":memory:" for in-memory database
  -issue-token    Print a signed token for the given role and exit
  -subject        Subject of the issued token (default: cli)

ENVIRONMENT:
  See config/config.go. AUTH_JWT_SECRET empty disables authentication,
  which is refused when APP_ENV=production.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconciler
  4. Close database connection

EXAMPLES:
  ./server -db="./data/gestao.db"
  ./server -db=":memory:" -port=3000
  AUTH_JWT_SECRET=s3cret ./server -issue-token=treasurer -subject=maria

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/api"
	"github.com/ministerio/gestao-engine/auth"
	"github.com/ministerio/gestao-engine/config"
	"github.com/ministerio/gestao-engine/ledger"
	"github.com/ministerio/gestao-engine/logging"
	"github.com/ministerio/gestao-engine/members"
	"github.com/ministerio/gestao-engine/scheduling"
	"github.com/ministerio/gestao-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	port := flag.String("port", cfg.HTTP.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DB.Path, "SQLite database path")
	issueRole := flag.String("issue-token", "", "print a token for this role and exit")
	subject := flag.String("subject", "cli", "subject of the issued token")
	flag.Parse()

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if *issueRole != "" {
		return printToken(issuer, *subject, auth.Role(*issueRole))
	}
	if !issuer.Enabled() && cfg.IsProduction() {
		return errors.New("AUTH_JWT_SECRET is required in production")
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if *dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	memberService := members.NewService(db.Members(), logger)

	ledgerService := ledger.NewService(db.Ledger(),
		ledger.WithLocation(loc),
		ledger.WithLogger(logger),
		ledger.WithListLimit(cfg.Ledger.TransactionListLimit),
	)

	schedOpts := []scheduling.Option{
		scheduling.WithLocation(loc),
		scheduling.WithLogger(logger),
		scheduling.WithPatients(memberService),
	}
	if cfg.Cache.Enabled {
		cache, err := scheduling.NewSlotCache(cfg.Cache.SlotsSize)
		if err != nil {
			return err
		}
		schedOpts = append(schedOpts, scheduling.WithCache(cache))
	}
	schedulingService := scheduling.NewService(db.Scheduling(), schedOpts...)

	handler := api.NewHandler(ledgerService, schedulingService, memberService, api.Config{
		Resetter: db,
		Pinger:   db,
		Location: loc,
		Logger:   logger,
	})

	reconciler := api.NewBalanceReconciler(ledgerService, logger, cfg.Ledger.ReconcileInterval)
	reconciler.Start()
	defer reconciler.Stop()

	router := api.NewRouter(handler, issuer, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		Reconciler:     reconciler,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", *dbPath),
			zap.String("timezone", loc.String()),
			zap.Bool("auth", issuer.Enabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func printToken(issuer *auth.Issuer, subject string, role auth.Role) error {
	if !issuer.Enabled() {
		return errors.New("AUTH_JWT_SECRET must be set to issue tokens")
	}
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	token, err := issuer.Issue(subject, role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
