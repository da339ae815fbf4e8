// Package main runs the international payments portal: customers register
// accounts, submit payments and transactions between them, and admins
// approve or reject each one before any money moves.
//
// Key Components:
// - PostgreSQL: accounts, payments and transactions.
// - MongoDB: audit trail of approval decisions.
// - RabbitMQ: decision events feeding the audit trail.
// - Redis: login attempt throttling.
// - Gin: HTTP/JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payportal/internal/config"
	"payportal/internal/ledger"
	"payportal/internal/logging"
	"payportal/internal/store/postgres"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "payportal",
	Short: "International payments portal",
	Long: `payportal serves the payments portal API.

Accounts, payments and transactions live in PostgreSQL (or in memory for
local runs). Every approval moves money between two accounts atomically.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newSeedAdminCmd())
}

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and builds the logger it
// describes.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if !cfg.Log.Development {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLSEnabled()),
			zap.String("storage", cfg.Storage.Driver))
		if cfg.Server.TLSEnabled() {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate needs the postgres driver, got %q", cfg.Storage.Driver)
			}

			pg, err := postgres.Open(cmd.Context(), cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema up to date")
			return nil
		},
	}
}

func newSeedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the configured admin account if no admin exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			l, err := newLedger(s, cfg, logger)
			if err != nil {
				return err
			}
			created, err := seedAdmin(cmd.Context(), l, cfg)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s\n", cfg.Admin.Email)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "an admin already exists")
			}
			return nil
		},
	}
}

func seedAdmin(ctx context.Context, l *ledger.Ledger, cfg *config.Config) (bool, error) {
	if err := l.Warm(ctx); err != nil {
		return false, err
	}
	return l.EnsureAdmin(ctx, adminSeed(cfg))
}
