package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	applog "github.com/ruralpay/ledger/internal/logger"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:          "ledgerctl",
	Short:        "Operate the ledger database",
	Long:         `Apply migrations, inspect balances and run privileged ledger operations outside the HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to the .env configuration file")
}

// session holds what a command needs to talk to the ledger database.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := applog.New(cfg.Log.Level, "development")
	if err != nil {
		return nil, err
	}
	db, err := database.InitDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, db: db}, nil
}

// transferService builds a service over Postgres whose audit events go to the
// log. The returned func drains the audit buffer.
func (s *session) transferService() (*services.TransferService, func(context.Context) error) {
	dispatcher := audit.NewDispatcher(audit.NewLogSink(s.logger), s.cfg.Audit.BufferSize, s.logger)
	service := services.NewTransferService(database.NewPostgresStore(s.db), dispatcher, s.logger,
		services.WithReversalWindow(s.cfg.Ledger.ReversalWindow),
		services.WithSystemCashIBANs(s.cfg.Ledger.SystemCashIBANs))
	return service, dispatcher.Close
}

func (s *session) Close() {
	s.db.Close()
	s.logger.Sync()
}
