package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/handlers"
	applog "github.com/ruralpay/ledger/internal/logger"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := applog.Must(cfg.Log.Level, cfg.Log.Env)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.JWT.SecretKey == "" {
		return errors.New("JWT_SECRET_KEY is required")
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := database.InitRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	dispatcher := audit.NewDispatcher(auditSink(redisClient, cfg, logger), cfg.Audit.BufferSize, logger)

	opts := []services.Option{
		services.WithReversalWindow(cfg.Ledger.ReversalWindow),
		services.WithSystemCashIBANs(cfg.Ledger.SystemCashIBANs),
	}
	if redisClient != nil {
		opts = append(opts, services.WithSettlement(services.NewISO20022Service(redisClient, services.BankIdentity{
			BIC:            cfg.Ledger.BankBIC,
			Name:           cfg.Ledger.BankName,
			ClearingMember: cfg.Ledger.ClearingMember,
		})))
	} else {
		logger.Warn("settlement disabled, EFT transfers to external banks will not be queued")
	}
	transferService := services.NewTransferService(store, dispatcher, logger, opts...)

	router := handlers.NewRouter(transferService, handlers.RouterConfig{
		JWTSecret:      cfg.JWT.SecretKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Redis:          redisClient,
		IdempotencyTTL: cfg.Server.IdempotencyTTL,
		EntryPageSize:  cfg.Ledger.EntryPageSize,
		AccessLog:      true,
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if cerr := dispatcher.Close(shutdownCtx); cerr != nil {
			logger.Warn("audit dispatcher did not drain", zap.Error(cerr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.AccountStore, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		store := database.NewMemoryStore()
		seedSystemCash(store, cfg.Ledger.SystemCashIBANs)
		logger.Warn("using in-memory store, balances are lost on restart")
		return store, func() {}, nil
	case "postgres":
		db, err := database.InitDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		applied, err := database.RunMigrations(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", zap.Strings("files", applied))
		}
		return database.NewPostgresStore(db), func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func auditSink(rdb *redis.Client, cfg *config.Config, logger *zap.Logger) audit.Sink {
	sinks := audit.MultiSink{audit.NewLogSink(logger)}
	if rdb != nil {
		sinks = append(sinks, audit.NewRedisSink(rdb, cfg.Audit.RedisKey))
	}
	return sinks
}

// seedSystemCash opens the per-currency cash accounts the memory store needs for
// deposits and withdrawals. Postgres gets them from migrations.
func seedSystemCash(store *database.MemoryStore, ibans map[string]string) {
	now := time.Now().UTC()
	for code, iban := range ibans {
		currency, err := models.ParseCurrency(code)
		if err != nil {
			continue
		}
		store.PutAccount(&models.Account{
			ID:         "system-cash-" + string(currency),
			CustomerID: "system",
			IBAN:       iban,
			Currency:   currency,
			Balance:    models.ZeroMoney(currency),
			Status:     models.AccountStatusActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
}
