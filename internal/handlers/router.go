package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Redis backs idempotency keys. Nil disables them.
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	EntryPageSize  int
	AccessLog      bool
}

// NewRouter builds the HTTP surface of the ledger.
func NewRouter(service *services.TransferService, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"https://*", "http://*"}
	}

	transfers := NewTransferHandler(service, logger)
	transactions := NewTransactionHandler(service, logger)
	accounts := NewAccountHandler(service, cfg.EntryPageSize, logger)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	if cfg.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mW.IdempotencyHeader},
		ExposedHeaders:   []string{mW.ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware(cfg.JWTSecret))
		r.Use(mW.Idempotency(cfg.Redis, cfg.IdempotencyTTL, logger.Named("idempotency")))

		r.Post("/transfers/internal", transfers.TransferInternal)
		r.Post("/transfers/external", transfers.TransferExternal)
		r.Post("/transfers/reverse", transfers.ReverseTransfer)
		r.Get("/transfers/{transferId}", transfers.GetTransfer)

		r.Post("/transactions/deposit", transactions.Deposit)
		r.Post("/transactions/withdraw", transactions.Withdraw)

		r.Get("/accounts/{accountId}/balance", accounts.GetBalance)
		r.Get("/accounts/{accountId}/entries", accounts.ListEntries)
		r.Post("/accounts/{accountId}/freeze", accounts.FreezeAccount)
		r.Post("/accounts/{accountId}/activate", accounts.ActivateAccount)
		r.Post("/accounts/{accountId}/close", accounts.CloseAccount)
		r.Put("/accounts/{accountId}/overdraft", accounts.UpdateOverdraft)
	})

	return r
}
