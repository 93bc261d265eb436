package handlers

import (
	"context"
	"net/http"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

// TransactionHandler serves cash deposits and withdrawals.
type TransactionHandler struct {
	service   *services.TransferService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewTransactionHandler(service *services.TransferService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("transaction_handler"),
	}
}

// Deposit handles POST /api/v1/transactions/deposit.
func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, h.service.Deposit)
}

// Withdraw handles POST /api/v1/transactions/withdraw.
func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.cash(w, r, h.service.Withdraw)
}

type cashFunc func(ctx context.Context, p models.Principal, req models.CashRequest) (*models.LedgerEntry, error)

func (h *TransactionHandler) cash(w http.ResponseWriter, r *http.Request, op cashFunc) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.CashRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	entry, err := op(r.Context(), p, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.Projection())
}
