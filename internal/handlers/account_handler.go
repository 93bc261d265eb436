package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

const maxEntryPageSize = 500

// BalanceResponse is the balance snapshot of an account.
type BalanceResponse struct {
	AccountID        string               `json:"accountId"`
	IBAN             string               `json:"iban"`
	Currency         models.Currency      `json:"currency"`
	Balance          string               `json:"balance"`
	OverdraftLimit   string               `json:"overdraftLimit"`
	AvailableBalance string               `json:"availableBalance"`
	Status           models.AccountStatus `json:"status"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

func balanceResponse(a *models.Account) BalanceResponse {
	return BalanceResponse{
		AccountID:        a.ID,
		IBAN:             a.IBAN,
		Currency:         a.Currency,
		Balance:          a.Balance.Amount.StringFixed(models.MoneyScale),
		OverdraftLimit:   a.OverdraftLimit.StringFixed(models.MoneyScale),
		AvailableBalance: a.Balance.Amount.Add(a.OverdraftLimit).StringFixed(models.MoneyScale),
		Status:           a.Status,
		UpdatedAt:        a.UpdatedAt,
	}
}

type AccountHandler struct {
	service   *services.TransferService
	validator *services.ValidationHelper
	logger    *zap.Logger
	pageSize  int
}

func NewAccountHandler(service *services.TransferService, pageSize int, logger *zap.Logger) *AccountHandler {
	if pageSize <= 0 || pageSize > maxEntryPageSize {
		pageSize = 50
	}
	return &AccountHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("account_handler"),
		pageSize:  pageSize,
	}
}

// GetBalance handles GET /api/v1/accounts/{accountId}/balance.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), p, chi.URLParam(r, "accountId"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(account))
}

// ListEntries handles GET /api/v1/accounts/{accountId}/entries?limit=N.
func (h *AccountHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	limit := h.pageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEntryPageSize {
			services.SendErrorResponse(w, "limit must be between 1 and "+strconv.Itoa(maxEntryPageSize),
				string(models.KindValidation), http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	entries, err := h.service.ListEntries(r.Context(), p, chi.URLParam(r, "accountId"), limit)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	out := make([]models.EntryProjection, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Projection())
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// FreezeAccount handles POST /api/v1/accounts/{accountId}/freeze.
func (h *AccountHandler) FreezeAccount(w http.ResponseWriter, r *http.Request) {
	h.administer(w, r, h.service.FreezeAccount)
}

// ActivateAccount handles POST /api/v1/accounts/{accountId}/activate.
func (h *AccountHandler) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	h.administer(w, r, h.service.ActivateAccount)
}

// CloseAccount handles POST /api/v1/accounts/{accountId}/close.
func (h *AccountHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	h.administer(w, r, h.service.CloseAccount)
}

// UpdateOverdraft handles PUT /api/v1/accounts/{accountId}/overdraft.
func (h *AccountHandler) UpdateOverdraft(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.OverdraftRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	account, err := h.service.UpdateOverdraftLimit(r.Context(), p, chi.URLParam(r, "accountId"), req.Limit)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(account))
}

type adminFunc func(ctx context.Context, p models.Principal, accountID string) (*models.Account, error)

func (h *AccountHandler) administer(w http.ResponseWriter, r *http.Request, op adminFunc) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	account, err := op(r.Context(), p, chi.URLParam(r, "accountId"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(account))
}
