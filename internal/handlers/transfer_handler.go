package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

type TransferHandler struct {
	service   *services.TransferService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewTransferHandler(service *services.TransferService, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("transfer_handler"),
	}
}

// TransferInternal handles POST /api/v1/transfers/internal.
func (h *TransferHandler) TransferInternal(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.InternalTransferRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	transfer, err := h.service.TransferInternal(r.Context(), p, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer.Projection())
}

// TransferExternal handles POST /api/v1/transfers/external.
func (h *TransferHandler) TransferExternal(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.ExternalTransferRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	transfer, err := h.service.TransferExternal(r.Context(), p, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer.Projection())
}

// ReverseTransfer handles POST /api/v1/transfers/reverse. Privilege is checked
// by the service so the attempt is audited either way.
func (h *TransferHandler) ReverseTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.ReverseTransferRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	result, err := h.service.ReverseTransfer(r.Context(), p, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTransfer handles GET /api/v1/transfers/{transferId}.
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), p, chi.URLParam(r, "transferId"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer.Projection())
}
