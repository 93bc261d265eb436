package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

// statusForKind maps a business failure to its HTTP status. Every ErrorKind
// must have a case.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidAmount,
		models.KindSameAccountTransfer,
		models.KindInsufficientFunds,
		models.KindReversalWindowExpired,
		models.KindExternalReversalNotSupported,
		models.KindValidation:
		return http.StatusBadRequest
	case models.KindAccountNotFound, models.KindNotFound:
		return http.StatusNotFound
	case models.KindAccountClosed,
		models.KindAccountFrozen,
		models.KindCurrencyMismatch,
		models.KindAlreadyReversed,
		models.KindCannotReverseReversal,
		models.KindInvalidOperation:
		return http.StatusConflict
	case models.KindUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondError writes the error body for err. Business failures carry their
// kind as the code; anything else is logged and hidden behind INTERNAL_ERROR.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var le *models.LedgerError
	if errors.As(err, &le) {
		services.SendErrorResponse(w, le.Message, string(le.Kind), statusForKind(le.Kind), nil)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("request timed out", zap.Error(err))
		services.SendErrorResponse(w, "Request timed out", "TIMEOUT", http.StatusGatewayTimeout, nil)
		return
	}
	logger.Error("request failed", zap.Error(err))
	services.SendErrorResponse(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError, nil)
}
