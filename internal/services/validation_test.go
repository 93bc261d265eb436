package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid external transfer", func(t *testing.T) {
		req := models.ExternalTransferRequest{
			FromAccountID: "acc-1",
			ToIBAN:        "TR330006100519786457841326",
			Amount:        decimal.NewFromInt(10),
			Currency:      "TRY",
		}
		assert.NoError(t, vh.ValidateStruct(&req))
	})

	t.Run("spaced lower-case iban", func(t *testing.T) {
		req := models.ExternalTransferRequest{
			FromAccountID: "acc-1",
			ToIBAN:        "tr33 0006 1005 1978 6457 8413 26",
			Amount:        decimal.NewFromInt(10),
			Currency:      "TRY",
		}
		assert.NoError(t, vh.ValidateStruct(&req))
	})

	t.Run("malformed iban", func(t *testing.T) {
		req := models.ExternalTransferRequest{
			FromAccountID: "acc-1",
			ToIBAN:        "TR33-0006-1005-1978",
			Amount:        decimal.NewFromInt(10),
			Currency:      "TRY",
		}
		err := vh.ValidateStruct(&req)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "ToIBAN", validationErrors[0].Field())
	})

	t.Run("missing required fields", func(t *testing.T) {
		req := models.InternalTransferRequest{Currency: "TRYX"}
		err := vh.ValidateStruct(&req)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3) // FromAccountID, ToAccountID, Currency
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", "INTERNAL_ERROR", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Equal(t, "INTERNAL_ERROR", response.Code)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&models.CashRequest{Currency: "TRY"})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", "VALIDATION", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "VALIDATION", response.Code)
		assert.Contains(t, response.Details, "AccountID")
	})
}
