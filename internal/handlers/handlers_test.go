package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "handler-test-secret"

type discardRecorder struct{}

func (discardRecorder) Submit(audit.Event) {}

var (
	adminPrincipal    = models.Principal{UserID: "ops-1", Role: models.RoleAdmin}
	customerPrincipal = models.Principal{UserID: "cust-1", Role: "customer"}
)

type testServer struct {
	store   *database.MemoryStore
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := database.NewMemoryStore()
	for _, a := range []*models.Account{
		{ID: "acc-x", IBAN: "TR110001000000000000000001", Currency: models.CurrencyTRY, Balance: models.MustMoney("1000", models.CurrencyTRY), Status: models.AccountStatusActive},
		{ID: "acc-y", IBAN: "TR110001000000000000000002", Currency: models.CurrencyTRY, Balance: models.MustMoney("0", models.CurrencyTRY), Status: models.AccountStatusActive},
		{ID: "cash-try", IBAN: "TR00SYSCASHTRY0000000000001", Currency: models.CurrencyTRY, Balance: models.MustMoney("0", models.CurrencyTRY), Status: models.AccountStatusActive},
	} {
		store.PutAccount(a)
	}

	service := services.NewTransferService(store, discardRecorder{}, zap.NewNop(),
		services.WithSystemCashIBANs(map[string]string{"TRY": "TR00SYSCASHTRY0000000000001"}))
	return &testServer{
		store:   store,
		handler: NewRouter(service, RouterConfig{JWTSecret: testSecret, EntryPageSize: 20}, zap.NewNop()),
	}
}

func (s *testServer) do(t *testing.T, as models.Principal, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if as.UserID != "" {
		token, err := middleware.IssueToken(testSecret, as, time.Hour)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) balance(t *testing.T, id string) string {
	t.Helper()
	a, err := s.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance.Amount.StringFixed(2)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, code, decode[services.ErrorResponse](t, w).Code)
}

func TestStatusForKind_CoversEveryKind(t *testing.T) {
	for _, kind := range models.Kinds {
		assert.NotEqual(t, http.StatusInternalServerError, statusForKind(kind), "kind %s is unmapped", kind)
	}
	assert.Equal(t, http.StatusForbidden, statusForKind(models.KindUnauthorized))
	assert.Equal(t, http.StatusNotFound, statusForKind(models.KindAccountNotFound))
	assert.Equal(t, http.StatusConflict, statusForKind(models.KindAlreadyReversed))
	assert.Equal(t, http.StatusBadRequest, statusForKind(models.KindInsufficientFunds))
}

func TestRespondError_InfrastructureFailure(t *testing.T) {
	w := httptest.NewRecorder()
	respondError(w, zap.NewNop(), errors.New("connection reset"))
	assertErrorCode(t, w, http.StatusInternalServerError, "INTERNAL_ERROR")
	assert.NotContains(t, w.Body.String(), "connection reset")

	w = httptest.NewRecorder()
	respondError(w, zap.NewNop(), context.DeadlineExceeded)
	assertErrorCode(t, w, http.StatusGatewayTimeout, "TIMEOUT")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, models.Principal{}, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, models.Principal{}, http.MethodGet, "/api/v1/accounts/acc-x/balance", "")
	assertErrorCode(t, w, http.StatusUnauthorized, "UNAUTHENTICATED")
}

func TestTransferInternal(t *testing.T) {
	t.Run("moves money", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal",
			`{"fromAccountId":"acc-x","toAccountId":"acc-y","amount":"250","currency":"TRY","description":"rent"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		p := decode[models.TransferProjection](t, w)
		assert.Equal(t, "250.00", p.Amount)
		assert.Equal(t, models.ChannelInternal, p.Channel)
		assert.Equal(t, models.TransferStatusExecuted, p.Status)
		assert.Equal(t, "acc-y", p.ToAccountID)
		assert.Equal(t, "750.00", s.balance(t, "acc-x"))
		assert.Equal(t, "250.00", s.balance(t, "acc-y"))

		w = s.do(t, customerPrincipal, http.MethodGet, "/api/v1/transfers/"+p.ID, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, p.ID, decode[models.TransferProjection](t, w).ID)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal",
			`{"fromAccountId":"acc-y","toAccountId":"acc-x","amount":"1","currency":"TRY"}`)
		assertErrorCode(t, w, http.StatusBadRequest, "INSUFFICIENT_FUNDS")
	})

	t.Run("unknown account", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal",
			`{"fromAccountId":"acc-x","toAccountId":"acc-nope","amount":"1","currency":"TRY"}`)
		assertErrorCode(t, w, http.StatusNotFound, "ACCOUNT_NOT_FOUND")
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t)
		for _, body := range []string{
			`{"fromAccountId":"acc-x","toAccountId":"acc-y","amount":"1","currency":"TRY","extra":1}`,
			`{"fromAccountId":"acc-x"`,
			`{"fromAccountId":"acc-x","toAccountId":"acc-y","amount":"1","currency":"TRY"}{}`,
			`{"toAccountId":"acc-y","amount":"1","currency":"TRY"}`,
		} {
			w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal", body)
			assertErrorCode(t, w, http.StatusBadRequest, "VALIDATION")
		}
		assert.Equal(t, "1000.00", s.balance(t, "acc-x"))
	})

	t.Run("unknown transfer", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, customerPrincipal, http.MethodGet, "/api/v1/transfers/missing", "")
		assertErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")
	})
}

func TestTransferExternal(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/external",
		`{"fromAccountId":"acc-x","toIban":"not-an-iban","amount":"10","currency":"TRY"}`)
	assertErrorCode(t, w, http.StatusBadRequest, "VALIDATION")
	assert.Contains(t, decode[services.ErrorResponse](t, w).Details, "ToIBAN")

	w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/external",
		`{"fromAccountId":"acc-x","toIban":"TR110001000000000000000002","amount":"10","currency":"TRY"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode[models.TransferProjection](t, w)
	assert.Equal(t, models.ChannelEFT, p.Channel)
	assert.Equal(t, "acc-y", p.ToAccountID)
	assert.Equal(t, "10.00", s.balance(t, "acc-y"))

	w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/external",
		`{"fromAccountId":"acc-x","toIban":"tr11 0001 0000 0000 0000 0000 02","amount":"5","currency":"TRY"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "acc-y", decode[models.TransferProjection](t, w).ToAccountID)
	assert.Equal(t, "15.00", s.balance(t, "acc-y"))
}

func TestReverseTransfer(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal",
		`{"fromAccountId":"acc-x","toAccountId":"acc-y","amount":"100","currency":"TRY"}`)
	require.Equal(t, http.StatusOK, w.Code)
	original := decode[models.TransferProjection](t, w)
	body := `{"transferId":"` + original.ID + `","reason":"customer dispute"}`

	w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/reverse", body)
	assertErrorCode(t, w, http.StatusForbidden, "UNAUTHORIZED")

	w = s.do(t, adminPrincipal, http.MethodPost, "/api/v1/transfers/reverse", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[models.ReversalResult](t, w)
	assert.Equal(t, original.ID, result.OriginalTransferID)
	assert.NotEmpty(t, result.ReversalTransferID)
	assert.Equal(t, "1000.00", s.balance(t, "acc-x"))
	assert.Equal(t, "0.00", s.balance(t, "acc-y"))

	w = s.do(t, adminPrincipal, http.MethodPost, "/api/v1/transfers/reverse", body)
	assertErrorCode(t, w, http.StatusConflict, "ALREADY_REVERSED")

	w = s.do(t, adminPrincipal, http.MethodPost, "/api/v1/transfers/reverse",
		`{"transferId":"`+result.ReversalTransferID+`"}`)
	assertErrorCode(t, w, http.StatusConflict, "CANNOT_REVERSE_REVERSAL")
}

func TestCashTransactions(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transactions/deposit",
		`{"accountId":"acc-y","amount":"40.50","currency":"TRY"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entry := decode[models.EntryProjection](t, w)
	assert.Equal(t, models.DirectionCredit, entry.Direction)
	assert.Equal(t, "40.50", entry.Amount)
	assert.Equal(t, "acc-y", entry.AccountID)

	w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transactions/withdraw",
		`{"accountId":"acc-y","amount":"40.51","currency":"TRY"}`)
	assertErrorCode(t, w, http.StatusBadRequest, "INSUFFICIENT_FUNDS")

	w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transactions/withdraw",
		`{"accountId":"acc-y","amount":"40.50","currency":"TRY"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.DirectionDebit, decode[models.EntryProjection](t, w).Direction)
	assert.Equal(t, "0.00", s.balance(t, "acc-y"))
	assert.Equal(t, "0.00", s.balance(t, "cash-try"))

	w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transactions/deposit",
		`{"accountId":"acc-y","amount":"-1","currency":"TRY"}`)
	assertErrorCode(t, w, http.StatusBadRequest, "INVALID_AMOUNT")
}

func TestAccountEndpoints(t *testing.T) {
	t.Run("balance", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, customerPrincipal, http.MethodGet, "/api/v1/accounts/acc-x/balance", "")
		require.Equal(t, http.StatusOK, w.Code)
		b := decode[BalanceResponse](t, w)
		assert.Equal(t, "1000.00", b.Balance)
		assert.Equal(t, "1000.00", b.AvailableBalance)
		assert.Equal(t, models.AccountStatusActive, b.Status)

		w = s.do(t, customerPrincipal, http.MethodGet, "/api/v1/accounts/acc-nope/balance", "")
		assertErrorCode(t, w, http.StatusNotFound, "ACCOUNT_NOT_FOUND")
	})

	t.Run("entries", func(t *testing.T) {
		s := newTestServer(t)
		for _, amount := range []string{"1", "2", "3"} {
			w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal",
				`{"fromAccountId":"acc-x","toAccountId":"acc-y","amount":"`+amount+`","currency":"TRY"}`)
			require.Equal(t, http.StatusOK, w.Code)
		}

		w := s.do(t, customerPrincipal, http.MethodGet, "/api/v1/accounts/acc-y/entries?limit=2", "")
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[struct {
			Entries []models.EntryProjection `json:"entries"`
		}](t, w)
		require.Len(t, page.Entries, 2)
		assert.Equal(t, "3.00", page.Entries[0].Amount)
		assert.Equal(t, "2.00", page.Entries[1].Amount)

		w = s.do(t, customerPrincipal, http.MethodGet, "/api/v1/accounts/acc-y/entries?limit=abc", "")
		assertErrorCode(t, w, http.StatusBadRequest, "VALIDATION")
	})

	t.Run("administration is privileged", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, customerPrincipal, http.MethodPost, "/api/v1/accounts/acc-x/freeze", "")
		assertErrorCode(t, w, http.StatusForbidden, "UNAUTHORIZED")

		w = s.do(t, adminPrincipal, http.MethodPost, "/api/v1/accounts/acc-x/freeze", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, models.AccountStatusFrozen, decode[BalanceResponse](t, w).Status)

		w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal",
			`{"fromAccountId":"acc-x","toAccountId":"acc-y","amount":"1","currency":"TRY"}`)
		assertErrorCode(t, w, http.StatusConflict, "ACCOUNT_FROZEN")

		w = s.do(t, adminPrincipal, http.MethodPost, "/api/v1/accounts/acc-x/activate", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.AccountStatusActive, decode[BalanceResponse](t, w).Status)

		w = s.do(t, adminPrincipal, http.MethodPost, "/api/v1/accounts/acc-x/close", "")
		assertErrorCode(t, w, http.StatusConflict, "INVALID_OPERATION")

		w = s.do(t, adminPrincipal, http.MethodPost, "/api/v1/accounts/acc-y/close", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.AccountStatusClosed, decode[BalanceResponse](t, w).Status)
	})

	t.Run("overdraft", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, adminPrincipal, http.MethodPut, "/api/v1/accounts/acc-y/overdraft", `{"limit":"100"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		b := decode[BalanceResponse](t, w)
		assert.Equal(t, "100.00", b.OverdraftLimit)
		assert.Equal(t, "100.00", b.AvailableBalance)

		w = s.do(t, adminPrincipal, http.MethodPut, "/api/v1/accounts/acc-y/overdraft", `{"limit":"-5"}`)
		assertErrorCode(t, w, http.StatusBadRequest, "VALIDATION")

		w = s.do(t, customerPrincipal, http.MethodPost, "/api/v1/transfers/internal",
			`{"fromAccountId":"acc-y","toAccountId":"acc-x","amount":"100","currency":"TRY"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decimal.RequireFromString(s.balance(t, "acc-y")).Equal(decimal.NewFromInt(-100)))
	})
}
