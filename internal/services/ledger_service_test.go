package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUnitOfWork struct {
	mock.Mock
}

func (m *MockUnitOfWork) AcquireForUpdate(ctx context.Context, accountID string) (*models.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockUnitOfWork) AcquireTransferForUpdate(ctx context.Context, transferID string) (*models.Transfer, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transfer), args.Error(1)
}

func (m *MockUnitOfWork) SaveAccount(ctx context.Context, account *models.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockUnitOfWork) InsertTransfer(ctx context.Context, transfer *models.Transfer) error {
	return m.Called(ctx, transfer).Error(0)
}

func (m *MockUnitOfWork) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockUnitOfWork) MarkReversed(ctx context.Context, transferID, reversalID string, at time.Time) error {
	return m.Called(ctx, transferID, reversalID, at).Error(0)
}

func ledgerAccount(id, balance string) *models.Account {
	return &models.Account{
		ID:             id,
		IBAN:           "TR11000100000000000000" + id,
		Currency:       models.CurrencyTRY,
		Balance:        models.MustMoney(balance, models.CurrencyTRY),
		OverdraftLimit: decimal.Zero,
		Status:         models.AccountStatusActive,
	}
}

func TestDoubleLedgerService_LockPair(t *testing.T) {
	service := NewDoubleLedgerService(nil)
	ctx := context.Background()

	t.Run("locks in ascending id order regardless of direction", func(t *testing.T) {
		uow := new(MockUnitOfWork)
		var order []string
		record := func(args mock.Arguments) { order = append(order, args.String(1)) }
		uow.On("AcquireForUpdate", ctx, "acc-1").Run(record).Return(ledgerAccount("acc-1", "10"), nil)
		uow.On("AcquireForUpdate", ctx, "acc-2").Run(record).Return(ledgerAccount("acc-2", "20"), nil)

		from, to, err := service.LockPair(ctx, uow, "acc-2", "acc-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"acc-1", "acc-2"}, order)
		assert.Equal(t, "acc-2", from.ID)
		assert.Equal(t, "acc-1", to.ID)

		order = nil
		from, to, err = service.LockPair(ctx, uow, "acc-1", "acc-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"acc-1", "acc-2"}, order)
		assert.Equal(t, "acc-1", from.ID)
		assert.Equal(t, "acc-2", to.ID)
	})

	t.Run("missing account comes back nil", func(t *testing.T) {
		uow := new(MockUnitOfWork)
		uow.On("AcquireForUpdate", ctx, "acc-1").Return(nil, database.ErrRecordNotFound)
		uow.On("AcquireForUpdate", ctx, "acc-2").Return(ledgerAccount("acc-2", "20"), nil)

		from, to, err := service.LockPair(ctx, uow, "acc-1", "acc-2")
		require.NoError(t, err)
		assert.Nil(t, from)
		assert.Equal(t, "acc-2", to.ID)
	})

	t.Run("storage failure aborts", func(t *testing.T) {
		uow := new(MockUnitOfWork)
		boom := errors.New("connection reset")
		uow.On("AcquireForUpdate", ctx, "acc-1").Return(nil, boom)

		_, _, err := service.LockPair(ctx, uow, "acc-1", "acc-2")
		assert.ErrorIs(t, err, boom)
		uow.AssertNotCalled(t, "AcquireForUpdate", ctx, "acc-2")
	})
}

func TestDoubleLedgerService_Post(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	service := NewDoubleLedgerService(func() time.Time { return now })
	ctx := context.Background()

	t.Run("writes debit then credit and saves both accounts", func(t *testing.T) {
		uow := new(MockUnitOfWork)
		from, to := ledgerAccount("acc-1", "100"), ledgerAccount("acc-2", "0")

		var directions []models.Direction
		uow.On("InsertLedgerEntry", ctx, mock.AnythingOfType("*models.LedgerEntry")).
			Run(func(args mock.Arguments) {
				directions = append(directions, args.Get(1).(*models.LedgerEntry).Direction)
			}).Return(nil)
		uow.On("SaveAccount", ctx, from).Return(nil).Once()
		uow.On("SaveAccount", ctx, to).Return(nil).Once()

		entries, err := service.Post(ctx, uow, Posting{
			Debit: from, Credit: to, Amount: models.MustMoney("40", models.CurrencyTRY), Description: "rent",
		})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, []models.Direction{models.DirectionDebit, models.DirectionCredit}, directions)
		assert.Equal(t, "acc-1", entries[0].AccountID)
		assert.Equal(t, "rent", entries[1].Description)
		assert.NotEqual(t, entries[0].ReferenceCode, entries[1].ReferenceCode)
		assert.Equal(t, now, entries[0].CreatedAt)
		assert.Equal(t, "60.00", from.Balance.Amount.StringFixed(2))
		assert.Equal(t, "40.00", to.Balance.Amount.StringFixed(2))
		uow.AssertExpectations(t)
	})

	t.Run("external leg writes only the debit", func(t *testing.T) {
		uow := new(MockUnitOfWork)
		from := ledgerAccount("acc-1", "100")
		uow.On("InsertLedgerEntry", ctx, mock.Anything).Return(nil).Once()
		uow.On("SaveAccount", ctx, from).Return(nil).Once()

		entries, err := service.Post(ctx, uow, Posting{Debit: from, Amount: models.MustMoney("40", models.CurrencyTRY)})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		uow.AssertExpectations(t)
	})

	t.Run("stale version surfaces as concurrent update", func(t *testing.T) {
		uow := new(MockUnitOfWork)
		from, to := ledgerAccount("acc-1", "100"), ledgerAccount("acc-2", "0")
		uow.On("InsertLedgerEntry", ctx, mock.Anything).Return(nil)
		uow.On("SaveAccount", ctx, from).Return(database.ErrConcurrentUpdate)

		_, err := service.Post(ctx, uow, Posting{Debit: from, Credit: to, Amount: models.MustMoney("1", models.CurrencyTRY)})
		assert.ErrorIs(t, err, database.ErrConcurrentUpdate)
		assert.Contains(t, err.Error(), "optimistic lock failed")
	})

	t.Run("insufficient funds writes nothing", func(t *testing.T) {
		uow := new(MockUnitOfWork)
		from, to := ledgerAccount("acc-1", "10"), ledgerAccount("acc-2", "0")

		_, err := service.Post(ctx, uow, Posting{Debit: from, Credit: to, Amount: models.MustMoney("11", models.CurrencyTRY)})
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		uow.AssertNotCalled(t, "InsertLedgerEntry", mock.Anything, mock.Anything)
	})
}
