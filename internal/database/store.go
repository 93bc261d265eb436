package database

import (
	"context"
	"errors"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrConcurrentUpdate = errors.New("concurrent update detected")
	ErrAlreadyReversed  = errors.New("transfer already has a reversal")
)

// AccountStore is the repository behind the transfer core. Plain reads see the
// last committed state and are never blocked by row locks held in a unit of work.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByIBAN(ctx context.Context, iban string) (*models.Account, error)
	GetTransfer(ctx context.Context, id string) (*models.Transfer, error)
	ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)

	// WithinUnitOfWork runs fn in one atomic unit. The unit commits only if fn
	// returns nil and ctx is still live; otherwise every write is rolled back.
	WithinUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// UnitOfWork is the write side of a single atomic unit.
type UnitOfWork interface {
	// AcquireForUpdate blocks until the prior holder's unit of work ends and
	// returns the account; the exclusive lock is held until this unit ends.
	AcquireForUpdate(ctx context.Context, accountID string) (*models.Account, error)
	// AcquireTransferForUpdate has the same contract for a transfer row.
	AcquireTransferForUpdate(ctx context.Context, transferID string) (*models.Transfer, error)

	SaveAccount(ctx context.Context, account *models.Account) error
	InsertTransfer(ctx context.Context, transfer *models.Transfer) error
	InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	// MarkReversed sets the reverse link once. A second call for the same
	// transfer fails with ErrAlreadyReversed.
	MarkReversed(ctx context.Context, transferID, reversalID string, at time.Time) error
}
