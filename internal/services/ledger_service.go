package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/models"
)

// DoubleLedgerService is the posting primitive shared by every money movement:
// it locks account pairs in canonical order and writes balanced entries.
type DoubleLedgerService struct {
	now   func() time.Time
	newID func() string
}

func NewDoubleLedgerService(now func() time.Time) *DoubleLedgerService {
	if now == nil {
		now = time.Now
	}
	return &DoubleLedgerService{
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Posting is one balanced movement. Credit is nil when the receiving leg leaves
// the system; only the debit entry is written in that case.
type Posting struct {
	Debit       *models.Account
	Credit      *models.Account
	Amount      models.Money
	Description string
}

// LockPair acquires both accounts in ascending id order regardless of transfer
// direction and returns them as (from, to). A missing account comes back nil so
// callers can attribute AccountNotFound to the right side.
func (s *DoubleLedgerService) LockPair(ctx context.Context, uow database.UnitOfWork, fromID, toID string) (*models.Account, *models.Account, error) {
	firstLock, secondLock := fromID, toID
	if fromID > toID {
		firstLock, secondLock = toID, fromID
	}

	first, err := s.lockAccount(ctx, uow, firstLock)
	if err != nil {
		return nil, nil, err
	}

	second, err := s.lockAccount(ctx, uow, secondLock)
	if err != nil {
		return nil, nil, err
	}

	if firstLock != fromID {
		first, second = second, first
	}
	return first, second, nil
}

func (s *DoubleLedgerService) lockAccount(ctx context.Context, uow database.UnitOfWork, accountID string) (*models.Account, error) {
	account, err := uow.AcquireForUpdate(ctx, accountID)
	if errors.Is(err, database.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	return account, nil
}

// Post applies the posting to the locked accounts and persists the entries and
// both accounts. Entries are returned debit first.
func (s *DoubleLedgerService) Post(ctx context.Context, uow database.UnitOfWork, p Posting) ([]models.LedgerEntry, error) {
	if err := p.Debit.Withdraw(p.Amount); err != nil {
		return nil, err
	}
	if p.Credit != nil {
		if err := p.Credit.Deposit(p.Amount); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	entries := []models.LedgerEntry{s.newEntry(p.Debit.ID, models.DirectionDebit, p, now)}
	if p.Credit != nil {
		entries = append(entries, s.newEntry(p.Credit.ID, models.DirectionCredit, p, now))
	}

	for i := range entries {
		if err := uow.InsertLedgerEntry(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}

	if err := s.updateAccount(ctx, uow, p.Debit, now); err != nil {
		return nil, err
	}
	if p.Credit != nil {
		if err := s.updateAccount(ctx, uow, p.Credit, now); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *DoubleLedgerService) newEntry(accountID string, direction models.Direction, p Posting, at time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		ID:            s.newID(),
		AccountID:     accountID,
		Amount:        p.Amount,
		Direction:     direction,
		Description:   p.Description,
		ReferenceCode: s.referenceCode(),
		CreatedAt:     at,
	}
}

func (s *DoubleLedgerService) referenceCode() string {
	return "LE" + strings.ToUpper(strings.ReplaceAll(s.newID(), "-", "")[:16])
}

func (s *DoubleLedgerService) updateAccount(ctx context.Context, uow database.UnitOfWork, account *models.Account, at time.Time) error {
	account.UpdatedAt = at
	if err := uow.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, database.ErrConcurrentUpdate) {
			return fmt.Errorf("optimistic lock failed for account %s: %w", account.ID, err)
		}
		return err
	}
	return nil
}
