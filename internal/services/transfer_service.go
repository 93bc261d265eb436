package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultReversalWindow = 30 * time.Minute

// TransferService orchestrates every balance-changing operation. Each call runs
// validation, locking, mutation and persistence in one unit of work and reports
// the attempt to the audit recorder after the unit ends.
type TransferService struct {
	store          database.AccountStore
	ledger         *DoubleLedgerService
	audit          audit.Recorder
	settlement     SettlementPublisher
	logger         *zap.Logger
	reversalWindow time.Duration
	cashIBANs      map[models.Currency]string
	now            func() time.Time
	newID          func() string
}

type Option func(*TransferService)

// WithClock replaces the wall clock used for timestamps and the reversal window.
func WithClock(now func() time.Time) Option {
	return func(s *TransferService) { s.now = now }
}

func WithReversalWindow(d time.Duration) Option {
	return func(s *TransferService) {
		if d > 0 {
			s.reversalWindow = d
		}
	}
}

// WithSettlement enables outbound settlement of EFT transfers leaving the system.
func WithSettlement(p SettlementPublisher) Option {
	return func(s *TransferService) { s.settlement = p }
}

// WithSystemCashIBANs sets the system cash account per currency code.
func WithSystemCashIBANs(ibans map[string]string) Option {
	return func(s *TransferService) {
		for currency, iban := range ibans {
			s.cashIBANs[models.Currency(strings.ToUpper(currency))] = iban
		}
	}
}

func NewTransferService(store database.AccountStore, recorder audit.Recorder, logger *zap.Logger, opts ...Option) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TransferService{
		store:          store,
		audit:          recorder,
		logger:         logger.Named("transfer"),
		reversalWindow: DefaultReversalWindow,
		cashIBANs:      make(map[models.Currency]string),
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = NewDoubleLedgerService(func() time.Time { return s.now() })
	return s
}

// TransferInternal moves money between two accounts of this system.
func (s *TransferService) TransferInternal(ctx context.Context, p models.Principal, req models.InternalTransferRequest) (*models.Transfer, error) {
	requested := normalizeCurrency(req.Currency)
	amount := models.NewMoney(req.Amount, requested)

	var transfer *models.Transfer
	err := s.inUnit(ctx, func(ctx context.Context, uow database.UnitOfWork) error {
		if req.FromAccountID == req.ToAccountID {
			return models.NewAccountError(models.KindSameAccountTransfer, req.FromAccountID, "source and destination are the same account")
		}
		if !amount.IsPositive() {
			return models.ErrInvalidAmount
		}

		from, to, err := s.ledger.LockPair(ctx, uow, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}
		if err := checkLegs(from, req.FromAccountID, to, req.ToAccountID); err != nil {
			return err
		}
		if err := checkCurrencies(requested, from, to); err != nil {
			return err
		}
		if !from.CanWithdraw(amount) {
			return models.NewAccountError(models.KindInsufficientFunds, from.ID, "balance and overdraft do not cover "+amount.String())
		}

		if _, err := s.ledger.Post(ctx, uow, Posting{Debit: from, Credit: to, Amount: amount, Description: req.Description}); err != nil {
			return err
		}

		toID := to.ID
		transfer = &models.Transfer{
			ID:            s.newID(),
			FromAccountID: from.ID,
			ToAccountID:   &toID,
			Amount:        amount,
			Channel:       models.ChannelInternal,
			Status:        models.TransferStatusExecuted,
			Description:   req.Description,
			CreatedAt:     s.now().UTC(),
		}
		return uow.InsertTransfer(ctx, transfer)
	})

	event := audit.Event{
		EventType:      audit.EventTransfer,
		Operation:      "transfer_internal",
		AccountID:      req.FromAccountID,
		CounterpartyID: req.ToAccountID,
		Amount:         amount.Amount.StringFixed(models.MoneyScale),
		Currency:       string(requested),
	}
	if transfer != nil {
		event.TransferID = transfer.ID
	}
	s.report(p, event, err)

	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// TransferExternal sends money to an IBAN. When the IBAN belongs to this system
// the destination is credited in the same unit; otherwise only the debit leg is
// recorded and the transfer is handed to settlement after commit.
func (s *TransferService) TransferExternal(ctx context.Context, p models.Principal, req models.ExternalTransferRequest) (*models.Transfer, error) {
	requested := normalizeCurrency(req.Currency)
	amount := models.NewMoney(req.Amount, requested)
	toIBAN := models.NormalizeIBAN(req.ToIBAN)

	destinationID := ""
	dest, err := s.store.GetAccountByIBAN(ctx, toIBAN)
	switch {
	case err == nil:
		destinationID = dest.ID
	case !errors.Is(err, database.ErrRecordNotFound):
		return nil, fmt.Errorf("resolve destination iban: %w", err)
	}

	var (
		transfer *models.Transfer
		debtor   *models.Account
	)
	err = s.inUnit(ctx, func(ctx context.Context, uow database.UnitOfWork) error {
		if destinationID == req.FromAccountID {
			return models.NewAccountError(models.KindSameAccountTransfer, req.FromAccountID, "destination iban belongs to the source account")
		}
		if !amount.IsPositive() {
			return models.ErrInvalidAmount
		}

		var from, to *models.Account
		if destinationID != "" {
			var err error
			from, to, err = s.ledger.LockPair(ctx, uow, req.FromAccountID, destinationID)
			if err != nil {
				return err
			}
			if err := checkLegs(from, req.FromAccountID, to, destinationID); err != nil {
				return err
			}
			if err := checkCurrencies(requested, from, to); err != nil {
				return err
			}
		} else {
			var err error
			from, err = s.ledger.lockAccount(ctx, uow, req.FromAccountID)
			if err != nil {
				return err
			}
			if err := checkDebitLeg(from, req.FromAccountID); err != nil {
				return err
			}
			if err := checkCurrencies(requested, from); err != nil {
				return err
			}
		}
		if !from.CanWithdraw(amount) {
			return models.NewAccountError(models.KindInsufficientFunds, from.ID, "balance and overdraft do not cover "+amount.String())
		}

		if _, err := s.ledger.Post(ctx, uow, Posting{Debit: from, Credit: to, Amount: amount, Description: req.Description}); err != nil {
			return err
		}

		iban := toIBAN
		transfer = &models.Transfer{
			ID:            s.newID(),
			FromAccountID: from.ID,
			Amount:        amount,
			Channel:       models.ChannelEFT,
			Status:        models.TransferStatusExecuted,
			ExternalIBAN:  &iban,
			Description:   req.Description,
			CreatedAt:     s.now().UTC(),
		}
		if to != nil {
			toID := to.ID
			transfer.ToAccountID = &toID
		}
		debtor = from.Clone()
		return uow.InsertTransfer(ctx, transfer)
	})

	event := audit.Event{
		EventType:      audit.EventTransfer,
		Operation:      "transfer_external",
		AccountID:      req.FromAccountID,
		CounterpartyID: toIBAN,
		Amount:         amount.Amount.StringFixed(models.MoneyScale),
		Currency:       string(requested),
	}
	if transfer != nil {
		event.TransferID = transfer.ID
	}
	s.report(p, event, err)

	if err != nil {
		return nil, err
	}

	if !transfer.HasInternalDestination() && s.settlement != nil {
		if err := s.settlement.Publish(ctx, transfer, debtor); err != nil {
			s.logger.Error("settlement publish failed",
				zap.String("transfer_id", transfer.ID), zap.Error(err))
		}
	}
	return transfer, nil
}

// ReverseTransfer books the inverse of a transfer inside the reversal window and
// links both transfers. Only privileged principals may reverse.
func (s *TransferService) ReverseTransfer(ctx context.Context, p models.Principal, req models.ReverseTransferRequest) (*models.ReversalResult, error) {
	var (
		result   *models.ReversalResult
		original *models.Transfer
	)
	err := func() error {
		if !p.CanReverse() {
			return models.NewError(models.KindUnauthorized, "reversal requires elevated privilege")
		}
		return s.inUnit(ctx, func(ctx context.Context, uow database.UnitOfWork) error {
			var err error
			original, err = uow.AcquireTransferForUpdate(ctx, req.TransferID)
			if errors.Is(err, database.ErrRecordNotFound) {
				return models.NewError(models.KindNotFound, "transfer "+req.TransferID+" not found")
			}
			if err != nil {
				return fmt.Errorf("lock transfer %s: %w", req.TransferID, err)
			}

			if original.IsReversed() {
				return models.NewError(models.KindAlreadyReversed, "transfer "+original.ID+" is already reversed")
			}
			if original.IsReversal() {
				return models.NewError(models.KindCannotReverseReversal, "transfer "+original.ID+" is itself a reversal")
			}
			now := s.now().UTC()
			if now.Sub(original.CreatedAt) > s.reversalWindow {
				return models.NewError(models.KindReversalWindowExpired,
					fmt.Sprintf("reversal window of %s has passed", s.reversalWindow))
			}
			if !original.HasInternalDestination() {
				return models.NewError(models.KindExternalReversalNotSupported, "external transfers cannot be reversed")
			}

			// The reversal debits the original destination and credits the original source.
			debitID, creditID := *original.ToAccountID, original.FromAccountID
			debit, credit, err := s.ledger.LockPair(ctx, uow, debitID, creditID)
			if err != nil {
				return err
			}
			if debit == nil {
				return models.NewAccountError(models.KindAccountNotFound, debitID, "account not found")
			}
			if credit == nil {
				return models.NewAccountError(models.KindAccountNotFound, creditID, "account not found")
			}
			if err := checkNotClosed(debit); err != nil {
				return err
			}
			if err := checkNotClosed(credit); err != nil {
				return err
			}
			if err := checkCurrencies(original.Amount.Currency, debit, credit); err != nil {
				return err
			}
			if !debit.CanWithdraw(original.Amount) {
				return models.NewAccountError(models.KindInsufficientFunds, debit.ID, "balance and overdraft do not cover the reversal")
			}

			description := "Reversal of " + original.ID
			if reason := strings.TrimSpace(req.Reason); reason != "" {
				description += ": " + reason
			}
			if _, err := s.ledger.Post(ctx, uow, Posting{Debit: debit, Credit: credit, Amount: original.Amount, Description: description}); err != nil {
				return err
			}

			originalID := original.ID
			toID := credit.ID
			reversal := &models.Transfer{
				ID:                   s.newID(),
				FromAccountID:        debit.ID,
				ToAccountID:          &toID,
				Amount:               original.Amount,
				Channel:              original.Channel,
				Status:               models.TransferStatusExecuted,
				Description:          description,
				ReversalOfTransferID: &originalID,
				CreatedAt:            now,
			}
			if err := uow.InsertTransfer(ctx, reversal); err != nil {
				return err
			}
			if err := uow.MarkReversed(ctx, original.ID, reversal.ID, now); err != nil {
				return err
			}

			result = &models.ReversalResult{
				OriginalTransferID: original.ID,
				ReversalTransferID: reversal.ID,
				ReversedAt:         now,
			}
			return nil
		})
	}()

	event := audit.Event{
		EventType:  audit.EventReversal,
		Operation:  "reverse_transfer",
		TransferID: req.TransferID,
		Details:    map[string]string{"reason": req.Reason},
	}
	if original != nil {
		event.AccountID = original.FromAccountID
		if original.ToAccountID != nil {
			event.CounterpartyID = *original.ToAccountID
		}
		event.Amount = original.Amount.Amount.StringFixed(models.MoneyScale)
		event.Currency = string(original.Amount.Currency)
	}
	if result != nil {
		event.Details["reversal_transfer_id"] = result.ReversalTransferID
	}
	s.report(p, event, err)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Deposit credits an account from the system cash account of its currency.
// Frozen accounts accept deposits. The customer-side entry is returned.
func (s *TransferService) Deposit(ctx context.Context, p models.Principal, req models.CashRequest) (*models.LedgerEntry, error) {
	return s.cash(ctx, p, req, true)
}

// Withdraw debits an account into the system cash account of its currency.
func (s *TransferService) Withdraw(ctx context.Context, p models.Principal, req models.CashRequest) (*models.LedgerEntry, error) {
	return s.cash(ctx, p, req, false)
}

func (s *TransferService) cash(ctx context.Context, p models.Principal, req models.CashRequest, deposit bool) (*models.LedgerEntry, error) {
	requested := normalizeCurrency(req.Currency)
	amount := models.NewMoney(req.Amount, requested)

	var entry *models.LedgerEntry
	err := func() error {
		if !amount.IsPositive() {
			return models.ErrInvalidAmount
		}

		snapshot, err := s.store.GetAccount(ctx, req.AccountID)
		if errors.Is(err, database.ErrRecordNotFound) {
			return models.NewAccountError(models.KindAccountNotFound, req.AccountID, "account not found")
		}
		if err != nil {
			return fmt.Errorf("read account %s: %w", req.AccountID, err)
		}
		if snapshot.IsSystemCash() {
			return models.NewAccountError(models.KindInvalidOperation, snapshot.ID, "cash operations on the system cash account are not allowed")
		}
		cashAccount, err := s.systemCashAccount(ctx, snapshot.Currency)
		if err != nil {
			return err
		}

		return s.inUnit(ctx, func(ctx context.Context, uow database.UnitOfWork) error {
			customer, cashAcc, err := s.ledger.LockPair(ctx, uow, req.AccountID, cashAccount.ID)
			if err != nil {
				return err
			}
			if customer == nil {
				return models.NewAccountError(models.KindAccountNotFound, req.AccountID, "account not found")
			}
			if cashAcc == nil {
				return fmt.Errorf("system cash account %s vanished", cashAccount.ID)
			}
			if err := checkNotClosed(customer); err != nil {
				return err
			}
			if !deposit {
				if err := checkNotFrozen(customer); err != nil {
					return err
				}
			}
			if err := checkCurrencies(requested, customer, cashAcc); err != nil {
				return err
			}

			posting := Posting{Debit: cashAcc, Credit: customer, Amount: amount, Description: req.Description}
			if !deposit {
				if !customer.CanWithdraw(amount) {
					return models.NewAccountError(models.KindInsufficientFunds, customer.ID, "balance and overdraft do not cover "+amount.String())
				}
				posting = Posting{Debit: customer, Credit: cashAcc, Amount: amount, Description: req.Description}
			}

			entries, err := s.ledger.Post(ctx, uow, posting)
			if err != nil {
				return err
			}
			for i := range entries {
				if entries[i].AccountID == customer.ID {
					e := entries[i]
					entry = &e
				}
			}
			return nil
		})
	}()

	operation := "withdraw"
	if deposit {
		operation = "deposit"
	}
	s.report(p, audit.Event{
		EventType: audit.EventCash,
		Operation: operation,
		AccountID: req.AccountID,
		Amount:    amount.Amount.StringFixed(models.MoneyScale),
		Currency:  string(requested),
	}, err)

	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *TransferService) systemCashAccount(ctx context.Context, currency models.Currency) (*models.Account, error) {
	iban, ok := s.cashIBANs[currency]
	if !ok {
		return nil, fmt.Errorf("no system cash account configured for %s", currency)
	}
	account, err := s.store.GetAccountByIBAN(ctx, iban)
	if err != nil {
		return nil, fmt.Errorf("read system cash account %s: %w", iban, err)
	}
	return account, nil
}

// GetAccount returns the last committed state of an account.
func (s *TransferService) GetAccount(ctx context.Context, p models.Principal, accountID string) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, database.ErrRecordNotFound) {
		return nil, models.NewAccountError(models.KindAccountNotFound, accountID, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", accountID, err)
	}
	s.logger.Debug("account read", zap.String("principal_id", p.UserID), zap.String("account_id", accountID))
	return account, nil
}

func (s *TransferService) GetTransfer(ctx context.Context, p models.Principal, transferID string) (*models.Transfer, error) {
	transfer, err := s.store.GetTransfer(ctx, transferID)
	if errors.Is(err, database.ErrRecordNotFound) {
		return nil, models.NewError(models.KindNotFound, "transfer "+transferID+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("read transfer %s: %w", transferID, err)
	}
	s.logger.Debug("transfer read", zap.String("principal_id", p.UserID), zap.String("transfer_id", transferID))
	return transfer, nil
}

// ListEntries returns the newest ledger entries of an account.
func (s *TransferService) ListEntries(ctx context.Context, p models.Principal, accountID string, limit int) ([]models.LedgerEntry, error) {
	if _, err := s.GetAccount(ctx, p, accountID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", accountID, err)
	}
	return entries, nil
}

func (s *TransferService) FreezeAccount(ctx context.Context, p models.Principal, accountID string) (*models.Account, error) {
	return s.administer(ctx, p, accountID, "freeze", (*models.Account).Freeze)
}

func (s *TransferService) ActivateAccount(ctx context.Context, p models.Principal, accountID string) (*models.Account, error) {
	return s.administer(ctx, p, accountID, "activate", (*models.Account).Activate)
}

func (s *TransferService) CloseAccount(ctx context.Context, p models.Principal, accountID string) (*models.Account, error) {
	return s.administer(ctx, p, accountID, "close", (*models.Account).Close)
}

func (s *TransferService) UpdateOverdraftLimit(ctx context.Context, p models.Principal, accountID string, limit decimal.Decimal) (*models.Account, error) {
	return s.administer(ctx, p, accountID, "update_overdraft", func(a *models.Account) error {
		return a.UpdateOverdraftLimit(limit)
	})
}

func (s *TransferService) administer(ctx context.Context, p models.Principal, accountID, operation string, mutate func(*models.Account) error) (*models.Account, error) {
	var updated *models.Account
	err := func() error {
		if !p.IsPrivileged() {
			return models.NewAccountError(models.KindUnauthorized, accountID, operation+" requires elevated privilege")
		}
		return s.inUnit(ctx, func(ctx context.Context, uow database.UnitOfWork) error {
			account, err := s.ledger.lockAccount(ctx, uow, accountID)
			if err != nil {
				return err
			}
			if account == nil {
				return models.NewAccountError(models.KindAccountNotFound, accountID, "account not found")
			}
			if err := mutate(account); err != nil {
				return err
			}
			if err := s.ledger.updateAccount(ctx, uow, account, s.now().UTC()); err != nil {
				return err
			}
			updated = account.Clone()
			return nil
		})
	}()

	event := audit.Event{EventType: audit.EventAccountAdmin, Operation: operation, AccountID: accountID}
	if updated != nil {
		event.Details = map[string]string{
			"status":          string(updated.Status),
			"overdraft_limit": updated.OverdraftLimit.StringFixed(models.MoneyScale),
		}
	}
	s.report(p, event, err)

	if err != nil {
		return nil, err
	}
	return updated, nil
}

// inUnit runs fn in a unit of work and translates store-level conflicts into
// business errors.
func (s *TransferService) inUnit(ctx context.Context, fn func(ctx context.Context, uow database.UnitOfWork) error) error {
	err := s.store.WithinUnitOfWork(ctx, fn)
	if errors.Is(err, database.ErrAlreadyReversed) {
		return models.NewError(models.KindAlreadyReversed, "transfer is already reversed")
	}
	return err
}

// report logs the outcome and submits the audit event. It runs after the unit of
// work has ended and cannot change the result.
func (s *TransferService) report(p models.Principal, event audit.Event, err error) {
	event.Timestamp = s.now().UTC()
	event.PrincipalID = p.UserID
	event.Status = audit.StatusSuccess

	fields := []zap.Field{
		zap.String("operation", event.Operation),
		zap.String("principal_id", p.UserID),
		zap.String("account_id", event.AccountID),
		zap.String("transfer_id", event.TransferID),
	}
	if err != nil {
		event.Status = audit.StatusFailed
		if kind, ok := models.KindOf(err); ok {
			event.ErrorCode = string(kind)
			s.logger.Info("operation rejected", append(fields, zap.String("error_code", string(kind)), zap.Error(err))...)
		} else {
			event.ErrorCode = "INTERNAL_ERROR"
			s.logger.Error("operation failed", append(fields, zap.Error(err))...)
		}
	} else {
		s.logger.Info("operation completed", fields...)
	}

	if s.audit != nil {
		s.audit.Submit(event)
	}
}

func normalizeCurrency(code string) models.Currency {
	return models.Currency(strings.ToUpper(strings.TrimSpace(code)))
}

// checkLegs runs the existence, closed and frozen checks of a two-account
// movement in order, source side first.
func checkLegs(from *models.Account, fromID string, to *models.Account, toID string) error {
	if from == nil {
		return models.NewAccountError(models.KindAccountNotFound, fromID, "account not found")
	}
	if to == nil {
		return models.NewAccountError(models.KindAccountNotFound, toID, "account not found")
	}
	if err := checkNotClosed(from); err != nil {
		return err
	}
	if err := checkNotClosed(to); err != nil {
		return err
	}
	return checkNotFrozen(from)
}

func checkDebitLeg(from *models.Account, fromID string) error {
	if from == nil {
		return models.NewAccountError(models.KindAccountNotFound, fromID, "account not found")
	}
	if err := checkNotClosed(from); err != nil {
		return err
	}
	return checkNotFrozen(from)
}

func checkNotClosed(a *models.Account) error {
	if a.Status == models.AccountStatusClosed {
		return models.NewAccountError(models.KindAccountClosed, a.ID, "account is closed")
	}
	return nil
}

func checkNotFrozen(a *models.Account) error {
	if a.Status == models.AccountStatusFrozen {
		return models.NewAccountError(models.KindAccountFrozen, a.ID, "account is frozen")
	}
	return nil
}

func checkCurrencies(requested models.Currency, accounts ...*models.Account) error {
	for _, a := range accounts {
		if a.Currency != requested {
			return models.NewAccountError(models.KindCurrencyMismatch, a.ID,
				fmt.Sprintf("account currency %s differs from %s", a.Currency, requested))
		}
	}
	return nil
}
