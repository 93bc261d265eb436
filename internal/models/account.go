package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SystemCashIBANPrefix marks the designated system cash account. Accounts whose IBAN
// starts with it are unconstrained money sources and sinks.
const SystemCashIBANPrefix = "TR00SYSCASH"

// NormalizeIBAN strips spaces and upper-cases an IBAN as typed by a customer.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

type AccountStatus string

const (
	AccountStatusActive          AccountStatus = "ACTIVE"
	AccountStatusFrozen          AccountStatus = "FROZEN"
	AccountStatusClosed          AccountStatus = "CLOSED"
	AccountStatusPendingApproval AccountStatus = "PENDING_APPROVAL"
)

// Account holds a balance and enforces the overdraft invariant:
// Balance.Amount + OverdraftLimit >= 0 after any withdrawal, unless the account
// is the system cash account.
type Account struct {
	ID             string          `json:"id" db:"id"`
	CustomerID     string          `json:"customerId" db:"customer_id"`
	IBAN           string          `json:"iban" db:"iban"`
	Currency       Currency        `json:"currency" db:"currency"`
	Balance        Money           `json:"balance" db:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraftLimit" db:"overdraft_limit"`
	Status         AccountStatus   `json:"status" db:"status"`
	Version        int             `json:"version" db:"version"` // for optimistic locking
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsSystemCash reports whether the account is the overdraft-exempt cash account.
func (a *Account) IsSystemCash() bool {
	return strings.HasPrefix(a.IBAN, SystemCashIBANPrefix)
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now().UTC()
}

// Deposit credits the account. There is no upper bound.
func (a *Account) Deposit(amount Money) error {
	if amount.Currency != a.Currency {
		return NewAccountError(KindCurrencyMismatch, a.ID, "deposit currency differs from account currency")
	}
	if !amount.IsPositive() {
		return NewAccountError(KindInvalidAmount, a.ID, "deposit amount must be positive")
	}
	balance, err := a.Balance.Add(amount)
	if err != nil {
		return err
	}
	a.Balance = balance
	a.touch()
	return nil
}

// CanWithdraw is true iff currencies match and balance plus overdraft covers amount.
// The system cash account is always eligible.
func (a *Account) CanWithdraw(amount Money) bool {
	if amount.Currency != a.Currency {
		return false
	}
	if a.IsSystemCash() {
		return true
	}
	return a.Balance.Amount.Add(a.OverdraftLimit).GreaterThanOrEqual(amount.Amount)
}

// Withdraw debits the account, failing with InsufficientFunds when CanWithdraw is false.
func (a *Account) Withdraw(amount Money) error {
	if amount.Currency != a.Currency {
		return NewAccountError(KindCurrencyMismatch, a.ID, "withdrawal currency differs from account currency")
	}
	if !amount.IsPositive() {
		return NewAccountError(KindInvalidAmount, a.ID, "withdrawal amount must be positive")
	}
	if !a.CanWithdraw(amount) {
		return NewAccountError(KindInsufficientFunds, a.ID, "balance and overdraft do not cover "+amount.String())
	}
	balance, err := a.Balance.Sub(amount)
	if err != nil {
		return err
	}
	a.Balance = balance
	a.touch()
	return nil
}

// Freeze moves Active to Frozen. Freezing a frozen account is a no-op.
func (a *Account) Freeze() error {
	switch a.Status {
	case AccountStatusClosed:
		return NewAccountError(KindInvalidOperation, a.ID, "closed account cannot be frozen")
	case AccountStatusPendingApproval:
		return NewAccountError(KindInvalidOperation, a.ID, "account awaiting approval cannot be frozen")
	case AccountStatusFrozen:
		return nil
	}
	a.Status = AccountStatusFrozen
	a.touch()
	return nil
}

// Activate moves PendingApproval or Frozen to Active.
func (a *Account) Activate() error {
	switch a.Status {
	case AccountStatusClosed:
		return NewAccountError(KindInvalidOperation, a.ID, "closed account cannot be activated")
	case AccountStatusActive:
		return nil
	}
	a.Status = AccountStatusActive
	a.touch()
	return nil
}

// Close is terminal and only allowed at exactly zero balance.
func (a *Account) Close() error {
	if a.Status == AccountStatusClosed {
		return NewAccountError(KindInvalidOperation, a.ID, "account already closed")
	}
	if !a.Balance.IsZero() {
		return NewAccountError(KindInvalidOperation, a.ID, "account balance must be zero to close")
	}
	a.Status = AccountStatusClosed
	a.touch()
	return nil
}

func (a *Account) UpdateOverdraftLimit(limit decimal.Decimal) error {
	if limit.IsNegative() {
		return NewAccountError(KindValidation, a.ID, "overdraft limit cannot be negative")
	}
	a.OverdraftLimit = limit.Round(MoneyScale)
	a.touch()
	return nil
}

// Clone returns a copy that can be mutated without affecting the original.
func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}
