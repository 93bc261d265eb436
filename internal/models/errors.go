package models

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a business-rule failure. Transport layers branch on the
// kind, never on the message.
type ErrorKind string

const (
	KindInvalidAmount                ErrorKind = "INVALID_AMOUNT"
	KindSameAccountTransfer          ErrorKind = "SAME_ACCOUNT_TRANSFER"
	KindAccountNotFound              ErrorKind = "ACCOUNT_NOT_FOUND"
	KindAccountClosed                ErrorKind = "ACCOUNT_CLOSED"
	KindAccountFrozen                ErrorKind = "ACCOUNT_FROZEN"
	KindCurrencyMismatch             ErrorKind = "CURRENCY_MISMATCH"
	KindInsufficientFunds            ErrorKind = "INSUFFICIENT_FUNDS"
	KindUnauthorized                 ErrorKind = "UNAUTHORIZED"
	KindNotFound                     ErrorKind = "NOT_FOUND"
	KindAlreadyReversed              ErrorKind = "ALREADY_REVERSED"
	KindCannotReverseReversal        ErrorKind = "CANNOT_REVERSE_REVERSAL"
	KindReversalWindowExpired        ErrorKind = "REVERSAL_WINDOW_EXPIRED"
	KindExternalReversalNotSupported ErrorKind = "EXTERNAL_REVERSAL_NOT_SUPPORTED"
	KindValidation                   ErrorKind = "VALIDATION"
	KindInvalidOperation             ErrorKind = "INVALID_OPERATION"
)

// Kinds lists every ErrorKind. Used to check transport mappings stay exhaustive.
var Kinds = []ErrorKind{
	KindInvalidAmount,
	KindSameAccountTransfer,
	KindAccountNotFound,
	KindAccountClosed,
	KindAccountFrozen,
	KindCurrencyMismatch,
	KindInsufficientFunds,
	KindUnauthorized,
	KindNotFound,
	KindAlreadyReversed,
	KindCannotReverseReversal,
	KindReversalWindowExpired,
	KindExternalReversalNotSupported,
	KindValidation,
	KindInvalidOperation,
}

// LedgerError is the typed failure returned for every business-rule violation.
type LedgerError struct {
	Kind      ErrorKind
	Message   string
	AccountID string
}

func (e *LedgerError) Error() string {
	if e.AccountID != "" {
		return fmt.Sprintf("%s: %s (account %s)", e.Kind, e.Message, e.AccountID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *LedgerError of the same kind, so errors.Is(err, ErrInsufficientFunds)
// holds regardless of message or account.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a LedgerError of the given kind.
func NewError(kind ErrorKind, message string) *LedgerError {
	return &LedgerError{Kind: kind, Message: message}
}

// NewAccountError builds a LedgerError attributed to an account.
func NewAccountError(kind ErrorKind, accountID, message string) *LedgerError {
	return &LedgerError{Kind: kind, Message: message, AccountID: accountID}
}

// KindOf reports the kind of a business failure. ok is false for infrastructure errors.
func KindOf(err error) (ErrorKind, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidAmount                = NewError(KindInvalidAmount, "amount must be positive")
	ErrSameAccountTransfer          = NewError(KindSameAccountTransfer, "source and destination are the same account")
	ErrAccountNotFound              = NewError(KindAccountNotFound, "account not found")
	ErrAccountClosed                = NewError(KindAccountClosed, "account is closed")
	ErrAccountFrozen                = NewError(KindAccountFrozen, "account is frozen")
	ErrCurrencyMismatch             = NewError(KindCurrencyMismatch, "currency mismatch")
	ErrInsufficientFunds            = NewError(KindInsufficientFunds, "insufficient funds")
	ErrUnauthorized                 = NewError(KindUnauthorized, "caller lacks privilege")
	ErrNotFound                     = NewError(KindNotFound, "transfer not found")
	ErrAlreadyReversed              = NewError(KindAlreadyReversed, "transfer already reversed")
	ErrCannotReverseReversal        = NewError(KindCannotReverseReversal, "a reversal cannot be reversed")
	ErrReversalWindowExpired        = NewError(KindReversalWindowExpired, "reversal window expired")
	ErrExternalReversalNotSupported = NewError(KindExternalReversalNotSupported, "external transfers cannot be reversed")
	ErrValidation                   = NewError(KindValidation, "validation failed")
	ErrInvalidOperation             = NewError(KindInvalidOperation, "invalid operation")
)
