package models

import "github.com/shopspring/decimal"

type InternalTransferRequest struct {
	FromAccountID string          `json:"fromAccountId" validate:"required,max=64"`
	ToAccountID   string          `json:"toAccountId" validate:"required,max=64"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	Description   string          `json:"description" validate:"max=200"`
}

type ExternalTransferRequest struct {
	FromAccountID string          `json:"fromAccountId" validate:"required,max=64"`
	ToIBAN        string          `json:"toIban" validate:"required,max=64,iban"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	Description   string          `json:"description" validate:"max=200"`
}

type ReverseTransferRequest struct {
	TransferID string `json:"transferId" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"max=200"`
}

// CashRequest is the body of deposit and withdraw operations.
type CashRequest struct {
	AccountID   string          `json:"accountId" validate:"required,max=64"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Description string          `json:"description" validate:"max=200"`
}

type OverdraftRequest struct {
	Limit decimal.Decimal `json:"limit"`
}
