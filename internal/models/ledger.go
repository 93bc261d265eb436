package models

import (
	"time"
)

type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// LedgerEntry is one immutable, single-account, single-direction movement.
// Amount is always positive; Direction carries the sign.
type LedgerEntry struct {
	ID            string    `json:"id" db:"id"`
	AccountID     string    `json:"accountId" db:"account_id"`
	Amount        Money     `json:"amount" db:"amount"`
	Direction     Direction `json:"direction" db:"direction"`
	Description   string    `json:"description" db:"description"`
	ReferenceCode string    `json:"referenceCode" db:"reference_code"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Signed returns the amount negated for debits.
func (e LedgerEntry) Signed() Money {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// EntryProjection is the transport view of a ledger entry.
type EntryProjection struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	Amount        string    `json:"amount"`
	Currency      Currency  `json:"currency"`
	Direction     Direction `json:"direction"`
	Description   string    `json:"description"`
	ReferenceCode string    `json:"referenceCode"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (e LedgerEntry) Projection() EntryProjection {
	return EntryProjection{
		ID:            e.ID,
		AccountID:     e.AccountID,
		Amount:        e.Amount.Amount.StringFixed(MoneyScale),
		Currency:      e.Amount.Currency,
		Direction:     e.Direction,
		Description:   e.Description,
		ReferenceCode: e.ReferenceCode,
		CreatedAt:     e.CreatedAt,
	}
}
