package models

import (
	"time"
)

type Channel string

const (
	ChannelInternal Channel = "INTERNAL"
	ChannelEFT      Channel = "EFT"
)

type TransferStatus string

const (
	TransferStatusExecuted TransferStatus = "EXECUTED"
	TransferStatusFailed   TransferStatus = "FAILED"
	TransferStatusCanceled TransferStatus = "CANCELED"
)

// Transfer records a money movement intent between two accounts, or from an
// account to an external IBAN. ToAccountID is nil only for EFT transfers whose
// destination is outside this system.
type Transfer struct {
	ID                   string         `json:"id" db:"id"`
	FromAccountID        string         `json:"fromAccountId" db:"from_account_id"`
	ToAccountID          *string        `json:"toAccountId,omitempty" db:"to_account_id"`
	Amount               Money          `json:"amount" db:"amount"`
	Channel              Channel        `json:"channel" db:"channel"`
	Status               TransferStatus `json:"status" db:"status"`
	ExternalIBAN         *string        `json:"externalIban,omitempty" db:"external_iban"`
	Description          string         `json:"description" db:"description"`
	ReversalOfTransferID *string        `json:"reversalOfTransferId,omitempty" db:"reversal_of_transfer_id"`
	ReversedByTransferID *string        `json:"reversedByTransferId,omitempty" db:"reversed_by_transfer_id"`
	ReversedAt           *time.Time     `json:"reversedAt,omitempty" db:"reversed_at"`
	CreatedAt            time.Time      `json:"createdAt" db:"created_at"`
}

func (t *Transfer) IsReversed() bool { return t.ReversedByTransferID != nil }

func (t *Transfer) IsReversal() bool { return t.ReversalOfTransferID != nil }

// HasInternalDestination is false only for EFT transfers leaving the system.
func (t *Transfer) HasInternalDestination() bool { return t.ToAccountID != nil }

func (t *Transfer) Clone() *Transfer {
	cp := *t
	return &cp
}

// TransferProjection is the transport view of a transfer.
type TransferProjection struct {
	ID            string         `json:"id"`
	FromAccountID string         `json:"fromAccountId"`
	ToAccountID   string         `json:"toAccountId,omitempty"`
	Amount        string         `json:"amount"`
	Currency      Currency       `json:"currency"`
	Channel       Channel        `json:"channel"`
	Status        TransferStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func (t *Transfer) Projection() TransferProjection {
	p := TransferProjection{
		ID:            t.ID,
		FromAccountID: t.FromAccountID,
		Amount:        t.Amount.Amount.StringFixed(MoneyScale),
		Currency:      t.Amount.Currency,
		Channel:       t.Channel,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
	}
	if t.ToAccountID != nil {
		p.ToAccountID = *t.ToAccountID
	}
	return p
}

// ReversalResult is returned by a successful reversal.
type ReversalResult struct {
	OriginalTransferID string    `json:"originalTransferId"`
	ReversalTransferID string    `json:"reversalTransferId"`
	ReversedAt         time.Time `json:"reversedAt"`
}
