package audit

import (
	"context"
	"time"
)

const (
	EventTransfer     = "TRANSFER"
	EventReversal     = "REVERSAL"
	EventCash         = "CASH"
	EventAccountAdmin = "ACCOUNT_ADMIN"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Event is one audited attempt. Failed attempts carry the business error code.
type Event struct {
	Timestamp      time.Time         `json:"timestamp"`
	EventType      string            `json:"event_type"`
	Operation      string            `json:"operation"`
	PrincipalID    string            `json:"principal_id,omitempty"`
	TransferID     string            `json:"transfer_id,omitempty"`
	AccountID      string            `json:"account_id,omitempty"`
	CounterpartyID string            `json:"counterparty_id,omitempty"`
	Amount         string            `json:"amount,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Status         string            `json:"status"`
	ErrorCode      string            `json:"error_code,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}

// Sink receives audit events. Implementations may fail; callers never let a sink
// failure change the outcome of the audited operation.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Recorder is what the ledger services depend on.
type Recorder interface {
	Submit(event Event)
}
