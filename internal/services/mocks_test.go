package services

import (
	"context"
	"sync"

	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) Submit(event audit.Event) {
	m.Called(event)
}

type MockSettlementPublisher struct {
	mock.Mock
}

func (m *MockSettlementPublisher) Publish(ctx context.Context, transfer *models.Transfer, debtor *models.Account) error {
	args := m.Called(ctx, transfer, debtor)
	return args.Error(0)
}

// recordingAudit keeps every submitted event for assertions.
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Submit(event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

func (r *recordingAudit) Last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
