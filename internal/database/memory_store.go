package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

// MemoryStore is an in-process AccountStore. Row locks are per-key channel
// mutexes, so waiting for a lock honours context cancellation. Writes are staged
// in the unit of work and applied under the store mutex at commit.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*models.Account
	ibans     map[string]string
	transfers map[string]*models.Transfer
	entries   []models.LedgerEntry

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*models.Account),
		ibans:     make(map[string]string),
		transfers: make(map[string]*models.Transfer),
		locks:     make(map[string]chan struct{}),
	}
}

// PutAccount seeds or replaces an account outside any unit of work. Account
// opening is owned elsewhere; this exists for bootstrapping and tests.
func (s *MemoryStore) PutAccount(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account.Clone()
	if account.IBAN != "" {
		s.ibans[account.IBAN] = account.ID
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) GetAccountByIBAN(ctx context.Context, iban string) (*models.Account, error) {
	s.mu.RLock()
	id, ok := s.ibans[iban]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *MemoryStore) GetTransfer(_ context.Context, id string) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListEntries(_ context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.LedgerEntry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID != accountID {
			continue
		}
		out = append(out, s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Transfers returns every committed transfer ordered by creation time.
func (s *MemoryStore) Transfers() []*models.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) WithinUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u := &memoryUnit{
		store:     s,
		held:      make(map[string]bool),
		accounts:  make(map[string]*models.Account),
		saved:     make(map[string]bool),
		transfers: make(map[string]*models.Transfer),
		reversed:  make(map[string]bool),
	}
	defer u.release()

	if err := fn(ctx, u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return u.commit()
}

func (s *MemoryStore) lockFor(key string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

type memoryUnit struct {
	store *MemoryStore
	order []string
	held  map[string]bool

	accounts     map[string]*models.Account
	saved        map[string]bool
	transfers    map[string]*models.Transfer
	reversed     map[string]bool
	newTransfers []*models.Transfer
	entries      []models.LedgerEntry
}

func (u *memoryUnit) acquire(ctx context.Context, key string) error {
	if u.held[key] {
		return nil
	}
	select {
	case u.store.lockFor(key) <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	u.held[key] = true
	u.order = append(u.order, key)
	return nil
}

func (u *memoryUnit) releaseKey(key string) {
	if !u.held[key] {
		return
	}
	<-u.store.lockFor(key)
	delete(u.held, key)
	for i, k := range u.order {
		if k == key {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
}

func (u *memoryUnit) release() {
	for i := len(u.order) - 1; i >= 0; i-- {
		<-u.store.lockFor(u.order[i])
	}
	u.order = nil
	u.held = map[string]bool{}
}

func (u *memoryUnit) AcquireForUpdate(ctx context.Context, accountID string) (*models.Account, error) {
	if a, ok := u.accounts[accountID]; ok {
		return a, nil
	}
	key := "account:" + accountID
	if err := u.acquire(ctx, key); err != nil {
		return nil, err
	}
	u.store.mu.RLock()
	a, ok := u.store.accounts[accountID]
	u.store.mu.RUnlock()
	if !ok {
		u.releaseKey(key)
		return nil, ErrRecordNotFound
	}
	staged := a.Clone()
	u.accounts[accountID] = staged
	return staged, nil
}

func (u *memoryUnit) AcquireTransferForUpdate(ctx context.Context, transferID string) (*models.Transfer, error) {
	if t, ok := u.transfers[transferID]; ok {
		return t, nil
	}
	key := "transfer:" + transferID
	if err := u.acquire(ctx, key); err != nil {
		return nil, err
	}
	u.store.mu.RLock()
	t, ok := u.store.transfers[transferID]
	u.store.mu.RUnlock()
	if !ok {
		u.releaseKey(key)
		return nil, ErrRecordNotFound
	}
	staged := t.Clone()
	u.transfers[transferID] = staged
	return staged, nil
}

func (u *memoryUnit) SaveAccount(_ context.Context, account *models.Account) error {
	if !u.held["account:"+account.ID] {
		return ErrConcurrentUpdate
	}
	u.accounts[account.ID] = account.Clone()
	u.saved[account.ID] = true
	return nil
}

func (u *memoryUnit) InsertTransfer(_ context.Context, transfer *models.Transfer) error {
	u.newTransfers = append(u.newTransfers, transfer.Clone())
	return nil
}

func (u *memoryUnit) InsertLedgerEntry(_ context.Context, entry *models.LedgerEntry) error {
	u.entries = append(u.entries, *entry)
	return nil
}

func (u *memoryUnit) MarkReversed(_ context.Context, transferID, reversalID string, at time.Time) error {
	t, ok := u.transfers[transferID]
	if !ok {
		return ErrConcurrentUpdate
	}
	if t.ReversedByTransferID != nil {
		return ErrAlreadyReversed
	}
	rid := reversalID
	ts := at
	t.ReversedByTransferID = &rid
	t.ReversedAt = &ts
	u.reversed[transferID] = true
	return nil
}

// commit runs with the store mutex held. Checks run before any write so a
// failed commit leaves no partial state.
func (u *memoryUnit) commit() error {
	s := u.store
	for id := range u.saved {
		current, ok := s.accounts[id]
		if !ok {
			return ErrRecordNotFound
		}
		if current.Version != u.accounts[id].Version {
			return ErrConcurrentUpdate
		}
	}
	for id := range u.reversed {
		if current, ok := s.transfers[id]; !ok || current.ReversedByTransferID != nil {
			return ErrAlreadyReversed
		}
	}
	for _, t := range u.newTransfers {
		if _, exists := s.transfers[t.ID]; exists {
			return ErrConcurrentUpdate
		}
	}

	for id := range u.saved {
		a := u.accounts[id].Clone()
		a.Version++
		s.accounts[id] = a
		if a.IBAN != "" {
			s.ibans[a.IBAN] = a.ID
		}
	}
	for _, t := range u.newTransfers {
		s.transfers[t.ID] = t
	}
	for id := range u.reversed {
		s.transfers[id] = u.transfers[id].Clone()
	}
	s.entries = append(s.entries, u.entries...)
	return nil
}
