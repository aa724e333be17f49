package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]Account
	ownerKeys map[string]string
	txns      map[string][]Transaction
	locks     map[string]chan struct{}
	lockWait  time.Duration
}

// NewInMemory creates a concurrency-safe in-memory ledger store useful for
// unit tests and local development. Postings serialize per account through a
// channel semaphore, so different accounts never contend.
func NewInMemory(lockWait time.Duration) Store {
	if lockWait <= 0 {
		lockWait = 250 * time.Millisecond
	}
	return &memoryStore{
		accounts:  make(map[string]Account),
		ownerKeys: make(map[string]string),
		txns:      make(map[string][]Transaction),
		locks:     make(map[string]chan struct{}),
		lockWait:  lockWait,
	}
}

func ownerKey(ownerType, ownerID, currency string) string {
	return ownerType + "|" + ownerID + "|" + currency
}

func (s *memoryStore) CreateAccount(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(account.OwnerType, account.OwnerID, account.Currency)
	if _, exists := s.ownerKeys[key]; exists {
		return Account{}, ErrDuplicateAccount
	}

	s.ownerKeys[key] = account.ID
	s.accounts[account.ID] = account
	return account, nil
}

func (s *memoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memoryStore) ListAccounts(_ context.Context, filter AccountFilter, page, pageSize int) (AccountPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if filter.OwnerType != "" && account.OwnerType != filter.OwnerType {
			continue
		}
		if filter.OwnerID != "" && account.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Currency != "" && account.Currency != filter.Currency {
			continue
		}
		matched = append(matched, account)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	return AccountPage{Accounts: pageOf(matched, page, pageSize), Total: len(matched)}, nil
}

func (s *memoryStore) Post(ctx context.Context, input PostInput) (Posting, error) {
	if !input.Type.Valid() {
		return Posting{}, fmt.Errorf("unknown entry type %q", input.Type)
	}
	if !input.Amount.IsPositive() {
		return Posting{}, ErrInvalidAmount
	}

	release, err := s.acquire(ctx, input.AccountID)
	if err != nil {
		return Posting{}, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[input.AccountID]
	if !ok {
		return Posting{}, ErrAccountNotFound
	}
	if account.Currency != input.Currency {
		return Posting{}, ErrCurrencyMismatch
	}

	newBalance := account.Balance.Add(Signed(input.Type, input.Amount))
	if input.Type == EntryDebit && !input.AllowNegative && newBalance.IsNegative() {
		return Posting{}, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	txn := Transaction{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Type:          input.Type,
		Amount:        input.Amount,
		Currency:      input.Currency,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Description:   input.Description,
		CreatedAt:     now,
	}

	s.txns[account.ID] = append(s.txns[account.ID], txn)
	account.Balance = newBalance
	account.UpdatedAt = now
	s.accounts[account.ID] = account

	return Posting{Account: account, Transaction: txn}, nil
}

func (s *memoryStore) ListTransactions(_ context.Context, accountID string, page, pageSize int) (TransactionPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.txns[accountID]

	// Stored in insertion order; newest first is the reverse walk, which also
	// resolves equal timestamps by commit order.
	newest := make([]Transaction, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		newest = append(newest, history[i])
	}

	return TransactionPage{Transactions: pageOf(newest, page, pageSize), Total: len(history)}, nil
}

func (s *memoryStore) SumTransactions(_ context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, txn := range s.txns[accountID] {
		sum = sum.Add(Signed(txn.Type, txn.Amount))
	}
	return sum, nil
}

// acquire takes the per-account posting semaphore, failing with
// ErrLockTimeout once the configured wait is exhausted.
func (s *memoryStore) acquire(ctx context.Context, accountID string) (func(), error) {
	s.mu.Lock()
	sem, ok := s.locks[accountID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[accountID] = sem
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func pageOf[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) || start < 0 {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}
