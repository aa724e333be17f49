package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestAccount(t *testing.T, s Store, currency string) Account {
	t.Helper()
	now := time.Now().UTC()
	account, err := s.CreateAccount(context.Background(), Account{
		ID:          uuid.NewString(),
		DisplayName: "Test Wallet",
		OwnerType:   "provider",
		OwnerID:     uuid.NewString(),
		Currency:    currency,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func TestInMemoryStore_PostMovesBalanceWithLog(t *testing.T) {
	s := NewInMemory(0)
	ctx := context.Background()
	account := newTestAccount(t, s, "GBP")

	posting, err := s.Post(ctx, PostInput{
		AccountID:     account.ID,
		Type:          EntryCredit,
		Amount:        decimal.NewFromInt(2500),
		Currency:      "GBP",
		ReferenceType: "manual_adjustment",
		Description:   "Initial float",
	})
	if err != nil {
		t.Fatalf("post credit: %v", err)
	}
	if !posting.Account.Balance.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("expected balance 2500, got %s", posting.Account.Balance)
	}

	posting, err = s.Post(ctx, PostInput{
		AccountID:     account.ID,
		Type:          EntryDebit,
		Amount:        decimal.NewFromInt(900),
		Currency:      "GBP",
		ReferenceType: "payout",
		AllowNegative: true,
	})
	if err != nil {
		t.Fatalf("post debit: %v", err)
	}
	if !posting.Account.Balance.Equal(decimal.NewFromInt(1600)) {
		t.Fatalf("expected balance 1600, got %s", posting.Account.Balance)
	}

	sum, err := s.SumTransactions(ctx, account.ID)
	if err != nil {
		t.Fatalf("sum transactions: %v", err)
	}
	if !sum.Equal(posting.Account.Balance) {
		t.Fatalf("balance %s diverged from transaction sum %s", posting.Account.Balance, sum)
	}
}

func TestInMemoryStore_RejectedPostingWritesNothing(t *testing.T) {
	s := NewInMemory(0)
	ctx := context.Background()
	account := newTestAccount(t, s, "GBP")

	cases := []struct {
		name  string
		input PostInput
		want  error
	}{
		{"zero amount", PostInput{AccountID: account.ID, Type: EntryCredit, Amount: decimal.Zero, Currency: "GBP"}, ErrInvalidAmount},
		{"negative amount", PostInput{AccountID: account.ID, Type: EntryCredit, Amount: decimal.NewFromInt(-5), Currency: "GBP"}, ErrInvalidAmount},
		{"wrong currency", PostInput{AccountID: account.ID, Type: EntryDebit, Amount: decimal.NewFromInt(100), Currency: "USD"}, ErrCurrencyMismatch},
		{"unknown account", PostInput{AccountID: uuid.NewString(), Type: EntryCredit, Amount: decimal.NewFromInt(100), Currency: "GBP"}, ErrAccountNotFound},
	}

	for _, tc := range cases {
		if _, err := s.Post(ctx, tc.input); err != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	fetched, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !fetched.Balance.IsZero() {
		t.Fatalf("balance changed by rejected postings: %s", fetched.Balance)
	}
	page, err := s.ListTransactions(ctx, account.ID, 1, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected empty transaction log, got %d rows", page.Total)
	}
}

func TestInMemoryStore_OverdraftPolicy(t *testing.T) {
	s := NewInMemory(0)
	ctx := context.Background()
	account := newTestAccount(t, s, "USD")

	debit := PostInput{AccountID: account.ID, Type: EntryDebit, Amount: decimal.NewFromInt(50), Currency: "USD"}
	if _, err := s.Post(ctx, debit); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	debit.AllowNegative = true
	posting, err := s.Post(ctx, debit)
	if err != nil {
		t.Fatalf("overdraft debit: %v", err)
	}
	if !posting.Account.Balance.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("expected balance -50, got %s", posting.Account.Balance)
	}
}

func TestInMemoryStore_DuplicateAccountRace(t *testing.T) {
	s := NewInMemory(0)
	ctx := context.Background()
	now := time.Now().UTC()

	base := Account{
		DisplayName: "Acme Wallet",
		OwnerType:   "enterprise",
		OwnerID:     "acme-1",
		Currency:    "EUR",
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account := base
			account.ID = uuid.NewString()
			_, errs[i] = s.CreateAccount(ctx, account)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch err {
		case nil:
			created++
		case ErrDuplicateAccount:
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one account created, got %d", created)
	}

	page, err := s.ListAccounts(ctx, AccountFilter{OwnerType: "enterprise", OwnerID: "acme-1"}, 1, 10)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected one persisted account, got %d", page.Total)
	}
}

func TestInMemoryStore_ConcurrentPostingsConverge(t *testing.T) {
	s := NewInMemory(5 * time.Second)
	ctx := context.Background()
	account := newTestAccount(t, s, "XAF")

	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Post(ctx, PostInput{
				AccountID:     account.ID,
				Type:          EntryCredit,
				Amount:        decimal.NewFromInt(1),
				Currency:      "XAF",
				ReferenceType: "settlement",
				ReferenceID:   fmt.Sprintf("settle-%d", i),
			})
			if err != nil {
				t.Errorf("posting %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	fetched, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !fetched.Balance.Equal(decimal.NewFromInt(workers)) {
		t.Fatalf("expected balance %d, got %s", workers, fetched.Balance)
	}

	page, err := s.ListTransactions(ctx, account.ID, 1, workers+1)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if page.Total != workers {
		t.Fatalf("expected %d transactions, got %d", workers, page.Total)
	}

	sum, err := s.SumTransactions(ctx, account.ID)
	if err != nil {
		t.Fatalf("sum transactions: %v", err)
	}
	if !sum.Equal(fetched.Balance) {
		t.Fatalf("balance %s diverged from transaction sum %s", fetched.Balance, sum)
	}
}

func TestInMemoryStore_PostTimesOutWhenAccountLocked(t *testing.T) {
	s := NewInMemory(50 * time.Millisecond)
	ctx := context.Background()
	account := newTestAccount(t, s, "GBP")

	mem := s.(*memoryStore)
	release, err := mem.acquire(ctx, account.ID)
	if err != nil {
		t.Fatalf("acquire account lock: %v", err)
	}

	credit := PostInput{
		AccountID:     account.ID,
		Type:          EntryCredit,
		Amount:        decimal.NewFromInt(100),
		Currency:      "GBP",
		ReferenceType: "settlement",
	}
	if _, err := s.Post(ctx, credit); err != ErrLockTimeout {
		t.Fatalf("expected lock timeout, got %v", err)
	}

	// A held lock on one account must not block postings against another.
	other := newTestAccount(t, s, "GBP")
	if _, err := s.Post(ctx, PostInput{
		AccountID:     other.ID,
		Type:          EntryCredit,
		Amount:        decimal.NewFromInt(10),
		Currency:      "GBP",
		ReferenceType: "settlement",
	}); err != nil {
		t.Fatalf("posting against unlocked account: %v", err)
	}

	release()
	posting, err := s.Post(ctx, credit)
	if err != nil {
		t.Fatalf("posting after release: %v", err)
	}
	if !posting.Account.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance 100 after retry, got %s", posting.Account.Balance)
	}
}

func TestInMemoryStore_SumExposesBalanceDrift(t *testing.T) {
	s := NewInMemory(0)
	ctx := context.Background()
	account := newTestAccount(t, s, "GBP")

	if _, err := s.Post(ctx, PostInput{
		AccountID:     account.ID,
		Type:          EntryCredit,
		Amount:        decimal.NewFromInt(100),
		Currency:      "GBP",
		ReferenceType: "settlement",
	}); err != nil {
		t.Fatalf("post credit: %v", err)
	}

	ForceBalance(s, account.ID, decimal.NewFromInt(250))

	fetched, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	sum, err := s.SumTransactions(ctx, account.ID)
	if err != nil {
		t.Fatalf("sum transactions: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("transaction sum must come from the log alone, got %s", sum)
	}
	if fetched.Balance.Equal(sum) {
		t.Fatal("forced drift not visible; reconciliation would never fire")
	}
}

func TestInMemoryStore_TransactionPagesWalkWithoutGaps(t *testing.T) {
	s := NewInMemory(0)
	ctx := context.Background()
	account := newTestAccount(t, s, "GBP")

	const postings = 7
	for i := 0; i < postings; i++ {
		if _, err := s.Post(ctx, PostInput{
			AccountID:     account.ID,
			Type:          EntryCredit,
			Amount:        decimal.NewFromInt(int64(i + 1)),
			Currency:      "GBP",
			ReferenceType: "settlement",
		}); err != nil {
			t.Fatalf("posting %d: %v", i, err)
		}
	}

	seen := make(map[string]bool)
	const pageSize = 3
	for page := 1; ; page++ {
		result, err := s.ListTransactions(ctx, account.ID, page, pageSize)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if result.Total != postings {
			t.Fatalf("page %d reported total %d, expected %d", page, result.Total, postings)
		}
		if len(result.Transactions) == 0 {
			break
		}
		for _, txn := range result.Transactions {
			if seen[txn.ID] {
				t.Fatalf("transaction %s appeared twice", txn.ID)
			}
			seen[txn.ID] = true
		}
	}
	if len(seen) != postings {
		t.Fatalf("walked %d distinct transactions, expected %d", len(seen), postings)
	}
}
