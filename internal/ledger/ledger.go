package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletDisabled occurs when the global wallet kill switch is off.
	ErrWalletDisabled = errors.New("wallet disabled")

	// ErrOwnerTypeNotAllowed indicates the owner type is outside the configured allow-list.
	ErrOwnerTypeNotAllowed = errors.New("owner type not allowed")

	// ErrDuplicateAccount indicates an account already exists for the
	// (ownerType, ownerID, currency) triple.
	ErrDuplicateAccount = errors.New("duplicate account")

	// ErrAccountNotFound indicates the referenced wallet account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount rejects zero or negative posting amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrCurrencyMismatch indicates the posting currency differs from the
	// account currency. Amounts are never converted.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInsufficientFunds occurs when a debit would take the balance below
	// zero and the overdraft policy forbids it.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLockTimeout indicates the posting could not acquire the account row
	// lock within the configured bound. Safe to retry.
	ErrLockTimeout = errors.New("lock timeout")
)

// EntryType distinguishes the two directions a posting can take.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Valid reports whether the entry type is one of the two known values.
func (t EntryType) Valid() bool {
	return t == EntryCredit || t == EntryDebit
}

// Account is a wallet account with a cached balance. The balance always
// equals the signed sum of the account's transactions.
type Account struct {
	ID          string
	DisplayName string
	OwnerType   string
	OwnerID     string
	Currency    string
	Balance     decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transaction is one immutable ledger posting. Amount is always a positive
// magnitude; the sign applied to the balance derives from Type.
type Transaction struct {
	ID            string
	AccountID     string
	Type          EntryType
	Amount        decimal.Decimal
	Currency      string
	ReferenceType string
	ReferenceID   string
	Description   string
	CreatedAt     time.Time
}

// PostInput carries everything needed to record one posting.
type PostInput struct {
	AccountID     string
	Type          EntryType
	Amount        decimal.Decimal
	Currency      string
	ReferenceType string
	ReferenceID   string
	Description   string

	// AllowNegative permits debits below zero. Overdraft is a policy
	// decision made by the caller, not by the store.
	AllowNegative bool
}

// Posting pairs the inserted transaction with the account as observed
// immediately after commit.
type Posting struct {
	Account     Account
	Transaction Transaction
}

// AccountFilter narrows account listings. Zero values match everything.
type AccountFilter struct {
	OwnerType string
	OwnerID   string
	Currency  string
}

// AccountPage is one page of accounts plus the filter-wide total.
type AccountPage struct {
	Accounts []Account
	Total    int
}

// TransactionPage is one page of an account's transactions, newest first,
// plus the account-wide total.
type TransactionPage struct {
	Transactions []Transaction
	Total        int
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
// Post is the only balance writer and must be atomic: the transaction row and
// the balance update commit together or not at all.
type Store interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter, page, pageSize int) (AccountPage, error)
	Post(ctx context.Context, input PostInput) (Posting, error)
	ListTransactions(ctx context.Context, accountID string, page, pageSize int) (TransactionPage, error)
	SumTransactions(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Signed returns the amount with the sign implied by the entry type.
func Signed(t EntryType, amount decimal.Decimal) decimal.Decimal {
	if t == EntryDebit {
		return amount.Neg()
	}
	return amount
}
