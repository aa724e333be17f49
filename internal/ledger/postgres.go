package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"

	defaultLockWait = 3 * time.Second
)

// PostgresStore persists the wallet ledger in PostgreSQL. Postings take a
// row-level lock on the account for the duration of the transaction, so two
// postings against the same account serialize while postings against
// different accounts proceed independently.
type PostgresStore struct {
	db       *pgxpool.Pool
	lockWait time.Duration
}

// NewPostgresStore constructs a Postgres-backed ledger store. lockWait bounds
// how long a posting waits for the account row lock; zero selects a default.
func NewPostgresStore(db *pgxpool.Pool, lockWait time.Duration) *PostgresStore {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &PostgresStore{db: db, lockWait: lockWait}
}

const accountColumns = `id, display_name, owner_type, owner_id, currency, balance, created_at, updated_at`

// CreateAccount inserts a new account row. The unique constraint on
// (owner_type, owner_id, currency) closes the race between two concurrent
// creations for the same owner.
func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return Account{}, fmt.Errorf("parse account id: %w", err)
	}

	_, err = s.db.Exec(ctx, `INSERT INTO wallet_accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, account.DisplayName, account.OwnerType, account.OwnerID, account.Currency,
		account.Balance, account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	if err != nil {
		if pgErrCode(err) == pgUniqueViolation {
			return Account{}, ErrDuplicateAccount
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// GetAccount fetches an account by identifier.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}

	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM wallet_accounts WHERE id = $1`, accountID)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// ListAccounts returns one page of accounts ordered by creation time, oldest
// first, with id as the tie breaker, plus the filter-wide total.
func (s *PostgresStore) ListAccounts(ctx context.Context, filter AccountFilter, page, pageSize int) (AccountPage, error) {
	var conds []string
	var args []any
	appendCond := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	appendCond("owner_type", filter.OwnerType)
	appendCond("owner_id", filter.OwnerID)
	appendCond("currency", filter.Currency)

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_accounts`+where, args...).Scan(&total); err != nil {
		return AccountPage{}, fmt.Errorf("count accounts: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + accountColumns + ` FROM wallet_accounts` + where +
		fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return AccountPage{}, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	result := AccountPage{Total: total, Accounts: []Account{}}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return AccountPage{}, err
		}
		result.Accounts = append(result.Accounts, account)
	}
	if err := rows.Err(); err != nil {
		return AccountPage{}, fmt.Errorf("list accounts: %w", err)
	}
	return result, nil
}

// Post records one transaction and moves the cached balance in the same
// database transaction. On any failure nothing is written.
func (s *PostgresStore) Post(ctx context.Context, input PostInput) (Posting, error) {
	if !input.Type.Valid() {
		return Posting{}, fmt.Errorf("unknown entry type %q", input.Type)
	}
	if !input.Amount.IsPositive() {
		return Posting{}, ErrInvalidAmount
	}
	accountID, err := uuid.Parse(input.AccountID)
	if err != nil {
		return Posting{}, ErrAccountNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Posting{}, fmt.Errorf("begin posting: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// lock_timeout cannot be a bind parameter; the value comes from config,
	// never from request input.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockWait.Milliseconds())); err != nil {
		return Posting{}, fmt.Errorf("set lock timeout: %w", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM wallet_accounts WHERE id = $1 FOR UPDATE`, accountID)
	account, err := scanAccount(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Posting{}, ErrAccountNotFound
		case pgErrCode(err) == pgLockNotAvailable:
			return Posting{}, ErrLockTimeout
		default:
			return Posting{}, err
		}
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

	if _, err := tx.Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_account_id, type, amount, currency, reference_type, reference_id, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`,
		txn.ID, accountID, string(txn.Type), txn.Amount, txn.Currency,
		txn.ReferenceType, txn.ReferenceID, txn.Description, txn.CreatedAt); err != nil {
		return Posting{}, fmt.Errorf("insert transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE wallet_accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		newBalance, now, accountID); err != nil {
		return Posting{}, fmt.Errorf("update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Posting{}, fmt.Errorf("commit posting: %w", err)
	}

	account.Balance = newBalance
	account.UpdatedAt = now
	return Posting{Account: account, Transaction: txn}, nil
}

// ListTransactions returns one page of an account's transactions, newest
// first. Ties on created_at break by id so the order is total.
func (s *PostgresStore) ListTransactions(ctx context.Context, accountID string, page, pageSize int) (TransactionPage, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return TransactionPage{}, ErrAccountNotFound
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE wallet_account_id = $1`, id).Scan(&total); err != nil {
		return TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT id, wallet_account_id, type, amount, currency,
        COALESCE(reference_type, ''), COALESCE(reference_id, ''), COALESCE(description, ''), created_at
        FROM wallet_transactions WHERE wallet_account_id = $1
        ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, id, pageSize, (page-1)*pageSize)
	if err != nil {
		return TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	result := TransactionPage{Total: total, Transactions: []Transaction{}}
	for rows.Next() {
		var txn Transaction
		var txnID, acctID uuid.UUID
		var entryType string
		if err := rows.Scan(&txnID, &acctID, &entryType, &txn.Amount, &txn.Currency,
			&txn.ReferenceType, &txn.ReferenceID, &txn.Description, &txn.CreatedAt); err != nil {
			return TransactionPage{}, fmt.Errorf("scan transaction: %w", err)
		}
		txn.ID = txnID.String()
		txn.AccountID = acctID.String()
		txn.Type = EntryType(entryType)
		txn.CreatedAt = txn.CreatedAt.UTC()
		result.Transactions = append(result.Transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	return result, nil
}

// SumTransactions computes the signed sum directly from the transaction log,
// bypassing the cached balance. Used for reconciliation checks.
func (s *PostgresStore) SumTransactions(ctx context.Context, accountID string) (decimal.Decimal, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return decimal.Zero, ErrAccountNotFound
	}

	var sum decimal.Decimal
	err = s.db.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0)
        FROM wallet_transactions WHERE wallet_account_id = $1`, id).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var account Account
	var id uuid.UUID
	if err := row.Scan(&id, &account.DisplayName, &account.OwnerType, &account.OwnerID,
		&account.Currency, &account.Balance, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return Account{}, err
	}
	account.ID = id.String()
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
