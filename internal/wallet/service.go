package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luma-market/luma_wallet/internal/ledger"
	"github.com/luma-market/luma_wallet/internal/notification"
	"github.com/luma-market/luma_wallet/internal/settings"
)

// ErrInvalidInput marks malformed caller input (missing fields, bad enum
// values). Distinct from the ledger's business-rule errors.
var ErrInvalidInput = errors.New("invalid input")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Policy carries business-rule switches that are configuration, not data.
type Policy struct {
	// AllowNegativeBalance lets debits take a balance below zero. Enterprise
	// and provider wallets may legitimately run negative pending settlement.
	AllowNegativeBalance bool
}

// Service is the wallet ledger core: account directory, posting engine and
// read views, gated by the settings singleton on every mutation.
type Service struct {
	settings settings.Store
	store    ledger.Store
	policy   Policy
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService wires the wallet service with its stores and policy.
func NewService(settingsStore settings.Store, store ledger.Store, policy Policy, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{settings: settingsStore, store: store, policy: policy, notifier: notifier, logger: logger}
}

// CreateAccountInput captures the data required to open a wallet account.
type CreateAccountInput struct {
	DisplayName string
	OwnerType   string
	OwnerID     string
	Currency    string
}

// CreateAccount opens a zero-balance wallet account, subject to the global
// wallet switch and the owner-type allow-list. The duplicate check is backed
// by a storage-level unique constraint, so a race between two concurrent
// creations resolves to exactly one account.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (ledger.Account, error) {
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.OwnerType = strings.TrimSpace(input.OwnerType)
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	input.Currency = normalizeCurrency(input.Currency)

	switch {
	case input.DisplayName == "":
		return ledger.Account{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	case input.OwnerType == "":
		return ledger.Account{}, fmt.Errorf("%w: owner type is required", ErrInvalidInput)
	case input.OwnerID == "":
		return ledger.Account{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	case input.Currency == "":
		return ledger.Account{}, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("load settings: %w", err)
	}
	if !cfg.WalletEnabled {
		return ledger.Account{}, ledger.ErrWalletDisabled
	}
	if !cfg.OwnerTypeAllowed(input.OwnerType) {
		return ledger.Account{}, ledger.ErrOwnerTypeNotAllowed
	}

	now := time.Now().UTC()
	account, err := s.store.CreateAccount(ctx, ledger.Account{
		ID:          uuid.NewString(),
		DisplayName: input.DisplayName,
		OwnerType:   input.OwnerType,
		OwnerID:     input.OwnerID,
		Currency:    input.Currency,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return ledger.Account{}, err
	}

	s.logger.Info("wallet account created",
		"account_id", account.ID, "owner_type", account.OwnerType, "owner_id", account.OwnerID, "currency", account.Currency)
	return account, nil
}

// GetAccount retrieves one account by identifier.
func (s *Service) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// ListAccounts returns a stable, oldest-first page of accounts plus the
// filter-wide total for dashboard aggregates.
func (s *Service) ListAccounts(ctx context.Context, filter ledger.AccountFilter, page, pageSize int) (ledger.AccountPage, error) {
	page, pageSize = clampPage(page, pageSize)
	return s.store.ListAccounts(ctx, filter, page, pageSize)
}

// PostInput carries a posting request against one account.
type PostInput struct {
	AccountID     string
	Type          ledger.EntryType
	Amount        decimal.Decimal
	Currency      string
	ReferenceType string
	ReferenceID   string
	Description   string
}

// Post records one credit or debit. Preconditions run in a fixed order, each
// with its own failure mode, and no write happens unless all pass; the store
// then applies the transaction row and the balance update atomically.
func (s *Service) Post(ctx context.Context, input PostInput) (ledger.Posting, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return ledger.Posting{}, fmt.Errorf("load settings: %w", err)
	}
	if !cfg.WalletEnabled {
		return ledger.Posting{}, ledger.ErrWalletDisabled
	}

	if !input.Type.Valid() {
		return ledger.Posting{}, fmt.Errorf("%w: type must be credit or debit", ErrInvalidInput)
	}
	if !input.Amount.IsPositive() {
		return ledger.Posting{}, ledger.ErrInvalidAmount
	}
	if strings.TrimSpace(input.ReferenceType) == "" {
		return ledger.Posting{}, fmt.Errorf("%w: reference type is required", ErrInvalidInput)
	}

	account, err := s.store.GetAccount(ctx, input.AccountID)
	if err != nil {
		return ledger.Posting{}, err
	}

	input.Currency = normalizeCurrency(input.Currency)
	if input.Currency != account.Currency {
		return ledger.Posting{}, ledger.ErrCurrencyMismatch
	}

	posting, err := s.store.Post(ctx, ledger.PostInput{
		AccountID:     account.ID,
		Type:          input.Type,
		Amount:        input.Amount,
		Currency:      input.Currency,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Description:   input.Description,
		AllowNegative: s.policy.AllowNegativeBalance,
	})
	if err != nil {
		return ledger.Posting{}, err
	}

	s.logger.Info("wallet posting recorded",
		"account_id", posting.Account.ID, "transaction_id", posting.Transaction.ID,
		"type", string(posting.Transaction.Type), "amount", posting.Transaction.Amount.String(),
		"balance", posting.Account.Balance.String())

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindWalletPosting,
			Destination: posting.Account.OwnerID,
			Body: fmt.Sprintf("%s of %s %s on wallet %s",
				posting.Transaction.Type, posting.Transaction.Amount, posting.Transaction.Currency, posting.Account.ID),
		})
	}

	return posting, nil
}

// ListTransactions returns the account together with one newest-first page of
// its transaction history.
func (s *Service) ListTransactions(ctx context.Context, accountID string, page, pageSize int) (ledger.Account, ledger.TransactionPage, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return ledger.Account{}, ledger.TransactionPage{}, err
	}

	page, pageSize = clampPage(page, pageSize)
	history, err := s.store.ListTransactions(ctx, account.ID, page, pageSize)
	if err != nil {
		return ledger.Account{}, ledger.TransactionPage{}, err
	}
	return account, history, nil
}

// GetSettings exposes the settings singleton to the admin surface.
func (s *Service) GetSettings(ctx context.Context) (settings.Settings, error) {
	return s.settings.Get(ctx)
}

// UpdateSettings merges the patch into the stored settings record.
func (s *Service) UpdateSettings(ctx context.Context, patch settings.Patch) (settings.Settings, error) {
	updated, err := s.settings.Replace(ctx, patch)
	if err != nil {
		return settings.Settings{}, err
	}
	s.logger.Info("wallet settings updated", "wallet_enabled", updated.WalletEnabled, "allowed_owner_types", updated.AllowedOwnerTypes)
	return updated, nil
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
