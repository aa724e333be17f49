package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/luma-market/luma_wallet/internal/ledger"
	"github.com/luma-market/luma_wallet/internal/settings"
)

// Handler exposes the wallet ledger HTTP endpoints consumed by the admin layer.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type accountResponse struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	OwnerType   string          `json:"owner_type"`
	OwnerID     string          `json:"owner_id"`
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type transactionResponse struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"wallet_account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type settingsResponse struct {
	WalletEnabled     bool                           `json:"wallet_enabled"`
	AllowedOwnerTypes []string                       `json:"allowed_owner_types"`
	FundingRails      map[string]settings.RailConfig `json:"funding_rails"`
	Compliance        settings.Compliance            `json:"compliance"`
	UpdatedAt         time.Time                      `json:"updated_at"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		OwnerType:   a.OwnerType,
		OwnerID:     a.OwnerID,
		Currency:    a.Currency,
		Balance:     a.Balance,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		Currency:      t.Currency,
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}

func toSettingsResponse(s settings.Settings) settingsResponse {
	return settingsResponse{
		WalletEnabled:     s.WalletEnabled,
		AllowedOwnerTypes: s.AllowedOwnerTypes,
		FundingRails:      s.FundingRails,
		Compliance:        s.Compliance,
		UpdatedAt:         s.UpdatedAt,
	}
}

// GetSettings returns the wallet configuration singleton.
func (h *Handler) GetSettings(c *fiber.Ctx) error {
	current, err := h.service.GetSettings(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toSettingsResponse(current))
}

type settingsPatchRequest struct {
	WalletEnabled     *bool                          `json:"wallet_enabled"`
	AllowedOwnerTypes *[]string                      `json:"allowed_owner_types"`
	FundingRails      map[string]settings.RailConfig `json:"funding_rails"`
	Compliance        *settings.Compliance           `json:"compliance"`
}

// UpdateSettings merges the supplied fields into the stored settings record.
func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var req settingsPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.service.UpdateSettings(c.UserContext(), settings.Patch{
		WalletEnabled:     req.WalletEnabled,
		AllowedOwnerTypes: req.AllowedOwnerTypes,
		FundingRails:      req.FundingRails,
		Compliance:        req.Compliance,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toSettingsResponse(updated))
}

type createAccountRequest struct {
	DisplayName string `json:"display_name"`
	OwnerType   string `json:"owner_type"`
	OwnerID     string `json:"owner_id"`
	Currency    string `json:"currency"`
}

// CreateAccount opens a wallet account for an external owner.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.service.CreateAccount(c.UserContext(), CreateAccountInput{
		DisplayName: req.DisplayName,
		OwnerType:   req.OwnerType,
		OwnerID:     req.OwnerID,
		Currency:    req.Currency,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(account))
}

// GetAccount returns one account by identifier.
func (h *Handler) GetAccount(c *fiber.Ctx) error {
	account, err := h.service.GetAccount(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(account))
}

// ListAccounts returns a page of accounts plus the total for dashboards.
func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	filter := ledger.AccountFilter{
		OwnerType: c.Query("owner_type"),
		OwnerID:   c.Query("owner_id"),
		Currency:  c.Query("currency"),
	}
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", defaultPageSize)

	result, err := h.service.ListAccounts(c.UserContext(), filter, page, pageSize)
	if err != nil {
		return writeError(c, err)
	}

	accounts := make([]accountResponse, 0, len(result.Accounts))
	for _, account := range result.Accounts {
		accounts = append(accounts, toAccountResponse(account))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"results":        accounts,
		"total_accounts": result.Total,
		"page":           page,
		"page_size":      pageSize,
	})
}

type postRequest struct {
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Description   string          `json:"description"`
}

// CreateTransaction posts a credit or debit against the account.
func (h *Handler) CreateTransaction(c *fiber.Ctx) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	posting, err := h.service.Post(c.UserContext(), PostInput{
		AccountID:     c.Params("accountId"),
		Type:          ledger.EntryType(req.Type),
		Amount:        req.Amount,
		Currency:      req.Currency,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account":     toAccountResponse(posting.Account),
		"transaction": toTransactionResponse(posting.Transaction),
	})
}

// ListTransactions returns the account and a newest-first page of its history.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", defaultPageSize)

	account, history, err := h.service.ListTransactions(c.UserContext(), c.Params("accountId"), page, pageSize)
	if err != nil {
		return writeError(c, err)
	}

	transactions := make([]transactionResponse, 0, len(history.Transactions))
	for _, txn := range history.Transactions {
		transactions = append(transactions, toTransactionResponse(txn))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account":      toAccountResponse(account),
		"transactions": transactions,
		"total":        history.Total,
		"page":         page,
		"page_size":    pageSize,
	})
}

// writeError maps ledger errors to stable machine-readable codes so the admin
// UI can render precise messages.
func writeError(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrWalletDisabled):
		return http.StatusForbidden, "wallet_disabled"
	case errors.Is(err, ledger.ErrOwnerTypeNotAllowed):
		return http.StatusForbidden, "owner_type_not_allowed"
	case errors.Is(err, ledger.ErrDuplicateAccount):
		return http.StatusConflict, "duplicate_account"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, ledger.ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity, "currency_mismatch"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, ledger.ErrLockTimeout):
		return http.StatusServiceUnavailable, "lock_timeout"
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
