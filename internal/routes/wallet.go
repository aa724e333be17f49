package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/luma-market/luma_wallet/internal/wallet"
)

// RegisterWalletRoutes wires the wallet ledger endpoints. Authentication and
// role checks happen upstream in the admin gateway.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet/settings", h.GetSettings)
	r.Put("/wallet/settings", h.UpdateSettings)

	r.Post("/wallet/accounts", h.CreateAccount)
	r.Get("/wallet/accounts", h.ListAccounts)
	r.Get("/wallet/accounts/:accountId", h.GetAccount)

	r.Post("/wallet/accounts/:accountId/transactions", h.CreateTransaction)
	r.Get("/wallet/accounts/:accountId/transactions", h.ListTransactions)
}
