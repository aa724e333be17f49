package ledger

import "github.com/shopspring/decimal"

// ForceBalance overwrites the cached balance of an in-memory account without
// writing a transaction, simulating drift for reconciliation tests.
func ForceBalance(s Store, accountID string, balance decimal.Decimal) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if account, exists := mem.accounts[accountID]; exists {
			account.Balance = balance
			mem.accounts[accountID] = account
		}
	}
}
