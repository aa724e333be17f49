package settings

import (
	"context"
	"time"
)

// RailConfig describes one external funding rail. The ledger treats it as
// opaque metadata; nothing here is enforced by posting logic.
type RailConfig struct {
	Provider string `json:"provider"`
	Currency string `json:"currency"`
	Enabled  bool   `json:"enabled"`
}

// Compliance holds informational policy metadata surfaced to the admin UI.
type Compliance struct {
	TermsURL         string `json:"terms_url"`
	FallbackHoldDays int    `json:"fallback_hold_days"`
}

// Settings is the process-wide wallet configuration singleton. It gates
// account creation and posting and is re-read on every mutating call.
type Settings struct {
	WalletEnabled     bool
	AllowedOwnerTypes []string
	FundingRails      map[string]RailConfig
	Compliance        Compliance
	UpdatedAt         time.Time
}

// Default returns the settings written when no record exists yet: wallet
// enabled, no owner-type restriction.
func Default() Settings {
	return Settings{
		WalletEnabled:     true,
		AllowedOwnerTypes: []string{},
		FundingRails:      map[string]RailConfig{},
	}
}

// OwnerTypeAllowed reports whether the owner type may hold a wallet. An empty
// allow-list means unrestricted, not "nothing allowed".
func (s Settings) OwnerTypeAllowed(ownerType string) bool {
	if len(s.AllowedOwnerTypes) == 0 {
		return true
	}
	for _, allowed := range s.AllowedOwnerTypes {
		if allowed == ownerType {
			return true
		}
	}
	return false
}

// Patch carries a partial settings update. Nil fields keep their stored
// values; the merged record is persisted as a whole.
type Patch struct {
	WalletEnabled     *bool
	AllowedOwnerTypes *[]string
	FundingRails      map[string]RailConfig
	Compliance        *Compliance
}

func (s Settings) merge(p Patch) Settings {
	if p.WalletEnabled != nil {
		s.WalletEnabled = *p.WalletEnabled
	}
	if p.AllowedOwnerTypes != nil {
		s.AllowedOwnerTypes = append([]string{}, (*p.AllowedOwnerTypes)...)
	}
	if p.FundingRails != nil {
		rails := make(map[string]RailConfig, len(p.FundingRails))
		for name, rail := range p.FundingRails {
			rails[name] = rail
		}
		s.FundingRails = rails
	}
	if p.Compliance != nil {
		s.Compliance = *p.Compliance
	}
	return s
}

// Store persists the settings singleton.
type Store interface {
	// Get returns current settings, creating the default-enabled record when
	// none exists.
	Get(ctx context.Context) (Settings, error)

	// Replace merges the patch into the stored record under the singleton
	// row lock and returns the full merged settings.
	Replace(ctx context.Context, patch Patch) (Settings, error)
}
