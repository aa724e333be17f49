package settings

import (
	"context"
	"testing"
)

func TestGetCreatesDefaultEnabledRecord(t *testing.T) {
	store := NewMemoryStore()

	current, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if !current.WalletEnabled {
		t.Fatal("expected default settings to be wallet-enabled")
	}
	if len(current.AllowedOwnerTypes) != 0 {
		t.Fatalf("expected empty allow-list, got %v", current.AllowedOwnerTypes)
	}
}

func TestReplaceMergesOnlyProvidedFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ownerTypes := []string{"provider", "affiliate"}
	updated, err := store.Replace(ctx, Patch{
		AllowedOwnerTypes: &ownerTypes,
		FundingRails: map[string]RailConfig{
			"stripe": {Provider: "stripe", Currency: "GBP", Enabled: true},
		},
	})
	if err != nil {
		t.Fatalf("replace settings: %v", err)
	}
	if !updated.WalletEnabled {
		t.Fatal("wallet_enabled flipped by a patch that never mentioned it")
	}
	if len(updated.AllowedOwnerTypes) != 2 {
		t.Fatalf("expected two owner types, got %v", updated.AllowedOwnerTypes)
	}

	disabled := false
	updated, err = store.Replace(ctx, Patch{WalletEnabled: &disabled})
	if err != nil {
		t.Fatalf("replace settings: %v", err)
	}
	if updated.WalletEnabled {
		t.Fatal("expected wallet to be disabled")
	}
	if rail, ok := updated.FundingRails["stripe"]; !ok || !rail.Enabled {
		t.Fatalf("funding rails lost across patch: %v", updated.FundingRails)
	}
	if len(updated.AllowedOwnerTypes) != 2 {
		t.Fatalf("allow-list lost across patch: %v", updated.AllowedOwnerTypes)
	}
}

func TestOwnerTypeAllowedTreatsEmptyListAsUnrestricted(t *testing.T) {
	s := Default()
	if !s.OwnerTypeAllowed("provider") {
		t.Fatal("empty allow-list must permit any owner type")
	}

	s.AllowedOwnerTypes = []string{"enterprise"}
	if s.OwnerTypeAllowed("provider") {
		t.Fatal("non-empty allow-list must reject unlisted owner types")
	}
	if !s.OwnerTypeAllowed("enterprise") {
		t.Fatal("listed owner type rejected")
	}
}
