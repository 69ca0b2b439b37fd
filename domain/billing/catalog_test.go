package billing_test

import (
	"testing"

	"github.com/tinytb/web3.storage/domain/billing"
)

func TestPriceCatalog_IsAllowed(t *testing.T) {
	c := billing.NewPriceCatalog(billing.DefaultStoragePrices()...)

	tests := []struct {
		price string
		want  bool
	}{
		{"free", true},
		{"lite", true},
		{"pro", true},
		{"disallowed", false},
		{"", false},
		{"LITE", false},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			if got := c.IsAllowed(tt.price); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestPriceCatalog_ZeroValue(t *testing.T) {
	var c billing.PriceCatalog
	if c.IsAllowed("lite") {
		t.Error("zero catalog should allow nothing")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestPriceCatalog_Immutable(t *testing.T) {
	prices := []billing.Price{{Name: "lite"}, {Name: "pro"}}
	c := billing.NewPriceCatalog(prices...)

	prices[0].Name = "hacked"
	if !c.IsAllowed("lite") || c.IsAllowed("hacked") {
		t.Error("catalog changed after mutating input slice")
	}

	names := c.Names()
	names[0] = "hacked"
	if c.Names()[0] != "lite" {
		t.Error("catalog changed after mutating Names() result")
	}
}

func TestPriceCatalog_Names(t *testing.T) {
	c := billing.NewPriceCatalog(billing.Price{Name: "pro"}, billing.Price{Name: "free"}, billing.Price{Name: "lite"}, billing.Price{})
	got := c.Names()
	want := []string{"free", "lite", "pro"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPriceCatalog_ProviderIDs(t *testing.T) {
	c := billing.NewPriceCatalog(
		billing.Price{Name: "lite", ProviderID: "price_lite_1"},
		billing.Price{Name: "pro", ProviderID: "price_pro"},
		billing.Price{Name: "free"},
		billing.Price{Name: "lite", ProviderID: "price_lite_2"},
	)

	if id, ok := c.ProviderID("lite"); !ok || id != "price_lite_2" {
		t.Errorf("ProviderID(lite) = %q, %v", id, ok)
	}
	if _, ok := c.ProviderID("free"); ok {
		t.Error("free has no provider id")
	}
	if name, ok := c.NameForProviderID("price_pro"); !ok || name != "pro" {
		t.Errorf("NameForProviderID(price_pro) = %q, %v", name, ok)
	}
	if _, ok := c.NameForProviderID("price_lite_1"); ok {
		t.Error("replaced provider id should no longer resolve")
	}
}
