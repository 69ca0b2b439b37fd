package billing

import "sort"

// Price is a recognized storage tier.
// ProviderID is the payment processor's price identifier, if any.
type Price struct {
	Name       string
	ProviderID string
}

// PriceCatalog is a closed, immutable set of storage prices.
// The zero value allows nothing.
type PriceCatalog struct {
	byName     map[string]Price
	byProvider map[string]string
	names      []string
}

// NewPriceCatalog creates a catalog from the given prices.
// Entries with an empty name are ignored; later duplicates win.
func NewPriceCatalog(prices ...Price) PriceCatalog {
	c := PriceCatalog{
		byName:     make(map[string]Price, len(prices)),
		byProvider: make(map[string]string, len(prices)),
	}
	for _, p := range prices {
		if p.Name == "" {
			continue
		}
		if old, ok := c.byName[p.Name]; ok && old.ProviderID != "" {
			delete(c.byProvider, old.ProviderID)
		}
		c.byName[p.Name] = p
		if p.ProviderID != "" {
			c.byProvider[p.ProviderID] = p.Name
		}
	}
	c.names = make([]string, 0, len(c.byName))
	for name := range c.byName {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// DefaultStoragePrices returns the storage tiers offered to users.
func DefaultStoragePrices() []Price {
	return []Price{
		{Name: "free"},
		{Name: "lite"},
		{Name: "pro"},
	}
}

// IsAllowed reports whether name is a member of the catalog.
func (c PriceCatalog) IsAllowed(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Names returns the sorted price names.
func (c PriceCatalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of prices.
func (c PriceCatalog) Len() int {
	return len(c.names)
}

// ProviderID returns the processor price id for name.
func (c PriceCatalog) ProviderID(name string) (string, bool) {
	p, ok := c.byName[name]
	if !ok || p.ProviderID == "" {
		return "", false
	}
	return p.ProviderID, true
}

// NameForProviderID maps a processor price id back to its catalog name.
func (c PriceCatalog) NameForProviderID(id string) (string, bool) {
	name, ok := c.byProvider[id]
	return name, ok
}
