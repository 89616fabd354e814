// Package catalog maps product identifiers to their summary line items.
// The product set is a closed enum; there is no dynamic catalog.
package catalog

import (
	"fmt"

	"github.com/yourorg/walletpay/internal/payment"
)

// ProductRef identifies a purchasable product.
type ProductRef string

const (
	ProductCard       ProductRef = "card"
	ProductMembership ProductRef = "membership"
)

// ErrUnknownProduct is returned for refs outside the closed product set.
var ErrUnknownProduct = fmt.Errorf("catalog: unknown product")

var products = map[ProductRef][]payment.LineItem{
	ProductCard: {
		{Label: "Total", Amount: 340},
	},
	ProductMembership: {
		{Label: "Membership", Amount: 1200},
		{Label: "Total", Amount: 1200},
	},
}

// Catalog is a pure lookup over the closed product set.
type Catalog struct{}

// NewCatalog creates a Catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// LineItems returns the ordered summary items for a product.
// The returned slice is a copy; callers may not mutate catalog state.
func (c *Catalog) LineItems(ref ProductRef) ([]payment.LineItem, error) {
	items, ok := products[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, ref)
	}
	out := make([]payment.LineItem, len(items))
	copy(out, items)
	return out, nil
}

// Known reports whether ref is part of the closed product set.
func (c *Catalog) Known(ref ProductRef) bool {
	_, ok := products[ref]
	return ok
}
