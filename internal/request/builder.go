// Package request assembles the payment request presented to the wallet UI.
// Building is pure and synchronous: no network or wallet calls happen here,
// so the builder is fully unit-testable without a device.
package request

import (
	"fmt"

	"github.com/yourorg/walletpay/internal/catalog"
	"github.com/yourorg/walletpay/internal/config"
	"github.com/yourorg/walletpay/internal/payment"
)

// Hooks are the caller's optional request customization callbacks. Each hook
// must be a bounded synchronous call; customization that needs I/O has to
// complete before the build starts.
type Hooks struct {
	// MutateRequest may adjust the base request before shipping methods and
	// summary items are attached.
	MutateRequest func(*payment.PaymentRequest)
	// SupplyShippingMethods returns the selectable shipping methods, if any.
	SupplyShippingMethods func() []payment.ShippingMethod
	// ComputeSummaryItems recomputes the summary for the selected shipping
	// method. Returning nil falls back to the product's catalog items.
	ComputeSummaryItems func(selected *payment.ShippingMethod) []payment.LineItem
}

// Builder constructs payment requests from merchant configuration, the
// product catalog, and the caller's hooks.
type Builder struct {
	merchant config.Merchant
	catalog  *catalog.Catalog
}

// NewBuilder creates a Builder.
func NewBuilder(merchant config.Merchant, cat *catalog.Catalog) *Builder {
	if cat == nil {
		panic("catalog cannot be nil")
	}
	return &Builder{merchant: merchant, catalog: cat}
}

// Build assembles the finalized request for one product. The request is
// mutable only inside this call; after presentation begins it must be
// treated as immutable.
func (b *Builder) Build(ref catalog.ProductRef, hooks Hooks) (*payment.PaymentRequest, error) {
	req := &payment.PaymentRequest{
		CurrencyCode:          b.merchant.CurrencyCode,
		CountryCode:           b.merchant.CountryCode,
		SupportedCountries:    b.merchant.SupportedCountries,
		MerchantID:            b.merchant.MerchantID,
		RequiredContactFields: b.merchant.RequiredContacts,
		SupportedNetworks:     b.merchant.SupportedNetworks,
	}

	if hooks.MutateRequest != nil {
		hooks.MutateRequest(req)
	}
	if hooks.SupplyShippingMethods != nil {
		req.ShippingMethods = hooks.SupplyShippingMethods()
	}

	var selected *payment.ShippingMethod
	if len(req.ShippingMethods) > 0 {
		selected = &req.ShippingMethods[0]
	}
	items, err := b.SummaryItems(ref, hooks, selected)
	if err != nil {
		return nil, err
	}
	req.SummaryItems = items

	return req, nil
}

// SummaryItems resolves the summary for the selected shipping method,
// falling back to the product's catalog items when the hook is absent or
// yields nothing. The result is never empty for a known product.
func (b *Builder) SummaryItems(ref catalog.ProductRef, hooks Hooks, selected *payment.ShippingMethod) ([]payment.LineItem, error) {
	if hooks.ComputeSummaryItems != nil {
		if items := hooks.ComputeSummaryItems(selected); len(items) > 0 {
			return items, nil
		}
	}
	items, err := b.catalog.LineItems(ref)
	if err != nil {
		return nil, fmt.Errorf("request: resolving summary items: %w", err)
	}
	return items, nil
}
