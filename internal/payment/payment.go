// Package payment holds the domain types shared by the catalog, the wallet
// adapter, the tokenization/charge clients and the orchestrator: line items,
// the payment request, credentials, tokens, and the session outcome.
package payment

import "fmt"

// NetworkID identifies a card network supported by the wallet.
type NetworkID string

const (
	NetworkVisa       NetworkID = "visa"
	NetworkAmex       NetworkID = "amex"
	NetworkMasterCard NetworkID = "mastercard"
	NetworkDiscover   NetworkID = "discover"
)

// ContactField names a contact detail the wallet must collect from the user.
type ContactField string

const (
	ContactName  ContactField = "name"
	ContactEmail ContactField = "email"
	ContactPhone ContactField = "phone"
)

// LineItem is a single row of the price breakdown shown during authorization.
// Amounts are integer cents.
type LineItem struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// ShippingMethod is a selectable delivery option with its surcharge in cents.
type ShippingMethod struct {
	Identifier string `json:"identifier"`
	Label      string `json:"label"`
	Amount     int64  `json:"amount"`
}

// PaymentRequest is the finalized request handed to the wallet UI.
// It is mutable only while the builder runs; once presented it must not change.
type PaymentRequest struct {
	CurrencyCode          string
	CountryCode           string
	SupportedCountries    []string
	MerchantID            string
	RequiredContactFields []ContactField
	SupportedNetworks     []NetworkID
	ShippingMethods       []ShippingMethod
	SummaryItems          []LineItem
}

// Total sums the request's summary items.
func (r *PaymentRequest) Total() int64 {
	var total int64
	for _, item := range r.SummaryItems {
		total += item.Amount
	}
	return total
}

// Credential is the raw authorization artifact produced by the wallet UI.
// It has a short validity window and must be exchanged for a token promptly;
// it is never persisted.
type Credential struct {
	Data        []byte
	DisplayName string
	Network     NetworkID
}

// Token is the tokenization service's single-use substitute for a credential.
// It must not be logged or persisted beyond the charge call.
type Token struct {
	ID string
}

// ErrorKind classifies a payment failure.
type ErrorKind string

const (
	KindUserCannotPay              ErrorKind = "user_cannot_pay"
	KindCapabilityProbeUnavailable ErrorKind = "capability_probe_unavailable"
	KindTokenizationError          ErrorKind = "tokenization_error"
	KindChargeError                ErrorKind = "charge_error"
	KindNetworkTimeout             ErrorKind = "network_timeout"
	KindInvalidProduct             ErrorKind = "invalid_product"
	KindSessionAlreadyActive       ErrorKind = "session_already_active"
)

// Error is a classified payment failure crossing a collaborator boundary.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewError builds a classified payment error.
func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Outcome is the terminal result of one payment session attempt.
type Outcome struct {
	Success bool      `json:"success"`
	Kind    ErrorKind `json:"errorKind,omitempty"`
	Detail  string    `json:"errorDetail,omitempty"`
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome {
	return Outcome{Success: true}
}

// Failed returns a failure outcome carrying the classified reason.
func Failed(kind ErrorKind, detail string) Outcome {
	return Outcome{Success: false, Kind: kind, Detail: detail}
}
