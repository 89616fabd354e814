package orchestrator

import (
	"github.com/yourorg/walletpay/internal/payment"
	"github.com/yourorg/walletpay/internal/request"
	"github.com/yourorg/walletpay/internal/wallet"
)

// Hooks is the caller's session configuration: a fixed set of named,
// independently optional callbacks. Every field defaults to a no-op when
// omitted.
type Hooks struct {
	// OnCapabilityChecked reports the result of the wallet capability probe.
	OnCapabilityChecked func(canPay bool)
	// MutateRequest may adjust the payment request during the build phase.
	MutateRequest func(req *payment.PaymentRequest)
	// SupplyShippingMethods returns the selectable shipping methods.
	SupplyShippingMethods func() []payment.ShippingMethod
	// ComputeSummaryItems recomputes summary items for a shipping method.
	ComputeSummaryItems func(selected *payment.ShippingMethod) []payment.LineItem
	// OnPresented reports the wallet session handle after presentation begins.
	OnPresented func(handle wallet.Handle)
	// OnAuthorized reports the raw credential produced by the wallet.
	OnAuthorized func(cred payment.Credential)
	// OnTokenized reports the tokenization result for each attempt.
	OnTokenized func(tok payment.Token, err error)
	// OnCompleted receives the terminal outcome of each attempt.
	OnCompleted func(outcome payment.Outcome)
	// OnSessionFinished fires once when the session is torn down.
	OnSessionFinished func()
}

func (h Hooks) requestHooks() request.Hooks {
	return request.Hooks{
		MutateRequest:         h.MutateRequest,
		SupplyShippingMethods: h.SupplyShippingMethods,
		ComputeSummaryItems:   h.ComputeSummaryItems,
	}
}

func (h Hooks) capabilityChecked(canPay bool) {
	if h.OnCapabilityChecked != nil {
		h.OnCapabilityChecked(canPay)
	}
}

func (h Hooks) presented(handle wallet.Handle) {
	if h.OnPresented != nil {
		h.OnPresented(handle)
	}
}

func (h Hooks) authorized(cred payment.Credential) {
	if h.OnAuthorized != nil {
		h.OnAuthorized(cred)
	}
}

func (h Hooks) tokenized(tok payment.Token, err error) {
	if h.OnTokenized != nil {
		h.OnTokenized(tok, err)
	}
}

func (h Hooks) completed(outcome payment.Outcome) {
	if h.OnCompleted != nil {
		h.OnCompleted(outcome)
	}
}

func (h Hooks) sessionFinished() {
	if h.OnSessionFinished != nil {
		h.OnSessionFinished()
	}
}
