package wallet

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/yourorg/walletpay/internal/payment"
)

// SimulatedWallet is a scriptable Authorizer for tests and the demo server.
// By default it approves capability probes and, on Present, immediately
// authorizes with a synthetic credential; once the completion callback is
// invoked it fires Finished, mirroring how the platform wallet dismisses its
// sheet after the result is shown.
type SimulatedWallet struct {
	// CanAuthorizeFunc overrides the capability probe. Defaults to true.
	CanAuthorizeFunc func(networks []payment.NetworkID) bool
	// PresentFunc overrides the whole presentation flow.
	PresentFunc func(req *payment.PaymentRequest, cb SessionCallbacks) (Handle, error)
	// DismissOnPresent simulates the user closing the sheet without
	// authorizing: Present fires only Finished.
	DismissOnPresent bool
	// Credential presented on authorization when PresentFunc is not set.
	Credential payment.Credential

	presentCount atomic.Int64

	mu        sync.Mutex
	lastReq   *payment.PaymentRequest
	lastItems []payment.LineItem
}

// NewSimulatedWallet creates a SimulatedWallet with a default test credential.
func NewSimulatedWallet() *SimulatedWallet {
	return &SimulatedWallet{
		Credential: payment.Credential{
			Data:        []byte("simulated-payment-data"),
			DisplayName: "Visa 4242",
			Network:     payment.NetworkVisa,
		},
	}
}

// CanAuthorize implements Authorizer.
func (w *SimulatedWallet) CanAuthorize(networks []payment.NetworkID) bool {
	if w.CanAuthorizeFunc != nil {
		return w.CanAuthorizeFunc(networks)
	}
	return true
}

// Present implements Authorizer.
func (w *SimulatedWallet) Present(req *payment.PaymentRequest, cb SessionCallbacks) (Handle, error) {
	w.presentCount.Add(1)
	w.mu.Lock()
	w.lastReq = req
	w.mu.Unlock()

	if w.PresentFunc != nil {
		return w.PresentFunc(req, cb)
	}

	handle := Handle{ID: uuid.NewString()}

	if w.DismissOnPresent {
		if cb.Finished != nil {
			cb.Finished()
		}
		return handle, nil
	}

	if cb.Authorized != nil {
		cb.Authorized(w.Credential, func(payment.Outcome) {
			if cb.Finished != nil {
				cb.Finished()
			}
		})
	}
	return handle, nil
}

// SelectShippingMethod drives the shipping-selection event and records the
// summary items the callback returned.
func (w *SimulatedWallet) SelectShippingMethod(cb SessionCallbacks, method payment.ShippingMethod) []payment.LineItem {
	if cb.ShippingMethodSelected == nil {
		return nil
	}
	items := cb.ShippingMethodSelected(method)
	w.mu.Lock()
	w.lastItems = items
	w.mu.Unlock()
	return items
}

// PresentCount returns how many times Present was called.
func (w *SimulatedWallet) PresentCount() int {
	return int(w.presentCount.Load())
}

// LastRequest returns the most recently presented request.
func (w *SimulatedWallet) LastRequest() *payment.PaymentRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReq
}
