// Package wallet defines the adapter contract between the orchestrator and
// the platform wallet UI. The orchestrator depends on the Authorizer
// interface only, never on a concrete UI type, so the wallet can be
// substituted with a test double.
package wallet

import "github.com/yourorg/walletpay/internal/payment"

// CompletionFunc reports the session's terminal outcome back to the wallet UI
// for one authorization event. It must be called exactly once per event;
// completion is binary, there is no intermediate "still processing" status.
type CompletionFunc func(payment.Outcome)

// SessionCallbacks are the orchestrator-level events a presented wallet
// session fires. Callbacks may arrive on any goroutine, potentially much
// later (human-paced); the receiver must synchronize.
type SessionCallbacks struct {
	// Authorized fires when the user approves payment. The credential has a
	// short validity window. complete must be invoked exactly once with the
	// terminal outcome of this authorization.
	Authorized func(cred payment.Credential, complete CompletionFunc)
	// ShippingMethodSelected fires when the user picks a shipping method and
	// must synchronously return the updated summary items.
	ShippingMethodSelected func(method payment.ShippingMethod) []payment.LineItem
	// Finished fires exactly once after the flow concludes, whether by
	// success, failure, or user dismissal. It is the sole teardown signal.
	Finished func()
}

// Handle identifies one presented wallet session.
type Handle struct {
	ID string
}

// Authorizer presents payment requests through the platform wallet UI.
type Authorizer interface {
	// CanAuthorize is a cheap, side-effect-free capability probe.
	CanAuthorize(networks []payment.NetworkID) bool
	// Present begins the asynchronous UI flow. Subsequent events arrive via
	// the callbacks.
	Present(req *payment.PaymentRequest, cb SessionCallbacks) (Handle, error)
}

// SetupSurface is the device's wallet enrollment surface, when one exists
// (a pass-library style "open wallet setup" screen).
type SetupSurface interface {
	Available() bool
	OpenSetup()
}
