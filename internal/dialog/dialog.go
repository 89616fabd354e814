// Package dialog decides the user-facing message for a payment failure and
// collects the user's retry-or-abandon choice through an external dialog
// collaborator.
package dialog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yourorg/walletpay/internal/wallet"
)

// User-facing copy for payment failures.
const (
	TitlePaymentError    = "Payment Error"
	MessageCannotPay     = "This device is not set up for wallet payments."
	MessagePaymentFailed = "Your payment could not be completed."
	LabelOK              = "OK"
	LabelCancel          = "Cancel"
	LabelTryAgain        = "Try Again"
	LabelOpenWallet      = "Open Wallet"
)

// Confirmer is the external dialog collaborator. Confirm blocks until the
// user answers; the presenter's callers run it off the orchestration path.
type Confirmer interface {
	// Alert shows an acknowledgement-only dialog.
	Alert(ctx context.Context, title, message, cancelLabel string)
	// Confirm shows a two-button dialog and reports whether the user chose
	// the action button.
	Confirm(ctx context.Context, title, message, cancelLabel, actionLabel string) bool
}

// ErrorPresenter maps failure kinds to dialogs.
type ErrorPresenter struct {
	confirmer Confirmer
	setup     wallet.SetupSurface
	logger    zerolog.Logger
}

// NewErrorPresenter creates an ErrorPresenter. setup may be nil when the
// device has no wallet enrollment surface.
func NewErrorPresenter(confirmer Confirmer, setup wallet.SetupSurface, logger zerolog.Logger) *ErrorPresenter {
	if confirmer == nil {
		panic("confirmer cannot be nil")
	}
	return &ErrorPresenter{confirmer: confirmer, setup: setup, logger: logger}
}

// CannotPay handles the user-cannot-pay failure. When a wallet setup surface
// exists it offers to open it; otherwise it shows a plain acknowledgement.
func (p *ErrorPresenter) CannotPay(ctx context.Context) {
	if p.setup == nil || !p.setup.Available() {
		p.confirmer.Alert(ctx, TitlePaymentError, MessageCannotPay, LabelOK)
		return
	}
	if p.confirmer.Confirm(ctx, TitlePaymentError, MessageCannotPay, LabelOK, LabelOpenWallet) {
		p.logger.Info().Msg("opening wallet setup")
		p.setup.OpenSetup()
	}
}

// OperationFailed handles a tokenize/charge failure. When offerRetry is set
// it asks the user whether to try again and reports the choice; otherwise it
// shows an acknowledgement and reports false. No retry limit is enforced
// here.
func (p *ErrorPresenter) OperationFailed(ctx context.Context, detail string, offerRetry bool) bool {
	message := detail
	if message == "" {
		message = MessagePaymentFailed
	}
	if !offerRetry {
		p.confirmer.Alert(ctx, TitlePaymentError, message, LabelOK)
		return false
	}
	return p.confirmer.Confirm(ctx, TitlePaymentError, message, LabelCancel, LabelTryAgain)
}
