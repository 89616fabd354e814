// Package orchestrator drives one payment session through the wallet
// authorization, tokenization, and charge steps. It owns the session state
// machine, sequences the three callback-driven collaborators, and delivers
// the outcome to the caller's hooks and to the wallet's completion callback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/walletpay/internal/catalog"
	"github.com/yourorg/walletpay/internal/charge"
	"github.com/yourorg/walletpay/internal/config"
	"github.com/yourorg/walletpay/internal/dialog"
	"github.com/yourorg/walletpay/internal/payment"
	"github.com/yourorg/walletpay/internal/policy"
	"github.com/yourorg/walletpay/internal/reporting"
	"github.com/yourorg/walletpay/internal/request"
	"github.com/yourorg/walletpay/internal/token"
	"github.com/yourorg/walletpay/internal/wallet"
)

// Programmer errors reported synchronously at Start and never retried.
var (
	ErrSessionAlreadyActive = errors.New("orchestrator: a payment session is already active")
	ErrInvalidProduct       = errors.New("orchestrator: unknown product")
)

// Phase is the session state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCapabilityChecked
	PhasePresenting
	PhaseAuthorizing
	PhaseTokenizing
	PhaseCharging
	PhaseCompleting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCapabilityChecked:
		return "capability_checked"
	case PhasePresenting:
		return "presenting"
	case PhaseAuthorizing:
		return "authorizing"
	case PhaseTokenizing:
		return "tokenizing"
	case PhaseCharging:
		return "charging"
	case PhaseCompleting:
		return "completing"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer receives session-level measurements.
type Observer interface {
	SessionCompleted(outcome payment.Outcome, attempts int, d time.Duration)
	RetryChosen()
}

type nopObserver struct{}

func (nopObserver) SessionCompleted(payment.Outcome, int, time.Duration) {}
func (nopObserver) RetryChosen()                                         {}

type nopJournal struct{}

func (nopJournal) Record(reporting.LogEntry) {}

// session is the unit of work. It is owned exclusively by the orchestrator;
// callbacks carry only the session ID, so a torn-down session cannot be
// revived or kept alive by a late event.
type session struct {
	id        string
	product   catalog.ProductRef
	hooks     Hooks
	phase     Phase
	req       *payment.PaymentRequest
	complete  wallet.CompletionFunc
	attempt   int
	startedAt time.Time
	result    *payment.Outcome
	ctx       context.Context
}

// Deps are the orchestrator's collaborators. Observer and Journal are
// optional; everything else is required.
type Deps struct {
	Builder   *request.Builder
	Catalog   *catalog.Catalog
	Wallet    wallet.Authorizer
	Tokenizer token.Tokenizer
	Submitter charge.Submitter
	Presenter *dialog.ErrorPresenter
	Retry     *policy.RetryPolicy
	Observer  Observer
	Journal   reporting.Journal
	Logger    zerolog.Logger
}

// Orchestrator coordinates one payment session at a time. It must not be
// driven concurrently by two callers; wallet and network callbacks may
// arrive on any goroutine and are serialized internally.
type Orchestrator struct {
	merchant  config.Merchant
	builder   *request.Builder
	catalog   *catalog.Catalog
	wallet    wallet.Authorizer
	tokenizer token.Tokenizer
	submitter charge.Submitter
	presenter *dialog.ErrorPresenter
	retry     *policy.RetryPolicy
	observer  Observer
	journal   reporting.Journal
	logger    zerolog.Logger
	tracer    trace.Tracer

	mu   sync.Mutex
	sess *session
}

// New creates an Orchestrator.
func New(merchant config.Merchant, deps Deps) *Orchestrator {
	if deps.Builder == nil {
		panic("request builder cannot be nil")
	}
	if deps.Catalog == nil {
		panic("catalog cannot be nil")
	}
	if deps.Wallet == nil {
		panic("wallet authorizer cannot be nil")
	}
	if deps.Tokenizer == nil {
		panic("tokenizer cannot be nil")
	}
	if deps.Submitter == nil {
		panic("charge submitter cannot be nil")
	}
	if deps.Presenter == nil {
		panic("error presenter cannot be nil")
	}
	if deps.Retry == nil {
		panic("retry policy cannot be nil")
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Journal == nil {
		deps.Journal = nopJournal{}
	}
	return &Orchestrator{
		merchant:  merchant,
		builder:   deps.Builder,
		catalog:   deps.Catalog,
		wallet:    deps.Wallet,
		tokenizer: deps.Tokenizer,
		submitter: deps.Submitter,
		presenter: deps.Presenter,
		retry:     deps.Retry,
		observer:  deps.Observer,
		journal:   deps.Journal,
		logger:    deps.Logger,
		tracer:    otel.Tracer("orchestrator"),
	}
}

// Phase returns the active session's phase, or PhaseIdle when no session is
// active.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return PhaseIdle
	}
	return o.sess.phase
}

// Start begins a payment session for one product. It rejects a second call
// while a session is active with ErrSessionAlreadyActive, leaving the active
// session untouched. Failures past the capability check are delivered
// asynchronously through the hooks and the error presenter, not as a return
// value.
func (o *Orchestrator) Start(ctx context.Context, product catalog.ProductRef, hooks Hooks) error {
	o.mu.Lock()
	if o.sess != nil {
		o.mu.Unlock()
		return ErrSessionAlreadyActive
	}
	if !o.catalog.Known(product) {
		o.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidProduct, product)
	}
	sess := &session{
		id:        uuid.NewString(),
		product:   product,
		hooks:     hooks,
		phase:     PhaseCapabilityChecked,
		startedAt: time.Now(),
		ctx:       ctx,
	}
	o.sess = sess
	o.mu.Unlock()

	canPay := o.wallet.CanAuthorize(o.merchant.SupportedNetworks)
	hooks.capabilityChecked(canPay)
	if !canPay {
		o.logger.Info().Str("session", sess.id).Msg("wallet capability check failed")
		outcome := payment.Failed(payment.KindUserCannotPay, dialog.MessageCannotPay)
		hooks.completed(outcome)
		go o.presenter.CannotPay(ctx)
		o.mu.Lock()
		sess.result = &outcome
		finish := o.teardownLocked(sess)
		o.mu.Unlock()
		finish()
		return nil
	}

	req, err := o.builder.Build(product, hooks.requestHooks())
	if err != nil {
		o.mu.Lock()
		o.sess = nil
		o.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}

	o.mu.Lock()
	sess.req = req
	sess.attempt = 1
	sess.phase = PhasePresenting
	o.mu.Unlock()

	o.present(sess)
	return nil
}

// present hands the finalized request to the wallet UI. It must be called
// without the lock held: the wallet may fire callbacks synchronously.
func (o *Orchestrator) present(sess *session) {
	sid := sess.id
	cb := wallet.SessionCallbacks{
		Authorized: func(cred payment.Credential, complete wallet.CompletionFunc) {
			o.authorizedEvent(sid, cred, complete)
		},
		ShippingMethodSelected: func(method payment.ShippingMethod) []payment.LineItem {
			return o.shippingSelectedEvent(sid, method)
		},
		Finished: func() {
			o.finishedEvent(sid)
		},
	}

	handle, err := o.wallet.Present(sess.req, cb)
	if err != nil {
		o.logger.Error().Err(err).Str("session", sid).Msg("wallet presentation failed")
		o.fail(sid, payment.KindCapabilityProbeUnavailable, err.Error())
		return
	}
	o.logger.Debug().Str("session", sid).Str("handle", handle.ID).Msg("wallet presented")
	sess.hooks.presented(handle)
}

// authorizedEvent handles the wallet's authorization callback. A late event
// for a torn-down or moved-on session is discarded.
func (o *Orchestrator) authorizedEvent(sid string, cred payment.Credential, complete wallet.CompletionFunc) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || sess.id != sid || sess.phase != PhasePresenting {
		o.mu.Unlock()
		o.logger.Debug().Str("session", sid).Msg("ignoring orphaned authorization event")
		return
	}
	sess.phase = PhaseAuthorizing
	sess.complete = complete
	hooks := sess.hooks
	o.mu.Unlock()

	hooks.authorized(cred)

	o.mu.Lock()
	if o.sess != sess || sess.phase != PhaseAuthorizing {
		o.mu.Unlock()
		return
	}
	sess.phase = PhaseTokenizing
	ctx := sess.ctx
	attempt := sess.attempt
	o.mu.Unlock()

	go o.exchange(sid, cred, attempt, ctx)
}

// exchange runs the tokenize step off the callback path. The credential's
// validity window is short, so this starts immediately after authorization.
func (o *Orchestrator) exchange(sid string, cred payment.Credential, attempt int, ctx context.Context) {
	tctx, span := o.tracer.Start(ctx, "orchestrator.tokenize")
	tok, err := o.tokenizer.Tokenize(tctx, cred)
	span.End()
	o.tokenizedEvent(sid, tok, err, attempt, ctx)
}

func (o *Orchestrator) tokenizedEvent(sid string, tok payment.Token, err error, attempt int, ctx context.Context) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || sess.id != sid || sess.phase != PhaseTokenizing {
		o.mu.Unlock()
		o.logger.Debug().Str("session", sid).Msg("ignoring orphaned tokenization result")
		return
	}
	hooks := sess.hooks
	var product catalog.ProductRef
	if err == nil {
		sess.phase = PhaseCharging
		product = sess.product
	}
	o.mu.Unlock()

	hooks.tokenized(tok, err)
	if err != nil {
		kind, detail := classify(err, payment.KindTokenizationError)
		o.fail(sid, kind, detail)
		return
	}

	key := chargeIdempotencyKey(sid, attempt)
	go o.submitCharge(sid, tok, product, key, ctx)
}

func (o *Orchestrator) submitCharge(sid string, tok payment.Token, product catalog.ProductRef, key string, ctx context.Context) {
	cctx, span := o.tracer.Start(ctx, "orchestrator.charge")
	err := o.submitter.Charge(cctx, tok, string(product), key)
	span.End()
	o.chargedEvent(sid, err)
}

func (o *Orchestrator) chargedEvent(sid string, err error) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || sess.id != sid || sess.phase != PhaseCharging {
		o.mu.Unlock()
		o.logger.Debug().Str("session", sid).Msg("ignoring orphaned charge result")
		return
	}
	if err != nil {
		o.mu.Unlock()
		kind, detail := classify(err, payment.KindChargeError)
		o.fail(sid, kind, detail)
		return
	}

	sess.phase = PhaseCompleting
	outcome := payment.Succeeded()
	sess.result = &outcome
	complete := sess.complete
	sess.complete = nil
	hooks := sess.hooks
	o.mu.Unlock()

	o.logger.Info().Str("session", sid).Msg("payment charged")
	hooks.completed(outcome)
	if complete != nil {
		complete(outcome)
	}
}

// fail marks the attempt failed, tells the wallet UI so it can reflect the
// failure, and asks the user whether to retry. The wallet completion and the
// caller's result hook are both always informed; a failed charge never
// silently disappears.
func (o *Orchestrator) fail(sid string, kind payment.ErrorKind, detail string) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || sess.id != sid {
		o.mu.Unlock()
		return
	}
	sess.phase = PhaseFailed
	outcome := payment.Failed(kind, detail)
	sess.result = &outcome
	complete := sess.complete
	sess.complete = nil
	hooks := sess.hooks
	attempt := sess.attempt
	ctx := sess.ctx
	o.mu.Unlock()

	o.logger.Warn().Str("session", sid).Str("kind", string(kind)).Int("attempt", attempt).Str("detail", detail).Msg("payment attempt failed")
	hooks.completed(outcome)
	if complete != nil {
		complete(outcome)
	}

	offerRetry := true
	decision, err := o.retry.Evaluate(kind, attempt)
	if err != nil {
		o.logger.Error().Err(err).Str("session", sid).Msg("retry policy evaluation failed; offering retry")
	} else {
		offerRetry = decision.OfferRetry
	}

	go func() {
		choice := o.presenter.OperationFailed(ctx, detail, offerRetry)
		o.retryDecided(sid, choice)
	}()
}

// retryDecided applies the user's retry-or-abandon choice. A retry restarts
// presentation with the same request; each retry re-authorizes, so a fresh
// credential and token are obtained rather than reusing stale ones.
func (o *Orchestrator) retryDecided(sid string, retry bool) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || sess.id != sid || sess.phase != PhaseFailed {
		o.mu.Unlock()
		return
	}
	if !retry {
		finish := o.teardownLocked(sess)
		o.mu.Unlock()
		finish()
		return
	}
	sess.phase = PhasePresenting
	sess.attempt++
	sess.result = nil
	attempt := sess.attempt
	o.mu.Unlock()

	o.observer.RetryChosen()
	o.logger.Info().Str("session", sid).Int("attempt", attempt).Msg("retrying payment")
	o.present(sess)
}

// finishedEvent handles the wallet's teardown signal. While a retry dialog
// is pending the session is kept; in every other phase the session ends
// here, and any in-flight tokenize/charge result becomes an orphan.
func (o *Orchestrator) finishedEvent(sid string) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || sess.id != sid {
		o.mu.Unlock()
		o.logger.Debug().Str("session", sid).Msg("ignoring orphaned finished event")
		return
	}
	if sess.phase == PhaseFailed {
		o.mu.Unlock()
		return
	}
	finish := o.teardownLocked(sess)
	o.mu.Unlock()
	finish()
}

// shippingSelectedEvent recomputes the summary for the selected shipping
// method, falling back to the product's catalog items.
func (o *Orchestrator) shippingSelectedEvent(sid string, method payment.ShippingMethod) []payment.LineItem {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || sess.id != sid || sess.phase != PhasePresenting {
		o.mu.Unlock()
		return nil
	}
	product := sess.product
	hooks := sess.hooks
	fallback := sess.req.SummaryItems
	o.mu.Unlock()

	items, err := o.builder.SummaryItems(product, hooks.requestHooks(), &method)
	if err != nil {
		o.logger.Error().Err(err).Str("session", sid).Msg("summary recomputation failed")
		return fallback
	}
	return items
}

// teardownLocked removes the session and returns the callbacks to run after
// the lock is released.
func (o *Orchestrator) teardownLocked(sess *session) func() {
	o.sess = nil
	hooks := sess.hooks
	result := sess.result
	attempts := sess.attempt
	duration := time.Since(sess.startedAt)
	product := sess.product
	sid := sess.id
	var amount int64
	if sess.req != nil {
		amount = sess.req.Total()
	}

	return func() {
		if result != nil {
			o.observer.SessionCompleted(*result, attempts, duration)
			o.journal.Record(reporting.LogEntry{
				Timestamp:   time.Now(),
				SessionID:   sid,
				ProductID:   string(product),
				Success:     result.Success,
				ErrorKind:   result.Kind,
				Attempts:    attempts,
				DurationMs:  duration.Milliseconds(),
				AmountCents: amount,
				Currency:    o.merchant.CurrencyCode,
			})
		}
		o.logger.Info().Str("session", sid).Msg("session finished")
		hooks.sessionFinished()
	}
}

// classify extracts the kind and detail from a payment error, or applies the
// fallback kind for unclassified errors.
func classify(err error, fallback payment.ErrorKind) (payment.ErrorKind, string) {
	var perr *payment.Error
	if errors.As(err, &perr) {
		return perr.Kind, perr.Detail
	}
	return fallback, err.Error()
}

// chargeIdempotencyKey is unique per session attempt so a backend honoring
// the key can deduplicate replays of the same attempt.
func chargeIdempotencyKey(sessionID string, attempt int) string {
	key := fmt.Sprintf("%s-%d-%s", sessionID, attempt, uuid.NewString())
	if len(key) > 255 {
		return key[:255]
	}
	return key
}
