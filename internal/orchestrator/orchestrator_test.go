package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/walletpay/internal/catalog"
	"github.com/yourorg/walletpay/internal/config"
	"github.com/yourorg/walletpay/internal/dialog"
	"github.com/yourorg/walletpay/internal/payment"
	"github.com/yourorg/walletpay/internal/policy"
	"github.com/yourorg/walletpay/internal/reporting"
	"github.com/yourorg/walletpay/internal/request"
	"github.com/yourorg/walletpay/internal/wallet"
)

const waitTimeout = 2 * time.Second

// testWallet is a hand-rolled Authorizer double giving tests full control
// over when the wallet events fire.
type testWallet struct {
	canAuthorize  bool
	dismiss       bool
	autoAuthorize bool
	cred          payment.Credential

	mu   sync.Mutex
	reqs []*payment.PaymentRequest
	cbs  []wallet.SessionCallbacks
}

func newTestWallet() *testWallet {
	return &testWallet{
		canAuthorize:  true,
		autoAuthorize: true,
		cred: payment.Credential{
			Data:        []byte("test-data"),
			DisplayName: "Visa 4242",
			Network:     payment.NetworkVisa,
		},
	}
}

func (w *testWallet) CanAuthorize([]payment.NetworkID) bool {
	return w.canAuthorize
}

func (w *testWallet) Present(req *payment.PaymentRequest, cb wallet.SessionCallbacks) (wallet.Handle, error) {
	w.mu.Lock()
	w.reqs = append(w.reqs, req)
	w.cbs = append(w.cbs, cb)
	w.mu.Unlock()

	if w.dismiss {
		cb.Finished()
		return wallet.Handle{ID: "h-dismissed"}, nil
	}
	if w.autoAuthorize {
		cb.Authorized(w.cred, func(payment.Outcome) {
			cb.Finished()
		})
	}
	return wallet.Handle{ID: "h-1"}, nil
}

func (w *testWallet) presentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.reqs)
}

func (w *testWallet) request(i int) *payment.PaymentRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reqs[i]
}

func (w *testWallet) callbacks(i int) wallet.SessionCallbacks {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cbs[i]
}

type fakeTokenizer struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (payment.Token, error)
}

func (f *fakeTokenizer) Tokenize(_ context.Context, _ payment.Credential) (payment.Token, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(call)
	}
	return payment.Token{ID: "tok_1"}, nil
}

func (f *fakeTokenizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type chargeCall struct {
	token     payment.Token
	productID string
	key       string
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []chargeCall
	fn    func(call int) error
}

func (f *fakeSubmitter) Charge(_ context.Context, tok payment.Token, productID, key string) error {
	f.mu.Lock()
	f.calls = append(f.calls, chargeCall{token: tok, productID: productID, key: key})
	call := len(f.calls)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(call)
	}
	return nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSubmitter) call(i int) chargeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeConfirmer struct {
	mu       sync.Mutex
	alerts   int
	confirms int
	answers  []bool
}

func (f *fakeConfirmer) Alert(_ context.Context, _, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts++
}

func (f *fakeConfirmer) Confirm(_ context.Context, _, _, _, _ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	if len(f.answers) == 0 {
		return false
	}
	answer := f.answers[0]
	f.answers = f.answers[1:]
	return answer
}

func (f *fakeConfirmer) counts() (alerts, confirms int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts, f.confirms
}

type sessionRecorder struct {
	mu       sync.Mutex
	outcomes []payment.Outcome
	finished chan struct{}
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{finished: make(chan struct{})}
}

func (r *sessionRecorder) hooks() Hooks {
	return Hooks{
		OnCompleted: func(outcome payment.Outcome) {
			r.mu.Lock()
			r.outcomes = append(r.outcomes, outcome)
			r.mu.Unlock()
		},
		OnSessionFinished: func() {
			close(r.finished)
		},
	}
}

func (r *sessionRecorder) waitFinished(t *testing.T) {
	t.Helper()
	select {
	case <-r.finished:
	case <-time.After(waitTimeout):
		t.Fatal("session did not finish in time")
	}
}

func (r *sessionRecorder) recorded() []payment.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]payment.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

func testMerchant() config.Merchant {
	return config.Merchant{
		MerchantID:         "merchant.com.example",
		CurrencyCode:       "USD",
		CountryCode:        "US",
		SupportedCountries: []string{"US"},
		SupportedNetworks:  []payment.NetworkID{payment.NetworkVisa, payment.NetworkAmex},
		RequiredContacts:   []payment.ContactField{payment.ContactName},
	}
}

type fixture struct {
	orch      *Orchestrator
	wallet    *testWallet
	tokenizer *fakeTokenizer
	submitter *fakeSubmitter
	confirmer *fakeConfirmer
	journal   *reporting.MemoryJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := catalog.NewCatalog()
	retryPolicy, err := policy.NewRetryPolicy(nil)
	require.NoError(t, err)

	f := &fixture{
		wallet:    newTestWallet(),
		tokenizer: &fakeTokenizer{},
		submitter: &fakeSubmitter{},
		confirmer: &fakeConfirmer{},
		journal:   reporting.NewMemoryJournal(),
	}
	merchant := testMerchant()
	f.orch = New(merchant, Deps{
		Builder:   request.NewBuilder(merchant, cat),
		Catalog:   cat,
		Wallet:    f.wallet,
		Tokenizer: f.tokenizer,
		Submitter: f.submitter,
		Presenter: dialog.NewErrorPresenter(f.confirmer, nil, zerolog.Nop()),
		Retry:     retryPolicy,
		Journal:   f.journal,
		Logger:    zerolog.Nop(),
	})
	return f
}

func TestNew_PanicsOnMissingDeps(t *testing.T) {
	assert.Panics(t, func() {
		New(testMerchant(), Deps{})
	})
}

func TestStart_SuccessFlow(t *testing.T) {
	f := newFixture(t)
	rec := newSessionRecorder()

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, rec.hooks()))
	rec.waitFinished(t)

	outcomes := rec.recorded()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)

	require.Equal(t, 1, f.submitter.callCount())
	call := f.submitter.call(0)
	assert.Equal(t, "tok_1", call.token.ID)
	assert.Equal(t, "card", call.productID)
	assert.NotEmpty(t, call.key)

	assert.Equal(t, 1, f.wallet.presentCount())
	assert.Equal(t, PhaseIdle, f.orch.Phase())

	entries := f.journal.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "card", entries[0].ProductID)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, int64(340), entries[0].AmountCents)
}

func TestStart_RejectsSecondSessionWithoutCorruptingFirst(t *testing.T) {
	f := newFixture(t)
	f.wallet.autoAuthorize = false // keep the first session presenting

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, Hooks{}))
	assert.Equal(t, PhasePresenting, f.orch.Phase())

	err := f.orch.Start(context.Background(), catalog.ProductCard, Hooks{})
	require.ErrorIs(t, err, ErrSessionAlreadyActive)

	// The active session is untouched.
	assert.Equal(t, PhasePresenting, f.orch.Phase())
	assert.Equal(t, 1, f.wallet.presentCount())
}

func TestStart_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	err := f.orch.Start(context.Background(), catalog.ProductRef("no-such-product"), Hooks{})
	require.ErrorIs(t, err, ErrInvalidProduct)
	assert.Equal(t, PhaseIdle, f.orch.Phase())
	assert.Equal(t, 0, f.wallet.presentCount())
}

func TestStart_CannotPay_NeverPresents(t *testing.T) {
	f := newFixture(t)
	f.wallet.canAuthorize = false
	rec := newSessionRecorder()

	var probeResult *bool
	hooks := rec.hooks()
	hooks.OnCapabilityChecked = func(canPay bool) { probeResult = &canPay }

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, hooks))
	rec.waitFinished(t)

	require.NotNil(t, probeResult)
	assert.False(t, *probeResult)

	outcomes := rec.recorded()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, payment.KindUserCannotPay, outcomes[0].Kind)

	assert.Equal(t, 0, f.wallet.presentCount())
	assert.Equal(t, 0, f.tokenizer.callCount())
	assert.Equal(t, 0, f.submitter.callCount())

	// No setup surface exists, so only the acknowledgement dialog is shown.
	require.Eventually(t, func() bool {
		alerts, _ := f.confirmer.counts()
		return alerts == 1
	}, waitTimeout, 10*time.Millisecond)
	_, confirms := f.confirmer.counts()
	assert.Equal(t, 0, confirms)
}

func TestStart_DismissedWithoutAuthorization(t *testing.T) {
	f := newFixture(t)
	f.wallet.dismiss = true
	rec := newSessionRecorder()

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, rec.hooks()))
	rec.waitFinished(t)

	assert.Empty(t, rec.recorded())
	assert.Equal(t, 0, f.tokenizer.callCount())
	assert.Equal(t, 0, f.submitter.callCount())
	assert.Equal(t, PhaseIdle, f.orch.Phase())
	assert.Empty(t, f.journal.Entries())
}

func TestTokenizeFailure_RetryRepresentsSameRequest(t *testing.T) {
	f := newFixture(t)
	f.tokenizer.fn = func(call int) (payment.Token, error) {
		if call == 1 {
			return payment.Token{}, payment.NewError(payment.KindTokenizationError, "network_down")
		}
		return payment.Token{ID: "tok_2"}, nil
	}
	f.confirmer.answers = []bool{true} // retry once
	rec := newSessionRecorder()

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, rec.hooks()))
	rec.waitFinished(t)

	outcomes := rec.recorded()
	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, payment.KindTokenizationError, outcomes[0].Kind)
	assert.Equal(t, "network_down", outcomes[0].Detail)
	assert.True(t, outcomes[1].Success)

	// The retry re-presents the same finalized request.
	require.Equal(t, 2, f.wallet.presentCount())
	assert.Same(t, f.wallet.request(0), f.wallet.request(1))

	// The retry re-authorized and obtained a fresh token before charging.
	assert.Equal(t, 2, f.tokenizer.callCount())
	require.Equal(t, 1, f.submitter.callCount())
	assert.Equal(t, "tok_2", f.submitter.call(0).token.ID)

	entries := f.journal.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, 2, entries[0].Attempts)
}

func TestChargeFailure_AbandonRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.submitter.fn = func(int) error {
		return payment.NewError(payment.KindChargeError, "card_declined")
	}
	// Confirmer answers false: the user abandons.
	rec := newSessionRecorder()

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, rec.hooks()))
	rec.waitFinished(t)

	outcomes := rec.recorded()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, payment.KindChargeError, outcomes[0].Kind)

	assert.Equal(t, PhaseIdle, f.orch.Phase())
	entries := f.journal.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, payment.KindChargeError, entries[0].ErrorKind)
}

func TestLateTokenizeResultAfterFinishedIsNoOp(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.tokenizer.fn = func(int) (payment.Token, error) {
		<-release
		return payment.Token{ID: "tok_late"}, nil
	}
	rec := newSessionRecorder()

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, rec.hooks()))

	// Wait until the tokenize step is in flight, then let the wallet finish
	// underneath it.
	require.Eventually(t, func() bool {
		return f.orch.Phase() == PhaseTokenizing
	}, waitTimeout, 5*time.Millisecond)
	f.wallet.callbacks(0).Finished()
	rec.waitFinished(t)

	close(release)

	// The late result changes nothing: no outcome delivery, no charge.
	assert.Never(t, func() bool {
		return f.submitter.callCount() > 0 || len(rec.recorded()) > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, PhaseIdle, f.orch.Phase())
}

func TestShippingMethodSelection_RecomputesSummary(t *testing.T) {
	f := newFixture(t)
	f.wallet.autoAuthorize = false

	express := payment.ShippingMethod{Identifier: "express", Label: "Express", Amount: 50}
	hooks := Hooks{
		SupplyShippingMethods: func() []payment.ShippingMethod {
			return []payment.ShippingMethod{express}
		},
		ComputeSummaryItems: func(selected *payment.ShippingMethod) []payment.LineItem {
			if selected == nil {
				return nil
			}
			return []payment.LineItem{
				{Label: "Card", Amount: 340},
				{Label: selected.Label, Amount: selected.Amount},
				{Label: "Total", Amount: 340 + selected.Amount},
			}
		},
	}

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, hooks))
	require.Equal(t, 1, f.wallet.presentCount())

	items := f.wallet.callbacks(0).ShippingMethodSelected(express)
	require.Len(t, items, 3)
	assert.Equal(t, int64(390), items[2].Amount)
}

func TestShippingMethodSelection_FallsBackToCatalogItems(t *testing.T) {
	f := newFixture(t)
	f.wallet.autoAuthorize = false

	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, Hooks{}))
	require.Equal(t, 1, f.wallet.presentCount())

	items := f.wallet.callbacks(0).ShippingMethodSelected(payment.ShippingMethod{Identifier: "standard"})
	require.NotEmpty(t, items)
	assert.Equal(t, "Total", items[0].Label)
	assert.Equal(t, int64(340), items[0].Amount)
}

func TestSessionReusableAfterTeardown(t *testing.T) {
	f := newFixture(t)

	rec1 := newSessionRecorder()
	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductCard, rec1.hooks()))
	rec1.waitFinished(t)

	rec2 := newSessionRecorder()
	require.NoError(t, f.orch.Start(context.Background(), catalog.ProductMembership, rec2.hooks()))
	rec2.waitFinished(t)

	require.Len(t, f.journal.Entries(), 2)
	assert.Equal(t, "membership", f.journal.Entries()[1].ProductID)
}
