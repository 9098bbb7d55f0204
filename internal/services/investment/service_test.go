package investment

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"ventureflow/internal/config"
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
	"ventureflow/internal/repositories"
	"ventureflow/internal/services/agreement"
	"ventureflow/internal/services/escrow"
	"ventureflow/internal/services/fraud"
	"ventureflow/internal/services/gateway"
	"ventureflow/internal/services/notification"
	"ventureflow/internal/services/payment"
	"ventureflow/internal/services/signature"
	"ventureflow/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passphrase = "jt7NOE43FZPn"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Millisecond)
	return t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedAssessor struct {
	risk models.RiskLevel
}

func (a *fixedAssessor) Assess(ctx context.Context, attempt fraud.Attempt) (*fraud.Assessment, error) {
	score := 0.0
	if a.risk == models.RiskHigh {
		score = 80
	}
	return &fraud.Assessment{Score: score, Risk: a.risk, Reasons: []string{}}, nil
}

type sentMessage struct {
	template string
	users    []string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) Notify(template string, vars map[string]string, userIDs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{template: template, users: userIDs})
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		out = append(out, m.template)
	}
	return out
}

type fixture struct {
	store    repositories.Store
	clock    *clock
	escrow   escrow.Service
	payments payment.Service
	svc      Service
	assessor *fixedAssessor
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	store := testutil.NewStore(t)
	c := &clock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}

	registry := gateway.NewRegistry()
	require.NoError(t, registry.Register(gateway.NewPayFast(config.PayFastConfig{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		Passphrase:  passphrase,
		Sandbox:     true,
		Timeout:     time.Second,
	})))
	require.NoError(t, registry.Register(gateway.NewBankTransfer(config.BankConfig{AccountNumber: "123"})))

	assessor := &fixedAssessor{risk: models.RiskLow}
	escrowSvc := escrow.NewService(store, config.EscrowConfig{DefaultTTL: 72 * time.Hour}, escrow.WithClock(c.Now))
	paymentSvc := payment.NewService(store, registry, assessor, config.PaymentsConfig{Currency: "ZAR"}, payment.WithClock(c.Now))
	notifier := &recordingNotifier{}

	svc := NewService(store, escrowSvc, paymentSvc, agreement.NewGenerator(agreement.WithClock(c.Now)),
		WithNotifier(notifier), WithClock(c.Now))

	return &fixture{
		store:    store,
		clock:    c,
		escrow:   escrowSvc,
		payments: paymentSvc,
		svc:      svc,
		assessor: assessor,
		notifier: notifier,
	}
}

const (
	investor = "investor-1"
	startup  = "startup-1"
)

func (f *fixture) propose(t *testing.T) *models.InvestmentOffer {
	offer, err := f.svc.Propose(context.Background(), ProposeInput{
		InvestorID:       investor,
		StartupID:        startup,
		Amount:           decimal.NewFromInt(1500),
		Currency:         "zar",
		EquityPercentage: decimal.RequireFromString("2.5"),
	})
	require.NoError(t, err)
	return offer
}

// signed drives a fresh offer up to a fully signed agreement.
func (f *fixture) signed(t *testing.T) *models.InvestmentOffer {
	ctx := context.Background()
	offer := f.propose(t)

	_, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)
	_, err = f.svc.GenerateAgreement(ctx, offer.ID, investor, agreement.Parties{StartupName: "Acme"})
	require.NoError(t, err)
	_, err = f.svc.Sign(ctx, offer.ID, investor)
	require.NoError(t, err)
	offer, err = f.svc.Sign(ctx, offer.ID, startup)
	require.NoError(t, err)
	require.Equal(t, models.OfferStatusSigned, offer.Status)
	return offer
}

func itn(offerID, status string) url.Values {
	fields := map[string]string{
		"m_payment_id":   offerID,
		"pf_payment_id":  "1089250",
		"payment_status": status,
		"amount_gross":   "1500.00",
	}
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set(signature.Field, signature.Sign(fields, passphrase))
	return form
}

func payFast() PaymentRequest {
	return PaymentRequest{Provider: models.ProviderPayFast, PayerName: "Jane Doe", IPAddress: "196.21.0.1"}
}

func TestPropose_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input ProposeInput
	}{
		{"zero amount", ProposeInput{InvestorID: investor, StartupID: startup, Amount: decimal.Zero, EquityPercentage: decimal.NewFromInt(5)}},
		{"zero equity", ProposeInput{InvestorID: investor, StartupID: startup, Amount: decimal.NewFromInt(5), EquityPercentage: decimal.Zero}},
		{"equity above 100", ProposeInput{InvestorID: investor, StartupID: startup, Amount: decimal.NewFromInt(5), EquityPercentage: decimal.NewFromInt(101)}},
		{"own startup", ProposeInput{InvestorID: investor, StartupID: investor, Amount: decimal.NewFromInt(5), EquityPercentage: decimal.NewFromInt(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Propose(ctx, tt.input)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
		})
	}
}

func TestFullFlow_PayFast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer := f.propose(t)
	assert.Equal(t, models.OfferStatusOffer, offer.Status)
	assert.Equal(t, "ZAR", offer.Currency)

	accepted, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.EscrowWalletID)
	walletID := *accepted.EscrowWalletID

	doc, err := f.svc.GenerateAgreement(ctx, offer.ID, startup, agreement.Parties{StartupName: "Acme", InvestorName: "Jane Doe"})
	require.NoError(t, err)
	assert.True(t, doc.Amount.Equal(offer.Amount))

	afterFirst, err := f.svc.Sign(ctx, offer.ID, investor)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAgreement, afterFirst.Status)

	signedOffer, err := f.svc.Sign(ctx, offer.ID, startup)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusSigned, signedOffer.Status)

	reqs, err := f.escrow.Requirements(ctx, walletID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, escrow.RequirementAgreementSigned, reqs[0].Requirement)

	res, err := f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	require.NoError(t, err)
	assert.Contains(t, res.Redirect.URL, "m_payment_id="+offer.ID)

	inPayment, err := f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPayment, inPayment.Status)
	require.NotNil(t, inPayment.PaymentIntentID)
	assert.Equal(t, res.Intent.ID, *inPayment.PaymentIntentID)

	completed, err := f.svc.HandlePaymentCallback(ctx, models.ProviderPayFast, itn(offer.ID, "COMPLETE"))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusCompleted, completed.Status)

	wallet, err := f.escrow.Get(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, wallet.Status)
	assert.Equal(t, escrow.SystemActor, wallet.ClosedBy)

	intent, err := f.payments.Get(ctx, res.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, intent.Status)

	assert.Contains(t, f.notifier.templates(), notification.TemplateInvestmentCompleted)

	again, err := f.svc.HandlePaymentCallback(ctx, models.ProviderPayFast, itn(offer.ID, "COMPLETE"))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusCompleted, again.Status)
}

func TestAcceptAndDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.propose(t)

	_, err := f.svc.Accept(ctx, offer.ID, investor)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = f.svc.Decline(ctx, offer.ID, "someone-else", "")
	assert.ErrorIs(t, err, apperrors.ErrNotCounterparty)

	declined, err := f.svc.Decline(ctx, offer.ID, startup, "valuation too low")
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusDeclined, declined.Status)
	assert.Equal(t, "valuation too low", declined.StatusReason)

	_, err = f.svc.Accept(ctx, offer.ID, startup)
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
	_, err = f.svc.Decline(ctx, offer.ID, startup, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
}

func TestDecline_OnlyFromOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.propose(t)
	_, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)

	_, err = f.svc.Decline(ctx, offer.ID, investor, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
}

func TestOutOfOrderSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.propose(t)

	_, err := f.svc.GenerateAgreement(ctx, offer.ID, investor, agreement.Parties{})
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
	_, err = f.svc.Sign(ctx, offer.ID, investor)
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
	_, err = f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
}

func TestEscrowExpiry_ReturnsOfferToOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.propose(t)
	accepted, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)
	firstWallet := *accepted.EscrowWalletID

	f.clock.Advance(73 * time.Hour)

	lapsed, err := f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusOffer, lapsed.Status)
	assert.Equal(t, ReasonEscrowExpired, lapsed.StatusReason)
	assert.Nil(t, lapsed.EscrowWalletID)
	assert.Contains(t, f.notifier.templates(), notification.TemplateEscrowLapsed)

	wallet, err := f.escrow.Get(ctx, firstWallet)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusExpired, wallet.Status)

	again, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAccepted, again.Status)
	require.NotNil(t, again.EscrowWalletID)
	assert.NotEqual(t, firstWallet, *again.EscrowWalletID)
	assert.Empty(t, again.StatusReason)
}

func TestEscrowReversal_CancelsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.signed(t)
	res, err := f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	require.NoError(t, err)

	_, err = f.escrow.Reverse(ctx, *offer.EscrowWalletID, investor)
	require.NoError(t, err)

	current, err := f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusOffer, current.Status)
	assert.Equal(t, ReasonEscrowReversed, current.StatusReason)
	assert.Nil(t, current.PaymentIntentID)

	intent, err := f.payments.Get(ctx, res.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, intent.Status)

	late, err := f.svc.HandlePaymentCallback(ctx, models.ProviderPayFast, itn(offer.ID, "COMPLETE"))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusOffer, late.Status)
}

func TestStaleOutcomeIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.propose(t)
	accepted, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)

	old := &models.EscrowWallet{ID: "previous-cycle", OfferID: &offer.ID}
	require.NoError(t, f.svc.OnEscrowOutcome(ctx, escrow.Outcome{Wallet: old, Status: models.EscrowStatusExpired}))

	current, err := f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAccepted, current.Status)
	assert.Equal(t, *accepted.EscrowWalletID, *current.EscrowWalletID)
}

func TestInitiatePayment_FraudRejectionLeavesOfferSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.signed(t)
	f.assessor.risk = models.RiskHigh

	_, err := f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	assert.ErrorIs(t, err, apperrors.ErrFraudRejected)

	current, err := f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusSigned, current.Status)
	assert.Nil(t, current.PaymentIntentID)
}

func TestInitiatePayment_OnlyInvestor(t *testing.T) {
	f := newFixture(t)
	offer := f.signed(t)

	_, err := f.svc.InitiatePayment(context.Background(), offer.ID, startup, payFast())
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestHandlePaymentCallback_SignatureMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.signed(t)
	_, err := f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	require.NoError(t, err)

	form := itn(offer.ID, "COMPLETE")
	form.Set("signature", "00000000000000000000000000000000")
	_, err = f.svc.HandlePaymentCallback(ctx, models.ProviderPayFast, form)
	assert.ErrorIs(t, err, apperrors.ErrSignatureMismatch)

	current, err := f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPayment, current.Status)
}

func TestHandlePaymentCallback_FailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.signed(t)
	first, err := f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	require.NoError(t, err)

	current, err := f.svc.HandlePaymentCallback(ctx, models.ProviderPayFast, itn(offer.ID, "FAILED"))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPayment, current.Status)
	assert.Contains(t, f.notifier.templates(), notification.TemplatePaymentFailed)

	retry, err := f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	require.NoError(t, err)
	assert.Equal(t, first.Intent.ID, retry.Intent.ID)

	done, err := f.svc.HandlePaymentCallback(ctx, models.ProviderPayFast, itn(offer.ID, "COMPLETE"))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusCompleted, done.Status)
}

func TestConfirmBankTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.signed(t)
	res, err := f.svc.InitiatePayment(ctx, offer.ID, investor, PaymentRequest{Provider: models.ProviderBank})
	require.NoError(t, err)
	assert.Regexp(t, `^BANK-`, res.Intent.Reference)

	_, err = f.svc.ConfirmBankTransfer(ctx, offer.ID, investor)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	done, err := f.svc.ConfirmBankTransfer(ctx, offer.ID, startup)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusCompleted, done.Status)

	intent, err := f.payments.Get(ctx, res.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, intent.Status)
}

func TestBankTransfer_InvestorCannotSelfRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.signed(t)
	res, err := f.svc.InitiatePayment(ctx, offer.ID, investor, PaymentRequest{Provider: models.ProviderBank})
	require.NoError(t, err)

	current, err := f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, current.EscrowWalletID)
	walletID := *current.EscrowWalletID

	_, err = f.escrow.CompleteRequirement(ctx, walletID, escrow.RequirementPaymentCaptured, investor)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = f.escrow.Release(ctx, walletID, investor)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))

	current, err = f.svc.Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPayment, current.Status)

	wallet, err := f.escrow.Get(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusPending, wallet.Status)

	intent, err := f.payments.Get(ctx, res.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, intent.Status)
}

func TestConfirmBankTransfer_RejectsOnlinePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.signed(t)
	_, err := f.svc.InitiatePayment(ctx, offer.ID, investor, payFast())
	require.NoError(t, err)

	_, err = f.svc.ConfirmBankTransfer(ctx, offer.ID, startup)
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
}

func TestSign_RejectsDivergedTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.propose(t)
	_, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)
	doc, err := f.svc.GenerateAgreement(ctx, offer.ID, investor, agreement.Parties{})
	require.NoError(t, err)

	doc.Amount = decimal.NewFromInt(999)
	require.NoError(t, f.store.Agreements().Upsert(ctx, doc))

	_, err = f.svc.Sign(ctx, offer.ID, investor)
	assert.True(t, apperrors.Is(err, apperrors.ErrStateConflict))
}

func TestSign_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.propose(t)
	_, err := f.svc.Accept(ctx, offer.ID, startup)
	require.NoError(t, err)
	_, err = f.svc.GenerateAgreement(ctx, offer.ID, investor, agreement.Parties{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		current, err := f.svc.Sign(ctx, offer.ID, investor)
		require.NoError(t, err)
		assert.Equal(t, models.OfferStatusAgreement, current.Status)
	}

	doc, err := f.svc.Agreement(ctx, offer.ID)
	require.NoError(t, err)
	assert.NotNil(t, doc.InvestorSignedAt)
	assert.Nil(t, doc.StartupSignedAt)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.propose(t)
	f.propose(t)

	offers, err := f.svc.List(context.Background(), startup, 0, 0)
	require.NoError(t, err)
	assert.Len(t, offers, 2)

	offers, err = f.svc.List(context.Background(), "nobody", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, offers)
}
