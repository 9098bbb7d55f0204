// Package payment creates fraud-gated payment intents and applies verified
// provider callbacks.
package payment

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"ventureflow/internal/config"
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/metrics"
	"ventureflow/internal/models"
	"ventureflow/internal/repositories"
	"ventureflow/internal/services/fraud"
	"ventureflow/internal/services/gateway"
	"ventureflow/internal/services/signature"
)

var supportedCurrencies = map[string]bool{"ZAR": true, "USD": true}

type service struct {
	store     repositories.Store
	providers ProviderRegistry
	fraud     FraudAssessor
	cfg       config.PaymentsConfig
	metrics   metrics.Collector
	nowFn     func() time.Time
}

// Option customises the service.
type Option func(*service)

func WithClock(nowFn func() time.Time) Option {
	return func(s *service) { s.nowFn = nowFn }
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *service) { s.metrics = m }
}

// NewService creates a new payment service
func NewService(
	store repositories.Store,
	providers ProviderRegistry,
	fraudSvc FraudAssessor,
	cfg config.PaymentsConfig,
	opts ...Option,
) Service {
	if store == nil || providers == nil || fraudSvc == nil {
		panic("payment service requires a store, a provider registry and a fraud assessor")
	}
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = 2 * time.Hour
	}
	if cfg.DefaultItemLabel == "" {
		cfg.DefaultItemLabel = "Investment"
	}
	s := &service{
		store:     store,
		providers: providers,
		fraud:     fraudSvc,
		cfg:       cfg,
		metrics:   metrics.NoopCollector{},
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) now() time.Time {
	return s.nowFn().UTC()
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("payment.initiate", time.Since(start)) }()

	if input.OfferID == "" || input.UserID == "" {
		return nil, apperrors.Validation("offer and user are required")
	}
	if !input.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = strings.ToUpper(s.cfg.Currency)
	}
	if !supportedCurrencies[currency] {
		return nil, apperrors.Validation("currency %q is not supported", input.Currency)
	}
	provider, err := s.providers.Get(input.Provider)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Payments().GetByOfferID(ctx, input.OfferID)
	if err != nil && !apperrors.Is(err, apperrors.ErrPaymentNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.PaymentStatusCompleted {
			return nil, apperrors.StateConflict("payment for this offer has already been captured")
		}
		if !existing.Amount.Equal(input.Amount) {
			return nil, apperrors.StateConflict("payment amount does not match the existing intent")
		}
	}

	assessment, err := s.fraud.Assess(ctx, fraud.Attempt{
		UserID:    input.UserID,
		Amount:    input.Amount,
		Currency:  currency,
		Provider:  provider.Name(),
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Timestamp: s.now(),
	})
	if err != nil {
		return nil, err
	}
	if assessment.Rejected() {
		s.metrics.RecordError("payment.initiate", apperrors.CodeFraudRejected)
		log.Printf("[payment] offer %s: payment blocked by risk assessment (score=%.2f)", input.OfferID, assessment.Score)
		return nil, apperrors.ErrFraudRejected
	}

	intent := existing
	if intent == nil {
		intent, err = s.create(ctx, input, currency, provider.Name())
		if err != nil {
			return nil, err
		}
	} else if err := s.reopen(ctx, intent, input.EscrowWalletID); err != nil {
		return nil, err
	}

	itemName := input.ItemName
	if itemName == "" {
		itemName = s.cfg.DefaultItemLabel
	}
	redirect, err := provider.CreatePayment(ctx, gateway.Request{
		IntentID:   intent.ID,
		Reference:  input.OfferID,
		Amount:     input.Amount,
		Currency:   currency,
		ItemName:   itemName,
		PayerName:  input.PayerName,
		PayerEmail: input.PayerEmail,
		CustomStr:  []string{intent.ID},
	})
	if err != nil {
		s.metrics.RecordError("payment.initiate", "PROVIDER_ERROR")
		return nil, err
	}

	intent.Provider = provider.Name()
	intent.PaymentURL = redirect.URL
	intent.Reference = redirect.Reference
	intent.Instructions = instructions(redirect.Instructions)
	intent.IPAddress = input.IPAddress
	intent.UserAgent = input.UserAgent
	if err := s.store.Payments().RecordAttempt(ctx, intent); err != nil {
		return nil, err
	}
	intent.Attempts++

	s.metrics.RecordPaymentIntent(intent.Provider, string(intent.Status))
	log.Printf("[payment] intent %s for offer %s via %s (attempt %d, risk %s)", intent.ID, input.OfferID, intent.Provider, intent.Attempts, assessment.Risk)
	return &InitiateResult{Intent: intent, Redirect: redirect, Assessment: assessment}, nil
}

// create stores a new intent and pairs it with the escrow wallet in one transaction.
func (s *service) create(ctx context.Context, input InitiateInput, currency, provider string) (*models.PaymentIntent, error) {
	now := s.now()
	intent := &models.PaymentIntent{
		OfferID:   input.OfferID,
		UserID:    input.UserID,
		Amount:    input.Amount,
		Currency:  currency,
		Provider:  provider,
		Status:    models.PaymentStatusPending,
		Reference: input.OfferID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Payments().Create(ctx, intent); err != nil {
			return err
		}
		if input.EscrowWalletID == "" {
			return nil
		}
		return tx.Escrow().SetPaymentIntent(ctx, input.EscrowWalletID, intent.ID)
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrStateConflict) {
			return nil, err
		}
		if _, getErr := s.store.Payments().GetByOfferID(ctx, input.OfferID); getErr == nil {
			return nil, apperrors.Stale("payment for offer %s is already being initiated", input.OfferID)
		}
		return nil, err
	}
	return intent, nil
}

// reopen moves a reused intent back to pending and attaches it to the current
// escrow wallet, if any, in one transaction.
func (s *service) reopen(ctx context.Context, intent *models.PaymentIntent, walletID string) error {
	return s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if intent.Status != models.PaymentStatusPending {
			if err := tx.Payments().TransitionStatus(ctx, intent.ID, []models.PaymentStatus{intent.Status}, models.PaymentStatusPending); err != nil {
				return err
			}
		}
		if walletID != "" {
			if err := tx.Escrow().SetPaymentIntent(ctx, walletID, intent.ID); err != nil {
				return err
			}
		}
		intent.Status = models.PaymentStatusPending
		return nil
	})
}

func (s *service) HandleCallback(ctx context.Context, providerName string, form url.Values) (*CallbackResult, error) {
	params, err := signature.FromValues(form)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	parser, ok := provider.(NotificationParser)
	if !ok {
		return nil, apperrors.Validation("provider %s does not send notifications", provider.Name())
	}

	verified, err := provider.VerifyPayment(ctx, params)
	if err != nil {
		return nil, err
	}
	if !verified {
		s.metrics.RecordError("payment.callback", apperrors.CodeSignatureMismatch)
		log.Printf("[security] %s notification rejected: signature mismatch for m_payment_id=%q", provider.Name(), params["m_payment_id"])
		return nil, apperrors.ErrSignatureMismatch
	}

	n, err := parser.ParseNotification(params)
	if err != nil {
		return nil, err
	}
	intent, err := s.store.Payments().GetByOfferID(ctx, n.Reference)
	if err != nil {
		return nil, err
	}
	target, from := callbackTransition(n.Status)
	if target == models.PaymentStatusCompleted && n.AmountGross.IsZero() {
		log.Printf("[security] %s completion for offer %s carries no amount", provider.Name(), n.Reference)
		return nil, apperrors.Validation("completed notification must carry the paid amount")
	}
	if !n.AmountGross.IsZero() && !n.AmountGross.Equal(intent.Amount) {
		log.Printf("[security] %s notification for offer %s carries amount %s, expected %s", provider.Name(), n.Reference, n.AmountGross.StringFixed(2), intent.Amount.StringFixed(2))
		return nil, apperrors.Validation("notification amount does not match the payment")
	}

	if target == "" || intent.Status == target {
		return &CallbackResult{Intent: intent}, nil
	}
	if !containsStatus(from, intent.Status) {
		if target == models.PaymentStatusCompleted && intent.Status == models.PaymentStatusCancelled {
			log.Printf("[payment] reconciliation required: payment captured for cancelled intent %s (offer %s): refund required", intent.ID, intent.OfferID)
		} else {
			log.Printf("[payment] ignoring %s notification for intent %s in status %s", n.Status, intent.ID, intent.Status)
		}
		return &CallbackResult{Intent: intent}, nil
	}

	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Payments().TransitionStatus(ctx, intent.ID, from, target); err != nil {
			return err
		}
		if n.ProviderPaymentID == "" {
			return nil
		}
		return tx.Payments().SetProviderPaymentID(ctx, intent.ID, n.ProviderPaymentID)
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrStaleState) {
			current, getErr := s.store.Payments().GetByID(ctx, intent.ID)
			if getErr != nil {
				return nil, getErr
			}
			return &CallbackResult{Intent: current}, nil
		}
		return nil, err
	}

	intent.Status = target
	if n.ProviderPaymentID != "" {
		intent.ProviderPaymentID = n.ProviderPaymentID
	}
	s.metrics.RecordPaymentIntent(intent.Provider, string(target))
	log.Printf("[payment] intent %s for offer %s is now %s", intent.ID, intent.OfferID, target)
	return &CallbackResult{Intent: intent, Changed: true}, nil
}

// callbackTransition maps a provider status to the intent status it sets and the
// statuses it may be applied to. A cancelled checkout is a retryable failure;
// cancelled intents belong to escrow and expiry.
func callbackTransition(status models.PaymentStatus) (models.PaymentStatus, []models.PaymentStatus) {
	switch status {
	case models.PaymentStatusCompleted:
		return models.PaymentStatusCompleted, []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusFailed}
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		return models.PaymentStatusFailed, []models.PaymentStatus{models.PaymentStatusPending}
	default:
		return "", nil
	}
}

func containsStatus(list []models.PaymentStatus, s models.PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *service) Get(ctx context.Context, id string) (*models.PaymentIntent, error) {
	return s.store.Payments().GetByID(ctx, id)
}

func (s *service) GetByOffer(ctx context.Context, offerID string) (*models.PaymentIntent, error) {
	return s.store.Payments().GetByOfferID(ctx, offerID)
}

func (s *service) ProviderStatus(ctx context.Context, id string) (models.PaymentStatus, error) {
	intent, err := s.store.Payments().GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if intent.ProviderPaymentID == "" {
		return intent.Status, nil
	}
	provider, err := s.providers.Get(intent.Provider)
	if err != nil {
		return "", err
	}
	return provider.GetPaymentStatus(ctx, intent.ProviderPaymentID)
}

func (s *service) ExpireStale(ctx context.Context, limit int) (int, error) {
	intents, err := s.store.Payments().ListStalePending(ctx, s.now().Add(-s.cfg.IntentTTL), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, intent := range intents {
		// Bank transfers settle off-band and stay open until their escrow closes.
		if intent.Provider == models.ProviderBank {
			continue
		}
		err := s.store.Payments().TransitionStatus(ctx, intent.ID, []models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusCancelled)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrStaleState) {
				continue
			}
			log.Printf("[payment] failed to cancel stale intent %s: %v", intent.ID, err)
			continue
		}
		s.metrics.RecordPaymentIntent(intent.Provider, string(models.PaymentStatusCancelled))
		expired++
	}
	if expired > 0 {
		log.Printf("[payment] cancelled %d stale intent(s)", expired)
	}
	return expired, nil
}

func instructions(in map[string]string) models.JSON {
	if len(in) == 0 {
		return nil
	}
	out := make(models.JSON, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
