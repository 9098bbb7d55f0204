// Package investment runs the offer workflow from proposal through escrow, agreement
// and payment to completion.
package investment

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/metrics"
	"ventureflow/internal/models"
	"ventureflow/internal/repositories"
	"ventureflow/internal/services/agreement"
	"ventureflow/internal/services/escrow"
	"ventureflow/internal/services/notification"
	"ventureflow/internal/services/payment"
)

// Service drives investment offers through their lifecycle.
type Service interface {
	Propose(ctx context.Context, input ProposeInput) (*models.InvestmentOffer, error)
	// Get returns the offer after applying any escrow outcome it has not yet seen.
	Get(ctx context.Context, id string) (*models.InvestmentOffer, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*models.InvestmentOffer, error)

	Accept(ctx context.Context, id, actorID string) (*models.InvestmentOffer, error)
	Decline(ctx context.Context, id, actorID, reason string) (*models.InvestmentOffer, error)
	GenerateAgreement(ctx context.Context, id, actorID string, parties agreement.Parties) (*models.AgreementDocument, error)
	Agreement(ctx context.Context, id string) (*models.AgreementDocument, error)
	Sign(ctx context.Context, id, actorID string) (*models.InvestmentOffer, error)

	InitiatePayment(ctx context.Context, id, actorID string, req PaymentRequest) (*payment.InitiateResult, error)
	HandlePaymentCallback(ctx context.Context, provider string, form url.Values) (*models.InvestmentOffer, error)
	// ConfirmBankTransfer lets the startup confirm receipt of an off-band transfer.
	ConfirmBankTransfer(ctx context.Context, id, actorID string) (*models.InvestmentOffer, error)

	escrow.OutcomeListener
}

type service struct {
	store     repositories.Store
	escrow    escrow.Service
	payments  payment.Service
	generator agreement.Generator
	notifier  Notifier
	metrics   metrics.Collector
	nowFn     func() time.Time
}

// Option customises the service.
type Option func(*service)

func WithNotifier(n Notifier) Option {
	return func(s *service) { s.notifier = n }
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *service) { s.metrics = m }
}

func WithClock(nowFn func() time.Time) Option {
	return func(s *service) { s.nowFn = nowFn }
}

// NewService builds the workflow and subscribes it to escrow outcomes.
func NewService(
	store repositories.Store,
	escrowSvc escrow.Service,
	paymentSvc payment.Service,
	generator agreement.Generator,
	opts ...Option,
) Service {
	if store == nil || escrowSvc == nil || paymentSvc == nil || generator == nil {
		panic("investment service requires a store, escrow, payment and agreement services")
	}
	s := &service{
		store:     store,
		escrow:    escrowSvc,
		payments:  paymentSvc,
		generator: generator,
		notifier:  noopNotifier{},
		metrics:   metrics.NoopCollector{},
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	escrowSvc.Subscribe(s)
	return s
}

func (s *service) now() time.Time {
	return s.nowFn().UTC()
}

func (s *service) Propose(ctx context.Context, input ProposeInput) (*models.InvestmentOffer, error) {
	if input.InvestorID == "" || input.StartupID == "" {
		return nil, apperrors.Validation("investor and startup are required")
	}
	if input.InvestorID == input.StartupID {
		return nil, apperrors.Validation("cannot invest in your own startup")
	}
	if err := agreement.ValidateTerms(input.Amount, input.EquityPercentage); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = "ZAR"
	}

	offer := &models.InvestmentOffer{
		StartupID:        input.StartupID,
		InvestorID:       input.InvestorID,
		Amount:           input.Amount,
		Currency:         currency,
		EquityPercentage: input.EquityPercentage,
		Status:           models.OfferStatusOffer,
	}
	if err := s.store.Offers().Create(ctx, offer); err != nil {
		return nil, err
	}

	s.metrics.RecordOfferTransition(string(models.OfferStatusOffer))
	log.Printf("[investment] offer %s proposed: investor=%s startup=%s amount=%s", offer.ID, offer.InvestorID, offer.StartupID, offer.Amount.StringFixed(2))
	s.notifier.Notify(notification.TemplateOfferReceived, vars(offer), offer.StartupID)
	return offer, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.InvestmentOffer, error) {
	return s.load(ctx, id)
}

func (s *service) List(ctx context.Context, userID string, limit, offset int) ([]*models.InvestmentOffer, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Offers().ListByUser(ctx, userID, limit, offset)
}

func (s *service) Accept(ctx context.Context, id, actorID string) (*models.InvestmentOffer, error) {
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != offer.StartupID {
		return nil, apperrors.Forbidden("only the startup can accept this offer")
	}
	if offer.Status != models.OfferStatusOffer {
		return nil, apperrors.StateConflict("offer is %s and cannot be accepted", offer.Status)
	}

	wallet, err := s.escrow.Create(ctx, escrow.CreateInput{
		OfferID:    &offer.ID,
		StartupID:  offer.StartupID,
		InvestorID: offer.InvestorID,
		Amount:     offer.Amount,
		Currency:   offer.Currency,
	})
	if err != nil {
		return nil, err
	}

	err = s.store.Offers().Transition(ctx, offer.ID, models.OfferStatusOffer, models.OfferStatusAccepted, map[string]interface{}{
		"escrow_wallet_id":  wallet.ID,
		"payment_intent_id": nil,
		"status_reason":     "",
	})
	if err != nil {
		if _, rerr := s.escrow.Reverse(ctx, wallet.ID, offer.StartupID); rerr != nil {
			log.Printf("[investment] reconciliation required: orphan escrow wallet %s for offer %s: %v", wallet.ID, offer.ID, rerr)
		}
		return nil, err
	}

	s.transitioned(offer, models.OfferStatusAccepted)
	s.notifier.Notify(notification.TemplateOfferAccepted, vars(offer), offer.InvestorID)
	return s.store.Offers().GetByID(ctx, offer.ID)
}

func (s *service) Decline(ctx context.Context, id, actorID, reason string) (*models.InvestmentOffer, error) {
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !offer.IsCounterparty(actorID) {
		return nil, apperrors.ErrNotCounterparty
	}
	if !offer.Status.CanAdvanceTo(models.OfferStatusDeclined) {
		return nil, apperrors.StateConflict("offer is %s and cannot be declined", offer.Status)
	}

	err = s.store.Offers().Transition(ctx, offer.ID, models.OfferStatusOffer, models.OfferStatusDeclined, map[string]interface{}{
		"status_reason": reason,
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(offer, models.OfferStatusDeclined)
	s.notifier.Notify(notification.TemplateOfferDeclined, vars(offer), offer.Counterparty(actorID))
	return s.store.Offers().GetByID(ctx, offer.ID)
}

func (s *service) GenerateAgreement(ctx context.Context, id, actorID string, parties agreement.Parties) (*models.AgreementDocument, error) {
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !offer.IsCounterparty(actorID) {
		return nil, apperrors.ErrNotCounterparty
	}
	if offer.Status != models.OfferStatusAccepted {
		return nil, apperrors.StateConflict("offer is %s, an agreement can only be drafted once accepted", offer.Status)
	}

	doc, err := s.generator.Generate(ctx, offer, parties)
	if err != nil {
		return nil, err
	}

	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Agreements().Upsert(ctx, doc); err != nil {
			return err
		}
		return tx.Offers().Transition(ctx, offer.ID, models.OfferStatusAccepted, models.OfferStatusAgreement, nil)
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(offer, models.OfferStatusAgreement)
	s.notifier.Notify(notification.TemplateAgreementReady, vars(offer), offer.InvestorID, offer.StartupID)
	return doc, nil
}

func (s *service) Agreement(ctx context.Context, id string) (*models.AgreementDocument, error) {
	return s.store.Agreements().GetByOfferID(ctx, id)
}

func (s *service) Sign(ctx context.Context, id, actorID string) (*models.InvestmentOffer, error) {
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !offer.IsCounterparty(actorID) {
		return nil, apperrors.ErrNotCounterparty
	}
	if offer.Status != models.OfferStatusAgreement {
		return nil, apperrors.StateConflict("offer is %s, there is no agreement awaiting signature", offer.Status)
	}

	doc, err := s.store.Agreements().GetByOfferID(ctx, offer.ID)
	if err != nil {
		return nil, err
	}
	if !doc.Matches(offer) || !agreement.Intact(doc) {
		return nil, apperrors.StateConflict("agreement no longer matches the offer terms")
	}

	fullySigned := false
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Agreements().MarkSigned(ctx, offer.ID, actorID == offer.InvestorID, s.now()); err != nil {
			return err
		}
		current, err := tx.Agreements().GetByOfferID(ctx, offer.ID)
		if err != nil {
			return err
		}
		if !current.FullySigned() {
			return nil
		}
		fullySigned = true
		return tx.Offers().Transition(ctx, offer.ID, models.OfferStatusAgreement, models.OfferStatusSigned, nil)
	})
	if err != nil {
		return nil, err
	}

	if fullySigned && offer.EscrowWalletID != nil {
		s.transitioned(offer, models.OfferStatusSigned)
		if _, err := s.escrow.CompleteRequirement(ctx, *offer.EscrowWalletID, escrow.RequirementAgreementSigned, escrow.SystemActor); err != nil {
			log.Printf("[investment] reconciliation required: offer %s signed but escrow %s not updated: %v", offer.ID, *offer.EscrowWalletID, err)
		}
	}
	s.notifier.Notify(notification.TemplateAgreementSigned, vars(offer), offer.Counterparty(actorID))
	return s.store.Offers().GetByID(ctx, offer.ID)
}

func (s *service) InitiatePayment(ctx context.Context, id, actorID string, req PaymentRequest) (*payment.InitiateResult, error) {
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != offer.InvestorID {
		return nil, apperrors.Forbidden("only the investor can pay for this offer")
	}
	if offer.Status != models.OfferStatusSigned && offer.Status != models.OfferStatusPayment {
		return nil, apperrors.StateConflict("offer is %s, payment requires a signed agreement", offer.Status)
	}
	if offer.EscrowWalletID == nil {
		return nil, apperrors.StateConflict("offer has no escrow wallet")
	}

	res, err := s.payments.Initiate(ctx, payment.InitiateInput{
		OfferID:        offer.ID,
		EscrowWalletID: *offer.EscrowWalletID,
		UserID:         offer.InvestorID,
		Amount:         offer.Amount,
		Currency:       offer.Currency,
		Provider:       req.Provider,
		ItemName:       req.ItemName,
		PayerName:      req.PayerName,
		PayerEmail:     req.PayerEmail,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	err = s.store.Offers().Transition(ctx, offer.ID, offer.Status, models.OfferStatusPayment, map[string]interface{}{
		"payment_intent_id": res.Intent.ID,
	})
	if err != nil {
		return nil, err
	}

	if offer.Status == models.OfferStatusSigned {
		s.transitioned(offer, models.OfferStatusPayment)
		s.notifier.Notify(notification.TemplatePaymentInitiated, vars(offer), offer.StartupID)
	}
	return res, nil
}

func (s *service) HandlePaymentCallback(ctx context.Context, provider string, form url.Values) (*models.InvestmentOffer, error) {
	cb, err := s.payments.HandleCallback(ctx, provider, form)
	if err != nil {
		return nil, err
	}
	offer, err := s.store.Offers().GetByID(ctx, cb.Intent.OfferID)
	if err != nil {
		return nil, err
	}
	if !cb.Changed {
		return offer, nil
	}

	switch cb.Intent.Status {
	case models.PaymentStatusCompleted:
		s.notifier.Notify(notification.TemplatePaymentReceived, vars(offer), offer.InvestorID, offer.StartupID)
		if err := s.settle(ctx, offer); err != nil {
			log.Printf("[investment] offer %s: payment captured but escrow not released: %v", offer.ID, err)
		}
	case models.PaymentStatusFailed:
		s.notifier.Notify(notification.TemplatePaymentFailed, vars(offer), offer.InvestorID)
	}
	return s.store.Offers().GetByID(ctx, offer.ID)
}

func (s *service) ConfirmBankTransfer(ctx context.Context, id, actorID string) (*models.InvestmentOffer, error) {
	offer, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != offer.StartupID {
		return nil, apperrors.Forbidden("only the startup can confirm receipt of a transfer")
	}
	if offer.Status != models.OfferStatusPayment {
		return nil, apperrors.StateConflict("offer is %s, there is no payment to confirm", offer.Status)
	}
	intent, err := s.payments.GetByOffer(ctx, offer.ID)
	if err != nil {
		return nil, err
	}
	if intent.Provider != models.ProviderBank || intent.Status != models.PaymentStatusPending {
		return nil, apperrors.StateConflict("only a pending bank transfer can be confirmed")
	}

	if err := s.settle(ctx, offer); err != nil {
		return nil, err
	}
	s.notifier.Notify(notification.TemplatePaymentReceived, vars(offer), offer.InvestorID, offer.StartupID)
	return s.store.Offers().GetByID(ctx, offer.ID)
}

// settle records the captured payment against the escrow and releases it when every
// condition holds. An unmet condition leaves the offer in payment.
func (s *service) settle(ctx context.Context, offer *models.InvestmentOffer) error {
	if offer.EscrowWalletID == nil {
		log.Printf("[investment] reconciliation required: payment for offer %s has no escrow wallet", offer.ID)
		return apperrors.StateConflict("offer has no escrow wallet")
	}
	walletID := *offer.EscrowWalletID

	reqs := []string{escrow.RequirementPaymentCaptured}
	if offer.Status == models.OfferStatusPayment {
		reqs = append([]string{escrow.RequirementAgreementSigned}, reqs...)
	}
	for _, r := range reqs {
		if _, err := s.escrow.CompleteRequirement(ctx, walletID, r, escrow.SystemActor); err != nil {
			log.Printf("[investment] reconciliation required: offer %s escrow %s rejected %s: %v", offer.ID, walletID, r, err)
			return err
		}
	}

	if _, err := s.escrow.Release(ctx, walletID, escrow.SystemActor); err != nil {
		if apperrors.Is(err, apperrors.ErrConditionNotMet) {
			log.Printf("[investment] offer %s: release condition not yet met", offer.ID)
			return nil
		}
		return err
	}
	return nil
}

// OnEscrowOutcome moves the offer forward on release and back to offer on reversal or
// expiry. Outcomes of an earlier acceptance cycle are ignored.
func (s *service) OnEscrowOutcome(ctx context.Context, outcome escrow.Outcome) error {
	if outcome.Wallet == nil || outcome.Wallet.OfferID == nil {
		return nil
	}
	offer, err := s.store.Offers().GetByID(ctx, *outcome.Wallet.OfferID)
	if err != nil {
		return err
	}
	return s.applyOutcome(ctx, offer, outcome.Wallet.ID, outcome.Status)
}

func (s *service) applyOutcome(ctx context.Context, offer *models.InvestmentOffer, walletID string, status models.EscrowStatus) error {
	for attempt := 0; attempt < 3; attempt++ {
		if !offer.Status.InEscrow() || offer.EscrowWalletID == nil || *offer.EscrowWalletID != walletID {
			return nil
		}

		var to models.OfferStatus
		var fields map[string]interface{}
		switch status {
		case models.EscrowStatusReleased:
			to = models.OfferStatusCompleted
			fields = map[string]interface{}{"status_reason": ""}
		case models.EscrowStatusExpired, models.EscrowStatusReversed:
			to = models.OfferStatusOffer
			reason := ReasonEscrowReversed
			if status == models.EscrowStatusExpired {
				reason = ReasonEscrowExpired
			}
			fields = map[string]interface{}{
				"escrow_wallet_id":  nil,
				"payment_intent_id": nil,
				"status_reason":     reason,
			}
		default:
			return nil
		}

		err := s.store.Offers().Transition(ctx, offer.ID, offer.Status, to, fields)
		if err == nil {
			s.transitioned(offer, to)
			if to == models.OfferStatusCompleted {
				s.notifier.Notify(notification.TemplateInvestmentCompleted, vars(offer), offer.InvestorID, offer.StartupID)
			} else {
				s.notifier.Notify(notification.TemplateEscrowLapsed, withReason(vars(offer), fields["status_reason"].(string)), offer.InvestorID, offer.StartupID)
			}
			return nil
		}
		if !apperrors.Is(err, apperrors.ErrStaleState) {
			return err
		}
		if offer, err = s.store.Offers().GetByID(ctx, offer.ID); err != nil {
			return err
		}
	}
	return apperrors.Stale("offer %s kept changing while applying escrow %s", offer.ID, status)
}

// load reads an offer and re-drives any escrow outcome it missed, including passive
// expiry of its wallet.
func (s *service) load(ctx context.Context, id string) (*models.InvestmentOffer, error) {
	offer, err := s.store.Offers().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !offer.Status.InEscrow() || offer.EscrowWalletID == nil {
		return offer, nil
	}

	wallet, err := s.escrow.Get(ctx, *offer.EscrowWalletID)
	if err != nil {
		return nil, err
	}
	if wallet.Status == models.EscrowStatusPending {
		return offer, nil
	}

	current, err := s.store.Offers().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyOutcome(ctx, current, wallet.ID, wallet.Status); err != nil {
		return nil, err
	}
	return s.store.Offers().GetByID(ctx, id)
}

func (s *service) transitioned(offer *models.InvestmentOffer, to models.OfferStatus) {
	s.metrics.RecordOfferTransition(string(to))
	log.Printf("[investment] offer %s: %s -> %s", offer.ID, offer.Status, to)
}

func vars(offer *models.InvestmentOffer) map[string]string {
	return map[string]string{
		"offer_id":   offer.ID,
		"amount":     offer.Amount.StringFixed(2),
		"currency":   offer.Currency,
		"equity":     offer.EquityPercentage.StringFixed(2),
		"startup_id": offer.StartupID,
	}
}

func withReason(v map[string]string, reason string) map[string]string {
	v["reason"] = reason
	return v
}
