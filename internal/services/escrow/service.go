// Package escrow owns the escrow wallet lifecycle: creation, time-bound expiry,
// conditional release and reversal.
package escrow

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"ventureflow/internal/config"
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/metrics"
	"ventureflow/internal/models"
	"ventureflow/internal/repositories"
)

// Service manages escrow wallets.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.EscrowWallet, error)
	// Get returns the wallet, expiring it first if its window has lapsed.
	Get(ctx context.Context, id string) (*models.EscrowWallet, error)
	Release(ctx context.Context, id, actorID string) (*models.EscrowWallet, error)
	Reverse(ctx context.Context, id, actorID string) (*models.EscrowWallet, error)
	// Sweep expires up to limit lapsed wallets and returns how many it expired.
	Sweep(ctx context.Context, limit int) (int, error)

	AttachPayment(ctx context.Context, walletID, intentID string) error
	CompleteRequirement(ctx context.Context, walletID, requirement, actorID string) (*models.EscrowRequirement, error)
	Requirements(ctx context.Context, walletID string) ([]*models.EscrowRequirement, error)
	Ledger(ctx context.Context, walletID string) ([]*models.EscrowLedgerEntry, error)
	Progress(w *models.EscrowWallet) Progress

	Subscribe(l OutcomeListener)
}

type service struct {
	store   repositories.Store
	cfg     config.EscrowConfig
	metrics metrics.Collector
	nowFn   func() time.Time

	mu        sync.RWMutex
	listeners []OutcomeListener
}

// Option customises the service.
type Option func(*service)

func WithClock(nowFn func() time.Time) Option {
	return func(s *service) { s.nowFn = nowFn }
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *service) { s.metrics = m }
}

func NewService(store repositories.Store, cfg config.EscrowConfig, opts ...Option) Service {
	if store == nil {
		panic("store is required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 72 * time.Hour
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	s := &service{
		store:   store,
		cfg:     cfg,
		metrics: metrics.NoopCollector{},
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) now() time.Time {
	return s.nowFn().UTC()
}

func (s *service) Subscribe(l OutcomeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.EscrowWallet, error) {
	if !input.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if input.StartupID == "" || input.InvestorID == "" {
		return nil, apperrors.Validation("startup and investor are required")
	}
	if input.StartupID == input.InvestorID {
		return nil, apperrors.Validation("startup and investor must differ")
	}
	if input.TTL < 0 {
		return nil, apperrors.Validation("ttl must be positive")
	}

	condition := DefaultCondition()
	if input.Condition != nil {
		condition = *input.Condition
	}
	if err := validateCondition(condition); err != nil {
		return nil, err
	}

	ttl := input.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = "ZAR"
	}

	now := s.now()
	wallet := &models.EscrowWallet{
		OfferID:    input.OfferID,
		StartupID:  input.StartupID,
		InvestorID: input.InvestorID,
		Amount:     input.Amount,
		Currency:   currency,
		Status:     models.EscrowStatusPending,
		Condition:  condition,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		UpdatedAt:  now,
	}

	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Escrow().Create(ctx, wallet); err != nil {
			return err
		}
		return tx.Escrow().AppendLedgerEntry(ctx, s.entry(wallet, models.LedgerEntryHold, input.InvestorID, now))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordEscrowTransition(string(models.EscrowStatusPending))
	log.Printf("[escrow] wallet %s created: amount=%s %s expires=%s", wallet.ID, wallet.Amount.StringFixed(2), wallet.Currency, wallet.ExpiresAt.Format(time.RFC3339))
	return wallet, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.EscrowWallet, error) {
	wallet, err := s.store.Escrow().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wallet.Status != models.EscrowStatusPending || s.now().Before(wallet.ExpiresAt) {
		return wallet, nil
	}

	if _, err := s.expire(ctx, wallet); err != nil && !apperrors.Is(err, apperrors.ErrStaleState) {
		return nil, err
	}
	return s.store.Escrow().GetByID(ctx, id)
}

func (s *service) Release(ctx context.Context, id, actorID string) (*models.EscrowWallet, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("escrow.release", time.Since(start)) }()

	wallet, err := s.pendingWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != SystemActor && !wallet.IsCounterparty(actorID) {
		return nil, apperrors.ErrNotCounterparty
	}

	now := s.now()
	reqs, err := s.store.Escrow().ListRequirements(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	if !conditionMet(wallet.Condition, reqs, now) {
		return nil, apperrors.ErrConditionNotMet
	}

	var intent *models.PaymentIntent
	if wallet.PaymentIntentID != nil {
		intent, err = s.store.Payments().GetByID(ctx, *wallet.PaymentIntentID)
		if err != nil {
			return nil, err
		}
	}
	if !paymentReleasable(wallet, intent, actorID) {
		return nil, apperrors.ErrPaymentNotCaptured
	}

	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Escrow().TransitionStatus(ctx, wallet.ID, models.EscrowStatusPending, models.EscrowStatusReleased, actorID, now); err != nil {
			return err
		}
		if intent != nil && intent.Status == models.PaymentStatusPending {
			if err := tx.Payments().TransitionStatus(ctx, intent.ID, []models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusCompleted); err != nil {
				return err
			}
		}
		return tx.Escrow().AppendLedgerEntry(ctx, s.entry(wallet, models.LedgerEntryRelease, actorID, now))
	})
	if err != nil {
		s.metrics.RecordError("escrow.release", errorCode(err))
		return nil, err
	}

	return s.closed(ctx, wallet, models.EscrowStatusReleased, actorID, now), nil
}

func (s *service) Reverse(ctx context.Context, id, actorID string) (*models.EscrowWallet, error) {
	wallet, err := s.pendingWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !wallet.IsCounterparty(actorID) {
		return nil, apperrors.ErrNotCounterparty
	}

	now := s.now()
	if err := s.cancel(ctx, wallet, models.EscrowStatusReversed, models.LedgerEntryReversal, actorID, now); err != nil {
		s.metrics.RecordError("escrow.reverse", errorCode(err))
		return nil, err
	}
	return s.closed(ctx, wallet, models.EscrowStatusReversed, actorID, now), nil
}

func (s *service) Sweep(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.cfg.SweepBatch
	}
	wallets, err := s.store.Escrow().ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, w := range wallets {
		ok, err := s.expire(ctx, w)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrStaleState) {
				continue
			}
			log.Printf("[escrow] sweep failed to expire wallet %s: %v", w.ID, err)
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		log.Printf("[escrow] sweep expired %d wallet(s)", expired)
	}
	return expired, nil
}

func (s *service) AttachPayment(ctx context.Context, walletID, intentID string) error {
	wallet, err := s.pendingWallet(ctx, walletID)
	if err != nil {
		return err
	}
	if wallet.PaymentIntentID != nil && *wallet.PaymentIntentID == intentID {
		return nil
	}
	return s.store.Escrow().SetPaymentIntent(ctx, walletID, intentID)
}

func (s *service) CompleteRequirement(ctx context.Context, walletID, requirement, actorID string) (*models.EscrowRequirement, error) {
	wallet, err := s.pendingWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if actorID != SystemActor && !wallet.IsCounterparty(actorID) {
		return nil, apperrors.ErrNotCounterparty
	}
	// An offer's wallet records signing and capture from the investment flow only.
	if wallet.OfferID != nil && actorID != SystemActor {
		return nil, apperrors.Forbidden("requirements of an investment escrow are recorded by the investment flow")
	}
	if !wallet.Condition.Requirements.Contains(requirement) {
		return nil, apperrors.Validation("%q is not a requirement of this escrow", requirement)
	}

	req := &models.EscrowRequirement{
		WalletID:    walletID,
		Requirement: requirement,
		CompletedBy: actorID,
		CompletedAt: s.now(),
	}
	if err := s.store.Escrow().CompleteRequirement(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *service) Requirements(ctx context.Context, walletID string) ([]*models.EscrowRequirement, error) {
	return s.store.Escrow().ListRequirements(ctx, walletID)
}

func (s *service) Ledger(ctx context.Context, walletID string) ([]*models.EscrowLedgerEntry, error) {
	return s.store.Escrow().ListLedgerEntries(ctx, walletID)
}

func (s *service) Progress(w *models.EscrowWallet) Progress {
	return ProgressAt(w, s.now())
}

// pendingWallet loads a wallet that must still be pending, expiring it when its
// window has lapsed.
func (s *service) pendingWallet(ctx context.Context, id string) (*models.EscrowWallet, error) {
	wallet, err := s.store.Escrow().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wallet.Status != models.EscrowStatusPending {
		return nil, apperrors.ErrWalletClosed
	}
	if !s.now().Before(wallet.ExpiresAt) {
		if _, err := s.expire(ctx, wallet); err != nil && !apperrors.Is(err, apperrors.ErrStaleState) {
			return nil, err
		}
		return nil, apperrors.ErrWalletExpired
	}
	return wallet, nil
}

// expire moves a lapsed wallet to expired. It reports false without error when the
// wallet was not pending.
func (s *service) expire(ctx context.Context, wallet *models.EscrowWallet) (bool, error) {
	if wallet.Status != models.EscrowStatusPending {
		return false, nil
	}
	now := s.now()
	if err := s.cancel(ctx, wallet, models.EscrowStatusExpired, models.LedgerEntryExpiry, SystemActor, now); err != nil {
		return false, err
	}
	s.closed(ctx, wallet, models.EscrowStatusExpired, SystemActor, now)
	return true, nil
}

// cancel closes the wallet without releasing funds and cancels the paired intent in
// the same transaction.
func (s *service) cancel(ctx context.Context, wallet *models.EscrowWallet, to models.EscrowStatus, entryType models.LedgerEntryType, actorID string, now time.Time) error {
	return s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Escrow().TransitionStatus(ctx, wallet.ID, models.EscrowStatusPending, to, actorID, now); err != nil {
			return err
		}
		if wallet.PaymentIntentID != nil {
			intent, err := tx.Payments().GetByID(ctx, *wallet.PaymentIntentID)
			if err != nil {
				return err
			}
			if intent.Status != models.PaymentStatusCancelled {
				if intent.Status == models.PaymentStatusCompleted {
					log.Printf("[escrow] wallet %s %s after payment %s was captured: refund required", wallet.ID, to, intent.ID)
				}
				if err := tx.Payments().TransitionStatus(ctx, intent.ID, []models.PaymentStatus{intent.Status}, models.PaymentStatusCancelled); err != nil {
					return err
				}
			}
		}
		return tx.Escrow().AppendLedgerEntry(ctx, s.entry(wallet, entryType, actorID, now))
	})
}

// closed updates the in-memory wallet after a committed transition and informs listeners.
func (s *service) closed(ctx context.Context, wallet *models.EscrowWallet, status models.EscrowStatus, actorID string, at time.Time) *models.EscrowWallet {
	wallet.Status = status
	wallet.ClosedAt = &at
	wallet.ClosedBy = actorID
	wallet.UpdatedAt = at

	s.metrics.RecordEscrowTransition(string(status))
	log.Printf("[escrow] wallet %s %s by %s", wallet.ID, status, actorID)

	s.mu.RLock()
	listeners := append([]OutcomeListener(nil), s.listeners...)
	s.mu.RUnlock()

	outcome := Outcome{Wallet: wallet, Status: status, ActorID: actorID}
	for _, l := range listeners {
		if err := l.OnEscrowOutcome(ctx, outcome); err != nil {
			log.Printf("[escrow] reconciliation required: wallet %s %s follow-up failed: %v", wallet.ID, status, err)
		}
	}
	return wallet
}

func (s *service) entry(wallet *models.EscrowWallet, entryType models.LedgerEntryType, actorID string, at time.Time) *models.EscrowLedgerEntry {
	return &models.EscrowLedgerEntry{
		WalletID:   wallet.ID,
		EntryType:  entryType,
		Amount:     wallet.Amount,
		ActorID:    actorID,
		OccurredAt: at,
	}
}

func validateCondition(c models.ReleaseCondition) error {
	switch c.Type {
	case models.ConditionMilestone, models.ConditionDelivery:
		return nil
	case models.ConditionTime:
		if c.Deadline == nil {
			return apperrors.Validation("time release condition needs a deadline")
		}
		return nil
	default:
		return apperrors.Validation("unknown release condition type %q", c.Type)
	}
}

// conditionMet evaluates a release condition. Time conditions wait for their
// deadline; milestone and delivery conditions wait for every requirement.
func conditionMet(c models.ReleaseCondition, completed []*models.EscrowRequirement, now time.Time) bool {
	if c.Type == models.ConditionTime {
		return c.Deadline != nil && !now.Before(*c.Deadline)
	}
	done := make(map[string]bool, len(completed))
	for _, r := range completed {
		done[r.Requirement] = true
	}
	for _, r := range c.Requirements {
		if !done[r] {
			return false
		}
	}
	return true
}

// paymentReleasable reports whether the paired payment allows release. Online
// payments must be captured. A pending bank transfer completes on release only when
// the system releases it after the startup confirmed receipt. Wallets created
// outside an offer may carry no payment.
func paymentReleasable(w *models.EscrowWallet, intent *models.PaymentIntent, actorID string) bool {
	if intent == nil {
		return w.OfferID == nil
	}
	switch intent.Status {
	case models.PaymentStatusCompleted:
		return true
	case models.PaymentStatusPending:
		return intent.Provider == models.ProviderBank && actorID == SystemActor
	default:
		return false
	}
}

func errorCode(err error) string {
	if de, ok := apperrors.As(err); ok {
		return de.Code
	}
	return apperrors.CodeInternal
}
