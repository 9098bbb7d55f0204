package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository defines the payment intent persistence operations
type PaymentRepository interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*models.PaymentIntent, error)
	GetByOfferID(ctx context.Context, offerID string) (*models.PaymentIntent, error)
	// RecordAttempt stores the outcome of a provider call on a pending intent and
	// increments its attempt counter.
	RecordAttempt(ctx context.Context, intent *models.PaymentIntent) error
	SetProviderPaymentID(ctx context.Context, id, providerPaymentID string) error

	// TransitionStatus moves the intent to `to` when its current status is one of from.
	TransitionStatus(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.PaymentIntent, error)
	ListCompletedByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentIntent, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if err := r.db.WithContext(ctx).Create(intent).Error; err != nil {
		return fmt.Errorf("failed to create payment intent: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return &intent, nil
}

func (r *paymentRepository) GetByOfferID(ctx context.Context, offerID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("offer_id = ?", offerID).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return &intent, nil
}

func (r *paymentRepository) RecordAttempt(ctx context.Context, intent *models.PaymentIntent) error {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", intent.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"provider":     intent.Provider,
			"payment_url":  intent.PaymentURL,
			"reference":    intent.Reference,
			"instructions": intent.Instructions,
			"attempts":     gorm.Expr("attempts + 1"),
			"ip_address":   intent.IPAddress,
			"user_agent":   intent.UserAgent,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record payment attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Stale("payment intent %s is no longer pending", intent.ID)
	}
	return nil
}

func (r *paymentRepository) SetProviderPaymentID(ctx context.Context, id, providerPaymentID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Update("provider_payment_id", providerPaymentID).Error
	if err != nil {
		return fmt.Errorf("failed to set provider payment id: %w", err)
	}
	return nil
}

func (r *paymentRepository) TransitionStatus(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment intent status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Stale("payment intent %s is not in %v", id, from)
	}
	return nil
}

func (r *paymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.PaymentIntent, error) {
	var intents []*models.PaymentIntent
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, createdBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&intents).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale intents: %w", err)
	}
	return intents, nil
}

func (r *paymentRepository) ListCompletedByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentIntent, error) {
	var intents []*models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.PaymentStatusCompleted).
		Order("created_at DESC").
		Limit(limit).
		Find(&intents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list completed payments: %w", err)
	}
	return intents, nil
}
