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

// OfferRepository defines the investment offer persistence operations
type OfferRepository interface {
	Create(ctx context.Context, offer *models.InvestmentOffer) error
	GetByID(ctx context.Context, id string) (*models.InvestmentOffer, error)
	GetByEscrowWalletID(ctx context.Context, walletID string) (*models.InvestmentOffer, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.InvestmentOffer, error)

	// Transition moves the offer from one status to another, applying the extra column
	// updates in the same statement. Zero affected rows is a stale state error.
	Transition(ctx context.Context, id string, from, to models.OfferStatus, fields map[string]interface{}) error
}

type offerRepository struct {
	db *gorm.DB
}

func NewOfferRepository(db *gorm.DB) OfferRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) Create(ctx context.Context, offer *models.InvestmentOffer) error {
	if err := r.db.WithContext(ctx).Create(offer).Error; err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

func (r *offerRepository) GetByID(ctx context.Context, id string) (*models.InvestmentOffer, error) {
	var offer models.InvestmentOffer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return &offer, nil
}

func (r *offerRepository) GetByEscrowWalletID(ctx context.Context, walletID string) (*models.InvestmentOffer, error) {
	var offer models.InvestmentOffer
	if err := r.db.WithContext(ctx).Where("escrow_wallet_id = ?", walletID).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to get offer by wallet: %w", err)
	}
	return &offer, nil
}

func (r *offerRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.InvestmentOffer, error) {
	var offers []*models.InvestmentOffer
	err := r.db.WithContext(ctx).
		Where("investor_id = ? OR startup_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}

func (r *offerRepository) Transition(ctx context.Context, id string, from, to models.OfferStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.InvestmentOffer{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update offer status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Stale("offer %s is no longer %s", id, from)
	}
	return nil
}
