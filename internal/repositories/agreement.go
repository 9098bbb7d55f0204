package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AgreementRepository defines the agreement document persistence operations
type AgreementRepository interface {
	// Upsert stores a freshly drafted document, replacing any draft from an earlier
	// acceptance cycle of the same offer.
	Upsert(ctx context.Context, doc *models.AgreementDocument) error
	GetByOfferID(ctx context.Context, offerID string) (*models.AgreementDocument, error)

	// MarkSigned records a party's signature once; repeated signing is a no-op.
	MarkSigned(ctx context.Context, offerID string, investor bool, at time.Time) error
}

type agreementRepository struct {
	db *gorm.DB
}

func NewAgreementRepository(db *gorm.DB) AgreementRepository {
	return &agreementRepository{db: db}
}

func (r *agreementRepository) Upsert(ctx context.Context, doc *models.AgreementDocument) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "offer_id"}},
			UpdateAll: true,
		}).
		Create(doc).Error
	if err != nil {
		return fmt.Errorf("failed to store agreement: %w", err)
	}
	return nil
}

func (r *agreementRepository) GetByOfferID(ctx context.Context, offerID string) (*models.AgreementDocument, error) {
	var doc models.AgreementDocument
	if err := r.db.WithContext(ctx).Where("offer_id = ?", offerID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("agreement")
		}
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	return &doc, nil
}

func (r *agreementRepository) MarkSigned(ctx context.Context, offerID string, investor bool, at time.Time) error {
	column := "startup_signed_at"
	if investor {
		column = "investor_signed_at"
	}
	err := r.db.WithContext(ctx).
		Model(&models.AgreementDocument{}).
		Where("offer_id = ? AND "+column+" IS NULL", offerID).
		Updates(map[string]interface{}{column: at, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("failed to record signature: %w", err)
	}
	return nil
}
