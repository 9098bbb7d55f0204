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

// EscrowRepository defines the escrow wallet persistence operations
type EscrowRepository interface {
	Create(ctx context.Context, wallet *models.EscrowWallet) error
	GetByID(ctx context.Context, id string) (*models.EscrowWallet, error)

	// TransitionStatus moves a wallet out of from. It fails with a stale state error when
	// another writer changed the status first.
	TransitionStatus(ctx context.Context, id string, from, to models.EscrowStatus, actorID string, at time.Time) error
	SetPaymentIntent(ctx context.Context, walletID, intentID string) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.EscrowWallet, error)

	AppendLedgerEntry(ctx context.Context, entry *models.EscrowLedgerEntry) error
	ListLedgerEntries(ctx context.Context, walletID string) ([]*models.EscrowLedgerEntry, error)

	CompleteRequirement(ctx context.Context, req *models.EscrowRequirement) error
	ListRequirements(ctx context.Context, walletID string) ([]*models.EscrowRequirement, error)
}

type escrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) EscrowRepository {
	return &escrowRepository{db: db}
}

func (r *escrowRepository) Create(ctx context.Context, wallet *models.EscrowWallet) error {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create escrow wallet: %w", err)
	}
	return nil
}

func (r *escrowRepository) GetByID(ctx context.Context, id string) (*models.EscrowWallet, error) {
	var wallet models.EscrowWallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get escrow wallet: %w", err)
	}
	return &wallet, nil
}

func (r *escrowRepository) TransitionStatus(ctx context.Context, id string, from, to models.EscrowStatus, actorID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowWallet{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"closed_at":  at,
			"closed_by":  actorID,
			"updated_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update escrow wallet status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Stale("escrow wallet %s is no longer %s", id, from)
	}
	return nil
}

func (r *escrowRepository) SetPaymentIntent(ctx context.Context, walletID, intentID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowWallet{}).
		Where("id = ? AND status = ?", walletID, models.EscrowStatusPending).
		Updates(map[string]interface{}{"payment_intent_id": intentID, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to attach payment intent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrWalletClosed
	}
	return nil
}

func (r *escrowRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.EscrowWallet, error) {
	var wallets []*models.EscrowWallet
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.EscrowStatusPending, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired wallets: %w", err)
	}
	return wallets, nil
}

func (r *escrowRepository) AppendLedgerEntry(ctx context.Context, entry *models.EscrowLedgerEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *escrowRepository) ListLedgerEntries(ctx context.Context, walletID string) ([]*models.EscrowLedgerEntry, error) {
	var entries []*models.EscrowLedgerEntry
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("occurred_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// CompleteRequirement is idempotent: the first completion wins.
func (r *escrowRepository) CompleteRequirement(ctx context.Context, req *models.EscrowRequirement) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet_id"}, {Name: "requirement"}},
			DoNothing: true,
		}).
		Create(req).Error
	if err != nil {
		return fmt.Errorf("failed to record requirement: %w", err)
	}
	return nil
}

func (r *escrowRepository) ListRequirements(ctx context.Context, walletID string) ([]*models.EscrowRequirement, error) {
	var reqs []*models.EscrowRequirement
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("completed_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	return reqs, nil
}
