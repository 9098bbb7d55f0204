package repositories

import (
	"context"
	"fmt"
	"time"

	"ventureflow/internal/models"

	"gorm.io/gorm"
)

// FraudLogRepository stores and queries risk assessments
type FraudLogRepository interface {
	Create(ctx context.Context, entry *models.FraudLog) error
	ListByUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]*models.FraudLog, error)
	ListByUserLevelSince(ctx context.Context, userID string, level models.RiskLevel, since time.Time, limit int) ([]*models.FraudLog, error)
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

type fraudLogRepository struct {
	db *gorm.DB
}

func NewFraudLogRepository(db *gorm.DB) FraudLogRepository {
	return &fraudLogRepository{db: db}
}

func (r *fraudLogRepository) Create(ctx context.Context, entry *models.FraudLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write fraud log: %w", err)
	}
	return nil
}

func (r *fraudLogRepository) ListByUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]*models.FraudLog, error) {
	var logs []*models.FraudLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud logs: %w", err)
	}
	return logs, nil
}

func (r *fraudLogRepository) ListByUserLevelSince(ctx context.Context, userID string, level models.RiskLevel, since time.Time, limit int) ([]*models.FraudLog, error) {
	var logs []*models.FraudLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND level = ? AND created_at >= ?", userID, level, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud logs: %w", err)
	}
	return logs, nil
}

func (r *fraudLogRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FraudLog{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count fraud logs: %w", err)
	}
	return count, nil
}
