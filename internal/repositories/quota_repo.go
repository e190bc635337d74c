package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuotaRepository interface {
	// FindByUserID 记录不存在时返回 nil, nil
	FindByUserID(ctx context.Context, userID uint64) (*models.StorageQuota, error)
	// CreateIfAbsent 插入配额记录，user_id 冲突时不做任何事
	CreateIfAbsent(ctx context.Context, quota *models.StorageQuota) error
	Update(ctx context.Context, quota *models.StorageQuota) error
	// UpsertAllocation 在事务中写入档位与分配字节数，不触碰 used_bytes
	UpsertAllocation(tx *gorm.DB, userID uint64, tier models.StorageTier, allocated int64, at time.Time) error
}

type quotaRepository struct {
	db *gorm.DB
}

var _ QuotaRepository = (*quotaRepository)(nil)

func NewQuotaRepository(db *gorm.DB) QuotaRepository {
	return &quotaRepository{db: db}
}

func (r *quotaRepository) FindByUserID(ctx context.Context, userID uint64) (*models.StorageQuota, error) {
	var quota models.StorageQuota
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&quota).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.Error("FindByUserID: Failed to query storage quota", zap.Uint64("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to query storage quota: %w", err)
	}
	return &quota, nil
}

func (r *quotaRepository) CreateIfAbsent(ctx context.Context, quota *models.StorageQuota) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(quota).Error
	if err != nil {
		logger.Error("CreateIfAbsent: Failed to create storage quota", zap.Uint64("userID", quota.UserID), zap.Error(err))
		return fmt.Errorf("failed to create storage quota: %w", err)
	}
	return nil
}

func (r *quotaRepository) Update(ctx context.Context, quota *models.StorageQuota) error {
	err := r.db.WithContext(ctx).Model(&models.StorageQuota{}).
		Where("id = ?", quota.ID).
		Updates(map[string]any{
			"tier":            quota.Tier,
			"allocated_bytes": quota.AllocatedBytes,
			"used_bytes":      quota.UsedBytes,
			"last_updated":    quota.LastUpdated,
		}).Error
	if err != nil {
		logger.Error("Update: Failed to update storage quota", zap.Uint64("userID", quota.UserID), zap.Error(err))
		return fmt.Errorf("failed to update storage quota: %w", err)
	}
	return nil
}

func (r *quotaRepository) UpsertAllocation(tx *gorm.DB, userID uint64, tier models.StorageTier, allocated int64, at time.Time) error {
	quota := &models.StorageQuota{
		UserID:         userID,
		Tier:           tier,
		AllocatedBytes: allocated,
		TierUpdatedAt:  at,
		LastUpdated:    at,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier", "allocated_bytes", "tier_updated_at", "last_updated"}),
	}).Create(quota).Error
	if err != nil {
		logger.Error("UpsertAllocation: Failed to upsert storage quota", zap.Uint64("userID", userID), zap.String("tier", string(tier)), zap.Error(err))
		return fmt.Errorf("failed to upsert storage quota: %w", err)
	}
	return nil
}
