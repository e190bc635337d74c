package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/repositories"
	"github.com/3Eeeecho/go-stackdash/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 存储配额服务: 计算用量、上传前检查、调整档位
type Service interface {
	GetUserStorageQuota(ctx context.Context, userID uint64) (*models.QuotaInfo, error)
	CheckStorageQuota(ctx context.Context, userID uint64, additionalBytes int64) (*models.QuotaCheck, error)
	UpdateUserStorageTier(ctx context.Context, userID uint64, tier models.StorageTier, updatedBy uint64) error
	GetUserStorageStats(ctx context.Context, userID uint64) (*models.StorageStats, error)
	TierLimit(tier models.StorageTier) int64
}

type quotaService struct {
	userRepo  repositories.UserRepository
	quotaRepo repositories.QuotaRepository
	fileRepo  repositories.FileRepository
	tm        services.TransactionManager
	limits    models.TierLimits
	now       func() time.Time
}

var _ Service = (*quotaService)(nil)

// Option 用于在测试中替换时钟等依赖
type Option func(*quotaService)

func WithClock(now func() time.Time) Option {
	return func(s *quotaService) { s.now = now }
}

func NewService(
	userRepo repositories.UserRepository,
	quotaRepo repositories.QuotaRepository,
	fileRepo repositories.FileRepository,
	tm services.TransactionManager,
	limits models.TierLimits,
	opts ...Option,
) Service {
	s := &quotaService{
		userRepo:  userRepo,
		quotaRepo: quotaRepo,
		fileRepo:  fileRepo,
		tm:        tm,
		limits:    limits,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *quotaService) TierLimit(tier models.StorageTier) int64 {
	return s.limits.Limit(tier)
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
}

func (s *quotaService) GetUserStorageQuota(ctx context.Context, userID uint64) (*models.QuotaInfo, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		logger.Error("GetUserStorageQuota: failed to load user", zap.Uint64("userID", userID), zap.Error(err))
		return nil, storageErr(err)
	}
	if user == nil {
		return nil, xerr.ErrUserNotFound
	}

	quota, err := s.loadOrCreateQuota(ctx, user)
	if err != nil {
		return nil, err
	}

	s.repairAllocation(user, quota)

	// 每次都重新汇总文件表，不做缓存
	used, err := s.fileRepo.SumSizeByUser(ctx, userID)
	if err != nil {
		logger.Error("GetUserStorageQuota: failed to sum file sizes", zap.Uint64("userID", userID), zap.Error(err))
		return nil, storageErr(err)
	}
	quota.UsedBytes = used
	quota.LastUpdated = s.now()

	if err := s.quotaRepo.Update(ctx, quota); err != nil {
		logger.Error("GetUserStorageQuota: failed to persist usage", zap.Uint64("userID", userID), zap.Error(err))
		return nil, storageErr(err)
	}

	return buildQuotaInfo(quota), nil
}

// loadOrCreateQuota 读取配额记录，不存在时懒创建
// 并发首次访问时依赖 user_id 唯一索引，插入冲突后重新读取
func (s *quotaService) loadOrCreateQuota(ctx context.Context, user *models.User) (*models.StorageQuota, error) {
	quota, err := s.quotaRepo.FindByUserID(ctx, user.ID)
	if err != nil {
		logger.Error("loadOrCreateQuota: failed to read quota", zap.Uint64("userID", user.ID), zap.Error(err))
		return nil, storageErr(err)
	}
	if quota != nil {
		return quota, nil
	}

	tier := effectiveTier(user, nil)
	now := s.now()
	fresh := &models.StorageQuota{
		UserID:         user.ID,
		Tier:           tier,
		AllocatedBytes: s.limits.Limit(tier),
		TierUpdatedAt:  now,
		LastUpdated:    now,
	}
	if err := s.quotaRepo.CreateIfAbsent(ctx, fresh); err != nil {
		logger.Error("loadOrCreateQuota: failed to create quota", zap.Uint64("userID", user.ID), zap.Error(err))
		return nil, storageErr(err)
	}
	logger.Info("Storage quota created", zap.Uint64("userID", user.ID), zap.String("tier", string(tier)))

	quota, err = s.quotaRepo.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	if quota == nil {
		return nil, storageErr(errors.New("quota record missing after create"))
	}
	return quota, nil
}

// repairAllocation 读路径上的自修复: allocated_bytes 必须等于当前档位的查表值
func (s *quotaService) repairAllocation(user *models.User, quota *models.StorageQuota) {
	tier := effectiveTier(user, quota)
	expected := s.limits.Limit(tier)
	if quota.Tier == tier && quota.AllocatedBytes == expected {
		return
	}
	logger.Warn("Repairing stale storage allocation",
		zap.Uint64("userID", user.ID),
		zap.String("storedTier", string(quota.Tier)),
		zap.String("tier", string(tier)),
		zap.Int64("storedAllocated", quota.AllocatedBytes),
		zap.Int64("expectedAllocated", expected))
	quota.Tier = tier
	quota.AllocatedBytes = expected
}

// effectiveTier 用户表上的档位优先，其次是配额记录，最后回落到 FREE
func effectiveTier(user *models.User, quota *models.StorageQuota) models.StorageTier {
	if user != nil && user.StorageTier.Valid() {
		return user.StorageTier
	}
	if quota != nil && quota.Tier.Valid() {
		return quota.Tier
	}
	return models.TierFree
}

func buildQuotaInfo(quota *models.StorageQuota) *models.QuotaInfo {
	return &models.QuotaInfo{
		Tier:            quota.Tier,
		AllocatedBytes:  quota.AllocatedBytes,
		UsedBytes:       quota.UsedBytes,
		AvailableBytes:  quota.AllocatedBytes - quota.UsedBytes,
		UsagePercentage: UsagePercentage(quota.UsedBytes, quota.AllocatedBytes),
	}
}

// UsagePercentage floor(used*100/allocated)，allocated 为 0 时返回 0
// 乘法在 128 位上进行，UNLIMITED 档位附近也不会溢出
func UsagePercentage(used, allocated int64) int64 {
	if allocated <= 0 || used <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(used), 100)
	if hi >= uint64(allocated) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(allocated))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

func (s *quotaService) CheckStorageQuota(ctx context.Context, userID uint64, additionalBytes int64) (*models.QuotaCheck, error) {
	info, err := s.GetUserStorageQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	check := &models.QuotaCheck{
		Allowed:        info.AvailableBytes >= additionalBytes,
		CurrentUsage:   info.UsedBytes,
		TotalQuota:     info.AllocatedBytes,
		AvailableBytes: info.AvailableBytes,
	}
	if !check.Allowed {
		check.Reason = fmt.Sprintf("Storage quota exceeded. Available: %s, Required: %s",
			utils.FormatBytes(info.AvailableBytes), utils.FormatBytes(additionalBytes))
		logger.Info("Storage quota check denied",
			zap.Uint64("userID", userID),
			zap.Int64("available", info.AvailableBytes),
			zap.Int64("required", additionalBytes))
	}
	return check, nil
}

func (s *quotaService) UpdateUserStorageTier(ctx context.Context, userID uint64, tier models.StorageTier, updatedBy uint64) error {
	if !tier.Valid() {
		return xerr.ErrInvalidTier
	}
	allocated := s.limits.Limit(tier)
	now := s.now()

	err := s.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.userRepo.UpdateStorageTier(tx, userID, tier); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return xerr.ErrUserNotFound
			}
			return storageErr(err)
		}
		if err := s.quotaRepo.UpsertAllocation(tx, userID, tier, allocated, now); err != nil {
			return storageErr(err)
		}
		return nil
	})
	if err != nil {
		logger.Error("UpdateUserStorageTier: failed to update tier",
			zap.Uint64("userID", userID),
			zap.String("tier", string(tier)),
			zap.Uint64("updatedBy", updatedBy),
			zap.Error(err))
		return err
	}

	logger.Info("Storage tier updated",
		zap.Uint64("userID", userID),
		zap.String("tier", string(tier)),
		zap.Int64("allocatedBytes", allocated),
		zap.Uint64("updatedBy", updatedBy))
	return nil
}

func (s *quotaService) GetUserStorageStats(ctx context.Context, userID uint64) (*models.StorageStats, error) {
	info, err := s.GetUserStorageQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	byType, err := s.fileRepo.StatsByType(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	pinned, err := s.fileRepo.PinnedStats(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}

	stats := &models.StorageStats{
		PinnedFiles: pinned.Count,
		PinnedSize:  pinned.Size,
		FileTypes:   byType,
		Quota:       info,
	}
	for _, stat := range byType {
		stats.TotalFiles += stat.Count
		stats.TotalSize += stat.Size
	}
	return stats, nil
}
