package repositories

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileRepository 文件表的数据访问接口，配额模块只把它当作聚合来源
type FileRepository interface {
	Create(ctx context.Context, file *models.File) error
	// SumSizeByUser 汇总用户所有文件的字节数
	SumSizeByUser(ctx context.Context, userID uint64) (int64, error)
	// StatsByType 按 file_type 分组统计数量与字节数
	StatsByType(ctx context.Context, userID uint64) (map[string]models.FileTypeStat, error)
	// PinnedStats 统计已固定 (pinned) 文件的数量与字节数
	PinnedStats(ctx context.Context, userID uint64) (models.FileTypeStat, error)
	FindWithCIDByUser(ctx context.Context, userID uint64) ([]models.File, error)
	UpdatePinned(ctx context.Context, fileID uint64, pinned bool) error
}

type fileRepository struct {
	db *gorm.DB
}

var _ FileRepository = (*fileRepository)(nil)

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	err := r.db.WithContext(ctx).Create(file).Error
	if err != nil {
		logger.Error("Create: Failed to create file in DB", zap.Error(err), zap.Uint64("userID", file.UserID), zap.String("fileName", file.FileName))
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

func (r *fileRepository) SumSizeByUser(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.File{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(file_size), 0)").
		Row().Scan(&total)
	if err != nil {
		logger.Error("SumSizeByUser: Failed to aggregate file sizes", zap.Uint64("userID", userID), zap.Error(err))
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}
	return total, nil
}

type fileTypeRow struct {
	FileType string
	Count    int64
	Size     int64
}

func (r *fileRepository) StatsByType(ctx context.Context, userID uint64) (map[string]models.FileTypeStat, error) {
	var rows []fileTypeRow
	err := r.db.WithContext(ctx).Model(&models.File{}).
		Select("file_type, COUNT(*) AS count, COALESCE(SUM(file_size), 0) AS size").
		Where("user_id = ?", userID).
		Group("file_type").
		Scan(&rows).Error
	if err != nil {
		logger.Error("StatsByType: Failed to group files by type", zap.Uint64("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to group files by type: %w", err)
	}

	stats := make(map[string]models.FileTypeStat, len(rows))
	for _, row := range rows {
		stats[row.FileType] = models.FileTypeStat{Count: row.Count, Size: row.Size}
	}
	return stats, nil
}

func (r *fileRepository) PinnedStats(ctx context.Context, userID uint64) (models.FileTypeStat, error) {
	var stat models.FileTypeStat
	err := r.db.WithContext(ctx).Model(&models.File{}).
		Select("COUNT(*) AS count, COALESCE(SUM(file_size), 0) AS size").
		Where("user_id = ? AND is_pinned = ?", userID, true).
		Scan(&stat).Error
	if err != nil {
		logger.Error("PinnedStats: Failed to aggregate pinned files", zap.Uint64("userID", userID), zap.Error(err))
		return models.FileTypeStat{}, fmt.Errorf("failed to aggregate pinned files: %w", err)
	}
	return stat, nil
}

func (r *fileRepository) FindWithCIDByUser(ctx context.Context, userID uint64) ([]models.File, error) {
	var files []models.File
	err := r.db.WithContext(ctx).Where("user_id = ? AND cid IS NOT NULL AND cid <> ''", userID).Find(&files).Error
	if err != nil {
		logger.Error("FindWithCIDByUser: Failed to list files", zap.Uint64("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list files with cid: %w", err)
	}
	return files, nil
}

func (r *fileRepository) UpdatePinned(ctx context.Context, fileID uint64, pinned bool) error {
	if err := r.db.WithContext(ctx).Model(&models.File{}).Where("id = ?", fileID).Update("is_pinned", pinned).Error; err != nil {
		logger.Error("UpdatePinned: Failed to update pin flag", zap.Uint64("fileID", fileID), zap.Bool("pinned", pinned), zap.Error(err))
		return fmt.Errorf("failed to update pin flag: %w", err)
	}
	return nil
}
