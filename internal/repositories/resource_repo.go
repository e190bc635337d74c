package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResourceRepository interface {
	Create(ctx context.Context, resource *models.Resource) error
	// FindByID 预加载 Project.Organisation，开通请求需要组织名和项目名
	FindByID(ctx context.Context, id uint64) (*models.Resource, error)
	// SaveDeployment 只写部署相关字段: status / configuration / endpoint / credentials
	SaveDeployment(ctx context.Context, resource *models.Resource) error
}

type resourceRepository struct {
	db *gorm.DB
}

var _ ResourceRepository = (*resourceRepository)(nil)

func NewResourceRepository(db *gorm.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	if err := r.db.WithContext(ctx).Create(resource).Error; err != nil {
		logger.Error("Create: Failed to create resource", zap.String("name", resource.Name), zap.Error(err))
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

func (r *resourceRepository) FindByID(ctx context.Context, id uint64) (*models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).Preload("Project.Organisation").First(&resource, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrResourceNotFound
		}
		logger.Error("FindByID: Failed to query resource", zap.Uint64("resourceID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to query resource: %w", err)
	}
	return &resource, nil
}

func (r *resourceRepository) SaveDeployment(ctx context.Context, resource *models.Resource) error {
	err := r.db.WithContext(ctx).Model(&models.Resource{ID: resource.ID}).
		Select("Status", "Configuration", "Endpoint", "Credentials").
		Omit(clause.Associations).
		Updates(resource).Error
	if err != nil {
		logger.Error("SaveDeployment: Failed to persist deployment state",
			zap.Uint64("resourceID", resource.ID),
			zap.String("status", string(resource.Status)),
			zap.Error(err))
		return fmt.Errorf("failed to persist deployment state: %w", err)
	}
	return nil
}
