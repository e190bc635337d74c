// Package testutil 提供测试用的数据库与时钟替身
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewTestDB 打开一个按测试名隔离的内存 sqlite 库并完成迁移
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.SetLogger(zap.NewNop())

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.StorageQuota{},
		&models.File{},
		&models.Organisation{},
		&models.Project{},
		&models.Resource{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser 插入一个 FREE 档位的用户
func CreateUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         models.RoleUser,
		StorageTier:  models.TierFree,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
