package models

import "time"

// StorageQuota 对应 storage_quotas 表，每个用户一条
// user_id 上的唯一索引是并发首次创建时唯一的保护
type StorageQuota struct {
	ID             uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64      `gorm:"not null;uniqueIndex" json:"user_id"`
	Tier           StorageTier `gorm:"type:varchar(32);not null" json:"tier"`
	AllocatedBytes int64       `gorm:"type:bigint;not null;default:0" json:"allocated_bytes"`
	UsedBytes      int64       `gorm:"type:bigint;not null;default:0" json:"used_bytes"`
	TierUpdatedAt  time.Time   `json:"tier_updated_at"`
	LastUpdated    time.Time   `json:"last_updated"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName 指定 GORM 使用的表名
func (StorageQuota) TableName() string {
	return "storage_quotas"
}

// QuotaInfo 是对外返回的配额快照
type QuotaInfo struct {
	Tier            StorageTier `json:"tier"`
	AllocatedBytes  int64       `json:"allocated_bytes"`
	UsedBytes       int64       `json:"used_bytes"`
	AvailableBytes  int64       `json:"available_bytes"` // 可能为负数，表示已超额
	UsagePercentage int64       `json:"usage_percentage"`
}

// QuotaCheck 是上传前配额检查的结果，超额属于业务结果而不是错误
type QuotaCheck struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	CurrentUsage   int64  `json:"current_usage"`
	TotalQuota     int64  `json:"total_quota"`
	AvailableBytes int64  `json:"available_bytes"`
}

// FileTypeStat 单个文件类型的聚合结果
type FileTypeStat struct {
	Count int64 `json:"count"`
	Size  int64 `json:"size"`
}

// StorageStats 用户存储统计
type StorageStats struct {
	TotalFiles  int64                   `json:"total_files"`
	TotalSize   int64                   `json:"total_size"`
	PinnedFiles int64                   `json:"pinned_files"`
	PinnedSize  int64                   `json:"pinned_size"`
	FileTypes   map[string]FileTypeStat `json:"file_types"`
	Quota       *QuotaInfo              `json:"quota"`
}
