package models

import (
	"time"

	"gorm.io/gorm"
)

// File 对应 files 表
type File struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      string         `gorm:"type:varchar(36);unique;not null" json:"uuid"`
	UserID    uint64         `gorm:"not null;index" json:"user_id"`
	FileName  string         `gorm:"type:varchar(255);not null" json:"filename"`
	FileSize  int64          `gorm:"type:bigint;not null;default:0" json:"file_size"`
	FileType  string         `gorm:"type:varchar(32);not null;default:'other';index" json:"file_type"` // document / image / video ...
	MimeType  *string        `gorm:"type:varchar(128);default:null" json:"mime_type"`
	CID       *string        `gorm:"column:cid;type:varchar(128);default:null;index" json:"cid"` // IPFS 内容标识
	OssBucket *string        `gorm:"type:varchar(64);default:null" json:"oss_bucket"`
	OssKey    *string        `gorm:"type:varchar(255);default:null" json:"oss_key"`
	IsPinned  bool           `gorm:"not null;default:false" json:"is_pinned"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName 指定 GORM 使用的表名
func (File) TableName() string {
	return "files"
}

// UploadRequest 上传文件的元数据
type UploadRequest struct {
	FileName string `form:"file_name"`
	FileType string `form:"file_type"`
	CID      string `form:"cid"`
	MimeType string `form:"-"`
	Size     int64  `form:"-"`
}
