package models

import "time"

// Organisation 对应 organisations 表，这里只用于开通请求中的组织名
type Organisation struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Organisation) TableName() string {
	return "organisations"
}

// Project 对应 projects 表
type Project struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrganisationID uint64    `gorm:"not null;index" json:"organisation_id"`
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`

	Organisation *Organisation `gorm:"foreignKey:OrganisationID" json:"organisation,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}
