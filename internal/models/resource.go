package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ResourceStatus 资源状态机
type ResourceStatus string

const (
	ResourceProvisioning ResourceStatus = "PROVISIONING"
	ResourceActive       ResourceStatus = "ACTIVE"
	ResourceInactive     ResourceStatus = "INACTIVE"
	ResourceMaintenance  ResourceStatus = "MAINTENANCE"
	ResourceDeleted      ResourceStatus = "DELETED"
)

// 部署配置中的约定字段
const (
	ConfigDeploymentStage    = "deploymentStage"
	ConfigDeploymentProgress = "deploymentProgress"
	ConfigDeploymentMessage  = "deploymentMessage"
	ConfigDeploymentError    = "deploymentError"
	ConfigDeployedAt         = "deployedAt"
	ConfigProvider           = "provider"
	ConfigProviderResourceID = "providerResourceId"
)

// CanStartDeployment 判断资源当前状态是否允许发起部署
// ACTIVE 与 INACTIVE 都是可重新部署的静止状态
func CanStartDeployment(status ResourceStatus) bool {
	switch status {
	case ResourceProvisioning, ResourceDeleted:
		return false
	default:
		return true
	}
}

// ResourceConfiguration 资源的自由结构配置，以 JSON 存储
type ResourceConfiguration map[string]any

// Stage 当前部署阶段，没有则返回空字符串
func (c ResourceConfiguration) Stage() string {
	s, _ := c[ConfigDeploymentStage].(string)
	return s
}

// Message 当前部署阶段的提示信息
func (c ResourceConfiguration) Message() string {
	s, _ := c[ConfigDeploymentMessage].(string)
	return s
}

// Progress 当前部署进度 (0-100)
// JSON 反序列化后数字是 float64，内存中写入时是 int，这里统一处理
func (c ResourceConfiguration) Progress() int {
	switch v := c[ConfigDeploymentProgress].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Resource 对应 resources 表
type Resource struct {
	ID            uint64                `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          string                `gorm:"type:varchar(36);unique;not null" json:"uuid"`
	ProjectID     uint64                `gorm:"not null;index" json:"project_id"`
	UserID        uint64                `gorm:"not null;index" json:"user_id"`
	Name          string                `gorm:"type:varchar(128);not null" json:"name"`
	TemplateID    string                `gorm:"type:varchar(64);not null" json:"template_id"`
	Status        ResourceStatus        `gorm:"type:varchar(16);not null;default:'INACTIVE';index" json:"status"`
	Configuration ResourceConfiguration `gorm:"type:text;serializer:json" json:"configuration"`
	Endpoint      *string               `gorm:"type:varchar(512);default:null" json:"endpoint"`
	Credentials   map[string]string     `gorm:"type:text;serializer:json" json:"credentials,omitempty"`
	SSHKeys       []string              `gorm:"column:ssh_keys;type:text;serializer:json" json:"ssh_keys,omitempty"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt        `gorm:"index" json:"deleted_at,omitempty"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (Resource) TableName() string {
	return "resources"
}

// DeploymentStatus 轮询接口返回的部署进度
type DeploymentStatus struct {
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// DeployResult 发起部署后立即返回的结果
type DeployResult struct {
	Success bool   `json:"success"`
	Mode    string `json:"mode"` // simulated / delegated
}
