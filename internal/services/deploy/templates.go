package deploy

import "time"

// Kind 资源种类
type Kind string

const (
	KindCompute  Kind = "compute"
	KindStorage  Kind = "storage"
	KindDatabase Kind = "database"
	KindAPI      Kind = "api"
)

// Template 资源模板: 开通耗时、端点与凭据的形状
// Provider 非空时走外部开通 API，否则走模拟部署
type Template struct {
	ID               string
	Name             string
	Kind             Kind
	ProvisioningTime time.Duration
	EndpointTemplate string            // 支持 {id} 占位符
	Credentials      map[string]string // 值支持 {id} 与 {secret} 占位符
	Provider         string
}

// Delegated 是否委托给外部开通 API
func (t Template) Delegated() bool {
	return t.Provider != ""
}

// Catalog 按模板 ID 索引
type Catalog map[string]Template

func (c Catalog) Lookup(id string) (Template, bool) {
	t, ok := c[id]
	return t, ok
}

// DefaultCatalog 内置模板
func DefaultCatalog() Catalog {
	return Catalog{
		"web-server": {
			ID:               "web-server",
			Name:             "Web Server",
			Kind:             KindCompute,
			ProvisioningTime: 30 * time.Second,
			EndpointTemplate: "https://web-{id}.stackdash.app",
			Credentials: map[string]string{
				"username": "admin",
				"password": "{secret}",
			},
		},
		"object-storage": {
			ID:               "object-storage",
			Name:             "Object Storage Bucket",
			Kind:             KindStorage,
			ProvisioningTime: 15 * time.Second,
			EndpointTemplate: "s3://bucket-{id}.storage.stackdash.app",
			Credentials: map[string]string{
				"accessKeyId":     "AK{id}",
				"secretAccessKey": "{secret}",
			},
		},
		"postgres": {
			ID:               "postgres",
			Name:             "PostgreSQL Database",
			Kind:             KindDatabase,
			ProvisioningTime: 45 * time.Second,
			EndpointTemplate: "postgresql://db-{id}.db.stackdash.app:5432/app",
			Credentials: map[string]string{
				"username": "app_{id}",
				"password": "{secret}",
				"database": "app",
			},
		},
		"api-gateway": {
			ID:               "api-gateway",
			Name:             "API Gateway",
			Kind:             KindAPI,
			ProvisioningTime: 20 * time.Second,
			EndpointTemplate: "https://api-{id}.gateway.stackdash.app",
			Credentials: map[string]string{
				"apiKey": "sk_{id}_{secret}",
			},
		},
		"vps": {
			ID:       "vps",
			Name:     "Virtual Private Server",
			Kind:     KindCompute,
			Provider: "vps",
		},
	}
}

// Stage 模拟部署的一个阶段
type Stage struct {
	Name     string
	Progress int
	Message  string
}

const (
	StageInit     = "init"
	StageComplete = "complete"
	StageFailed   = "failed"

	completeMessage = "Deployment complete!"
)

// Stages 按顺序执行，进度单调递增
var Stages = []Stage{
	{Name: StageInit, Progress: 0, Message: "Initializing deployment..."},
	{Name: "allocate", Progress: 20, Message: "Allocating resources..."},
	{Name: "configure", Progress: 40, Message: "Configuring environment..."},
	{Name: "provision", Progress: 60, Message: "Provisioning infrastructure..."},
	{Name: "verify", Progress: 80, Message: "Verifying deployment..."},
	{Name: StageComplete, Progress: 100, Message: completeMessage},
}
