// Package deploy 资源部署状态机: 模拟部署与外部 API 委托开通
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/provision"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ModeSimulated = "simulated"
	ModeDelegated = "delegated"
)

type Service interface {
	GetResource(ctx context.Context, resourceID uint64) (*models.Resource, error)
	// DeployResource 写入 PROVISIONING 后立即返回，部署在后台执行
	DeployResource(ctx context.Context, resourceID uint64) (*models.DeployResult, error)
	RunSimulation(ctx context.Context, resource *models.Resource, tpl Template)
	RunDelegated(ctx context.Context, resource *models.Resource, tpl Template)
	// GetDeploymentStatus 没有任何部署信号时返回 nil
	GetDeploymentStatus(ctx context.Context, resourceID uint64) (*models.DeploymentStatus, error)
	RefreshResource(ctx context.Context, resourceID uint64) (*models.Resource, error)
	DecommissionResource(ctx context.Context, resourceID uint64) error
}

// Sleeper 阶段之间的等待，测试中替换为立即返回
type Sleeper func(ctx context.Context, d time.Duration) error

// Spawner 启动后台任务，默认是一个不受监管的 goroutine
type Spawner func(fn func())

type deployService struct {
	repo        repositories.ResourceRepository
	provisioner provision.Client
	catalog     Catalog
	sleep       Sleeper
	spawn       Spawner
	now         func() time.Time
	secret      func() string
}

var _ Service = (*deployService)(nil)

type Option func(*deployService)

func WithClock(now func() time.Time) Option {
	return func(s *deployService) { s.now = now }
}

func WithSleeper(sleep Sleeper) Option {
	return func(s *deployService) { s.sleep = sleep }
}

func WithSpawner(spawn Spawner) Option {
	return func(s *deployService) { s.spawn = spawn }
}

func WithCatalog(catalog Catalog) Option {
	return func(s *deployService) { s.catalog = catalog }
}

func NewService(repo repositories.ResourceRepository, provisioner provision.Client, opts ...Option) Service {
	s := &deployService{
		repo:        repo,
		provisioner: provisioner,
		catalog:     DefaultCatalog(),
		sleep:       sleepContext,
		spawn:       func(fn func()) { go fn() },
		now:         time.Now,
		secret:      randomSecret,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (s *deployService) GetResource(ctx context.Context, resourceID uint64) (*models.Resource, error) {
	return s.repo.FindByID(ctx, resourceID)
}

func (s *deployService) DeployResource(ctx context.Context, resourceID uint64) (*models.DeployResult, error) {
	resource, err := s.repo.FindByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !models.CanStartDeployment(resource.Status) {
		if resource.Status == models.ResourceProvisioning {
			return nil, xerr.ErrDeploymentInProgress
		}
		return nil, xerr.ErrResourceStatusInvalid
	}
	tpl, ok := s.catalog.Lookup(resource.TemplateID)
	if !ok {
		logger.Warn("DeployResource: unknown template", zap.Uint64("resourceID", resourceID), zap.String("templateID", resource.TemplateID))
		return nil, xerr.ErrTemplateNotFound
	}

	cfg := cloneConfig(resource.Configuration)
	delete(cfg, models.ConfigDeploymentError)
	setStage(cfg, Stages[0])
	resource.Status = models.ResourceProvisioning
	resource.Configuration = cfg
	// 重新部署时旧的访问信息作废，只有到达 ACTIVE 才重新写入
	resource.Endpoint = nil
	resource.Credentials = nil
	if err := s.repo.SaveDeployment(ctx, resource); err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
	}

	mode := ModeSimulated
	if tpl.Delegated() {
		mode = ModeDelegated
	}
	logger.Info("Deployment scheduled",
		zap.Uint64("resourceID", resource.ID),
		zap.String("templateID", tpl.ID),
		zap.String("mode", mode))

	// 后台任务持有独立副本，请求结束后不再共享 map
	work := cloneResource(resource)
	s.spawn(func() {
		bg := context.Background()
		if tpl.Delegated() {
			s.RunDelegated(bg, work, tpl)
			return
		}
		s.RunSimulation(bg, work, tpl)
	})

	return &models.DeployResult{Success: true, Mode: mode}, nil
}

func (s *deployService) RunSimulation(ctx context.Context, resource *models.Resource, tpl Template) {
	defer s.recoverInto(ctx, resource)

	if err := s.simulate(ctx, resource, tpl); err != nil {
		s.markFailed(ctx, resource, err)
	}
}

func (s *deployService) simulate(ctx context.Context, resource *models.Resource, tpl Template) error {
	step := tpl.ProvisioningTime / time.Duration(len(Stages))
	if resource.Configuration == nil {
		resource.Configuration = models.ResourceConfiguration{}
	}
	resource.Status = models.ResourceProvisioning

	for _, stage := range Stages[:len(Stages)-1] {
		setStage(resource.Configuration, stage)
		if err := s.repo.SaveDeployment(ctx, resource); err != nil {
			return fmt.Errorf("persist stage %s: %w", stage.Name, err)
		}
		logger.Debug("Deployment stage reached",
			zap.Uint64("resourceID", resource.ID),
			zap.String("stage", stage.Name),
			zap.Int("progress", stage.Progress))
		if err := s.sleep(ctx, step); err != nil {
			return fmt.Errorf("wait after stage %s: %w", stage.Name, err)
		}
	}

	short := shortID(resource)
	secret := s.secret()
	endpoint := fill(tpl.EndpointTemplate, short, secret)
	creds := make(map[string]string, len(tpl.Credentials))
	for k, v := range tpl.Credentials {
		creds[k] = fill(v, short, secret)
	}

	resource.Status = models.ResourceActive
	resource.Endpoint = &endpoint
	resource.Credentials = creds
	setStage(resource.Configuration, Stages[len(Stages)-1])
	resource.Configuration[models.ConfigDeployedAt] = s.now().UTC().Format(time.RFC3339)
	if err := s.repo.SaveDeployment(ctx, resource); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	logger.Info("Simulated deployment complete", zap.Uint64("resourceID", resource.ID), zap.String("endpoint", endpoint))
	return nil
}

func (s *deployService) RunDelegated(ctx context.Context, resource *models.Resource, tpl Template) {
	defer s.recoverInto(ctx, resource)

	if s.provisioner == nil {
		s.markFailed(ctx, resource, errors.New("provisioning api is not configured"))
		return
	}

	req := &provision.CreateRequest{
		Name:    resource.Name,
		UserID:  strconv.FormatUint(resource.UserID, 10),
		SSHKeys: resource.SSHKeys,
	}
	if resource.Project != nil {
		req.ProjectName = resource.Project.Name
		if resource.Project.Organisation != nil {
			req.OrganisationName = resource.Project.Organisation.Name
		}
	}

	resp, err := s.provisioner.Create(ctx, tpl.Provider, req)
	if err != nil {
		s.markFailed(ctx, resource, err)
		return
	}

	if resource.Configuration == nil {
		resource.Configuration = models.ResourceConfiguration{}
	}
	resource.Status = models.ResourceActive
	if resp.Access != "" {
		access := resp.Access
		resource.Endpoint = &access
	}
	resource.Credentials = map[string]string{
		"resourceId": resp.ID,
		"status":     resp.Status,
	}
	setStage(resource.Configuration, Stages[len(Stages)-1])
	resource.Configuration[models.ConfigDeployedAt] = s.now().UTC().Format(time.RFC3339)
	resource.Configuration[models.ConfigProvider] = tpl.Provider
	resource.Configuration[models.ConfigProviderResourceID] = resp.ID

	if err := s.repo.SaveDeployment(ctx, resource); err != nil {
		s.markFailed(ctx, resource, fmt.Errorf("persist completion: %w", err))
		return
	}
	logger.Info("Delegated deployment complete",
		zap.Uint64("resourceID", resource.ID),
		zap.String("provider", tpl.Provider),
		zap.String("providerResourceID", resp.ID))
}

// recoverInto 后台任务里的 panic 也要落成 INACTIVE/failed，不能把资源卡在 PROVISIONING
func (s *deployService) recoverInto(ctx context.Context, resource *models.Resource) {
	if r := recover(); r != nil {
		s.markFailed(ctx, resource, fmt.Errorf("panic: %v", r))
	}
}

func (s *deployService) markFailed(ctx context.Context, resource *models.Resource, cause error) {
	logger.Error("Deployment failed", zap.Uint64("resourceID", resource.ID), zap.Error(cause))

	if resource.Configuration == nil {
		resource.Configuration = models.ResourceConfiguration{}
	}
	resource.Status = models.ResourceInactive
	resource.Endpoint = nil
	resource.Credentials = nil
	resource.Configuration[models.ConfigDeploymentStage] = StageFailed
	resource.Configuration[models.ConfigDeploymentProgress] = 0
	resource.Configuration[models.ConfigDeploymentMessage] = "Deployment failed"
	resource.Configuration[models.ConfigDeploymentError] = cause.Error()

	if err := s.repo.SaveDeployment(ctx, resource); err != nil {
		logger.Error("Deployment failed and state could not be saved", zap.Uint64("resourceID", resource.ID), zap.Error(err))
	}
}

func (s *deployService) GetDeploymentStatus(ctx context.Context, resourceID uint64) (*models.DeploymentStatus, error) {
	resource, err := s.repo.FindByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return statusOf(resource), nil
}

func statusOf(resource *models.Resource) *models.DeploymentStatus {
	cfg := resource.Configuration
	stage := cfg.Stage()

	switch {
	case resource.Status == models.ResourceProvisioning:
		if stage == "" {
			stage = StageInit
		}
		return &models.DeploymentStatus{Stage: stage, Progress: cfg.Progress(), Message: cfg.Message()}
	case resource.Status == models.ResourceActive && stage == StageComplete:
		return &models.DeploymentStatus{Stage: StageComplete, Progress: 100, Message: completeMessage}
	case stage != "":
		return &models.DeploymentStatus{Stage: stage, Progress: cfg.Progress(), Message: cfg.Message()}
	default:
		return nil
	}
}

func (s *deployService) RefreshResource(ctx context.Context, resourceID uint64) (*models.Resource, error) {
	resource, err := s.repo.FindByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.Status == models.ResourceProvisioning {
		return nil, xerr.ErrDeploymentInProgress
	}
	provider, providerID := providerRef(resource)
	if provider == "" || providerID == "" || s.provisioner == nil {
		// 模拟部署的资源没有远端状态可同步
		return resource, nil
	}

	resp, err := s.provisioner.Get(ctx, provider, providerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.ErrUpstream, err)
	}

	if status, ok := mapProviderStatus(resp.Status); ok {
		resource.Status = status
	}
	if resp.Access != "" {
		access := resp.Access
		resource.Endpoint = &access
	}
	if resource.Credentials == nil {
		resource.Credentials = map[string]string{}
	}
	resource.Credentials["resourceId"] = providerID
	resource.Credentials["status"] = resp.Status

	if err := s.repo.SaveDeployment(ctx, resource); err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
	}
	return resource, nil
}

func (s *deployService) DecommissionResource(ctx context.Context, resourceID uint64) error {
	resource, err := s.repo.FindByID(ctx, resourceID)
	if err != nil {
		return err
	}
	switch resource.Status {
	case models.ResourceProvisioning:
		return xerr.ErrDeploymentInProgress
	case models.ResourceDeleted:
		return nil
	}

	provider, providerID := providerRef(resource)
	if provider != "" && providerID != "" {
		if s.provisioner == nil {
			return fmt.Errorf("%w: provisioning api is not configured", xerr.ErrUpstream)
		}
		if _, err := s.provisioner.Delete(ctx, provider, providerID); err != nil {
			return fmt.Errorf("%w: %w", xerr.ErrUpstream, err)
		}
	}

	resource.Status = models.ResourceDeleted
	resource.Endpoint = nil
	resource.Credentials = nil
	if err := s.repo.SaveDeployment(ctx, resource); err != nil {
		return fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
	}
	logger.Info("Resource decommissioned", zap.Uint64("resourceID", resourceID), zap.String("provider", provider))
	return nil
}

func providerRef(resource *models.Resource) (string, string) {
	provider, _ := resource.Configuration[models.ConfigProvider].(string)
	id, _ := resource.Configuration[models.ConfigProviderResourceID].(string)
	return provider, id
}

// mapProviderStatus 未知状态 (pending/creating 等) 不改动本地状态
func mapProviderStatus(status string) (models.ResourceStatus, bool) {
	switch strings.ToLower(status) {
	case "running", "active":
		return models.ResourceActive, true
	case "stopped", "error", "failed":
		return models.ResourceInactive, true
	case "maintenance":
		return models.ResourceMaintenance, true
	case "deleted", "terminated":
		return models.ResourceDeleted, true
	default:
		return "", false
	}
}

func setStage(cfg models.ResourceConfiguration, stage Stage) {
	cfg[models.ConfigDeploymentStage] = stage.Name
	cfg[models.ConfigDeploymentProgress] = stage.Progress
	cfg[models.ConfigDeploymentMessage] = stage.Message
}

// shortID 资源 UUID 的前 8 位
func shortID(resource *models.Resource) string {
	if len(resource.UUID) >= 8 {
		return resource.UUID[:8]
	}
	if resource.UUID != "" {
		return resource.UUID
	}
	return strconv.FormatUint(resource.ID, 10)
}

func fill(tmpl, id, secret string) string {
	return strings.NewReplacer("{id}", id, "{secret}", secret).Replace(tmpl)
}

func cloneConfig(cfg models.ResourceConfiguration) models.ResourceConfiguration {
	out := make(models.ResourceConfiguration, len(cfg)+4)
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

func cloneResource(r *models.Resource) *models.Resource {
	c := *r
	c.Configuration = cloneConfig(r.Configuration)
	if r.Credentials != nil {
		c.Credentials = make(map[string]string, len(r.Credentials))
		for k, v := range r.Credentials {
			c.Credentials[k] = v
		}
	}
	if r.Endpoint != nil {
		e := *r.Endpoint
		c.Endpoint = &e
	}
	return &c
}
