package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/provision"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- fakes ---

type savedState struct {
	Status   models.ResourceStatus
	Stage    string
	Progress int
}

type fakeResourceRepo struct {
	mu        sync.Mutex
	resources map[uint64]*models.Resource
	history   []savedState
	failStage string
}

func newFakeRepo(resources ...*models.Resource) *fakeResourceRepo {
	repo := &fakeResourceRepo{resources: map[uint64]*models.Resource{}}
	for _, r := range resources {
		repo.resources[r.ID] = cloneResource(r)
	}
	return repo
}

func (f *fakeResourceRepo) Create(ctx context.Context, resource *models.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[resource.ID] = cloneResource(resource)
	return nil
}

func (f *fakeResourceRepo) FindByID(ctx context.Context, id uint64) (*models.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return nil, xerr.ErrResourceNotFound
	}
	return cloneResource(r), nil
}

func (f *fakeResourceRepo) SaveDeployment(ctx context.Context, resource *models.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStage != "" && resource.Configuration.Stage() == f.failStage {
		return errors.New("disk full")
	}
	f.resources[resource.ID] = cloneResource(resource)
	f.history = append(f.history, savedState{
		Status:   resource.Status,
		Stage:    resource.Configuration.Stage(),
		Progress: resource.Configuration.Progress(),
	})
	return nil
}

func (f *fakeResourceRepo) get(id uint64) *models.Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneResource(f.resources[id])
}

type fakeProvisioner struct {
	createResp *provision.Response
	createErr  error
	getResp    *provision.Response
	lastCreate *provision.CreateRequest
	deleted    []string
}

func (f *fakeProvisioner) Create(ctx context.Context, provider string, req *provision.CreateRequest) (*provision.Response, error) {
	f.lastCreate = req
	return f.createResp, f.createErr
}

func (f *fakeProvisioner) Get(ctx context.Context, provider, resourceID string) (*provision.Response, error) {
	return f.getResp, nil
}

func (f *fakeProvisioner) Delete(ctx context.Context, provider, resourceID string) (*provision.Response, error) {
	f.deleted = append(f.deleted, provider+"/"+resourceID)
	return &provision.Response{Success: true}, nil
}

// --- helpers ---

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func syncSpawn(fn func()) { fn() }

func newResource(id uint64, templateID string, status models.ResourceStatus) *models.Resource {
	return &models.Resource{
		ID:         id,
		UUID:       "3f2a9c1e-1111-2222-3333-444455556666",
		UserID:     7,
		ProjectID:  1,
		Name:       "my-resource",
		TemplateID: templateID,
		Status:     status,
		SSHKeys:    []string{"ssh-ed25519 AAAA"},
		Project: &models.Project{
			ID:           1,
			Name:         "site",
			Organisation: &models.Organisation{ID: 1, Name: "acme"},
		},
	}
}

func newTestService(repo *fakeResourceRepo, prov provision.Client, opts ...Option) (Service, *sleepRecorder) {
	logger.SetLogger(zap.NewNop())
	rec := &sleepRecorder{}
	base := []Option{
		WithSleeper(rec.sleep),
		WithSpawner(syncSpawn),
		WithClock(testutil.FixedClock().Now),
	}
	svc := NewService(repo, prov, append(base, opts...)...)
	svc.(*deployService).secret = func() string { return "s3cr3t" }
	return svc, rec
}

// --- tests ---

func TestRunSimulation_ReachesActive(t *testing.T) {
	res := newResource(1, "postgres", models.ResourceProvisioning)
	repo := newFakeRepo(res)
	svc, rec := newTestService(repo, nil)
	tpl, _ := DefaultCatalog().Lookup("postgres")

	svc.RunSimulation(context.Background(), cloneResource(res), tpl)

	got := repo.get(1)
	assert.Equal(t, models.ResourceActive, got.Status)
	assert.Equal(t, StageComplete, got.Configuration.Stage())
	assert.Equal(t, 100, got.Configuration.Progress())
	assert.Equal(t, "2024-01-15T10:30:00Z", got.Configuration[models.ConfigDeployedAt])
	require.NotNil(t, got.Endpoint)
	assert.Equal(t, "postgresql://db-3f2a9c1e.db.stackdash.app:5432/app", *got.Endpoint)
	assert.Equal(t, map[string]string{
		"username": "app_3f2a9c1e",
		"password": "s3cr3t",
		"database": "app",
	}, got.Credentials)

	for _, d := range rec.waits {
		assert.Equal(t, tpl.ProvisioningTime/time.Duration(len(Stages)), d)
	}
	assert.Len(t, rec.waits, len(Stages)-1)

	// 进度单调不减，且 PROVISIONING 期间每个阶段都被持久化
	var stages []string
	last := -1
	for _, h := range repo.history {
		assert.GreaterOrEqual(t, h.Progress, last)
		last = h.Progress
		stages = append(stages, h.Stage)
	}
	assert.Equal(t, []string{"init", "allocate", "configure", "provision", "verify", "complete"}, stages)
}

func TestRunSimulation_FailureMidWalk(t *testing.T) {
	res := newResource(2, "web-server", models.ResourceProvisioning)
	repo := newFakeRepo(res)
	repo.failStage = "configure"
	svc, _ := newTestService(repo, nil)
	tpl, _ := DefaultCatalog().Lookup("web-server")

	svc.RunSimulation(context.Background(), cloneResource(res), tpl)

	got := repo.get(2)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Equal(t, StageFailed, got.Configuration.Stage())
	assert.Equal(t, 0, got.Configuration.Progress())
	assert.Contains(t, got.Configuration[models.ConfigDeploymentError], "disk full")
	assert.Nil(t, got.Endpoint)
}

func TestRunSimulation_CompletionWriteFails(t *testing.T) {
	res := newResource(20, "web-server", models.ResourceProvisioning)
	repo := newFakeRepo(res)
	repo.failStage = StageComplete
	svc, _ := newTestService(repo, nil)
	tpl, _ := DefaultCatalog().Lookup("web-server")

	svc.RunSimulation(context.Background(), cloneResource(res), tpl)

	got := repo.get(20)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Equal(t, StageFailed, got.Configuration.Stage())
	assert.Contains(t, got.Configuration[models.ConfigDeploymentError], "persist completion")
	// 生成的 endpoint 和密码不能随失败状态一起落库
	assert.Nil(t, got.Endpoint)
	assert.Nil(t, got.Credentials)
}

func TestDeployResource_RedeployFromActiveFails(t *testing.T) {
	old := "https://old.example"
	res := newResource(21, "web-server", models.ResourceActive)
	res.Endpoint = &old
	res.Credentials = map[string]string{"password": "old"}
	res.Configuration = models.ResourceConfiguration{}
	setStage(res.Configuration, Stages[len(Stages)-1])
	repo := newFakeRepo(res)
	repo.failStage = "allocate"
	svc, _ := newTestService(repo, nil)

	_, err := svc.DeployResource(context.Background(), 21)
	require.NoError(t, err)

	got := repo.get(21)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Equal(t, StageFailed, got.Configuration.Stage())
	assert.Nil(t, got.Endpoint)
	assert.Nil(t, got.Credentials)
}

func TestDeployResource_ClearsAccessWhileProvisioning(t *testing.T) {
	old := "https://old.example"
	res := newResource(22, "web-server", models.ResourceActive)
	res.Endpoint = &old
	res.Credentials = map[string]string{"password": "old"}
	repo := newFakeRepo(res)
	svc, _ := newTestService(repo, nil, WithSpawner(func(fn func()) {}))

	_, err := svc.DeployResource(context.Background(), 22)
	require.NoError(t, err)

	got := repo.get(22)
	assert.Equal(t, models.ResourceProvisioning, got.Status)
	assert.Nil(t, got.Endpoint)
	assert.Nil(t, got.Credentials)
}

func TestRunSimulation_PanicIsContained(t *testing.T) {
	res := newResource(3, "web-server", models.ResourceProvisioning)
	repo := newFakeRepo(res)
	svc, _ := newTestService(repo, nil, WithSleeper(func(ctx context.Context, d time.Duration) error {
		panic("sleeper exploded")
	}))
	tpl, _ := DefaultCatalog().Lookup("web-server")

	assert.NotPanics(t, func() {
		svc.RunSimulation(context.Background(), cloneResource(res), tpl)
	})

	got := repo.get(3)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Equal(t, StageFailed, got.Configuration.Stage())
	assert.Equal(t, "panic: sleeper exploded", got.Configuration[models.ConfigDeploymentError])
}

func TestRunSimulation_CancelledContext(t *testing.T) {
	res := newResource(4, "web-server", models.ResourceProvisioning)
	repo := newFakeRepo(res)
	svc, _ := newTestService(repo, nil, WithSleeper(sleepContext))
	tpl, _ := DefaultCatalog().Lookup("web-server")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.RunSimulation(ctx, cloneResource(res), tpl)

	got := repo.get(4)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Contains(t, got.Configuration[models.ConfigDeploymentError], context.Canceled.Error())
}

func TestDeployResource_Simulated(t *testing.T) {
	res := newResource(5, "api-gateway", models.ResourceInactive)
	res.Configuration = models.ResourceConfiguration{models.ConfigDeploymentError: "old failure"}
	repo := newFakeRepo(res)
	svc, _ := newTestService(repo, nil)

	result, err := svc.DeployResource(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, ModeSimulated, result.Mode)

	require.NotEmpty(t, repo.history)
	assert.Equal(t, savedState{Status: models.ResourceProvisioning, Stage: StageInit, Progress: 0}, repo.history[0])

	got := repo.get(5)
	assert.Equal(t, models.ResourceActive, got.Status)
	assert.NotContains(t, got.Configuration, models.ConfigDeploymentError)
}

func TestDeployResource_ReturnsBeforeWorkFinishes(t *testing.T) {
	res := newResource(6, "web-server", models.ResourceActive)
	repo := newFakeRepo(res)

	var pending func()
	svc, _ := newTestService(repo, nil, WithSpawner(func(fn func()) { pending = fn }))

	result, err := svc.DeployResource(context.Background(), 6)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, pending)

	status, err := svc.GetDeploymentStatus(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, &models.DeploymentStatus{Stage: StageInit, Progress: 0, Message: Stages[0].Message}, status)

	pending()
	status, err = svc.GetDeploymentStatus(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, &models.DeploymentStatus{Stage: StageComplete, Progress: 100, Message: "Deployment complete!"}, status)
}

func TestDeployResource_Guards(t *testing.T) {
	repo := newFakeRepo(
		newResource(10, "web-server", models.ResourceProvisioning),
		newResource(11, "web-server", models.ResourceDeleted),
		newResource(12, "no-such-template", models.ResourceInactive),
	)
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.DeployResource(ctx, 10)
	assert.ErrorIs(t, err, xerr.ErrDeploymentInProgress)
	_, err = svc.DeployResource(ctx, 11)
	assert.ErrorIs(t, err, xerr.ErrResourceStatusInvalid)
	_, err = svc.DeployResource(ctx, 12)
	assert.ErrorIs(t, err, xerr.ErrTemplateNotFound)
	_, err = svc.DeployResource(ctx, 99)
	assert.ErrorIs(t, err, xerr.ErrResourceNotFound)
	assert.Empty(t, repo.history)
}

func TestDeployResource_Delegated(t *testing.T) {
	res := newResource(20, "vps", models.ResourceInactive)
	repo := newFakeRepo(res)
	prov := &fakeProvisioner{createResp: &provision.Response{Success: true, ID: "srv-42", Status: "running", Access: "ssh root@10.0.0.9"}}
	svc, _ := newTestService(repo, prov)

	result, err := svc.DeployResource(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, ModeDelegated, result.Mode)

	require.NotNil(t, prov.lastCreate)
	assert.Equal(t, provision.CreateRequest{
		Name:             "my-resource",
		OrganisationName: "acme",
		ProjectName:      "site",
		UserID:           "7",
		SSHKeys:          []string{"ssh-ed25519 AAAA"},
	}, *prov.lastCreate)

	got := repo.get(20)
	assert.Equal(t, models.ResourceActive, got.Status)
	require.NotNil(t, got.Endpoint)
	assert.Equal(t, "ssh root@10.0.0.9", *got.Endpoint)
	assert.Equal(t, map[string]string{"resourceId": "srv-42", "status": "running"}, got.Credentials)
	assert.Equal(t, StageComplete, got.Configuration.Stage())
	assert.Equal(t, 100, got.Configuration.Progress())
	assert.Equal(t, "srv-42", got.Configuration[models.ConfigProviderResourceID])
}

func TestRunDelegated_ProviderFailure(t *testing.T) {
	res := newResource(21, "vps", models.ResourceProvisioning)
	repo := newFakeRepo(res)
	prov := &fakeProvisioner{createErr: errors.New("provisioning api failed: quota exhausted")}
	svc, _ := newTestService(repo, prov)
	tpl, _ := DefaultCatalog().Lookup("vps")

	svc.RunDelegated(context.Background(), cloneResource(res), tpl)

	got := repo.get(21)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Equal(t, StageFailed, got.Configuration.Stage())
	assert.Equal(t, 0, got.Configuration.Progress())
	assert.Equal(t, "provisioning api failed: quota exhausted", got.Configuration[models.ConfigDeploymentError])
}

func TestRunDelegated_CompletionWriteFails(t *testing.T) {
	res := newResource(23, "vps", models.ResourceProvisioning)
	repo := newFakeRepo(res)
	repo.failStage = StageComplete
	prov := &fakeProvisioner{createResp: &provision.Response{Success: true, ID: "vps-9", Status: "running", Access: "ssh root@10.0.0.9"}}
	svc, _ := newTestService(repo, prov)
	tpl, _ := DefaultCatalog().Lookup("vps")

	svc.RunDelegated(context.Background(), cloneResource(res), tpl)

	got := repo.get(23)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Equal(t, StageFailed, got.Configuration.Stage())
	assert.Nil(t, got.Endpoint)
	assert.Nil(t, got.Credentials)
}

func TestGetDeploymentStatus(t *testing.T) {
	quiet := newResource(30, "web-server", models.ResourceInactive)

	live := newResource(31, "web-server", models.ResourceProvisioning)
	live.Configuration = models.ResourceConfiguration{
		models.ConfigDeploymentStage:    "provision",
		models.ConfigDeploymentProgress: float64(60),
		models.ConfigDeploymentMessage:  "Provisioning infrastructure...",
	}

	done := newResource(32, "web-server", models.ResourceActive)
	done.Configuration = models.ResourceConfiguration{
		models.ConfigDeploymentStage:    StageComplete,
		models.ConfigDeploymentProgress: float64(100),
	}

	failed := newResource(33, "web-server", models.ResourceInactive)
	failed.Configuration = models.ResourceConfiguration{
		models.ConfigDeploymentStage:    StageFailed,
		models.ConfigDeploymentProgress: float64(0),
		models.ConfigDeploymentMessage:  "Deployment failed",
	}

	svc, _ := newTestService(newFakeRepo(quiet, live, done, failed), nil)
	ctx := context.Background()

	status, err := svc.GetDeploymentStatus(ctx, 30)
	require.NoError(t, err)
	assert.Nil(t, status)

	status, err = svc.GetDeploymentStatus(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, &models.DeploymentStatus{Stage: "provision", Progress: 60, Message: "Provisioning infrastructure..."}, status)

	status, err = svc.GetDeploymentStatus(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, &models.DeploymentStatus{Stage: StageComplete, Progress: 100, Message: "Deployment complete!"}, status)

	status, err = svc.GetDeploymentStatus(ctx, 33)
	require.NoError(t, err)
	assert.Equal(t, StageFailed, status.Stage)

	_, err = svc.GetDeploymentStatus(ctx, 404)
	assert.ErrorIs(t, err, xerr.ErrResourceNotFound)
}

func delegatedActive(id uint64) *models.Resource {
	res := newResource(id, "vps", models.ResourceActive)
	res.Configuration = models.ResourceConfiguration{
		models.ConfigDeploymentStage:    StageComplete,
		models.ConfigDeploymentProgress: 100,
		models.ConfigProvider:           "vps",
		models.ConfigProviderResourceID: "srv-1",
	}
	endpoint := "ssh root@10.0.0.1"
	res.Endpoint = &endpoint
	return res
}

func TestRefreshResource(t *testing.T) {
	repo := newFakeRepo(delegatedActive(40), newResource(41, "web-server", models.ResourceActive))
	prov := &fakeProvisioner{getResp: &provision.Response{Success: true, ID: "srv-1", Status: "stopped", Access: "ssh root@10.0.0.2"}}
	svc, _ := newTestService(repo, prov)

	got, err := svc.RefreshResource(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceInactive, got.Status)
	assert.Equal(t, "ssh root@10.0.0.2", *got.Endpoint)
	assert.Equal(t, "stopped", repo.get(40).Credentials["status"])

	// 模拟资源原样返回
	got, err = svc.RefreshResource(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceActive, got.Status)
	assert.Empty(t, repo.history[1:])
}

func TestDecommissionResource(t *testing.T) {
	repo := newFakeRepo(delegatedActive(50), newResource(51, "web-server", models.ResourceProvisioning))
	prov := &fakeProvisioner{}
	svc, _ := newTestService(repo, prov)

	require.NoError(t, svc.DecommissionResource(context.Background(), 50))
	assert.Equal(t, []string{"vps/srv-1"}, prov.deleted)

	got := repo.get(50)
	assert.Equal(t, models.ResourceDeleted, got.Status)
	assert.Nil(t, got.Endpoint)
	assert.Nil(t, got.Credentials)

	assert.ErrorIs(t, svc.DecommissionResource(context.Background(), 51), xerr.ErrDeploymentInProgress)

	_, err := svc.DeployResource(context.Background(), 50)
	assert.ErrorIs(t, err, xerr.ErrResourceStatusInvalid)
}

func TestDefaultCatalog(t *testing.T) {
	for id, tpl := range DefaultCatalog() {
		assert.Equal(t, id, tpl.ID)
		if tpl.Delegated() {
			continue
		}
		assert.NotEmpty(t, tpl.EndpointTemplate, id)
		assert.NotEmpty(t, tpl.Credentials, id)
		assert.Greater(t, int64(tpl.ProvisioningTime), int64(0), id)
	}
}
