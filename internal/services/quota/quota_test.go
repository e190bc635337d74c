package quota

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- fakes ---

type fakeUserRepo struct {
	users     map[uint64]*models.User
	getErr    error
	updateErr error
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) error { return nil }
func (f *fakeUserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserRepo) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}
func (f *fakeUserRepo) UpdateStorageTier(tx *gorm.DB, userID uint64, tier models.StorageTier) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.StorageTier = tier
	return nil
}

type fakeQuotaRepo struct {
	quotas    map[uint64]*models.StorageQuota
	creates   int
	updates   int
	updateErr error
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{quotas: map[uint64]*models.StorageQuota{}}
}

func (f *fakeQuotaRepo) FindByUserID(ctx context.Context, userID uint64) (*models.StorageQuota, error) {
	q, ok := f.quotas[userID]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}
func (f *fakeQuotaRepo) CreateIfAbsent(ctx context.Context, quota *models.StorageQuota) error {
	f.creates++
	if _, ok := f.quotas[quota.UserID]; ok {
		return nil
	}
	cp := *quota
	cp.ID = uint64(len(f.quotas) + 1)
	f.quotas[quota.UserID] = &cp
	return nil
}
func (f *fakeQuotaRepo) Update(ctx context.Context, quota *models.StorageQuota) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	cp := *quota
	f.quotas[quota.UserID] = &cp
	return nil
}
func (f *fakeQuotaRepo) UpsertAllocation(tx *gorm.DB, userID uint64, tier models.StorageTier, allocated int64, at time.Time) error {
	q, ok := f.quotas[userID]
	if !ok {
		f.quotas[userID] = &models.StorageQuota{UserID: userID, Tier: tier, AllocatedBytes: allocated, TierUpdatedAt: at, LastUpdated: at}
		return nil
	}
	q.Tier = tier
	q.AllocatedBytes = allocated
	q.TierUpdatedAt = at
	q.LastUpdated = at
	return nil
}

type fakeFileRepo struct {
	files []models.File
	err   error
}

func (f *fakeFileRepo) Create(ctx context.Context, file *models.File) error {
	f.files = append(f.files, *file)
	return nil
}
func (f *fakeFileRepo) SumSizeByUser(ctx context.Context, userID uint64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var total int64
	for _, file := range f.files {
		if file.UserID == userID {
			total += file.FileSize
		}
	}
	return total, nil
}
func (f *fakeFileRepo) StatsByType(ctx context.Context, userID uint64) (map[string]models.FileTypeStat, error) {
	stats := map[string]models.FileTypeStat{}
	for _, file := range f.files {
		if file.UserID != userID {
			continue
		}
		s := stats[file.FileType]
		s.Count++
		s.Size += file.FileSize
		stats[file.FileType] = s
	}
	return stats, nil
}
func (f *fakeFileRepo) PinnedStats(ctx context.Context, userID uint64) (models.FileTypeStat, error) {
	var s models.FileTypeStat
	for _, file := range f.files {
		if file.UserID == userID && file.IsPinned {
			s.Count++
			s.Size += file.FileSize
		}
	}
	return s, nil
}
func (f *fakeFileRepo) FindWithCIDByUser(ctx context.Context, userID uint64) ([]models.File, error) {
	return nil, nil
}
func (f *fakeFileRepo) UpdatePinned(ctx context.Context, fileID uint64, pinned bool) error {
	return nil
}

// fakeTM 直接执行回调，不开启真实事务
type fakeTM struct{ calls int }

func (f *fakeTM) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.calls++
	return fn(nil)
}

// --- helpers ---

type fixture struct {
	users  *fakeUserRepo
	quotas *fakeQuotaRepo
	files  *fakeFileRepo
	tm     *fakeTM
	clock  *testutil.StubClock
	svc    Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger.SetLogger(zap.NewNop())
	f := &fixture{
		users: &fakeUserRepo{users: map[uint64]*models.User{
			1: {ID: 1, Username: "alice", StorageTier: models.TierFree},
		}},
		quotas: newFakeQuotaRepo(),
		files:  &fakeFileRepo{},
		tm:     &fakeTM{},
		clock:  testutil.FixedClock(),
	}
	f.svc = NewService(f.users, f.quotas, f.files, f.tm, models.NewTierLimits(50*models.GiB), WithClock(f.clock.Now))
	return f
}

// --- tests ---

func TestGetUserStorageQuota_UserNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetUserStorageQuota(context.Background(), 42)
	assert.ErrorIs(t, err, xerr.ErrUserNotFound)
	assert.Zero(t, f.quotas.creates)
}

func TestGetUserStorageQuota_LazilyCreatesRecord(t *testing.T) {
	f := newFixture(t)
	f.files.files = []models.File{{UserID: 1, FileSize: 100 * models.MiB}}

	info, err := f.svc.GetUserStorageQuota(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, f.quotas.creates)
	assert.Equal(t, models.TierFree, info.Tier)
	assert.Equal(t, 500*models.MiB, info.AllocatedBytes)
	assert.Equal(t, 100*models.MiB, info.UsedBytes)
	assert.Equal(t, 400*models.MiB, info.AvailableBytes)
	assert.Equal(t, int64(20), info.UsagePercentage)

	stored := f.quotas.quotas[1]
	assert.Equal(t, 100*models.MiB, stored.UsedBytes)
	assert.True(t, stored.LastUpdated.Equal(f.clock.Now()))

	// 第二次读取不再创建
	_, err = f.svc.GetUserStorageQuota(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.quotas.creates)
}

func TestGetUserStorageQuota_RepairsStaleAllocation(t *testing.T) {
	f := newFixture(t)
	f.users.users[1].StorageTier = models.TierBasic
	f.quotas.quotas[1] = &models.StorageQuota{ID: 1, UserID: 1, Tier: models.TierBasic, AllocatedBytes: 0}

	info, err := f.svc.GetUserStorageQuota(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 5*models.GiB, info.AllocatedBytes)
	assert.Equal(t, 5*models.GiB, f.quotas.quotas[1].AllocatedBytes)
}

func TestGetUserStorageQuota_AvailableCanBeNegative(t *testing.T) {
	f := newFixture(t)
	// 降级后已用超过分配
	f.files.files = []models.File{{UserID: 1, FileSize: 600 * models.MiB}}

	info, err := f.svc.GetUserStorageQuota(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, -100*models.MiB, info.AvailableBytes)
	assert.Equal(t, int64(120), info.UsagePercentage)
}

func TestGetUserStorageQuota_PropagatesStorageError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.files.err = boom

	_, err := f.svc.GetUserStorageQuota(context.Background(), 1)
	assert.ErrorIs(t, err, xerr.ErrStorageError)
	assert.ErrorIs(t, err, boom)
}

func TestUsagePercentage(t *testing.T) {
	tests := []struct {
		name      string
		used      int64
		allocated int64
		want      int64
	}{
		{"half", 512 * models.MiB, models.GiB, 50},
		{"zero allocated", 512 * models.MiB, 0, 0},
		{"floor", 1, 3, 33},
		{"empty", 0, models.GiB, 0},
		{"unlimited", 500 * models.GiB, models.UnlimitedBytes, 0},
		{"huge used", models.UnlimitedBytes / 2, models.UnlimitedBytes, 49},
		{"huge used tiny allocation", models.UnlimitedBytes, 10, math.MaxInt64},
		{"over quota", 3 * models.GiB, 2 * models.GiB, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UsagePercentage(tt.used, tt.allocated))
		})
	}
}

func TestCheckStorageQuota_Boundary(t *testing.T) {
	f := newFixture(t)
	f.files.files = []models.File{{UserID: 1, FileSize: 100 * models.MiB}}
	ctx := context.Background()

	info, err := f.svc.GetUserStorageQuota(ctx, 1)
	require.NoError(t, err)

	exact, err := f.svc.CheckStorageQuota(ctx, 1, info.AvailableBytes)
	require.NoError(t, err)
	assert.True(t, exact.Allowed)
	assert.Empty(t, exact.Reason)
	assert.Equal(t, info.UsedBytes, exact.CurrentUsage)
	assert.Equal(t, info.AllocatedBytes, exact.TotalQuota)

	over, err := f.svc.CheckStorageQuota(ctx, 1, info.AvailableBytes+1)
	require.NoError(t, err)
	assert.False(t, over.Allowed)
	assert.Equal(t, "Storage quota exceeded. Available: 400 MB, Required: 400 MB", over.Reason)
}

func TestCheckStorageQuota_ReasonNamesBothValues(t *testing.T) {
	f := newFixture(t)

	check, err := f.svc.CheckStorageQuota(context.Background(), 1, 1536*models.MiB)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, "Storage quota exceeded. Available: 500 MB, Required: 1.5 GB", check.Reason)
}

func TestUpdateUserStorageTier_SetsAllocationKeepsUsage(t *testing.T) {
	ctx := context.Background()
	for _, tier := range models.AllTiers {
		t.Run(string(tier), func(t *testing.T) {
			f := newFixture(t)
			f.files.files = []models.File{{UserID: 1, FileSize: 123456}}
			_, err := f.svc.GetUserStorageQuota(ctx, 1)
			require.NoError(t, err)

			f.clock.Advance(time.Hour)
			require.NoError(t, f.svc.UpdateUserStorageTier(ctx, 1, tier, 99))

			stored := f.quotas.quotas[1]
			assert.Equal(t, f.svc.TierLimit(tier), stored.AllocatedBytes)
			assert.Equal(t, int64(123456), stored.UsedBytes)
			assert.Equal(t, tier, stored.Tier)
			assert.True(t, stored.TierUpdatedAt.Equal(f.clock.Now()))
			assert.Equal(t, tier, f.users.users[1].StorageTier)
			assert.Equal(t, 1, f.tm.calls)
		})
	}
}

func TestUpdateUserStorageTier_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.UpdateUserStorageTier(ctx, 1, "GIGANTIC", 99), xerr.ErrInvalidTier)
	assert.Zero(t, f.tm.calls)

	assert.ErrorIs(t, f.svc.UpdateUserStorageTier(ctx, 404, models.TierPro, 99), xerr.ErrUserNotFound)
}

func TestTierLimit(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 500*models.MiB, f.svc.TierLimit(models.TierFree))
	assert.Equal(t, 5*models.GiB, f.svc.TierLimit(models.TierBasic))
	assert.Equal(t, 50*models.GiB, f.svc.TierLimit(models.TierPro))
	assert.Equal(t, 500*models.GiB, f.svc.TierLimit(models.TierEnterprise))
	assert.Equal(t, models.UnlimitedBytes, f.svc.TierLimit(models.TierUnlimited))
}

func TestGetUserStorageStats(t *testing.T) {
	f := newFixture(t)
	f.files.files = []models.File{
		{UserID: 1, FileType: "document", FileSize: 1024, IsPinned: true},
		{UserID: 1, FileType: "document", FileSize: 2048},
		{UserID: 1, FileType: "image", FileSize: 5120, IsPinned: true},
		{UserID: 2, FileType: "image", FileSize: 1 << 20},
	}

	stats, err := f.svc.GetUserStorageStats(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, map[string]models.FileTypeStat{
		"document": {Count: 2, Size: 3072},
		"image":    {Count: 1, Size: 5120},
	}, stats.FileTypes)
	assert.Equal(t, int64(3), stats.TotalFiles)
	assert.Equal(t, int64(8192), stats.TotalSize)
	assert.Equal(t, int64(2), stats.PinnedFiles)
	assert.Equal(t, int64(6144), stats.PinnedSize)
	require.NotNil(t, stats.Quota)
	assert.Equal(t, int64(8192), stats.Quota.UsedBytes)
}
