package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/cache"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/ipfscluster"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/repositories"
	"github.com/3Eeeecho/go-stackdash/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClusterClient struct {
	mu       sync.Mutex
	healthy  bool
	peers    []ipfscluster.Peer
	pins     []ipfscluster.PinInfo
	peersErr error
	calls    int
}

func (f *fakeClusterClient) Health(ctx context.Context) bool { return f.healthy }

func (f *fakeClusterClient) Peers(ctx context.Context) ([]ipfscluster.Peer, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.peers, f.peersErr
}

func (f *fakeClusterClient) Pins(ctx context.Context) ([]ipfscluster.PinInfo, error) {
	return f.pins, nil
}

// memCache 按 JSON 存取，与 RedisCache 行为一致
type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *memCache) Get(ctx context.Context, key string, target any) error {
	b, ok := m.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, target)
}

func (m *memCache) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func pin(cid string, statuses ...string) ipfscluster.PinInfo {
	pm := map[string]ipfscluster.PeerPinStatus{}
	for i, st := range statuses {
		pm[string(rune('a'+i))] = ipfscluster.PeerPinStatus{Status: st}
	}
	return ipfscluster.PinInfo{CID: cid, PeerMap: pm}
}

func TestSnapshot_CachesAndRefreshes(t *testing.T) {
	db := testutil.NewTestDB(t)
	client := &fakeClusterClient{
		healthy: true,
		peers:   []ipfscluster.Peer{{ID: "p1", PeerName: "node1"}},
		pins: []ipfscluster.PinInfo{
			pin("bafy1", ipfscluster.StatusPinned, ipfscluster.StatusPinning),
			pin("bafy2", ipfscluster.StatusPinning),
			pin("bafy3", ipfscluster.StatusPinError),
		},
	}
	store := newMemCache()
	svc := NewService(client, repositories.NewFileRepository(db), store, time.Minute)
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx, false)
	require.NoError(t, err)
	assert.True(t, snap.Healthy)
	assert.Len(t, snap.Peers, 1)
	assert.Equal(t, 3, snap.PinCount)
	assert.Equal(t, 1, snap.Pinned)
	assert.Equal(t, 1, snap.Pinning)
	assert.Equal(t, 1, snap.PinErrors)
	assert.Contains(t, store.data, cache.GenerateClusterSnapshotKey())

	_, err = svc.Snapshot(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)

	_, err = svc.Snapshot(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestSnapshot_UpstreamError(t *testing.T) {
	db := testutil.NewTestDB(t)
	client := &fakeClusterClient{peersErr: errors.New("connection refused")}
	svc := NewService(client, repositories.NewFileRepository(db), nil, 0)

	_, err := svc.Snapshot(context.Background(), false)
	assert.ErrorIs(t, err, xerr.ErrUpstream)
}

func TestSyncUserPins(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "alice")
	other := testutil.CreateUser(t, db, "bob")
	repo := repositories.NewFileRepository(db)
	ctx := context.Background()

	cid := func(s string) *string { return &s }
	files := []*models.File{
		{UUID: "f1", UserID: user.ID, FileName: "a", FileSize: 1, CID: cid("bafyA")},
		{UUID: "f2", UserID: user.ID, FileName: "b", FileSize: 1, CID: cid("bafyB"), IsPinned: true},
		{UUID: "f3", UserID: user.ID, FileName: "c", FileSize: 1},
		{UUID: "f4", UserID: other.ID, FileName: "d", FileSize: 1, CID: cid("bafyA")},
	}
	for _, f := range files {
		require.NoError(t, repo.Create(ctx, f))
	}

	client := &fakeClusterClient{pins: []ipfscluster.PinInfo{
		pin("bafyA", ipfscluster.StatusPinning, ipfscluster.StatusPinned),
		pin("bafyB", ipfscluster.StatusPinError),
	}}
	svc := NewService(client, repo, nil, 0)

	result, err := svc.SyncUserPins(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Checked: 2, Pinned: 1, Unpinned: 1}, result)

	var got []models.File
	require.NoError(t, db.Order("id").Find(&got).Error)
	assert.True(t, got[0].IsPinned)
	assert.False(t, got[1].IsPinned)
	assert.False(t, got[2].IsPinned)
	assert.False(t, got[3].IsPinned, "other users' files are untouched")

	again, err := svc.SyncUserPins(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Checked: 2}, again)
}
