// Package cluster IPFS pinning 集群状态汇总与文件固定状态同步
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/pkg/cache"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/ipfscluster"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/repositories"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Snapshot 集群状态快照，缓存在 Redis 中
type Snapshot struct {
	Healthy   bool               `json:"healthy"`
	Peers     []ipfscluster.Peer `json:"peers"`
	PinCount  int                `json:"pin_count"`
	Pinned    int                `json:"pinned"`
	Pinning   int                `json:"pinning"`
	PinErrors int                `json:"pin_errors"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// SyncResult 一次同步中被检查和被修改的文件数
type SyncResult struct {
	Checked  int `json:"checked"`
	Pinned   int `json:"pinned"`
	Unpinned int `json:"unpinned"`
}

type Service interface {
	// Snapshot refresh 为 true 时跳过缓存
	Snapshot(ctx context.Context, refresh bool) (*Snapshot, error)
	// SyncUserPins 任意 peer 报告 pinned 的文件标记为 is_pinned
	SyncUserPins(ctx context.Context, userID uint64) (*SyncResult, error)
}

type clusterService struct {
	client   ipfscluster.Client
	fileRepo repositories.FileRepository
	cache    cache.Cache
	ttl      time.Duration
	now      func() time.Time
}

var _ Service = (*clusterService)(nil)

// NewService cacheStore 可以为 nil，此时每次都直接请求集群
func NewService(client ipfscluster.Client, fileRepo repositories.FileRepository, cacheStore cache.Cache, ttl time.Duration) Service {
	return &clusterService{
		client:   client,
		fileRepo: fileRepo,
		cache:    cacheStore,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *clusterService) Snapshot(ctx context.Context, refresh bool) (*Snapshot, error) {
	key := cache.GenerateClusterSnapshotKey()
	if s.cache != nil && !refresh {
		var cached Snapshot
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("Cluster snapshot cache read failed, falling back to cluster", zap.Error(err))
		}
	}

	snap, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, snap, s.ttl); err != nil {
			logger.Warn("Failed to cache cluster snapshot", zap.Error(err))
		}
	}
	return snap, nil
}

// fetch 并发请求 health / peers / pins
func (s *clusterService) fetch(ctx context.Context) (*Snapshot, error) {
	var (
		healthy bool
		peers   []ipfscluster.Peer
		pins    []ipfscluster.PinInfo
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		healthy = s.client.Health(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		peers, err = s.client.Peers(ctx)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		pins, err = s.client.Pins(ctx)
		return err
	})
	if err := p.Wait(); err != nil {
		logger.Error("Failed to query ipfs cluster", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", xerr.ErrUpstream, err)
	}

	snap := &Snapshot{
		Healthy:   healthy,
		Peers:     peers,
		PinCount:  len(pins),
		FetchedAt: s.now().UTC(),
	}
	if snap.Peers == nil {
		snap.Peers = []ipfscluster.Peer{}
	}
	for _, pin := range pins {
		switch summarize(pin) {
		case ipfscluster.StatusPinned:
			snap.Pinned++
		case ipfscluster.StatusPinning:
			snap.Pinning++
		case ipfscluster.StatusPinError:
			snap.PinErrors++
		}
	}
	return snap, nil
}

// summarize 把各 peer 的状态归并成一个: pinned > pinning > pin_error
func summarize(pin ipfscluster.PinInfo) string {
	if pin.Pinned() {
		return ipfscluster.StatusPinned
	}
	result := ""
	for _, st := range pin.PeerMap {
		switch st.Status {
		case ipfscluster.StatusPinning:
			result = ipfscluster.StatusPinning
		case ipfscluster.StatusPinError:
			if result == "" {
				result = ipfscluster.StatusPinError
			}
		}
	}
	return result
}

func (s *clusterService) SyncUserPins(ctx context.Context, userID uint64) (*SyncResult, error) {
	files, err := s.fileRepo.FindWithCIDByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
	}
	result := &SyncResult{}
	if len(files) == 0 {
		return result, nil
	}

	pins, err := s.client.Pins(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.ErrUpstream, err)
	}
	pinned := make(map[string]bool, len(pins))
	for _, pin := range pins {
		pinned[pin.CID] = pin.Pinned()
	}

	for _, file := range files {
		result.Checked++
		want := pinned[*file.CID]
		if file.IsPinned == want {
			continue
		}
		if err := s.fileRepo.UpdatePinned(ctx, file.ID, want); err != nil {
			return nil, fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
		}
		if want {
			result.Pinned++
		} else {
			result.Unpinned++
		}
	}

	logger.Info("Synced pin status from cluster",
		zap.Uint64("userID", userID),
		zap.Int("checked", result.Checked),
		zap.Int("pinned", result.Pinned),
		zap.Int("unpinned", result.Unpinned))
	return result, nil
}
