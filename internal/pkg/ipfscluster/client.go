// Package ipfscluster IPFS pinning 集群 REST API 的只读客户端
package ipfscluster

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/3Eeeecho/go-stackdash/internal/config"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"go.uber.org/zap"
)

// 每个 peer 上的 pin 状态
const (
	StatusPinned   = "pinned"
	StatusPinning  = "pinning"
	StatusPinError = "pin_error"
)

type Peer struct {
	ID        string   `json:"id"`
	PeerName  string   `json:"peername"`
	Addresses []string `json:"addresses,omitempty"`
	Version   string   `json:"version,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type PeerPinStatus struct {
	PeerName  string `json:"peername"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

type PinInfo struct {
	CID     string                   `json:"cid"`
	Name    string                   `json:"name,omitempty"`
	PeerMap map[string]PeerPinStatus `json:"peer_map"`
}

// Pinned 任意一个 peer 报告 pinned 即视为已固定
func (p PinInfo) Pinned() bool {
	for _, s := range p.PeerMap {
		if s.Status == StatusPinned {
			return true
		}
	}
	return false
}

type Client interface {
	Health(ctx context.Context) bool
	Peers(ctx context.Context) ([]Peer, error)
	Pins(ctx context.Context) ([]PinInfo, error)
}

type httpClient struct {
	base string
	http *http.Client
}

var _ Client = (*httpClient)(nil)

func NewClient(cfg config.IPFSClusterConfig) Client {
	return &httpClient{
		base: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *httpClient) Health(ctx context.Context) bool {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		logger.Warn("ipfs cluster health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *httpClient) Peers(ctx context.Context) ([]Peer, error) {
	var peers []Peer
	err := c.stream(ctx, "/peers", func(dec *json.Decoder) error {
		var p Peer
		if err := dec.Decode(&p); err != nil {
			return err
		}
		peers = append(peers, p)
		return nil
	})
	return peers, err
}

func (c *httpClient) Pins(ctx context.Context) ([]PinInfo, error) {
	var pins []PinInfo
	err := c.stream(ctx, "/pins", func(dec *json.Decoder) error {
		var p PinInfo
		if err := dec.Decode(&p); err != nil {
			return err
		}
		pins = append(pins, p)
		return nil
	})
	return pins, err
}

func (c *httpClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// stream 逐条解码换行分隔的 JSON 记录
func (c *httpClient) stream(ctx context.Context, path string, next func(*json.Decoder) error) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		logger.Error("ipfs cluster request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("ipfs cluster GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ipfs cluster GET %s: unexpected status %d", path, resp.StatusCode)
	}

	dec := json.NewDecoder(bufio.NewReader(resp.Body))
	for dec.More() {
		if err := next(dec); err != nil {
			return fmt.Errorf("ipfs cluster GET %s: decode: %w", path, err)
		}
	}
	return nil
}
