// Package provision 外部资源开通 API 的客户端
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/3Eeeecho/go-stackdash/internal/config"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"go.uber.org/zap"
)

// CreateRequest 开通请求体
type CreateRequest struct {
	Name             string   `json:"name"`
	OrganisationName string   `json:"organisationName"`
	ProjectName      string   `json:"projectName"`
	UserID           string   `json:"userId"`
	SSHKeys          []string `json:"sshKeys"`
}

// Response 开通 API 的统一返回结构
type Response struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status,omitempty"`
	Access  string `json:"access,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client 开通 API 的调用接口
type Client interface {
	Create(ctx context.Context, provider string, req *CreateRequest) (*Response, error)
	Get(ctx context.Context, provider, resourceID string) (*Response, error)
	Delete(ctx context.Context, provider, resourceID string) (*Response, error)
}

// ErrProvider 开通 API 返回失败
var ErrProvider = errors.New("provisioning api failed")

type httpClient struct {
	base   string
	apiKey string
	http   *http.Client
}

var _ Client = (*httpClient)(nil)

// NewClient Timeout 为 0 时不设置超时
func NewClient(cfg config.ProvisioningConfig) Client {
	return &httpClient{
		base:   strings.TrimRight(cfg.APIBase, "/"),
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *httpClient) Create(ctx context.Context, provider string, req *CreateRequest) (*Response, error) {
	if req.SSHKeys == nil {
		req.SSHKeys = []string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode provisioning request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.endpoint(provider), body)
}

func (c *httpClient) Get(ctx context.Context, provider, resourceID string) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.endpoint(provider, resourceID), nil)
}

func (c *httpClient) Delete(ctx context.Context, provider, resourceID string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, c.endpoint(provider, resourceID), nil)
}

func (c *httpClient) endpoint(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.base + "/v1/" + strings.Join(escaped, "/")
}

func (c *httpClient) do(ctx context.Context, method, target string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build provisioning request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error("provisioning request failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return nil, fmt.Errorf("provisioning request %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioning response: %w", err)
	}

	var out Response
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("failed to decode provisioning response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		logger.Warn("provisioning api returned failure",
			zap.String("method", method),
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.String("error", msg))
		return &out, fmt.Errorf("%w: %s", ErrProvider, msg)
	}
	return &out, nil
}
