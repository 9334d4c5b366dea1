package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Gateway 目录服务调用契约
type Gateway interface {
	Teams(ctx context.Context) ([]Team, error)
	Services(ctx context.Context) ([]Service, error)
	Users(ctx context.Context) ([]User, error)
	GetService(ctx context.Context, id string) (*Service, error)
	UpdateService(ctx context.Context, id string, patch ServicePatch) (*Service, error)
}

// ClientOptions HTTP 客户端配置，显式注入，不读取全局环境
type ClientOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	PageSize   int
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
}

// Client 基于 REST 的目录客户端（offset/limit 分页）
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	pageSize   int
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

var _ Gateway = (*Client)(nil)

const maxPages = 1000

// NewClient 创建目录客户端
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		pageSize:   pageSize,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger.Named("directory"),
	}
}

type page struct {
	More   bool `json:"more"`
	Offset int  `json:"offset"`
	Limit  int  `json:"limit"`
}

// Teams 拉取全部团队（自动翻页）
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	out := []Team{}
	err := c.drain(ctx, "/teams", func(body []byte) (bool, error) {
		var resp struct {
			page
			Teams []Team `json:"teams"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return false, err
		}
		out = append(out, resp.Teams...)
		return resp.More && len(resp.Teams) > 0, nil
	})
	return out, err
}

// Services 拉取全部技术服务（自动翻页）
func (c *Client) Services(ctx context.Context) ([]Service, error) {
	out := []Service{}
	err := c.drain(ctx, "/services", func(body []byte) (bool, error) {
		var resp struct {
			page
			Services []Service `json:"services"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return false, err
		}
		out = append(out, resp.Services...)
		return resp.More && len(resp.Services) > 0, nil
	})
	return out, err
}

// Users 拉取全部用户（自动翻页）
func (c *Client) Users(ctx context.Context) ([]User, error) {
	out := []User{}
	err := c.drain(ctx, "/users", func(body []byte) (bool, error) {
		var resp struct {
			page
			Users []User `json:"users"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return false, err
		}
		out = append(out, resp.Users...)
		return resp.More && len(resp.Users) > 0, nil
	})
	return out, err
}

// GetService 获取单个服务
func (c *Client) GetService(ctx context.Context, id string) (*Service, error) {
	body, err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Service Service `json:"service"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode service: %w", err)
	}
	return &resp.Service, nil
}

// UpdateService 更新服务
func (c *Client) UpdateService(ctx context.Context, id string, patch ServicePatch) (*Service, error) {
	payload, err := json.Marshal(map[string]ServicePatch{"service": patch})
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodPut, "/services/"+url.PathEscape(id), payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Service Service `json:"service"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode service: %w", err)
	}
	return &resp.Service, nil
}

// drain 按 offset/limit 翻页直到 more=false
func (c *Client) drain(ctx context.Context, path string, handle func(body []byte) (bool, error)) error {
	offset := 0
	for i := 0; i < maxPages; i++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))
		body, err := c.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		more, err := handle(body)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if !more {
			return nil
		}
		offset += c.pageSize
	}
	return fmt.Errorf("directory %s: exceeded %d pages", path, maxPages)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	endpoint := c.baseURL + path
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Token token="+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < c.maxRetries {
				c.logger.Debug("directory request failed, retrying",
					zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, &APIError{Method: method, Path: path, Err: waitErr}
				}
				continue
			}
			return nil, &APIError{Method: method, Path: path, Err: err}
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, &APIError{Method: method, Path: path, Err: readErr}
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return body, nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt < c.maxRetries {
			c.logger.Debug("directory request throttled, retrying",
				zap.String("path", path), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, &APIError{Method: method, Path: path, Err: waitErr}
			}
			continue
		}

		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(retryAfterHeader)); err == nil && seconds > 0 {
		d := time.Duration(seconds) * time.Second
		if d > c.maxDelay {
			return c.maxDelay
		}
		return d
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
