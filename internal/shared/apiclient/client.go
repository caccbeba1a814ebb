// Package apiclient 访问后端REST API的基础客户端
// 统一处理鉴权头、超时与 {code, message, data} 响应结构
package apiclient

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
	"time"
)

const defaultTimeout = 30 * time.Second

// envelope 后端统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError 后端返回的业务错误
type APIError struct {
	Status  int    // HTTP状态码
	Code    int    // 业务错误码
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error [%d/%d]: %s (path=%s)", e.Status, e.Code, e.Message, e.Path)
}

// IsNotFound 判断错误是否为资源不存在
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusNotFound || apiErr.Code == 40400
	}
	return false
}

// Client REST客户端
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient 创建客户端，baseURL形如 http://host:8000/api/v1
func NewClient(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do 执行请求
// query: 查询参数（可为nil）
// body: 请求体（会被JSON序列化，nil则不发送body）
// result: data字段反序列化目标（可为nil）
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Path: path}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 || env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: msg, Path: path}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
