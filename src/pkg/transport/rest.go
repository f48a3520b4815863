package transport

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// RESTClient JSON REST 客户端
type RESTClient struct {
	client *resty.Client
	retry  RetryPolicy
}

func NewRESTClient(baseURL string, opts HTTPOptions) *RESTClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.timeout()).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}).
		SetHeader("Accept", "application/json")
	return &RESTClient{client: client, retry: opts.Retry}
}

// SetBasicAuth Pexip 等设备使用 Basic 认证
func (c *RESTClient) SetBasicAuth(username, password string) *RESTClient {
	c.client.SetBasicAuth(username, password)
	return c
}

// SetToken 设置 Bearer 令牌
func (c *RESTClient) SetToken(token string) *RESTClient {
	c.client.SetAuthToken(token)
	return c
}

// Request 单个 REST 请求
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   any
	// Expect 认为成功的状态码，为空时接受所有 2xx
	Expect []int
}

// Response REST 响应
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Do 执行请求，非预期状态码返回 *StatusError
func (c *RESTClient) Do(ctx context.Context, r Request) (*Response, error) {
	return Do(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		req := c.client.R().SetContext(ctx)
		if len(r.Query) > 0 {
			req.SetQueryParams(r.Query)
		}
		if r.Body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(r.Body)
		}
		resp, err := req.Execute(r.Method, r.Path)
		if err != nil {
			return nil, err
		}
		out := &Response{StatusCode: resp.StatusCode(), Body: resp.Body(), Header: resp.Header()}
		if !expected(r.Expect, out.StatusCode) {
			return out, &StatusError{URL: r.Path, StatusCode: out.StatusCode, Body: string(out.Body)}
		}
		return out, nil
	})
}

func (c *RESTClient) Get(ctx context.Context, path string, query map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

func expected(codes []int, status int) bool {
	if len(codes) == 0 {
		return status >= 200 && status < 300
	}
	for _, code := range codes {
		if code == status {
			return true
		}
	}
	return false
}
