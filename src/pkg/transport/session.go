package transport

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/hr3lxphr6j/requests"
	"golang.org/x/net/publicsuffix"
)

// SessionClient 基于 Cookie 会话的 HTTP 客户端
type SessionClient struct {
	baseURL *url.URL
	opts    HTTPOptions

	mu      sync.Mutex
	client  *http.Client
	session *requests.Session
}

func NewSessionClient(baseURL string, opts HTTPOptions) (*SessionClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	c := &SessionClient{baseURL: u, opts: opts}
	if err := c.Reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reset 丢弃所有 Cookie，开始新的会话
func (c *SessionClient) Reset() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	client := &http.Client{
		Transport: newHTTPTransport(c.opts),
		Timeout:   c.opts.timeout(),
		Jar:       jar,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	c.client = client
	c.session = requests.NewSession(client)
	return nil
}

func (c *SessionClient) current() (*http.Client, *requests.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client, c.session
}

// URL 拼接相对路径与查询字符串
func (c *SessionClient) URL(path, rawQuery string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = rawQuery
	return u.String()
}

// Get 发送 GET 请求并返回响应体
func (c *SessionClient) Get(ctx context.Context, path, rawQuery string) ([]byte, error) {
	return c.GetURL(ctx, c.URL(path, rawQuery))
}

// GetURL 对绝对地址发送 GET 请求，会话 Cookie 由 cookie jar 自动附带
func (c *SessionClient) GetURL(ctx context.Context, target string) ([]byte, error) {
	page, err := c.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return page.Body, nil
}

// Page 跟随重定向之后的响应
type Page struct {
	// Path 最终请求的路径，用于识别被重定向到登录页的情况
	Path        string
	ContentType string
	Body        []byte
}

// Fetch 与 GetURL 相同，额外返回最终路径和内容类型
func (c *SessionClient) Fetch(ctx context.Context, target string) (*Page, error) {
	return Do(ctx, c.opts.Retry, func(ctx context.Context) (*Page, error) {
		_, session := c.current()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		resp, err := session.Do(req)
		if err != nil {
			return nil, err
		}
		body, err := resp.Bytes()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{URL: stripQuery(target), StatusCode: resp.StatusCode, Body: string(body)}
		}
		page := &Page{ContentType: resp.Header.Get("Content-Type"), Body: body}
		if resp.Request != nil && resp.Request.URL != nil {
			page.Path = resp.Request.URL.Path
		}
		return page, nil
	})
}

// PostForm 提交表单，用于网页登录
func (c *SessionClient) PostForm(ctx context.Context, path string, form url.Values) (int, error) {
	return Do(ctx, c.opts.Retry, func(ctx context.Context) (int, error) {
		client, _ := c.current()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path, ""), strings.NewReader(form.Encode()))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	})
}

// Cookie 返回当前会话中的 Cookie 值
func (c *SessionClient) Cookie(name string) string {
	client, _ := c.current()
	for _, cookie := range client.Jar.Cookies(c.baseURL) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// SetCookie 手动设置会话 Cookie（例如从响应体中解析出的会话令牌）
func (c *SessionClient) SetCookie(name, value string) {
	client, _ := c.current()
	client.Jar.SetCookies(c.baseURL, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

func (c *SessionClient) Close() {
	client, _ := c.current()
	client.CloseIdleConnections()
}

// stripQuery 避免在错误中泄露查询参数里的口令
func stripQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
