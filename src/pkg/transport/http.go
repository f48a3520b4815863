package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shongo-go/connector/src/consts"
)

// HTTPOptions HTTP 类客户端的公共参数
type HTTPOptions struct {
	Timeout time.Duration
	// InsecureSkipVerify 设备普遍使用自签名证书
	InsecureSkipVerify bool
	Retry              RetryPolicy
}

func (o HTTPOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return consts.DefaultRequestTimeoutSec * time.Second
	}
	return o.Timeout
}

// newHTTPTransport 每台设备只保持一个长连接
func newHTTPTransport(opts HTTPOptions) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.timeout(),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.timeout(),
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
	}
}

// StatusError 设备返回了非预期的 HTTP 状态码
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, truncate(e.Body, 256))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
