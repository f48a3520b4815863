package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Downloader 流式下载录制文件，offset > 0 时使用 Range 请求续传
type Downloader struct {
	client *http.Client
	retry  RetryPolicy
}

// NewDownloader 不设置整体超时，只限制建立连接和 TLS 握手的时间
func NewDownloader(opts HTTPOptions) *Downloader {
	return &Downloader{
		client: &http.Client{Transport: newHTTPTransport(opts)},
		retry:  opts.Retry,
	}
}

// Download 响应体及服务端声明的文件总大小，未知时 Size 为 -1
type Download struct {
	io.ReadCloser
	Size int64
}

// Open 返回从 offset 开始的响应体，由调用方关闭
func (d *Downloader) Open(ctx context.Context, target string, offset int64) (*Download, error) {
	return Do(ctx, d.retry, func(ctx context.Context) (*Download, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		switch {
		case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		case offset == 0 && resp.StatusCode == http.StatusOK:
		case offset > 0 && resp.StatusCode == http.StatusOK:
			resp.Body.Close()
			return nil, fmt.Errorf("%s: server does not support range requests", stripQuery(target))
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return nil, &StatusError{URL: stripQuery(target), StatusCode: resp.StatusCode, Body: string(body)}
		}
		return &Download{ReadCloser: resp.Body, Size: totalSize(resp, offset)}, nil
	})
}

// totalSize 优先取 Content-Range 中的总大小
func totalSize(resp *http.Response, offset int64) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return n
			}
		}
	}
	if resp.ContentLength < 0 {
		return -1
	}
	return offset + resp.ContentLength
}

func (d *Downloader) Close() {
	d.client.CloseIdleConnections()
}
