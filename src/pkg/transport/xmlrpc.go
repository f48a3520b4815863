package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/kolo/xmlrpc"

	"github.com/shongo-go/connector/src/types"
)

// XMLRPCClient 基于长连接的 XML-RPC 客户端，所有参数以一个 struct 传递
type XMLRPCClient struct {
	url    string
	client *http.Client
	retry  RetryPolicy
}

func NewXMLRPCClient(url string, opts HTTPOptions) *XMLRPCClient {
	return &XMLRPCClient{
		url: url,
		client: &http.Client{
			Transport: newHTTPTransport(opts),
			Timeout:   opts.timeout(),
		},
		retry: opts.Retry,
	}
}

func (c *XMLRPCClient) URL() string {
	return c.url
}

// Call 调用 method，返回结果 struct
// 设备返回的 fault 转换为 *types.FaultError
func (c *XMLRPCClient) Call(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	payload, err := xmlrpc.EncodeMethodCall(method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	body, err := Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return nil, err
	}
	resp := xmlrpc.Response(body)
	if err := resp.Err(); err != nil {
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return nil, &types.FaultError{Code: strconv.Itoa(fault.Code), Message: fault.String}
		}
		var faultPtr *xmlrpc.FaultError
		if errors.As(err, &faultPtr) {
			return nil, &types.FaultError{Code: strconv.Itoa(faultPtr.Code), Message: faultPtr.String}
		}
		return nil, fmt.Errorf("failed to parse fault of %s: %w", method, err)
	}
	var result interface{}
	if err := resp.Unmarshal(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response of %s: %w", method, err)
	}
	if result == nil {
		return map[string]any{}, nil
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected response of %s: %T", method, result)
	}
	return m, nil
}

func (c *XMLRPCClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Connection", "Keep-Alive")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: c.url, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *XMLRPCClient) Close() {
	c.client.CloseIdleConnections()
}
