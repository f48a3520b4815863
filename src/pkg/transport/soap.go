package transport

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/icholy/digest"

	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

const (
	envelopeHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n" +
		`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xmlns:xsd="http://www.w3.org/2001/XMLSchema" ` +
		`xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		"<soap:Body>\n"
	envelopeFooter = "</soap:Body>\n</soap:Envelope>"
)

// SOAPClient SOAP 1.1 客户端，每个请求都走 HTTP Digest 认证
type SOAPClient struct {
	url       string
	namespace string
	client    *http.Client
	retry     RetryPolicy
}

// NewSOAPClient namespace 同时用作请求体的 xmlns 与 SOAPAction 前缀
func NewSOAPClient(url, namespace, username, password string, opts HTTPOptions) *SOAPClient {
	return &SOAPClient{
		url:       url,
		namespace: namespace,
		client: &http.Client{
			Transport: &digest.Transport{
				Username:  username,
				Password:  password,
				Transport: newHTTPTransport(opts),
			},
			Timeout: opts.timeout(),
		},
		retry: opts.Retry,
	}
}

// BuildEnvelope 将命令编码为 SOAP 请求
func (c *SOAPClient) BuildEnvelope(cmd *command.Command) ([]byte, error) {
	if cmd.Name() == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}
	var buf bytes.Buffer
	buf.WriteString(envelopeHeader)
	fmt.Fprintf(&buf, `<%s xmlns="%s" >`, cmd.Name(), c.namespace)
	for _, p := range cmd.Params() {
		buf.WriteString("<" + p.Key + ">")
		if p.Value != nil {
			if err := xml.EscapeText(&buf, []byte(fmt.Sprint(p.Value))); err != nil {
				return nil, err
			}
		}
		buf.WriteString("</" + p.Key + ">")
	}
	fmt.Fprintf(&buf, "</%s>", cmd.Name())
	buf.WriteString(envelopeFooter)
	return buf.Bytes(), nil
}

// Call 执行命令并返回 soap:Body 节点
// Body 中包含 Fault 时返回 *types.FaultError
func (c *SOAPClient) Call(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	payload, err := c.BuildEnvelope(cmd)
	if err != nil {
		return nil, err
	}
	type result struct {
		status int
		body   []byte
	}
	res, err := Do(ctx, c.retry, func(ctx context.Context) (result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return result{}, err
		}
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		req.Header.Set("SOAPAction", c.namespace+"/"+cmd.Name())
		resp, err := c.client.Do(req)
		if err != nil {
			return result{}, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, err
		}
		return result{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusUnauthorized {
		return nil, &StatusError{URL: c.url, StatusCode: res.status}
	}
	doc, err := xmlquery.Parse(bytes.NewReader(res.body))
	if err != nil {
		if res.status != http.StatusOK {
			return nil, &StatusError{URL: c.url, StatusCode: res.status, Body: string(res.body)}
		}
		return nil, fmt.Errorf("failed to parse response of %s: %w", cmd.Name(), err)
	}
	body := xmlquery.FindOne(doc, "//*[local-name()='Envelope']/*[local-name()='Body']")
	if body == nil {
		return nil, fmt.Errorf("response of %s has no soap body", cmd.Name())
	}
	if fault := xmlquery.FindOne(body, "*[local-name()='Fault']"); fault != nil {
		return nil, &types.FaultError{
			Code:    ChildText(fault, "faultcode"),
			Message: ChildText(fault, "faultstring"),
		}
	}
	if res.status != http.StatusOK {
		return nil, &StatusError{URL: c.url, StatusCode: res.status, Body: string(res.body)}
	}
	return body, nil
}

func (c *SOAPClient) Close() {
	c.client.CloseIdleConnections()
}

// ChildText 按本地名称读取子元素文本，忽略命名空间
func ChildText(n *xmlquery.Node, name string) string {
	if n == nil {
		return ""
	}
	child := xmlquery.FindOne(n, "*[local-name()='"+name+"']")
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.InnerText())
}
