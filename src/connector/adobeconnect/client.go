package adobeconnect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

const (
	apiPath       = "/api/xml"
	sessionCookie = "BREEZESESSION"
)

// Client Adobe Connect XML API 客户端，会话保存在 BREEZESESSION Cookie 中
type Client struct {
	session  *transport.SessionClient
	login    string
	password string

	// OnRelogin 会话失效后重新登录前调用，返回的函数在登录结束后调用
	OnRelogin func() (done func(err error))
}

func NewClient(baseURL, login, password string, opts transport.HTTPOptions) (*Client, error) {
	session, err := transport.NewSessionClient(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &Client{session: session, login: login, password: password}, nil
}

// Login 丢弃旧会话后重新登录
func (c *Client) Login(ctx context.Context) error {
	if err := c.session.Reset(); err != nil {
		return err
	}
	cmd := command.New("login").Set("login", c.login).Set("password", c.password)
	if _, err := c.call(ctx, cmd); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if c.session.Cookie(sessionCookie) == "" {
		return errors.New("login failed: server returned no session")
	}
	return nil
}

// Logout 失败只影响服务端会话的回收
func (c *Client) Logout(ctx context.Context) {
	if c.session.Cookie(sessionCookie) != "" {
		_, _ = c.call(ctx, command.New("logout"))
	}
	c.session.Close()
}

// Call 执行 API 动作，会话失效时重新登录一次
func (c *Client) Call(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	return transport.ReloginOnce(ctx, func(ctx context.Context) (*xmlquery.Node, error) {
		return c.call(ctx, cmd)
	}, isLoginNeeded, c.relogin)
}

func (c *Client) relogin(ctx context.Context) error {
	if c.OnRelogin == nil {
		return c.Login(ctx)
	}
	done := c.OnRelogin()
	err := c.Login(ctx)
	done(err)
	return err
}

func (c *Client) call(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	query := "action=" + cmd.Name()
	if q := cmd.Query(); q != "" {
		query += "&" + q
	}
	body, err := c.session.Get(ctx, apiPath, query)
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse response of %s: %w", cmd.Name(), err)
	}
	results := xmlquery.FindOne(doc, "/results")
	if results == nil {
		return nil, fmt.Errorf("response of %s has no results", cmd.Name())
	}
	if err := statusError(cmd.Name(), results); err != nil {
		return nil, err
	}
	return results, nil
}

// statusError 把非 ok 的 <status> 转换为 CommandError
func statusError(action string, results *xmlquery.Node) error {
	status := results.SelectElement("status")
	if status == nil {
		return &types.CommandError{Command: action, Message: "missing status"}
	}
	code := status.SelectAttr("code")
	if code == "ok" {
		return nil
	}
	ce := &types.CommandError{Command: action, Code: code, SubCode: status.SelectAttr("subcode")}
	// invalid 等错误的细节在以错误码命名的子元素上
	if detail := status.SelectElement(code); detail != nil {
		if ce.SubCode == "" {
			ce.SubCode = detail.SelectAttr("subcode")
		}
		var parts []string
		for _, attr := range detail.Attr {
			if attr.Name.Local == "subcode" {
				continue
			}
			parts = append(parts, attr.Name.Local+"="+attr.Value)
		}
		ce.Message = strings.Join(parts, ", ")
	}
	return ce
}

func isLoginNeeded(err error) bool {
	return types.IsCommandError(err, "no-access", "no-login")
}

// childText 返回子元素文本，不存在时返回空字符串
func childText(n *xmlquery.Node, name string) string {
	if n == nil {
		return ""
	}
	if child := n.SelectElement(name); child != nil {
		return strings.TrimSpace(child.InnerText())
	}
	return ""
}

func hasChild(n *xmlquery.Node, name string) bool {
	return n != nil && n.SelectElement(name) != nil
}

// elements 返回 parent 下名为 name 的所有子元素，name 为空时返回全部子元素
func elements(n *xmlquery.Node, parent, name string) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	p := n.SelectElement(parent)
	if p == nil {
		return nil
	}
	var out []*xmlquery.Node
	for child := p.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		if name == "" || child.Data == name {
			out = append(out, child)
		}
	}
	return out
}
