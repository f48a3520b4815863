package clearsea

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

const (
	accountsPath    = "/api/v2/rest/service/accounts"
	endpointsPath   = "/api/v2/rest/service/endpoints"
	accessTokenPath = "/api/v1/access-token/"
	statusPath      = "/api/v2/rest/status"

	aliasGroupName = "Aliases"
)

// ErrNoToken 登录响应中没有 access_token
var ErrNoToken = errors.New("clearsea: no access token in response")

// Client LifeSize UVC ClearSea REST 客户端，别名以会议室名称作为账号 ID
type Client struct {
	rest       *transport.RESTClient
	username   string
	password   string
	gatekeeper string

	mu    sync.Mutex
	token string
}

func NewClient(baseURL, username, password, gatekeeper string, opts transport.HTTPOptions) *Client {
	return &Client{
		rest:       transport.NewRESTClient(baseURL, opts),
		username:   username,
		password:   password,
		gatekeeper: gatekeeper,
	}
}

// Login 获取新的 access token
func (c *Client) Login(ctx context.Context) error {
	resp, err := c.rest.Get(ctx, accessTokenPath, map[string]string{
		"grant_type": "password",
		"username":   c.username,
		"password":   c.password,
	})
	if err != nil {
		return fmt.Errorf("clearsea login failed: %w", err)
	}
	token := gjson.GetBytes(resp.Body, "access_token").String()
	if token == "" {
		return ErrNoToken
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.rest.SetToken(token)
	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// do 附带令牌执行请求，401 时重新登录一次
func (c *Client) do(ctx context.Context, r transport.Request) (*transport.Response, error) {
	call := func(ctx context.Context) (*transport.Response, error) {
		req := r
		req.Query = map[string]string{"access_token": c.currentToken()}
		for k, v := range r.Query {
			req.Query[k] = v
		}
		return c.rest.Do(ctx, req)
	}
	return transport.ReloginOnce(ctx, call, isUnauthorized, c.Login)
}

func isUnauthorized(err error) bool {
	var se *transport.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

func isNotFound(err error) bool {
	var se *transport.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Status 检查服务状态与令牌
func (c *Client) Status(ctx context.Context) error {
	_, err := c.do(ctx, transport.Request{Method: http.MethodGet, Path: statusPath})
	return err
}

// DialString 返回分配给账号的拨号串
func DialString(aliasType types.AliasType, number, gatekeeper string) (string, error) {
	switch aliasType.Technology() {
	case types.TechnologyH323:
		return "h323:" + number + "@" + gatekeeper, nil
	case types.TechnologySIP:
		return "sip:" + number + "@" + gatekeeper, nil
	default:
		return "", fmt.Errorf("alias type %s is not supported by clearsea", aliasType)
	}
}

// CreateAlias 创建账号并分配拨号串，返回别名 ID（即会议室名称）
func (c *Client) CreateAlias(ctx context.Context, aliasType types.AliasType, number, roomName string) (string, error) {
	if roomName == "" {
		return "", errors.New("clearsea alias requires a room name")
	}
	dialString, err := DialString(aliasType, number, c.gatekeeper)
	if err != nil {
		return "", err
	}
	_, err = c.do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   accountsPath,
		Body:   map[string]string{"type": "User", "userID": roomName, "groupName": aliasGroupName},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create clearsea account %s: %w", roomName, err)
	}
	_, err = c.do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   endpointsPath,
		Body:   map[string]string{"userID": roomName, "dialString": dialString},
	})
	if err != nil {
		return "", fmt.Errorf("failed to assign endpoint %s to %s: %w", dialString, roomName, err)
	}
	return roomName, nil
}

// GetFullAlias 返回账号的描述（设备返回的 JSON）
func (c *Client) GetFullAlias(ctx context.Context, aliasID string) (string, error) {
	resp, err := c.do(ctx, transport.Request{Method: http.MethodGet, Path: accountsPath + "/" + aliasID})
	if err != nil {
		if isNotFound(err) {
			return "", types.NotFound("alias", aliasID)
		}
		return "", err
	}
	return strings.TrimSpace(string(resp.Body)), nil
}

func (c *Client) DeleteAlias(ctx context.Context, aliasID string) error {
	_, err := c.do(ctx, transport.Request{Method: http.MethodDelete, Path: accountsPath + "/" + aliasID})
	if err != nil {
		if isNotFound(err) {
			return types.NotFound("alias", aliasID)
		}
		return err
	}
	return nil
}

// ModifyAlias 删除旧账号后重新创建，旧账号不存在时忽略
func (c *Client) ModifyAlias(ctx context.Context, oldRoomName, newRoomName string, aliasType types.AliasType, number string) error {
	if err := c.DeleteAlias(ctx, oldRoomName); err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}
	_, err := c.CreateAlias(ctx, aliasType, number, newRoomName)
	return err
}

// Logout 丢弃令牌
func (c *Client) Logout() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.rest.SetToken("")
}
