package internal

import (
	"context"
	"errors"
	"time"

	"github.com/bluele/gcache"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/types"
)

const (
	userCacheSize       = 1024
	userCacheExpiration = time.Hour
)

// UserCache 控制器用户信息和主体名称的缓存，随连接器实例存在
type UserCache struct {
	controller connector.Controller
	users      gcache.Cache
	principals gcache.Cache
}

func newUserCache(controller connector.Controller) *UserCache {
	return &UserCache{
		controller: controller,
		users:      gcache.New(userCacheSize).LRU().Expiration(userCacheExpiration).Build(),
		principals: gcache.New(userCacheSize).LRU().Expiration(userCacheExpiration).Build(),
	}
}

// GetUserInformation 按用户 ID 查询
func (c *UserCache) GetUserInformation(ctx context.Context, userID string) (*types.UserInformation, error) {
	if v, err := c.users.GetIFPresent(userID); err == nil {
		return v.(*types.UserInformation), nil
	}
	if c.controller == nil {
		return nil, types.NotFound("user", userID)
	}
	info, err := c.controller.GetUserInformation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, types.NotFound("user", userID)
	}
	_ = c.users.Set(userID, info)
	return info, nil
}

// GetUserIDByPrincipalName 按主体名称（如 eppn）查询用户 ID，未知主体返回空字符串
func (c *UserCache) GetUserIDByPrincipalName(ctx context.Context, principalName string) (string, error) {
	if v, err := c.principals.GetIFPresent(principalName); err == nil {
		return v.(string), nil
	}
	if c.controller == nil {
		return "", nil
	}
	userID, err := c.controller.GetUserIDByPrincipalName(ctx, principalName)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			_ = c.principals.Set(principalName, "")
			return "", nil
		}
		return "", err
	}
	_ = c.principals.Set(principalName, userID)
	return userID, nil
}

// GetUserInformationByPrincipalName 主体名称未知时返回 nil
func (c *UserCache) GetUserInformationByPrincipalName(ctx context.Context, principalName string) (*types.UserInformation, error) {
	userID, err := c.GetUserIDByPrincipalName(ctx, principalName)
	if err != nil || userID == "" {
		return nil, err
	}
	return c.GetUserInformation(ctx, userID)
}

func (c *UserCache) Purge() {
	c.users.Purge()
	c.principals.Purge()
}
