package ciscomcu

import (
	"context"
	"fmt"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/clearsea"
	"github.com/shongo-go/connector/src/types"
)

// aliasService 外部别名服务，会议室变化时异步同步
type aliasService interface {
	CreateAlias(ctx context.Context, aliasType types.AliasType, number, roomName string) (string, error)
	DeleteAlias(ctx context.Context, aliasID string) error
	ModifyAlias(ctx context.Context, oldRoomName, newRoomName string, aliasType types.AliasType, number string) error
}

func (c *Connector) connectAliasService(ctx context.Context, options configs.Options) (*clearsea.Client, error) {
	host, err := options.StringRequired("host")
	if err != nil {
		return nil, err
	}
	port, err := options.Int("port", 443)
	if err != nil {
		return nil, err
	}
	username, err := options.StringRequired("username")
	if err != nil {
		return nil, err
	}
	password, err := options.StringRequired("password")
	if err != nil {
		return nil, err
	}
	gatekeeper, err := options.StringRequired("gatekeeper")
	if err != nil {
		return nil, err
	}
	addr := types.DeviceAddress{Host: host, Port: port, SSL: options.Bool("ssl", true)}
	client := clearsea.NewClient(addr.URL(""), username, password, gatekeeper, c.HTTPOptions())
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	c.Logger.WithField("alias_service", addr.String()).Info("connected to alias service")
	return client, nil
}

// syncAlias 在后台执行别名操作，失败时通知资源管理员，不影响会议室操作本身
func (c *Connector) syncAlias(action, roomID string, fn func(ctx context.Context, aliases aliasService) error) {
	if c.aliases == nil {
		return
	}
	aliases := c.aliases
	c.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.Timeout)
		defer cancel()
		if err := fn(ctx, aliases); err != nil {
			c.Logger.WithError(err).WithField("room", roomID).Errorf("failed to %s alias", action)
			c.Notify(connector.AliasSyncFailedNotification(c.Name(), roomID, action, err))
		}
	})
}

// syncModifiedAlias 会议室名称或号码变化时重建别名
func (c *Connector) syncModifiedAlias(old, room *types.Room) {
	newAlias, ok := room.GetAlias(types.AliasH323E164)
	if !ok {
		return
	}
	// 设备上的会议室只保存号码的短格式
	oldNumber, _ := old.GetAlias(types.AliasH323E164)
	c.syncAlias("modify", room.ID, func(ctx context.Context, aliases aliasService) error {
		if c.roomNumberFromH323 == nil {
			return fmt.Errorf("cannot parse H.323 E164 number, missing option %q", OptionRoomNumberFromH323Number)
		}
		m := c.roomNumberFromH323.FindStringSubmatch(newAlias.Value)
		if len(m) < 2 {
			return fmt.Errorf("invalid E164 number %q", newAlias.Value)
		}
		if room.Name() == old.Name() && m[1] == oldNumber.Value {
			return nil
		}
		return aliases.ModifyAlias(ctx, old.Name(), room.Name(), newAlias.Type, newAlias.Value)
	})
}
