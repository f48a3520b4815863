// Package clearsea 实现 LifeSize UVC ClearSea 别名服务
package clearsea

import (
	"context"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "lifesize-uvc-clearsea"

	OptionGatekeeper = "gatekeeper"
	defaultPort      = 443
)

func init() {
	connector.Register(Agent, new(builder))
}

type builder struct{}

func (b *builder) Build(cfg connector.Config) (connector.Connector, error) {
	return New(cfg)
}

// Connector 独立运行的别名服务连接器
type Connector struct {
	*internal.Base
	client *Client
}

func New(cfg connector.Config) (*Connector, error) {
	cfg.Address = cfg.Address.WithDefaultPort(defaultPort)
	base, err := internal.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{Base: base}, nil
}

func (c *Connector) Connect(ctx context.Context) error {
	if c.State() != types.Disconnected {
		_ = c.Disconnect(ctx)
	}
	gatekeeper, err := c.Options.StringRequired(OptionGatekeeper)
	if err != nil {
		return err
	}
	addr := c.Address()
	client := NewClient(addr.URL(""), c.Config.Username, c.Config.Password, gatekeeper, c.HTTPOptions())
	if err := c.Run(ctx, "access-token", client.Login); err != nil {
		return err
	}
	c.client = client
	c.SetState(types.LooselyConnected)
	c.Logger.Info("connected to alias service")
	return nil
}

func (c *Connector) Disconnect(ctx context.Context) error {
	if c.client != nil {
		c.client.Logout()
		c.client = nil
	}
	c.Disconnected()
	return nil
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	client := c.client
	return c.CheckState(ctx, client.Status)
}

func (c *Connector) CreateAlias(ctx context.Context, aliasType types.AliasType, number, roomName string) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	return internal.Exec(ctx, c.Base, "create-alias", func(ctx context.Context) (string, error) {
		return c.client.CreateAlias(ctx, aliasType, number, roomName)
	})
}

func (c *Connector) GetFullAlias(ctx context.Context, aliasID string) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	return internal.Exec(ctx, c.Base, "get-alias", func(ctx context.Context) (string, error) {
		return c.client.GetFullAlias(ctx, aliasID)
	})
}

func (c *Connector) DeleteAlias(ctx context.Context, aliasID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	return c.Run(ctx, "delete-alias", func(ctx context.Context) error {
		return c.client.DeleteAlias(ctx, aliasID)
	})
}

var (
	_ connector.Connector    = (*Connector)(nil)
	_ connector.AliasService = (*Connector)(nil)
)
