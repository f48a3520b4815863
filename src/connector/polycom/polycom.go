// Package polycom Polycom HDX 终端，设备命令尚未实现，所有能力方法返回 ErrUnsupported
package polycom

import (
	"context"
	"time"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "polycom"

	defaultPort = 23
)

func init() {
	connector.Register(Agent, new(builder))
}

type builder struct{}

func (b *builder) Build(cfg connector.Config) (connector.Connector, error) {
	return New(cfg)
}

type Connector struct {
	*internal.Base
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
	c.Connected(types.DeviceInfo{Name: "Polycom HDX"})
	return nil
}

func (c *Connector) Disconnect(ctx context.Context) error {
	c.Disconnected()
	return nil
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	return c.State()
}

func (c *Connector) Dial(ctx context.Context, alias types.Alias) (string, error) {
	return "", types.Unsupported("Dial")
}

func (c *Connector) HangUp(ctx context.Context, callID string) error {
	return types.Unsupported("HangUp")
}

func (c *Connector) HangUpAll(ctx context.Context) error {
	return types.Unsupported("HangUpAll")
}

func (c *Connector) StandBy(ctx context.Context) error {
	return types.Unsupported("StandBy")
}

func (c *Connector) ResetDevice(ctx context.Context) error {
	return types.Unsupported("ResetDevice")
}

func (c *Connector) Mute(ctx context.Context) error {
	return types.Unsupported("Mute")
}

func (c *Connector) Unmute(ctx context.Context) error {
	return types.Unsupported("Unmute")
}

func (c *Connector) SetMicrophoneLevel(ctx context.Context, level int) error {
	return types.Unsupported("SetMicrophoneLevel")
}

func (c *Connector) SetPlaybackLevel(ctx context.Context, level int) error {
	return types.Unsupported("SetPlaybackLevel")
}

func (c *Connector) EnableVideo(ctx context.Context) error {
	return types.Unsupported("EnableVideo")
}

func (c *Connector) DisableVideo(ctx context.Context) error {
	return types.Unsupported("DisableVideo")
}

func (c *Connector) StartPresentation(ctx context.Context) error {
	return types.Unsupported("StartPresentation")
}

func (c *Connector) StopPresentation(ctx context.Context) error {
	return types.Unsupported("StopPresentation")
}

func (c *Connector) ShowMessage(ctx context.Context, duration time.Duration, text string) error {
	return types.Unsupported("ShowMessage")
}

func (c *Connector) GetEndpointStatus(ctx context.Context) (*types.EndpointStatus, error) {
	return nil, types.Unsupported("GetEndpointStatus")
}

func (c *Connector) GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error) {
	return nil, types.Unsupported("GetDeviceLoadInfo")
}

func (c *Connector) GetUsageStats(ctx context.Context) (*types.UsageStats, error) {
	return nil, types.Unsupported("GetUsageStats")
}

// UnsupportedMethods 全部能力方法
func (c *Connector) UnsupportedMethods() []string {
	return connector.InterfaceMethods(
		(*connector.EndpointService)(nil),
		(*connector.MonitoringService)(nil),
	)
}

var (
	_ connector.Connector         = (*Connector)(nil)
	_ connector.EndpointService   = (*Connector)(nil)
	_ connector.MonitoringService = (*Connector)(nil)
)
