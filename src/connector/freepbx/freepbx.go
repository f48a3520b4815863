// Package freepbx FreePBX 电话会议桥，尚未接入设备 API
package freepbx

import (
	"context"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/types"
)

const Agent = "freepbx"

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
	cfg.Address = cfg.Address.WithDefaultPort(443)
	base, err := internal.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{Base: base}, nil
}

func (c *Connector) Connect(ctx context.Context) error {
	c.Connected(types.DeviceInfo{Name: "FreePBX"})
	return nil
}

func (c *Connector) Disconnect(ctx context.Context) error {
	c.Disconnected()
	return nil
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	return c.State()
}

func (c *Connector) ListRooms(ctx context.Context) ([]types.RoomSummary, error) {
	return nil, types.Unsupported("ListRooms")
}

func (c *Connector) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return nil, types.Unsupported("GetRoom")
}

func (c *Connector) CreateRoom(ctx context.Context, room *types.Room) (string, error) {
	return "", types.Unsupported("CreateRoom")
}

func (c *Connector) ModifyRoom(ctx context.Context, room *types.Room) (string, error) {
	return "", types.Unsupported("ModifyRoom")
}

func (c *Connector) DeleteRoom(ctx context.Context, roomID string) error {
	return types.Unsupported("DeleteRoom")
}

func (c *Connector) ListRoomParticipants(ctx context.Context, roomID string) ([]*types.RoomParticipant, error) {
	return nil, types.Unsupported("ListRoomParticipants")
}

func (c *Connector) GetRoomParticipant(ctx context.Context, roomID, participantID string) (*types.RoomParticipant, error) {
	return nil, types.Unsupported("GetRoomParticipant")
}

func (c *Connector) DialRoomParticipant(ctx context.Context, roomID string, alias types.Alias) (string, error) {
	return "", types.Unsupported("DialRoomParticipant")
}

func (c *Connector) DisconnectRoomParticipant(ctx context.Context, roomID, participantID string) error {
	return types.Unsupported("DisconnectRoomParticipant")
}

func (c *Connector) ModifyRoomParticipant(ctx context.Context, participant *types.RoomParticipant) error {
	return types.Unsupported("ModifyRoomParticipant")
}

func (c *Connector) ModifyRoomParticipants(ctx context.Context, participant *types.RoomParticipant) error {
	return types.Unsupported("ModifyRoomParticipants")
}

func (c *Connector) GetRoomParticipantSnapshots(ctx context.Context, roomID string, participantIDs []string) (map[string]*types.MediaData, error) {
	return nil, types.Unsupported("GetRoomParticipantSnapshots")
}

func (c *Connector) GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error) {
	return nil, types.Unsupported("GetDeviceLoadInfo")
}

func (c *Connector) GetUsageStats(ctx context.Context) (*types.UsageStats, error) {
	return nil, types.Unsupported("GetUsageStats")
}

func (c *Connector) UnsupportedMethods() []string {
	return connector.InterfaceMethods(
		(*connector.RoomService)(nil),
		(*connector.ParticipantService)(nil),
		(*connector.MonitoringService)(nil),
	)
}

var (
	_ connector.Connector          = (*Connector)(nil)
	_ connector.RoomService        = (*Connector)(nil)
	_ connector.ParticipantService = (*Connector)(nil)
	_ connector.MonitoringService  = (*Connector)(nil)
)
