//go:generate go run go.uber.org/mock/mockgen -package mock -destination mock/mock.go github.com/shongo-go/connector/src/connector Connector,Controller
package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/metrics"
	"github.com/shongo-go/connector/src/pkg/connlogger"
	"github.com/shongo-go/connector/src/types"
)

// Connector 一个设备连接器的公共生命周期
type Connector interface {
	Name() string
	Agent() string
	Address() types.DeviceAddress
	// Connect 建立会话并启动后台循环，已连接时先断开
	Connect(ctx context.Context) error
	// Disconnect 停止后台循环并释放资源，连接失败后调用也是安全的
	Disconnect(ctx context.Context) error
	// GetConnectionState 发送探测命令，失败时返回 Disconnected，不返回错误
	GetConnectionState(ctx context.Context) types.ConnectionState
	GetDeviceInfo() types.DeviceInfo
	GetLogger() *connlogger.Logger
}

// RoomService 会议室生命周期
type RoomService interface {
	ListRooms(ctx context.Context) ([]types.RoomSummary, error)
	// GetRoom 会议室不存在时返回包装了 types.ErrNotFound 的错误
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)
	CreateRoom(ctx context.Context, room *types.Room) (string, error)
	// ModifyRoom 返回修改后的会议室 ID，需要重建时 ID 可能改变
	ModifyRoom(ctx context.Context, room *types.Room) (string, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// ParticipantService 会议室参与者管理
type ParticipantService interface {
	ListRoomParticipants(ctx context.Context, roomID string) ([]*types.RoomParticipant, error)
	GetRoomParticipant(ctx context.Context, roomID, participantID string) (*types.RoomParticipant, error)
	DialRoomParticipant(ctx context.Context, roomID string, alias types.Alias) (string, error)
	DisconnectRoomParticipant(ctx context.Context, roomID, participantID string) error
	ModifyRoomParticipant(ctx context.Context, participant *types.RoomParticipant) error
	// ModifyRoomParticipants 将 participant 中已设置的属性应用到会议室内所有参与者
	ModifyRoomParticipants(ctx context.Context, participant *types.RoomParticipant) error
	GetRoomParticipantSnapshots(ctx context.Context, roomID string, participantIDs []string) (map[string]*types.MediaData, error)
}

// RecordingService 录制管理
type RecordingService interface {
	CreateRecordingFolder(ctx context.Context, folder *types.RecordingFolder) (string, error)
	ModifyRecordingFolder(ctx context.Context, folder *types.RecordingFolder) error
	DeleteRecordingFolder(ctx context.Context, folderID string) error
	ListRecordings(ctx context.Context, folderID string) ([]*types.Recording, error)
	GetRecording(ctx context.Context, recordingID string) (*types.Recording, error)
	GetActiveRecording(ctx context.Context, alias types.Alias) (*types.Recording, error)
	IsRecordingActive(ctx context.Context, recordingID string) (bool, error)
	StartRecording(ctx context.Context, folderID string, alias types.Alias, settings types.RecordingSettings) (string, error)
	StopRecording(ctx context.Context, recordingID string) error
	DeleteRecording(ctx context.Context, recordingID string) error
	// CheckRecording 确认录制已位于控制器指定的文件夹中，必要时移动
	CheckRecording(ctx context.Context, recordingID string) error
	CheckRecordings(ctx context.Context) error
}

// MonitoringService 设备负载与使用统计，厂商不支持的字段为空
type MonitoringService interface {
	GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error)
	GetUsageStats(ctx context.Context) (*types.UsageStats, error)
}

// EndpointService 终端设备（硬件终端、编解码器）的呼叫控制
type EndpointService interface {
	Dial(ctx context.Context, alias types.Alias) (string, error)
	HangUp(ctx context.Context, callID string) error
	HangUpAll(ctx context.Context) error
	StandBy(ctx context.Context) error
	ResetDevice(ctx context.Context) error
	Mute(ctx context.Context) error
	Unmute(ctx context.Context) error
	// SetMicrophoneLevel level 为 0..100 的逻辑刻度
	SetMicrophoneLevel(ctx context.Context, level int) error
	SetPlaybackLevel(ctx context.Context, level int) error
	EnableVideo(ctx context.Context) error
	DisableVideo(ctx context.Context) error
	StartPresentation(ctx context.Context) error
	StopPresentation(ctx context.Context) error
	ShowMessage(ctx context.Context, duration time.Duration, text string) error
	GetEndpointStatus(ctx context.Context) (*types.EndpointStatus, error)
}

// AliasService 外部别名服务（网守/注册服务器上的账号）
type AliasService interface {
	CreateAlias(ctx context.Context, aliasType types.AliasType, number, roomName string) (string, error)
	GetFullAlias(ctx context.Context, aliasID string) (string, error)
	DeleteAlias(ctx context.Context, aliasID string) error
}

// Config 构造连接器所需的全部参数，connect 时读取
type Config struct {
	Name         string
	Agent        string
	Address      types.DeviceAddress
	Username     string
	Password     string
	Options      configs.Options
	Controller   Controller
	Metrics      *metrics.Metrics
	AppDataPath  string
	StorageRoot  string
	MinFreeSpace int64
}

// NewConfig 由配置文件中的连接器条目生成
func NewConfig(cfg *configs.Config, c *configs.Connector, controller Controller, m *metrics.Metrics) Config {
	return Config{
		Name:         c.Name,
		Agent:        c.Agent,
		Address:      c.Address.DeviceAddress(),
		Username:     c.Username,
		Password:     c.Password,
		Options:      c.Options,
		Controller:   controller,
		Metrics:      m,
		AppDataPath:  cfg.AppDataPath,
		StorageRoot:  cfg.Storage.Root,
		MinFreeSpace: cfg.MinFreeSpaceBytes(),
	}
}

type Builder interface {
	Build(cfg Config) (Connector, error)
}

// BuilderFunc 允许使用普通函数作为 Builder
type BuilderFunc func(cfg Config) (Connector, error)

func (f BuilderFunc) Build(cfg Config) (Connector, error) {
	return f(cfg)
}

var (
	registryMu sync.RWMutex
	builders   = make(map[string]Builder)
)

// Register 注册厂商实现，agent 为配置文件中的 agent 名称
func Register(agent string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	builders[agent] = b
}

func getBuilder(agent string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := builders[agent]
	return b, ok
}

// Agents 返回所有已注册的 agent 名称
func Agents() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	agents := make([]string, 0, len(builders))
	for agent := range builders {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}

// New 根据 agent 构造连接器
func New(cfg Config) (Connector, error) {
	b, ok := getBuilder(cfg.Agent)
	if !ok {
		return nil, fmt.Errorf("unknown connector agent %q", cfg.Agent)
	}
	return b.Build(cfg)
}
