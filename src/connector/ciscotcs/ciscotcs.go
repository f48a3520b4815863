// Package ciscotcs 通过 SOAP 管理 Cisco TelePresence Content Server 的录制，
// 录制完成后将文件移动到本地存储
package ciscotcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/recordingstore"
	"github.com/shongo-go/connector/src/storage"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "cisco-tcs"

	OptionRecordingsCheckPeriod = "recordings-check-period"
	OptionRecordingsPrefix      = "recordings-prefix"
	OptionDefaultBitrate        = "default-bitrate"
	OptionAlias                 = "alias"
	OptionStorage               = "storage"
	OptionDownloadableURLBase   = "downloadable-url-base"
	OptionMinFreeSpace          = "min-free-space"
	OptionMetadataStorage       = "metadata-storage"
	OptionMoveWorkers           = "recordings-move-workers"

	defaultPort        = 443
	apiPath            = "/tcs/SoapServer.php"
	namespace          = "http://www.tandberg.net/XML/Streaming/1.0"
	defaultCheckPeriod = 5 * time.Minute
	defaultPrefix      = "shongo_"
	defaultBitrate     = "768"

	faultUnknownConference = "Unknown ConferenceID"
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

	client     *transport.SOAPClient
	downloader *transport.Downloader
	storage    *storage.Storage
	store      *recordingstore.Store
	moves      *internal.Pool

	// 检查录制与删除文件夹互斥
	folderMu sync.Mutex

	prefix         string
	alias          string
	defaultBitrate string
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
	checkPeriod, err := c.Options.Duration(OptionRecordingsCheckPeriod, defaultCheckPeriod)
	if err != nil {
		return err
	}
	workers, err := c.Options.Int(OptionMoveWorkers, 0)
	if err != nil {
		return err
	}
	c.prefix = c.Options.String(OptionRecordingsPrefix, defaultPrefix)
	c.defaultBitrate = c.Options.String(OptionDefaultBitrate, defaultBitrate)
	if c.alias, err = c.Options.StringRequired(OptionAlias); err != nil {
		return err
	}
	root := c.Options.String(OptionStorage, c.Config.StorageRoot)
	if root == "" {
		return &configs.ErrMissingOption{Key: OptionStorage}
	}
	minFreeSpace, err := c.Options.Bytes(OptionMinFreeSpace, c.Config.MinFreeSpace)
	if err != nil {
		return err
	}
	if c.storage, err = storage.New(root, c.Options.String(OptionDownloadableURLBase, ""), minFreeSpace); err != nil {
		return err
	}
	dbPath := c.Options.String(OptionMetadataStorage, filepath.Join(c.Config.AppDataPath, "tcs-"+c.Name()+".db"))
	if c.store, err = recordingstore.Open(dbPath); err != nil {
		return fmt.Errorf("failed to open metadata storage: %w", err)
	}

	c.client = transport.NewSOAPClient(c.Address().URL(apiPath), namespace, c.Config.Username, c.Config.Password, c.HTTPOptions())
	c.downloader = transport.NewDownloader(c.HTTPOptions())

	info, err := c.systemInformation(ctx)
	if err != nil {
		c.release()
		return fmt.Errorf("failed to set up connection to the device: %w", err)
	}
	c.moves = internal.NewPool(workers)
	c.Connected(info)
	// SOAP 无状态，不保持会话
	c.SetState(types.LooselyConnected)
	c.Loop("recordings-check", checkPeriod, c.CheckRecordings)
	return nil
}

func (c *Connector) systemInformation(ctx context.Context) (types.DeviceInfo, error) {
	result, err := c.result(ctx, command.New("GetSystemInformation"))
	if err != nil {
		return types.DeviceInfo{}, err
	}
	if transport.ChildText(result, "EngineOK") != "true" {
		return types.DeviceInfo{}, fmt.Errorf("server %s is not working, check its status", c.Address().Host)
	}
	return types.DeviceInfo{
		Name:            transport.ChildText(result, "ProductName"),
		SerialNumber:    transport.ChildText(result, "SerialNumber"),
		SoftwareVersion: transport.ChildText(result, "SoftwareVersion"),
	}, nil
}

// Disconnect 等待正在进行的移动完成
func (c *Connector) Disconnect(ctx context.Context) error {
	c.Disconnected()
	if c.moves != nil {
		c.moves.Close()
	}
	c.release()
	return nil
}

func (c *Connector) release() {
	if c.client != nil {
		c.client.Close()
	}
	if c.downloader != nil {
		c.downloader.Close()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.Logger.WithError(err).Warn("failed to close metadata storage")
		}
		c.store = nil
	}
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	state := c.CheckState(ctx, func(ctx context.Context) error {
		_, err := c.client.Call(ctx, command.New("GetSystemInformation"))
		return err
	})
	if state == types.Connected {
		return types.LooselyConnected
	}
	return state
}

// GetDeviceLoadInfo 返回本地录制存储的磁盘使用情况
func (c *Connector) GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	usage, err := c.storage.Usage()
	if err != nil {
		return nil, err
	}
	used, free := int64(usage.Used), int64(usage.Free)
	return &types.DeviceLoadInfo{DiskSpaceOccupied: &used, DiskSpaceAvailable: &free}, nil
}

func (c *Connector) GetUsageStats(ctx context.Context) (*types.UsageStats, error) {
	return nil, types.Unsupported("GetUsageStats")
}

func (c *Connector) UnsupportedMethods() []string {
	return []string{"GetUsageStats"}
}

func (c *Connector) exec(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	return internal.Exec(ctx, c.Base, cmd.Name(), func(ctx context.Context) (*xmlquery.Node, error) {
		return c.client.Call(ctx, cmd)
	})
}

// result 返回 <Command>Response/<Command>Result 元素
func (c *Connector) result(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	body, err := c.exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	result := find(body, cmd.Name()+"Response", cmd.Name()+"Result")
	if result == nil {
		return nil, fmt.Errorf("response of %s has no result", cmd.Name())
	}
	return result, nil
}

// find 按本地名称逐级查找子元素
func find(n *xmlquery.Node, path ...string) *xmlquery.Node {
	if n == nil {
		return nil
	}
	steps := make([]string, len(path))
	for i, name := range path {
		steps[i] = "*[local-name()='" + name + "']"
	}
	return xmlquery.FindOne(n, strings.Join(steps, "/"))
}

// conference 设备上不存在时返回包装了 types.ErrNotFound 的错误
func (c *Connector) conference(ctx context.Context, tcsID string) (*xmlquery.Node, error) {
	if tcsID == "" {
		return nil, types.NotFound("recording", tcsID)
	}
	result, err := c.result(ctx, command.New("GetConference").Set("ConferenceID", tcsID))
	if err != nil {
		if msg, ok := types.FaultMessage(err); ok && msg == faultUnknownConference {
			return nil, types.NotFound("recording", tcsID)
		}
		return nil, err
	}
	return result, nil
}

func (c *Connector) deviceRecording(ctx context.Context, tcsID string) (*types.Recording, error) {
	n, err := c.conference(ctx, tcsID)
	if err != nil {
		return nil, err
	}
	return c.parseRecording(n)
}

// deviceRecordings expression 为设备的搜索表达式（不含前缀），无法解析的名称被忽略
func (c *Connector) deviceRecordings(ctx context.Context, expression string) ([]*types.Recording, error) {
	cmd := command.New("GetConferences").
		Set("SearchExpression", c.prefix+expression).
		Set("ResultRange", "").
		Set("DateTime", "").
		Set("UpdateTime", "").
		Set("Owner", "").
		Set("Category", "").
		Set("Sort", "DateTime")
	result, err := c.result(ctx, cmd)
	if err != nil {
		return nil, err
	}
	var recordings []*types.Recording
	for _, n := range xmlquery.Find(result, "*[local-name()='Conference']") {
		rec, err := c.parseRecording(n)
		if err != nil {
			c.Logger.WithError(err).Warn("skipping recording")
			continue
		}
		recordings = append(recordings, rec)
	}
	return recordings, nil
}

func (c *Connector) deleteDeviceRecording(ctx context.Context, tcsID string) error {
	c.Logger.WithField("conference", tcsID).Debug("deleting recording from device")
	_, err := c.exec(ctx, command.New("DeleteRecording").Set("conferenceID", tcsID))
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}

func (c *Connector) log(recordingID string) *logrus.Entry {
	return c.Logger.WithField("recording", recordingID)
}
