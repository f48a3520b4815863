// Package ciscomcu 通过 XML-RPC 管理 Cisco TelePresence MCU
package ciscomcu

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/bluele/gcache"
	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/clearsea"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/resultcache"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "cisco-mcu"

	OptionRoomNumberFromH323Number = "room-number-extraction-from-h323-number"
	OptionRoomNumberFromSIPURI     = "room-number-extraction-from-sip-uri"
	OptionParticipants             = "participants"
	OptionAliasService             = "alias-service"

	defaultPort = 443
	apiPath     = "/RPC2"

	// 设备只接受 31 个字符以内的字符串
	stringMaxLength = 31
	// 分页数量上限，设备返回异常结果时避免死循环
	enumeratePagesLimit = 1000
	// 参与者增益的最大绝对值（dB）
	maxAbsGainDB = 20

	snapshotTTL = 10 * time.Second
)

var minAPIVersion = semver.MustParse("2.9")

// 这些参数不参与结果缓存的键
var ignoredCacheParams = []string{
	"enumerateID", "lastRevision", "listAll", "authenticationUser", "authenticationPassword",
}

const (
	faultNoSuchConference  = "no such conference or auto attendant"
	faultNoSuchParticipant = "no such participant"
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

	client  *transport.XMLRPCClient
	web     *transport.SessionClient
	results *resultcache.Cache
	aliases *clearsea.Client

	roomNumberFromH323 *regexp.Regexp
	roomNumberFromSIP  *regexp.Regexp
	hidden             map[string]struct{}

	// roomID:participantID -> previewURL
	snapshotURLs gcache.Cache
	snapshots    gcache.Cache
}

func New(cfg connector.Config) (*Connector, error) {
	cfg.Address = cfg.Address.WithDefaultPort(defaultPort)
	base, err := internal.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{
		Base:         base,
		results:      resultcache.New(64, 0, itemIdentity),
		snapshotURLs: gcache.New(1024).LRU().Build(),
		snapshots:    gcache.New(256).LRU().Expiration(snapshotTTL).Build(),
	}, nil
}

// itemIdentity 参与者按 会议/协议/名称 识别，会议按名称识别
func itemIdentity(item resultcache.Item) (string, bool) {
	conference := toString(item["conferenceName"])
	if name := toString(item["participantName"]); name != "" {
		return conference + "/" + toString(item["participantProtocol"]) + "/" + name, true
	}
	if conference != "" {
		return conference, true
	}
	return "", false
}

func (c *Connector) Connect(ctx context.Context) error {
	if c.State() != types.Disconnected {
		_ = c.Disconnect(ctx)
	}
	var err error
	if c.roomNumberFromH323, err = c.Options.Pattern(OptionRoomNumberFromH323Number); err != nil {
		return err
	}
	if c.roomNumberFromSIP, err = c.Options.Pattern(OptionRoomNumberFromSIPURI); err != nil {
		return err
	}
	if c.hidden, err = hiddenParticipants(c.Options); err != nil {
		return err
	}

	addr := c.Address()
	c.client = transport.NewXMLRPCClient(addr.URL(apiPath), c.HTTPOptions())
	if c.web, err = transport.NewSessionClient(addr.URL(""), c.HTTPOptions()); err != nil {
		return err
	}

	device, err := c.exec(ctx, command.New("device.query"))
	if err != nil {
		return fmt.Errorf("failed to set up connection to the device: %w", err)
	}
	info, err := deviceInfo(device)
	if err != nil {
		return err
	}

	if sub := c.Options.Sub(OptionAliasService); sub.Has("host") {
		if c.aliases, err = c.connectAliasService(ctx, sub); err != nil {
			return fmt.Errorf("failed to connect to alias service: %w", err)
		}
	}
	c.Connected(info)
	return nil
}

func deviceInfo(device map[string]any) (types.DeviceInfo, error) {
	apiVersion := toString(device["apiVersion"])
	v, err := semver.NewVersion(apiVersion)
	if err != nil {
		return types.DeviceInfo{}, fmt.Errorf("cannot determine the device api version %q: %w", apiVersion, err)
	}
	if v.LessThan(minAPIVersion) {
		return types.DeviceInfo{}, fmt.Errorf("device api %s too old, api %s or higher is required", apiVersion, minAPIVersion)
	}
	version := fmt.Sprintf("%s (API: %s, build: %s)",
		toString(device["softwareVersion"]), apiVersion, toString(device["buildVersion"]))
	return types.DeviceInfo{
		Name:            toString(device["model"]),
		SerialNumber:    toString(device["serial"]),
		SoftwareVersion: version,
	}, nil
}

// hiddenParticipants 读取 participants 选项中 hide=true 的地址
func hiddenParticipants(options configs.Options) (map[string]struct{}, error) {
	hidden := make(map[string]struct{})
	for _, p := range options.List(OptionParticipants) {
		if !p.Bool("hide", false) {
			continue
		}
		address := p.String("address", "")
		if address == "" {
			return nil, errors.New("address of a hidden participant must be filled")
		}
		hidden[address] = struct{}{}
	}
	return hidden, nil
}

func (c *Connector) Disconnect(ctx context.Context) error {
	c.Disconnected()
	if c.aliases != nil {
		c.aliases.Logout()
		c.aliases = nil
	}
	if c.client != nil {
		c.client.Close()
	}
	if c.web != nil {
		c.web.Close()
	}
	c.results.Purge()
	c.snapshotURLs.Purge()
	c.snapshots.Purge()
	return nil
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	return c.CheckState(ctx, func(ctx context.Context) error {
		_, err := c.call(ctx, command.New("device.query"))
		return err
	})
}

// UnsupportedMethods 设备 API 不提供使用统计
func (c *Connector) UnsupportedMethods() []string {
	return []string{"GetUsageStats"}
}

// call 直接发送命令，认证信息作为参数附带，调用方负责加锁
func (c *Connector) call(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	params := cmd.Map()
	params["authenticationUser"] = c.Config.Username
	params["authenticationPassword"] = c.Config.Password
	c.Logger.WithField("command", cmd.Name()).Debug("issuing command")
	return c.client.Call(ctx, cmd.Name(), params)
}

// exec 在命令锁内执行单个命令
func (c *Connector) exec(ctx context.Context, cmd *command.Command) (map[string]any, error) {
	return internal.Exec(ctx, c.Base, cmd.Name(), func(ctx context.Context) (map[string]any, error) {
		return c.call(ctx, cmd)
	})
}

// enumerate 逐页读取枚举结果，支持修订号的命令只取差量并与缓存合并。
// 整个过程持有命令锁，合并不会与同一命令的其他枚举交错。
func (c *Connector) enumerate(ctx context.Context, cmd *command.Command, field string) ([]resultcache.Item, error) {
	return internal.Exec(ctx, c.Base, cmd.Name(), func(ctx context.Context) ([]resultcache.Item, error) {
		cmd := cmd.Clone()
		key := resultcache.NewKey(cmd, ignoredCacheParams...)
		// 设备上 autoAttendant.enumerate 的修订号不可靠
		cacheable := cmd.Name() != "autoAttendant.enumerate"
		var previous *resultcache.Snapshot
		if cacheable {
			if snapshot, ok := c.results.Lookup(key); ok {
				previous = snapshot
				cmd.Set("lastRevision", snapshot.Revision).Set("listAll", true)
			}
		}

		var (
			items       []resultcache.Item
			revision    int64
			hasRevision bool
		)
		for page := 0; ; page++ {
			if page >= enumeratePagesLimit {
				return nil, fmt.Errorf("enumerate pages limit reached, the device gave more than %d pages", enumeratePagesLimit)
			}
			result, err := c.call(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if page == 0 {
				var n int
				n, hasRevision = toInt(result["currentRevision"])
				revision = int64(n)
			}
			data, ok := result[field].([]any)
			if !ok {
				break
			}
			for _, d := range data {
				if item, ok := d.(map[string]any); ok {
					items = append(items, item)
				}
			}
			next, ok := result["enumerateID"]
			if !ok {
				break
			}
			cmd.Set("enumerateID", next)
		}

		if cacheable && hasRevision {
			return c.results.Merge(key, previous, revision, items)
		}
		return items, nil
	})
}

// truncate 截断超过设备长度限制的字符串
func (c *Connector) truncate(s string) string {
	r := []rune(s)
	if len(r) <= stringMaxLength {
		return s
	}
	c.Logger.WithFields(logrus.Fields{"value": s, "limit": stringMaxLength}).Warn("too long string truncated")
	return string(r[:stringMaxLength])
}

func isFault(err error, message string) bool {
	msg, ok := types.FaultMessage(err)
	return ok && msg == message
}

var (
	_ connector.Connector          = (*Connector)(nil)
	_ connector.RoomService        = (*Connector)(nil)
	_ connector.ParticipantService = (*Connector)(nil)
	_ connector.MonitoringService  = (*Connector)(nil)
)
