// Package adobeconnect 通过 XML API 管理 Adobe Connect 会议室与录制
package adobeconnect

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/bluele/gcache"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "adobe-connect"

	OptionCapacityCheckPeriod   = "capacity-check-period"
	OptionMeetingsFolderName    = "meetings-folder-name"
	OptionRecordingsFolderName  = "recordings-folder-name"
	OptionRecordingsPrefix      = "recordings-prefix"
	OptionRecordingsCheckPeriod = "recordings-check-period"
	OptionURLPathExtraction     = "url-path-extraction-from-uri"
	OptionMoveWorkers           = "recordings-move-workers"

	defaultPort                 = 443
	defaultCapacityCheckPeriod  = 5 * time.Minute
	defaultRecordingsCheck      = 5 * time.Minute
	defaultMeetingsFolderName   = "shongo"
	defaultRecordingsFolderName = "shongo-recordings"

	// 部分请求之间需要短暂等待
	requestDelay = 100 * time.Millisecond

	principalCacheSize       = 1024
	principalCacheExpiration = time.Hour
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
	client *Client
	moves  *internal.Pool

	urlPathPattern       *regexp.Regexp
	meetingsFolderName   string
	recordingsFolderName string
	recordingsPrefix     string

	folderMu           sync.Mutex
	meetingsFolderID   string
	recordingsFolderID string

	// 重名改名必须串行
	moveMu sync.Mutex
	// 已确认位于录制文件夹中的录制
	movedMu sync.Mutex
	moved   map[string]struct{}

	// principal-id -> 登录名
	principals gcache.Cache
}

func New(cfg connector.Config) (*Connector, error) {
	cfg.Address = cfg.Address.WithDefaultPort(defaultPort)
	base, err := internal.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{
		Base:       base,
		moved:      make(map[string]struct{}),
		principals: gcache.New(principalCacheSize).LRU().Expiration(principalCacheExpiration).Build(),
	}, nil
}

func (c *Connector) Connect(ctx context.Context) error {
	if c.State() != types.Disconnected {
		_ = c.Disconnect(ctx)
	}
	capacityPeriod, err := c.Options.Duration(OptionCapacityCheckPeriod, defaultCapacityCheckPeriod)
	if err != nil {
		return err
	}
	recordingsPeriod, err := c.Options.Duration(OptionRecordingsCheckPeriod, defaultRecordingsCheck)
	if err != nil {
		return err
	}
	workers, err := c.Options.Int(OptionMoveWorkers, 0)
	if err != nil {
		return err
	}
	if c.urlPathPattern, err = c.Options.Pattern(OptionURLPathExtraction); err != nil {
		return err
	}
	c.meetingsFolderName = c.Options.String(OptionMeetingsFolderName, defaultMeetingsFolderName)
	c.recordingsFolderName = c.Options.String(OptionRecordingsFolderName, defaultRecordingsFolderName)
	c.recordingsPrefix = c.Options.String(OptionRecordingsPrefix, "")

	client, err := NewClient(c.Address().URL(""), c.Config.Username, c.Config.Password, c.HTTPOptions())
	if err != nil {
		return err
	}
	client.OnRelogin = c.relogin
	c.client = client
	c.folderMu.Lock()
	c.meetingsFolderID, c.recordingsFolderID = "", ""
	c.folderMu.Unlock()
	c.movedMu.Lock()
	c.moved = make(map[string]struct{})
	c.movedMu.Unlock()
	c.principals.Purge()

	info, err := c.setup(ctx)
	if err != nil {
		client.Logout(ctx)
		return fmt.Errorf("failed to set up connection to the device: %w", err)
	}
	c.moves = internal.NewPool(workers)
	c.Connected(info)
	c.Loop("capacity-check", capacityPeriod, c.checkAllRoomsCapacity)
	c.Loop("recordings-check", recordingsPeriod, c.CheckRecordings)
	return nil
}

// setup 登录并准备会议室和录制的根文件夹
func (c *Connector) setup(ctx context.Context) (types.DeviceInfo, error) {
	if err := c.Run(ctx, "login", c.client.Login); err != nil {
		return types.DeviceInfo{}, err
	}
	info := types.DeviceInfo{Name: "Adobe Connect"}
	if result, err := c.exec(ctx, command.New("common-info")); err == nil {
		if common := result.SelectElement("common"); common != nil {
			info.SoftwareVersion = childText(common, "version")
		}
	}
	if _, err := c.meetingsFolder(ctx); err != nil {
		return info, err
	}
	if _, err := c.recordingsFolder(ctx); err != nil {
		return info, err
	}
	return info, nil
}

// Disconnect 停止循环，等待正在进行的移动完成后注销
func (c *Connector) Disconnect(ctx context.Context) error {
	c.Disconnected()
	if c.moves != nil {
		c.moves.Close()
	}
	if c.client != nil {
		c.client.Logout(ctx)
	}
	return nil
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	client := c.client
	return c.CheckState(ctx, func(ctx context.Context) error {
		_, err := client.Call(ctx, command.New("common-info"))
		return err
	})
}

// relogin 重新登录期间状态为 RECONNECTING，登录失败时保持到下一次成功登录
func (c *Connector) relogin() func(err error) {
	if c.State() == types.Disconnected {
		return func(error) {}
	}
	c.Logger.Info("session expired, logging in again")
	c.SetState(types.Reconnecting)
	return func(err error) {
		if err != nil {
			c.Logger.WithError(err).Warn("failed to log in again")
			return
		}
		if c.State() == types.Reconnecting {
			c.SetState(types.Connected)
		}
	}
}

// exec 在命令锁内执行 API 动作
func (c *Connector) exec(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	return internal.Exec(ctx, c.Base, cmd.Name(), func(ctx context.Context) (*xmlquery.Node, error) {
		c.Logger.WithField("action", cmd.Name()).Debug("calling action")
		return c.client.Call(ctx, cmd)
	})
}

// scoInfo 对象不存在时返回包装了 types.ErrNotFound 的错误
func (c *Connector) scoInfo(ctx context.Context, scoID string) (*xmlquery.Node, error) {
	result, err := c.exec(ctx, command.New("sco-info").Set("sco-id", scoID))
	if err != nil {
		if types.IsCommandError(err, "no-access", "denied") || types.IsCommandError(err, "no-data", "") {
			return nil, types.NotFound("sco", scoID)
		}
		return nil, err
	}
	sco := result.SelectElement("sco")
	if sco == nil {
		return nil, types.NotFound("sco", scoID)
	}
	return sco, nil
}

// contents 返回 sco-contents 的 <sco> 列表
func (c *Connector) contents(ctx context.Context, cmd *command.Command) ([]*xmlquery.Node, error) {
	result, err := c.exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return elements(result, "scos", "sco"), nil
}

func (c *Connector) deleteSCO(ctx context.Context, scoID string) error {
	_, err := c.exec(ctx, command.New("sco-delete").Set("sco-id", scoID))
	return err
}

func (c *Connector) renameSCO(ctx context.Context, scoID, name string) error {
	_, err := c.exec(ctx, command.New("sco-update").Set("sco-id", scoID).Set("name", name))
	return err
}

// scoByURL 按 URL 路径查找会议室
func (c *Connector) scoByURL(ctx context.Context, urlPath string) (string, error) {
	result, err := c.exec(ctx, command.New("sco-by-url").Set("url-path", urlPath))
	if err != nil {
		if types.IsCommandError(err, "no-data", "") || types.IsCommandError(err, "no-access", "denied") {
			return "", types.NotFound("room", urlPath)
		}
		return "", err
	}
	sco := result.SelectElement("sco")
	if sco == nil {
		return "", types.NotFound("room", urlPath)
	}
	return sco.SelectAttr("sco-id"), nil
}

// folderUnderShortcut 在指定快捷方式（meetings、content）下查找或创建文件夹
func (c *Connector) folderUnderShortcut(ctx context.Context, shortcut, name string) (string, error) {
	result, err := c.exec(ctx, command.New("sco-shortcuts"))
	if err != nil {
		return "", err
	}
	for _, sco := range elements(result, "shortcuts", "sco") {
		if sco.SelectAttr("type") != shortcut {
			continue
		}
		parentID := sco.SelectAttr("sco-id")
		folders, err := c.contents(ctx, command.New("sco-contents").
			Set("sco-id", parentID).
			Set("filter-is-folder", "1"))
		if err != nil {
			return "", err
		}
		for _, folder := range folders {
			if childText(folder, "name") == name {
				return folder.SelectAttr("sco-id"), nil
			}
		}
		c.Logger.WithField("folder", name).Info("creating folder")
		created, err := c.exec(ctx, command.New("sco-update").
			Set("folder-id", parentID).
			Set("name", name).
			Set("type", "folder"))
		if err != nil {
			return "", err
		}
		if sco := created.SelectElement("sco"); sco != nil {
			return sco.SelectAttr("sco-id"), nil
		}
		return "", fmt.Errorf("creating folder %s returned no sco", name)
	}
	return "", fmt.Errorf("shortcut %q not found", shortcut)
}

// meetingsFolder 会议室所在的文件夹，首次使用时查找或创建
func (c *Connector) meetingsFolder(ctx context.Context) (string, error) {
	c.folderMu.Lock()
	defer c.folderMu.Unlock()
	if c.meetingsFolderID != "" {
		return c.meetingsFolderID, nil
	}
	id, err := c.folderUnderShortcut(ctx, "meetings", c.meetingsFolderName)
	if err != nil {
		return "", fmt.Errorf("failed to get meetings folder: %w", err)
	}
	c.meetingsFolderID = id
	return id, nil
}

// recordingsFolder 录制文件夹的根，对公众不可见
func (c *Connector) recordingsFolder(ctx context.Context) (string, error) {
	c.folderMu.Lock()
	defer c.folderMu.Unlock()
	if c.recordingsFolderID != "" {
		return c.recordingsFolderID, nil
	}
	id, err := c.folderUnderShortcut(ctx, "content", c.recordingsFolderName)
	if err != nil {
		return "", fmt.Errorf("failed to get recordings folder: %w", err)
	}
	permission, err := c.publicPermission(ctx, id)
	if err != nil {
		return "", err
	}
	if permission != "denied" {
		if err := c.setPublicPermission(ctx, id, "denied"); err != nil {
			return "", err
		}
	}
	c.recordingsFolderID = id
	return id, nil
}

// publicPermission 返回 public-access 主体在对象上的权限
func (c *Connector) publicPermission(ctx context.Context, scoID string) (string, error) {
	result, err := c.exec(ctx, command.New("permissions-info").
		Set("acl-id", scoID).
		Set("filter-principal-id", "public-access"))
	if err != nil {
		return "", err
	}
	principal := xmlquery.FindOne(result, "permissions/principal")
	if principal == nil {
		return "", nil
	}
	return principal.SelectAttr("permission-id"), nil
}

func (c *Connector) setPublicPermission(ctx context.Context, scoID, permissionID string) error {
	_, err := c.exec(ctx, command.New("permissions-update").
		Set("acl-id", scoID).
		Set("principal-id", "public-access").
		Set("permission-id", permissionID))
	return err
}

func (c *Connector) resetPermissions(ctx context.Context, scoID string) error {
	_, err := c.exec(ctx, command.New("permissions-reset").Set("acl-id", scoID))
	return err
}

// principalID 查找或创建与主体名称对应的 Adobe Connect 用户
func (c *Connector) principalID(ctx context.Context, principalName string, user *types.UserInformation) (string, error) {
	result, err := c.exec(ctx, command.New("principal-list").Set("filter-login", principalName))
	if err != nil {
		return "", err
	}
	if principal := xmlquery.FindOne(result, "principal-list/principal"); principal != nil {
		return principal.SelectAttr("principal-id"), nil
	}
	first, last := splitName(user.FullName)
	created, err := c.exec(ctx, command.New("principal-update").
		Set("first-name", first).
		Set("last-name", last).
		Set("login", principalName).
		Set("email", user.Email).
		Set("type", "user").
		Set("has-children", "false"))
	if err != nil {
		return "", err
	}
	principal := created.SelectElement("principal")
	if principal == nil {
		return "", fmt.Errorf("creating user %s returned no principal", principalName)
	}
	return principal.SelectAttr("principal-id"), nil
}

// principalName 主体 ID 对应的登录名（EPPN），访客返回空字符串
func (c *Connector) principalName(ctx context.Context, principalID string) (string, error) {
	if principalID == "" {
		return "", nil
	}
	if v, err := c.principals.GetIFPresent(principalID); err == nil {
		return v.(string), nil
	}
	result, err := c.exec(ctx, command.New("principal-list").Set("filter-principal-id", principalID))
	if err != nil {
		return "", err
	}
	login := childText(xmlquery.FindOne(result, "principal-list/principal"), "login")
	_ = c.principals.Set(principalID, login)
	return login, nil
}

// splitName 控制器只提供全名，最后一个词作为姓
func splitName(fullName string) (first, last string) {
	fields := strings.Fields(fullName)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], fields[0]
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}

var (
	_ connector.Connector          = (*Connector)(nil)
	_ connector.RoomService        = (*Connector)(nil)
	_ connector.ParticipantService = (*Connector)(nil)
	_ connector.RecordingService   = (*Connector)(nil)
	_ connector.MonitoringService  = (*Connector)(nil)
)
