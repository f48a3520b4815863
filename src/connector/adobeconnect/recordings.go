package adobeconnect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

const (
	// 录制对象的图标类型
	recordingIcon = "archive"

	recordingNameLayout = "2006-01-02T15:04:05Z"

	// 开始录制后等待录制 sco-id 出现的次数
	recordingIDAttempts = 5
)

var (
	recordingFileName = regexp.MustCompile(`[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}Z`)
	// 录制名称中可能携带的目标文件夹，例如 [folder:123]
	recordingFolderTag = regexp.MustCompile(`\[[^:]+:(\d+)\]`)
)

func (c *Connector) CreateRecordingFolder(ctx context.Context, folder *types.RecordingFolder) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	rootID, err := c.recordingsFolder(ctx)
	if err != nil {
		return "", err
	}
	// 同名文件夹已存在时追加 _1、_2 ...
	name := folder.Name
	for i := 1; ; i++ {
		existing, err := c.contents(ctx, command.New("sco-contents").
			Set("sco-id", rootID).
			Set("filter-name", name))
		if err != nil {
			return "", err
		}
		if len(existing) == 0 {
			break
		}
		name = folder.Name + "_" + strconv.Itoa(i)
	}
	result, err := c.exec(ctx, command.New("sco-update").
		Set("folder-id", rootID).
		Set("name", name).
		Set("type", "folder"))
	if err != nil {
		return "", err
	}
	id := scoID(result.SelectElement("sco"))
	if id == "" {
		return "", errors.New("created recording folder has no sco-id")
	}
	if len(folder.UserPermissions) > 0 {
		modified := *folder
		modified.ID = id
		if err := c.ModifyRecordingFolder(ctx, &modified); err != nil {
			return id, err
		}
	}
	c.Logger.WithField("folder", id).WithField("name", name).Info("recording folder created")
	return id, nil
}

// ModifyRecordingFolder 重置权限后按用户重新授权，保留公开状态
func (c *Connector) ModifyRecordingFolder(ctx context.Context, folder *types.RecordingFolder) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	if err := c.checkRecordingFolder(ctx, folder.ID); err != nil {
		return err
	}
	public, err := c.isPublic(ctx, folder.ID)
	if err != nil {
		return err
	}
	if err := c.resetPermissions(ctx, folder.ID); err != nil {
		return err
	}
	cmd := command.New("permissions-update").Set("acl-id", folder.ID)
	for userID, permission := range folder.UserPermissions {
		user, err := c.Users().GetUserInformation(ctx, userID)
		if err != nil {
			return fmt.Errorf("user %s: %w", userID, err)
		}
		if len(user.PrincipalNames) == 0 {
			return fmt.Errorf("user %s has no principal names", user.FullName)
		}
		role := "denied"
		switch permission {
		case types.FolderPermissionRead:
			role = "view"
		case types.FolderPermissionWrite:
			role = "manage"
		}
		for _, name := range user.PrincipalNames {
			principalID, err := c.principalID(ctx, name, user)
			if err != nil {
				return err
			}
			cmd.Add("principal-id", principalID).Add("permission-id", role)
		}
	}
	if public {
		cmd.Add("principal-id", "public-access").Add("permission-id", "view-only")
	}
	_, err = c.exec(ctx, cmd)
	return err
}

// checkRecordingFolder 对象必须是录制根文件夹下的文件夹
func (c *Connector) checkRecordingFolder(ctx context.Context, folderID string) error {
	rootID, err := c.recordingsFolder(ctx)
	if err != nil {
		return err
	}
	sco, err := c.scoInfo(ctx, folderID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.NotFound("recording folder", folderID)
		}
		return err
	}
	if sco.SelectAttr("icon") != "folder" || sco.SelectAttr("folder-id") != rootID {
		return fmt.Errorf("sco %s is not a recording folder", folderID)
	}
	return nil
}

func (c *Connector) DeleteRecordingFolder(ctx context.Context, folderID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	if err := c.checkRecordingFolder(ctx, folderID); err != nil {
		return err
	}
	return c.deleteSCO(ctx, folderID)
}

// ListRecordings 只返回已结束的录制
func (c *Connector) ListRecordings(ctx context.Context, folderID string) ([]*types.Recording, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	scos, err := c.contents(ctx, command.New("sco-contents").
		Set("sco-id", folderID).
		Set("filter-icon", recordingIcon).
		Set("filter-out-date-end", "null"))
	if err != nil {
		return nil, err
	}
	recordings := make([]*types.Recording, 0, len(scos))
	for _, sco := range scos {
		rec, err := c.parseRecording(sco)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, rec)
	}
	return recordings, nil
}

func (c *Connector) GetRecording(ctx context.Context, recordingID string) (*types.Recording, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	sco, err := c.recordingInfo(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	return c.parseRecording(sco)
}

// recordingInfo 对象不存在或不是录制时返回 NotFound
func (c *Connector) recordingInfo(ctx context.Context, recordingID string) (*xmlquery.Node, error) {
	sco, err := c.scoInfo(ctx, recordingID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.NotFound("recording", recordingID)
		}
		return nil, err
	}
	if icon := sco.SelectAttr("icon"); icon != "" && icon != recordingIcon {
		return nil, types.NotFound("recording", recordingID)
	}
	return sco, nil
}

// GetActiveRecording 会议室中尚未结束的录制，没有时返回 nil
func (c *Connector) GetActiveRecording(ctx context.Context, alias types.Alias) (*types.Recording, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	roomID, err := c.scoByURL(ctx, lastSegment(alias.Value))
	if err != nil {
		return nil, err
	}
	scos, err := c.contents(ctx, command.New("sco-contents").
		Set("sco-id", roomID).
		Set("filter-icon", recordingIcon).
		Set("filter-date-end", "null"))
	if err != nil {
		return nil, err
	}
	if len(scos) == 0 {
		return nil, nil
	}
	return c.parseRecording(scos[0])
}

func (c *Connector) IsRecordingActive(ctx context.Context, recordingID string) (bool, error) {
	if err := c.RequireConnected(); err != nil {
		return false, err
	}
	sco, err := c.recordingInfo(ctx, recordingID)
	if err != nil {
		return false, err
	}
	return !hasChild(sco, "date-end"), nil
}

// StartRecording 会议中没有参与者时返回 ErrRecordingUnavailable
func (c *Connector) StartRecording(ctx context.Context, folderID string, alias types.Alias, settings types.RecordingSettings) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	folder, err := c.scoInfo(ctx, folderID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return "", types.NotFound("recording folder", folderID)
		}
		return "", err
	}
	name := c.recordingsPrefix + childText(folder, "name") + "_" + time.Now().UTC().Format(recordingNameLayout)
	roomID, err := c.scoByURL(ctx, lastSegment(alias.Value))
	if err != nil {
		return "", err
	}
	_, err = c.exec(ctx, command.New("meeting-recorder-activity-update").
		Set("sco-id", roomID).
		Set("active", "true").
		Set("name", name))
	if err != nil {
		if types.IsCommandError(err, "no-access", "not-available") {
			return "", fmt.Errorf("%w: %w", types.ErrRecordingUnavailable, err)
		}
		// 会议刚开始时服务端返回 internal-error
		if types.IsCommandError(err, "internal-error", "") {
			c.Logger.WithField("room", roomID).Warn("internal error while starting recording, meeting is probably just starting")
			return "", fmt.Errorf("%w: %w", types.ErrRecordingUnavailable, err)
		}
		return "", err
	}

	for attempt := 1; attempt <= recordingIDAttempts; attempt++ {
		if !internal.Sleep(ctx, requestDelay) {
			return "", ctx.Err()
		}
		result, err := c.exec(ctx, command.New("meeting-recorder-activity-info").Set("sco-id", roomID))
		if err != nil {
			return "", err
		}
		if id := childText(result.SelectElement("meeting-recorder-activity-info"), "recording-sco-id"); id != "" {
			c.Logger.WithField("room", roomID).WithField("recording", id).Info("recording started")
			return id, nil
		}
		c.Logger.WithField("attempt", attempt).Debug("recording id not available yet")
	}
	return "", fmt.Errorf("cannot get recording id in room %s", roomID)
}

// StopRecording 停止后立即移动到目标文件夹
func (c *Connector) StopRecording(ctx context.Context, recordingID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	sco, err := c.recordingInfo(ctx, recordingID)
	if err != nil {
		return err
	}
	roomID := sco.SelectAttr("folder-id")
	folderID, err := c.targetFolder(ctx, roomID, childText(sco, "name"))
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, command.New("meeting-recorder-activity-update").
		Set("sco-id", roomID).
		Set("active", "false"))
	if err != nil {
		return err
	}
	if err := c.moveRecording(ctx, recordingID, folderID); err != nil {
		return err
	}
	c.markMoved(recordingID)
	return nil
}

// targetFolder 优先使用录制名称中的文件夹，否则询问控制器
func (c *Connector) targetFolder(ctx context.Context, roomID, recordingName string) (string, error) {
	if m := recordingFolderTag.FindStringSubmatch(recordingName); m != nil {
		return m[1], nil
	}
	controller := c.Controller()
	if controller == nil {
		return "", fmt.Errorf("no controller to get recording folder of room %s", roomID)
	}
	folderID, err := controller.GetRecordingFolderID(ctx, roomID)
	if err != nil {
		return "", err
	}
	if folderID == "" {
		return "", fmt.Errorf("room %s has no recording folder", roomID)
	}
	return folderID, nil
}

func (c *Connector) DeleteRecording(ctx context.Context, recordingID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	if _, err := c.recordingInfo(ctx, recordingID); err != nil {
		return err
	}
	if err := c.deleteSCO(ctx, recordingID); err != nil {
		return err
	}
	c.movedMu.Lock()
	delete(c.moved, recordingID)
	c.movedMu.Unlock()
	return nil
}

func (c *Connector) parseRecording(sco *xmlquery.Node) (*types.Recording, error) {
	name := childText(sco, "name")
	rec := &types.Recording{
		ID:                sco.SelectAttr("sco-id"),
		RecordingFolderID: sco.SelectAttr("folder-id"),
		Name:              name,
		FileName:          name,
		Description:       childText(sco, "description"),
		State:             types.RecordingStarted,
	}
	if m := recordingFileName.FindString(name); m != "" {
		rec.FileName = m
	}
	begin, err := parseTime(childText(sco, "date-begin"))
	if err != nil {
		return nil, fmt.Errorf("recording %s: invalid begin date: %w", rec.ID, err)
	}
	rec.BeginDate = begin

	u := c.Address().URL(childText(sco, "url-path"))
	rec.ViewURL = u
	if end, err := parseTime(childText(sco, "date-end")); err == nil {
		rec.Duration = end.Sub(begin)
		rec.EditURL = u + "?pbMode=edit"
		rec.DownloadURL = u + "?pbMode=offline"
		rec.State = types.RecordingAvailable
	}
	return rec, nil
}
