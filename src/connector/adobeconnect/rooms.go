package adobeconnect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

// 主体名称超过该长度时 Adobe Connect 拒绝创建用户
const maxPrincipalNameLength = 60

var templateName = regexp.MustCompile(`(?i)template$`)

func (c *Connector) ListRooms(ctx context.Context) ([]types.RoomSummary, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	result, err := c.exec(ctx, command.New("report-bulk-objects").Set("filter-type", "meeting"))
	if err != nil {
		return nil, err
	}
	rooms := []types.RoomSummary{}
	for _, row := range elements(result, "report-bulk-objects", "row") {
		name := childText(row, "name")
		if templateName.MatchString(name) {
			continue
		}
		summary := types.RoomSummary{
			ID:          row.SelectAttr("sco-id"),
			Name:        name,
			Description: childText(row, "description"),
			Alias:       childText(row, "url"),
		}
		if created, err := parseTime(childText(row, "date-created")); err == nil {
			summary.StartTime = created
		}
		rooms = append(rooms, summary)
	}
	return rooms, nil
}

func (c *Connector) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	sco, err := c.scoInfo(ctx, roomID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.NotFound("room", roomID)
		}
		return nil, err
	}
	room := &types.Room{ID: roomID, Description: childText(sco, "description")}
	room.AddAlias(types.AliasRoomName, childText(sco, "name"))
	if tag := childText(sco, "sco-tag"); tag != "" {
		if room.LicenseCount, err = strconv.Atoi(tag); err != nil {
			c.Logger.WithField("room", roomID).WithField("sco-tag", tag).Warn("invalid license count")
		}
	} else {
		c.Logger.WithField("room", roomID).Warn("license count not set, using 0 licenses")
	}
	room.AddTechnology(types.TechnologyAdobeConnect)
	room.AddAlias(types.AliasAdobeConnectURI, c.Address().URL(childText(sco, "url-path")))

	permission, err := c.publicPermission(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.AddSetting(&types.AdobeConnectRoomSetting{
		PIN:        childText(sco, "meeting-passcode"),
		AccessMode: types.AccessModeFromPermissionID(permission),
	})
	return room, nil
}

// roomAttributes 会议室属性对应的 sco-update 参数
func (c *Connector) roomAttributes(cmd *command.Command, room *types.Room) error {
	if room.Description != "" {
		cmd.Set("description", room.Description)
	}
	cmd.Set("sco-tag", strconv.Itoa(room.LicenseCount))
	for _, alias := range room.Aliases {
		switch alias.Type {
		case types.AliasRoomName:
			cmd.Set("name", alias.Value)
		case types.AliasAdobeConnectURI:
			path, err := c.urlPath(alias.Value)
			if err != nil {
				return err
			}
			cmd.Set("url-path", path)
		default:
			return fmt.Errorf("unrecognized alias %s", alias)
		}
	}
	return nil
}

// urlPath 用 url-path-extraction-from-uri 的第一个分组取出会议室 URL 路径
func (c *Connector) urlPath(uri string) (string, error) {
	if c.urlPathPattern == nil {
		return "", fmt.Errorf("cannot set url path, missing option %q", OptionURLPathExtraction)
	}
	m := c.urlPathPattern.FindStringSubmatch(uri)
	if len(m) < 2 {
		return "", fmt.Errorf("invalid Adobe Connect URI %q", uri)
	}
	return m[1], nil
}

func (c *Connector) CreateRoom(ctx context.Context, room *types.Room) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	folderID, err := c.meetingsFolder(ctx)
	if err != nil {
		return "", err
	}
	cmd := command.New("sco-update").
		Set("folder-id", folderID).
		Set("type", "meeting").
		Set("date-begin", time.Now().Format(time.RFC3339))
	if err := c.roomAttributes(cmd, room); err != nil {
		return "", err
	}
	if cmd.GetString("name") == "" {
		return "", errors.New("room name must be filled for the new room")
	}
	result, err := c.exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	sco := result.SelectElement("sco")
	if sco == nil {
		return "", errors.New("created room has no sco-id")
	}
	roomID := sco.SelectAttr("sco-id")

	if room.AcceptsParticipants() {
		c.startMeeting(ctx, roomID)
		if err := c.addRoomParticipants(ctx, roomID, room.Participants); err != nil {
			return roomID, err
		}
	} else {
		c.endMeeting(ctx, roomID, "", "")
	}
	if err := c.applyRoomSetting(ctx, roomID, room); err != nil {
		return roomID, err
	}
	c.Logger.WithField("room", roomID).Info("room created")
	return roomID, nil
}

// applyRoomSetting 设置口令与访问模式，未设置时为无口令的 PROTECTED
func (c *Connector) applyRoomSetting(ctx context.Context, roomID string, room *types.Room) error {
	var pin string
	var mode types.AdobeConnectAccessMode
	if s := room.AdobeConnectSetting(); s != nil {
		pin, mode = s.PIN, s.AccessMode
	}
	_, err := c.exec(ctx, command.New("acl-field-update").
		Set("acl-id", roomID).
		Set("field-id", "meeting-passcode").
		Set("value", pin))
	if err != nil {
		return err
	}
	return c.setPublicPermission(ctx, roomID, mode.PermissionID())
}

// ModifyRoom URL 路径变化时重建会议室并把旧会议室重定向到新地址
func (c *Connector) ModifyRoom(ctx context.Context, room *types.Room) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	old, err := c.GetRoom(ctx, room.ID)
	if err != nil {
		return "", err
	}
	recreate, err := c.recreateNeeded(old, room)
	if err != nil {
		return "", err
	}
	if recreate {
		return internal.RecreateRoom(ctx, c.Base, c, room.ID, room, c.redirectRoom(room))
	}

	cmd := command.New("sco-update").Set("sco-id", room.ID).Set("type", "meeting")
	if err := c.roomAttributes(cmd, room); err != nil {
		return "", err
	}
	if err := c.resetPermissions(ctx, room.ID); err != nil {
		return "", err
	}
	if room.AcceptsParticipants() {
		c.startMeeting(ctx, room.ID)
		if err := c.addRoomParticipants(ctx, room.ID, room.Participants); err != nil {
			return "", err
		}
	} else {
		c.backupRoomRecordings(ctx, room.ID)
		c.endMeeting(ctx, room.ID, "", "")
	}
	if _, err := c.exec(ctx, cmd); err != nil {
		return "", err
	}
	if err := c.applyRoomSetting(ctx, room.ID, room); err != nil {
		return "", err
	}
	return room.ID, nil
}

// recreateNeeded 新的 URL 路径与旧地址的最后一段不同
func (c *Connector) recreateNeeded(old, room *types.Room) (bool, error) {
	alias, ok := room.GetAlias(types.AliasAdobeConnectURI)
	if !ok {
		return false, nil
	}
	path, err := c.urlPath(alias.Value)
	if err != nil {
		return false, err
	}
	oldAlias, ok := old.GetAlias(types.AliasAdobeConnectURI)
	if !ok {
		return true, nil
	}
	return !types.EqualFoldLastSegment(oldAlias.Value, path), nil
}

func (c *Connector) redirectRoom(room *types.Room) func(ctx context.Context, oldID, newID string) error {
	return func(ctx context.Context, oldID, newID string) error {
		alias, ok := room.GetAlias(types.AliasAdobeConnectURI)
		if !ok {
			return errors.New("room has no Adobe Connect URI")
		}
		msg := "Room has been modified, you have been redirected to the new one (" + alias.Value + ")."
		c.endMeeting(ctx, oldID, msg, alias.Value)
		return nil
	}
}

// DeleteRoom 删除前结束会议并备份录制
func (c *Connector) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	if _, err := c.scoInfo(ctx, roomID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.NotFound("room", roomID)
		}
		return err
	}
	c.endMeeting(ctx, roomID, "", "")
	c.backupRoomRecordings(ctx, roomID)
	if err := c.deleteSCO(ctx, roomID); err != nil {
		if types.IsCommandError(err, "no-access", "denied") || types.IsCommandError(err, "no-data", "") {
			return types.NotFound("room", roomID)
		}
		return err
	}
	c.Logger.WithField("room", roomID).Info("room deleted")
	return nil
}

func (c *Connector) startMeeting(ctx context.Context, roomID string) {
	c.updateMeetingSession(ctx, roomID, false, "", "")
}

// endMeeting redirect 不为空时把参与者重定向到该地址
func (c *Connector) endMeeting(ctx context.Context, roomID, message, redirect string) {
	c.updateMeetingSession(ctx, roomID, true, message, redirect)
}

// updateMeetingSession 只在存在会话时更新，失败通常是服务端的问题，只记录日志
func (c *Connector) updateMeetingSession(ctx context.Context, roomID string, end bool, message, redirect string) {
	logger := c.Logger.WithField("room", roomID).WithField("end", end)
	sessions, err := c.exec(ctx, command.New("report-meeting-sessions").Set("sco-id", roomID))
	if err != nil {
		logger.WithError(err).Warn("failed to get meeting sessions")
		return
	}
	if len(elements(sessions, "report-meeting-sessions", "")) == 0 {
		return
	}
	cmd := command.New("meeting-roommanager-endmeeting-update").
		Set("sco-id", roomID).
		Set("state", strconv.FormatBool(end))
	if message != "" {
		cmd.Set("message", message)
	}
	if redirect != "" {
		cmd.Set("redirect", "true").Set("url", redirect)
	}
	if _, err := c.exec(ctx, cmd); err != nil {
		logger.WithError(err).Warn("failed to update meeting session")
		return
	}
	logger.Debug("meeting session updated")
}

// addRoomParticipants 为每个参与者的所有主体名称设置会议室权限
func (c *Connector) addRoomParticipants(ctx context.Context, roomID string, participants []types.RoomParticipant) error {
	cmd := command.New("permissions-update").Set("acl-id", roomID)
	count := 0
	for _, p := range participants {
		if p.UserID == "" {
			continue
		}
		user, err := c.Users().GetUserInformation(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("user %s: %w", p.UserID, err)
		}
		if len(user.PrincipalNames) == 0 {
			return fmt.Errorf("user %s has no principal names", user.FullName)
		}
		for _, name := range user.PrincipalNames {
			if len(name) > maxPrincipalNameLength {
				c.Logger.WithField("principal", name).Warn("principal name too long, skipping")
				continue
			}
			principalID, err := c.principalID(ctx, name, user)
			if err != nil {
				return err
			}
			cmd.Add("principal-id", principalID).Add("permission-id", rolePermission(p.Role))
			count++
		}
	}
	if count == 0 {
		return nil
	}
	_, err := c.exec(ctx, cmd)
	return err
}

func rolePermission(role types.ParticipantRole) string {
	switch role {
	case types.RoleParticipant:
		return "view"
	case types.RolePresenter:
		return "mini-host"
	case types.RoleAdministrator:
		return "host"
	default:
		return "remove"
	}
}

// isPublic view、view-hidden 与 view-only 都视为公开
func (c *Connector) isPublic(ctx context.Context, scoID string) (bool, error) {
	permission, err := c.publicPermission(ctx, scoID)
	if err != nil {
		return false, err
	}
	switch permission {
	case "view-hidden", "view", "view-only":
		return true, nil
	}
	return false, nil
}

// managedRoomIDs 会议室文件夹中的会议室
func (c *Connector) managedRoomIDs(ctx context.Context) (map[string]struct{}, error) {
	folderID, err := c.meetingsFolder(ctx)
	if err != nil {
		return nil, err
	}
	scos, err := c.contents(ctx, command.New("sco-contents").
		Set("sco-id", folderID).
		Set("filter-type", "meeting"))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(scos))
	for _, sco := range scos {
		ids[sco.SelectAttr("sco-id")] = struct{}{}
	}
	return ids, nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

// lastSegment 返回 URI 的最后一段路径
func lastSegment(uri string) string {
	uri = strings.TrimSuffix(uri, "/")
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return ""
}

func scoID(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return n.SelectAttr("sco-id")
}
