package adobeconnect

import (
	"context"
	"errors"
	"strconv"

	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

// userList 会议当前的用户，会议未开始时返回空列表
func (c *Connector) userList(ctx context.Context, roomID string) ([]userDetails, error) {
	result, err := c.exec(ctx, command.New("meeting-usermanager-user-list").Set("sco-id", roomID))
	if err != nil {
		if types.IsCommandError(err, "no-access", "not-available") {
			return nil, nil
		}
		// 会议中没有参与者时服务端偶尔返回 internal-error
		if types.IsCommandError(err, "internal-error", "") {
			c.Logger.WithField("room", roomID).WithError(err).Debug("user list returned internal error")
			return nil, nil
		}
		return nil, err
	}
	var users []userDetails
	for _, n := range elements(result, "meeting-usermanager-user-list", "userdetails") {
		users = append(users, userDetails{
			ID:          childText(n, "user-id"),
			Name:        childText(n, "username"),
			Role:        childText(n, "role"),
			PrincipalID: childText(n, "principal-id"),
		})
	}
	return users, nil
}

type userDetails struct {
	ID          string
	Name        string
	Role        string
	PrincipalID string
}

func (c *Connector) ListRoomParticipants(ctx context.Context, roomID string) ([]*types.RoomParticipant, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	users, err := c.userList(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participants := make([]*types.RoomParticipant, 0, len(users))
	for _, u := range users {
		p := &types.RoomParticipant{ID: u.ID, RoomID: roomID, DisplayName: u.Name}
		switch u.Role {
		case "participant":
			p.Role = types.RoleParticipant
		case "presenter":
			p.Role = types.RolePresenter
		case "host":
			p.Role = types.RoleAdministrator
		}
		// 访客没有登录名
		login, err := c.principalName(ctx, u.PrincipalID)
		if err != nil {
			return nil, err
		}
		if login != "" {
			if p.UserID, err = c.Users().GetUserIDByPrincipalName(ctx, login); err != nil {
				c.Logger.WithError(err).WithField("principal", login).Warn("failed to resolve user")
			}
		}
		participants = append(participants, p)
	}
	return participants, nil
}

func (c *Connector) GetRoomParticipant(ctx context.Context, roomID, participantID string) (*types.RoomParticipant, error) {
	participants, err := c.ListRoomParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.ID == participantID {
			return p, nil
		}
	}
	return nil, types.NotFound("participant", participantID)
}

func (c *Connector) DisconnectRoomParticipant(ctx context.Context, roomID, participantID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	users, err := c.userList(ctx, roomID)
	if err != nil {
		return err
	}
	found := false
	for _, u := range users {
		if u.ID == participantID {
			found = true
			break
		}
	}
	if !found {
		return types.NotFound("participant", participantID)
	}
	_, err = c.exec(ctx, command.New("meeting-usermanager-remove-user").
		Set("sco-id", roomID).
		Set("user-id", participantID))
	return err
}

func (c *Connector) DialRoomParticipant(ctx context.Context, roomID string, alias types.Alias) (string, error) {
	return "", types.Unsupported("DialRoomParticipant")
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

// GetUsageStats 当前进行中的会议数与参与者数
func (c *Connector) GetUsageStats(ctx context.Context) (*types.UsageStats, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	result, err := c.exec(ctx, command.New("report-active-meetings"))
	if err != nil {
		return nil, err
	}
	stats := &types.UsageStats{}
	for _, sco := range elements(result, "report-active-meetings", "sco") {
		stats.RoomCount++
		if n, err := strconv.Atoi(sco.SelectAttr("active-participants")); err == nil {
			stats.ParticipantCount += n
		}
	}
	return stats, nil
}

func (c *Connector) UnsupportedMethods() []string {
	return []string{
		"DialRoomParticipant",
		"ModifyRoomParticipant",
		"ModifyRoomParticipants",
		"GetRoomParticipantSnapshots",
		"GetDeviceLoadInfo",
	}
}

// checkAllRoomsCapacity 只检查由本系统创建的进行中会议
func (c *Connector) checkAllRoomsCapacity(ctx context.Context) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	result, err := c.exec(ctx, command.New("report-active-meetings"))
	if err != nil {
		return err
	}
	managed, err := c.managedRoomIDs(ctx)
	if err != nil {
		return err
	}
	var usage []internal.RoomUsage
	for _, sco := range elements(result, "report-active-meetings", "sco") {
		roomID := sco.SelectAttr("sco-id")
		if _, ok := managed[roomID]; !ok {
			c.Logger.WithField("room", roomID).WithField("url", childText(sco, "url-path")).
				Debug("active room was not created by this system")
			continue
		}
		users, err := c.userList(ctx, roomID)
		if err != nil {
			return err
		}
		room, err := c.GetRoom(ctx, roomID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				c.Logger.WithField("room", roomID).Warn("cannot get room, skipping capacity check")
				continue
			}
			return err
		}
		usage = append(usage, internal.RoomUsage{
			RoomID:       roomID,
			RoomName:     room.Name(),
			Participants: len(users),
			Licenses:     room.LicenseCount,
		})
	}
	c.CheckCapacity(usage)
	return nil
}
