package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/types"
)

// RecreateRoom 先创建新会议室，redirect 可选地把旧会议室指向新会议室，最后删除旧会议室
func RecreateRoom(ctx context.Context, b *Base, svc connector.RoomService, oldID string, room *types.Room,
	redirect func(ctx context.Context, oldID, newID string) error) (string, error) {
	newRoom := *room
	newRoom.ID = ""
	newID, err := svc.CreateRoom(ctx, &newRoom)
	if err != nil {
		return "", fmt.Errorf("failed to recreate room %s: %w", oldID, err)
	}
	logger := b.Logger.WithFields(logrus.Fields{"room": oldID, "new_room": newID})
	if redirect != nil {
		if err := redirect(ctx, oldID, newID); err != nil {
			logger.WithError(err).Warn("failed to redirect old room")
		}
	}
	if err := svc.DeleteRoom(ctx, oldID); err != nil && !errors.Is(err, types.ErrNotFound) {
		logger.WithError(err).Warn("failed to delete old room after recreate")
	}
	logger.Info("room recreated")
	return newID, nil
}

// ApplyParticipantSettings 把 template 中非空的属性复制到 p，返回复制后的结果
func ApplyParticipantSettings(p, template *types.RoomParticipant) *types.RoomParticipant {
	out := *p
	if template.DisplayName != "" {
		out.DisplayName = template.DisplayName
	}
	if template.MicrophoneEnabled != nil {
		out.MicrophoneEnabled = types.Bool(*template.MicrophoneEnabled)
	}
	if template.MicrophoneLevel != nil {
		out.MicrophoneLevel = types.Int(*template.MicrophoneLevel)
	}
	if template.VideoEnabled != nil {
		out.VideoEnabled = types.Bool(*template.VideoEnabled)
	}
	if template.Layout != "" {
		out.Layout = template.Layout
	}
	return &out
}

// ModifyAllParticipants 对会议室内所有参与者应用相同的修改，已一致的参与者跳过
func ModifyAllParticipants(ctx context.Context, svc connector.ParticipantService, template *types.RoomParticipant) error {
	participants, err := svc.ListRoomParticipants(ctx, template.RoomID)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range participants {
		modified := ApplyParticipantSettings(p, template)
		if modified.SameSettings(p) {
			continue
		}
		modified.RoomID = template.RoomID
		if err := svc.ModifyRoomParticipant(ctx, modified); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("participant %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}

// RoomUsage 一个会议室当前的参与者数与授权数
type RoomUsage struct {
	RoomID       string
	RoomName     string
	Participants int
	Licenses     int
}

// CheckCapacity 参与者超过授权数时通知会议室所有者，不主动断开参与者
func (b *Base) CheckCapacity(usage []RoomUsage) int {
	exceeded := 0
	for _, u := range usage {
		logger := b.Logger.WithFields(logrus.Fields{
			"room":         u.RoomID,
			"participants": u.Participants,
			"licenses":     u.Licenses,
		})
		if u.Participants <= u.Licenses {
			logger.Trace("room capacity ok")
			continue
		}
		exceeded++
		logger.Warn("room capacity exceeded")
		b.Metrics.IncCapacityExceeded(b.Config.Name)
		b.Notify(connector.CapacityExceededNotification(b.Config.Name, u.RoomID, u.RoomName, u.Participants, u.Licenses))
	}
	return exceeded
}
