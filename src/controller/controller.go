// Package controller 独立运行时使用的本地控制器
//
// 录制文件夹映射保存在 recordingstore 中，用户信息来自配置文件，
// 通知通过 notify 渲染后记录日志并发送邮件。
package controller

import (
	"context"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/types"
)

// FolderStore 会议室到录制文件夹的映射
type FolderStore interface {
	SetRoomFolder(ctx context.Context, connectorName, roomID, folderID string) error
	RoomFolder(ctx context.Context, connectorName, roomID string) (string, error)
}

// Deliverer 通知投递
type Deliverer interface {
	Deliver(ctx context.Context, n *connector.Notification, recipients []string) error
}

type Local struct {
	folders  FolderStore
	notifier Deliverer
	users    []configs.User
	admins   []string
	logger   logrus.FieldLogger
}

func New(cfg *configs.Config, folders FolderStore, notifier Deliverer, logger logrus.FieldLogger) *Local {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Local{
		folders:  folders,
		notifier: notifier,
		users:    cfg.Users,
		admins:   cfg.Notify.Email.AdminEmails,
		logger:   logger.WithField("module", "controller"),
	}
}

// For 返回绑定到某个连接器的控制器视图
func (l *Local) For(connectorName string) connector.Controller {
	return &view{Local: l, connector: connectorName}
}

// SetRecordingFolderID 指定会议室录制的目标文件夹，folderID 为空时清除
func (l *Local) SetRecordingFolderID(ctx context.Context, connectorName, roomID, folderID string) error {
	return l.folders.SetRoomFolder(ctx, connectorName, roomID, folderID)
}

func (l *Local) GetUserInformation(ctx context.Context, userID string) (*types.UserInformation, error) {
	for _, u := range l.users {
		if u.ID == userID {
			return &types.UserInformation{
				UserID:         u.ID,
				FullName:       u.FullName,
				Email:          u.Email,
				PrincipalNames: u.PrincipalNames,
			}, nil
		}
	}
	return nil, types.NotFound("user", userID)
}

func (l *Local) GetUserIDByPrincipalName(ctx context.Context, principalName string) (string, error) {
	for _, u := range l.users {
		if slices.Contains(u.PrincipalNames, principalName) {
			return u.ID, nil
		}
	}
	return "", types.NotFound("principal name", principalName)
}

// Notify 按目标选择收件人，找不到收件人时仍然记录通知
func (l *Local) Notify(ctx context.Context, n *connector.Notification) error {
	recipients := l.recipients(n)
	if len(recipients) == 0 {
		l.logger.WithFields(logrus.Fields{
			"connector": n.Connector,
			"target":    n.Target,
			"room":      n.RoomID,
		}).Warn("no recipients for notification")
	}
	return l.notifier.Deliver(ctx, n, recipients)
}

func (l *Local) recipients(n *connector.Notification) []string {
	switch n.Target {
	case connector.TargetResourceAdmins:
		return slices.Clone(l.admins)
	case connector.TargetRoomOwners:
		var emails []string
		for _, u := range l.users {
			if u.Email != "" && n.RoomID != "" && slices.Contains(u.Rooms, n.RoomID) {
				emails = append(emails, u.Email)
			}
		}
		return emails
	}
	return nil
}

type view struct {
	*Local
	connector string
}

func (v *view) GetRecordingFolderID(ctx context.Context, roomID string) (string, error) {
	return v.folders.RoomFolder(ctx, v.connector, roomID)
}

var _ connector.Controller = (*view)(nil)
