package connector

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/shongo-go/connector/src/types"
)

// Controller 连接器回调控制器的接口
type Controller interface {
	// GetRecordingFolderID 返回会议室录制应放入的文件夹，没有时返回空字符串
	GetRecordingFolderID(ctx context.Context, roomID string) (string, error)
	// Notify 投递通知，实现不应长时间阻塞
	Notify(ctx context.Context, n *Notification) error
	GetUserInformation(ctx context.Context, userID string) (*types.UserInformation, error)
	GetUserIDByPrincipalName(ctx context.Context, principalName string) (string, error)
}

// NotificationTarget 通知接收方
type NotificationTarget string

const (
	TargetRoomOwners     NotificationTarget = "ROOM_OWNERS"
	TargetResourceAdmins NotificationTarget = "RESOURCE_ADMINS"
)

// Language 通知语言
type Language string

const (
	LangEnglish Language = "en"
	LangCzech   Language = "cs"
)

// Localized 双语文本
type Localized map[Language]string

// Get 返回指定语言的文本，缺失时回退到英文
func (l Localized) Get(lang Language) string {
	if v, ok := l[lang]; ok && v != "" {
		return v
	}
	return l[LangEnglish]
}

// Notification 连接器发给控制器的通知
type Notification struct {
	ID        string             `json:"id"`
	Target    NotificationTarget `json:"target"`
	Connector string             `json:"connector"`
	RoomID    string             `json:"room_id,omitempty"`
	Title     Localized          `json:"title"`
	Message   Localized          `json:"message"`
	Created   time.Time          `json:"created"`
}

// NewNotification 创建带唯一 ID 的通知
func NewNotification(target NotificationTarget, connectorName, roomID string) *Notification {
	return &Notification{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Target:    target,
		Connector: connectorName,
		RoomID:    roomID,
		Title:     make(Localized),
		Message:   make(Localized),
		Created:   time.Now(),
	}
}

// SetTitle 设置英文和捷克语标题
func (n *Notification) SetTitle(en, cs string) *Notification {
	n.Title[LangEnglish] = en
	n.Title[LangCzech] = cs
	return n
}

// SetMessage 设置英文和捷克语正文
func (n *Notification) SetMessage(en, cs string) *Notification {
	n.Message[LangEnglish] = en
	n.Message[LangCzech] = cs
	return n
}

func (n *Notification) String() string {
	return fmt.Sprintf("[%s] %s", n.Target, n.Title.Get(LangEnglish))
}

// CapacityExceededNotification 会议室参与者数超过授权数
func CapacityExceededNotification(connectorName, roomID, roomName string, participants, licenses int) *Notification {
	return NewNotification(TargetRoomOwners, connectorName, roomID).
		SetTitle(
			"Room capacity exceeded: "+roomName,
			"Kapacita místnosti překročena: "+roomName,
		).
		SetMessage(
			fmt.Sprintf("Capacity has been exceeded in your room %q.\n\nLicence count: %d\nNumber of participants: %d\n",
				roomName, licenses, participants),
			fmt.Sprintf("Kapacita vaší místnosti %q byla překročena.\n\nPočet licencí: %d\nPočet účastníků: %d\n",
				roomName, licenses, participants),
		)
}

// RecordingMoveFailedNotification 录制移动到目标文件夹失败
func RecordingMoveFailedNotification(connectorName, recordingID, folderID string, err error) *Notification {
	return NewNotification(TargetResourceAdmins, connectorName, "").
		SetTitle(
			"Failed to move recording",
			"Nepodařilo se přesunout nahrávku",
		).
		SetMessage(
			fmt.Sprintf("Recording %s could not be moved to folder %s: %v", recordingID, folderID, err),
			fmt.Sprintf("Nahrávku %s se nepodařilo přesunout do složky %s: %v", recordingID, folderID, err),
		)
}

// AliasSyncFailedNotification 别名服务同步失败
func AliasSyncFailedNotification(connectorName, roomID, action string, err error) *Notification {
	return NewNotification(TargetResourceAdmins, connectorName, roomID).
		SetTitle(
			fmt.Sprintf("Failed to %s alias", action),
			fmt.Sprintf("Operace s aliasem selhala (%s)", action),
		).
		SetMessage(
			fmt.Sprintf("Alias service operation %q for room %s failed: %v", action, roomID, err),
			fmt.Sprintf("Operace %q se službou aliasů pro místnost %s selhala: %v", action, roomID, err),
		)
}

// RecordingBackupFailedNotification 删除会议室前备份录制失败
func RecordingBackupFailedNotification(connectorName, roomID string, err error) *Notification {
	return NewNotification(TargetResourceAdmins, connectorName, roomID).
		SetTitle(
			"Failed to back up recordings",
			"Nepodařilo se zálohovat nahrávky",
		).
		SetMessage(
			fmt.Sprintf("Recordings of room %s could not be backed up before deleting the room: %v", roomID, err),
			fmt.Sprintf("Nahrávky místnosti %s se nepodařilo zálohovat před jejím smazáním: %v", roomID, err),
		)
}
