package types

import (
	"strings"
	"time"
)

// RoomLayout 虚拟会议室的画面布局
type RoomLayout string

const (
	LayoutOther         RoomLayout = "OTHER"
	LayoutSpeaker       RoomLayout = "SPEAKER"
	LayoutSpeakerCorner RoomLayout = "SPEAKER_CORNER"
	LayoutGrid          RoomLayout = "GRID"
)

// RoomSetting 厂商相关的会议室设置
type RoomSetting interface {
	roomSetting()
}

// H323RoomSetting H.323/SIP 设备（Cisco MCU 等）的会议室设置，nil 表示不修改
type H323RoomSetting struct {
	PIN                    string `json:"pin,omitempty"`
	ListedPublicly         *bool  `json:"listed_publicly,omitempty"`
	AllowContent           *bool  `json:"allow_content,omitempty"`
	AllowGuests            *bool  `json:"allow_guests,omitempty"`
	JoinMicrophoneDisabled *bool  `json:"join_microphone_disabled,omitempty"`
	JoinVideoDisabled      *bool  `json:"join_video_disabled,omitempty"`
	RegisterWithGatekeeper *bool  `json:"register_with_gatekeeper,omitempty"`
	RegisterWithRegistrar  *bool  `json:"register_with_registrar,omitempty"`
	StartLocked            *bool  `json:"start_locked,omitempty"`
	ConferenceMeEnabled    *bool  `json:"conference_me_enabled,omitempty"`
	ContentImportant       *bool  `json:"content_important,omitempty"`
}

func (*H323RoomSetting) roomSetting() {}

// AdobeConnectAccessMode Adobe Connect 会议的访问模式
type AdobeConnectAccessMode string

const (
	AccessPublic    AdobeConnectAccessMode = "PUBLIC"
	AccessProtected AdobeConnectAccessMode = "PROTECTED"
	AccessPrivate   AdobeConnectAccessMode = "PRIVATE"
)

// PermissionID 返回 permissions-update 使用的 permission-id
func (m AdobeConnectAccessMode) PermissionID() string {
	switch m {
	case AccessPublic:
		return "view-hidden"
	case AccessPrivate:
		return "denied"
	default:
		return "remove"
	}
}

// AccessModeFromPermissionID 是 PermissionID 的逆运算
func AccessModeFromPermissionID(id string) AdobeConnectAccessMode {
	switch id {
	case "view-hidden":
		return AccessPublic
	case "denied":
		return AccessPrivate
	default:
		return AccessProtected
	}
}

type AdobeConnectRoomSetting struct {
	PIN        string                 `json:"pin,omitempty"`
	AccessMode AdobeConnectAccessMode `json:"access_mode,omitempty"`
}

func (*AdobeConnectRoomSetting) roomSetting() {}

type PexipRoomSetting struct {
	PIN      string `json:"pin,omitempty"`
	GuestPIN string `json:"guest_pin,omitempty"`
}

func (*PexipRoomSetting) roomSetting() {}

// Room 虚拟会议室
type Room struct {
	ID           string            `json:"id"`
	Aliases      []Alias           `json:"aliases"`
	Technologies []Technology      `json:"technologies,omitempty"`
	LicenseCount int               `json:"license_count"`
	Description  string            `json:"description,omitempty"`
	Layout       RoomLayout        `json:"layout,omitempty"`
	Settings     []RoomSetting     `json:"-"`
	Participants []RoomParticipant `json:"participants,omitempty"`
}

// GetAlias 返回第一个指定类型的别名
func (r *Room) GetAlias(t AliasType) (Alias, bool) {
	for _, alias := range r.Aliases {
		if alias.Type == t {
			return alias, true
		}
	}
	return Alias{}, false
}

func (r *Room) AddAlias(t AliasType, value string) {
	r.Aliases = append(r.Aliases, NewAlias(t, value))
}

// Name 返回 ROOM_NAME 别名的值
func (r *Room) Name() string {
	alias, _ := r.GetAlias(AliasRoomName)
	return alias.Value
}

func (r *Room) HasTechnology(t Technology) bool {
	for _, technology := range r.Technologies {
		if technology == t {
			return true
		}
	}
	return false
}

func (r *Room) AddTechnology(t Technology) {
	if !r.HasTechnology(t) {
		r.Technologies = append(r.Technologies, t)
	}
}

func (r *Room) AddSetting(s RoomSetting) {
	r.Settings = append(r.Settings, s)
}

// H323Setting 返回 H.323 设置，不存在时返回 nil
func (r *Room) H323Setting() *H323RoomSetting {
	for _, s := range r.Settings {
		if v, ok := s.(*H323RoomSetting); ok {
			return v
		}
	}
	return nil
}

func (r *Room) AdobeConnectSetting() *AdobeConnectRoomSetting {
	for _, s := range r.Settings {
		if v, ok := s.(*AdobeConnectRoomSetting); ok {
			return v
		}
	}
	return nil
}

func (r *Room) PexipSetting() *PexipRoomSetting {
	for _, s := range r.Settings {
		if v, ok := s.(*PexipRoomSetting); ok {
			return v
		}
	}
	return nil
}

// AcceptsParticipants 授权数为 0 的会议室不接受参与者
func (r *Room) AcceptsParticipants() bool {
	return r.LicenseCount > 0
}

// RoomSummary listRooms 返回的会议室摘要
type RoomSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Alias       string    `json:"alias,omitempty"`
	StartTime   time.Time `json:"start_time,omitempty"`
}

// EqualFoldLastSegment 比较 URI 最后一段路径是否相同（忽略大小写）
func EqualFoldLastSegment(uri, path string) bool {
	uri = strings.TrimSuffix(uri, "/")
	path = strings.Trim(path, "/")
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		uri = uri[idx+1:]
	}
	return strings.EqualFold(uri, path)
}
