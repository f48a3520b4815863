package types

import "time"

// ParticipantRole 参与者角色
type ParticipantRole string

const (
	RoleParticipant   ParticipantRole = "PARTICIPANT"
	RolePresenter     ParticipantRole = "PRESENTER"
	RoleAdministrator ParticipantRole = "ADMINISTRATOR"
)

// DefaultMicrophoneLevel 逻辑音量刻度 0..100 的中点，对应 0 dB
const DefaultMicrophoneLevel = 50

// RoomParticipant 会议室中的参与者，指针字段为 nil 表示未知或不修改
type RoomParticipant struct {
	ID                string          `json:"id"`
	RoomID            string          `json:"room_id"`
	UserID            string          `json:"user_id,omitempty"`
	Alias             *Alias          `json:"alias,omitempty"`
	DisplayName       string          `json:"display_name,omitempty"`
	Role              ParticipantRole `json:"role,omitempty"`
	MicrophoneEnabled *bool           `json:"microphone_enabled,omitempty"`
	MicrophoneLevel   *int            `json:"microphone_level,omitempty"`
	VideoEnabled      *bool           `json:"video_enabled,omitempty"`
	VideoSnapshot     bool            `json:"video_snapshot,omitempty"`
	Layout            RoomLayout      `json:"layout,omitempty"`
	JoinTime          time.Time       `json:"join_time,omitempty"`
}

// SameSettings 比较可修改的属性是否一致，用于批量修改时跳过无变化的参与者
func (p *RoomParticipant) SameSettings(o *RoomParticipant) bool {
	return p.DisplayName == o.DisplayName &&
		equalBool(p.MicrophoneEnabled, o.MicrophoneEnabled) &&
		equalBool(p.VideoEnabled, o.VideoEnabled) &&
		equalInt(p.MicrophoneLevel, o.MicrophoneLevel) &&
		p.Layout == o.Layout
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func Bool(v bool) *bool {
	return &v
}

func Int(v int) *int {
	return &v
}
