package types

import "time"

// RecordingState 录制状态
type RecordingState string

const (
	RecordingNotStarted   RecordingState = "NOT_STARTED"
	RecordingStarted      RecordingState = "STARTED"
	RecordingNotProcessed RecordingState = "NOT_PROCESSED"
	RecordingProcessed    RecordingState = "PROCESSED"
	RecordingAvailable    RecordingState = "AVAILABLE"
)

type Recording struct {
	ID                string         `json:"id"`
	RecordingFolderID string         `json:"recording_folder_id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	FileName          string         `json:"file_name,omitempty"`
	State             RecordingState `json:"state"`
	BeginDate         time.Time      `json:"begin_date"`
	Duration          time.Duration  `json:"duration"`
	Size              int64          `json:"size,omitempty"`
	DownloadURL       string         `json:"download_url,omitempty"`
	ViewURL           string         `json:"view_url,omitempty"`
	EditURL           string         `json:"edit_url,omitempty"`
}

// RecordingFolderPermission 用户对录制文件夹的权限
type RecordingFolderPermission string

const (
	FolderPermissionRead  RecordingFolderPermission = "READ"
	FolderPermissionWrite RecordingFolderPermission = "WRITE"
)

type RecordingFolder struct {
	ID              string                               `json:"id"`
	Name            string                               `json:"name"`
	UserPermissions map[string]RecordingFolderPermission `json:"user_permissions,omitempty"`
}

// RecordingSettings 开始录制时的参数
type RecordingSettings struct {
	PIN     string `json:"pin,omitempty"`
	Bitrate string `json:"bitrate,omitempty"`
}
