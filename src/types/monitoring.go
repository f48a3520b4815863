package types

import "time"

// DeviceLoadInfo 设备负载，厂商不支持的字段为 nil
type DeviceLoadInfo struct {
	CPULoad            *float64      `json:"cpu_load,omitempty"`
	MemoryOccupied     *int64        `json:"memory_occupied,omitempty"`
	MemoryAvailable    *int64        `json:"memory_available,omitempty"`
	DiskSpaceOccupied  *int64        `json:"disk_space_occupied,omitempty"`
	DiskSpaceAvailable *int64        `json:"disk_space_available,omitempty"`
	Uptime             time.Duration `json:"uptime,omitempty"`
}

type UsageStats struct {
	RoomCount        int    `json:"room_count"`
	ParticipantCount int    `json:"participant_count"`
	CallLog          []byte `json:"call_log,omitempty"`
}

// CallState 终端设备的通话状态
type CallState string

const (
	CallIdle         CallState = "IDLE"
	CallDialing      CallState = "DIALING"
	CallRinging      CallState = "RINGING"
	CallConnecting   CallState = "CONNECTING"
	CallConnected    CallState = "CONNECTED"
	CallDisconnected CallState = "DISCONNECTED"
)

// EndpointCall 终端上的一路通话
type EndpointCall struct {
	ID            string    `json:"id"`
	State         CallState `json:"state"`
	RemoteAddress string    `json:"remote_address,omitempty"`
	RemoteName    string    `json:"remote_name,omitempty"`
	Incoming      bool      `json:"incoming"`
}

// EndpointStatus 终端设备状态
type EndpointStatus struct {
	Calls        []EndpointCall `json:"calls"`
	Muted        bool           `json:"muted"`
	Presentation bool           `json:"presentation"`
	Standby      bool           `json:"standby"`
}
