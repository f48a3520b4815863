package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ConnectionState 连接器与设备之间的连接状态
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	LooselyConnected
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case LooselyConnected:
		return "LOOSELY_CONNECTED"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsConnected 对无状态协议而言 LooselyConnected 也视为可用
func (s ConnectionState) IsConnected() bool {
	return s == Connected || s == LooselyConnected
}

// DeviceAddress 设备地址，连接成功后不可变
type DeviceAddress struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	SSL  bool   `yaml:"ssl" json:"ssl"`
}

// WithDefaultPort 在未指定端口时填入厂商默认端口
func (a DeviceAddress) WithDefaultPort(port int) DeviceAddress {
	if a.Port <= 0 {
		a.Port = port
	}
	return a
}

func (a DeviceAddress) Scheme() string {
	if a.SSL {
		return "https"
	}
	return "http"
}

// URL 返回形如 https://host:port/path 的地址
func (a DeviceAddress) URL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return a.Scheme() + "://" + a.HostPort() + path
}

func (a DeviceAddress) HostPort() string {
	if a.Port <= 0 {
		return a.Host
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a DeviceAddress) String() string {
	return a.HostPort()
}

// ParseDeviceAddress 解析 host[:port]，可选 https:// 或 http:// 前缀
func ParseDeviceAddress(value string) (DeviceAddress, error) {
	addr := DeviceAddress{}
	switch {
	case strings.HasPrefix(value, "https://"):
		addr.SSL = true
		value = strings.TrimPrefix(value, "https://")
	case strings.HasPrefix(value, "http://"):
		value = strings.TrimPrefix(value, "http://")
	}
	value = strings.TrimSuffix(value, "/")
	if value == "" {
		return addr, fmt.Errorf("empty device address")
	}
	host, port, err := net.SplitHostPort(value)
	if err != nil {
		addr.Host = value
		return addr, nil
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return addr, fmt.Errorf("invalid port %q: %w", port, err)
	}
	addr.Host = host
	addr.Port = p
	return addr, nil
}

// DeviceInfo 连接时从设备读取的信息
type DeviceInfo struct {
	Name            string `json:"name"`
	SerialNumber    string `json:"serial_number"`
	SoftwareVersion string `json:"software_version"`
}

// Technology 通讯技术
type Technology string

const (
	TechnologyH323         Technology = "H323"
	TechnologySIP          Technology = "SIP"
	TechnologyAdobeConnect Technology = "ADOBE_CONNECT"
	TechnologyFreePBX      Technology = "FREEPBX"
)

// AliasType 别名类型
type AliasType string

const (
	AliasRoomName          AliasType = "ROOM_NAME"
	AliasH323E164          AliasType = "H323_E164"
	AliasH323URI           AliasType = "H323_URI"
	AliasH323IP            AliasType = "H323_IP"
	AliasSIPURI            AliasType = "SIP_URI"
	AliasSIPIP             AliasType = "SIP_IP"
	AliasAdobeConnectURI   AliasType = "ADOBE_CONNECT_URI"
	AliasCSDialString      AliasType = "CS_DIAL_STRING"
	AliasFreePBXConference AliasType = "FREEPBX_CONFERENCE_NUMBER"
)

// Technology 返回别名对应的技术
func (t AliasType) Technology() Technology {
	switch t {
	case AliasH323E164, AliasH323URI, AliasH323IP, AliasCSDialString:
		return TechnologyH323
	case AliasSIPURI, AliasSIPIP:
		return TechnologySIP
	case AliasAdobeConnectURI:
		return TechnologyAdobeConnect
	case AliasFreePBXConference:
		return TechnologyFreePBX
	default:
		return ""
	}
}

// Alias 可拨号的带类型字符串
type Alias struct {
	Type  AliasType `json:"type"`
	Value string    `json:"value"`
}

func NewAlias(t AliasType, value string) Alias {
	return Alias{Type: t, Value: value}
}

func (a Alias) String() string {
	return string(a.Type) + ":" + a.Value
}

// UserInformation 控制器提供的用户信息
type UserInformation struct {
	UserID         string   `json:"user_id"`
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	PrincipalNames []string `json:"principal_names"`
}

// MediaData 二进制媒体数据（如参与者截图）
type MediaData struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}
