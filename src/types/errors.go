package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported 连接器不支持该操作，控制器应降级处理
	ErrUnsupported = errors.New("operation not supported by the connector")
	// ErrNotFound 设备上不存在请求的对象
	ErrNotFound = errors.New("not found")
	// ErrNotEnoughSpace 存储剩余空间不足
	ErrNotEnoughSpace = errors.New("not enough space")
	// ErrRecordingUnavailable 设备当前无法录制
	ErrRecordingUnavailable = errors.New("recording unavailable")
	// ErrCacheInconsistent 设备声称未变化的条目不在缓存中
	ErrCacheInconsistent = errors.New("item reported as unchanged is missing in the cache")
	// ErrNotConnected 连接器尚未连接
	ErrNotConnected = errors.New("connector is not connected")
)

// Unsupported 返回包装了 ErrUnsupported 的错误
func Unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, ErrUnsupported)
}

// NotFound 返回包装了 ErrNotFound 的错误
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// CommandError 设备执行命令失败，携带厂商错误码
type CommandError struct {
	Command string
	Device  string
	Code    string
	SubCode string
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	sb.WriteString("command ")
	sb.WriteString(e.Command)
	if e.Device != "" {
		sb.WriteString(" on ")
		sb.WriteString(e.Device)
	}
	sb.WriteString(" failed")
	if e.Code != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Code)
		if e.SubCode != "" {
			sb.WriteString("/")
			sb.WriteString(e.SubCode)
		}
		sb.WriteString("]")
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// HasCode 判断错误码，subCode 为空时只比较 code
func (e *CommandError) HasCode(code, subCode string) bool {
	if e.Code != code {
		return false
	}
	return subCode == "" || e.SubCode == subCode
}

// FaultError XML-RPC/SOAP 返回的 fault
type FaultError struct {
	Code    string
	Message string
}

func (e *FaultError) Error() string {
	if e.Code == "" {
		return "fault: " + e.Message
	}
	return fmt.Sprintf("fault %s: %s", e.Code, e.Message)
}

// IsCommandError 判断 err 是否为带有指定错误码的 CommandError
func IsCommandError(err error, code, subCode string) bool {
	var ce *CommandError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.HasCode(code, subCode)
}

// FaultMessage 返回 err 链中 FaultError 的消息
func FaultMessage(err error) (string, bool) {
	var fe *FaultError
	if !errors.As(err, &fe) {
		return "", false
	}
	return fe.Message, true
}
