// Package recordingid 负责组合录制 ID 的编码与解码。
// 各段之间以 "_" 分隔，段内的 "_" 写作 "__"。
package recordingid

import (
	"errors"
	"fmt"
	"strings"
)

const separator = '_'

var ErrMalformed = errors.New("malformed composite id")

// Join 把多个段编码为一个字符串。段不能为空（最后一段除外），也不能以 "_" 开头或结尾。
func Join(parts ...string) (string, error) {
	var sb strings.Builder
	for i, part := range parts {
		last := i == len(parts)-1
		if part == "" && !last {
			return "", fmt.Errorf("segment %d is empty: %w", i, ErrMalformed)
		}
		if strings.HasPrefix(part, "_") || strings.HasSuffix(part, "_") {
			return "", fmt.Errorf("segment %q starts or ends with separator: %w", part, ErrMalformed)
		}
		if i > 0 {
			sb.WriteByte(separator)
		}
		sb.WriteString(strings.ReplaceAll(part, "_", "__"))
	}
	return sb.String(), nil
}

// Split 是 Join 的逆运算，要求恰好 n 段
func Split(value string, n int) ([]string, error) {
	parts := make([]string, 0, n)
	var current strings.Builder
	for i := 0; i < len(value); {
		if value[i] != separator {
			current.WriteByte(value[i])
			i++
			continue
		}
		run := 0
		for i < len(value) && value[i] == separator {
			run++
			i++
		}
		switch {
		case run%2 == 0:
			current.WriteString(strings.Repeat("_", run/2))
		case run == 1:
			parts = append(parts, current.String())
			current.Reset()
		default:
			return nil, fmt.Errorf("%q: ambiguous separator run: %w", value, ErrMalformed)
		}
	}
	parts = append(parts, current.String())
	if len(parts) != n {
		return nil, fmt.Errorf("%q: expected %d segments, got %d: %w", value, n, len(parts), ErrMalformed)
	}
	for i, part := range parts[:n-1] {
		if part == "" {
			return nil, fmt.Errorf("%q: segment %d is empty: %w", value, i, ErrMalformed)
		}
	}
	return parts, nil
}

// FormatRecordingID 组合 folder、file 与设备录制 ID，tcsID 可以为空
func FormatRecordingID(folderID, fileID, tcsID string) (string, error) {
	return Join(folderID, fileID, tcsID)
}

// FolderID 从组合录制 ID 中取出存储文件夹 ID
func FolderID(recordingID string) (string, error) {
	return segment(recordingID, 0)
}

// FileID 从组合录制 ID 中取出文件 ID
func FileID(recordingID string) (string, error) {
	return segment(recordingID, 1)
}

// TCSID 从组合录制 ID 中取出设备上的录制 ID，可能为空
func TCSID(recordingID string) (string, error) {
	return segment(recordingID, 2)
}

func segment(recordingID string, index int) (string, error) {
	parts, err := Split(recordingID, 3)
	if err != nil {
		return "", err
	}
	return parts[index], nil
}

// Name 设备端录制名称：prefix + folder_alias_file
type Name struct {
	FolderID string
	Alias    string
	FileID   string
}

// FormatName 生成设备端录制名称
func FormatName(prefix string, n Name) (string, error) {
	body, err := Join(n.FolderID, n.Alias, n.FileID)
	if err != nil {
		return "", err
	}
	return prefix + body, nil
}

// ParseName 解析设备端录制名称，前缀不匹配时返回 false
func ParseName(prefix, value string) (Name, bool) {
	if !strings.HasPrefix(value, prefix) {
		return Name{}, false
	}
	parts, err := Split(strings.TrimPrefix(value, prefix), 3)
	if err != nil || parts[2] == "" {
		return Name{}, false
	}
	return Name{FolderID: parts[0], Alias: parts[1], FileID: parts[2]}, true
}
