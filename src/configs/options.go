package configs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Options 连接器的自由格式选项
type Options map[string]any

// ErrMissingOption 必填选项缺失
type ErrMissingOption struct {
	Key string
}

func (e *ErrMissingOption) Error() string {
	return fmt.Sprintf("option %q is required", e.Key)
}

func (o Options) lookup(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (o Options) Has(key string) bool {
	_, ok := o.lookup(key)
	return ok
}

func (o Options) String(key, def string) string {
	v, ok := o.lookup(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (o Options) StringRequired(key string) (string, error) {
	s := o.String(key, "")
	if s == "" {
		return "", &ErrMissingOption{Key: key}
	}
	return s, nil
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def, fmt.Errorf("option %q: %w", key, err)
		}
		return n, nil
	}
	return def, fmt.Errorf("option %q: unexpected type %T", key, v)
}

func (o Options) Bool(key string, def bool) bool {
	v, ok := o.lookup(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return def
		}
		return b
	}
	return def
}

// Duration 同时接受 Go 格式（5m）与 ISO-8601 格式（PT5M）
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second, nil
	case string:
		d, err := ParseDuration(t)
		if err != nil {
			return def, fmt.Errorf("option %q: %w", key, err)
		}
		return d, nil
	}
	return def, fmt.Errorf("option %q: unexpected type %T", key, v)
}

// Pattern 编译正则选项，未配置时返回 nil
func (o Options) Pattern(key string) (*regexp.Regexp, error) {
	s := o.String(key, "")
	if s == "" {
		return nil, nil
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("option %q: %w", key, err)
	}
	return re, nil
}

// Bytes 解析 10GiB、500MB 之类的大小
func (o Options) Bytes(key string, def int64) (int64, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case string:
		n, err := ParseBytes(t)
		if err != nil {
			return def, fmt.Errorf("option %q: %w", key, err)
		}
		return n, nil
	}
	return def, fmt.Errorf("option %q: unexpected type %T", key, v)
}

// Sub 返回嵌套选项，不存在时返回空
func (o Options) Sub(key string) Options {
	v, ok := o.lookup(key)
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return Options(m)
	}
	if m, ok := v.(Options); ok {
		return m
	}
	return nil
}

// List 返回由映射组成的列表选项
func (o Options) List(key string) []Options {
	v, ok := o.lookup(key)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	result := make([]Options, 0, len(items))
	for _, item := range items {
		switch m := item.(type) {
		case Options:
			result = append(result, m)
		case map[string]any:
			result = append(result, Options(m))
		}
	}
	return result
}

func (o Options) Strings(key string) []string {
	v, ok := o.lookup(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		result := make([]string, 0, len(t))
		for _, item := range t {
			result = append(result, fmt.Sprint(item))
		}
		return result
	}
	return nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration 解析 Go 或 ISO-8601 时长
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	m := isoDuration.FindStringSubmatch(strings.ToUpper(s))
	if m == nil || s == "P" || strings.HasSuffix(strings.ToUpper(s), "T") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var d time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		d += time.Duration(n) * unit
	}
	if m[4] != "" {
		f, _ := strconv.ParseFloat(m[4], 64)
		d += time.Duration(f * float64(time.Second))
	}
	return d, nil
}

// ParseBytes 解析带单位的大小，空字符串为 0
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
