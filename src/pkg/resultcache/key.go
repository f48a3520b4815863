package resultcache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shongo-go/connector/src/pkg/command"
)

// Key 结构化的缓存键：命令名 + 排序后的参数（忽略的参数不参与）
type Key struct {
	Command string
	Params  string
}

// NewKey 根据命令构造缓存键，ignored 中的参数（分页游标、凭据等）不参与
func NewKey(cmd *command.Command, ignored ...string) Key {
	skip := make(map[string]struct{}, len(ignored))
	for _, k := range ignored {
		skip[k] = struct{}{}
	}
	params := cmd.Map()
	keys := make([]string, 0, len(params))
	for k := range params {
		if _, ok := skip[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(formatValue(params[k]))
	}
	return Key{Command: cmd.Name(), Params: sb.String()}
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Command
	}
	return k.Command + ";" + k.Params
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []string:
		return "[" + strings.Join(t, ",") + "]"
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = formatValue(p)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(v)
	}
}
