// Package command 提供与厂商无关的请求构造器（有序的键值参数列表）
package command

import (
	"fmt"
	"net/url"
	"strings"
)

// Param 单个参数，Value 为 nil 表示空值
type Param struct {
	Key   string
	Value any
}

// Command 设备命令：名称 + 有序参数
type Command struct {
	name   string
	params []Param
}

func New(name string) *Command {
	return &Command{name: name}
}

func (c *Command) Name() string {
	return c.name
}

// Set 设置参数，已存在的键保持原位置
func (c *Command) Set(key string, value any) *Command {
	for i := range c.params {
		if c.params[i].Key == key {
			c.params[i].Value = value
			return c
		}
	}
	c.params = append(c.params, Param{Key: key, Value: value})
	return c
}

// Add 追加参数，允许重复的键（URL 查询中的多值参数）
func (c *Command) Add(key string, value any) *Command {
	c.params = append(c.params, Param{Key: key, Value: value})
	return c
}

func (c *Command) Get(key string) (any, bool) {
	for _, p := range c.params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// GetString 返回字符串形式的参数值，不存在时返回空字符串
func (c *Command) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (c *Command) Remove(key string) *Command {
	params := c.params[:0]
	for _, p := range c.params {
		if p.Key != key {
			params = append(params, p)
		}
	}
	c.params = params
	return c
}

// Params 返回参数的副本
func (c *Command) Params() []Param {
	out := make([]Param, len(c.params))
	copy(out, c.params)
	return out
}

// Map 返回参数的 map 形式，重复的键取最后一个值
func (c *Command) Map() map[string]any {
	m := make(map[string]any, len(c.params))
	for _, p := range c.params {
		m[p.Key] = p.Value
	}
	return m
}

// Clone 返回可独立修改的副本
func (c *Command) Clone() *Command {
	return &Command{name: c.name, params: c.Params()}
}

// Query 编码为 URL 查询字符串，保持参数顺序
func (c *Command) Query() string {
	var sb strings.Builder
	for i, p := range c.params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		if p.Value != nil {
			sb.WriteString(url.QueryEscape(fmt.Sprint(p.Value)))
		}
	}
	return sb.String()
}

func (c *Command) String() string {
	var sb strings.Builder
	sb.WriteString(c.name)
	sb.WriteByte('(')
	for i, p := range c.params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		if isSecret(p.Key) {
			sb.WriteString("***")
		} else {
			fmt.Fprint(&sb, p.Value)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "password") || strings.Contains(key, "passcode")
}
