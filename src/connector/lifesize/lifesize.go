// Package lifesize 通过 SSH 命令行控制 LifeSize 终端
package lifesize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "lifesize"

	defaultPort = 22
	prompt      = "$ "
	delimiter   = ","

	flushPeriod = 2 * time.Second
)

var (
	terminator   = regexp.MustCompile(`^(?:ok|error),([0-9a-fA-F]{2})$`)
	asyncMessage = regexp.MustCompile(`^(CS|IC|PS|FC|MS|VC|SS),`)
)

// errorDescriptions 设备错误码，可在 help-mode on 时用 help errors 查看
var errorDescriptions = map[uint64]string{
	0x01: "No Memory",
	0x02: "File Error",
	0x03: "Invalid Instance",
	0x04: "Invalid Parameter",
	0x05: "Argument is not Repeatable",
	0x06: "Invalid Selection Parameter Value",
	0x07: "Missing Argument",
	0x08: "Extra Arguments on Command Line",
	0x09: "Invalid Command",
	0x0a: "Ambiguous Command",
	0x0b: "Conflicting Parameter",
	0x0c: "Operational Error",
	0x0d: "No Data Available",
	0x0e: "Not In Call",
	0x0f: "Interrupted",
	0x10: "Ambiguous Selection",
	0x11: "No Matching Entries",
	0x12: "Not Supported",
}

func init() {
	connector.Register(Agent, new(builder))
}

type builder struct{}

func (b *builder) Build(cfg connector.Config) (connector.Connector, error) {
	return New(cfg)
}

type Connector struct {
	*internal.Base
	session *internal.ShellSession

	// 终端状态，由异步消息维护
	stateMu   sync.Mutex
	calls     map[string]*types.EndpointCall
	muted     bool
	sending   bool
	receiving bool
	standby   bool
}

func New(cfg connector.Config) (*Connector, error) {
	cfg.Address = cfg.Address.WithDefaultPort(defaultPort)
	base, err := internal.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{Base: base, calls: make(map[string]*types.EndpointCall)}, nil
}

func (c *Connector) Connect(ctx context.Context) error {
	if c.State() != types.Disconnected {
		_ = c.Disconnect(ctx)
	}
	session, err := c.DialShell(ctx, transport.ShellConfig{
		Terminator: terminator,
		IsAsync:    asyncMessage.MatchString,
	}, initSession)
	if err != nil {
		return fmt.Errorf("failed to connect to the device: %w", err)
	}
	c.session = session

	info, err := c.deviceInfo(ctx)
	if err == nil {
		err = c.loadState(ctx)
	}
	if err != nil {
		c.StopLoops()
		session.Close()
		return err
	}
	c.Connected(info)
	c.Loop("async-flush", flushPeriod, c.flush)
	return nil
}

// initSession 关闭帮助模式，否则输出中夹带说明文字
func initSession(ctx context.Context, shell *transport.Shell) error {
	lines, err := shell.Send(ctx, "set help-mode off")
	if err != nil {
		return err
	}
	_, err = parseOutput("set help-mode off", lines)
	return err
}

func (c *Connector) Disconnect(ctx context.Context) error {
	c.Disconnected()
	if c.session != nil {
		c.session.Close()
	}
	return nil
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	if c.State() == types.Reconnecting {
		return types.Reconnecting
	}
	session := c.session
	return c.CheckState(ctx, func(ctx context.Context) error {
		lines, err := session.Send(ctx, "get system uptime")
		if err != nil {
			return err
		}
		_, err = parseOutput("get system uptime", lines)
		return err
	})
}

func (c *Connector) deviceInfo(ctx context.Context) (types.DeviceInfo, error) {
	var info types.DeviceInfo
	serial, err := c.fields(ctx, "get system serial-number")
	if err != nil {
		return info, err
	}
	model, err := c.fields(ctx, "get system model")
	if err != nil {
		return info, err
	}
	version, err := c.fields(ctx, "get system version")
	if err != nil {
		return info, err
	}
	if len(serial) < 2 || len(model) < 2 || len(version) < 2 {
		return info, errors.New("error getting device info")
	}
	info.Name = model[1]
	info.SerialNumber = fmt.Sprintf("CPU board: %s, System board: %s", serial[0], serial[1])
	info.SoftwareVersion = version[1]
	return info, nil
}

// loadState 读取当前通话、静音与演示状态，待机状态只能从异步消息得知
func (c *Connector) loadState(ctx context.Context) error {
	lines, err := c.issue(ctx, "status call active")
	if err != nil {
		return err
	}
	calls := make(map[string]*types.EndpointCall)
	for _, line := range lines {
		if call := c.parseCall(line); call != nil {
			calls[call.ID] = call
		}
	}
	mute, err := c.fields(ctx, "get audio mute")
	if err != nil {
		return err
	}
	presentation, err := c.fields(ctx, "status presentation statistics")
	if err != nil {
		return err
	}

	c.stateMu.Lock()
	c.calls = calls
	c.muted = len(mute) > 0 && mute[0] == "on"
	c.sending, c.receiving = false, false
	if len(presentation) >= 3 && presentation[1] != "false" && presentation[2] != "none" {
		c.receiving = presentation[2] == "rx"
		c.sending = presentation[2] == "tx"
	}
	c.stateMu.Unlock()
	return c.flush(ctx)
}

// issue 在命令锁内执行一条命令，返回回显之后、空行之前的输出
func (c *Connector) issue(ctx context.Context, name string, args ...string) ([]string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	return internal.Exec(ctx, c.Base, name, func(ctx context.Context) ([]string, error) {
		c.Logger.WithField("command", line).Debug("issuing command")
		lines, err := c.session.Send(ctx, line)
		if err != nil {
			return nil, err
		}
		return parseOutput(line, lines)
	})
}

// fields 返回输出第一行按逗号拆分的字段
func (c *Connector) fields(ctx context.Context, name string, args ...string) ([]string, error) {
	lines, err := c.issue(ctx, name, args...)
	if err != nil || len(lines) == 0 {
		return nil, err
	}
	return strings.Split(lines[0], delimiter), nil
}

func parseOutput(line string, lines []string) ([]string, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("unexpected end of output of %q", line)
	}
	m := terminator.FindStringSubmatch(lines[len(lines)-1])
	if m == nil {
		return nil, fmt.Errorf("unexpected end of output of %q", line)
	}
	code, err := strconv.ParseUint(m[1], 16, 8)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		description, ok := errorDescriptions[code]
		if !ok {
			description = "Unknown Error"
		}
		return nil, &types.CommandError{Code: fmt.Sprintf("0x%02x", code), Message: description}
	}
	body := lines[:len(lines)-1]
	// 设备总是回显命令，回显之前可能还有上一条命令留下的提示符
	start := 0
	for i, l := range body {
		if l == prompt+line {
			start = i + 1
			break
		}
	}
	var out []string
	for _, l := range body[start:] {
		if strings.TrimSpace(l) == "" {
			break
		}
		if strings.HasPrefix(l, prompt) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// GetDeviceLoadInfo 设备只提供运行时间
func (c *Connector) GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	up, err := c.fields(ctx, "get system uptime")
	if err != nil {
		return nil, err
	}
	if len(up) < 4 {
		return nil, fmt.Errorf("unexpected uptime %v", up)
	}
	var parts [4]int
	for i := range parts {
		if parts[i], err = strconv.Atoi(strings.TrimSpace(up[i])); err != nil {
			return nil, fmt.Errorf("unexpected uptime %v: %w", up, err)
		}
	}
	uptime := time.Duration(parts[0])*24*time.Hour +
		time.Duration(parts[1])*time.Hour +
		time.Duration(parts[2])*time.Minute +
		time.Duration(parts[3])*time.Second
	return &types.DeviceLoadInfo{Uptime: uptime}, nil
}

func (c *Connector) GetUsageStats(ctx context.Context) (*types.UsageStats, error) {
	return nil, types.Unsupported("GetUsageStats")
}

func (c *Connector) UnsupportedMethods() []string {
	return []string{"GetUsageStats", "EnableVideo", "DisableVideo"}
}

var (
	_ connector.Connector         = (*Connector)(nil)
	_ connector.EndpointService   = (*Connector)(nil)
	_ connector.MonitoringService = (*Connector)(nil)
)
