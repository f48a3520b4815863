// Package codec 通过 SSH 上的 XML 命令行控制 Cisco TelePresence Codec C90
package codec

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "codec-c90"

	defaultPort = 22
	microphones = 8
)

var terminator = regexp.MustCompile(`^(OK|ERROR|</XmlDoc>)$`)

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
}

func New(cfg connector.Config) (*Connector, error) {
	cfg.Address = cfg.Address.WithDefaultPort(defaultPort)
	base, err := internal.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{Base: base}, nil
}

func (c *Connector) Connect(ctx context.Context) error {
	if c.State() != types.Disconnected {
		_ = c.Disconnect(ctx)
	}
	session, err := c.DialShell(ctx, transport.ShellConfig{Terminator: terminator}, initSession)
	if err != nil {
		return fmt.Errorf("failed to connect to the device: %w", err)
	}
	c.session = session

	info, err := c.deviceInfo(ctx)
	if err != nil {
		c.StopLoops()
		session.Close()
		return err
	}
	c.Connected(info)
	return nil
}

// initSession 关闭回显并切换到 XML 输出，切换命令本身没有响应
func initSession(ctx context.Context, shell *transport.Shell) error {
	if _, err := shell.Send(ctx, "echo off"); err != nil {
		return err
	}
	return shell.Post("xpreferences outputmode xml")
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
		lines, err := session.Send(ctx, "xStatus SystemUnit Uptime")
		if err != nil {
			return err
		}
		_, err = parseResult(lines)
		return err
	})
}

func (c *Connector) deviceInfo(ctx context.Context) (types.DeviceInfo, error) {
	doc, err := c.issue(ctx, command.New("xStatus SystemUnit"))
	if err != nil {
		return types.DeviceInfo{}, err
	}
	unit := "/XmlDoc/Status/SystemUnit/"
	version := fmt.Sprintf("%s (released %s)",
		text(doc, unit+"Software/Version"), text(doc, unit+"Software/ReleaseDate"))
	serial := fmt.Sprintf("Module: %s, MainBoard: %s, VideoBoard: %s, AudioBoard: %s",
		text(doc, unit+"Hardware/Module/SerialNumber"),
		text(doc, unit+"Hardware/MainBoard/SerialNumber"),
		text(doc, unit+"Hardware/VideoBoard/SerialNumber"),
		text(doc, unit+"Hardware/AudioBoard/SerialNumber"))
	return types.DeviceInfo{
		Name:            text(doc, unit+"ProductId"),
		SerialNumber:    serial,
		SoftwareVersion: version,
	}, nil
}

// issue 执行命令并解析 XML 结果，设备报告的错误转为 CommandError
func (c *Connector) issue(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	line := render(cmd)
	return internal.Exec(ctx, c.Base, cmd.Name(), func(ctx context.Context) (*xmlquery.Node, error) {
		c.Logger.WithField("command", cmd.String()).Debug("issuing command")
		lines, err := c.session.Send(ctx, line)
		if err != nil {
			return nil, err
		}
		return parseResult(lines)
	})
}

// render 生成 TSH 命令行：名称后跟 "Key: value"，含空白的值加引号
func render(cmd *command.Command) string {
	var sb strings.Builder
	sb.WriteString(cmd.Name())
	for _, p := range cmd.Params() {
		v := fmt.Sprint(p.Value)
		if v == "" || strings.ContainsAny(v, " \t") {
			v = `"` + v + `"`
		}
		fmt.Fprintf(&sb, " %s: %s", p.Key, v)
	}
	return sb.String()
}

func parseResult(lines []string) (*xmlquery.Node, error) {
	start := -1
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "<") {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("command gave unexpected output: %q", strings.Join(lines, "\n"))
	}
	doc, err := xmlquery.Parse(strings.NewReader(strings.Join(lines[start:], "\n")))
	if err != nil {
		return nil, fmt.Errorf("command gave unexpected output: %w", err)
	}
	if msg, failed := errorMessage(doc); failed {
		return nil, &types.CommandError{Message: msg}
	}
	return doc, nil
}

// errorMessage XmlDoc 下任一元素的 status 属性含 Error 即为失败
func errorMessage(doc *xmlquery.Node) (string, bool) {
	var failed *xmlquery.Node
	for _, n := range xmlquery.Find(doc, "/XmlDoc/*[@status]") {
		if strings.Contains(n.SelectAttr("status"), "Error") {
			failed = n
			break
		}
	}
	if failed == nil {
		return "", false
	}
	if failed.SelectAttr("status") == "Error" {
		reason, xpath := text(failed, "Reason"), text(failed, "XPath")
		if reason != "" || xpath != "" {
			if xpath != "" {
				reason += " (XPath: " + xpath + ")"
			}
			return reason, true
		}
		if description := text(failed, "Description"); description != "" {
			if cause := text(failed, "Cause"); cause != "" {
				description += " (Cause: " + cause + ")"
			}
			return description, true
		}
	}
	if failed.SelectAttr("status") == "ParameterError" {
		if usage := text(failed.Parent, "Usage"); usage != "" {
			return "Parameter error. Usage: " + usage, true
		}
	}
	return "Uncategorized error", true
}

func text(n *xmlquery.Node, expr string) string {
	if found := xmlquery.FindOne(n, expr); found != nil {
		return strings.TrimSpace(found.InnerText())
	}
	return ""
}

// GetDeviceLoadInfo 设备只提供运行时间（秒）
func (c *Connector) GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	doc, err := c.issue(ctx, command.New("xStatus SystemUnit Uptime"))
	if err != nil {
		return nil, err
	}
	raw := text(doc, "/XmlDoc/Status/SystemUnit/Uptime")
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("unexpected uptime %q: %w", raw, err)
	}
	return &types.DeviceLoadInfo{Uptime: time.Duration(seconds) * time.Second}, nil
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
