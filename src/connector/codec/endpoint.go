package codec

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/gain"
	"github.com/shongo-go/connector/src/types"
)

const (
	hangUpAttempts = 50
	hangUpDelay    = 100 * time.Millisecond

	// 麦克风增益范围 0..24 dB
	maxMicrophoneLevel = 24
)

var callStates = map[string]types.CallState{
	"Idle":            types.CallIdle,
	"Dialling":        types.CallDialing,
	"Ringing":         types.CallRinging,
	"Connecting":      types.CallConnecting,
	"Connected":       types.CallConnected,
	"Disconnecting":   types.CallDisconnected,
	"OnHold":          types.CallConnected,
	"EarlyMedia":      types.CallConnecting,
	"Preserved":       types.CallConnected,
	"RemotePreserved": types.CallConnected,
}

func (c *Connector) Dial(ctx context.Context, alias types.Alias) (string, error) {
	doc, err := c.exec(ctx, command.New("xCommand Dial").Set("Number", alias.Value))
	if err != nil {
		return "", err
	}
	id := text(doc, "/XmlDoc/DialResult/CallId")
	if id == "" {
		return "", errors.New("dial result has no call id")
	}
	return id, nil
}

func (c *Connector) HangUp(ctx context.Context, callID string) error {
	_, err := c.exec(ctx, command.New("xCommand Call Disconnect").Set("CallId", callID))
	return err
}

func (c *Connector) HangUpAll(ctx context.Context) error {
	_, err := c.exec(ctx, command.New("xCommand Call DisconnectAll"))
	return err
}

// StandBy 有通话时待机命令成功但不生效，先挂断并等待通话消失
func (c *Connector) StandBy(ctx context.Context) error {
	if err := c.HangUpAll(ctx); err != nil {
		return err
	}
	for i := 0; i < hangUpAttempts; i++ {
		if !internal.Sleep(ctx, hangUpDelay) {
			return ctx.Err()
		}
		calls, err := c.exec(ctx, command.New("xStatus Call"))
		if err != nil {
			return err
		}
		if xmlquery.FindOne(calls, "/XmlDoc/Status/*") == nil {
			break
		}
	}
	_, err := c.exec(ctx, command.New("xCommand Standby Activate"))
	return err
}

func (c *Connector) ResetDevice(ctx context.Context) error {
	_, err := c.exec(ctx, command.New("xCommand Boot").Set("Action", "Restart"))
	return err
}

func (c *Connector) Mute(ctx context.Context) error {
	_, err := c.exec(ctx, command.New("xCommand Audio Microphones Mute"))
	return err
}

func (c *Connector) Unmute(ctx context.Context) error {
	_, err := c.exec(ctx, command.New("xCommand Audio Microphones Unmute"))
	return err
}

// SetMicrophoneLevel 设置全部麦克风输入
func (c *Connector) SetMicrophoneLevel(ctx context.Context, level int) error {
	value := gain.ScaleLevel(level, 0, maxMicrophoneLevel)
	for i := 1; i <= microphones; i++ {
		name := "xConfiguration Audio Input Microphone " + strconv.Itoa(i)
		if _, err := c.exec(ctx, command.New(name).Set("Level", value)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) SetPlaybackLevel(ctx context.Context, level int) error {
	_, err := c.exec(ctx, command.New("xConfiguration Audio").Set("Volume", gain.ClampLevel(level)))
	return err
}

func (c *Connector) EnableVideo(ctx context.Context) error {
	return types.Unsupported("EnableVideo")
}

func (c *Connector) DisableVideo(ctx context.Context) error {
	return types.Unsupported("DisableVideo")
}

func (c *Connector) StartPresentation(ctx context.Context) error {
	_, err := c.exec(ctx, command.New("xCommand Presentation Start"))
	return err
}

func (c *Connector) StopPresentation(ctx context.Context) error {
	_, err := c.exec(ctx, command.New("xCommand Presentation Stop"))
	return err
}

// ShowMessage 不支持双引号、制表符和多行文本
func (c *Connector) ShowMessage(ctx context.Context, duration time.Duration, msg string) error {
	msg = strings.ReplaceAll(msg, `"`, `'`)
	msg = strings.ReplaceAll(msg, "\t", "    ")
	msg = strings.ReplaceAll(msg, "\n", "        ")
	seconds := int(duration.Round(time.Second) / time.Second)
	_, err := c.exec(ctx, command.New("xCommand Message Alert Display").
		Set("Duration", seconds).
		Set("Text", msg))
	return err
}

// GetEndpointStatus 从 xStatus 读取通话、静音、演示与待机状态
func (c *Connector) GetEndpointStatus(ctx context.Context) (*types.EndpointStatus, error) {
	calls, err := c.exec(ctx, command.New("xStatus Call"))
	if err != nil {
		return nil, err
	}
	status := &types.EndpointStatus{Calls: []types.EndpointCall{}}
	for _, n := range xmlquery.Find(calls, "/XmlDoc/Status/Call") {
		state, ok := callStates[text(n, "Status")]
		if !ok {
			state = types.CallConnecting
		}
		status.Calls = append(status.Calls, types.EndpointCall{
			ID:            n.SelectAttr("item"),
			State:         state,
			RemoteAddress: text(n, "RemoteNumber"),
			RemoteName:    text(n, "DisplayName"),
			Incoming:      text(n, "Direction") == "Incoming",
		})
	}

	mute, err := c.exec(ctx, command.New("xStatus Audio Microphones Mute"))
	if err != nil {
		return nil, err
	}
	status.Muted = text(mute, "/XmlDoc/Status/Audio/Microphones/Mute") == "On"

	presentation, err := c.exec(ctx, command.New("xStatus Conference Presentation Mode"))
	if err != nil {
		return nil, err
	}
	mode := text(presentation, "/XmlDoc/Status/Conference/Presentation/Mode")
	status.Presentation = mode != "" && mode != "Off"

	standby, err := c.exec(ctx, command.New("xStatus Standby Active"))
	if err != nil {
		return nil, err
	}
	status.Standby = text(standby, "/XmlDoc/Status/Standby/Active") == "On"
	return status, nil
}

func (c *Connector) exec(ctx context.Context, cmd *command.Command) (*xmlquery.Node, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	return c.issue(ctx, cmd)
}
