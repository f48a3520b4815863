package lifesize

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/gain"
	"github.com/shongo-go/connector/src/types"
)

const (
	dialAttempts = 50
	dialDelay    = 100 * time.Millisecond
)

var errCallNotInitiated = errors.New("dialed call did not show up")

// Dial 设备不返回通话号，等待异步消息中出现新的通话
func (c *Connector) Dial(ctx context.Context, alias types.Alias) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	before := c.callIDs()
	if _, err := c.issue(ctx, "control call dial", alias.Value); err != nil {
		return "", err
	}
	for i := 0; i < dialAttempts; i++ {
		_ = c.flush(ctx)
		for id := range c.callIDs() {
			if _, ok := before[id]; !ok {
				return id, nil
			}
		}
		if !internal.Sleep(ctx, dialDelay) {
			return "", ctx.Err()
		}
	}
	return "", errCallNotInitiated
}

func (c *Connector) HangUp(ctx context.Context, callID string) error {
	return c.control(ctx, "control call hangup", callID)
}

func (c *Connector) HangUpAll(ctx context.Context) error {
	return c.control(ctx, "control call hangup", "-a")
}

// StandBy 设备只是把摄像头转到休眠位置
func (c *Connector) StandBy(ctx context.Context) error {
	return c.control(ctx, "control sleep")
}

func (c *Connector) ResetDevice(ctx context.Context) error {
	return c.control(ctx, "control reboot", "1")
}

func (c *Connector) Mute(ctx context.Context) error {
	return c.setMute(ctx, "on")
}

func (c *Connector) Unmute(ctx context.Context) error {
	return c.setMute(ctx, "off")
}

// setMute mute 只作用于 mute-device 指定的麦克风，临时改为 all
func (c *Connector) setMute(ctx context.Context, value string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	original, err := c.adjust(ctx, "audio mute-device", "all")
	if err != nil {
		return err
	}
	if _, err := c.issue(ctx, "set audio mute", value); err != nil {
		return err
	}
	if original != "all" {
		_, err = c.issue(ctx, "set audio mute-device", original)
	}
	return err
}

// adjust 设置并返回原值
func (c *Connector) adjust(ctx context.Context, setting, value string) (string, error) {
	lines, err := c.issue(ctx, "get "+setting)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("setting %s has no value", setting)
	}
	original := strings.TrimSpace(lines[0])
	if original != value {
		if _, err := c.issue(ctx, "set "+setting, value); err != nil {
			return "", err
		}
	}
	return original, nil
}

// SetMicrophoneLevel 设备增益范围 0..20
func (c *Connector) SetMicrophoneLevel(ctx context.Context, level int) error {
	return c.control(ctx, "set audio gain", strconv.Itoa(gain.ClampLevel(level)/5))
}

func (c *Connector) SetPlaybackLevel(ctx context.Context, level int) error {
	return c.control(ctx, "set volume speaker", strconv.Itoa(gain.ClampLevel(level)))
}

func (c *Connector) EnableVideo(ctx context.Context) error {
	return types.Unsupported("EnableVideo")
}

func (c *Connector) DisableVideo(ctx context.Context) error {
	return types.Unsupported("DisableVideo")
}

func (c *Connector) StartPresentation(ctx context.Context) error {
	// 确保 H.239 打开
	if err := c.control(ctx, "set system presentation", "on"); err != nil {
		return err
	}
	return c.control(ctx, "control call presentation", "1", "start")
}

func (c *Connector) StopPresentation(ctx context.Context) error {
	return c.control(ctx, "control call presentation", "1", "stop")
}

// ShowMessage 文本中不能有双引号，换行写作 \n
func (c *Connector) ShowMessage(ctx context.Context, duration time.Duration, text string) error {
	text = strings.ReplaceAll(text, `"`, `'`)
	text = strings.ReplaceAll(text, "\n", `\n`)
	seconds := int(duration.Round(time.Second) / time.Second)
	return c.control(ctx, "set system message", "-t", strconv.Itoa(seconds), `"`+text+`"`)
}

func (c *Connector) GetEndpointStatus(ctx context.Context) (*types.EndpointStatus, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	_ = c.flush(ctx)
	return c.snapshot(), nil
}

func (c *Connector) control(ctx context.Context, name string, args ...string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	_, err := c.issue(ctx, name, args...)
	return err
}
