package ciscomcu

import (
	"context"
	"time"

	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

// GetDeviceLoadInfo 内存与磁盘占用无法通过 API 获取
func (c *Connector) GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error) {
	health, err := c.exec(ctx, command.New("device.health.query"))
	if err != nil {
		return nil, err
	}
	status, err := c.exec(ctx, command.New("device.query"))
	if err != nil {
		return nil, err
	}
	info := &types.DeviceLoadInfo{}
	if load, ok := toInt(health["cpuLoad"]); ok {
		cpu := float64(load)
		info.CPULoad = &cpu
	}
	if uptime, ok := toInt(status["uptime"]); ok {
		info.Uptime = time.Duration(uptime) * time.Second
	}
	return info, nil
}

func (c *Connector) GetUsageStats(ctx context.Context) (*types.UsageStats, error) {
	return nil, types.Unsupported("usage stats")
}
