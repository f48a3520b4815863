// Package pexip 通过 Pexip Infinity 管理 REST API 管理虚拟会议室
package pexip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

const (
	Agent = "pexip"

	defaultPort = 443

	workerStatusPath = "/api/admin/status/v1/worker_vm/"
	conferencePath   = "/api/admin/configuration/v1/conference/"
)

var minVersion = semver.MustParse("18")

func init() {
	connector.Register(Agent, new(builder))
}

type builder struct{}

func (b *builder) Build(cfg connector.Config) (connector.Connector, error) {
	return New(cfg)
}

type Connector struct {
	*internal.Base
	client *transport.RESTClient
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
	c.client = transport.NewRESTClient(c.Address().URL(""), c.HTTPOptions()).
		SetBasicAuth(c.Config.Username, c.Config.Password)

	resp, err := c.do(ctx, "worker-status", transport.Request{Method: http.MethodGet, Path: workerStatusPath})
	if err != nil {
		return fmt.Errorf("failed to set up connection to the device: %w", err)
	}
	version, err := checkWorkers(resp.Body)
	if err != nil {
		return err
	}
	c.Connected(types.DeviceInfo{Name: "Pexip Infinity", SoftwareVersion: version})
	// REST 无状态
	c.SetState(types.LooselyConnected)
	return nil
}

// checkWorkers 每个会议节点的版本都必须满足最低要求，返回第一个节点的版本
func checkWorkers(body []byte) (string, error) {
	nodes := gjson.GetBytes(body, "objects").Array()
	if len(nodes) == 0 {
		return "", errors.New("no conference nodes available")
	}
	for _, node := range nodes {
		raw := node.Get("version").String()
		major, _, _ := strings.Cut(raw, " ")
		v, err := semver.NewVersion(major)
		if err != nil {
			return "", fmt.Errorf("cannot determine the device api version %q: %w", raw, err)
		}
		if v.LessThan(minVersion) {
			return "", fmt.Errorf("device api %s too old, api %s or higher is required", major, minVersion)
		}
	}
	return nodes[0].Get("version").String(), nil
}

func (c *Connector) Disconnect(ctx context.Context) error {
	c.Disconnected()
	return nil
}

func (c *Connector) GetConnectionState(ctx context.Context) types.ConnectionState {
	client := c.client
	state := c.CheckState(ctx, func(ctx context.Context) error {
		_, err := client.Get(ctx, workerStatusPath, nil)
		return err
	})
	if state == types.Connected {
		return types.LooselyConnected
	}
	return state
}

// do 在命令锁内执行 REST 请求
func (c *Connector) do(ctx context.Context, name string, r transport.Request) (*transport.Response, error) {
	return internal.Exec(ctx, c.Base, name, func(ctx context.Context) (*transport.Response, error) {
		c.Logger.WithField("path", r.Path).WithField("method", r.Method).Debug("issuing request")
		return c.client.Do(ctx, r)
	})
}

func isNotFound(err error) bool {
	var se *transport.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// GetDeviceLoadInfo 会议节点媒体负载的平均值
func (c *Connector) GetDeviceLoadInfo(ctx context.Context) (*types.DeviceLoadInfo, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "worker-status", transport.Request{Method: http.MethodGet, Path: workerStatusPath})
	if err != nil {
		return nil, err
	}
	loads := gjson.GetBytes(resp.Body, "objects.#.media_load").Array()
	if len(loads) == 0 {
		return &types.DeviceLoadInfo{}, nil
	}
	var sum float64
	for _, l := range loads {
		sum += l.Float()
	}
	load := sum / float64(len(loads))
	return &types.DeviceLoadInfo{CPULoad: &load}, nil
}

func (c *Connector) GetUsageStats(ctx context.Context) (*types.UsageStats, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "conference-count", transport.Request{
		Method: http.MethodGet,
		Path:   conferencePath,
		Query:  map[string]string{"limit": "1"},
	})
	if err != nil {
		return nil, err
	}
	return &types.UsageStats{RoomCount: int(gjson.GetBytes(resp.Body, "meta.total_count").Int())}, nil
}

var (
	_ connector.Connector         = (*Connector)(nil)
	_ connector.MonitoringService = (*Connector)(nil)
)
