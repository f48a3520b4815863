// Package manager 根据配置创建连接器并维持它们的连接
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/instance"
	"github.com/shongo-go/connector/src/interfaces"
	applog "github.com/shongo-go/connector/src/log"
)

// ControllerFactory 为每个连接器提供控制器，可以返回 nil
type ControllerFactory func(connectorName string) connector.Controller

type Manager interface {
	interfaces.Module
	// Reconnect 让指定连接器立即重新连接
	Reconnect(name string) error
}

type manager struct {
	lock        sync.Mutex
	cfg         *configs.Config
	supervisors map[string]*supervisor
	started     bool
	logger      *logrus.Entry
}

// NewManager 创建配置中所有未禁用的连接器并放入 instance
func NewManager(ctx context.Context, cfg *configs.Config, controllers ControllerFactory) (Manager, error) {
	inst := instance.GetInstance(ctx)
	m := &manager{
		cfg:         cfg,
		supervisors: make(map[string]*supervisor),
		logger:      applog.GetLogger().WithField("module", "manager"),
	}
	for i := range cfg.Connectors {
		c := &cfg.Connectors[i]
		if c.Disabled {
			m.logger.WithField("connector", c.Name).Info("connector disabled, skipping")
			continue
		}
		var controller connector.Controller
		if controllers != nil {
			controller = controllers(c.Name)
		}
		conn, err := connector.New(connector.NewConfig(cfg, c, controller, inst.Metrics))
		if err != nil {
			return nil, fmt.Errorf("connector %s: %w", c.Name, err)
		}
		if !inst.Connectors.SetIfAbsent(c.Name, conn) {
			return nil, fmt.Errorf("duplicate connector name %q", c.Name)
		}
		m.supervisors[c.Name] = newSupervisor(context.WithoutCancel(ctx), conn,
			cfg.Manager.ConnectRetryPeriod, cfg.Manager.CheckPeriod)
	}
	inst.ConnectorManager = m
	return m, nil
}

// Start 并行进行第一次连接，连接失败的连接器在后台继续重试
func (m *manager) Start(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.started {
		return nil
	}
	m.started = true
	instance.GetInstance(ctx).WaitGroup.Add(1)

	var g errgroup.Group
	for _, s := range m.supervisors {
		g.Go(func() error {
			s.Start()
			return nil
		})
	}
	_ = g.Wait()
	m.logger.WithField("connectors", len(m.supervisors)).Info("connector manager started")
	return nil
}

// Close 停止所有后台循环并断开全部设备
func (m *manager) Close(ctx context.Context) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return
	}
	m.started = false

	var wg sync.WaitGroup
	for _, s := range m.supervisors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close(ctx)
		}()
	}
	wg.Wait()
	m.logger.Info("connector manager closed")
	instance.GetInstance(ctx).WaitGroup.Done()
}

func (m *manager) Reconnect(name string) error {
	m.lock.Lock()
	s, ok := m.supervisors[name]
	m.lock.Unlock()
	if !ok {
		return fmt.Errorf("connector %q not found", name)
	}
	s.Reconnect()
	return nil
}
