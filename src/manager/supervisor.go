package manager

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/pkg/sentry"
	"github.com/shongo-go/connector/src/types"
)

const (
	begin uint32 = iota
	pending
	running
	stopped
)

// supervisor 维持一个连接器的连接：失败后按 retryPeriod 重试，
// 连接后按 checkPeriod 探测，探测为 Disconnected 时重新连接
type supervisor struct {
	conn        connector.Connector
	retryPeriod time.Duration
	checkPeriod time.Duration

	state     uint32
	connected atomic.Bool
	kick      chan struct{}
	done      chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
}

func newSupervisor(ctx context.Context, conn connector.Connector, retryPeriod, checkPeriod time.Duration) *supervisor {
	runCtx, cancel := context.WithCancel(ctx)
	return &supervisor{
		conn:        conn,
		retryPeriod: retryPeriod,
		checkPeriod: checkPeriod,
		state:       begin,
		kick:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		runCtx:      runCtx,
		runCancel:   cancel,
	}
}

// Start 同步进行第一次连接，之后在后台维持连接
func (s *supervisor) Start() {
	if !atomic.CompareAndSwapUint32(&s.state, begin, pending) {
		return
	}
	defer atomic.CompareAndSwapUint32(&s.state, pending, running)

	s.connect()
	sentry.Go(func() { s.run() })
}

// Close 停止后台循环并断开设备
func (s *supervisor) Close(ctx context.Context) {
	if !atomic.CompareAndSwapUint32(&s.state, running, stopped) {
		return
	}
	s.runCancel()
	<-s.done
	if err := s.conn.Disconnect(ctx); err != nil {
		s.conn.GetLogger().WithError(err).Warn("failed to disconnect")
	}
	s.conn.GetLogger().Info("disconnected")
}

// Reconnect 让后台循环立即重新连接
func (s *supervisor) Reconnect() {
	s.connected.Store(false)
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *supervisor) connect() bool {
	logger := s.conn.GetLogger()
	logger.WithField("address", s.conn.Address().String()).Info("connecting")
	if err := s.conn.Connect(s.runCtx); err != nil {
		if s.runCtx.Err() == nil {
			logger.WithError(err).Warnf("failed to connect, retrying in %s", s.retryPeriod)
		}
		s.connected.Store(false)
		return false
	}
	info := s.conn.GetDeviceInfo()
	logger.WithField("device", info.Name).Info("connected")
	s.connected.Store(true)
	return true
}

func (s *supervisor) run() {
	defer close(s.done)
	timer := time.NewTimer(s.period())
	defer timer.Stop()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-s.kick:
			s.connect()
		case <-timer.C:
			s.tick()
		}
		if s.runCtx.Err() != nil {
			return
		}
		timer.Reset(s.period())
	}
}

func (s *supervisor) period() time.Duration {
	if s.connected.Load() {
		return s.checkPeriod
	}
	return s.retryPeriod
}

func (s *supervisor) tick() {
	if !s.connected.Load() {
		s.connect()
		return
	}
	if s.conn.GetConnectionState(s.runCtx) != types.Disconnected || s.runCtx.Err() != nil {
		return
	}
	s.conn.GetLogger().Warn("connection lost, reconnecting")
	s.connect()
}
