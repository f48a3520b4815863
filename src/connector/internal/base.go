package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/consts"
	applog "github.com/shongo-go/connector/src/log"
	"github.com/shongo-go/connector/src/metrics"
	"github.com/shongo-go/connector/src/pkg/connlogger"
	"github.com/shongo-go/connector/src/pkg/ratelimit"
	"github.com/shongo-go/connector/src/pkg/sentry"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

// 所有连接器通用的选项
const (
	OptionTimeout                = "timeout"
	OptionConnectionStateTimeout = "connection-state-timeout"
	OptionRequestInterval        = "request-interval"
	OptionVerifyCertificate      = "verify-certificate"
)

// Base 连接器公共部分：状态、命令锁、后台循环、缓存
type Base struct {
	Config       connector.Config
	Options      configs.Options
	Logger       *connlogger.Logger
	Metrics      *metrics.Metrics
	Timeout      time.Duration
	StateTimeout time.Duration

	// 同一时刻只允许一个设备命令
	cmdLock *semaphore.Weighted
	limiter *ratelimit.Limiter
	state   atomic.Int32

	infoMu  sync.RWMutex
	info    types.DeviceInfo
	lastErr error

	loopMu     sync.Mutex
	loopCtx    context.Context
	loopCancel context.CancelFunc
	loops      sync.WaitGroup

	users *UserCache
}

func NewBase(cfg connector.Config) (*Base, error) {
	if cfg.Options == nil {
		cfg.Options = configs.Options{}
	}
	timeout, err := cfg.Options.Duration(OptionTimeout, consts.DefaultRequestTimeoutSec*time.Second)
	if err != nil {
		return nil, err
	}
	stateTimeout, err := cfg.Options.Duration(OptionConnectionStateTimeout, consts.DefaultConnectionStateTimeoutSec*time.Second)
	if err != nil {
		return nil, err
	}
	interval, err := cfg.Options.Duration(OptionRequestInterval, 0)
	if err != nil {
		return nil, err
	}
	logger := connlogger.New(nil, cfg.Name, 0, logrus.Fields{
		applog.FieldConnector: cfg.Name,
		applog.FieldAgent:     cfg.Agent,
		applog.FieldDevice:    cfg.Address.String(),
	})
	b := &Base{
		Config:       cfg,
		Options:      cfg.Options,
		Logger:       logger,
		Metrics:      cfg.Metrics,
		Timeout:      timeout,
		StateTimeout: stateTimeout,
		cmdLock:      semaphore.NewWeighted(1),
		limiter:      ratelimit.New(interval),
	}
	b.users = newUserCache(cfg.Controller)
	b.Metrics.SetState(cfg.Name, int(types.Disconnected))
	return b, nil
}

func (b *Base) Name() string {
	return b.Config.Name
}

func (b *Base) Agent() string {
	return b.Config.Agent
}

func (b *Base) Address() types.DeviceAddress {
	return b.Config.Address
}

func (b *Base) GetLogger() *connlogger.Logger {
	return b.Logger
}

func (b *Base) Controller() connector.Controller {
	return b.Config.Controller
}

func (b *Base) State() types.ConnectionState {
	return types.ConnectionState(b.state.Load())
}

func (b *Base) SetState(s types.ConnectionState) {
	old := types.ConnectionState(b.state.Swap(int32(s)))
	if old != s {
		b.Logger.WithField("state", s).Debug("connection state changed")
	}
	b.Metrics.SetState(b.Config.Name, int(s))
}

func (b *Base) GetDeviceInfo() types.DeviceInfo {
	b.infoMu.RLock()
	defer b.infoMu.RUnlock()
	return b.info
}

func (b *Base) SetDeviceInfo(info types.DeviceInfo) {
	b.infoMu.Lock()
	defer b.infoMu.Unlock()
	b.info = info
}

// LastError 最近一次失败命令的错误
func (b *Base) LastError() error {
	b.infoMu.RLock()
	defer b.infoMu.RUnlock()
	return b.lastErr
}

func (b *Base) setLastError(err error) {
	b.infoMu.Lock()
	defer b.infoMu.Unlock()
	b.lastErr = err
}

// Users 用户信息缓存
func (b *Base) Users() *UserCache {
	return b.users
}

// RetryPolicy 连接重置时的重试策略，记录日志和指标
func (b *Base) RetryPolicy() transport.RetryPolicy {
	return transport.RetryPolicy{
		Attempts: consts.DefaultRetryAttempts,
		OnRetry: func(attempt int, err error) {
			b.Metrics.IncRetries(b.Config.Name)
			b.Logger.WithError(err).WithField("attempt", attempt).Warn("connection reset, retrying request")
		},
	}
}

// HTTPOptions HTTP 类传输的公共参数
func (b *Base) HTTPOptions() transport.HTTPOptions {
	return transport.HTTPOptions{
		Timeout:            b.Timeout,
		InsecureSkipVerify: !b.Options.Bool(OptionVerifyCertificate, false),
		Retry:              b.RetryPolicy(),
	}
}

// Exec 在命令锁内执行一次设备命令，错误统一包装为 CommandError
func Exec[T any](ctx context.Context, b *Base, command string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.cmdLock.Acquire(ctx, 1); err != nil {
		return zero, b.wrapError(command, err)
	}
	defer b.cmdLock.Release(1)

	if !b.limiter.Wait(ctx) {
		return zero, b.wrapError(command, ctx.Err())
	}
	start := time.Now()
	res, err := fn(ctx)
	b.Metrics.ObserveCommand(b.Config.Name, command, time.Since(start), err)
	if err != nil {
		err = b.wrapError(command, err)
		b.setLastError(err)
		b.Logger.WithError(err).WithField("command", command).Debug("command failed")
		return zero, err
	}
	return res, nil
}

// Run 不需要返回值的 Exec
func (b *Base) Run(ctx context.Context, command string, fn func(ctx context.Context) error) error {
	_, err := Exec(ctx, b, command, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (b *Base) wrapError(command string, err error) error {
	if errors.Is(err, types.ErrUnsupported) {
		return err
	}
	device := b.Config.Address.String()
	var ce *types.CommandError
	if errors.As(err, &ce) {
		if ce.Command == "" {
			ce.Command = command
		}
		if ce.Device == "" {
			ce.Device = device
		}
		return err
	}
	wrapped := &types.CommandError{Command: command, Device: device, Err: err}
	var fe *types.FaultError
	if errors.As(err, &fe) {
		wrapped.Code = fe.Code
	}
	return wrapped
}

// Loop 启动一个周期执行的后台循环，单次失败只记录日志
func (b *Base) Loop(name string, period time.Duration, fn func(ctx context.Context) error) {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()
	if b.loopCancel == nil {
		b.loopCtx, b.loopCancel = context.WithCancel(context.Background())
	}
	ctx := b.loopCtx
	logger := b.Logger.WithField("loop", name)
	b.loops.Add(1)
	sentry.GoWithContext(ctx, func(ctx context.Context) {
		defer b.loops.Done()
		logger.WithField("period", period).Debug("background loop started")
		defer logger.Debug("background loop stopped")
		for {
			if !Sleep(ctx, period) {
				return
			}
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Warn("background loop iteration failed")
			}
		}
	})
}

// Go 启动一个随 StopLoops 结束的后台任务
func (b *Base) Go(fn func(ctx context.Context)) {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()
	if b.loopCancel == nil {
		b.loopCtx, b.loopCancel = context.WithCancel(context.Background())
	}
	b.loops.Add(1)
	sentry.GoWithContext(b.loopCtx, func(ctx context.Context) {
		defer b.loops.Done()
		fn(ctx)
	})
}

// StopLoops 通知所有后台循环退出并等待
func (b *Base) StopLoops() {
	b.loopMu.Lock()
	cancel := b.loopCancel
	b.loopCancel = nil
	b.loopMu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.loops.Wait()
}

// Sleep 可被 ctx 打断的睡眠，被打断时返回 false
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// CheckState 用短超时执行状态查询命令，任何失败（包括 panic）都视为断开
func (b *Base) CheckState(ctx context.Context, check func(ctx context.Context) error) (state types.ConnectionState) {
	if b.State() == types.Disconnected {
		return types.Disconnected
	}
	defer func() {
		if r := recover(); r != nil {
			b.Logger.WithField("panic", fmt.Sprint(r)).Warn("connection state check panicked")
			state = types.Disconnected
		}
	}()
	// 等待命令锁不计入 StateTimeout
	err := b.Run(ctx, "connection-state", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, b.StateTimeout)
		defer cancel()
		return check(ctx)
	})
	if err != nil {
		b.Logger.WithError(err).Debug("connection state check failed")
		return types.Disconnected
	}
	return types.Connected
}

// Connected 连接成功后的公共处理
func (b *Base) Connected(info types.DeviceInfo) {
	b.SetDeviceInfo(info)
	b.SetState(types.Connected)
	b.Logger.WithFields(logrus.Fields{
		"name":    info.Name,
		"version": info.SoftwareVersion,
	}).Info("connected to device")
}

// Disconnected 断开时的公共处理：停止循环、清空缓存
func (b *Base) Disconnected() {
	b.StopLoops()
	b.users.Purge()
	if b.State() != types.Disconnected {
		b.Logger.Info("disconnected from device")
	}
	b.SetState(types.Disconnected)
}

// RequireConnected 未连接时返回 ErrNotConnected
func (b *Base) RequireConnected() error {
	if b.State() == types.Disconnected {
		return fmt.Errorf("%s: %w", b.Config.Name, types.ErrNotConnected)
	}
	return nil
}
