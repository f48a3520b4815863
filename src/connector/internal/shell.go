package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

const shellReconnectDelay = time.Second

// ShellInit 新会话建立后执行的初始化命令
type ShellInit func(ctx context.Context, shell *transport.Shell) error

// ShellSession SSH 命令行会话，远端关闭后每秒重连一次，直到 StopLoops
type ShellSession struct {
	base *Base
	cfg  transport.ShellConfig
	init ShellInit

	mu    sync.Mutex
	shell *transport.Shell
}

// DialShell 建立会话并启动重连监视
func (b *Base) DialShell(ctx context.Context, cfg transport.ShellConfig, init ShellInit) (*ShellSession, error) {
	if cfg.Address == "" {
		cfg.Address = b.Address().HostPort()
	}
	if cfg.Username == "" {
		cfg.Username = b.Config.Username
		cfg.Password = b.Config.Password
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = b.Timeout
	}
	cfg.Retry = b.RetryPolicy()
	if cfg.Logger == nil {
		cfg.Logger = b.Logger.Entry
	}
	s := &ShellSession{base: b, cfg: cfg, init: init}
	shell, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	s.shell = shell
	b.Go(s.watch)
	return s, nil
}

func (s *ShellSession) open(ctx context.Context) (*transport.Shell, error) {
	shell, err := transport.DialShell(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	if s.init != nil {
		if err := s.init(ctx, shell); err != nil {
			_ = shell.Close()
			return nil, fmt.Errorf("failed to initialize session: %w", err)
		}
	}
	return shell, nil
}

func (s *ShellSession) current() *transport.Shell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shell
}

// watch 等待远端关闭，然后重连
func (s *ShellSession) watch(ctx context.Context) {
	for {
		shell := s.current()
		if shell == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-shell.Done():
		}
		s.base.Logger.Warn("device closed the session, reconnecting")
		s.base.SetState(types.Reconnecting)
		s.mu.Lock()
		s.shell = nil
		s.mu.Unlock()
		_ = shell.Close()
		for {
			if !Sleep(ctx, shellReconnectDelay) {
				return
			}
			next, err := s.open(ctx)
			if err != nil {
				s.base.Logger.WithError(err).Debug("reconnect failed")
				continue
			}
			s.mu.Lock()
			s.shell = next
			s.mu.Unlock()
			s.base.SetState(types.Connected)
			s.base.Logger.Info("session reconnected")
			break
		}
	}
}

// Send 重连期间返回 types.ErrNotConnected
func (s *ShellSession) Send(ctx context.Context, line string) ([]string, error) {
	shell := s.current()
	if shell == nil {
		return nil, types.ErrNotConnected
	}
	return shell.Send(ctx, line)
}

func (s *ShellSession) TakeAsync() []string {
	shell := s.current()
	if shell == nil {
		return nil
	}
	return shell.TakeAsync()
}

// Close 必须在 StopLoops 之后调用
func (s *ShellSession) Close() {
	s.mu.Lock()
	shell := s.shell
	s.shell = nil
	s.mu.Unlock()
	if shell != nil {
		_ = shell.Close()
	}
}
