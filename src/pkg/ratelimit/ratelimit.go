// Package ratelimit 限制对单台设备的最小请求间隔
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 单台设备的请求间隔限制器，零值表示不限制
type Limiter struct {
	minInterval time.Duration
	lastAccess  time.Time
	mu          sync.Mutex
}

func New(minInterval time.Duration) *Limiter {
	return &Limiter{minInterval: minInterval}
}

// SetInterval 更新最小间隔，<=0 表示不限制
func (l *Limiter) SetInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minInterval = d
}

// Wait 等待直到允许下一次请求
// 返回 false 表示被 context 取消
// 等待期间不持有锁
func (l *Limiter) Wait(ctx context.Context) bool {
	if l == nil {
		return true
	}
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		l.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(l.lastAccess)
		if l.minInterval <= 0 || elapsed >= l.minInterval {
			l.lastAccess = now
			l.mu.Unlock()
			return true
		}
		waitTime := l.minInterval - elapsed
		l.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// WaitInfo 等待状态
type WaitInfo struct {
	WaitedSeconds    float64 `json:"waited_seconds"`
	NextRequestInSec float64 `json:"next_request_in_sec"`
	MinIntervalSec   float64 `json:"min_interval_sec"`
}

func (l *Limiter) Info() WaitInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.minInterval <= 0 {
		return WaitInfo{}
	}
	elapsed := time.Since(l.lastAccess)
	info := WaitInfo{
		WaitedSeconds:  elapsed.Seconds(),
		MinIntervalSec: l.minInterval.Seconds(),
	}
	if elapsed < l.minInterval {
		info.NextRequestInSec = (l.minInterval - elapsed).Seconds()
	}
	return info
}
